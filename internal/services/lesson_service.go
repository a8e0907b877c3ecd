package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/yinkev/studyin/internal/bus"
	"github.com/yinkev/studyin/internal/learner"
	"github.com/yinkev/studyin/internal/logging"
)

// LessonService reacts to SAVE_LESSON_REQUESTED: validate the lesson, write
// it as a JSON artifact and publish LESSON_CREATED.
type LessonService struct {
	bus *bus.Bus
	dir string
	off func()

	// now is swappable for tests.
	now func() time.Time
}

// NewLessonService registers the service on b, writing artifacts under dir.
func NewLessonService(b *bus.Bus, dir string) *LessonService {
	s := &LessonService{bus: b, dir: dir, now: time.Now}
	s.off = b.On(EventSaveLessonRequested, s.handleSave)
	return s
}

// Close unregisters the service from the bus.
func (s *LessonService) Close() { s.off() }

// ValidateLesson checks the lesson artifact schema.
func ValidateLesson(l Lesson) error {
	if l.ID == "" {
		return fmt.Errorf("lesson id is required")
	}
	if l.Title == "" {
		return fmt.Errorf("lesson title is required")
	}
	if len(l.LoIDs) == 0 {
		return fmt.Errorf("lesson must cover at least one LO")
	}
	if l.Body == "" {
		return fmt.Errorf("lesson body is required")
	}
	return nil
}

func (s *LessonService) handleSave(ctx context.Context, evt bus.Event) error {
	req, ok := evt.(SaveLessonRequested)
	if !ok {
		return fmt.Errorf("lesson service: unexpected event %T", evt)
	}
	if err := ValidateLesson(req.Lesson); err != nil {
		return fmt.Errorf("lesson service: invalid lesson (request %s): %w", req.RequestID, err)
	}

	if err := s.writeLesson(req.Lesson); err != nil {
		return fmt.Errorf("lesson service: persist %s: %w", req.Lesson.ID, err)
	}
	jobID := uuid.New().String()
	logging.Content("lesson %s saved (request %s, job %s)", req.Lesson.ID, req.RequestID, jobID)

	return s.bus.Emit(ctx, LessonCreated{
		SchemaVersion: EventSchemaVersion,
		Lesson:        req.Lesson,
		JobID:         jobID,
		Ts:            s.now().UnixMilli(),
	})
}

// writeLesson persists the artifact via write-then-rename so a concurrent
// reader never sees a partial document.
func (s *LessonService) writeLesson(l Lesson) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create lessons directory: %w", err)
	}
	doc, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode lesson: %w", err)
	}
	path := filepath.Join(s.dir, learner.SanitizeID(l.ID)+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0644); err != nil {
		return fmt.Errorf("failed to write lesson: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize lesson: %w", err)
	}
	return nil
}
