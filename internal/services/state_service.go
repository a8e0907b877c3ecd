package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yinkev/studyin/internal/bus"
	"github.com/yinkev/studyin/internal/engine"
	"github.com/yinkev/studyin/internal/learner"
	"github.com/yinkev/studyin/internal/logging"
)

// StateService reacts to ANSWER_SUBMITTED: load the learner, run the engine
// update, persist, append an immutable snapshot line and publish
// STATE_UPDATED. Bus dispatch is sequential, so per-learner ordering follows
// from emit ordering.
type StateService struct {
	bus         *bus.Bus
	engine      *engine.Engine
	store       learner.Store
	snapshotDir string
	off         func()
}

// NewStateService registers the service on b and returns it.
func NewStateService(b *bus.Bus, eng *engine.Engine, store learner.Store, snapshotDir string) *StateService {
	s := &StateService{bus: b, engine: eng, store: store, snapshotDir: snapshotDir}
	s.off = b.On(EventAnswerSubmitted, s.handleAnswer)
	return s
}

// Close unregisters the service from the bus.
func (s *StateService) Close() { s.off() }

func (s *StateService) handleAnswer(ctx context.Context, evt bus.Event) error {
	sub, ok := evt.(AnswerSubmitted)
	if !ok {
		return fmt.Errorf("state service: unexpected event %T", evt)
	}

	state, err := s.store.Load(ctx, sub.LearnerID)
	if err != nil {
		return fmt.Errorf("state service: load %s: %w", sub.LearnerID, err)
	}
	state, signals := s.engine.Update(state, sub.LoIDs, sub.ItemID, sub.Difficulty, sub.Correct, sub.Ts)
	saved, err := s.store.Save(ctx, sub.LearnerID, state)
	if err != nil {
		return fmt.Errorf("state service: save %s: %w", sub.LearnerID, err)
	}
	logging.Engine("state updated for %s: θ̂=%.2f SE=%.2f mastery=%.2f",
		sub.LearnerID, signals.ThetaHat, signals.SE, signals.MasteryProbability)

	if err := s.appendSnapshot(sub.LearnerID, sub.Ts, saved); err != nil {
		// The live state is already durable; a failed snapshot is not fatal.
		logging.Get(logging.CategoryStore).Warn("snapshot append failed for %s: %v", sub.LearnerID, err)
	}

	return s.bus.Emit(ctx, StateUpdated{
		SchemaVersion: EventSchemaVersion,
		LearnerID:     sub.LearnerID,
		State:         saved,
		Reason:        "attempt",
		Ts:            sub.Ts,
	})
}

// snapshotRecord is one line of the per-learner snapshot NDJSON log.
type snapshotRecord struct {
	SchemaVersion string         `json:"schema_version"`
	Ts            int64          `json:"ts"`
	Reason        string         `json:"reason"`
	State         *learner.State `json:"state"`
}

func (s *StateService) appendSnapshot(learnerID string, ts int64, state *learner.State) error {
	line, err := json.Marshal(snapshotRecord{
		SchemaVersion: EventSchemaVersion,
		Ts:            ts,
		Reason:        "attempt",
		State:         state,
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.MkdirAll(s.snapshotDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	path := filepath.Join(s.snapshotDir, learner.SanitizeID(learnerID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open snapshot log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	return nil
}
