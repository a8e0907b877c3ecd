package httpapi

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yinkev/studyin/internal/logging"
	"github.com/yinkev/studyin/internal/services"
	"github.com/yinkev/studyin/internal/telemetry"
)

// ingestBody runs the shared ingest gates (auth, size, rate) and returns the
// raw body. A false return means the response has already been written.
func (s *Server) ingestBody(c *gin.Context) ([]byte, bool) {
	if token := s.cfg.Ingest.Token; token != "" {
		if c.GetHeader("Authorization") != "Bearer "+token {
			abortError(c, http.StatusUnauthorized, "invalid or missing bearer token", nil)
			return nil, false
		}
	}

	maxBytes := s.cfg.Ingest.MaxBytes
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
	if err != nil {
		abortError(c, http.StatusBadRequest, "failed to read body", nil)
		return nil, false
	}
	if int64(len(body)) > maxBytes {
		abortError(c, http.StatusRequestEntityTooLarge, "payload too large", nil)
		return nil, false
	}

	client := telemetry.Fingerprint(c.GetHeader("X-Forwarded-For"), c.GetHeader("X-Real-IP"))
	if ok, retryAfter := s.rt.Limiter.Allow(client); !ok {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		abortError(c, http.StatusTooManyRequests, "rate limit exceeded", nil)
		return nil, false
	}
	return body, true
}

func (s *Server) handleAttempts(c *gin.Context) {
	body, ok := s.ingestBody(c)
	if !ok {
		return
	}

	var evt telemetry.AttemptEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		abortError(c, http.StatusBadRequest, "malformed JSON", nil)
		return
	}
	if err := telemetry.CheckSchemaVersion(evt.SchemaVersion); err != nil {
		abortError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if issues := evt.Validate(); len(issues) > 0 {
		abortError(c, http.StatusUnprocessableEntity, "invalid attempt event", issues)
		return
	}

	ctx := c.Request.Context()
	if err := s.rt.Sink.Attempt(ctx, evt); err != nil {
		logging.Ingest("attempt persist failed: %v", err)
		writeErr(c, err)
		return
	}

	difficulty := "medium"
	if bank := s.catalog.Bank(); bank != nil {
		if item, found := bank.Item(evt.ItemID); found {
			difficulty = item.Difficulty
		}
	}
	if err := s.rt.Bus.Emit(ctx, services.AnswerSubmitted{
		SchemaVersion: services.EventSchemaVersion,
		LearnerID:     evt.UserID,
		ItemID:        evt.ItemID,
		LoIDs:         evt.LoIDs,
		Difficulty:    difficulty,
		Correct:       evt.Correct,
		Ts:            evt.TsSubmit,
	}); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSessions(c *gin.Context) {
	body, ok := s.ingestBody(c)
	if !ok {
		return
	}

	var evt telemetry.SessionEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		abortError(c, http.StatusBadRequest, "malformed JSON", nil)
		return
	}
	if err := telemetry.CheckSchemaVersion(evt.SchemaVersion); err != nil {
		abortError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if issues := evt.Validate(); len(issues) > 0 {
		abortError(c, http.StatusUnprocessableEntity, "invalid session event", issues)
		return
	}

	if err := s.rt.Sink.Session(c.Request.Context(), evt); err != nil {
		logging.Ingest("session persist failed: %v", err)
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
