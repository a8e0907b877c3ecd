package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yinkev/studyin/internal/learner"
)

func (s *Server) handleGetLearnerState(c *gin.Context) {
	learnerID := c.Query("learnerId")
	if learnerID == "" {
		abortError(c, http.StatusBadRequest, "learnerId is required", nil)
		return
	}
	state, err := s.rt.Store.Load(c.Request.Context(), learnerID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"learnerState": state})
}

type patchStateRequest struct {
	LearnerID    string         `json:"learnerId"`
	LearnerState *learner.State `json:"learnerState"`
}

func (s *Server) handlePatchLearnerState(c *gin.Context) {
	var req patchStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "malformed JSON", nil)
		return
	}
	if req.LearnerID == "" || req.LearnerState == nil {
		abortError(c, http.StatusBadRequest, "learnerId and learnerState are required", nil)
		return
	}
	if req.LearnerState.LearnerID != "" && req.LearnerState.LearnerID != req.LearnerID {
		abortError(c, http.StatusUnprocessableEntity, "learnerId mismatch between envelope and document", nil)
		return
	}

	state := learner.Sanitize(req.LearnerState, req.LearnerID)
	saved, err := s.rt.Store.Save(c.Request.Context(), req.LearnerID, state)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"learnerState": saved})
}
