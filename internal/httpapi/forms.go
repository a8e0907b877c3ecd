package httpapi

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/yinkev/studyin/internal/blueprint"
	"github.com/yinkev/studyin/internal/content"
)

type buildFormRequest struct {
	Length        int   `json:"length"`
	Seed          int64 `json:"seed"`
	PublishedOnly *bool `json:"publishedOnly"`
}

// loadBlueprint reads the blueprint per request so edits to the file take
// effect without a restart. The bank, by contrast, reloads via the watcher.
func (s *Server) loadBlueprint() (*blueprint.Blueprint, error) {
	return blueprint.Load(s.cfg.BlueprintPath)
}

func (s *Server) handleBuildForm(c *gin.Context) {
	var req buildFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "malformed JSON", nil)
		return
	}
	if req.Length <= 0 {
		abortError(c, http.StatusBadRequest, "length must be positive", nil)
		return
	}

	bp, err := s.loadBlueprint()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			abortError(c, http.StatusNotFound, "blueprint not found", nil)
			return
		}
		writeErr(c, err)
		return
	}

	bank := s.catalog.Bank()
	var pool []content.Item
	if req.PublishedOnly == nil || *req.PublishedOnly {
		pool = bank.Published()
	} else {
		pool = bank.Items
	}
	items := make([]blueprint.FormItem, len(pool))
	for i, it := range pool {
		items[i] = blueprint.FormItem{ID: it.ID, LoIDs: it.Los}
	}

	form, err := blueprint.BuildFormGreedy(bp, items, req.Length, req.Seed)
	if err != nil {
		var deficit *blueprint.DeficitError
		if errors.As(err, &deficit) {
			abortError(c, http.StatusConflict, deficit.Error(), deficit.Deficits)
			return
		}
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}
