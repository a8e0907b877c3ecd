package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yinkev/studyin/internal/analyzer"
)

func (s *Server) handleHealth(c *gin.Context) {
	bank := s.catalog.Bank()

	blueprintHealth := gin.H{"present": false}
	if bp, err := s.loadBlueprint(); err == nil && len(bp.Weights) > 0 {
		blueprintHealth = gin.H{"present": true, "id": bp.ID, "loCount": len(bp.Weights)}
	}

	analyticsHealth := gin.H{"present": false}
	if snap, err := analyzer.ReadSnapshot(s.cfg.AnalyticsOutPath); err == nil {
		analyticsHealth = gin.H{"present": true, "generatedAt": snap.GeneratedAt}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"engine": gin.H{"name": s.rt.Engine.Name, "version": s.rt.Engine.Version},
		"blueprint": blueprintHealth,
		"publishedItems": len(bank.Published()),
		"evidenceChunks": s.index.Len(),
		"analytics": analyticsHealth,
	})
}
