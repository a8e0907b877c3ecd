package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yinkev/studyin/internal/search"
)

func (s *Server) handleSearch(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		abortError(c, http.StatusBadRequest, "q is required", nil)
		return
	}
	if s.index.Len() == 0 {
		abortError(c, http.StatusNotFound, "no evidence chunks loaded", nil)
		return
	}

	query := search.Query{Text: q, NowMs: time.Now().UnixMilli()}
	if lo := c.Query("lo"); lo != "" {
		for _, id := range strings.Split(lo, ",") {
			if id = strings.TrimSpace(id); id != "" {
				query.LoIDs = append(query.LoIDs, id)
			}
		}
	}
	if v := c.Query("since"); v != "" {
		since, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			abortError(c, http.StatusBadRequest, "since must be epoch milliseconds", nil)
			return
		}
		query.SinceMs = since
	}
	if v := c.Query("k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k <= 0 {
			abortError(c, http.StatusBadRequest, "k must be a positive integer", nil)
			return
		}
		query.K = k
	}

	results := s.index.Search(query)
	if results == nil {
		results = []search.Result{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
