package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/craftercms/engine-sub000/internal/site"
)

// ContextInfo is the admin API view of a context.
type ContextInfo struct {
	Site      string    `json:"site"`
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Fallback  bool      `json:"fallback"`
	Accessors int       `json:"accessors"`
	CreatedAt time.Time `json:"createdAt"`
}

func infoOf(c *site.Context) ContextInfo {
	return ContextInfo{
		Site:      c.Name(),
		ID:        c.ID(),
		State:     c.State(),
		Fallback:  c.IsFallback(),
		Accessors: c.Accessors(),
		CreatedAt: c.CreatedAt(),
	}
}

func (s *Server) listContexts(c *gin.Context) {
	list := s.lc.ListContexts()
	out := make([]ContextInfo, len(list))
	for i, sc := range list {
		out[i] = infoOf(sc)
	}
	c.JSON(http.StatusOK, out)
}

// requireSite reads the site parameter or aborts with 400.
func requireSite(c *gin.Context) (string, bool) {
	name := c.Query("site")
	if name == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing site parameter"})
		return "", false
	}
	return name, true
}

func (s *Server) contextStatus(c *gin.Context) {
	name, ok := requireSite(c)
	if !ok {
		return
	}
	for _, sc := range s.lc.ListContexts() {
		if sc.Name() == name {
			c.JSON(http.StatusOK, infoOf(sc))
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "no context for site", "site": name})
}

func (s *Server) rebuildContext(c *gin.Context) {
	name, ok := requireSite(c)
	if !ok {
		return
	}
	fallback := name == s.opts.FallbackSite
	wait, _ := strconv.ParseBool(c.Query("wait"))

	if !wait {
		if err := s.lc.StartContextRebuild(name, fallback, nil); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"site": name, "status": "rebuild scheduled"})
		return
	}

	sc, err := s.lc.RebuildContext(c.Request.Context(), name, fallback)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, infoOf(sc))
}

func (s *Server) destroyContext(c *gin.Context) {
	name, ok := requireSite(c)
	if !ok {
		return
	}
	if err := s.lc.DestroyContext(name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"site": name, "status": "destroyed"})
}

func (s *Server) clearCache(c *gin.Context) {
	sc := current(c)
	done, err := sc.ClearCache()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	select {
	case err := <-done:
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	case <-c.Request.Context().Done():
		return
	}
	c.JSON(http.StatusOK, gin.H{"site": sc.Name(), "status": "cache cleared"})
}
