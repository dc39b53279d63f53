package server

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/craftercms/engine-sub000/internal/store"
)

// page is the data a template renders with.
type page struct {
	Site       string
	Path       string
	Properties map[string]any
	Query      map[string][]string
}

func (s *Server) routeContent(router *gin.Engine) {
	content := router.Group("/content", gzip.Gzip(gzip.DefaultCompression), s.resolveSite)
	content.GET("/*path", s.serveContent)
}

// serveContent renders the template named by the path when the site has one
// and otherwise returns the stored item.
func (s *Server) serveContent(c *gin.Context) {
	sc := current(c)
	p := strings.TrimPrefix(c.Param("path"), "/")
	if p == "" {
		p = "index"
	}

	if tmpl := sc.Templates(); tmpl != nil && tmpl.Has(p) {
		var buf bytes.Buffer
		data := page{Site: sc.Name(), Path: p, Properties: sc.Properties(), Query: c.Request.URL.Query()}
		if err := tmpl.Render(&buf, p, data); err != nil {
			s.logger.Errorw("render failed", "site", sc.Name(), "template", p, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
		return
	}

	st := sc.Store()
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	data, err := st.Read(p)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidPath):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "path": p})
		return
	case err != nil:
		s.logger.Errorw("read failed", "site", sc.Name(), "path", p, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read failed"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
