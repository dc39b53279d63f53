package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/craftercms/engine-sub000/internal/site"
)

// siteName picks the requested site: header, then query, then the default.
func (s *Server) siteName(c *gin.Context) string {
	if name := c.GetHeader(HeaderSite); name != "" {
		return name
	}
	if name := c.Query(QuerySite); name != "" {
		return name
	}
	return s.opts.DefaultSite
}

// resolveSite finds the context for the request, falling back to the
// fallback context, and holds it for the rest of the chain.
func (s *Server) resolveSite(c *gin.Context) {
	ctx := c.Request.Context()

	var sc *site.Context
	if name := s.siteName(c); name != "" {
		var err error
		sc, err = s.lc.GetContext(ctx, name, false)
		if err != nil {
			s.logger.Warnw("cannot resolve site", "site", name, "error", err)
		}
	}
	if sc == nil && s.opts.FallbackSite != "" {
		var err error
		sc, err = s.lc.GetContext(ctx, s.opts.FallbackSite, true)
		if err != nil {
			s.logger.Warnw("cannot resolve fallback site", "site", s.opts.FallbackSite, "error", err)
		}
	}
	if sc == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "no context resolved"})
		return
	}

	held, err := sc.Enter(ctx)
	if err != nil {
		s.logger.Warnw("cannot enter context", "site", sc.Name(), "error", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "no context resolved"})
		return
	}
	defer sc.Exit(held)

	c.Request = c.Request.WithContext(held)
	c.Header(HeaderSite, sc.Name())
	c.Next()
}

// current returns the context resolveSite attached to the request.
func current(c *gin.Context) *site.Context {
	sc, _ := site.FromContext(c.Request.Context())
	return sc
}
