// internal/interfaces/http/middleware/cors.go
package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/your-org/inventory-ledger/internal/config"
)

// corsPolicy is the configured origin list, split once at startup
type corsPolicy struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string
	methods  string
	headers  string
}

func newCORSPolicy(cfg *config.Config) *corsPolicy {
	p := &corsPolicy{
		exact:   make(map[string]struct{}, len(cfg.Security.CORSAllowedOrigins)),
		methods: strings.Join(cfg.Security.CORSAllowedMethods, ", "),
		headers: strings.Join(cfg.Security.CORSAllowedHeaders, ", "),
	}
	for _, origin := range cfg.Security.CORSAllowedOrigins {
		origin = strings.TrimSpace(origin)
		switch {
		case origin == "*":
			p.any = true
		case strings.HasPrefix(origin, "*."):
			p.suffixes = append(p.suffixes, strings.ToLower(origin[1:]))
		case origin != "":
			p.exact[strings.TrimSuffix(origin, "/")] = struct{}{}
		}
	}
	return p
}

// allows reports whether origin may call the API. Wildcard entries match
// subdomains of the origin's host only, never a longer look-alike name.
func (p *corsPolicy) allows(origin string) bool {
	if p.any {
		return true
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	if len(p.suffixes) == 0 {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range p.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// CORS answers preflight requests and echoes allowed origins. The API
// authenticates with bearer tokens, so credentials are never advertised.
func CORS(cfg *config.Config) gin.HandlerFunc {
	policy := newCORSPolicy(cfg)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		c.Writer.Header().Add("Vary", "Origin")

		if origin != "" && policy.allows(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", policy.methods)
			h.Set("Access-Control-Allow-Headers", policy.headers)
			h.Set("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset")
			h.Set("Access-Control-Max-Age", "600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
