package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

// Headers sets browser hardening headers on every response. The CSP is
// restrictive; this service only serves JSON and a metrics page.
func Headers(cfg HeadersConfig) fiber.Handler {
	csp := buildCSP(cfg.AllowedOrigins)
	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", csp)
		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		return c.Next()
	}
}

func buildCSP(origins []string) string {
	connectSrc := "'self'"
	if len(origins) > 0 {
		connectSrc += " " + strings.Join(origins, " ")
	}
	return "default-src 'none'; img-src 'self' data: https:; connect-src " + connectSrc + "; frame-ancestors 'none'; base-uri 'self'"
}
