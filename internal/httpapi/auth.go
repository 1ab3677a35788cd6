package httpapi

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const bearerPrefix = "Bearer "

// requireTriggerSecret guards the mutating routes. Connections from a loopback
// peer skip the check so local operators can trigger runs directly.
func (s *Server) requireTriggerSecret() echo.MiddlewareFunc {
	secret := []byte(strings.TrimSpace(s.opts.CronSecret))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isLoopbackPeer(c.Request()) {
				return next(c)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, bearerPrefix) || len(secret) == 0 {
				return unauthorized(c)
			}
			token := []byte(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
			if subtle.ConstantTimeCompare(token, secret) != 1 {
				s.logger.Warn().Str("remote_ip", c.RealIP()).Str("path", c.Path()).Msg("trigger rejected: bad secret")
				return unauthorized(c)
			}
			return next(c)
		}
	}
}

// isLoopbackPeer decides from the connection, never from the Host header.
// Proxied requests carry forwarding headers and must present the secret.
func isLoopbackPeer(r *http.Request) bool {
	if r == nil {
		return false
	}
	for _, header := range []string{echo.HeaderXForwardedFor, echo.HeaderXRealIP, "Forwarded"} {
		if r.Header.Get(header) != "" {
			return false
		}
	}
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
