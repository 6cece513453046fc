// Package security implements the §6.1 access controls: an optional IP
// allow-list and an optional single-header check. Modeled on the
// teacher's internal/auth.Middleware shape (gin.HandlerFunc wrapping a
// validator, logging with logrus), but the validator here is a static
// allow-list/header comparison rather than a remote token check.
package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Middleware gates requests per the Security paragraph of §6.1.
type Middleware struct {
	allowedIPs  map[string]struct{}
	headerName  string
	headerValue string
	logger      *logrus.Logger
}

// New creates a Middleware. An empty allowedIPs disables the IP check;
// an empty headerName disables the header check.
func New(allowedIPs []string, headerName, headerValue string, logger *logrus.Logger) *Middleware {
	m := &Middleware{
		allowedIPs:  make(map[string]struct{}, len(allowedIPs)),
		headerName:  headerName,
		headerValue: headerValue,
		logger:      logger,
	}
	for _, ip := range allowedIPs {
		m.allowedIPs[ip] = struct{}{}
	}
	return m
}

// Gate enforces the IP allow-list then the header check, in that order
// (§6.1: 403 on IP failure, 401 on header failure).
func (m *Middleware) Gate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(m.allowedIPs) > 0 {
			ip := clientIP(c)
			if _, ok := m.allowedIPs[ip]; !ok {
				m.logger.WithFields(logrus.Fields{"ip": ip, "path": c.Request.URL.Path}).Warn("rejected webhook: ip not allow-listed")
				c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				c.Abort()
				return
			}
		}

		if m.headerName != "" {
			if got := c.GetHeader(m.headerName); got != m.headerValue {
				m.logger.WithFields(logrus.Fields{"ip": clientIP(c), "path": c.Request.URL.Path}).Warn("rejected webhook: header check failed")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// clientIP implements §6.1: first comma-separated token of
// X-Forwarded-For when present, else the peer address.
func clientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	return c.ClientIP()
}
