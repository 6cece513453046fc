package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestEngine(m *Middleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhook", m.Gate(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(logrusDiscard{})
	return l
}

type logrusDiscard struct{}

func (logrusDiscard) Write(p []byte) (int, error) { return len(p), nil }

func TestGate_NoRestrictionsAllowsAll(t *testing.T) {
	m := New(nil, "", "", discardLogger())
	r := newTestEngine(m)

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGate_RejectsIPNotAllowListed(t *testing.T) {
	m := New([]string{"10.0.0.5"}, "", "", discardLogger())
	r := newTestEngine(m)

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.RemoteAddr = "10.0.0.6:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGate_AcceptsAllowListedIPViaXFF(t *testing.T) {
	m := New([]string{"203.0.113.9"}, "", "", discardLogger())
	r := newTestEngine(m)

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGate_RejectsBadHeader(t *testing.T) {
	m := New(nil, "X-Admin-Token", "secret", discardLogger())
	r := newTestEngine(m)

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGate_AcceptsMatchingHeader(t *testing.T) {
	m := New(nil, "X-Admin-Token", "secret", discardLogger())
	r := newTestEngine(m)

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("X-Admin-Token", "secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGate_IPCheckedBeforeHeader(t *testing.T) {
	m := New([]string{"10.0.0.5"}, "X-Admin-Token", "secret", discardLogger())
	r := newTestEngine(m)

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.RemoteAddr = "10.0.0.6:1234"
	// Header is correct, but the IP check must still fail first.
	req.Header.Set("X-Admin-Token", "secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
