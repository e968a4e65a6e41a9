package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestRequestLoggerRedactsCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hook := logtest.NewGlobal()
	t.Cleanup(hook.Reset)
	prev := log.GetLevel()
	log.SetLevel(log.InfoLevel)
	t.Cleanup(func() { log.SetLevel(prev) })

	r := gin.New()
	r.Use(RequestLoggerMiddleware())
	r.GET("/api/sandbox/customer-pay", func(c *gin.Context) { c.Status(http.StatusOK) })

	target := "/api/sandbox/customer-pay?terminalId=STORE01-0001&sessionId=0196f1c2-7a3b-7c00-9d1e-5f2a3b4c5d6e&x-api-key=device-api-key-0042"
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))

	var logged string
	for _, entry := range hook.AllEntries() {
		if path, ok := entry.Data["path"].(string); ok && strings.HasPrefix(path, "/api/sandbox/customer-pay") {
			logged = path
			if entry.Level != log.InfoLevel {
				t.Fatalf("level = %s, want info", entry.Level)
			}
		}
	}
	want := "/api/sandbox/customer-pay?terminalId=STORE01-0001&sessionId=...5d6e&x-api-key=...0042"
	if logged != want {
		t.Fatalf("logged path = %q, want %q", logged, want)
	}
}
