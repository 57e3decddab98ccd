package logging

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	logger, err := New("debug", "console")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New("WARN", "json")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = New("loud", "json")
	assert.Error(t, err)

	_, err = New("info", "xml")
	assert.Error(t, err)
}

func setupTestRouter(logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(logger))
	r.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c))
	})
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("store exploded"))
		c.AbortWithStatus(http.StatusInternalServerError)
	})
	return r
}

func TestMiddlewareAssignsRequestID(t *testing.T) {
	router := setupTestRouter(zap.NewNop())

	req, _ := http.NewRequest("GET", "/ok", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	id := resp.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, id, resp.Body.String())
}

func TestMiddlewareKeepsValidIncomingID(t *testing.T) {
	router := setupTestRouter(zap.NewNop())
	incoming := uuid.NewString()

	req, _ := http.NewRequest("GET", "/ok", nil)
	req.Header.Set(RequestIDHeader, incoming)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, incoming, resp.Header().Get(RequestIDHeader))

	req, _ = http.NewRequest("GET", "/ok", nil)
	req.Header.Set(RequestIDHeader, "not a uuid\nInjected: yes")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.NotEqual(t, "not a uuid\nInjected: yes", resp.Header().Get(RequestIDHeader))
}

func TestMiddlewareLogsErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := setupTestRouter(zap.New(core))

	req, _ := http.NewRequest("GET", "/boom", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusInternalServerError), fields["status"])
	assert.Equal(t, "/boom", fields["path"])
	assert.Contains(t, fields["errors"], "store exploded")
	assert.NotContains(t, resp.Body.String(), "store exploded")
}
