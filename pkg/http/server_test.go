package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"shockscore-server/pkg/session"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestHandleHealth(t *testing.T) {
	manager := session.NewManager(testLogger())
	_, err := manager.Create(session.Options{SessionID: "sess-1"})
	assert.NoError(t, err)

	server := NewServer(testLogger(), ServerConfig{Port: 0}, manager, nil)

	rec := httptest.NewRecorder()
	server.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["active_sessions"])
}

func TestHandleSessionsMethodNotAllowed(t *testing.T) {
	server := NewServer(testLogger(), ServerConfig{Port: 0}, session.NewManager(testLogger()), nil)

	rec := httptest.NewRecorder()
	server.handleSessions(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestScoreHubBroadcastNonBlocking(t *testing.T) {
	hub := NewScoreHub(testLogger())
	// The hub is not started: BroadcastSample must still return
	// immediately once the buffer fills, dropping the excess.
	for i := 0; i < 1000; i++ {
		hub.BroadcastSample(&session.FrameResult{SessionID: "sess-1"})
	}
}
