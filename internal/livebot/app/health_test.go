package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/app"
)

type transcripts struct {
	n   int
	err error
}

func (t transcripts) Conversations(context.Context) (int, error) { return t.n, t.err }

func call(t *testing.T, h *app.HealthServer, method, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if w.Code != http.StatusMethodNotAllowed {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	}
	return w.Code, body
}

func TestHealth(t *testing.T) {
	ok := app.NewHealthServer("127.0.0.1:0", app.HealthSources{Transcripts: transcripts{}})
	code, body := call(t, ok, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	broken := app.NewHealthServer("127.0.0.1:0", app.HealthSources{Transcripts: transcripts{err: errors.New("database is locked")}})
	code, body = call(t, broken, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "database is locked", body["error"])
}

func TestStatus(t *testing.T) {
	h := app.NewHealthServer("127.0.0.1:0", app.HealthSources{
		Transcripts:   transcripts{n: 4},
		Provider:      "openrouter",
		Actions:       18,
		TrackedActors: func() int { return 2 },
	})

	code, body := call(t, h, http.MethodGet, "/status")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "openrouter", body["provider"])
	assert.EqualValues(t, 4, body["conversations"])
	assert.EqualValues(t, 18, body["actions"])
	assert.EqualValues(t, 2, body["tracked_actors"])
}

func TestHealth_RejectsPost(t *testing.T) {
	h := app.NewHealthServer("127.0.0.1:0", app.HealthSources{Transcripts: transcripts{}})
	code, _ := call(t, h, http.MethodPost, "/health")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}
