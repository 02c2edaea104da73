package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/memoryweaver/memory-weaver/internal/config"
	"github.com/memoryweaver/memory-weaver/internal/model"
	"github.com/memoryweaver/memory-weaver/internal/testutil/mockopenai"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, mutate func(cfg *config.Config)) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Listener.Port = 0
	cfg.DatastoreType = "memory"
	cfg.MediaType = "local"
	cfg.MediaDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}

	ctx := config.WithContext(context.Background(), &cfg)
	srv, err := StartServer(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return fmt.Sprintf("http://127.0.0.1:%d", srv.Running.Port)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServerEndToEnd(t *testing.T) {
	mock := mockopenai.Start(t)
	base := startTestServer(t, func(cfg *config.Config) {
		cfg.OpenAIAPIKey = "sk-test"
		cfg.OpenAIBaseURL = mock.BaseURL()
	})

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, base+"/memories/", map[string]any{
		"user_id":     "alice",
		"date":        "2024-06-01",
		"description": "Beach day",
		"tags":        []string{"beach"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = postJSON(t, base+"/generate-story/", map[string]any{"user_id": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got model.Story
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "Waves of Summer", got.Title)

	audio, err := http.Get(base + got.AudioURL)
	require.NoError(t, err)
	defer audio.Body.Close()
	require.Equal(t, http.StatusOK, audio.StatusCode)
	data, err := io.ReadAll(audio.Body)
	require.NoError(t, err)
	require.Equal(t, "ID3-mock-mp3-bytes", string(data))

	metrics, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	body, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "memory_weaver_requests_total")
	require.Contains(t, string(body), "memory_weaver_story_step_duration_seconds")
}

func TestServerWithoutAPIKeyAnswers503(t *testing.T) {
	base := startTestServer(t, func(cfg *config.Config) {
		cfg.OpenAIAPIKey = ""
	})

	resp := postJSON(t, base+"/memories", map[string]any{"user_id": "bob", "date": "2024-01-01", "description": "Snow"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, base+"/generate-story", map[string]any{"user_id": "bob"})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "OpenAI API key not configured", body["detail"])
}

func TestStartServerRejectsUnknownStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Listener.Port = 0
	cfg.DatastoreType = "cassandra"
	_, err := StartServer(config.WithContext(context.Background(), &cfg), &cfg)
	require.Error(t, err)
}
