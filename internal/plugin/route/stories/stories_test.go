package stories_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/memoryweaver/memory-weaver/internal/config"
	"github.com/memoryweaver/memory-weaver/internal/model"
	"github.com/memoryweaver/memory-weaver/internal/plugin/generate/disabled"
	"github.com/memoryweaver/memory-weaver/internal/plugin/generate/openai"
	"github.com/memoryweaver/memory-weaver/internal/plugin/media/local"
	"github.com/memoryweaver/memory-weaver/internal/plugin/route/stories"
	"github.com/memoryweaver/memory-weaver/internal/plugin/store/memory"
	registrygenerate "github.com/memoryweaver/memory-weaver/internal/registry/generate"
	"github.com/memoryweaver/memory-weaver/internal/story"
	"github.com/memoryweaver/memory-weaver/internal/testutil/mockopenai"
	"github.com/stretchr/testify/require"
)

type harness struct {
	router *gin.Engine
	store  *memory.Store
	media  *local.Store
	mock   *mockopenai.Server
}

func setup(t *testing.T, provider func(cfg *config.Config, mock *mockopenai.Server) registrygenerate.Provider) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mock := mockopenai.Start(t)
	cfg := config.DefaultConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = mock.BaseURL()

	media, err := local.New(t.TempDir())
	require.NoError(t, err)
	store := memory.New()

	r := gin.New()
	stories.MountRoutes(r, story.New(&cfg, store, provider(&cfg, mock), media), media)
	return &harness{router: r, store: store, media: media, mock: mock}
}

func withOpenAI(cfg *config.Config, _ *mockopenai.Server) registrygenerate.Provider {
	return openai.New(cfg)
}

func (h *harness) add(t *testing.T, userID, desc string, tags ...string) {
	t.Helper()
	_, err := h.store.AppendMemory(context.Background(), model.Memory{
		UserID: userID, Date: "2024-06-01", Description: desc, Tags: tags,
	})
	require.NoError(t, err)
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Detail
}

func TestGenerateStoryAndFetchAudio(t *testing.T) {
	h := setup(t, withOpenAI)
	h.add(t, "alice", "Beach day", "beach")

	w := h.do(t, http.MethodPost, "/generate-story", map[string]any{"user_id": "alice", "tone": "whimsical"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got model.Story
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, "Waves of Summer", got.Title)
	require.True(t, strings.HasPrefix(got.Story, "# The Day at the Beach"))
	require.Equal(t, "https://images.example.com/story.png", got.ImageURL)
	require.Equal(t, []string{"beach"}, got.TagsUsed)
	require.Equal(t, "Beach day", got.MemoryUsed.Description)
	require.True(t, strings.HasPrefix(got.AudioURL, "/audio/story_"), got.AudioURL)
	require.True(t, strings.HasSuffix(got.AudioURL, ".mp3"))

	require.Equal(t, 2, h.mock.Calls(mockopenai.EndpointChat))
	require.Equal(t, 1, h.mock.Calls(mockopenai.EndpointImage))
	require.Equal(t, 1, h.mock.Calls(mockopenai.EndpointSpeech))
	require.Contains(t, h.mock.ChatCalls()[0].User, "- Tone: whimsical")

	w = h.do(t, http.MethodGet, got.AudioURL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	data, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	require.Equal(t, "ID3-mock-mp3-bytes", string(data))
}

func TestGenerateStoryViaQuery(t *testing.T) {
	h := setup(t, withOpenAI)
	h.add(t, "alice", "Office party", "work")
	h.add(t, "alice", "Family picnic", "family")

	w := h.do(t, http.MethodGet, "/generate-story/alice?include_tags=family&max_length=200", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got model.Story
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, "Family picnic", got.MemoryUsed.Description)
	require.Contains(t, h.mock.ChatCalls()[0].User, "- Length: up to 200 words")

	w = h.do(t, http.MethodGet, "/generate-story/alice?max_length=lots", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateStoryErrors(t *testing.T) {
	t.Run("no memories", func(t *testing.T) {
		h := setup(t, withOpenAI)
		w := h.do(t, http.MethodPost, "/generate-story/", map[string]any{"user_id": "ghost"})
		require.Equal(t, http.StatusNotFound, w.Code)
		require.Equal(t, "No memories found for this user", detail(t, w))
		require.Zero(t, h.mock.Calls(mockopenai.EndpointChat))
	})

	t.Run("missing user id", func(t *testing.T) {
		h := setup(t, withOpenAI)
		w := h.do(t, http.MethodPost, "/generate-story", map[string]any{"tone": "calm"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("image failure stops the pipeline", func(t *testing.T) {
		h := setup(t, withOpenAI)
		h.add(t, "alice", "m")
		h.mock.Fail(mockopenai.EndpointImage, http.StatusBadRequest)

		w := h.do(t, http.MethodPost, "/generate-story", map[string]any{"user_id": "alice"})
		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.True(t, strings.HasPrefix(detail(t, w), "Failed to generate story: "))
		require.Zero(t, h.mock.Calls(mockopenai.EndpointSpeech))
	})

	t.Run("rejected key", func(t *testing.T) {
		h := setup(t, withOpenAI)
		h.add(t, "alice", "m")
		h.mock.Fail(mockopenai.EndpointChat, http.StatusUnauthorized)

		w := h.do(t, http.MethodPost, "/generate-story", map[string]any{"user_id": "alice"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Equal(t, 1, h.mock.Calls(mockopenai.EndpointChat))
	})

	t.Run("not configured", func(t *testing.T) {
		h := setup(t, func(*config.Config, *mockopenai.Server) registrygenerate.Provider { return disabled.Provider{} })
		h.add(t, "alice", "m")

		w := h.do(t, http.MethodPost, "/generate-story", map[string]any{"user_id": "alice"})
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		require.Equal(t, "OpenAI API key not configured", detail(t, w))
	})
}

func TestAudioNotFound(t *testing.T) {
	h := setup(t, withOpenAI)

	for _, path := range []string{"/audio/missing.mp3", "/audio/..%2Fsecret"} {
		w := h.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := h.do(t, http.MethodGet, "/audio/missing.mp3", nil)
	require.Equal(t, "Audio file not found", detail(t, w))
}
