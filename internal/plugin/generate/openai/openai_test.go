package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/memoryweaver/memory-weaver/internal/config"
	registrygenerate "github.com/memoryweaver/memory-weaver/internal/registry/generate"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/memoryweaver/memory-weaver/internal/testutil/mockopenai"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T) (*Provider, *mockopenai.Server) {
	t.Helper()
	mock := mockopenai.Start(t)
	cfg := config.DefaultConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = mock.BaseURL()
	return New(&cfg), mock
}

func TestComplete(t *testing.T) {
	p, mock := newProvider(t)
	mock.SetStory("Once upon a time")

	out, err := p.Complete(context.Background(), registrygenerate.ChatRequest{
		System:           "sys",
		Prompt:           "tell me",
		Temperature:      0.8,
		MaxTokens:        1000,
		PresencePenalty:  0.6,
		FrequencyPenalty: 0.5,
	})
	require.NoError(t, err)
	require.Equal(t, "Once upon a time", out)

	calls := mock.ChatCalls()
	require.Len(t, calls, 1)
	require.Equal(t, "gpt-3.5-turbo", calls[0].Model)
	require.Equal(t, "sys", calls[0].System)
	require.Equal(t, "tell me", calls[0].User)
	require.InDelta(t, 0.8, calls[0].Temperature, 1e-9)
	require.Equal(t, int64(1000), calls[0].MaxTokens)
	require.InDelta(t, 0.6, calls[0].PresencePenalty, 1e-9)
	require.InDelta(t, 0.5, calls[0].FrequencyPenalty, 1e-9)
}

func TestCompleteEmptyContentIsGenerationError(t *testing.T) {
	p, mock := newProvider(t)
	mock.SetStory("   ")

	_, err := p.Complete(context.Background(), registrygenerate.ChatRequest{System: "s", Prompt: "p"})
	var genErr *registrygenerate.GenerationError
	require.True(t, errors.As(err, &genErr), "got %v", err)
}

func TestGenerateImage(t *testing.T) {
	p, mock := newProvider(t)
	mock.SetImageURL("https://img.example/1.png")

	url, err := p.GenerateImage(context.Background(), "draw")
	require.NoError(t, err)
	require.Equal(t, "https://img.example/1.png", url)
	require.Equal(t, []string{"draw"}, mock.Prompts(mockopenai.EndpointImage))
}

func TestSynthesize(t *testing.T) {
	p, mock := newProvider(t)

	rc, err := p.Synthesize(context.Background(), "read this")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, mock.Audio(), data)
	require.Equal(t, []string{"read this"}, mock.Prompts(mockopenai.EndpointSpeech))
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		check  func(t *testing.T, err error)
	}{
		{http.StatusUnauthorized, func(t *testing.T, err error) {
			var e *registrystore.UpstreamAuthError
			require.True(t, errors.As(err, &e), "got %v", err)
		}},
		{http.StatusServiceUnavailable, func(t *testing.T, err error) {
			var e *registrystore.UpstreamUnavailableError
			require.True(t, errors.As(err, &e), "got %v", err)
		}},
		{http.StatusBadRequest, func(t *testing.T, err error) {
			var e *registrygenerate.GenerationError
			require.True(t, errors.As(err, &e), "got %v", err)
		}},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			p, mock := newProvider(t)
			mock.Fail(mockopenai.EndpointChat, tc.status)
			_, err := p.Complete(context.Background(), registrygenerate.ChatRequest{System: "s", Prompt: "p"})
			tc.check(t, err)
			require.Equal(t, 1, mock.Calls(mockopenai.EndpointChat), "no retries")
		})
	}
}

func TestUnreachableIsUnavailable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = "http://127.0.0.1:1"
	p := New(&cfg)

	_, err := p.GenerateImage(context.Background(), "x")
	var e *registrystore.UpstreamUnavailableError
	require.True(t, errors.As(err, &e), "got %v", err)
}

func TestLoadWithoutKey(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := load(config.WithContext(context.Background(), &cfg))
	require.ErrorIs(t, err, registrygenerate.ErrNotConfigured)
}
