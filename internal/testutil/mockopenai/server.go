// Package mockopenai serves canned chat, image and speech responses in the
// OpenAI wire format.
package mockopenai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Endpoints understood by the mock.
const (
	EndpointChat   = "chat"
	EndpointImage  = "image"
	EndpointSpeech = "speech"
)

// TitleSystemPrompt marks title requests; anything else gets the story text.
const TitleSystemPrompt = "Create a compelling title that captures the essence of the story."

// ChatCall is a recorded chat completion request.
type ChatCall struct {
	Model            string
	System           string
	User             string
	Temperature      float64
	MaxTokens        int64
	PresencePenalty  float64
	FrequencyPenalty float64
}

// Canned responses served until overridden.
const (
	DefaultStory    = "# The Day at the Beach\n\nThe waves rolled in gently."
	DefaultTitle    = `"Waves of Summer"`
	DefaultImageURL = "https://images.example.com/story.png"
	DefaultAudio    = "ID3-mock-mp3-bytes"
)

// Server is a scriptable fake of the OpenAI HTTP API.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	story     string
	title     string
	imageURL  string
	audio     []byte
	failures  map[string]int
	calls     map[string]int
	chatCalls []ChatCall
	prompts   map[string][]string
}

// Start launches the mock and registers its shutdown with tb.
func Start(tb testing.TB) *Server {
	tb.Helper()
	s := New()
	tb.Cleanup(s.Close)
	return s
}

// New launches the mock. The caller closes it.
func New() *Server {
	s := &Server{}
	s.Reset()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", s.handleChat)
	mux.HandleFunc("POST /images/generations", s.handleImage)
	mux.HandleFunc("POST /audio/speech", s.handleSpeech)
	s.Server = httptest.NewServer(mux)
	return s
}

// BaseURL is the value for the client's base URL option.
func (s *Server) BaseURL() string { return s.URL }

// SetStory sets the chat response for story requests.
func (s *Server) SetStory(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.story = text
}

// SetTitle sets the chat response for title requests.
func (s *Server) SetTitle(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = text
}

// SetImageURL sets the URL returned by image generation.
func (s *Server) SetImageURL(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageURL = u
}

// Fail makes every call to endpoint answer with status until Reset.
func (s *Server) Fail(endpoint string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint] = status
}

// Reset restores the canned responses and clears failures, counters and
// recordings.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.story = DefaultStory
	s.title = DefaultTitle
	s.imageURL = DefaultImageURL
	s.audio = []byte(DefaultAudio)
	s.failures = map[string]int{}
	s.calls = map[string]int{}
	s.chatCalls = nil
	s.prompts = map[string][]string{}
}

// Calls returns how many requests endpoint has received.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// ChatCalls returns the recorded chat requests in arrival order.
func (s *Server) ChatCalls() []ChatCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatCall(nil), s.chatCalls...)
}

// Prompts returns the prompt/input text sent to an image or speech endpoint.
func (s *Server) Prompts(endpoint string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts[endpoint]...)
}

// Audio returns the bytes served by the speech endpoint.
func (s *Server) Audio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.audio...)
}

func (s *Server) begin(w http.ResponseWriter, endpoint string) bool {
	s.mu.Lock()
	s.calls[endpoint]++
	status := s.failures[endpoint]
	s.mu.Unlock()
	if status == 0 {
		return true
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": "mock failure",
			"type":    "mock_error",
			"code":    "mock_error",
		},
	})
	return false
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"messages"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int64   `json:"max_tokens"`
	PresencePenalty  float64 `json:"presence_penalty"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
}

// messageText flattens string or content-part message bodies.
func messageText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, part := range v {
			if m, ok := part.(map[string]any); ok {
				if t, ok := m["text"].(string); ok {
					b.WriteString(t)
				}
			}
		}
		return b.String()
	}
	return ""
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, EndpointChat) {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": err.Error()}})
		return
	}
	call := ChatCall{
		Model:            req.Model,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			call.System = messageText(m.Content)
		case "user":
			call.User = messageText(m.Content)
		}
	}

	s.mu.Lock()
	s.chatCalls = append(s.chatCalls, call)
	content := s.story
	if call.System == TitleSystemPrompt {
		content = s.title
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": 0,
		"model":   req.Model,
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"logprobs":      nil,
			"message": map[string]any{
				"role":    "assistant",
				"content": content,
				"refusal": nil,
			},
		}},
		"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, EndpointImage) {
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	s.prompts[EndpointImage] = append(s.prompts[EndpointImage], req.Prompt)
	url := s.imageURL
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"created": 0,
		"data":    []any{map[string]any{"url": url}},
	})
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, EndpointSpeech) {
		return
	}
	var req struct {
		Input string `json:"input"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	s.prompts[EndpointSpeech] = append(s.prompts[EndpointSpeech], req.Input)
	audio := append([]byte(nil), s.audio...)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
