package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/memoryweaver/memory-weaver/internal/config"
	registrygenerate "github.com/memoryweaver/memory-weaver/internal/registry/generate"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

func init() {
	registrygenerate.Register(registrygenerate.Plugin{
		Name:   "openai",
		Loader: load,
	})
}

func load(ctx context.Context) (registrygenerate.Provider, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("openai: missing config in context")
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		log.Warn("OpenAI API key not configured; story generation will return 503")
		return nil, registrygenerate.ErrNotConfigured
	}
	return New(cfg), nil
}

// Provider calls the OpenAI chat, image and speech endpoints.
type Provider struct {
	client      openaigo.Client
	chatModel   string
	imageModel  string
	imageSize   string
	speechModel string
	voice       string
}

// New builds a Provider. Retries are disabled and no request timeout is set;
// the caller's context bounds each call.
func New(cfg *config.Config, opts ...option.RequestOption) *Provider {
	base := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.OpenAIAPIKey)),
		option.WithMaxRetries(0),
	}
	if u := strings.TrimRight(strings.TrimSpace(cfg.OpenAIBaseURL), "/"); u != "" {
		base = append(base, option.WithBaseURL(u))
	}
	return &Provider{
		client:      openaigo.NewClient(append(base, opts...)...),
		chatModel:   cfg.OpenAIChatModel,
		imageModel:  cfg.OpenAIImageModel,
		imageSize:   cfg.OpenAIImageSize,
		speechModel: cfg.OpenAISpeechModel,
		voice:       cfg.OpenAISpeechVoice,
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Complete(ctx context.Context, req registrygenerate.ChatRequest) (string, error) {
	params := openaigo.ChatCompletionNewParams{
		Model: openaigo.ChatModel(p.chatModel),
		Messages: []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(req.System),
			openaigo.UserMessage(req.Prompt),
		},
		Temperature: openaigo.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openaigo.Int(req.MaxTokens)
	}
	if req.PresencePenalty != 0 {
		params.PresencePenalty = openaigo.Float(req.PresencePenalty)
	}
	if req.FrequencyPenalty != 0 {
		params.FrequencyPenalty = openaigo.Float(req.FrequencyPenalty)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify("chat", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &registrygenerate.GenerationError{Step: "chat", Err: errors.New("no choices returned")}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &registrygenerate.GenerationError{Step: "chat", Err: errors.New("empty content")}
	}
	return content, nil
}

func (p *Provider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Images.Generate(ctx, openaigo.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openaigo.ImageModel(p.imageModel),
		N:              openaigo.Int(1),
		Size:           openaigo.ImageGenerateParamsSize(p.imageSize),
		ResponseFormat: openaigo.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return "", classify("image", err)
	}
	if resp == nil || len(resp.Data) == 0 || strings.TrimSpace(resp.Data[0].URL) == "" {
		return "", &registrygenerate.GenerationError{Step: "image", Err: errors.New("no image url returned")}
	}
	return resp.Data[0].URL, nil
}

func (p *Provider) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	resp, err := p.client.Audio.Speech.New(ctx, openaigo.AudioSpeechNewParams{
		Input:          text,
		Model:          openaigo.SpeechModel(p.speechModel),
		Voice:          openaigo.AudioSpeechNewParamsVoice(p.voice),
		ResponseFormat: openaigo.AudioSpeechNewParamsResponseFormatMP3,
		Speed:          openaigo.Float(1.0),
	})
	if err != nil {
		return nil, classify("speech", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &registrygenerate.GenerationError{Step: "speech", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return resp.Body, nil
}

// classify maps API and transport failures onto the shared error taxonomy.
func classify(op string, err error) error {
	var apiErr *openaigo.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &registrystore.UpstreamAuthError{Service: "openai", Err: err}
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return &registrystore.UpstreamUnavailableError{Service: "openai", Err: err}
		}
		return &registrygenerate.GenerationError{Step: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &registrystore.UpstreamUnavailableError{Service: "openai", Err: err}
	}
	return &registrygenerate.GenerationError{Step: op, Err: err}
}

var _ registrygenerate.Provider = (*Provider)(nil)
