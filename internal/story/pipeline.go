package story

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/memoryweaver/memory-weaver/internal/config"
	"github.com/memoryweaver/memory-weaver/internal/model"
	registrygenerate "github.com/memoryweaver/memory-weaver/internal/registry/generate"
	registrymedia "github.com/memoryweaver/memory-weaver/internal/registry/media"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/memoryweaver/memory-weaver/internal/telemetry"
)

// Pipeline step names, used in metrics and error messages.
const (
	StepFetch = "fetch"
	StepStory = "story"
	StepTitle = "title"
	StepImage = "image"
	StepAudio = "audio"
)

const audioContentType = "audio/mpeg"

// Request is one story generation request.
type Request struct {
	UserID      string
	Tone        string
	IncludeTags []string
	MaxLength   int
}

// Pipeline turns one randomly selected memory into a titled, illustrated and
// narrated story. Steps run strictly in sequence; the first failure aborts
// the request and nothing produced earlier is cleaned up.
type Pipeline struct {
	Store  registrystore.MemoryStore
	Text   registrygenerate.TextGenerator
	Image  registrygenerate.ImageGenerator
	Speech registrygenerate.SpeechSynthesizer
	Media  registrymedia.MediaStore

	// Window bounds how many leading memories are considered.
	Window           int
	DefaultTone      string
	DefaultMaxLength int
	AudioURL         func(name string) string

	// Pick returns an index in [0, n). Defaults to a uniform random choice.
	Pick func(n int) int
	// NewAudioName returns the file name for generated narration.
	NewAudioName func() string
}

// New builds a Pipeline from the shared handles and configuration.
func New(cfg *config.Config, store registrystore.MemoryStore, provider registrygenerate.Provider, media registrymedia.MediaStore) *Pipeline {
	return &Pipeline{
		Store:            store,
		Text:             provider,
		Image:            provider,
		Speech:           provider,
		Media:            media,
		Window:           cfg.StoryMemoryWindow,
		DefaultTone:      cfg.StoryDefaultTone,
		DefaultMaxLength: cfg.StoryDefaultMaxLength,
		AudioURL:         cfg.AudioURL,
	}
}

func (p *Pipeline) pick(n int) int {
	if p.Pick != nil {
		return p.Pick(n)
	}
	return rand.IntN(n)
}

func (p *Pipeline) audioName() string {
	if p.NewAudioName != nil {
		return p.NewAudioName()
	}
	return fmt.Sprintf("story_%s.mp3", uuid.New())
}

func (p *Pipeline) resolve(req Request) (Request, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if err := registrystore.ValidateUserID(req.UserID); err != nil {
		return req, err
	}
	req.Tone = strings.TrimSpace(req.Tone)
	if req.Tone == "" {
		req.Tone = p.DefaultTone
	}
	if req.Tone == "" {
		req.Tone = "heartwarming"
	}
	if req.MaxLength < 0 {
		return req, &registrystore.ValidationError{Field: "max_length", Message: "must be positive"}
	}
	if req.MaxLength == 0 {
		req.MaxLength = p.DefaultMaxLength
	}
	if req.MaxLength == 0 {
		req.MaxLength = 500
	}
	req.IncludeTags = model.NormalizeTags(req.IncludeTags)
	return req, nil
}

// candidates loads the memories eligible for selection.
func (p *Pipeline) candidates(ctx context.Context, req Request) ([]model.Memory, error) {
	var (
		memories []model.Memory
		err      error
	)
	if len(req.IncludeTags) > 0 {
		memories, err = p.Store.ListMemoriesByTag(ctx, req.UserID, req.IncludeTags)
		if err == nil {
			memories = model.FilterByTags(memories, req.IncludeTags)
			if p.Window > 0 && len(memories) > p.Window {
				memories = memories[:p.Window]
			}
		}
	} else {
		memories, err = p.Store.ListMemories(ctx, req.UserID, p.Window)
	}
	if err != nil {
		return nil, err
	}
	if len(memories) == 0 {
		return nil, &registrystore.NotFoundError{
			Resource: "memories",
			ID:       req.UserID,
			Message:  "No memories found for this user",
		}
	}
	return memories, nil
}

// Generate runs the pipeline for one request.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*model.Story, error) {
	req, err := p.resolve(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	memories, err := p.candidates(ctx, req)
	telemetry.ObserveStoryStep(StepFetch, start, err)
	if err != nil {
		return nil, err
	}

	memory := memories[p.pick(len(memories))]
	log.Info("Selected memory", "user", req.UserID, "date", memory.Date, "candidates", len(memories))
	mc := Normalize(memory)

	body, err := p.step(StepStory, func() (string, error) {
		return p.Text.Complete(ctx, registrygenerate.ChatRequest{
			System:           storySystemPrompt,
			Prompt:           storyPrompt(mc, req.Tone, req.MaxLength),
			Temperature:      0.8,
			MaxTokens:        1000,
			PresencePenalty:  0.6,
			FrequencyPenalty: 0.5,
		})
	})
	if err != nil {
		return nil, err
	}

	title, err := p.step(StepTitle, func() (string, error) {
		raw, err := p.Text.Complete(ctx, registrygenerate.ChatRequest{
			System:      titleSystemPrompt,
			Prompt:      titlePrompt(body),
			Temperature: 0.7,
			MaxTokens:   50,
		})
		return cleanTitle(raw), err
	})
	if err != nil {
		return nil, err
	}

	imageURL, err := p.step(StepImage, func() (string, error) {
		return p.Image.GenerateImage(ctx, imagePrompt(body))
	})
	if err != nil {
		return nil, err
	}

	audioName, err := p.step(StepAudio, func() (string, error) {
		return p.narrate(ctx, body)
	})
	if err != nil {
		return nil, err
	}

	audioURL := "/audio/" + audioName
	if p.AudioURL != nil {
		audioURL = p.AudioURL(audioName)
	}

	return &model.Story{
		Title:      title,
		Story:      body,
		ImageURL:   imageURL,
		AudioURL:   audioURL,
		TagsUsed:   model.NormalizeTags(memory.Tags),
		Mood:       memory.Mood,
		MemoryUsed: memory.Used(),
	}, nil
}

// step times fn, rejects blank output and classifies failures.
func (p *Pipeline) step(name string, fn func() (string, error)) (string, error) {
	start := time.Now()
	out, err := fn()
	if err == nil && strings.TrimSpace(out) == "" {
		err = &registrygenerate.GenerationError{Step: name, Err: errors.New("empty result")}
	}
	if err != nil {
		err = classify(name, err)
	}
	telemetry.ObserveStoryStep(name, start, err)
	if err != nil {
		log.Error("Story step failed", "step", name, "err", err)
		return "", err
	}
	log.Debug("Story step complete", "step", name, "duration", time.Since(start))
	return out, nil
}

func (p *Pipeline) narrate(ctx context.Context, body string) (string, error) {
	audio, err := p.Speech.Synthesize(ctx, body)
	if err != nil {
		return "", err
	}
	defer audio.Close()

	name := p.audioName()
	res, err := p.Media.Put(ctx, name, audio, audioContentType)
	if err != nil {
		return "", fmt.Errorf("store narration: %w", err)
	}
	telemetry.AddMediaBytes(res.Size)
	return res.Name, nil
}

// classify leaves typed upstream errors intact and wraps anything else as a
// generation failure for the given step.
func classify(step string, err error) error {
	var (
		genErr      *registrygenerate.GenerationError
		authErr     *registrystore.UpstreamAuthError
		unavailable *registrystore.UpstreamUnavailableError
	)
	switch {
	case errors.Is(err, registrygenerate.ErrNotConfigured),
		errors.As(err, &genErr),
		errors.As(err, &authErr),
		errors.As(err, &unavailable):
		return err
	default:
		return &registrygenerate.GenerationError{Step: step, Err: err}
	}
}
