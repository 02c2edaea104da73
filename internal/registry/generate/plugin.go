package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ChatRequest is a single system+user chat completion request.
type ChatRequest struct {
	System           string
	Prompt           string
	Temperature      float64
	MaxTokens        int64
	PresencePenalty  float64
	FrequencyPenalty float64
}

// TextGenerator produces text from a chat prompt.
type TextGenerator interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// ImageGenerator produces one image and returns its URL.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// SpeechSynthesizer renders text to mp3 audio. The caller closes the reader.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// Provider bundles the three generative capabilities of one backend.
type Provider interface {
	TextGenerator
	ImageGenerator
	SpeechSynthesizer
	Name() string
}

// ErrNotConfigured is returned by every call when no provider credentials are set.
var ErrNotConfigured = errors.New("OpenAI API key not configured")

// GenerationError indicates the provider answered but the result was unusable,
// or the call failed for a reason other than auth or reachability.
type GenerationError struct {
	Step string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return e.Step + " generation failed"
	}
	return fmt.Sprintf("%s generation failed: %v", e.Step, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Loader creates a Provider from config.
type Loader func(ctx context.Context) (Provider, error)

// Plugin represents a generative provider plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a provider plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered provider plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named provider plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown generator %q; valid: %v", name, Names())
}
