package disabled

import (
	"context"
	"io"

	registrygenerate "github.com/memoryweaver/memory-weaver/internal/registry/generate"
)

func init() {
	registrygenerate.Register(registrygenerate.Plugin{
		Name: "disabled",
		Loader: func(ctx context.Context) (registrygenerate.Provider, error) {
			return Provider{}, nil
		},
	})
}

// Provider fails every call with ErrNotConfigured.
type Provider struct{}

func (Provider) Name() string { return "disabled" }

func (Provider) Complete(context.Context, registrygenerate.ChatRequest) (string, error) {
	return "", registrygenerate.ErrNotConfigured
}

func (Provider) GenerateImage(context.Context, string) (string, error) {
	return "", registrygenerate.ErrNotConfigured
}

func (Provider) Synthesize(context.Context, string) (io.ReadCloser, error) {
	return nil, registrygenerate.ErrNotConfigured
}

var _ registrygenerate.Provider = Provider{}
