package story

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/memoryweaver/memory-weaver/internal/config"
	"github.com/memoryweaver/memory-weaver/internal/model"
	"github.com/memoryweaver/memory-weaver/internal/plugin/media/local"
	"github.com/memoryweaver/memory-weaver/internal/plugin/store/memory"
	registrygenerate "github.com/memoryweaver/memory-weaver/internal/registry/generate"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/stretchr/testify/require"
)

// fakeProvider records calls and fails the configured step.
type fakeProvider struct {
	mu       sync.Mutex
	chats    []registrygenerate.ChatRequest
	images   []string
	speeches []string
	failOn   string
	failWith error
	story    string
	title    string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) fail(step string) error {
	if f.failOn == step {
		return f.failWith
	}
	return nil
}

func (f *fakeProvider) Complete(_ context.Context, req registrygenerate.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, req)
	if req.System == titleSystemPrompt {
		if err := f.fail(StepTitle); err != nil {
			return "", err
		}
		return f.title, nil
	}
	if err := f.fail(StepStory); err != nil {
		return "", err
	}
	return f.story, nil
}

func (f *fakeProvider) GenerateImage(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, prompt)
	if err := f.fail(StepImage); err != nil {
		return "", err
	}
	return "https://img.example/story.png", nil
}

func (f *fakeProvider) Synthesize(_ context.Context, text string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speeches = append(f.speeches, text)
	if err := f.fail(StepAudio); err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader("mp3")), nil
}

type fixture struct {
	pipeline *Pipeline
	store    *memory.Store
	media    *local.Store
	provider *fakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	media, err := local.New(t.TempDir())
	require.NoError(t, err)
	store := memory.New()
	provider := &fakeProvider{story: "# A Story\n\nOnce upon a time.", title: `"A Title"`}

	p := New(&cfg, store, provider, media)
	p.Pick = func(n int) int { return n - 1 }
	p.NewAudioName = func() string { return "story_fixed.mp3" }
	return &fixture{pipeline: p, store: store, media: media, provider: provider}
}

func (f *fixture) add(t *testing.T, desc string, tags ...string) {
	t.Helper()
	mood, loc := "nostalgic", "Porto"
	_, err := f.store.AppendMemory(context.Background(), model.Memory{
		UserID:      "alice",
		Date:        "2024-06-01",
		Description: desc,
		Tags:        tags,
		Mood:        &mood,
		Location:    &loc,
	})
	require.NoError(t, err)
}

func TestGenerateHappyPath(t *testing.T) {
	f := newFixture(t)
	f.add(t, "first", "beach")
	f.add(t, "second", "family", "summer")

	got, err := f.pipeline.Generate(context.Background(), Request{UserID: "alice"})
	require.NoError(t, err)

	require.Equal(t, "A Title", got.Title)
	require.Equal(t, "# A Story\n\nOnce upon a time.", got.Story)
	require.Equal(t, "https://img.example/story.png", got.ImageURL)
	require.Equal(t, "/audio/story_fixed.mp3", got.AudioURL)
	require.Equal(t, []string{"family", "summer"}, got.TagsUsed)
	require.Equal(t, "nostalgic", *got.Mood)
	require.Equal(t, "second", got.MemoryUsed.Description)
	require.Equal(t, "Porto", *got.MemoryUsed.Location)

	require.Len(t, f.provider.chats, 2)
	storyReq := f.provider.chats[0]
	require.Equal(t, storySystemPrompt, storyReq.System)
	require.InDelta(t, 0.8, storyReq.Temperature, 1e-9)
	require.Equal(t, int64(1000), storyReq.MaxTokens)
	require.InDelta(t, 0.6, storyReq.PresencePenalty, 1e-9)
	require.InDelta(t, 0.5, storyReq.FrequencyPenalty, 1e-9)
	require.Contains(t, storyReq.Prompt, "Description: second")
	require.Contains(t, storyReq.Prompt, "- Tone: heartwarming")
	require.Contains(t, storyReq.Prompt, "- Length: 300-500 words")

	titleReq := f.provider.chats[1]
	require.Equal(t, titleSystemPrompt, titleReq.System)
	require.InDelta(t, 0.7, titleReq.Temperature, 1e-9)
	require.Equal(t, int64(50), titleReq.MaxTokens)
	require.Contains(t, titleReq.Prompt, got.Story)

	require.Len(t, f.provider.images, 1)
	require.Contains(t, f.provider.images[0], got.Story)
	require.Equal(t, []string{got.Story}, f.provider.speeches)

	rc, err := f.media.Open(context.Background(), "story_fixed.mp3")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	require.Equal(t, "mp3", string(data))
}

func TestGenerateEchoesRequestOptions(t *testing.T) {
	f := newFixture(t)
	f.add(t, "only")

	_, err := f.pipeline.Generate(context.Background(), Request{UserID: "alice", Tone: "adventurous", MaxLength: 800})
	require.NoError(t, err)
	require.Contains(t, f.provider.chats[0].Prompt, "- Tone: adventurous")
	require.Contains(t, f.provider.chats[0].Prompt, "- Length: 300-800 words")
}

func TestGenerateNoMemories(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Generate(context.Background(), Request{UserID: "ghost"})
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "No memories found for this user", err.Error())
	require.Empty(t, f.provider.chats)
}

func TestGenerateTagFilterIsPerMemory(t *testing.T) {
	f := newFixture(t)
	f.add(t, "beach day", "beach")
	f.add(t, "office", "work")

	var seen []int
	f.pipeline.Pick = func(n int) int { seen = append(seen, n); return 0 }

	got, err := f.pipeline.Generate(context.Background(), Request{UserID: "alice", IncludeTags: []string{"beach"}})
	require.NoError(t, err)
	require.Equal(t, []int{1}, seen, "only matching memories are candidates")
	require.Equal(t, "beach day", got.MemoryUsed.Description)

	_, err = f.pipeline.Generate(context.Background(), Request{UserID: "alice", IncludeTags: []string{"none"}})
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestGenerateWindowBoundsCandidates(t *testing.T) {
	f := newFixture(t)
	for _, d := range []string{"a", "b", "c", "d"} {
		f.add(t, d)
	}
	f.pipeline.Window = 2

	var seen int
	f.pipeline.Pick = func(n int) int { seen = n; return n - 1 }
	got, err := f.pipeline.Generate(context.Background(), Request{UserID: "alice"})
	require.NoError(t, err)
	require.Equal(t, 2, seen)
	require.Equal(t, "b", got.MemoryUsed.Description)
}

func TestGenerateFailsFast(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		step                    string
		chats, images, speeches int
	}{
		{StepStory, 1, 0, 0},
		{StepTitle, 2, 0, 0},
		{StepImage, 2, 1, 0},
		{StepAudio, 2, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.step, func(t *testing.T) {
			f := newFixture(t)
			f.add(t, "m")
			f.provider.failOn = tc.step
			f.provider.failWith = boom

			_, err := f.pipeline.Generate(context.Background(), Request{UserID: "alice"})
			var genErr *registrygenerate.GenerationError
			require.True(t, errors.As(err, &genErr), "got %v", err)
			require.Equal(t, tc.step, genErr.Step)
			require.ErrorIs(t, err, boom)

			require.Len(t, f.provider.chats, tc.chats)
			require.Len(t, f.provider.images, tc.images)
			require.Len(t, f.provider.speeches, tc.speeches)
		})
	}
}

func TestGeneratePassesTypedErrorsThrough(t *testing.T) {
	f := newFixture(t)
	f.add(t, "m")
	f.provider.failOn = StepStory
	f.provider.failWith = &registrystore.UpstreamAuthError{Service: "openai"}

	_, err := f.pipeline.Generate(context.Background(), Request{UserID: "alice"})
	var authErr *registrystore.UpstreamAuthError
	require.True(t, errors.As(err, &authErr))

	f.provider.failWith = registrygenerate.ErrNotConfigured
	_, err = f.pipeline.Generate(context.Background(), Request{UserID: "alice"})
	require.ErrorIs(t, err, registrygenerate.ErrNotConfigured)
}

func TestGenerateEmptyStoryIsGenerationError(t *testing.T) {
	f := newFixture(t)
	f.add(t, "m")
	f.provider.story = "  "

	_, err := f.pipeline.Generate(context.Background(), Request{UserID: "alice"})
	var genErr *registrygenerate.GenerationError
	require.True(t, errors.As(err, &genErr))
	require.Equal(t, StepStory, genErr.Step)
	require.Empty(t, f.provider.images)
}

func TestGenerateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Generate(context.Background(), Request{UserID: "  "})
	var verr *registrystore.ValidationError
	require.True(t, errors.As(err, &verr))

	_, err = f.pipeline.Generate(context.Background(), Request{UserID: "alice", MaxLength: -1})
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "max_length", verr.Field)
}
