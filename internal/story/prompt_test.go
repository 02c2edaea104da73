package story

import (
	"testing"

	"github.com/memoryweaver/memory-weaver/internal/model"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlaceholders(t *testing.T) {
	mc := Normalize(model.Memory{Date: "2024-06-01", Description: "Beach day"})
	require.Equal(t, "Date: 2024-06-01\nDescription: Beach day\nLocation: unspecified\nMood: unspecified\nTags: ", mc.Render())

	loc, mood := "Lisbon", "joyful"
	mc = Normalize(model.Memory{
		Date:        "2024-06-01",
		Description: "Beach day",
		Location:    &loc,
		Mood:        &mood,
		Tags:        []string{"beach", "family"},
	})
	require.Equal(t, "Date: 2024-06-01\nDescription: Beach day\nLocation: Lisbon\nMood: joyful\nTags: beach, family", mc.Render())

	blank := "  "
	mc = Normalize(model.Memory{Location: &blank})
	require.Equal(t, "unspecified", mc.Location)
}

func TestStoryPromptRequirements(t *testing.T) {
	mc := Normalize(model.Memory{Date: "d", Description: "x"})

	p := storyPrompt(mc, "whimsical", 500)
	require.Contains(t, p, mc.Render())
	require.Contains(t, p, "- Length: 300-500 words")
	require.Contains(t, p, "- Tone: whimsical")
	require.Contains(t, p, "- Format the response in Markdown")

	require.Contains(t, storyPrompt(mc, "calm", 150), "- Length: up to 150 words")
}

func TestCleanTitle(t *testing.T) {
	cases := map[string]string{
		"  Waves of Summer \n": "Waves of Summer",
		`"Waves of Summer"`:    "Waves of Summer",
		"'Waves'":              "Waves",
		"“Curly”":              "Curly",
		`"`:                    `"`,
		`He said "hi"`:         `He said "hi"`,
	}
	for in, want := range cases {
		require.Equal(t, want, cleanTitle(in), "input %q", in)
	}
}
