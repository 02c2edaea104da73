package story

import (
	"fmt"
	"strings"

	"github.com/memoryweaver/memory-weaver/internal/model"
)

const unspecified = "unspecified"

const (
	storySystemPrompt = "You are a creative storyteller who transforms memories into engaging narratives."
	titleSystemPrompt = "Create a compelling title that captures the essence of the story."
)

// minStoryWords is the lower bound of the requested story length.
const minStoryWords = 300

// MemoryContext is the normalized view of a memory fed to the text prompt.
type MemoryContext struct {
	Date        string
	Description string
	Location    string
	Mood        string
	Tags        string
}

// Normalize substitutes placeholders for absent optional fields.
func Normalize(m model.Memory) MemoryContext {
	return MemoryContext{
		Date:        m.Date,
		Description: m.Description,
		Location:    orUnspecified(m.Location),
		Mood:        orUnspecified(m.Mood),
		Tags:        strings.Join(model.NormalizeTags(m.Tags), ", "),
	}
}

func orUnspecified(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return unspecified
	}
	return *v
}

// Render formats the context as the five-line block used in prompts.
func (mc MemoryContext) Render() string {
	return fmt.Sprintf("Date: %s\nDescription: %s\nLocation: %s\nMood: %s\nTags: %s",
		mc.Date, mc.Description, mc.Location, mc.Mood, mc.Tags)
}

func lengthRequirement(maxLength int) string {
	if maxLength < minStoryWords {
		return fmt.Sprintf("up to %d words", maxLength)
	}
	return fmt.Sprintf("%d-%d words", minStoryWords, maxLength)
}

func storyPrompt(mc MemoryContext, tone string, maxLength int) string {
	var b strings.Builder
	b.WriteString("Create a creative and engaging story based on this memory:\n")
	b.WriteString(mc.Render())
	b.WriteString("\n\nRequirements:\n")
	fmt.Fprintf(&b, "- Length: %s\n", lengthRequirement(maxLength))
	b.WriteString("- Style: Engaging narrative with vivid descriptions\n")
	fmt.Fprintf(&b, "- Tone: %s\n", tone)
	b.WriteString("- Expand creatively beyond the original memory\n")
	b.WriteString("- Include sensory details and emotional elements\n")
	b.WriteString("- Maintain the core essence of the memory\n")
	b.WriteString("- Format the response in Markdown")
	return b.String()
}

func titlePrompt(body string) string {
	return "Create a short, engaging title (max 10 words) for this story:\n" + body
}

func imagePrompt(body string) string {
	return "Create a visually striking illustration for this story:\n" + body +
		"\n\nStyle: Digital art with warm, emotional atmosphere\n" +
		"Focus on key emotional moments and visual elements\n" +
		"Use vibrant colors and dynamic composition"
}

// cleanTitle trims whitespace and one layer of surrounding quotes.
func cleanTitle(raw string) string {
	t := strings.TrimSpace(raw)
	pairs := [][2]string{{`"`, `"`}, {"'", "'"}, {"“", "”"}, {"«", "»"}}
	for _, p := range pairs {
		if len(t) >= len(p[0])+len(p[1]) && strings.HasPrefix(t, p[0]) && strings.HasSuffix(t, p[1]) {
			return strings.TrimSpace(t[len(p[0]) : len(t)-len(p[1])])
		}
	}
	return t
}
