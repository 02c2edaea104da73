package model

import (
	"slices"
	"strings"
	"time"
)

// Memory is a single dated recollection owned by a user.
type Memory struct {
	UserID      string    `json:"user_id"            bson:"user_id"`
	Date        string    `json:"date"               bson:"date"`
	Description string    `json:"description"        bson:"description"`
	Tags        []string  `json:"tags"               bson:"tags"`
	Mood        *string   `json:"mood,omitempty"     bson:"mood,omitempty"`
	Location    *string   `json:"location,omitempty" bson:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at"         bson:"created_at"`
}

// UserMemories is the per-user document holding memories in insertion order.
type UserMemories struct {
	UserID      string    `json:"user_id"      bson:"user_id"`
	Memories    []Memory  `json:"memories"     bson:"memories"`
	CreatedAt   time.Time `json:"created_at"   bson:"created_at"`
	LastUpdated time.Time `json:"last_updated" bson:"last_updated"`
}

// MemoryUsed echoes the memory a story was generated from.
type MemoryUsed struct {
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Location    *string  `json:"location"`
	Mood        *string  `json:"mood"`
	Tags        []string `json:"tags"`
}

// Story is the artifact returned by the story pipeline.
type Story struct {
	Title      string     `json:"title"`
	Story      string     `json:"story"`
	ImageURL   string     `json:"image_url,omitempty"`
	AudioURL   string     `json:"audio_url,omitempty"`
	TagsUsed   []string   `json:"tags_used"`
	Mood       *string    `json:"mood,omitempty"`
	MemoryUsed MemoryUsed `json:"memory_used"`
}

// Normalize trims identifying fields, drops blank optional values and
// guarantees a non-nil tag slice.
func (m *Memory) Normalize() {
	m.UserID = strings.TrimSpace(m.UserID)
	m.Date = strings.TrimSpace(m.Date)
	m.Tags = NormalizeTags(m.Tags)
	if m.Mood != nil && strings.TrimSpace(*m.Mood) == "" {
		m.Mood = nil
	}
	if m.Location != nil && strings.TrimSpace(*m.Location) == "" {
		m.Location = nil
	}
}

// NormalizeTags trims each tag and drops empty entries. The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// HasAnyTag reports whether the memory carries at least one of the given tags.
func (m Memory) HasAnyTag(tags []string) bool {
	for _, t := range m.Tags {
		if slices.Contains(tags, t) {
			return true
		}
	}
	return false
}

// FilterByTags keeps the memories carrying at least one of the given tags.
// An empty tag list returns the input unchanged.
func FilterByTags(memories []Memory, tags []string) []Memory {
	if len(tags) == 0 {
		return memories
	}
	out := make([]Memory, 0, len(memories))
	for _, m := range memories {
		if m.HasAnyTag(tags) {
			out = append(out, m)
		}
	}
	return out
}

// Used returns the echo block for a story response.
func (m Memory) Used() MemoryUsed {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	return MemoryUsed{
		Date:        m.Date,
		Description: m.Description,
		Location:    m.Location,
		Mood:        m.Mood,
		Tags:        tags,
	}
}
