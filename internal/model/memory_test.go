package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNormalize(t *testing.T) {
	m := Memory{
		UserID:   " u1 ",
		Date:     " 2024-06-01 ",
		Tags:     []string{" beach", "", "  "},
		Mood:     strPtr("  "),
		Location: strPtr("Lisbon"),
	}
	m.Normalize()

	require.Equal(t, "u1", m.UserID)
	require.Equal(t, "2024-06-01", m.Date)
	require.Equal(t, []string{"beach"}, m.Tags)
	require.Nil(t, m.Mood)
	require.Equal(t, "Lisbon", *m.Location)
}

func TestNormalizeTags_NeverNil(t *testing.T) {
	require.NotNil(t, NormalizeTags(nil))
	require.Empty(t, NormalizeTags(nil))
}

func TestFilterByTags(t *testing.T) {
	memories := []Memory{
		{Description: "a", Tags: []string{"beach", "family"}},
		{Description: "b", Tags: []string{"work"}},
		{Description: "c", Tags: []string{}},
	}

	require.Len(t, FilterByTags(memories, nil), 3)

	got := FilterByTags(memories, []string{"family", "travel"})
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].Description)

	require.Empty(t, FilterByTags(memories, []string{"none"}))
}
