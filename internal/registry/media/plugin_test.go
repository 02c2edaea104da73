package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidName(t *testing.T) {
	require.True(t, ValidName("story_abc.mp3"))
	for _, bad := range []string{"", ".", "..", "../etc/passwd", "a/b.mp3", `a\b.mp3`} {
		require.False(t, ValidName(bad), bad)
	}
}
