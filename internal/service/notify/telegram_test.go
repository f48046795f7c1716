package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	parts := splitMessage("aaaa\nbbbb\ncccc", 9)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, parts)

	long := strings.Repeat("x", 25)
	parts = splitMessage(long, 10)
	assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, parts)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 10)
	}
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{Token: "t"}.Enabled())
	assert.True(t, Config{Token: "t", ChatID: 42}.Enabled())
}
