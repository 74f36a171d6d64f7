package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTrip(t *testing.T) {
	cases := []Command{
		{Kind: Status},
		{Kind: Start, Names: []string{"web"}},
		{Kind: Start, Names: []string{"web", "worker"}},
		{Kind: Stop, Names: []string{"web"}},
		{Kind: Restart, Names: []string{"web"}},
		{Kind: Reload},
		{Kind: Quit},
	}
	for _, c := range cases {
		text := c.String()
		parsed, err := Parse(text)
		require.NoError(t, err, text)
		assert.Equal(t, c.Kind, parsed.Kind, text)
		assert.Equal(t, c.Names, parsed.Names, text)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []string{
		"",
		"frobnicate",
		"status web",
		"start",
		"stop",
		"restart",
		"reload now",
		"quit now",
	}
	for _, line := range cases {
		_, err := Parse(line)
		assert.Error(t, err, line)
	}
}

func TestParse_CaseInsensitiveVerb(t *testing.T) {
	cmd, err := Parse("STATUS")
	require.NoError(t, err)
	assert.Equal(t, Status, cmd.Kind)
}
