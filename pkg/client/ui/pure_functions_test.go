package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJump(t *testing.T) {
	tests := []struct {
		name  string
		input string
		team  string
		want  string
		err   error
	}{
		{"tilde channel", "~off-topic", "foo", "/foo/channels/off-topic", nil},
		{"bare channel", "town-square", "foo", "/foo/channels/town-square", nil},
		{"channel id", "abcdefghijabcdefghijabcdef", "foo", "/foo/channels/abcdefghijabcdefghijabcdef", nil},
		{"username", "@johndoe", "foo", "/foo/messages/@johndoe", nil},
		{"email", "john@example.com", "foo", "/foo/messages/john@example.com", nil},
		{"surrounding space", "  ~dev  ", "foo", "/foo/channels/dev", nil},
		{"absolute path kept", "/bar/messages/@jane", "foo", "/bar/messages/@jane", nil},
		{"url kept", "https://chat.example.com/bar/channels/x", "", "https://chat.example.com/bar/channels/x", nil},
		{"escaped", "~a b", "foo", "/foo/channels/a%20b", nil},
		{"empty", "   ", "foo", "", errEmptyJump},
		{"no team", "~dev", "", "", errNoTeam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJump(tt.input, tt.team)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "hello", truncateString("hello", 10))
	assert.Equal(t, "hel", truncateString("hello", 3))
	assert.Equal(t, "", truncateString("hello", 0))
	assert.Equal(t, "héll", truncateString("héllo", 4))

	styled := lipgloss.NewStyle().Bold(true).Render("hello world")
	assert.LessOrEqual(t, lipgloss.Width(truncateString(styled, 5)), 5)
}
