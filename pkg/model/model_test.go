package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "aaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob   = "bbbbbbbbbbbbbbbbbbbbbbbbbb"
	carol = "cccccccccccccccccccccccccc"
)

func TestIsValidID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"lowercase alnum", "abcdefghij0123456789klmnop", true},
		{"too short", "abc", false},
		{"too long", strings.Repeat("a", 27), false},
		{"uppercase", strings.Repeat("A", 26), false},
		{"punctuation", strings.Repeat("a", 25) + "-", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidID(tt.id))
		})
	}
}

func TestDirectChannelNameIsSymmetric(t *testing.T) {
	name := DirectChannelName(bob, alice)
	assert.Equal(t, alice+"__"+bob, name)
	assert.Equal(t, name, DirectChannelName(alice, bob))
	assert.Len(t, name, DirectChannelNameLength)
}

func TestOtherUserIDFromDirectName(t *testing.T) {
	name := DirectChannelName(alice, bob)

	other, err := OtherUserIDFromDirectName(name, alice)
	require.NoError(t, err)
	assert.Equal(t, bob, other)

	other, err = OtherUserIDFromDirectName(name, bob)
	require.NoError(t, err)
	assert.Equal(t, alice, other)
}

func TestOtherUserIDFromDirectNameSelf(t *testing.T) {
	other, err := OtherUserIDFromDirectName(DirectChannelName(alice, alice), alice)
	require.NoError(t, err)
	assert.Equal(t, alice, other)
}

func TestOtherUserIDFromDirectNameMalformed(t *testing.T) {
	tests := []struct {
		name    string
		channel string
	}{
		{"no separator", strings.Repeat("a", 54)},
		{"current user absent", DirectChannelName(bob, carol)},
		{"short half", "abc__" + bob},
		{"invalid half", strings.Repeat("A", 26) + "__" + alice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OtherUserIDFromDirectName(tt.channel, alice)
			assert.ErrorIs(t, err, ErrMalformedDirectName)
		})
	}
}

func TestChannelTypePredicates(t *testing.T) {
	assert.True(t, (&Channel{Type: ChannelDirect}).IsDirect())
	assert.False(t, (&Channel{Type: ChannelOpen}).IsDirect())
	assert.True(t, (&Channel{Type: ChannelGroup}).IsGroup())

	var nilChannel *Channel
	assert.False(t, nilChannel.IsDirect())
	assert.False(t, nilChannel.IsGroup())
	assert.Equal(t, "private", ChannelPrivate.String())
}
