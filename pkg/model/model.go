package model

import (
	"errors"
	"strings"
)

const (
	// IDLength is the length of every server-generated entity id
	IDLength = 26

	// GroupIDLength is the length of a group message channel name (sha1 hex)
	GroupIDLength = 40

	// DirectChannelNameLength is two ids joined by the "__" separator
	DirectChannelNameLength = IDLength*2 + len(directNameSeparator)

	// DefaultChannelName is the channel every team member belongs to
	DefaultChannelName = "town-square"

	directNameSeparator = "__"
)

// ErrMalformedDirectName is returned when a compound direct channel name
// cannot be split into two user ids that include the current user
var ErrMalformedDirectName = errors.New("malformed direct channel name")

// ChannelType identifies the kind of conversation a channel holds
type ChannelType string

const (
	ChannelOpen    ChannelType = "O"
	ChannelPrivate ChannelType = "P"
	ChannelDirect  ChannelType = "D"
	ChannelGroup   ChannelType = "G"
)

// String returns a human-readable name for the channel type
func (t ChannelType) String() string {
	switch t {
	case ChannelOpen:
		return "open"
	case ChannelPrivate:
		return "private"
	case ChannelDirect:
		return "direct"
	case ChannelGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Channel is a conversation container: a team channel, a DM or a GM
type Channel struct {
	ID          string      `json:"id"`
	TeamID      string      `json:"team_id"`
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name"`
	Type        ChannelType `json:"type"`
}

// IsDirect reports whether the channel is a one-to-one direct message
func (c *Channel) IsDirect() bool {
	return c != nil && c.Type == ChannelDirect
}

// IsGroup reports whether the channel is a group message
func (c *Channel) IsGroup() bool {
	return c != nil && c.Type == ChannelGroup
}

// User is an account on the server
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

// Team groups channels; Name is the URL slug
type Team struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// IsValidID reports whether s looks like a server-generated id
func IsValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// DirectChannelName returns the canonical name of the DM between two users.
// The lower id always comes first so both participants derive the same name.
func DirectChannelName(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + directNameSeparator + userB
}

// OtherUserIDFromDirectName returns the participant of a DM that is not the
// current user. A DM with yourself returns your own id.
func OtherUserIDFromDirectName(name, currentUserID string) (string, error) {
	first, second, ok := strings.Cut(name, directNameSeparator)
	if !ok || !IsValidID(first) || !IsValidID(second) {
		return "", ErrMalformedDirectName
	}

	switch currentUserID {
	case first:
		return second, nil
	case second:
		return first, nil
	default:
		return "", ErrMalformedDirectName
	}
}
