package resolver

import (
	"context"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/model"
)

// Store is the read side of the client-side entity cache.
// Getters are synchronous and never touch the network.
type Store interface {
	ChannelByID(id string) (*model.Channel, bool)
	ChannelByName(teamID, name string) (*model.Channel, bool)
	UserByID(id string) (*model.User, bool)
	UserByUsername(username string) (*model.User, bool)
	UserByEmail(email string) (*model.User, bool)
	CurrentUserID() string
	CurrentTeamID() string
}

// Remote is the subset of the server API the resolvers fall back to.
// Every call is single-shot; implementations must not retry.
type Remote interface {
	// JoinChannel adds the user to a channel addressed by exactly one of
	// channelID or channelName and returns it. Joining a channel the user
	// already belongs to succeeds.
	JoinChannel(ctx context.Context, userID, teamID, channelID, channelName string) (*model.Channel, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// DirectOpener materializes the DM channel between the current user and another user
type DirectOpener interface {
	OpenDirectChannel(ctx context.Context, userID string) (*model.Channel, error)
}

// notFounder is implemented by remote errors that mean "no such entity"
type notFounder interface {
	NotFound() bool
}
