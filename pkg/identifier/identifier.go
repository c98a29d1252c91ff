package identifier

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/model"
)

// Namespace is the route segment an identifier was found under
type Namespace string

const (
	NamespaceChannels Namespace = "channels"
	NamespaceMessages Namespace = "messages"
)

// ErrNotARoute is returned by ParsePath for paths that do not address a conversation
var ErrNotARoute = errors.New("path is not a conversation route")

// ParseNamespace converts a route segment into a Namespace
func ParseNamespace(s string) (Namespace, error) {
	switch Namespace(s) {
	case NamespaceChannels, NamespaceMessages:
		return Namespace(s), nil
	default:
		return "", fmt.Errorf("unknown namespace %q", s)
	}
}

// Kind is the type of conversation target an identifier names
type Kind int

const (
	KindInvalid Kind = iota
	KindChannelID
	KindGroupID
	KindUserIDPair
	KindChannelName
	KindUserID
	KindUsername
	KindEmail
)

// String returns the kind name used in logs and metric labels
func (k Kind) String() string {
	switch k {
	case KindChannelID:
		return "channel_id"
	case KindGroupID:
		return "group_id"
	case KindUserIDPair:
		return "user_id_pair"
	case KindChannelName:
		return "channel_name"
	case KindUserID:
		return "user_id"
	case KindUsername:
		return "username"
	case KindEmail:
		return "email"
	default:
		return "invalid"
	}
}

// Identifier is a classified URL path segment
type Identifier struct {
	Raw       string
	Namespace Namespace
	Kind      Kind
	// Value is the lookup key: Raw with a leading '@' removed for usernames
	Value string
}

// Classify decides what an identifier names from its shape alone.
// It is total: every input maps to exactly one Kind.
func Classify(raw string, ns Namespace) Identifier {
	id := Identifier{Raw: raw, Namespace: ns, Value: raw}

	switch ns {
	case NamespaceChannels:
		switch len(raw) {
		case model.IDLength:
			id.Kind = KindChannelID
		case model.GroupIDLength:
			id.Kind = KindGroupID
		case model.DirectChannelNameLength:
			id.Kind = KindUserIDPair
		default:
			id.Kind = KindChannelName
		}

	case NamespaceMessages:
		switch {
		case len(raw) == model.IDLength:
			id.Kind = KindUserID
		case len(raw) == model.GroupIDLength:
			id.Kind = KindGroupID
		case strings.HasPrefix(raw, "@") && len(raw) > 1:
			id.Kind = KindUsername
			id.Value = raw[1:]
		case strings.IndexByte(raw, '@') > 0:
			id.Kind = KindEmail
		default:
			id.Kind = KindInvalid
		}

	default:
		id.Kind = KindInvalid
	}

	return id
}

// Route is a conversation URL broken into its parts
type Route struct {
	Team       string
	Namespace  Namespace
	Identifier string
}

// String rebuilds the canonical path for the route
func (r Route) String() string {
	return "/" + r.Team + "/" + string(r.Namespace) + "/" + r.Identifier
}

// ParsePath splits "/{team}/{channels|messages}/{identifier}" into a Route.
// Full URLs are accepted; only their path is considered.
func ParsePath(path string) (Route, error) {
	if strings.Contains(path, "://") {
		u, err := url.Parse(path)
		if err != nil {
			return Route{}, fmt.Errorf("%w: %v", ErrNotARoute, err)
		}
		path = u.Path
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return Route{}, ErrNotARoute
	}

	ns, err := ParseNamespace(parts[1])
	if err != nil {
		return Route{}, fmt.Errorf("%w: %v", ErrNotARoute, err)
	}

	ident, err := url.PathUnescape(parts[2])
	if err != nil {
		return Route{}, fmt.Errorf("%w: %v", ErrNotARoute, err)
	}

	return Route{Team: parts[0], Namespace: ns, Identifier: ident}, nil
}
