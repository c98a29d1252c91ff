package navigator

import (
	"errors"
	"net/url"

	"go.uber.org/zap"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/metrics"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/model"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/resolver"
)

// History is the browser-style history the navigator mutates
type History interface {
	Push(path string)
	Replace(path string)
}

// ChannelSelector receives the "channel clicked" action for direct matches
type ChannelSelector interface {
	SelectChannel(ch *model.Channel)
}

// Notifier shows a short, non-blocking message to the user
type Notifier interface {
	Notify(title, message string) error
}

// Outcome is the navigation that was applied
type Outcome struct {
	Path    string
	Replace bool
	// Err is the resolution error that sent us to the fallback, if any
	Err error
}

// Failed reports whether the outcome is the error fallback
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Navigator applies resolved targets to a History.
// Every call to Navigate performs exactly one history mutation.
type Navigator struct {
	history        History
	selector       ChannelSelector
	notifier       Notifier
	defaultChannel string
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

// New creates a navigator over history. defaultChannel is the error
// fallback channel name ("town-square" when empty).
func New(history History, defaultChannel string) *Navigator {
	if defaultChannel == "" {
		defaultChannel = model.DefaultChannelName
	}
	return &Navigator{
		history:        history,
		defaultChannel: defaultChannel,
		logger:         zap.NewNop(),
	}
}

// SetSelector sets the receiver of channel-click actions
func (n *Navigator) SetSelector(s ChannelSelector) {
	n.selector = s
}

// SetNotifier sets the toast sink used on the error path
func (n *Navigator) SetNotifier(notifier Notifier) {
	n.notifier = notifier
}

// SetLogger sets the logger
func (n *Navigator) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	n.logger = logger
}

// SetMetrics sets the metrics sink
func (n *Navigator) SetMetrics(m *metrics.Metrics) {
	n.metrics = m
}

// Navigate applies the result of a resolution within team. A non-nil err
// sends the user to the team's default channel, or to "/" without a team.
func (n *Navigator) Navigate(team string, target resolver.Target, err error) Outcome {
	if err == nil && target.Channel == nil {
		err = errors.New("navigator: resolved target has no channel")
	}
	if err != nil {
		return n.fail(team, err)
	}

	ch := target.Channel
	switch {
	case ch.IsDirect():
		if target.User == nil {
			return n.fail(team, errors.New("navigator: direct channel without participant"))
		}
		return n.replace(MessagesPath(team, "@"+target.User.Username))

	case ch.IsGroup():
		return n.replace(MessagesPath(team, ch.Name))

	default:
		if target.Source == resolver.SourceCache && n.selector != nil {
			n.selector.SelectChannel(ch)
		}
		return n.replace(ChannelPath(team, ch.Name))
	}
}

func (n *Navigator) replace(path string) Outcome {
	n.history.Replace(path)
	n.metrics.RecordNavigation("replace")
	n.logger.Debug("navigate", zap.String("mode", "replace"), zap.String("path", path))
	return Outcome{Path: path, Replace: true}
}

func (n *Navigator) fail(team string, err error) Outcome {
	path := "/"
	if team != "" {
		path = ChannelPath(team, n.defaultChannel)
	}

	if n.notifier != nil {
		message := resolver.KindOf(err).UserMessage()
		if nerr := n.notifier.Notify("Could not open this conversation", message); nerr != nil {
			n.logger.Debug("failed to show notification", zap.Error(nerr))
		}
	}

	n.history.Push(path)
	n.metrics.RecordNavigation("push")
	n.logger.Info("navigation fell back",
		zap.String("path", path),
		zap.Error(err))
	return Outcome{Path: path, Err: err}
}

// ChannelPath returns "/{team}/channels/{name}"
func ChannelPath(team, name string) string {
	return "/" + team + "/channels/" + url.PathEscape(name)
}

// MessagesPath returns "/{team}/messages/{target}"
func MessagesPath(team, target string) string {
	return "/" + team + "/messages/" + url.PathEscape(target)
}
