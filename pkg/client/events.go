package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/model"
)

// Websocket event names applied to the cache
const (
	EventChannelCreated = "channel_created"
	EventChannelUpdated = "channel_updated"
	EventChannelDeleted = "channel_deleted"
	EventDirectAdded    = "direct_added"
	EventGroupAdded     = "group_added"
	EventUserAdded      = "user_added"
	EventUserUpdated    = "user_updated"
)

// Event is one message pushed by the server over the websocket
type Event struct {
	Event     string                     `json:"event"`
	Data      map[string]json.RawMessage `json:"data"`
	Broadcast EventBroadcast             `json:"broadcast"`
	Seq       int64                      `json:"seq"`
}

// EventBroadcast describes who an event was sent to
type EventBroadcast struct {
	ChannelID string `json:"channel_id"`
	TeamID    string `json:"team_id"`
	UserID    string `json:"user_id"`
}

// ChannelFetcher loads a channel the event only referenced by id
type ChannelFetcher interface {
	GetChannel(ctx context.Context, channelID string) (*model.Channel, error)
}

// EventListener keeps a Cache current from the server's websocket feed.
// It reconnects with exponential backoff until its context is cancelled.
type EventListener struct {
	wsURL   string
	token   string
	cache   *Cache
	fetcher ChannelFetcher
	dialer  *websocket.Dialer
	logger  *zap.Logger

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration

	// applied receives every event after it has been applied (tests, UI refresh)
	applied chan Event
}

// NewEventListener creates a listener for serverURL's websocket endpoint
func NewEventListener(serverURL, token string, cache *Cache, fetcher ChannelFetcher) (*EventListener, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("client: unsupported websocket scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + apiPrefix + "/websocket"

	return &EventListener{
		wsURL:             u.String(),
		token:             token,
		cache:             cache,
		fetcher:           fetcher,
		dialer:            &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:            zap.NewNop(),
		reconnectDelay:    1 * time.Second,
		maxReconnectDelay: 30 * time.Second,
		applied:           make(chan Event, 64),
	}, nil
}

// SetLogger sets a logger for connection events
func (l *EventListener) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l.logger = logger
}

// SetReconnectDelay sets the initial and maximum reconnect delays
func (l *EventListener) SetReconnectDelay(initial, maxDelay time.Duration) {
	l.reconnectDelay = initial
	l.maxReconnectDelay = maxDelay
}

// Applied returns a channel receiving each event after it was applied.
// Events are dropped when nobody reads.
func (l *EventListener) Applied() <-chan Event {
	return l.applied
}

// Run connects and applies events until ctx is cancelled
func (l *EventListener) Run(ctx context.Context) error {
	delay := l.reconnectDelay
	attempt := 1

	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			// Clean session end resets the backoff
			delay = l.reconnectDelay
			attempt = 1
		}

		l.logger.Warn("websocket disconnected",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > l.maxReconnectDelay {
			delay = l.maxReconnectDelay
		}
		attempt++
	}
}

// session runs one websocket connection until it fails or ctx ends
func (l *EventListener) session(ctx context.Context) error {
	header := http.Header{}
	if l.token != "" {
		header.Set("Authorization", "Bearer "+l.token)
	}

	conn, _, err := l.dialer.DialContext(ctx, l.wsURL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.wsURL, err)
	}
	defer conn.Close()
	l.logger.Info("websocket connected", zap.String("url", l.wsURL))

	// Unblock ReadMessage when ctx ends
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			l.logger.Debug("ignoring malformed event", zap.Error(err))
			continue
		}
		if ev.Event == "" {
			// Replies to our own actions carry no event name
			continue
		}

		if err := l.apply(ctx, ev); err != nil {
			l.logger.Warn("failed to apply event", zap.String("event", ev.Event), zap.Error(err))
			continue
		}

		select {
		case l.applied <- ev:
		default:
		}
	}
}

// apply updates the cache from a single event
func (l *EventListener) apply(ctx context.Context, ev Event) error {
	switch ev.Event {
	case EventChannelUpdated:
		ch, err := decodeEmbedded[model.Channel](ev.Data["channel"])
		if err != nil {
			return err
		}
		l.cache.AddChannel(ch)

	case EventChannelCreated, EventDirectAdded, EventGroupAdded:
		channelID := ev.Broadcast.ChannelID
		if raw, ok := ev.Data["channel_id"]; ok {
			if err := json.Unmarshal(raw, &channelID); err != nil {
				l.logger.Debug("ignoring malformed channel_id", zap.String("event", ev.Event), zap.Error(err))
				channelID = ev.Broadcast.ChannelID
			}
		}
		return l.fetchChannel(ctx, channelID)

	case EventUserAdded:
		var userID string
		if err := json.Unmarshal(ev.Data["user_id"], &userID); err != nil {
			l.logger.Debug("ignoring malformed user_id", zap.String("event", ev.Event), zap.Error(err))
			return nil
		}
		if userID != "" && userID == l.cache.CurrentUserID() {
			return l.fetchChannel(ctx, ev.Broadcast.ChannelID)
		}

	case EventChannelDeleted:
		var channelID string
		if err := json.Unmarshal(ev.Data["channel_id"], &channelID); err != nil {
			return fmt.Errorf("channel_deleted without channel_id: %w", err)
		}
		l.cache.RemoveChannel(channelID)

	case EventUserUpdated:
		u, err := decodeEmbedded[model.User](ev.Data["user"])
		if err != nil {
			return err
		}
		l.cache.AddUser(u)
	}
	return nil
}

func (l *EventListener) fetchChannel(ctx context.Context, channelID string) error {
	if channelID == "" {
		return errors.New("event does not reference a channel")
	}
	if l.fetcher == nil {
		return nil
	}
	ch, err := l.fetcher.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	l.cache.AddChannel(ch)
	return nil
}

// decodeEmbedded decodes an entity that the server sends either as a JSON
// object or as a JSON-encoded string
func decodeEmbedded[T any](raw json.RawMessage) (*T, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing payload")
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &v, nil
}
