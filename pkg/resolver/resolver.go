package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/identifier"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/metrics"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/model"
)

// Source records where a resolved target came from
type Source int

const (
	// SourceCache means the target was already known locally (direct match)
	SourceCache Source = iota
	// SourceRemote means a remote call was needed (resolution fallback)
	SourceRemote
)

func (s Source) String() string {
	if s == SourceCache {
		return "cache"
	}
	return "remote"
}

// Target is a successfully resolved identifier.
// Channel is always set; User is set for direct-message targets.
type Target struct {
	Identifier identifier.Identifier
	Channel    *model.Channel
	User       *model.User
	Source     Source
}

// Remote operation names, used for logging, metrics and Error.Op
const (
	opJoinChannel       = "join_channel"
	opGetUser           = "get_user"
	opGetUserByUsername = "get_user_by_username"
	opGetUserByEmail    = "get_user_by_email"
	opOpenDirect        = "open_direct_channel"
)

// Resolver turns classified identifiers into channels using a
// cache-then-remote strategy
type Resolver struct {
	store   Store
	remote  Remote
	opener  DirectOpener
	logger  *zap.Logger
	metrics *metrics.Metrics

	// Collapses identical in-flight remote lookups; each key still
	// results in exactly one network call
	inflight singleflight.Group

	// Contexts of the shared calls, cancelled once no caller waits on them
	callsMu sync.Mutex
	calls   map[string]*sharedCall
}

type sharedCall struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New creates a resolver over the given cache and remote API
func New(store Store, remote Remote, opener DirectOpener) *Resolver {
	return &Resolver{
		store:  store,
		remote: remote,
		opener: opener,
		logger: zap.NewNop(),
		calls:  make(map[string]*sharedCall),
	}
}

// SetLogger sets the logger for resolution events
func (r *Resolver) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r.logger = logger
}

// SetMetrics sets the metrics sink
func (r *Resolver) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Resolve looks up what id names in the current team. It returns either a
// Target or an *Error.
func (r *Resolver) Resolve(ctx context.Context, id identifier.Identifier) (Target, error) {
	return r.ResolveInTeam(ctx, "", id)
}

// ResolveInTeam is Resolve with channel names looked up in teamID. An empty
// teamID means the store's current team.
func (r *Resolver) ResolveInTeam(ctx context.Context, teamID string, id identifier.Identifier) (Target, error) {
	if teamID == "" {
		teamID = r.store.CurrentTeamID()
	}

	start := time.Now()
	target, err := r.resolve(ctx, teamID, id)
	elapsed := time.Since(start)

	if err != nil {
		r.metrics.RecordResolution(id.Kind.String(), KindOf(err).String(), elapsed)
		r.logger.Debug("resolution failed",
			zap.String("identifier", id.Raw),
			zap.Stringer("kind", id.Kind),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return Target{}, err
	}

	target.Identifier = id
	r.metrics.RecordResolution(id.Kind.String(), "ok", elapsed)
	r.logger.Debug("resolved",
		zap.String("identifier", id.Raw),
		zap.Stringer("kind", id.Kind),
		zap.String("channel_id", target.Channel.ID),
		zap.Stringer("source", target.Source),
		zap.Duration("elapsed", elapsed))
	return target, nil
}

func (r *Resolver) resolve(ctx context.Context, teamID string, id identifier.Identifier) (Target, error) {
	switch id.Kind {
	case identifier.KindChannelID:
		if ch, ok := r.store.ChannelByID(id.Value); ok {
			return r.channelTarget(ctx, id, ch, SourceCache)
		}
		return r.joinChannel(ctx, id, teamID, id.Value, "")

	case identifier.KindChannelName, identifier.KindGroupID:
		if ch, ok := r.store.ChannelByName(teamID, id.Value); ok {
			return r.channelTarget(ctx, id, ch, SourceCache)
		}
		return r.joinChannel(ctx, id, teamID, "", id.Value)

	case identifier.KindUserIDPair:
		otherID, err := model.OtherUserIDFromDirectName(id.Value, r.store.CurrentUserID())
		if err != nil {
			return Target{}, &Error{Kind: KindInvalidIdentifier, Identifier: id, Err: err}
		}
		return r.directTarget(ctx, id, identifier.KindUserID, otherID)

	case identifier.KindUserID, identifier.KindUsername, identifier.KindEmail:
		return r.directTarget(ctx, id, id.Kind, id.Value)

	case identifier.KindInvalid:
		return Target{}, &Error{Kind: KindInvalidIdentifier, Identifier: id}

	default:
		return Target{}, &Error{Kind: KindInvalidIdentifier, Identifier: id,
			Err: fmt.Errorf("unhandled identifier kind %d", id.Kind)}
	}
}

// joinChannel is the cache-miss path for channel identifiers. Exactly one of
// channelID and channelName is set.
func (r *Resolver) joinChannel(ctx context.Context, id identifier.Identifier, teamID, channelID, channelName string) (Target, error) {
	userID := r.store.CurrentUserID()

	key := opJoinChannel + ":" + teamID + ":" + channelID + ":" + channelName
	v, err := r.do(ctx, key, opJoinChannel, func(ctx context.Context) (any, error) {
		return r.remote.JoinChannel(ctx, userID, teamID, channelID, channelName)
	})
	if err != nil {
		return Target{}, RemoteError(id, opJoinChannel, err)
	}

	ch, _ := v.(*model.Channel)
	if ch == nil {
		return Target{}, &Error{Kind: KindNotFound, Identifier: id, Op: opJoinChannel}
	}
	return r.channelTarget(ctx, id, ch, SourceRemote)
}

// channelTarget wraps a channel, attaching the other participant for DMs so
// the navigator can always build the /messages/@username form
func (r *Resolver) channelTarget(ctx context.Context, id identifier.Identifier, ch *model.Channel, source Source) (Target, error) {
	target := Target{Channel: ch, Source: source}
	if !ch.IsDirect() {
		return target, nil
	}

	otherID, err := model.OtherUserIDFromDirectName(ch.Name, r.store.CurrentUserID())
	if err != nil {
		return Target{}, &Error{Kind: KindInvalidIdentifier, Identifier: id, Err: err}
	}
	user, _, err := r.lookupUser(ctx, id, identifier.KindUserID, otherID)
	if err != nil {
		return Target{}, err
	}
	target.User = user
	return target, nil
}

// directTarget resolves a user and opens the DM channel with them
func (r *Resolver) directTarget(ctx context.Context, id identifier.Identifier, by identifier.Kind, key string) (Target, error) {
	user, source, err := r.lookupUser(ctx, id, by, key)
	if err != nil {
		return Target{}, err
	}

	v, err := r.do(ctx, opOpenDirect+":"+user.ID, opOpenDirect, func(ctx context.Context) (any, error) {
		return r.opener.OpenDirectChannel(ctx, user.ID)
	})
	if err != nil {
		return Target{}, RemoteError(id, opOpenDirect, err)
	}
	ch, _ := v.(*model.Channel)
	if ch == nil {
		return Target{}, &Error{Kind: KindNotFound, Identifier: id, Op: opOpenDirect}
	}

	return Target{Channel: ch, User: user, Source: source}, nil
}

// lookupUser checks the cache for a user by the given key, then falls back to the remote API
func (r *Resolver) lookupUser(ctx context.Context, id identifier.Identifier, by identifier.Kind, key string) (*model.User, Source, error) {
	var (
		cached *model.User
		ok     bool
		op     string
		fetch  func(ctx context.Context) (*model.User, error)
	)

	switch by {
	case identifier.KindUserID:
		cached, ok = r.store.UserByID(key)
		op = opGetUser
		fetch = func(ctx context.Context) (*model.User, error) { return r.remote.GetUser(ctx, key) }
	case identifier.KindUsername:
		cached, ok = r.store.UserByUsername(key)
		op = opGetUserByUsername
		fetch = func(ctx context.Context) (*model.User, error) { return r.remote.GetUserByUsername(ctx, key) }
	case identifier.KindEmail:
		cached, ok = r.store.UserByEmail(key)
		op = opGetUserByEmail
		fetch = func(ctx context.Context) (*model.User, error) { return r.remote.GetUserByEmail(ctx, key) }
	default:
		return nil, 0, &Error{Kind: KindInvalidIdentifier, Identifier: id,
			Err: fmt.Errorf("cannot look up user by %s", by)}
	}

	if ok {
		return cached, SourceCache, nil
	}
	if key == "" {
		return nil, 0, &Error{Kind: KindInvalidIdentifier, Identifier: id,
			Err: fmt.Errorf("empty %s", by)}
	}

	v, err := r.do(ctx, op+":"+key, op, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return nil, 0, RemoteError(id, op, err)
	}
	user, _ := v.(*model.User)
	if user == nil {
		return nil, 0, &Error{Kind: KindNotFound, Identifier: id, Op: op}
	}
	return user, SourceRemote, nil
}

// do runs a remote call once per key, returning early if ctx is cancelled.
// The shared call outlives any single caller and is only cancelled once
// every caller waiting on it has gone.
func (r *Resolver) do(ctx context.Context, key, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	call := r.join(ctx, key)
	defer r.leave(key, call)

	ch := r.inflight.DoChan(key, func() (any, error) {
		v, err := fn(call.ctx)
		r.metrics.RecordRemoteCall(op, err)
		return v, err
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) join(ctx context.Context, key string) *sharedCall {
	r.callsMu.Lock()
	defer r.callsMu.Unlock()

	if r.calls == nil {
		r.calls = make(map[string]*sharedCall)
	}
	call, ok := r.calls[key]
	if !ok {
		callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		call = &sharedCall{ctx: callCtx, cancel: cancel}
		r.calls[key] = call
	}
	call.waiters++
	return call
}

func (r *Resolver) leave(key string, call *sharedCall) {
	r.callsMu.Lock()
	defer r.callsMu.Unlock()

	call.waiters--
	if call.waiters == 0 {
		// Later callers must start a fresh call instead of joining this one
		r.inflight.Forget(key)
		call.cancel()
		delete(r.calls, key)
	}
}

// RemoteError wraps a failed remote call made on behalf of id. Errors the
// remote reports as missing entities become KindNotFound.
func RemoteError(id identifier.Identifier, op string, err error) error {
	kind := KindRemoteFailure
	if isNotFound(err) {
		kind = KindNotFound
	}
	return &Error{Kind: kind, Identifier: id, Op: op, Err: err}
}
