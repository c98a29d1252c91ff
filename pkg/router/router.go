package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/identifier"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/metrics"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/navigator"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/resolver"
)

var (
	// ErrClosed is returned once the router has been closed
	ErrClosed = errors.New("router: closed")
	// ErrSuperseded is returned by Go when a newer identifier replaced the request
	ErrSuperseded = errors.New("router: superseded by a newer navigation")
)

// State is the router lifecycle state
type State int

const (
	StateIdle State = iota
	StateResolving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Resolver resolves classified identifiers. An empty teamID means the
// resolver's current team.
type Resolver interface {
	ResolveInTeam(ctx context.Context, teamID string, id identifier.Identifier) (resolver.Target, error)
}

// Navigator applies a resolution result to history
type Navigator interface {
	Navigate(team string, target resolver.Target, err error) navigator.Outcome
}

// TeamSwitcher maps team names to ids and records which team is current
type TeamSwitcher interface {
	TeamID(ctx context.Context, name string) (string, error)
	SetCurrentTeamID(teamID string)
}

// opGetTeam names the team lookup in resolution errors
const opGetTeam = "get_team"

// PathRecorder remembers the last successful location per team
type PathRecorder interface {
	SetLastPath(team, path string) error
}

// Settled is published for every applied navigation
type Settled struct {
	Generation uint64
	Team       string
	Identifier identifier.Identifier
	Target     resolver.Target
	Outcome    navigator.Outcome
	Elapsed    time.Duration
}

// Router re-runs classify, resolve and navigate whenever its identifier
// changes. Each dispatch gets a generation number; only the outcome of the
// latest generation is applied, older ones are cancelled and dropped.
//
// Each resolution looks its team up by name and resolves within that team
// id, so concurrent navigations to different teams cannot see each other's
// team. The current team only changes when a navigation is applied.
//
// The Navigator (and its selector and notifier) and the TeamSwitcher's
// SetCurrentTeamID run with the router's lock held and must not call back
// into the Router.
type Router struct {
	resolver  Resolver
	navigator Navigator
	teams     TeamSwitcher
	recorder  PathRecorder
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu         sync.Mutex
	team       string
	ns         identifier.Namespace
	raw        string
	dispatched bool
	generation uint64
	state      State
	cancel     context.CancelFunc
	waiters    map[uint64]chan result
	closed     bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	settled   chan Settled
	closeOnce sync.Once
}

type result struct {
	settled Settled
	err     error
}

// New creates a router for team
func New(team string, res Resolver, nav Navigator) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		resolver:   res,
		navigator:  nav,
		team:       team,
		logger:     zap.NewNop(),
		waiters:    make(map[uint64]chan result),
		baseCtx:    ctx,
		baseCancel: cancel,
		settled:    make(chan Settled, 16),
	}
}

// SetTeamSwitcher sets how team names are turned into ids
func (r *Router) SetTeamSwitcher(t TeamSwitcher) {
	r.teams = t
}

// SetPathRecorder sets where successful locations are remembered
func (r *Router) SetPathRecorder(p PathRecorder) {
	r.recorder = p
}

// SetLogger sets the logger
func (r *Router) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r.logger = logger
}

// SetMetrics sets the metrics sink
func (r *Router) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// State returns the current lifecycle state
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Team returns the team identifiers are resolved in
func (r *Router) Team() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.team
}

// Generation returns the number of the latest dispatched resolution
func (r *Router) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Settled returns a channel receiving every applied navigation. It is
// closed by Close. Events are dropped when the reader falls behind.
func (r *Router) Settled() <-chan Settled {
	return r.settled
}

// SetIdentifier is the identifier-changed hook. Setting the same namespace
// and identifier again is a no-op; anything else starts a new resolution and
// supersedes the one in flight. It returns the generation now current.
func (r *Router) SetIdentifier(ns identifier.Namespace, raw string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return r.generation
	}
	if r.dispatched && r.ns == ns && r.raw == raw {
		return r.generation
	}
	return r.dispatchLocked(r.team, ns, raw)
}

// Go navigates to a full "/{team}/{channels|messages}/{identifier}" path and
// blocks until that navigation settles. Unlike SetIdentifier it always
// resolves, even when the identifier is unchanged.
func (r *Router) Go(ctx context.Context, path string) (Settled, error) {
	route, err := identifier.ParsePath(path)
	if err != nil {
		return Settled{}, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Settled{}, ErrClosed
	}
	gen := r.dispatchLocked(route.Team, route.Namespace, route.Identifier)
	wait := make(chan result, 1)
	r.waiters[gen] = wait
	r.mu.Unlock()

	select {
	case res := <-wait:
		return res.settled, res.err
	case <-ctx.Done():
		r.mu.Lock()
		delete(r.waiters, gen)
		r.mu.Unlock()
		return Settled{}, ctx.Err()
	}
}

// dispatchLocked starts a new generation. r.mu must be held.
func (r *Router) dispatchLocked(team string, ns identifier.Namespace, raw string) uint64 {
	if r.cancel != nil {
		r.cancel()
	}

	r.generation++
	gen := r.generation
	r.team = team
	r.ns = ns
	r.raw = raw
	r.dispatched = true
	r.state = StateResolving

	ctx, cancel := context.WithCancel(r.baseCtx)
	r.cancel = cancel

	r.logger.Debug("dispatching resolution",
		zap.Uint64("generation", gen),
		zap.String("team", team),
		zap.String("namespace", string(ns)),
		zap.String("identifier", raw))

	r.wg.Add(1)
	go r.run(ctx, cancel, gen, team, ns, raw)
	return gen
}

func (r *Router) run(ctx context.Context, cancel context.CancelFunc, gen uint64, team string, ns identifier.Namespace, raw string) {
	defer r.wg.Done()
	defer cancel()

	start := time.Now()
	id := identifier.Classify(raw, ns)

	// An unknown team leaves no team context, so the error fallback is "/"
	navTeam := team
	teamID, err := r.lookupTeam(ctx, team)
	var target resolver.Target
	if err != nil {
		err = resolver.RemoteError(id, opGetTeam, err)
		navTeam = ""
	} else {
		target, err = r.resolver.ResolveInTeam(ctx, teamID, id)
	}

	r.mu.Lock()
	if gen != r.generation || r.closed {
		dropErr := ErrSuperseded
		if r.closed {
			dropErr = ErrClosed
		}
		r.finishLocked(gen, result{err: dropErr})
		r.mu.Unlock()

		r.metrics.RecordStaleDropped()
		r.logger.Debug("dropping stale resolution",
			zap.Uint64("generation", gen),
			zap.String("identifier", raw),
			zap.Error(err))
		return
	}

	r.team = navTeam
	if teamID != "" {
		r.teams.SetCurrentTeamID(teamID)
	}
	outcome := r.navigator.Navigate(navTeam, target, err)
	r.state = StateIdle
	s := Settled{
		Generation: gen,
		Team:       navTeam,
		Identifier: id,
		Target:     target,
		Outcome:    outcome,
		Elapsed:    time.Since(start),
	}
	r.finishLocked(gen, result{settled: s})

	select {
	case r.settled <- s:
	default:
		r.logger.Debug("settled listener is behind, dropping event", zap.Uint64("generation", gen))
	}
	r.mu.Unlock()

	if r.recorder != nil && !outcome.Failed() {
		if err := r.recorder.SetLastPath(navTeam, outcome.Path); err != nil {
			r.logger.Warn("failed to remember location", zap.String("path", outcome.Path), zap.Error(err))
		}
	}
}

// lookupTeam returns the id of team, or "" when no switcher is set and the
// resolver should use its current team
func (r *Router) lookupTeam(ctx context.Context, team string) (string, error) {
	if r.teams == nil || team == "" {
		return "", nil
	}
	id, err := r.teams.TeamID(ctx, team)
	if err != nil {
		return "", fmt.Errorf("router: team %q: %w", team, err)
	}
	return id, nil
}

// finishLocked releases a Go call waiting on gen. r.mu must be held.
func (r *Router) finishLocked(gen uint64, res result) {
	if wait, ok := r.waiters[gen]; ok {
		wait <- res
		delete(r.waiters, gen)
	}
}

// Wait blocks until every dispatched resolution has finished
func (r *Router) Wait() {
	r.wg.Wait()
}

// Close cancels the resolution in flight, waits for all goroutines to exit
// and closes the Settled channel
func (r *Router) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.baseCancel()
		r.mu.Unlock()

		r.wg.Wait()

		r.mu.Lock()
		for gen := range r.waiters {
			r.finishLocked(gen, result{err: ErrClosed})
		}
		r.state = StateIdle
		r.mu.Unlock()

		close(r.settled)
	})
}
