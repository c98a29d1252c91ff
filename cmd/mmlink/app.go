package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/client"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/config"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/metrics"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/navigator"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/resolver"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/router"
)

// app is the wired link opener shared by the resolve and interactive commands
type app struct {
	config  config.Config
	logger  *zap.Logger
	state   *client.State
	cache   *client.Cache
	api     *client.APIClient
	metrics *metrics.Metrics
	history *navigator.MemoryHistory
	router  *router.Router

	metricsServer *http.Server
	listenerDone  chan struct{}
}

// openApp loads cached state, logs in, and wires resolver, navigator and
// router together
func openApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	dbPath, err := cfg.GetDatabasePath()
	if err != nil {
		return nil, err
	}
	state, err := client.OpenState(dbPath)
	if err != nil {
		return nil, err
	}

	cache := client.NewCache()
	if err := state.LoadCache(cache); err != nil {
		logger.Warn("ignoring unreadable cache snapshot", zap.Error(err))
	}

	api, err := client.NewAPIClient(client.ClientConfig{
		ServerURL: cfg.Server.URL,
		Token:     cfg.Server.Token,
		Timeout:   cfg.RequestTimeout(),
	}, cache)
	if err != nil {
		state.Close()
		return nil, err
	}
	api.SetLogger(logger.Named("api"))

	me, err := api.GetMe(ctx)
	if err != nil {
		state.Close()
		return nil, err
	}
	logger.Debug("logged in", zap.String("user_id", me.ID), zap.String("username", me.Username))

	team := cfg.Server.Team
	if team == "" {
		team = state.GetLastTeam()
	}
	if team != "" {
		if err := api.SwitchTeam(ctx, team); err != nil {
			state.Close()
			return nil, err
		}
	}

	start := "/"
	if team != "" {
		if last, err := state.GetLastPath(team); err == nil && last != "" {
			start = last
		}
	}

	m := metrics.New()
	history := navigator.NewMemoryHistory(start)

	nav := navigator.New(history, cfg.Navigation.DefaultChannel)
	nav.SetLogger(logger.Named("navigator"))
	nav.SetMetrics(m)
	if cfg.Notifications.Enabled {
		nav.SetNotifier(client.DesktopNotifier{IconPath: cfg.Notifications.IconPath})
	}

	res := resolver.New(cache, api, api)
	res.SetLogger(logger.Named("resolver"))
	res.SetMetrics(m)

	r := router.New(team, res, nav)
	r.SetTeamSwitcher(api)
	r.SetPathRecorder(state)
	r.SetLogger(logger.Named("router"))
	r.SetMetrics(m)

	return &app{
		config:  cfg,
		logger:  logger,
		state:   state,
		cache:   cache,
		api:     api,
		metrics: m,
		history: history,
		router:  r,
	}, nil
}

// startBackground serves metrics and keeps the cache current from the
// server's event feed until ctx is cancelled. It returns the applied-event
// stream, or nil when the listener could not be created.
func (a *app) startBackground(ctx context.Context) <-chan client.Event {
	if addr := a.config.Metrics.ListenAddress; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		a.metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		a.logger.Info("serving metrics", zap.String("address", addr))
	}

	listener, err := client.NewEventListener(a.config.Server.URL, a.config.Server.Token, a.cache, a.api)
	if err != nil {
		a.logger.Warn("live updates disabled", zap.Error(err))
		return nil
	}
	listener.SetLogger(a.logger.Named("events"))

	a.listenerDone = make(chan struct{})
	go func() {
		defer close(a.listenerDone)
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("event listener stopped", zap.Error(err))
		}
	}()
	return listener.Applied()
}

// resolve opens path and prints the location it settled on. A link that
// could not be opened still prints the fallback location.
func (a *app) resolve(ctx context.Context, path string, stdout, stderr io.Writer) error {
	if timeout := a.config.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	settled, err := a.router.Go(ctx, path)
	if err != nil {
		return err
	}

	if settled.Outcome.Failed() {
		fmt.Fprintf(stderr, "could not open %s: %s\n", path, resolver.KindOf(settled.Outcome.Err).UserMessage())
		a.logger.Debug("resolution failed", zap.Error(settled.Outcome.Err))
	}
	fmt.Fprintln(stdout, settled.Outcome.Path)

	if err := a.state.SaveCache(a.cache); err != nil {
		a.logger.Warn("failed to save cache", zap.Error(err))
	}
	if team := a.router.Team(); team != "" {
		if err := a.state.SetLastTeam(team); err != nil {
			a.logger.Warn("failed to save last team", zap.Error(err))
		}
	}
	return nil
}

// Close stops background work and closes the state database
func (a *app) Close() {
	a.router.Close()
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsServer.Shutdown(ctx)
	}
	if a.listenerDone != nil {
		// The listener exits once the context passed to startBackground ends
		<-a.listenerDone
	}
	if err := a.state.Close(); err != nil {
		a.logger.Warn("failed to close state", zap.Error(err))
	}
}
