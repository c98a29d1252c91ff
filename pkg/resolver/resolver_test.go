package resolver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/client"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/identifier"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/metrics"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/model"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/navigator"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/resolver"
)

const (
	meID    = "aaaaaaaaaaaaaaaaaaaaaaaaaa"
	johnID  = "bbbbbbbbbbbbbbbbbbbbbbbbbb"
	teamID  = "tttttttttttttttttttttttttt"
	chanID  = "abcdefghijabcdefghijabcdef"
	groupID = "0123456789abcdef0123456789abcdef01234567"
)

var john = model.User{ID: johnID, Username: "johndoe", Email: "john@example.com"}

type fixture struct {
	cache    *client.Cache
	remote   *client.MockRemote
	resolver *resolver.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cache := client.NewCache()
	cache.SetCurrentUser(&model.User{ID: meID, Username: "me"})
	cache.SetCurrentTeamID(teamID)

	remote := client.NewMockRemote(meID)
	return &fixture{
		cache:    cache,
		remote:   remote,
		resolver: resolver.New(cache, remote, remote),
	}
}

func (f *fixture) resolve(t *testing.T, raw string, ns identifier.Namespace) (resolver.Target, error) {
	t.Helper()
	return f.resolver.Resolve(context.Background(), identifier.Classify(raw, ns))
}

func TestResolveChannelIDCacheHitMakesNoCalls(t *testing.T) {
	f := newFixture(t)
	f.cache.AddChannel(&model.Channel{ID: chanID, TeamID: teamID, Name: "off-topic", Type: model.ChannelOpen})

	target, err := f.resolve(t, chanID, identifier.NamespaceChannels)
	require.NoError(t, err)

	assert.Equal(t, "off-topic", target.Channel.Name)
	assert.Equal(t, resolver.SourceCache, target.Source)
	assert.Equal(t, identifier.KindChannelID, target.Identifier.Kind)
	assert.Equal(t, 0, f.remote.CallCount())
}

func TestResolveChannelIDCacheMissJoinsOnce(t *testing.T) {
	f := newFixture(t)
	f.remote.AddChannel(model.Channel{ID: chanID, TeamID: teamID, Name: "town-square", Type: model.ChannelOpen})

	target, err := f.resolve(t, chanID, identifier.NamespaceChannels)
	require.NoError(t, err)

	calls := f.remote.CallsFor("join_channel")
	require.Len(t, calls, 1)
	assert.Equal(t, chanID, calls[0].ChannelID)
	assert.Empty(t, calls[0].ChannelName)
	assert.Equal(t, meID, calls[0].UserID)
	assert.Equal(t, teamID, calls[0].TeamID)
	assert.Equal(t, 1, f.remote.CallCount())

	assert.Equal(t, resolver.SourceRemote, target.Source)
	assert.Equal(t, "town-square", target.Channel.Name)
}

func TestResolveCachedChannelIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.cache.AddChannel(&model.Channel{ID: chanID, TeamID: teamID, Name: "off-topic", Type: model.ChannelOpen})

	first, err := f.resolve(t, chanID, identifier.NamespaceChannels)
	require.NoError(t, err)
	second, err := f.resolve(t, chanID, identifier.NamespaceChannels)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 0, f.remote.CallCount())
}

func TestResolveChannelName(t *testing.T) {
	t.Run("cache hit in current team", func(t *testing.T) {
		f := newFixture(t)
		f.cache.AddChannel(&model.Channel{ID: "c1", TeamID: teamID, Name: "off-topic", Type: model.ChannelOpen})
		f.cache.AddChannel(&model.Channel{ID: "c2", TeamID: "other", Name: "elsewhere", Type: model.ChannelOpen})

		target, err := f.resolve(t, "off-topic", identifier.NamespaceChannels)
		require.NoError(t, err)
		assert.Equal(t, "c1", target.Channel.ID)
		assert.Equal(t, 0, f.remote.CallCount())
	})

	t.Run("other team's channel is a cache miss", func(t *testing.T) {
		f := newFixture(t)
		f.cache.AddChannel(&model.Channel{ID: "c2", TeamID: "other", Name: "elsewhere", Type: model.ChannelOpen})
		f.remote.AddChannel(model.Channel{ID: "c3", TeamID: teamID, Name: "elsewhere", Type: model.ChannelOpen})

		target, err := f.resolve(t, "elsewhere", identifier.NamespaceChannels)
		require.NoError(t, err)
		assert.Equal(t, "c3", target.Channel.ID)

		calls := f.remote.CallsFor("join_channel")
		require.Len(t, calls, 1)
		assert.Empty(t, calls[0].ChannelID)
		assert.Equal(t, "elsewhere", calls[0].ChannelName)
	})

	t.Run("explicit team overrides the current one", func(t *testing.T) {
		f := newFixture(t)
		f.cache.AddChannel(&model.Channel{ID: "c1", TeamID: teamID, Name: "off-topic", Type: model.ChannelOpen})
		f.remote.AddChannel(model.Channel{ID: "c4", TeamID: "other", Name: "off-topic", Type: model.ChannelOpen})

		id := identifier.Classify("off-topic", identifier.NamespaceChannels)
		target, err := f.resolver.ResolveInTeam(context.Background(), "other", id)
		require.NoError(t, err)
		assert.Equal(t, "c4", target.Channel.ID)

		calls := f.remote.CallsFor("join_channel")
		require.Len(t, calls, 1)
		assert.Equal(t, "other", calls[0].TeamID)
		assert.Equal(t, teamID, f.cache.CurrentTeamID())
	})

	t.Run("unknown channel is not found", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.resolve(t, "nowhere", identifier.NamespaceChannels)
		require.Error(t, err)
		assert.True(t, errors.Is(err, resolver.ErrNotFound))
		assert.Equal(t, resolver.KindNotFound, resolver.KindOf(err))

		var apiErr *client.APIError
		assert.True(t, errors.As(err, &apiErr))
	})
}

func TestResolveGroupID(t *testing.T) {
	f := newFixture(t)
	f.cache.AddChannel(&model.Channel{ID: "g1", Name: groupID, Type: model.ChannelGroup})

	target, err := f.resolve(t, groupID, identifier.NamespaceMessages)
	require.NoError(t, err)
	assert.Equal(t, identifier.KindGroupID, target.Identifier.Kind)
	assert.True(t, target.Channel.IsGroup())
	assert.Nil(t, target.User)
	assert.Equal(t, 0, f.remote.CallCount())
}

func TestResolveUserIDPair(t *testing.T) {
	f := newFixture(t)
	f.remote.AddUser(john)

	target, err := f.resolve(t, model.DirectChannelName(johnID, meID), identifier.NamespaceChannels)
	require.NoError(t, err)

	assert.Equal(t, identifier.KindUserIDPair, target.Identifier.Kind)
	assert.True(t, target.Channel.IsDirect())
	require.NotNil(t, target.User)
	assert.Equal(t, "johndoe", target.User.Username)

	require.Len(t, f.remote.CallsFor("get_user"), 1)
	opens := f.remote.CallsFor("open_direct_channel")
	require.Len(t, opens, 1)
	assert.Equal(t, johnID, opens[0].Key)
}

func TestResolveMalformedUserIDPairIsInvalid(t *testing.T) {
	f := newFixture(t)
	pair := strings.Repeat("c", 26) + "__" + strings.Repeat("d", 26)

	_, err := f.resolve(t, pair, identifier.NamespaceChannels)
	require.Error(t, err)

	assert.True(t, errors.Is(err, resolver.ErrInvalidIdentifier))
	assert.True(t, errors.Is(err, model.ErrMalformedDirectName))
	assert.Equal(t, 0, f.remote.CallCount())
}

func TestResolveUsername(t *testing.T) {
	t.Run("cached user opens DM", func(t *testing.T) {
		f := newFixture(t)
		f.cache.AddUser(&john)

		target, err := f.resolve(t, "@johndoe", identifier.NamespaceMessages)
		require.NoError(t, err)

		assert.Equal(t, resolver.SourceCache, target.Source)
		assert.Equal(t, johnID, target.User.ID)
		assert.Equal(t, model.DirectChannelName(meID, johnID), target.Channel.Name)
		assert.Empty(t, f.remote.CallsFor("get_user_by_username"))
		assert.Len(t, f.remote.CallsFor("open_direct_channel"), 1)
	})

	t.Run("uncached user is fetched", func(t *testing.T) {
		f := newFixture(t)
		f.remote.AddUser(john)

		target, err := f.resolve(t, "@johndoe", identifier.NamespaceMessages)
		require.NoError(t, err)

		assert.Equal(t, resolver.SourceRemote, target.Source)
		calls := f.remote.CallsFor("get_user_by_username")
		require.Len(t, calls, 1)
		assert.Equal(t, "johndoe", calls[0].Key)
	})

	t.Run("remote failure", func(t *testing.T) {
		f := newFixture(t)
		f.remote.SetError("get_user_by_username", errors.New("connection reset"))

		_, err := f.resolve(t, "@johndoe", identifier.NamespaceMessages)
		require.Error(t, err)

		assert.True(t, errors.Is(err, resolver.ErrRemoteFailure))
		var resolveErr *resolver.Error
		require.True(t, errors.As(err, &resolveErr))
		assert.Equal(t, "get_user_by_username", resolveErr.Op)
		assert.Empty(t, f.remote.CallsFor("open_direct_channel"))
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.resolve(t, "@ghost", identifier.NamespaceMessages)
		assert.True(t, errors.Is(err, resolver.ErrNotFound))
	})
}

func TestResolveEmail(t *testing.T) {
	f := newFixture(t)
	f.remote.AddUser(john)

	target, err := f.resolve(t, "john@example.com", identifier.NamespaceMessages)
	require.NoError(t, err)

	assert.Equal(t, identifier.KindEmail, target.Identifier.Kind)
	assert.Equal(t, johnID, target.User.ID)
	assert.Len(t, f.remote.CallsFor("get_user_by_email"), 1)
}

func TestResolveUserID(t *testing.T) {
	f := newFixture(t)
	f.cache.AddUser(&john)

	target, err := f.resolve(t, johnID, identifier.NamespaceMessages)
	require.NoError(t, err)

	assert.Equal(t, identifier.KindUserID, target.Identifier.Kind)
	assert.True(t, target.Channel.IsDirect())
	assert.Empty(t, f.remote.CallsFor("get_user"))
}

func TestResolveOpenDirectFailure(t *testing.T) {
	f := newFixture(t)
	f.cache.AddUser(&john)
	f.remote.SetError("open_direct_channel", &client.APIError{Message: "forbidden", StatusCode: 403})

	_, err := f.resolve(t, "@johndoe", identifier.NamespaceMessages)
	assert.True(t, errors.Is(err, resolver.ErrRemoteFailure))
}

func TestResolveInvalidMessagesIdentifier(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolve(t, "johndoe", identifier.NamespaceMessages)
	require.Error(t, err)
	assert.Equal(t, resolver.KindInvalidIdentifier, resolver.KindOf(err))
	assert.Equal(t, 0, f.remote.CallCount())
}

func TestResolveEmptyUsernameMakesNoCalls(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolve(t, "@", identifier.NamespaceMessages)
	assert.Equal(t, resolver.KindInvalidIdentifier, resolver.KindOf(err))

	// Built by hand, past the classifier
	id := identifier.Identifier{Raw: "@", Namespace: identifier.NamespaceMessages, Kind: identifier.KindUsername}
	_, err = f.resolver.Resolve(context.Background(), id)
	assert.Equal(t, resolver.KindInvalidIdentifier, resolver.KindOf(err))
	assert.Equal(t, 0, f.remote.CallCount())
}

func TestResolveCachedDirectChannelAttachesUser(t *testing.T) {
	f := newFixture(t)
	dmID := strings.Repeat("d", 26)
	f.cache.AddChannel(&model.Channel{ID: dmID, Name: model.DirectChannelName(meID, johnID), Type: model.ChannelDirect})
	f.cache.AddUser(&john)

	target, err := f.resolve(t, dmID, identifier.NamespaceChannels)
	require.NoError(t, err)

	assert.Equal(t, resolver.SourceCache, target.Source)
	require.NotNil(t, target.User)
	assert.Equal(t, "johndoe", target.User.Username)
	assert.Equal(t, 0, f.remote.CallCount())
}

func TestResolveCollapsesConcurrentRemoteCalls(t *testing.T) {
	f := newFixture(t)
	f.remote.AddChannel(model.Channel{ID: chanID, TeamID: teamID, Name: "town-square", Type: model.ChannelOpen})
	f.remote.Block()

	var wg sync.WaitGroup
	results := make([]resolver.Target, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.resolve(t, chanID, identifier.NamespaceChannels)
		}(i)
	}

	require.Eventually(t, func() bool { return f.remote.CallCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	f.remote.Unblock()
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "town-square", results[i].Channel.Name)
	}
	assert.Equal(t, 1, f.remote.CallCount())
}

func TestResolveSharedCallSurvivesCancelledCaller(t *testing.T) {
	f := newFixture(t)
	f.remote.AddChannel(model.Channel{ID: chanID, TeamID: teamID, Name: "town-square", Type: model.ChannelOpen})
	f.remote.Block()

	staleCtx, cancelStale := context.WithCancel(context.Background())
	staleErr := make(chan error, 1)
	go func() {
		_, err := f.resolver.Resolve(staleCtx, identifier.Classify(chanID, identifier.NamespaceChannels))
		staleErr <- err
	}()
	require.Eventually(t, func() bool { return f.remote.CallCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	type outcome struct {
		target resolver.Target
		err    error
	}
	live := make(chan outcome, 1)
	go func() {
		target, err := f.resolve(t, chanID, identifier.NamespaceChannels)
		live <- outcome{target, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelStale()
	assert.ErrorIs(t, <-staleErr, context.Canceled)
	f.remote.Unblock()

	got := <-live
	require.NoError(t, got.err)
	assert.Equal(t, "town-square", got.target.Channel.Name)
	assert.Len(t, f.remote.CallsFor("join_channel"), 1)
}

func TestResolveHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	f.remote.AddChannel(model.Channel{ID: chanID, TeamID: teamID, Name: "town-square", Type: model.ChannelOpen})
	f.remote.Block()
	defer f.remote.Unblock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for f.remote.CallCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := f.resolver.Resolve(ctx, identifier.Classify(chanID, identifier.NamespaceChannels))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, resolver.KindRemoteFailure, resolver.KindOf(err))
}

func TestResolveRejectedJoinIsNeverCached(t *testing.T) {
	var posts int
	var mu sync.Mutex
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v4/channels/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.Channel{ID: chanID, TeamID: teamID, Name: "secret-room", Type: model.ChannelPrivate})
	})
	mux.HandleFunc("POST /api/v4/channels/{id}/members", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		posts++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "api.context.permissions.app_error", "message": "forbidden", "status_code": 403})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cache := client.NewCache()
	cache.SetCurrentUser(&model.User{ID: meID, Username: "me"})
	cache.SetCurrentTeamID(teamID)
	api, err := client.NewAPIClient(client.ClientConfig{ServerURL: srv.URL}, cache)
	require.NoError(t, err)
	res := resolver.New(cache, api, api)

	for i := 0; i < 2; i++ {
		_, err := res.Resolve(context.Background(), identifier.Classify(chanID, identifier.NamespaceChannels))
		require.Error(t, err)
		assert.Equal(t, resolver.KindRemoteFailure, resolver.KindOf(err))
	}

	_, cached := cache.ChannelByID(chanID)
	assert.False(t, cached)
	mu.Lock()
	assert.Equal(t, 2, posts)
	mu.Unlock()
}

func TestResolveRecordsMetrics(t *testing.T) {
	f := newFixture(t)
	m := metrics.New()
	f.resolver.SetMetrics(m)
	f.remote.AddUser(john)

	_, err := f.resolve(t, "@johndoe", identifier.NamespaceMessages)
	require.NoError(t, err)
	_, err = f.resolve(t, "nope", identifier.NamespaceMessages)
	require.Error(t, err)

	count, err := testutil.GatherAndCount(m.Registry(), "mmlink_resolutions_total", "mmlink_remote_calls_total")
	require.NoError(t, err)
	// resolutions: username/ok, invalid/invalid_identifier
	// remote calls: get_user_by_username/ok, open_direct_channel/ok
	assert.Equal(t, 4, count)
}

// Scenarios run the full classify, resolve and navigate pipeline

func TestScenarioUnknownChannelIDJoinsAndReplaces(t *testing.T) {
	f := newFixture(t)
	f.remote.AddChannel(model.Channel{ID: chanID, TeamID: teamID, Name: "town-square", Type: model.ChannelOpen})
	history := navigator.NewMemoryHistory("/foo/channels/" + chanID)
	nav := navigator.New(history, "")

	target, err := f.resolve(t, chanID, identifier.NamespaceChannels)
	out := nav.Navigate("foo", target, err)

	assert.Equal(t, "/foo/channels/town-square", out.Path)
	assert.Equal(t, []navigator.Mutation{{Path: "/foo/channels/town-square", Replace: true}}, history.Mutations())
}

func TestScenarioUsernameFailurePushesDefault(t *testing.T) {
	for _, tc := range []struct {
		team string
		want string
	}{
		{team: "foo", want: "/foo/channels/town-square"},
		{team: "", want: "/"},
	} {
		t.Run("team="+tc.team, func(t *testing.T) {
			f := newFixture(t)
			f.remote.SetError("get_user_by_username", errors.New("500 internal"))
			history := navigator.NewMemoryHistory("")
			nav := navigator.New(history, "")

			target, err := f.resolve(t, "@johndoe", identifier.NamespaceMessages)
			out := nav.Navigate(tc.team, target, err)

			assert.True(t, out.Failed())
			assert.Equal(t, []navigator.Mutation{{Path: tc.want}}, history.Mutations())
		})
	}
}

func TestScenarioDirectMessageReplacesWithUsername(t *testing.T) {
	f := newFixture(t)
	f.remote.AddUser(john)
	history := navigator.NewMemoryHistory("")
	nav := navigator.New(history, "")

	target, err := f.resolve(t, johnID, identifier.NamespaceMessages)
	out := nav.Navigate("foo", target, err)

	assert.Equal(t, "/foo/messages/@johndoe", out.Path)
	assert.True(t, out.Replace)
}
