package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/model"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/resolver"
)

const apiPrefix = "/api/v4"

// maxResponseSize bounds how much of a response body is read
const maxResponseSize = 4 << 20

// APIError is the structured error body returned by the server.
// Callers can use errors.As to inspect it:
//
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden { ... }
type APIError struct {
	ID         string `json:"id"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id"`
	StatusCode int    `json:"status_code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %s (%d): %s", e.ID, e.StatusCode, e.Message)
}

// NotFound reports whether the server said the entity does not exist
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// ClientConfig configures an APIClient
type ClientConfig struct {
	// ServerURL is the server's base URL, e.g. "https://chat.example.com"
	ServerURL string
	// Token is a session or personal access token sent as a bearer token
	Token string
	// Timeout bounds each request; zero means no client-side timeout
	Timeout time.Duration
	// HTTPClient overrides the default client (tests)
	HTTPClient *http.Client
}

// APIClient talks to the server REST API and writes what it fetches into a Cache
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	cache      *Cache
	logger     *zap.Logger
}

// NewAPIClient creates a REST client. Fetched entities are stored in cache.
func NewAPIClient(config ClientConfig, cache *Cache) (*APIClient, error) {
	if config.ServerURL == "" {
		return nil, errors.New("client: server URL is required")
	}
	u, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: server URL must be http or https, got %q", u.Scheme)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if cache == nil {
		cache = NewCache()
	}

	return &APIClient{
		baseURL:    strings.TrimRight(config.ServerURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		cache:      cache,
		logger:     zap.NewNop(),
	}, nil
}

// SetLogger sets a logger for request tracing
func (c *APIClient) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.logger = logger
}

// Cache returns the cache this client writes into
func (c *APIClient) Cache() *Cache {
	return c.cache
}

// GetMe fetches the logged-in user and records it as the current user
func (c *APIClient) GetMe(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.doJSON(ctx, http.MethodGet, "/users/me", nil, &user); err != nil {
		return nil, fmt.Errorf("client: get current user: %w", err)
	}
	c.cache.SetCurrentUser(&user)
	return &user, nil
}

// GetTeamByName fetches a team by its URL name
func (c *APIClient) GetTeamByName(ctx context.Context, name string) (*model.Team, error) {
	var team model.Team
	if err := c.doJSON(ctx, http.MethodGet, "/teams/name/"+url.PathEscape(name), nil, &team); err != nil {
		return nil, fmt.Errorf("client: get team %q: %w", name, err)
	}
	c.cache.AddTeam(&team)
	return &team, nil
}

// TeamID returns the id of the named team, asking the server only for
// teams not seen before. It does not change the current team.
func (c *APIClient) TeamID(ctx context.Context, name string) (string, error) {
	if id, ok := c.cache.TeamIDByName(name); ok {
		return id, nil
	}
	team, err := c.GetTeamByName(ctx, name)
	if err != nil {
		return "", err
	}
	return team.ID, nil
}

// SetCurrentTeamID makes teamID current for channel-name lookups
func (c *APIClient) SetCurrentTeamID(teamID string) {
	c.cache.SetCurrentTeamID(teamID)
}

// SwitchTeam makes the named team current for channel-name lookups
func (c *APIClient) SwitchTeam(ctx context.Context, name string) error {
	id, err := c.TeamID(ctx, name)
	if err != nil {
		return err
	}
	c.cache.SetCurrentTeamID(id)
	return nil
}

// GetChannel fetches a channel by id
func (c *APIClient) GetChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	ch, err := c.fetchChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	c.cache.AddChannel(ch)
	return ch, nil
}

// GetChannelByName fetches a channel by team and name, including archived ones
func (c *APIClient) GetChannelByName(ctx context.Context, teamID, name string) (*model.Channel, error) {
	ch, err := c.fetchChannelByName(ctx, teamID, name)
	if err != nil {
		return nil, err
	}
	c.cache.AddChannel(ch)
	return ch, nil
}

func (c *APIClient) fetchChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	var ch model.Channel
	if err := c.doJSON(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID), nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *APIClient) fetchChannelByName(ctx context.Context, teamID, name string) (*model.Channel, error) {
	path := "/teams/" + url.PathEscape(teamID) + "/channels/name/" + url.PathEscape(name)
	query := url.Values{"include_deleted": {"true"}}
	var ch model.Channel
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &ch, query); err != nil {
		return nil, err
	}
	return &ch, nil
}

// JoinChannel implements resolver.Remote. The channel is looked up by id or
// by name, then the user is added as a member. DM and GM channels cannot be
// joined, so for those membership is only read back. The channel is cached
// only once membership is confirmed.
func (c *APIClient) JoinChannel(ctx context.Context, userID, teamID, channelID, channelName string) (*model.Channel, error) {
	if (channelID == "") == (channelName == "") {
		return nil, errors.New("client: join channel needs exactly one of id or name")
	}

	var (
		ch  *model.Channel
		err error
	)
	if channelID != "" {
		ch, err = c.fetchChannel(ctx, channelID)
	} else {
		ch, err = c.fetchChannelByName(ctx, teamID, channelName)
	}
	if err != nil {
		return nil, fmt.Errorf("client: join channel: %w", err)
	}

	membersPath := "/channels/" + url.PathEscape(ch.ID) + "/members"
	if ch.IsDirect() || ch.IsGroup() {
		err = c.doJSON(ctx, http.MethodGet, membersPath+"/"+url.PathEscape(userID), nil, nil)
	} else {
		err = c.doJSON(ctx, http.MethodPost, membersPath, map[string]string{"user_id": userID}, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("client: join channel %s: %w", ch.ID, err)
	}

	c.cache.AddChannel(ch)
	c.logger.Debug("joined channel", zap.String("channel_id", ch.ID), zap.String("name", ch.Name))
	return ch, nil
}

// GetUser implements resolver.Remote
func (c *APIClient) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return c.getUser(ctx, "/users/"+url.PathEscape(userID))
}

// GetUserByUsername implements resolver.Remote
func (c *APIClient) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return c.getUser(ctx, "/users/username/"+url.PathEscape(username))
}

// GetUserByEmail implements resolver.Remote
func (c *APIClient) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return c.getUser(ctx, "/users/email/"+url.PathEscape(email))
}

func (c *APIClient) getUser(ctx context.Context, path string) (*model.User, error) {
	var user model.User
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &user); err != nil {
		return nil, fmt.Errorf("client: get user: %w", err)
	}
	c.cache.AddUser(&user)
	return &user, nil
}

// OpenDirectChannel implements resolver.DirectOpener. The server creates the
// DM on first use and returns the existing one afterwards.
func (c *APIClient) OpenDirectChannel(ctx context.Context, userID string) (*model.Channel, error) {
	me := c.cache.CurrentUserID()
	if me == "" {
		return nil, errors.New("client: open direct channel: current user unknown")
	}

	var ch model.Channel
	if err := c.doJSON(ctx, http.MethodPost, "/channels/direct", []string{me, userID}, &ch); err != nil {
		return nil, fmt.Errorf("client: open direct channel with %s: %w", userID, err)
	}
	c.cache.AddChannel(&ch)
	return &ch, nil
}

// doJSON performs a request against the API and decodes the JSON response
// into out (if non-nil). Non-2xx responses are returned as *APIError.
func (c *APIClient) doJSON(ctx context.Context, method, path string, body, out any, query ...url.Values) error {
	requestURL := c.baseURL + apiPrefix + path
	if len(query) > 0 && query[0] != nil {
		requestURL += "?" + query[0].Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("X-Requested-With", "XMLHttpRequest")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", response.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		apiErr := &APIError{}
		if jsonErr := json.Unmarshal(responseBody, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(responseBody))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(response.StatusCode)
			}
		}
		apiErr.StatusCode = response.StatusCode
		return apiErr
	}

	if out == nil || len(responseBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to parse response from %s %s: %w", method, path, err)
	}
	return nil
}

var (
	_ resolver.Remote       = (*APIClient)(nil)
	_ resolver.DirectOpener = (*APIClient)(nil)
)
