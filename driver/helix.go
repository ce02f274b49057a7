package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/nicklaw5/helix/v2"
	"github.com/whisper-darkly/twitch-recorder/stream"
)

// ErrUnknownChannel means the platform has no user with the given login.
var ErrUnknownChannel = errors.New("unknown channel")

// HelixOptions configures the Helix-backed status source.
type HelixOptions struct {
	ClientID       string
	ClientSecret   string
	AppAccessToken string // skips the client-credentials exchange when set
	APIBaseURL     string
	UserAgent      string
	HTTPClient     helix.HTTPClient
}

// HelixStatus answers live-status queries through the Twitch Helix API using
// an app access token.
type HelixStatus struct {
	mu          sync.Mutex
	client      *helix.Client
	doer        *ctxDoer
	hasToken    bool
	refreshable bool // token came from the client-credentials exchange
}

// ctxDoer sends helix requests under the context of the query in flight.
// helix binds one context per client, so the query context is swapped in
// here while h.mu is held.
type ctxDoer struct {
	ctx  context.Context
	next helix.HTTPClient
}

func (d *ctxDoer) Do(req *http.Request) (*http.Response, error) {
	if d.ctx != nil {
		req = req.WithContext(d.ctx)
	}
	return d.next.Do(req)
}

// NewHelixStatus creates a status source. The app access token is requested
// lazily on the first query.
func NewHelixStatus(opts HelixOptions) (*HelixStatus, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("twitch client id is required for status checks")
	}
	next := opts.HTTPClient
	if next == nil {
		next = &http.Client{Timeout: twitchRequestTimeout}
	}
	doer := &ctxDoer{next: next}
	client, err := helix.NewClient(&helix.Options{
		ClientID:       opts.ClientID,
		ClientSecret:   opts.ClientSecret,
		AppAccessToken: opts.AppAccessToken,
		APIBaseURL:     opts.APIBaseURL,
		UserAgent:      opts.UserAgent,
		HTTPClient:     doer,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create a helix client object: %w", err)
	}
	return &HelixStatus{
		client:      client,
		doer:        doer,
		hasToken:    opts.AppAccessToken != "",
		refreshable: opts.AppAccessToken == "",
	}, nil
}

// IsOnline reports whether channel currently has a live stream. Unknown
// channels and API failures are stream.ErrNetwork.
func (h *HelixStatus) IsOnline(ctx context.Context, channel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.doer.ctx = ctx
	defer func() { h.doer.ctx = nil }()

	if err := h.ensureToken(); err != nil {
		return false, requestError(ctx, "authenticate", err)
	}

	streams, err := h.client.GetStreams(&helix.StreamsParams{UserLogins: []string{channel}, First: 1})
	if err != nil {
		return false, requestError(ctx, "get streams", err)
	}
	if streams.ErrorStatus != 0 {
		if streams.ErrorStatus == http.StatusUnauthorized && h.refreshable {
			// expired app token, request a new one next time
			h.hasToken = false
		}
		return false, fmt.Errorf("%w: get streams: %d %v: %v", stream.ErrNetwork, streams.ErrorStatus, streams.Error, streams.ErrorMessage)
	}
	if len(streams.Data.Streams) > 0 {
		return true, nil
	}

	// Offline and nonexistent look the same in /streams.
	users, err := h.client.GetUsers(&helix.UsersParams{Logins: []string{channel}})
	if err != nil {
		return false, requestError(ctx, "get users", err)
	}
	if users.ErrorStatus != 0 {
		return false, fmt.Errorf("%w: get users: %d %v: %v", stream.ErrNetwork, users.ErrorStatus, users.Error, users.ErrorMessage)
	}
	if len(users.Data.Users) == 0 {
		return false, fmt.Errorf("%w: %w: %q", stream.ErrNetwork, ErrUnknownChannel, channel)
	}
	return false, nil
}

// ensureToken must be called with h.mu held.
func (h *HelixStatus) ensureToken() error {
	if h.hasToken {
		return nil
	}
	resp, err := h.client.RequestAppAccessToken(nil)
	if err != nil {
		return fmt.Errorf("unable to get app access token: %w", err)
	}
	if resp.ErrorStatus != 0 {
		return fmt.Errorf("unable to get app access token (the response contains an error): %d %v: %v", resp.ErrorStatus, resp.Error, resp.ErrorMessage)
	}
	h.client.SetAppAccessToken(resp.Data.AccessToken)
	h.hasToken = true
	return nil
}

// requestError wraps a failed helix call in stream.ErrNetwork. When the query
// context ended, its error is reported so callers can tell a cancellation
// from an outage.
func requestError(ctx context.Context, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return fmt.Errorf("%w: %s: %w", stream.ErrNetwork, what, err)
}
