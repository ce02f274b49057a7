package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/whisper-darkly/twitch-recorder/cookies"
	"github.com/whisper-darkly/twitch-recorder/logger"
	"github.com/whisper-darkly/twitch-recorder/stream"
)

const (
	twitchDefaultSiteURL     = "https://www.twitch.tv"
	twitchDefaultGQLURL      = "https://gql.twitch.tv/gql"
	twitchDefaultPlaylistURL = "https://usher.ttvnw.net/api/channel/hls/"

	twitchTokenOperation = "PlaybackAccessToken"
	twitchTokenQueryHash = "0828119ded1c13477966434e15800ff57ddacf13ba1911c129dc2200705b0712"

	twitchRequestTimeout = 15 * time.Second
)

var siteClientIDPattern = regexp.MustCompile(`clientId="([A-Za-z0-9]+)"`)

func init() {
	stream.Register("twitch", func(opts stream.Options) (stream.Driver, error) {
		status, err := NewHelixStatus(HelixOptions{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			APIBaseURL:   opts.APIBaseURL,
			UserAgent:    opts.UserAgent,
			HTTPClient:   &http.Client{Timeout: twitchRequestTimeout},
		})
		if err != nil {
			return nil, err
		}
		return NewTwitch(status, TwitchConfig{
			HTTP:        stream.NewHTTPClient(opts.UserAgent, twitchRequestTimeout),
			SiteURL:     opts.SiteURL,
			GQLURL:      opts.GQLURL,
			PlaylistURL: opts.PlaylistURL,
			Cookies:     opts.Cookies,
			Log:         opts.Log,
		}), nil
	})
}

// TwitchConfig holds the endpoints and collaborators of the Twitch driver.
// Empty URLs mean the public platform endpoints.
type TwitchConfig struct {
	HTTP        *stream.HTTPClient
	SiteURL     string
	GQLURL      string
	PlaylistURL string
	Cookies     *cookies.Pool // auth-token cookies for the token exchange, may be nil
	Log         *logger.Logger
}

// Twitch resolves twitch.tv channels into HLS variants:
// live status → site client id → playback access token → master playlist.
type Twitch struct {
	status      stream.StatusSource
	http        *stream.HTTPClient
	siteURL     string
	gqlURL      string
	playlistURL string
	cookies     *cookies.Pool
	log         *logger.Logger
}

// NewTwitch creates a Twitch driver using status for live checks.
func NewTwitch(status stream.StatusSource, cfg TwitchConfig) *Twitch {
	t := &Twitch{
		status:      status,
		http:        cfg.HTTP,
		siteURL:     cfg.SiteURL,
		gqlURL:      cfg.GQLURL,
		playlistURL: cfg.PlaylistURL,
		cookies:     cfg.Cookies,
		log:         cfg.Log,
	}
	if t.http == nil {
		t.http = stream.NewHTTPClient("", 0)
	}
	if t.siteURL == "" {
		t.siteURL = twitchDefaultSiteURL
	}
	if t.gqlURL == "" {
		t.gqlURL = twitchDefaultGQLURL
	}
	if t.playlistURL == "" {
		t.playlistURL = twitchDefaultPlaylistURL
	}
	if !strings.HasSuffix(t.playlistURL, "/") {
		t.playlistURL += "/"
	}
	if t.log == nil {
		t.log = logger.Nop()
	}
	t.log = t.log.With("file", "driver/twitch")
	return t
}

func (t *Twitch) Name() string { return "twitch" }

// IsOnline reports whether channel is live. Status service failures and
// channels unknown to the platform are returned as stream.ErrNetwork.
func (t *Twitch) IsOnline(ctx context.Context, channel string) (bool, error) {
	online, err := t.status.IsOnline(ctx, channel)
	if err != nil {
		observeResolve("status", err)
		if errors.Is(err, stream.ErrNetwork) {
			return false, err
		}
		return false, fmt.Errorf("%w: %w", stream.ErrNetwork, err)
	}
	observeResolve("status", nil)
	t.log.Debug("%s online=%t", channel, online)
	return online, nil
}

// SiteClientID fetches the public site and extracts the client id embedded in it.
func (t *Twitch) SiteClientID(ctx context.Context) (string, error) {
	body, err := t.http.Get(ctx, t.siteURL)
	if err != nil {
		observeResolve("bootstrap", err)
		return "", fmt.Errorf("%w: fetch site: %w", stream.ErrBootstrap, err)
	}

	m := siteClientIDPattern.FindStringSubmatch(body)
	if len(m) < 2 || m[1] == "" {
		err := fmt.Errorf("%w: client id not found in site html", stream.ErrBootstrap)
		observeResolve("bootstrap", err)
		return "", err
	}
	observeResolve("bootstrap", nil)
	return m[1], nil
}

// PlaybackAccessToken returns a fresh token, or nil when the channel is offline.
func (t *Twitch) PlaybackAccessToken(ctx context.Context, channel string) (*stream.PlaybackAccessToken, error) {
	online, err := t.IsOnline(ctx, channel)
	if err != nil {
		return nil, err
	}
	if !online {
		return nil, nil
	}

	clientID, err := t.SiteClientID(ctx)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Client-ID": clientID}
	cred := t.cookies.Select()
	if cred.AuthToken != "" {
		headers["Authorization"] = "OAuth " + cred.AuthToken
	}

	body, err := t.http.PostJSON(ctx, t.gqlURL, headers, []gqlRequest{newTokenRequest(channel)})
	if err != nil {
		observeResolve("token", err)
		var se *stream.StatusError
		if cred.AuthToken != "" && errors.As(err, &se) && se.Unauthorized() {
			t.log.Warn("auth token rejected (%d), deprioritizing it", se.Code)
			t.cookies.Penalize(cred)
		}
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	token, err := decodeTokenResponse(body)
	observeResolve("token", err)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Variants returns the channel's master playlist variants in platform order,
// or nil when the channel is offline.
func (t *Twitch) Variants(ctx context.Context, channel string) ([]stream.Variant, error) {
	token, err := t.PlaybackAccessToken(ctx, channel)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, nil
	}

	params := url.Values{
		"supported_codecs": {"av1,h264"},
		"sig":              {token.Signature},
		"token":            {token.Value},
	}
	masterURL := t.playlistURL + url.PathEscape(channel) + ".m3u8?" + params.Encode()

	body, err := t.http.Get(ctx, masterURL)
	if err != nil {
		observeResolve("playlist", err)
		return nil, fmt.Errorf("fetch master playlist: %w", err)
	}

	variants, err := stream.ParseMasterPlaylist(body, masterURL)
	observeResolve("playlist", err)
	if err != nil {
		return nil, err
	}
	t.log.Debug("%s: %d variants", channel, len(variants))
	return variants, nil
}
