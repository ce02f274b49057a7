package driver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whisper-darkly/twitch-recorder/cookies"
	"github.com/whisper-darkly/twitch-recorder/stream"
)

const testMaster = `#EXTM3U
#EXT-X-MEDIA:TYPE=VIDEO,GROUP-ID="chunked",NAME="1080p60 (source)",AUTOSELECT=YES,DEFAULT=YES
#EXT-X-STREAM-INF:BANDWIDTH=6000000,RESOLUTION=1920x1080,CODECS="avc1.64002A,mp4a.40.2",VIDEO="chunked",FRAME-RATE=60.000
https://weaver.example/chunked.m3u8
#EXT-X-MEDIA:TYPE=VIDEO,GROUP-ID="480p30",NAME="480p",AUTOSELECT=YES,DEFAULT=YES
#EXT-X-STREAM-INF:BANDWIDTH=1400000,RESOLUTION=852x480,CODECS="avc1.4D401F,mp4a.40.2",VIDEO="480p30",FRAME-RATE=30.000
https://weaver.example/480p30.m3u8
`

const validTokenResponse = `[{
  "data": {"streamPlaybackAccessToken": {"__typename": "PlaybackAccessToken", "value": "{\"channel\":\"online_user\"}", "signature": "abc123"}},
  "extensions": {"durationMilliseconds": 42, "operationName": "PlaybackAccessToken", "requestID": "req-1"}
}]`

type fakeStatus struct {
	online map[string]bool
	err    error
	calls  atomic.Int32
}

func (f *fakeStatus) IsOnline(_ context.Context, channel string) (bool, error) {
	f.calls.Add(1)
	if f.err != nil {
		return false, f.err
	}
	return f.online[channel], nil
}

type platform struct {
	t        *testing.T
	server   *httptest.Server
	requests atomic.Int32

	siteBody  string
	tokenBody string
	master    string
	gqlStatus int

	gotClientID string
	gotAuth     string
	gotRequest  []gqlRequest
	gotQuery    string
}

func newPlatform(t *testing.T) *platform {
	p := &platform{
		t:         t,
		siteBody:  `<html><script>window.__twilightBuildID="x";clientId="kimne78kx3ncx6brgo4mv6wki5h1ko",</script></html>`,
		tokenBody: validTokenResponse,
		master:    testMaster,
		gqlStatus: http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/site", func(w http.ResponseWriter, r *http.Request) {
		p.requests.Add(1)
		_, _ = io.WriteString(w, p.siteBody)
	})
	mux.HandleFunc("/gql", func(w http.ResponseWriter, r *http.Request) {
		p.requests.Add(1)
		p.gotClientID = r.Header.Get("Client-ID")
		p.gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&p.gotRequest)
		w.WriteHeader(p.gqlStatus)
		_, _ = io.WriteString(w, p.tokenBody)
	})
	mux.HandleFunc("/hls/", func(w http.ResponseWriter, r *http.Request) {
		p.requests.Add(1)
		p.gotQuery = r.URL.RawQuery
		if !strings.HasSuffix(r.URL.Path, ".m3u8") {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, p.master)
	})
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *platform) driver(status stream.StatusSource) *Twitch {
	return NewTwitch(status, TwitchConfig{
		SiteURL:     p.server.URL + "/site",
		GQLURL:      p.server.URL + "/gql",
		PlaylistURL: p.server.URL + "/hls",
	})
}

func TestTwitch_IsOnline(t *testing.T) {
	p := newPlatform(t)
	status := &fakeStatus{online: map[string]bool{"online_user": true}}
	d := p.driver(status)

	online, err := d.IsOnline(context.Background(), "online_user")
	require.NoError(t, err)
	assert.True(t, online)

	online, err = d.IsOnline(context.Background(), "offline_user")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestTwitch_IsOnline_PropagatesAsNetworkError(t *testing.T) {
	p := newPlatform(t)
	d := p.driver(&fakeStatus{err: errors.New("connection refused")})

	_, err := d.IsOnline(context.Background(), "whoever")
	require.Error(t, err)
	assert.ErrorIs(t, err, stream.ErrNetwork)
}

func TestTwitch_SiteClientID(t *testing.T) {
	p := newPlatform(t)
	d := p.driver(&fakeStatus{})

	id, err := d.SiteClientID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "kimne78kx3ncx6brgo4mv6wki5h1ko", id)
}

func TestTwitch_SiteClientID_NotFound(t *testing.T) {
	p := newPlatform(t)
	p.siteBody = "<html>nothing to see</html>"
	d := p.driver(&fakeStatus{})

	_, err := d.SiteClientID(context.Background())
	assert.ErrorIs(t, err, stream.ErrBootstrap)
}

func TestTwitch_SiteClientID_FetchFailure(t *testing.T) {
	d := NewTwitch(&fakeStatus{}, TwitchConfig{SiteURL: "http://127.0.0.1:1/unreachable"})

	_, err := d.SiteClientID(context.Background())
	assert.ErrorIs(t, err, stream.ErrBootstrap)
}

func TestTwitch_OfflineShortCircuits(t *testing.T) {
	p := newPlatform(t)
	status := &fakeStatus{online: map[string]bool{}}
	d := p.driver(status)

	tok, err := d.PlaybackAccessToken(context.Background(), "offline_user")
	require.NoError(t, err)
	assert.Nil(t, tok)

	variants, err := d.Variants(context.Background(), "offline_user")
	require.NoError(t, err)
	assert.Nil(t, variants)

	assert.Equal(t, int32(2), status.calls.Load())
	assert.Equal(t, int32(0), p.requests.Load(), "no platform request beyond the status check")
}

func TestTwitch_PlaybackAccessToken(t *testing.T) {
	p := newPlatform(t)
	d := p.driver(&fakeStatus{online: map[string]bool{"online_user": true}})

	tok, err := d.PlaybackAccessToken(context.Background(), "online_user")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "abc123", tok.Signature)
	assert.Equal(t, `{"channel":"online_user"}`, tok.Value)

	assert.Equal(t, "kimne78kx3ncx6brgo4mv6wki5h1ko", p.gotClientID)
	require.Len(t, p.gotRequest, 1)
	assert.Equal(t, "PlaybackAccessToken", p.gotRequest[0].OperationName)
	assert.Equal(t, twitchTokenQueryHash, p.gotRequest[0].Extensions.PersistedQuery.SHA256Hash)
	assert.Equal(t, 1, p.gotRequest[0].Extensions.PersistedQuery.Version)
	assert.Equal(t, gqlVariables{IsLive: true, Login: "online_user", PlayerType: "embed"}, p.gotRequest[0].Variables)
}

func TestTwitch_PlaybackAccessToken_AuthCookie(t *testing.T) {
	p := newPlatform(t)
	d := NewTwitch(&fakeStatus{online: map[string]bool{"online_user": true}}, TwitchConfig{
		SiteURL:     p.server.URL + "/site",
		GQLURL:      p.server.URL + "/gql",
		PlaylistURL: p.server.URL + "/hls",
		Cookies:     cookies.NewPool([]string{"auth-token=secret; persistent=1"}),
	})

	_, err := d.PlaybackAccessToken(context.Background(), "online_user")
	require.NoError(t, err)
	assert.Equal(t, "OAuth secret", p.gotAuth)
}

func TestTwitch_PlaybackAccessToken_RejectedCookieIsPenalized(t *testing.T) {
	p := newPlatform(t)
	p.gqlStatus = http.StatusUnauthorized
	pool := cookies.NewPool([]string{"auth-token=bad", "auth-token=good"})
	d := NewTwitch(&fakeStatus{online: map[string]bool{"online_user": true}}, TwitchConfig{
		SiteURL:     p.server.URL + "/site",
		GQLURL:      p.server.URL + "/gql",
		PlaylistURL: p.server.URL + "/hls",
		Cookies:     pool,
	})

	_, err := d.PlaybackAccessToken(context.Background(), "online_user")
	require.Error(t, err)
	assert.ErrorIs(t, err, stream.ErrNetwork)
	var se *stream.StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Unauthorized())
	assert.Equal(t, "OAuth bad", p.gotAuth)

	// bad now has weight 1 against good's 2
	counts := map[string]int{}
	for i := 0; i < 30; i++ {
		counts[pool.Select().AuthToken]++
	}
	assert.Greater(t, counts["good"], counts["bad"])
}

func TestTwitch_PlaybackAccessToken_NotCached(t *testing.T) {
	p := newPlatform(t)
	d := p.driver(&fakeStatus{online: map[string]bool{"online_user": true}})

	_, err := d.PlaybackAccessToken(context.Background(), "online_user")
	require.NoError(t, err)
	_, err = d.PlaybackAccessToken(context.Background(), "online_user")
	require.NoError(t, err)

	assert.Equal(t, int32(4), p.requests.Load(), "site + gql per call")
}

func TestTwitch_PlaybackAccessToken_Malformed(t *testing.T) {
	cases := map[string]string{
		"missing signature": `[{"data":{"streamPlaybackAccessToken":{"__typename":"PlaybackAccessToken","value":"v"}},"extensions":{"durationMilliseconds":1,"operationName":"PlaybackAccessToken","requestID":"r"}}]`,
		"wrong typename":    `[{"data":{"streamPlaybackAccessToken":{"__typename":"Other","value":"v","signature":"s"}},"extensions":{"durationMilliseconds":1,"operationName":"PlaybackAccessToken","requestID":"r"}}]`,
		"null token":        `[{"data":{"streamPlaybackAccessToken":null},"extensions":{"durationMilliseconds":1,"operationName":"PlaybackAccessToken","requestID":"r"}}]`,
		"missing extension": `[{"data":{"streamPlaybackAccessToken":{"__typename":"PlaybackAccessToken","value":"v","signature":"s"}}}]`,
		"wrong operation":   `[{"data":{"streamPlaybackAccessToken":{"__typename":"PlaybackAccessToken","value":"v","signature":"s"}},"extensions":{"durationMilliseconds":1,"operationName":"Nope","requestID":"r"}}]`,
		"value not string":  `[{"data":{"streamPlaybackAccessToken":{"__typename":"PlaybackAccessToken","value":5,"signature":"s"}},"extensions":{"durationMilliseconds":1,"operationName":"PlaybackAccessToken","requestID":"r"}}]`,
		"not an array":      `{"data":{}}`,
		"empty array":       `[]`,
		"not json":          `<html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := newPlatform(t)
			p.tokenBody = body
			d := p.driver(&fakeStatus{online: map[string]bool{"online_user": true}})

			tok, err := d.PlaybackAccessToken(context.Background(), "online_user")
			require.Error(t, err)
			assert.ErrorIs(t, err, stream.ErrToken)
			assert.Nil(t, tok)
		})
	}
}

func TestTwitch_PlaybackAccessToken_HTTPError(t *testing.T) {
	p := newPlatform(t)
	p.gqlStatus = http.StatusInternalServerError
	d := p.driver(&fakeStatus{online: map[string]bool{"online_user": true}})

	_, err := d.PlaybackAccessToken(context.Background(), "online_user")
	assert.ErrorIs(t, err, stream.ErrNetwork)
}

func TestTwitch_Variants(t *testing.T) {
	p := newPlatform(t)
	d := p.driver(&fakeStatus{online: map[string]bool{"online_user": true}})

	variants, err := d.Variants(context.Background(), "online_user")
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, "https://weaver.example/chunked.m3u8", variants[0].URI)
	assert.Equal(t, 1080, variants[0].Height())

	assert.Contains(t, p.gotQuery, "sig=abc123")
	assert.Contains(t, p.gotQuery, "supported_codecs=av1%2Ch264")
	assert.Contains(t, p.gotQuery, "token=")
}

func TestTwitch_Variants_MediaPlaylistRejected(t *testing.T) {
	p := newPlatform(t)
	p.master = "#EXTM3U\n#EXT-X-TARGETDURATION:2\n#EXTINF:2.0,\nseg1.ts\n"
	d := p.driver(&fakeStatus{online: map[string]bool{"online_user": true}})

	_, err := d.Variants(context.Background(), "online_user")
	assert.ErrorIs(t, err, stream.ErrPlaylist)
}

func TestRegistry(t *testing.T) {
	_, err := stream.New("nope", stream.Options{})
	require.Error(t, err)

	_, err = stream.New("twitch", stream.Options{})
	require.Error(t, err, "client id is required")

	d, err := stream.New("twitch", stream.Options{ClientID: "id", ClientSecret: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "twitch", d.Name())
}
