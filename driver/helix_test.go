package driver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whisper-darkly/twitch-recorder/stream"
)

func newHelixServer(t *testing.T, live, known map[string]bool) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/streams", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "client", r.Header.Get("Client-Id"))
		login := r.URL.Query().Get("user_login")
		w.Header().Set("Content-Type", "application/json")
		if live[login] {
			_, _ = io.WriteString(w, `{"data":[{"id":"1","user_login":"`+login+`","type":"live"}],"pagination":{}}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":[],"pagination":{}}`)
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		login := r.URL.Query().Get("login")
		w.Header().Set("Content-Type", "application/json")
		if known[login] {
			_, _ = io.WriteString(w, `{"data":[{"id":"2","login":"`+login+`"}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":[]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestHelix(t *testing.T, baseURL string) *HelixStatus {
	h, err := NewHelixStatus(HelixOptions{
		ClientID:       "client",
		AppAccessToken: "test-token",
		APIBaseURL:     baseURL,
	})
	require.NoError(t, err)
	return h
}

func TestHelixStatus_IsOnline(t *testing.T) {
	srv := newHelixServer(t,
		map[string]bool{"online_user": true},
		map[string]bool{"online_user": true, "offline_user": true},
	)
	h := newTestHelix(t, srv.URL)

	online, err := h.IsOnline(context.Background(), "online_user")
	require.NoError(t, err)
	assert.True(t, online)

	online, err = h.IsOnline(context.Background(), "offline_user")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestHelixStatus_UnknownChannel(t *testing.T) {
	srv := newHelixServer(t, nil, nil)
	h := newTestHelix(t, srv.URL)

	_, err := h.IsOnline(context.Background(), "nobody_here")
	require.Error(t, err)
	assert.ErrorIs(t, err, stream.ErrNetwork)
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestHelixStatus_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Unauthorized","status":401,"message":"Invalid OAuth token"}`)
	}))
	t.Cleanup(srv.Close)
	h := newTestHelix(t, srv.URL)

	_, err := h.IsOnline(context.Background(), "online_user")
	require.Error(t, err)
	assert.ErrorIs(t, err, stream.ErrNetwork)
}

func TestHelixStatus_CanceledContext(t *testing.T) {
	h := newTestHelix(t, "http://127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.IsOnline(ctx, "online_user")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewHelixStatus_RequiresClientID(t *testing.T) {
	_, err := NewHelixStatus(HelixOptions{})
	assert.Error(t, err)
}

func TestHelixStatus_ExpiredTokenIsDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Unauthorized","status":401,"message":"Invalid OAuth token"}`)
	}))
	t.Cleanup(srv.Close)

	h, err := NewHelixStatus(HelixOptions{ClientID: "client", ClientSecret: "secret", APIBaseURL: srv.URL})
	require.NoError(t, err)
	h.client.SetAppAccessToken("stale")
	h.hasToken = true

	_, err = h.IsOnline(context.Background(), "online_user")
	require.ErrorIs(t, err, stream.ErrNetwork)
	assert.False(t, h.hasToken)

	// A token supplied by the caller is never discarded.
	fixed := newTestHelix(t, srv.URL)
	_, err = fixed.IsOnline(context.Background(), "online_user")
	require.ErrorIs(t, err, stream.ErrNetwork)
	assert.True(t, fixed.hasToken)
}

func TestHelixStatus_HonorsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	h := newTestHelix(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := h.IsOnline(ctx, "online_user")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.ErrorIs(t, err, stream.ErrNetwork)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, stream.TransientError, stream.Classify(err))
}

func TestHelixStatus_CancelMidRequest(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	h := newTestHelix(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := h.IsOnline(ctx, "online_user")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, h.doer.ctx, "query context must not outlive the call")
}

func TestHelixStatus_DefaultClientHasTimeout(t *testing.T) {
	h := newTestHelix(t, "http://127.0.0.1:1")
	c, ok := h.doer.next.(*http.Client)
	require.True(t, ok)
	assert.Equal(t, twitchRequestTimeout, c.Timeout)
}
