package cloud

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient builds a client with instant retries against srvURL.
func newTestClient(t *testing.T, provider Provider, srvURL string, auth Authorizer) *Client {
	t.Helper()

	c := NewClient(provider, srvURL, auth, Options{})
	c.sleepFunc = func(_ context.Context, _ time.Duration) error { return nil }

	return c
}

func TestDo_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/folders/0/items", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := newTestClient(t, ProviderBox, srv.URL, StaticBearer("tok-1"))

	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/folders/0/items",
		Query:  url.Values{"limit": {"100"}},
	})
	require.NoError(t, err)

	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDo_NoAccessToken_NoNetworkCall(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, ProviderBox, srv.URL, StaticBearer(""))

	// Authorization failures are not transport failures: no retry, no backoff.
	var sleeps int
	c.sleepFunc = func(_ context.Context, _ time.Duration) error {
		sleeps++
		return nil
	}

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users/me"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAccessToken)
	assert.Equal(t, int32(0), calls.Load())
	assert.Zero(t, sleeps)
}

func TestDo_AuthorizerErrorNotRetried(t *testing.T) {
	session := NewSession(ProviderBox, "acct-1", nil, nil, SessionHooks{}, nil)
	c := newTestClient(t, ProviderBox, "http://unused.example", SessionBearer{Session: session})

	var sleeps int
	c.sleepFunc = func(_ context.Context, _ time.Duration) error {
		sleeps++
		return nil
	}

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users/me"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAccessToken)
	assert.Zero(t, sleeps)
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrConflict},
		{"forbidden", http.StatusForbidden, ErrForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, `{"message":"nope"}`)
			}))
			defer srv.Close()

			c := newTestClient(t, ProviderDropbox, srv.URL, StaticBearer("t"))

			_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			var remote *RemoteError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, tc.status, remote.StatusCode)
			assert.Equal(t, ProviderDropbox, remote.Provider)
			assert.Contains(t, remote.Message, "nope")
		})
	}
}

func TestDo_RetriesServerError(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := newTestClient(t, ProviderYandex, srv.URL, StaticBearer("t"))

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/disk"})
	require.NoError(t, err)

	defer resp.Body.Close()
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_BodyNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, ProviderYandex, srv.URL, StaticBearer("t"))

	_, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/upload",
		Body:   nopReader{},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(1), calls.Load())
}

type nopReader struct{}

func (nopReader) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("empty")
}

func TestDo_AbsoluteURLOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/content/abc", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, ProviderOneDrive, "http://unused.example", StaticBearer("t"))

	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		URL:    srv.URL + "/content/abc",
		NoAuth: true,
	})
	require.NoError(t, err)
	resp.Body.Close()
}

func TestCopyBody_Throttled(t *testing.T) {
	c := NewClient(ProviderBox, "http://unused.example", nil, Options{DownloadRate: 1 << 20})

	src := make([]byte, 64*1024)

	var dst testBuffer

	n, err := c.CopyBody(context.Background(), &dst, bytes.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, int64(len(src)), n)
	assert.Equal(t, len(src), dst.n)
}

type testBuffer struct{ n int }

func (b *testBuffer) Write(p []byte) (int, error) {
	b.n += len(p)
	return len(p), nil
}
