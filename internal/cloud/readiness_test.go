package cloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newReadyClient builds a client with a short readiness delay for tests.
func newReadyClient(t *testing.T, srvURL string, attempts uint64) *Client {
	t.Helper()

	return NewClient(ProviderBox, srvURL, StaticBearer("t"), Options{
		ReadinessDelay:    time.Millisecond,
		ReadinessAttempts: attempts,
	})
}

func TestDoReady_ProcessingThenReady(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "content-bytes")
	}))
	defer srv.Close()

	c := newReadyClient(t, srv.URL, 6)

	resp, err := c.DoReady(context.Background(), Request{Method: http.MethodGet, Path: "/files/1/content"})
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "content-bytes", string(body))
	assert.Equal(t, int32(2), calls.Load(), "exactly two requests")
}

func TestDoReady_BoundedAttempts(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := newReadyClient(t, srv.URL, 3)

	_, err := c.DoReady(context.Background(), Request{Method: http.MethodGet, Path: "/files/1/content"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)

	// Initial attempt plus the bounded retries, never more.
	assert.Equal(t, int32(4), calls.Load())
}

func TestDoReady_ErrorPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newReadyClient(t, srv.URL, 6)

	_, err := c.DoReady(context.Background(), Request{Method: http.MethodGet, Path: "/files/1/content"})
	assert.ErrorIs(t, err, ErrNotFound)
}
