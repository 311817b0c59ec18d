package bitcasa

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

func TestStringToSign_CanonicalOrder(t *testing.T) {
	params := url.Values{
		"b":            {"2"},
		"a":            {"1"},
		"access_token": {"tok"},
	}

	got := stringToSign(http.MethodGet, "/folders/docs", params, "Mon, 02 Jan 2006 15:04:05 GMT")
	assert.Equal(t, "GET&/folders/docs&a=1&access_token=tok&b=2&Mon, 02 Jan 2006 15:04:05 GMT", got)
}

func TestStringToSign_RepeatedKeysSorted(t *testing.T) {
	params := url.Values{"k": {"z", "a"}}

	got := stringToSign(http.MethodPost, "/x", params, "d")
	assert.Equal(t, "POST&/x&k=a&k=z&d", got)
}

func TestSignature_Deterministic(t *testing.T) {
	params := url.Values{"access_token": {"tok"}}

	first := signature("secret", http.MethodGet, "/p", params, "date")
	second := signature("secret", http.MethodGet, "/p", params, "date")
	assert.Equal(t, first, second)

	// Any input change produces a different signature.
	assert.NotEqual(t, first, signature("other", http.MethodGet, "/p", params, "date"))
	assert.NotEqual(t, first, signature("secret", http.MethodPost, "/p", params, "date"))
	assert.NotEqual(t, first, signature("secret", http.MethodGet, "/q", params, "date"))
	assert.NotEqual(t, first, signature("secret", http.MethodGet, "/p", params, "later"))
}

func TestSigner_Authorize(t *testing.T) {
	fixed := time.Date(2015, 6, 1, 12, 0, 0, 0, time.UTC)

	s := &signer{
		clientID: "client-id",
		secret:   "client-secret",
		token:    func() (string, error) { return "access-token", nil },
		now:      func() time.Time { return fixed },
	}

	req, err := http.NewRequest(http.MethodGet, "http://api.example.com/folders/docs?depth=1", nil)
	require.NoError(t, err)

	require.NoError(t, s.Authorize(req))

	date := req.Header.Get("Date")
	assert.Equal(t, "Mon, 01 Jun 2015 12:00:00 GMT", date)

	q := req.URL.Query()
	assert.Equal(t, "access-token", q.Get("access_token"))
	assert.Equal(t, "1", q.Get("depth"))

	want := "BCS client-id:" + signature("client-secret", http.MethodGet, "/folders/docs", q, date)
	assert.Equal(t, want, req.Header.Get("Authorization"))
}

func TestSigner_TokenErrorStopsRequest(t *testing.T) {
	s := &signer{
		clientID: "client-id",
		secret:   "client-secret",
		token:    func() (string, error) { return "", cloud.ErrNoAccessToken },
		now:      time.Now,
	}

	req, err := http.NewRequest(http.MethodGet, "http://api.example.com/user/profile", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Authorize(req), cloud.ErrNoAccessToken)
	assert.Empty(t, req.Header.Get("Authorization"))
}
