package bitcasa

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // the provider's signature scheme mandates SHA-1
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// signature computes the request signature: base64 HMAC-SHA1 over
// method&path&sorted-params&date.
func signature(secret, method, path string, params url.Values, date string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(stringToSign(method, path, params, date)))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// stringToSign builds the canonical signing input. Parameters are sorted by
// key, then by value for repeated keys.
func stringToSign(method, path string, params url.Values, date string) string {
	var sb strings.Builder

	sb.WriteString(method)
	sb.WriteString("&")
	sb.WriteString(path)
	sb.WriteString("&")
	sb.WriteString(canonicalParams(params))
	sb.WriteString("&")
	sb.WriteString(date)

	return sb.String()
}

func canonicalParams(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var pairs []string

	for _, k := range keys {
		vs := append([]string(nil), params[k]...)
		sort.Strings(vs)

		for _, v := range vs {
			pairs = append(pairs, k+"="+v)
		}
	}

	return strings.Join(pairs, "&")
}

// signer authorizes requests with the provider's signed-header scheme. The
// access token rides as a query parameter and is covered by the signature,
// so token retrieval failures surface before any network I/O.
type signer struct {
	clientID string
	secret   string
	token    func() (string, error)

	// now is the clock for the Date header. Tests override it.
	now func() time.Time
}

func (s *signer) Authorize(req *http.Request) error {
	token, err := s.token()
	if err != nil {
		return err
	}

	q := req.URL.Query()
	q.Set("access_token", token)
	req.URL.RawQuery = q.Encode()

	date := s.now().UTC().Format(http.TimeFormat)
	req.Header.Set("Date", date)

	sig := signature(s.secret, req.Method, req.URL.Path, q, date)
	req.Header.Set("Authorization", "BCS "+s.clientID+":"+sig)

	return nil
}
