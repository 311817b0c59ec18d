package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Retry and backoff constants for the transport-level retry loop.
const (
	maxRetries     = 3
	baseBackoff    = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "anycloud/0.1"
)

// burstMultiplier controls the throttle token bucket burst relative to the
// per-second rate.
const burstMultiplier = 2

// Authorizer attaches provider-specific credentials to an outgoing request.
// Bearer-token providers use SessionBearer; the signed-request provider
// supplies its own implementation.
type Authorizer interface {
	Authorize(req *http.Request) error
}

// SessionBearer authorizes requests with the session's current access token.
// It surfaces ErrNoAccessToken before any network I/O when the session holds
// no token.
type SessionBearer struct {
	Session *Session
}

func (b SessionBearer) Authorize(req *http.Request) error {
	tok, err := b.Session.AccessToken()
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+tok)

	return nil
}

// StaticBearer authorizes requests with a fixed token. Used by validation
// probes that test a candidate token before the session adopts it.
type StaticBearer string

func (b StaticBearer) Authorize(req *http.Request) error {
	if b == "" {
		return ErrNoAccessToken
	}

	req.Header.Set("Authorization", "Bearer "+string(b))

	return nil
}

// Request describes one provider API call. Path is appended to the client's
// base URL unless URL is set (next-link follow-ups, content hosts).
type Request struct {
	Method      string
	Path        string
	URL         string
	Query       url.Values
	Header      http.Header
	Body        io.Reader
	ContentType string

	// Auth overrides the client's authorizer for this request. Used by
	// token validation probes. NoAuth skips authorization entirely
	// (pre-authenticated content URLs).
	Auth   Authorizer
	NoAuth bool
}

// Client is the shared HTTP core under every adapter: request construction,
// authorization, transport retry with exponential backoff, throttled body
// streaming, and error classification into the cloud error taxonomy.
type Client struct {
	provider   Provider
	baseURL    string
	httpClient *http.Client
	auth       Authorizer
	logger     *slog.Logger
	limiter    *rate.Limiter

	readyDelay    time.Duration
	readyAttempts uint64

	// sleepFunc waits between retries. Tests override to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a provider API client rooted at baseURL.
func NewClient(provider Provider, baseURL string, auth Authorizer, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var limiter *rate.Limiter
	if opts.DownloadRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.DownloadRate), opts.DownloadRate*burstMultiplier)
	}

	delay := opts.ReadinessDelay
	if delay == 0 {
		delay = defaultReadinessDelay
	}

	attempts := opts.ReadinessAttempts
	if attempts == 0 {
		attempts = defaultReadinessAttempts
	}

	return &Client{
		provider:      provider,
		baseURL:       baseURL,
		httpClient:    httpClient,
		auth:          auth,
		logger:        logger,
		limiter:       limiter,
		readyDelay:    delay,
		readyAttempts: attempts,
		sleepFunc:     timeSleep,
	}
}

// BaseURL returns the client's API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do executes a request against the provider API. Responses outside 2xx are
// consumed and returned as a *RemoteError carrying the classification
// sentinel. The caller is responsible for closing the response body on
// success. Requests with a body are not retried — the reader is not
// replayable.
func (c *Client) Do(ctx context.Context, r Request) (*http.Response, error) {
	reqURL, err := c.requestURL(r)
	if err != nil {
		return nil, err
	}

	var attempt int
	for {
		resp, err := c.doOnce(ctx, r, reqURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &TransportError{Provider: c.provider, Op: opString(r), Err: ctx.Err()}
			}

			// Only failures of the HTTP round trip itself are retryable.
			// Authorization and request-construction errors happen before
			// any network I/O and surface immediately.
			var transportErr *TransportError
			if !errors.As(err, &transportErr) {
				return nil, err
			}

			if r.Body == nil && attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("provider", c.provider.String()),
					slog.String("op", opString(r)),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, &TransportError{Provider: c.provider, Op: opString(r), Err: sleepErr}
				}

				attempt++

				continue
			}

			return nil, err
		}

		// 2xx — success, including 202 which readiness wrappers inspect.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("provider", c.provider.String()),
				slog.String("op", opString(r)),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if r.Body == nil && isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("provider", c.provider.String()),
				slog.String("op", opString(r)),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, &TransportError{Provider: c.provider, Op: opString(r), Err: sleepErr}
			}

			attempt++

			continue
		}

		return nil, &RemoteError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(errBody)),
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, r Request, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, reqURL, r.Body)
	if err != nil {
		return nil, fmt.Errorf("cloud: creating request: %w", err)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	req.Header.Set("User-Agent", userAgent)

	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	} else if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if !r.NoAuth {
		auth := r.Auth
		if auth == nil {
			auth = c.auth
		}

		if auth != nil {
			if authErr := auth.Authorize(req); authErr != nil {
				return nil, authErr
			}
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: c.provider, Op: opString(r), Err: err}
	}

	return resp, nil
}

// requestURL resolves the effective URL for a request.
func (c *Client) requestURL(r Request) (string, error) {
	full := r.URL
	if full == "" {
		full = c.baseURL + r.Path
	}

	if len(r.Query) == 0 {
		return full, nil
	}

	u, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("cloud: parsing request URL %q: %w", full, err)
	}

	q := u.Query()
	for k, vs := range r.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	u.RawQuery = q.Encode()

	return u.String(), nil
}

// CopyBody streams a response body to w, applying the client's download
// throttle when configured. Returns bytes written.
func (c *Client) CopyBody(ctx context.Context, w io.Writer, body io.Reader) (int64, error) {
	if c.limiter == nil {
		n, err := io.Copy(w, body)
		if err != nil {
			return n, &TransportError{Provider: c.provider, Op: "streaming content", Err: err}
		}

		return n, nil
	}

	buf := make([]byte, 32*1024)

	var written int64

	for {
		nr, readErr := body.Read(buf)
		if nr > 0 {
			if waitErr := waitN(ctx, c.limiter, nr); waitErr != nil {
				return written, &TransportError{Provider: c.provider, Op: "throttling content", Err: waitErr}
			}

			nw, writeErr := w.Write(buf[:nr])
			written += int64(nw)

			if writeErr != nil {
				return written, &TransportError{Provider: c.provider, Op: "streaming content", Err: writeErr}
			}
		}

		if readErr == io.EOF {
			return written, nil
		}

		if readErr != nil {
			return written, &TransportError{Provider: c.provider, Op: "streaming content", Err: readErr}
		}
	}
}

// waitN reserves n tokens from the limiter. rate.Limiter.WaitN rejects
// requests exceeding the burst size, so oversized chunks wait in slices.
func waitN(ctx context.Context, limiter *rate.Limiter, n int) error {
	burst := limiter.Burst()

	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}

		if err := limiter.WaitN(ctx, chunk); err != nil {
			return err
		}

		n -= chunk
	}

	return nil
}

// retryBackoff returns the backoff for a retryable response. For 429
// responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// DrainClose consumes and closes a response body so the connection can be
// reused. Used after 204 responses and intermediate retries.
func DrainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body) //nolint:errcheck // best-effort drain
	body.Close()
}

// opString identifies a request for logs and errors. Absolute URLs are not
// included — content URLs can embed auth tokens.
func opString(r Request) string {
	if r.Path == "" {
		return r.Method + " (absolute url)"
	}

	return r.Method + " " + r.Path
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
