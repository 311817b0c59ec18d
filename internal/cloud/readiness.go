package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// Readiness retry defaults. Right after an upload, download and thumbnail
// requests can answer 202 "processing" until the provider has finished
// ingesting the content. The retry is bounded — an endlessly processing
// file fails with ErrNotReady instead of looping forever.
const (
	defaultReadinessDelay    = 500 * time.Millisecond
	defaultReadinessAttempts = 6
)

// DoReady executes a request, retrying on 202 Accepted with a constant
// delay up to the client's attempt bound. Any other outcome — success,
// redirect already followed by the transport, or a typed error — is
// returned as-is. The caller closes the response body on success.
func (c *Client) DoReady(ctx context.Context, r Request) (*http.Response, error) {
	var resp *http.Response

	backoff := retry.WithMaxRetries(c.readyAttempts, retry.NewConstant(c.readyDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, doErr := c.Do(ctx, r)
		if doErr != nil {
			return doErr
		}

		if res.StatusCode == http.StatusAccepted {
			DrainClose(res.Body)
			c.logger.Debug("content still processing, retrying",
				slog.String("provider", c.provider.String()),
				slog.String("op", opString(r)),
				slog.Duration("delay", c.readyDelay),
			)

			return retry.RetryableError(ErrNotReady)
		}

		resp = res

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cloud: %s: %w", opString(r), err)
	}

	return resp, nil
}
