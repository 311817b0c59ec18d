package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// tokenResponse mirrors the standard OAuth2 token endpoint JSON.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// RefreshGrant exchanges a refresh token for a new TokenSet at tokenURL.
// The body is application/x-www-form-urlencoded per the OAuth2 spec. When
// the provider omits a rotated refresh token from the response, the old one
// is carried forward into the returned set.
func RefreshGrant(ctx context.Context, httpClient *http.Client, provider Provider, tokenURL, clientID, clientSecret, refreshToken string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("cloud: creating refresh request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: provider, Op: "refreshing token", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message

		return nil, &RemoteError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("cloud: decoding token response: %w", ErrMalformedResponse)
	}

	if tr.AccessToken == "" {
		return nil, fmt.Errorf("cloud: token response missing access_token: %w", ErrMalformedResponse)
	}

	tokens := &TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}

	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}

	if tr.ExpiresIn > 0 {
		tokens.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	return tokens, nil
}

// RevokeToken revokes an access token at revokeURL. Best-effort semantics
// are the caller's concern — this surfaces failures.
func RevokeToken(ctx context.Context, httpClient *http.Client, provider Provider, revokeURL, clientID, clientSecret, token string) error {
	if revokeURL == "" {
		return nil
	}

	form := url.Values{
		"token":         {token},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("cloud: creating revoke request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return &TransportError{Provider: provider, Op: "revoking token", Err: err}
	}
	defer DrainClose(resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return &RemoteError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    "revoke rejected",
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	return nil
}
