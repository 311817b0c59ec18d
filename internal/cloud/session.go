package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// SessionState tracks the token lifecycle.
type SessionState int

const (
	StateUnvalidated SessionState = iota
	StateValidating
	StateValid
	StateRefreshing
	StateInvalid
)

func (s SessionState) String() string {
	switch s {
	case StateUnvalidated:
		return "unvalidated"
	case StateValidating:
		return "validating"
	case StateValid:
		return "valid"
	case StateRefreshing:
		return "refreshing"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// AccountStore is the durable backing copy of a session's TokenSet. The
// session writes it only after a successful refresh; DeleteAccount removes
// the local record during logout-and-reset.
type AccountStore interface {
	SaveTokens(ctx context.Context, provider Provider, accountID string, tokens *TokenSet) error
	DeleteAccount(ctx context.Context, provider Provider, accountID string) error
}

// SessionHooks supply the provider-specific calls the lifecycle depends on.
type SessionHooks struct {
	// Validate issues the provider's lightweight authenticated probe
	// (who-am-I) with the candidate token. Returns nil on HTTP 200, an
	// error wrapping ErrUnauthorized on 401, any other error otherwise.
	Validate func(ctx context.Context, accessToken string) error

	// Refresh exchanges a refresh token for a new TokenSet at the
	// provider's token endpoint. nil for providers without refresh support.
	Refresh func(ctx context.Context, refreshToken string) (*TokenSet, error)

	// Revoke invalidates the token server-side. Best-effort; nil to skip.
	Revoke func(ctx context.Context, tokens *TokenSet) error
}

// Session owns an adapter's live TokenSet and drives the token lifecycle:
// Unvalidated → Validating → Valid, Valid → Refreshing → Valid, any state →
// Invalid on unrecoverable failure. Refresh is single-flight: concurrent
// callers arriving mid-refresh await the in-flight exchange instead of
// starting a duplicate.
type Session struct {
	provider  Provider
	accountID string
	store     AccountStore
	hooks     SessionHooks
	logger    *slog.Logger

	mu     sync.Mutex
	state  SessionState
	tokens *TokenSet

	group singleflight.Group
}

// NewSession creates a session holding tokens (nil before first login).
func NewSession(provider Provider, accountID string, tokens *TokenSet, store AccountStore, hooks SessionHooks, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		provider:  provider,
		accountID: accountID,
		store:     store,
		hooks:     hooks,
		logger:    logger,
		state:     StateUnvalidated,
		tokens:    tokens,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// AccessToken returns the live access token. Fails with ErrNoAccessToken
// when the session holds none or has been invalidated — data operations
// call this before any network I/O.
func (s *Session) AccessToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens == nil || s.tokens.AccessToken == "" || s.state == StateInvalid {
		return "", ErrNoAccessToken
	}

	return s.tokens.AccessToken, nil
}

// Tokens returns a copy of the current TokenSet, or nil.
func (s *Session) Tokens() *TokenSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens == nil {
		return nil
	}

	copied := *s.tokens

	return &copied
}

// SetTokens replaces the session's TokenSet wholesale and resets the state
// to Unvalidated. Used after initial authentication.
func (s *Session) SetTokens(tokens *TokenSet, accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = tokens
	s.accountID = accountID
	s.state = StateUnvalidated
}

// Prepare validates the session's token, transparently refreshing on 401.
// On success the session is Valid. A missing or rejected refresh token
// triggers logout-and-reset and ErrReauthRequired; any other failure leaves
// the session Invalid.
func (s *Session) Prepare(ctx context.Context) error {
	tok, err := s.AccessToken()
	if err != nil {
		s.setState(StateInvalid)
		return err
	}

	s.setState(StateValidating)

	err = s.hooks.Validate(ctx, tok)
	if err == nil {
		s.setState(StateValid)
		s.logger.Debug("session validated", slog.String("provider", s.provider.String()))

		return nil
	}

	if !errors.Is(err, ErrUnauthorized) {
		s.setState(StateInvalid)
		return fmt.Errorf("cloud: validating session: %w", err)
	}

	s.logger.Info("access token rejected, refreshing",
		slog.String("provider", s.provider.String()),
	)

	if refreshErr := s.refresh(ctx); refreshErr != nil {
		return refreshErr
	}

	// Re-validate with the refreshed token.
	tok, err = s.AccessToken()
	if err != nil {
		s.setState(StateInvalid)
		return err
	}

	s.setState(StateValidating)

	if err := s.hooks.Validate(ctx, tok); err != nil {
		s.setState(StateInvalid)
		return fmt.Errorf("cloud: validating refreshed session: %w", err)
	}

	s.setState(StateValid)
	s.logger.Info("session refreshed and validated",
		slog.String("provider", s.provider.String()),
	)

	return nil
}

// refresh exchanges the stored refresh token for a new TokenSet, persists
// it, and adopts it. Single-flight: concurrent callers share one exchange.
func (s *Session) refresh(ctx context.Context) error {
	_, err, shared := s.group.Do("refresh", func() (any, error) {
		return nil, s.doRefresh(ctx)
	})

	if shared {
		s.logger.Debug("joined in-flight token refresh",
			slog.String("provider", s.provider.String()),
		)
	}

	return err
}

func (s *Session) doRefresh(ctx context.Context) error {
	s.setState(StateRefreshing)

	refreshToken := ""
	if t := s.Tokens(); t != nil {
		refreshToken = t.RefreshToken
	}

	if refreshToken == "" || s.hooks.Refresh == nil {
		s.logger.Warn("no refresh token, clearing account",
			slog.String("provider", s.provider.String()),
		)

		return s.logoutAndReset(ctx)
	}

	newTokens, err := s.hooks.Refresh(ctx, refreshToken)
	if err != nil {
		s.logger.Warn("token refresh rejected, clearing account",
			slog.String("provider", s.provider.String()),
			slog.String("error", err.Error()),
		)

		return s.logoutAndReset(ctx)
	}

	// The store is the durable copy — persist before adopting so a crash
	// cannot leave the store holding a revoked token.
	if s.store != nil {
		if saveErr := s.store.SaveTokens(ctx, s.provider, s.accountID, newTokens); saveErr != nil {
			s.setState(StateInvalid)
			return fmt.Errorf("cloud: persisting refreshed tokens: %w", saveErr)
		}
	}

	s.mu.Lock()
	s.tokens = newTokens
	s.mu.Unlock()

	return nil
}

// logoutAndReset revokes the current token (best-effort), removes the local
// account record, and invalidates the session. The one case where the
// adapter takes unilateral recovery action instead of merely reporting.
func (s *Session) logoutAndReset(ctx context.Context) error {
	tokens := s.Tokens()

	if s.hooks.Revoke != nil && tokens != nil {
		if err := s.hooks.Revoke(ctx, tokens); err != nil {
			s.logger.Warn("token revoke failed",
				slog.String("provider", s.provider.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.store != nil && s.accountID != "" {
		if err := s.store.DeleteAccount(ctx, s.provider, s.accountID); err != nil {
			s.logger.Warn("removing account record failed",
				slog.String("provider", s.provider.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	s.mu.Lock()
	s.tokens = nil
	s.state = StateInvalid
	s.mu.Unlock()

	return ErrReauthRequired
}

// Logout revokes and clears the session's tokens and account record.
func (s *Session) Logout(ctx context.Context) error {
	err := s.logoutAndReset(ctx)
	if errors.Is(err, ErrReauthRequired) {
		return nil
	}

	return err
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
}
