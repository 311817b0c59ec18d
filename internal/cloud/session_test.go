package cloud

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records token persistence and account removal.
type fakeStore struct {
	mu      sync.Mutex
	saved   []*TokenSet
	deleted []string
	saveErr error
}

func (s *fakeStore) SaveTokens(_ context.Context, _ Provider, _ string, tokens *TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}

	s.saved = append(s.saved, tokens)

	return nil
}

func (s *fakeStore) DeleteAccount(_ context.Context, _ Provider, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleted = append(s.deleted, accountID)

	return nil
}

func TestPrepare_ValidToken(t *testing.T) {
	store := &fakeStore{}

	sess := NewSession(ProviderBox, "acct-1", &TokenSet{AccessToken: "fresh"}, store, SessionHooks{
		Validate: func(_ context.Context, token string) error {
			assert.Equal(t, "fresh", token)
			return nil
		},
	}, nil)

	require.NoError(t, sess.Prepare(context.Background()))
	assert.Equal(t, StateValid, sess.State())
	assert.Empty(t, store.saved)
}

func TestPrepare_RefreshOn401(t *testing.T) {
	store := &fakeStore{}

	var refreshCalls atomic.Int32

	sess := NewSession(ProviderBox, "acct-1",
		&TokenSet{AccessToken: "stale", RefreshToken: "refresh-1"},
		store,
		SessionHooks{
			Validate: func(_ context.Context, token string) error {
				if token == "stale" {
					return fmt.Errorf("probe: %w", ErrUnauthorized)
				}

				return nil
			},
			Refresh: func(_ context.Context, refreshToken string) (*TokenSet, error) {
				refreshCalls.Add(1)
				assert.Equal(t, "refresh-1", refreshToken)

				return &TokenSet{AccessToken: "fresh", RefreshToken: "refresh-2"}, nil
			},
		}, nil)

	require.NoError(t, sess.Prepare(context.Background()))
	assert.Equal(t, StateValid, sess.State())
	assert.Equal(t, int32(1), refreshCalls.Load())

	// New TokenSet replaced wholesale and persisted to the store.
	require.Len(t, store.saved, 1)
	assert.Equal(t, "fresh", store.saved[0].AccessToken)
	assert.Equal(t, "refresh-2", store.saved[0].RefreshToken)

	tok, err := sess.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
}

func TestPrepare_RefreshSingleFlight(t *testing.T) {
	store := &fakeStore{}

	var refreshCalls atomic.Int32

	sess := NewSession(ProviderBox, "acct-1",
		&TokenSet{AccessToken: "stale", RefreshToken: "refresh-1"},
		store,
		SessionHooks{
			Validate: func(_ context.Context, token string) error {
				if token == "stale" {
					return fmt.Errorf("probe: %w", ErrUnauthorized)
				}

				return nil
			},
			Refresh: func(_ context.Context, _ string) (*TokenSet, error) {
				refreshCalls.Add(1)
				time.Sleep(50 * time.Millisecond)

				return &TokenSet{AccessToken: "fresh"}, nil
			},
		}, nil)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, sess.Prepare(context.Background()))
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), refreshCalls.Load(), "concurrent callers must share one refresh")
}

func TestPrepare_NoRefreshToken_LogoutAndReset(t *testing.T) {
	store := &fakeStore{}

	var revoked atomic.Bool

	sess := NewSession(ProviderDropbox, "acct-dbx",
		&TokenSet{AccessToken: "stale"}, // no refresh token
		store,
		SessionHooks{
			Validate: func(_ context.Context, _ string) error {
				return fmt.Errorf("probe: %w", ErrUnauthorized)
			},
			Revoke: func(_ context.Context, _ *TokenSet) error {
				revoked.Store(true)
				return nil
			},
		}, nil)

	err := sess.Prepare(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReauthRequired)
	assert.Equal(t, StateInvalid, sess.State())
	assert.True(t, revoked.Load())
	assert.Equal(t, []string{"acct-dbx"}, store.deleted)

	_, err = sess.AccessToken()
	assert.ErrorIs(t, err, ErrNoAccessToken)
}

func TestPrepare_RefreshRejected_LogoutAndReset(t *testing.T) {
	store := &fakeStore{}

	sess := NewSession(ProviderBox, "acct-1",
		&TokenSet{AccessToken: "stale", RefreshToken: "dead"},
		store,
		SessionHooks{
			Validate: func(_ context.Context, _ string) error {
				return fmt.Errorf("probe: %w", ErrUnauthorized)
			},
			Refresh: func(_ context.Context, _ string) (*TokenSet, error) {
				return nil, fmt.Errorf("refresh: %w", ErrBadRequest)
			},
		}, nil)

	err := sess.Prepare(context.Background())
	assert.ErrorIs(t, err, ErrReauthRequired)
	assert.Equal(t, []string{"acct-1"}, store.deleted)
	assert.Empty(t, store.saved, "store is never written speculatively")
}

func TestPrepare_OtherValidationFailure_Invalid(t *testing.T) {
	sess := NewSession(ProviderBox, "acct-1", &TokenSet{AccessToken: "t"}, &fakeStore{}, SessionHooks{
		Validate: func(_ context.Context, _ string) error {
			return fmt.Errorf("boom: %w", ErrServerError)
		},
	}, nil)

	err := sess.Prepare(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReauthRequired)
	assert.Equal(t, StateInvalid, sess.State())
}

func TestPrepare_NoToken(t *testing.T) {
	sess := NewSession(ProviderBox, "", nil, &fakeStore{}, SessionHooks{}, nil)

	err := sess.Prepare(context.Background())
	assert.ErrorIs(t, err, ErrNoAccessToken)
}

func TestSetTokens_ResetsState(t *testing.T) {
	sess := NewSession(ProviderBox, "", nil, &fakeStore{}, SessionHooks{}, nil)

	sess.SetTokens(&TokenSet{AccessToken: "new"}, "acct-9")

	assert.Equal(t, StateUnvalidated, sess.State())

	tok, err := sess.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "new", tok)
}
