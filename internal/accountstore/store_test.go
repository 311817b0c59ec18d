package accountstore

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T.Log to io.Writer for slog output.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(":memory:", testLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

func makeTestAccount(provider cloud.Provider, userID string) *Account {
	return &Account{
		Provider: provider,
		UserID:   userID,
		UserName: "user-" + userID,
		Email:    userID + "@example.com",
		Tokens: cloud.TokenSet{
			AccessToken:  "access-" + userID,
			RefreshToken: "refresh-" + userID,
			Expiry:       time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestSave_AssignsIDAndRoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saved, err := store.Save(ctx, makeTestAccount(cloud.ProviderBox, "u-1"))
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, cloud.ProviderBox, got.Provider)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, "user-u-1", got.UserName)
	assert.Equal(t, "u-1@example.com", got.Email)
	assert.Equal(t, "access-u-1", got.Tokens.AccessToken)
	assert.Equal(t, "refresh-u-1", got.Tokens.RefreshToken)
	assert.True(t, got.Tokens.Expiry.Equal(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)))
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSave_SameUserKeepsID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Save(ctx, makeTestAccount(cloud.ProviderDropbox, "u-2"))
	require.NoError(t, err)

	update := makeTestAccount(cloud.ProviderDropbox, "u-2")
	update.UserName = "renamed"
	update.Tokens.AccessToken = "rotated"

	second, err := store.Save(ctx, update)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "renamed", second.UserName)
	assert.Equal(t, "rotated", second.Tokens.AccessToken)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSave_RequiresProviderAndUser(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save(context.Background(), &Account{Provider: cloud.ProviderBox})
	assert.Error(t, err)
}

func TestGet_MissingReturnsNilNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Get(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, got)

	found, err := store.Find(context.Background(), cloud.ProviderYandex, "nobody")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestList_OrdersAndFiltersByProvider(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, acct := range []*Account{
		makeTestAccount(cloud.ProviderYandex, "y-1"),
		makeTestAccount(cloud.ProviderBox, "b-2"),
		makeTestAccount(cloud.ProviderBox, "b-1"),
	} {
		_, err := store.Save(ctx, acct)
		require.NoError(t, err)
	}

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, cloud.ProviderBox, all[0].Provider)
	assert.Equal(t, cloud.ProviderYandex, all[2].Provider)

	boxOnly, err := store.ListByProvider(ctx, cloud.ProviderBox)
	require.NoError(t, err)
	require.Len(t, boxOnly, 2)
	assert.Equal(t, "b-1", boxOnly[0].UserID)
	assert.Equal(t, "b-2", boxOnly[1].UserID)
}

func TestSaveTokens_ReplacesWholeSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saved, err := store.Save(ctx, makeTestAccount(cloud.ProviderOneDrive, "u-3"))
	require.NoError(t, err)

	// No expiry on the new set: the zero time must survive the round trip.
	err = store.SaveTokens(ctx, cloud.ProviderOneDrive, saved.ID, &cloud.TokenSet{
		AccessToken: "fresh",
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "fresh", got.Tokens.AccessToken)
	assert.Empty(t, got.Tokens.RefreshToken)
	assert.True(t, got.Tokens.Expiry.IsZero())
}

func TestSaveTokens_UnknownAccountFails(t *testing.T) {
	store := newTestStore(t)

	err := store.SaveTokens(context.Background(), cloud.ProviderBox, "no-such-id",
		&cloud.TokenSet{AccessToken: "x"})
	assert.ErrorContains(t, err, "not found")
}

func TestDeleteAccount_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saved, err := store.Save(ctx, makeTestAccount(cloud.ProviderBitcasa, "u-4"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteAccount(ctx, cloud.ProviderBitcasa, saved.ID))

	got, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Second delete is a no-op.
	require.NoError(t, store.DeleteAccount(ctx, cloud.ProviderBitcasa, saved.ID))
}

func TestDeleteAccount_WrongProviderLeavesRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saved, err := store.Save(ctx, makeTestAccount(cloud.ProviderBox, "u-5"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteAccount(ctx, cloud.ProviderDropbox, saved.ID))

	got, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
