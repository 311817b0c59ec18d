package cloud

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSet_Expired(t *testing.T) {
	assert.False(t, (&TokenSet{AccessToken: "t"}).Expired(), "zero expiry never expires")
	assert.True(t, (&TokenSet{AccessToken: "t", Expiry: time.Now().Add(-time.Minute)}).Expired())
	assert.False(t, (&TokenSet{AccessToken: "t", Expiry: time.Now().Add(time.Hour)}).Expired())
}

func TestNormalizeName_NFC(t *testing.T) {
	// "é" as NFD (e + combining acute) normalizes to the NFC single rune.
	nfd := "re\u0301sume\u0301.txt"
	nfc := "r\u00e9sum\u00e9.txt"

	assert.Equal(t, nfc, NormalizeName(nfd))
	assert.True(t, SameName(nfd, nfc))
	assert.False(t, SameName("a.txt", "b.txt"))
}

func TestParseTime_OptionalSemantics(t *testing.T) {
	assert.True(t, ParseTime(time.RFC3339, "").IsZero())
	assert.True(t, ParseTime(time.RFC3339, "garbage").IsZero())

	got := ParseTime(time.RFC3339, "2024-06-20T14:45:00Z")
	assert.Equal(t, 2024, got.Year())
}

func TestParseEpochMillis(t *testing.T) {
	assert.True(t, ParseEpochMillis(0).IsZero())
	assert.Equal(t, 2021, ParseEpochMillis(1609459200000).Year())
}

func TestOnConflict_String(t *testing.T) {
	assert.Equal(t, "fail", ConflictFail.String())
	assert.Equal(t, "overwrite", ConflictOverwrite.String())
}

func TestRegistry(t *testing.T) {
	const fake Provider = "fake-test-provider"

	Register(fake, func(_ ProviderConfig, _ Options) (Adapter, error) {
		return nil, nil //nolint:nilnil // registration wiring only
	})

	a, err := New(fake, ProviderConfig{}, Options{})
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = New(Provider("missing"), ProviderConfig{}, Options{})
	require.Error(t, err)

	assert.Contains(t, Providers(), fake)

	assert.Panics(t, func() {
		Register(fake, func(_ ProviderConfig, _ Options) (Adapter, error) {
			return nil, nil //nolint:nilnil // duplicate registration check
		})
	})
}
