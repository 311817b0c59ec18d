package cloud

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// DecodeJSON decodes a response body, mapping structural failures to
// ErrMalformedResponse.
func DecodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("cloud: decoding response: %w", ErrMalformedResponse)
	}

	return nil
}

// ParseTime parses an optional provider timestamp. Timestamps are optional
// canonical fields: an empty or unparseable value yields the zero time
// rather than failing the owning operation.
func ParseTime(layout, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(layout, raw)
	if err != nil {
		return time.Time{}
	}

	return t
}

// ParseEpochMillis converts a millisecond epoch timestamp, zero-safe.
func ParseEpochMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms).UTC()
}

// SameName reports whether a rename target already matches, comparing
// NFC-normalized forms. Rename operations short-circuit on a match.
func SameName(current, target string) bool {
	return NormalizeName(current) == NormalizeName(target)
}
