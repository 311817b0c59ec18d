package cloud

import (
	"time"

	"golang.org/x/text/unicode/norm"
)

// Provider identifies a cloud storage service.
type Provider string

const (
	ProviderBox        Provider = "box"
	ProviderDropbox    Provider = "dropbox"
	ProviderOneDrive   Provider = "onedrive"
	ProviderBitcasa    Provider = "bitcasa"
	ProviderCloudDrive Provider = "clouddrive"
	ProviderYandex     Provider = "yandex"
)

func (p Provider) String() string {
	return string(p)
}

// AddressingMode describes how a provider addresses entities: by opaque ID
// or by path string. Exactly one of Ref.ID / Ref.Path is authoritative.
type AddressingMode int

const (
	AddressByID AddressingMode = iota
	AddressByPath
)

// Ref addresses an entity in provider-specific terms. For AddressByID
// providers only ID is meaningful; for AddressByPath providers only Path.
type Ref struct {
	ID   string
	Path string
}

// RefByID builds an ID-addressed reference.
func RefByID(id string) Ref {
	return Ref{ID: id}
}

// RefByPath builds a path-addressed reference.
func RefByPath(path string) Ref {
	return Ref{Path: path}
}

// SizeUnknown indicates the provider did not report a size.
const SizeUnknown int64 = -1

// Folder is the canonical provider-independent folder representation.
// Immutable once returned to the caller.
type Folder struct {
	ID       string
	Name     string
	Path     string
	Size     int64
	Created  time.Time
	Modified time.Time
	IsRoot   bool
}

// Ref returns the folder's provider-specific address.
func (f *Folder) Ref() Ref {
	return Ref{ID: f.ID, Path: f.Path}
}

// File is the canonical provider-independent file representation.
// Immutable once returned to the caller.
type File struct {
	ID       string
	Name     string
	Path     string
	Size     int64
	Created  time.Time
	Modified time.Time
}

// Ref returns the file's provider-specific address.
func (f *File) Ref() Ref {
	return Ref{ID: f.ID, Path: f.Path}
}

// User is the authenticated account owner. ID is stable across sessions and
// keys the local account record.
type User struct {
	ID          string
	Name        string
	DisplayName string
	Email       string
	AvatarURL   string
}

// TokenSet holds the credentials issued by a provider. AccessToken is always
// present; RefreshToken and Expiry are zero for providers without refresh
// support. A TokenSet is replaced wholesale on refresh, never patched.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Expired reports whether the access token is past its expiry.
// A zero Expiry means the token does not expire.
func (t *TokenSet) Expired() bool {
	return !t.Expiry.IsZero() && t.Expiry.Before(time.Now())
}

// OnConflict selects the upload/update collision policy. It is passed to the
// provider explicitly on every call, never inferred.
type OnConflict int

const (
	// ConflictFail makes the upload fail with ErrConflict when the target
	// name already exists.
	ConflictFail OnConflict = iota

	// ConflictOverwrite replaces the existing content.
	ConflictOverwrite
)

func (c OnConflict) String() string {
	if c == ConflictOverwrite {
		return "overwrite"
	}

	return "fail"
}

// NormalizeName applies NFC normalization to an entity name. Providers
// return a mix of NFC and NFD (macOS clients upload NFD); canonical
// entities always carry NFC.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}
