package dropbox

import (
	"fmt"
	"strings"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

// Dropbox timestamps are RFC 3339 in UTC with a literal Z suffix.
const timeLayout = "2006-01-02T15:04:05Z"

const (
	tagFolder = "folder"
	tagFile   = "file"
)

// metadataResponse mirrors the Dropbox v2 Metadata union. Tag is absent on
// endpoints whose return type is unambiguous (create_folder_v2, upload).
type metadataResponse struct {
	Tag            string `json:".tag"`
	ID             string `json:"id"`
	Name           string `json:"name"`
	PathDisplay    string `json:"path_display"`
	PathLower      string `json:"path_lower"`
	Size           int64  `json:"size"`
	ClientModified string `json:"client_modified"`
	ServerModified string `json:"server_modified"`
}

type listFolderResponse struct {
	Entries []metadataResponse `json:"entries"`
	Cursor  string             `json:"cursor"`
	HasMore bool               `json:"has_more"`
}

// metadataWrapper carries the single-entity responses (create_folder_v2,
// move_v2, delete_v2) that nest metadata one level down.
type metadataWrapper struct {
	Metadata metadataResponse `json:"metadata"`
}

type searchMatch struct {
	Metadata struct {
		Metadata metadataResponse `json:"metadata"`
	} `json:"metadata"`
}

type searchResponse struct {
	Matches []searchMatch `json:"matches"`
	Cursor  string        `json:"cursor"`
	HasMore bool          `json:"has_more"`
}

type accountResponse struct {
	AccountID string `json:"account_id"`
	Name      struct {
		DisplayName string `json:"display_name"`
	} `json:"name"`
	Email           string `json:"email"`
	ProfilePhotoURL string `json:"profile_photo_url"`
}

func (m *metadataResponse) toFolder() (*cloud.Folder, error) {
	if m.Name == "" || m.PathDisplay == "" {
		return nil, fmt.Errorf("dropbox: folder missing name or path: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.Folder{
		ID:   m.ID,
		Name: cloud.NormalizeName(m.Name),
		Path: m.PathDisplay,
		Size: cloud.SizeUnknown,
	}, nil
}

func (m *metadataResponse) toFile() (*cloud.File, error) {
	if m.Name == "" || m.PathDisplay == "" {
		return nil, fmt.Errorf("dropbox: file missing name or path: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.File{
		ID:       m.ID,
		Name:     cloud.NormalizeName(m.Name),
		Path:     m.PathDisplay,
		Size:     m.Size,
		Created:  cloud.ParseTime(timeLayout, m.ClientModified),
		Modified: cloud.ParseTime(timeLayout, m.ServerModified),
	}, nil
}

func (a *accountResponse) toUser() (*cloud.User, error) {
	if a.AccountID == "" {
		return nil, fmt.Errorf("dropbox: account missing id: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.User{
		ID:          a.AccountID,
		Name:        a.Name.DisplayName,
		DisplayName: a.Name.DisplayName,
		Email:       a.Email,
		AvatarURL:   a.ProfilePhotoURL,
	}, nil
}

// joinPath builds a child path under a parent. The root is the empty string,
// so children of the root are "/name".
func joinPath(parent, name string) string {
	return strings.TrimSuffix(parent, "/") + "/" + name
}

// parentDir returns the containing folder's path, with "" for direct
// children of the root.
func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return ""
	}

	return path[:idx]
}
