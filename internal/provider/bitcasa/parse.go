package bitcasa

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

const (
	typeFolder = "folder"
	typeFile   = "file"
)

// envelope is the uniform response wrapper: exactly one of result and error
// is populated. Errors can arrive inside a 200 response, so the adapter
// inspects the envelope before decoding the result.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *apiError       `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// itemResponse mirrors one listing item. Timestamps are millisecond epochs.
type itemResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Size         int64  `json:"size"`
	DateCreated  int64  `json:"date_created"`
	DateModified int64  `json:"date_content_last_modified"`

	// AbsolutePath is only present on search results.
	AbsolutePath string `json:"absolute_path"`
}

type itemsResult struct {
	Items []itemResponse `json:"items"`
}

type profileResult struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// toFolder converts a listing item. Paths are not echoed back by the API,
// so the caller supplies the containing folder's path.
func (r *itemResponse) toFolder(parentPath string) (*cloud.Folder, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("bitcasa: folder missing name: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.Folder{
		ID:       r.ID,
		Name:     cloud.NormalizeName(r.Name),
		Path:     r.path(parentPath),
		Size:     cloud.SizeUnknown,
		Created:  cloud.ParseEpochMillis(r.DateCreated),
		Modified: cloud.ParseEpochMillis(r.DateModified),
	}, nil
}

func (r *itemResponse) toFile(parentPath string) (*cloud.File, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("bitcasa: file missing name: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.File{
		ID:       r.ID,
		Name:     cloud.NormalizeName(r.Name),
		Path:     r.path(parentPath),
		Size:     r.Size,
		Created:  cloud.ParseEpochMillis(r.DateCreated),
		Modified: cloud.ParseEpochMillis(r.DateModified),
	}, nil
}

func (p *profileResult) toUser() (*cloud.User, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("bitcasa: profile missing id: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.User{
		ID:          p.ID,
		Name:        p.Username,
		DisplayName: p.Username,
		Email:       p.Email,
	}, nil
}

func (r *itemResponse) path(parentPath string) string {
	if r.AbsolutePath != "" {
		return r.AbsolutePath
	}

	return joinPath(parentPath, r.Name)
}

// joinPath builds a child path under a parent. The root is "/".
func joinPath(parent, name string) string {
	return strings.TrimSuffix(parent, "/") + "/" + name
}

// parentDir returns the containing folder's path, with "/" for direct
// children of the root.
func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}

	return path[:idx]
}
