package yandex

import (
	"fmt"
	"strings"
	"time"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

// Disk timestamps are RFC 3339 with a numeric zone offset.
const timeLayout = time.RFC3339

const (
	typeDir  = "dir"
	typeFile = "file"

	// rootPath is the Disk root, always spelled with the disk: scheme.
	rootPath = "disk:/"
)

// resourceResponse mirrors one Disk resource. Listings nest the children
// and the declared total under _embedded.
type resourceResponse struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Created  string `json:"created"`
	Modified string `json:"modified"`
	MimeType string `json:"mime_type"`
	Preview  string `json:"preview"`

	Embedded *struct {
		Items  []resourceResponse `json:"items"`
		Total  int                `json:"total"`
		Limit  int                `json:"limit"`
		Offset int                `json:"offset"`
	} `json:"_embedded"`
}

// filesIndexResponse is the flat file index page. It carries no total, so
// pagination terminates on a short page.
type filesIndexResponse struct {
	Items  []resourceResponse `json:"items"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// linkResponse is the operation indirection: the API answers modifying and
// content calls with a URL to follow.
type linkResponse struct {
	Href      string `json:"href"`
	Method    string `json:"method"`
	Templated bool   `json:"templated"`
}

type diskResponse struct {
	User struct {
		UID         string `json:"uid"`
		Login       string `json:"login"`
		DisplayName string `json:"display_name"`
	} `json:"user"`
}

func (r *resourceResponse) toFolder() (*cloud.Folder, error) {
	if r.Name == "" || r.Path == "" {
		return nil, fmt.Errorf("yandex: folder missing name or path: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.Folder{
		Name:     cloud.NormalizeName(r.Name),
		Path:     r.Path,
		Size:     cloud.SizeUnknown,
		Created:  cloud.ParseTime(timeLayout, r.Created),
		Modified: cloud.ParseTime(timeLayout, r.Modified),
		IsRoot:   r.Path == rootPath,
	}, nil
}

func (r *resourceResponse) toFile() (*cloud.File, error) {
	if r.Name == "" || r.Path == "" {
		return nil, fmt.Errorf("yandex: file missing name or path: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.File{
		Name:     cloud.NormalizeName(r.Name),
		Path:     r.Path,
		Size:     r.Size,
		Created:  cloud.ParseTime(timeLayout, r.Created),
		Modified: cloud.ParseTime(timeLayout, r.Modified),
	}, nil
}

func (d *diskResponse) toUser() (*cloud.User, error) {
	if d.User.UID == "" && d.User.Login == "" {
		return nil, fmt.Errorf("yandex: disk info missing user: %w", cloud.ErrMalformedResponse)
	}

	id := d.User.UID
	if id == "" {
		id = d.User.Login
	}

	return &cloud.User{
		ID:          id,
		Name:        d.User.Login,
		DisplayName: d.User.DisplayName,
		Email:       d.User.Login,
	}, nil
}

// joinPath builds a child path under a parent in disk: notation.
func joinPath(parent, name string) string {
	if parent == rootPath {
		return rootPath + name
	}

	return strings.TrimSuffix(parent, "/") + "/" + name
}

// parentDir returns the containing folder's path, with the root for direct
// children of the root.
func parentDir(path string) string {
	trimmed := strings.TrimPrefix(path, rootPath)

	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return rootPath
	}

	return rootPath + trimmed[:idx]
}
