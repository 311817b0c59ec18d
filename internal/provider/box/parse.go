package box

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

// Box timestamps are RFC 3339 with a numeric zone offset
// (e.g. "2012-12-12T10:53:43-08:00").
const timeLayout = time.RFC3339

// itemResponse mirrors the Box v2 item JSON (file or folder) exactly.
// Unexported — callers use the canonical types via toFolder()/toFile().
type itemResponse struct {
	Type       string     `json:"type"`
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Size       int64      `json:"size"`
	CreatedAt  string     `json:"created_at"`
	ModifiedAt string     `json:"modified_at"`
	Parent     *parentRef `json:"parent"`
}

type parentRef struct {
	ID string `json:"id"`
}

type listResponse struct {
	TotalCount int            `json:"total_count"`
	Entries    []itemResponse `json:"entries"`
	Offset     int            `json:"offset"`
	Limit      int            `json:"limit"`
}

// uploadResponse wraps the entries array Box returns from content uploads.
type uploadResponse struct {
	Entries []itemResponse `json:"entries"`
}

type userResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// conflictResponse carries the conflicting item from a 409 upload body.
type conflictResponse struct {
	ContextInfo struct {
		Conflicts struct {
			ID string `json:"id"`
		} `json:"conflicts"`
	} `json:"context_info"`
}

func (r *itemResponse) toFolder() (*cloud.Folder, error) {
	if r.ID == "" || r.Name == "" {
		return nil, fmt.Errorf("box: folder missing id or name: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.Folder{
		ID:       r.ID,
		Name:     cloud.NormalizeName(r.Name),
		Size:     r.Size,
		Created:  cloud.ParseTime(timeLayout, r.CreatedAt),
		Modified: cloud.ParseTime(timeLayout, r.ModifiedAt),
		IsRoot:   r.ID == rootID,
	}, nil
}

func (r *itemResponse) toFile() (*cloud.File, error) {
	if r.ID == "" || r.Name == "" {
		return nil, fmt.Errorf("box: file missing id or name: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.File{
		ID:       r.ID,
		Name:     cloud.NormalizeName(r.Name),
		Size:     r.Size,
		Created:  cloud.ParseTime(timeLayout, r.CreatedAt),
		Modified: cloud.ParseTime(timeLayout, r.ModifiedAt),
	}, nil
}

func (u *userResponse) toUser() (*cloud.User, error) {
	if u.ID == "" {
		return nil, fmt.Errorf("box: user missing id: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.User{
		ID:          u.ID,
		Name:        u.Name,
		DisplayName: u.Name,
		Email:       u.Login,
		AvatarURL:   u.AvatarURL,
	}, nil
}

// conflictID extracts the existing item's ID from a 409 response body.
// Returns "" when the body does not carry one.
func conflictID(message string) string {
	var cr conflictResponse
	if err := json.Unmarshal([]byte(message), &cr); err != nil {
		return ""
	}

	return cr.ContextInfo.Conflicts.ID
}
