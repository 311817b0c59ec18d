package onedrive

import (
	"fmt"
	"time"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

// Graph timestamps are RFC 3339 UTC.
const timeLayout = time.RFC3339

// driveItemResponse mirrors the Graph driveItem resource. The folder and
// file facets discriminate the entity kind; the root facet marks the drive
// root.
type driveItemResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	CreatedAt    string `json:"createdDateTime"`
	ModifiedAt   string `json:"lastModifiedDateTime"`
	Folder       *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
	Root   *struct{} `json:"root"`
	Parent *struct {
		ID string `json:"id"`
	} `json:"parentReference"`
}

type listResponse struct {
	Value    []driveItemResponse `json:"value"`
	NextLink string              `json:"@odata.nextLink"`
}

type userResponse struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
	Mail              string `json:"mail"`
}

func (r *driveItemResponse) isFolder() bool {
	return r.Folder != nil
}

func (r *driveItemResponse) isFile() bool {
	return r.File != nil
}

func (r *driveItemResponse) toFolder() (*cloud.Folder, error) {
	if r.ID == "" || r.Name == "" {
		return nil, fmt.Errorf("onedrive: folder missing id or name: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.Folder{
		ID:       r.ID,
		Name:     cloud.NormalizeName(r.Name),
		Size:     r.Size,
		Created:  cloud.ParseTime(timeLayout, r.CreatedAt),
		Modified: cloud.ParseTime(timeLayout, r.ModifiedAt),
		IsRoot:   r.Root != nil,
	}, nil
}

func (r *driveItemResponse) toFile() (*cloud.File, error) {
	if r.ID == "" || r.Name == "" {
		return nil, fmt.Errorf("onedrive: file missing id or name: %w", cloud.ErrMalformedResponse)
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
		return nil, fmt.Errorf("onedrive: user missing id: %w", cloud.ErrMalformedResponse)
	}

	email := u.Mail
	if email == "" {
		email = u.UserPrincipalName
	}

	return &cloud.User{
		ID:          u.ID,
		Name:        u.DisplayName,
		DisplayName: u.DisplayName,
		Email:       email,
	}, nil
}
