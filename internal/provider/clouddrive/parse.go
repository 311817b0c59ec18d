package clouddrive

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

// Cloud Drive timestamps are RFC 3339 UTC with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z"

const (
	kindFolder = "FOLDER"
	kindFile   = "FILE"
)

// nodeResponse mirrors one Cloud Drive node. Nodes are flat: hierarchy is
// expressed through the parents list, which can hold multiple entries.
type nodeResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Parents      []string `json:"parents"`
	CreatedDate  string   `json:"createdDate"`
	ModifiedDate string   `json:"modifiedDate"`
	IsRoot       bool     `json:"isRoot"`

	ContentProperties *struct {
		Size        int64  `json:"size"`
		ContentType string `json:"contentType"`
	} `json:"contentProperties"`
}

type nodesResponse struct {
	Count     int            `json:"count"`
	NextToken string         `json:"nextToken"`
	Data      []nodeResponse `json:"data"`
}

type accountResponse struct {
	CustomerID string `json:"customerId"`
	Email      string `json:"email"`
	Name       string `json:"name"`
}

// conflictResponse carries the existing node's ID from a 409 upload body.
type conflictResponse struct {
	Info struct {
		NodeID string `json:"nodeId"`
	} `json:"info"`
}

// conflictNodeID extracts the existing node's ID from a 409 response body.
// Returns "" when the body does not carry one.
func conflictNodeID(message string) string {
	var cr conflictResponse
	if err := json.Unmarshal([]byte(message), &cr); err != nil {
		return ""
	}

	return cr.Info.NodeID
}

func (n *nodeResponse) hasParent(id string) bool {
	return slices.Contains(n.Parents, id)
}

func (n *nodeResponse) size() int64 {
	if n.ContentProperties == nil {
		return cloud.SizeUnknown
	}

	return n.ContentProperties.Size
}

func (n *nodeResponse) toFolder() (*cloud.Folder, error) {
	if n.ID == "" || (n.Name == "" && !n.IsRoot) {
		return nil, fmt.Errorf("clouddrive: folder node missing id or name: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.Folder{
		ID:       n.ID,
		Name:     cloud.NormalizeName(n.Name),
		Size:     cloud.SizeUnknown,
		Created:  cloud.ParseTime(timeLayout, n.CreatedDate),
		Modified: cloud.ParseTime(timeLayout, n.ModifiedDate),
		IsRoot:   n.IsRoot,
	}, nil
}

func (n *nodeResponse) toFile() (*cloud.File, error) {
	if n.ID == "" || n.Name == "" {
		return nil, fmt.Errorf("clouddrive: file node missing id or name: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.File{
		ID:       n.ID,
		Name:     cloud.NormalizeName(n.Name),
		Size:     n.size(),
		Created:  cloud.ParseTime(timeLayout, n.CreatedDate),
		Modified: cloud.ParseTime(timeLayout, n.ModifiedDate),
	}, nil
}

func (a *accountResponse) toUser() (*cloud.User, error) {
	if a.CustomerID == "" {
		return nil, fmt.Errorf("clouddrive: account missing customer id: %w", cloud.ErrMalformedResponse)
	}

	return &cloud.User{
		ID:          a.CustomerID,
		Name:        a.Name,
		DisplayName: a.Name,
		Email:       a.Email,
	}, nil
}
