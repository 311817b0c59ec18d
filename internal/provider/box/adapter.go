// Package box binds the adapter contract to the Box v2 REST dialect:
// ID-addressed entities, offset/limit pagination with a known total, and a
// separate upload host for multipart content requests.
package box

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

const (
	// rootID is Box's fixed id for the root folder.
	rootID = "0"

	// listLimit is the page size for folder listings; 1000 is the Box maximum.
	listLimit = 1000

	searchLimit = 200

	thumbnailMinSize = 256
)

// Adapter implements cloud.Adapter against the Box v2 API.
type Adapter struct {
	cfg     cloud.ProviderConfig
	api     *cloud.Client
	content *cloud.Client
	session *cloud.Session
	http    *http.Client
	logger  *slog.Logger
}

// New constructs a Box adapter. Registered with the cloud registry under
// cloud.ProviderBox.
func New(cfg cloud.ProviderConfig, opts cloud.Options) (cloud.Adapter, error) {
	if cfg.APIBase == "" {
		return nil, fmt.Errorf("box: missing API base URL")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		cfg:    cfg,
		http:   opts.HTTPClient,
		logger: logger,
	}

	a.session = cloud.NewSession(cloud.ProviderBox, opts.AccountID, opts.Tokens, opts.Store, cloud.SessionHooks{
		Validate: a.validate,
		Refresh:  a.refresh,
		Revoke:   a.revoke,
	}, logger)

	auth := cloud.SessionBearer{Session: a.session}
	a.api = cloud.NewClient(cloud.ProviderBox, cfg.APIBase, auth, opts)

	contentBase := cfg.ContentBase
	if contentBase == "" {
		contentBase = cfg.APIBase
	}

	a.content = cloud.NewClient(cloud.ProviderBox, contentBase, auth, opts)

	return a, nil
}

func (a *Adapter) Provider() cloud.Provider {
	return cloud.ProviderBox
}

func (a *Adapter) Addressing() cloud.AddressingMode {
	return cloud.AddressByID
}

func (a *Adapter) Session() *cloud.Session {
	return a.session
}

// Root synthesizes Box's fixed root folder. No network I/O.
func (a *Adapter) Root() *cloud.Folder {
	return &cloud.Folder{
		ID:     rootID,
		Name:   "All Files",
		IsRoot: true,
	}
}

// validate probes a candidate token with the lightweight who-am-I call.
func (a *Adapter) validate(ctx context.Context, accessToken string) error {
	resp, err := a.api.Do(ctx, cloud.Request{
		Method: http.MethodGet,
		Path:   "/users/me",
		Auth:   cloud.StaticBearer(accessToken),
	})
	if err != nil {
		return err
	}

	cloud.DrainClose(resp.Body)

	return nil
}

func (a *Adapter) refresh(ctx context.Context, refreshToken string) (*cloud.TokenSet, error) {
	return cloud.RefreshGrant(ctx, a.http, cloud.ProviderBox,
		a.cfg.TokenURL, a.cfg.ClientID, a.cfg.ClientSecret, refreshToken)
}

func (a *Adapter) revoke(ctx context.Context, tokens *cloud.TokenSet) error {
	return cloud.RevokeToken(ctx, a.http, cloud.ProviderBox,
		a.cfg.RevokeURL, a.cfg.ClientID, a.cfg.ClientSecret, tokens.AccessToken)
}

func (a *Adapter) CurrentUser(ctx context.Context) (*cloud.User, error) {
	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodGet, Path: "/users/me"})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ur userResponse
	if err := cloud.DecodeJSON(resp.Body, &ur); err != nil {
		return nil, err
	}

	return ur.toUser()
}

func (a *Adapter) FolderInfo(ctx context.Context, ref cloud.Ref) (*cloud.Folder, error) {
	item, err := a.fetchItem(ctx, "/folders/"+ref.ID)
	if err != nil {
		return nil, err
	}

	return item.toFolder()
}

func (a *Adapter) FileInfo(ctx context.Context, ref cloud.Ref) (*cloud.File, error) {
	item, err := a.fetchItem(ctx, "/files/"+ref.ID)
	if err != nil {
		return nil, err
	}

	return item.toFile()
}

func (a *Adapter) fetchItem(ctx context.Context, path string) (*itemResponse, error) {
	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ir itemResponse
	if err := cloud.DecodeJSON(resp.Body, &ir); err != nil {
		return nil, err
	}

	return &ir, nil
}

// listChildren accumulates one entity kind from the paged folder listing.
// Box items listings are scoped to the folder, but search-backed listings
// can leak entries from other parents, so the parent guard stays on.
func (a *Adapter) listChildren(ctx context.Context, parent *cloud.Folder, kind string) ([]itemResponse, error) {
	a.logger.Info("listing children",
		slog.String("provider", "box"),
		slog.String("parent_id", parent.ID),
		slog.String("kind", kind),
	)

	keep := func(it itemResponse) bool {
		if it.Type != kind {
			return false
		}

		return it.Parent == nil || it.Parent.ID == parent.ID
	}

	return cloud.CollectOffset(ctx, listLimit, keep,
		func(ctx context.Context, offset, limit int) ([]itemResponse, int, error) {
			resp, err := a.api.Do(ctx, cloud.Request{
				Method: http.MethodGet,
				Path:   "/folders/" + parent.ID + "/items",
				Query: url.Values{
					"limit":  {strconv.Itoa(limit)},
					"offset": {strconv.Itoa(offset)},
					"fields": {"type,id,name,size,created_at,modified_at,parent"},
				},
			})
			if err != nil {
				return nil, 0, err
			}
			defer resp.Body.Close()

			var lr listResponse
			if err := cloud.DecodeJSON(resp.Body, &lr); err != nil {
				return nil, 0, err
			}

			return lr.Entries, lr.TotalCount, nil
		})
}

func (a *Adapter) ListFolders(ctx context.Context, parent *cloud.Folder) ([]cloud.Folder, error) {
	entries, err := a.listChildren(ctx, parent, "folder")
	if err != nil {
		return nil, err
	}

	return foldersOf(entries)
}

func (a *Adapter) ListFiles(ctx context.Context, parent *cloud.Folder) ([]cloud.File, error) {
	entries, err := a.listChildren(ctx, parent, "file")
	if err != nil {
		return nil, err
	}

	return filesOf(entries)
}

func (a *Adapter) CreateFolder(ctx context.Context, parent *cloud.Folder, name string) (*cloud.Folder, error) {
	body, err := json.Marshal(map[string]any{
		"name":   name,
		"parent": map[string]string{"id": parent.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("box: marshaling create folder request: %w", err)
	}

	resp, err := a.api.Do(ctx, cloud.Request{
		Method: http.MethodPost,
		Path:   "/folders",
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ir itemResponse
	if err := cloud.DecodeJSON(resp.Body, &ir); err != nil {
		return nil, err
	}

	return ir.toFolder()
}

func (a *Adapter) RenameFolder(ctx context.Context, folder *cloud.Folder, newName string) (*cloud.Folder, error) {
	// The root is immutable and a no-op rename needs no round trip.
	if folder.IsRoot || cloud.SameName(folder.Name, newName) {
		return folder, nil
	}

	item, err := a.updateItem(ctx, "/folders/"+folder.ID, map[string]any{"name": newName})
	if err != nil {
		return nil, err
	}

	return item.toFolder()
}

func (a *Adapter) RenameFile(ctx context.Context, file *cloud.File, newName string) (*cloud.File, error) {
	if cloud.SameName(file.Name, newName) {
		return file, nil
	}

	item, err := a.updateItem(ctx, "/files/"+file.ID, map[string]any{"name": newName})
	if err != nil {
		return nil, err
	}

	return item.toFile()
}

// MoveFolder reparents a folder. Canonical entities carry no parent
// reference, so a move into the current parent cannot be detected locally
// and still issues one request; only the root is rejected without I/O.
func (a *Adapter) MoveFolder(ctx context.Context, folder *cloud.Folder, newParent *cloud.Folder) (*cloud.Folder, error) {
	if folder.IsRoot {
		return folder, nil
	}

	item, err := a.updateItem(ctx, "/folders/"+folder.ID,
		map[string]any{"parent": map[string]string{"id": newParent.ID}})
	if err != nil {
		return nil, err
	}

	return item.toFolder()
}

func (a *Adapter) MoveFile(ctx context.Context, file *cloud.File, newParent *cloud.Folder) (*cloud.File, error) {
	item, err := a.updateItem(ctx, "/files/"+file.ID,
		map[string]any{"parent": map[string]string{"id": newParent.ID}})
	if err != nil {
		return nil, err
	}

	return item.toFile()
}

func (a *Adapter) updateItem(ctx context.Context, path string, fields map[string]any) (*itemResponse, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("box: marshaling update request: %w", err)
	}

	resp, err := a.api.Do(ctx, cloud.Request{
		Method: http.MethodPut,
		Path:   path,
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ir itemResponse
	if err := cloud.DecodeJSON(resp.Body, &ir); err != nil {
		return nil, err
	}

	return &ir, nil
}

func (a *Adapter) DeleteFolder(ctx context.Context, folder *cloud.Folder) error {
	return a.deleteItem(ctx, "/folders/"+folder.ID, url.Values{"recursive": {"true"}})
}

func (a *Adapter) DeleteFile(ctx context.Context, file *cloud.File) error {
	return a.deleteItem(ctx, "/files/"+file.ID, nil)
}

func (a *Adapter) deleteItem(ctx context.Context, path string, query url.Values) error {
	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodDelete, Path: path, Query: query})
	if err != nil {
		return err
	}

	cloud.DrainClose(resp.Body)

	return nil
}

// Upload creates a new file via the multipart content endpoint. Box has no
// overwrite flag on upload: with ConflictOverwrite, a name collision is
// resolved by posting a new version to the conflicting file's content
// endpoint, carrying the caller's stated policy through rather than
// guessing it.
func (a *Adapter) Upload(ctx context.Context, parent *cloud.Folder, name string, r io.Reader, size int64, policy cloud.OnConflict) (*cloud.File, error) {
	attributes := map[string]any{
		"name":   name,
		"parent": map[string]string{"id": parent.ID},
	}

	// Buffer the content so the conflict-overwrite path can replay it.
	content, readErr := io.ReadAll(r)
	if readErr != nil {
		return nil, fmt.Errorf("box: reading upload content: %w", readErr)
	}

	file, err := a.uploadMultipart(ctx, "/files/content", attributes, name, bytes.NewReader(content))
	if err == nil {
		return file, nil
	}

	if policy != cloud.ConflictOverwrite || !errors.Is(err, cloud.ErrConflict) {
		return nil, err
	}

	var remote *cloud.RemoteError
	if !errors.As(err, &remote) {
		return nil, err
	}

	existingID := conflictID(remote.Message)
	if existingID == "" {
		return nil, err
	}

	a.logger.Info("upload conflict, overwriting existing file",
		slog.String("provider", "box"),
		slog.String("file_id", existingID),
	)

	return a.UpdateContent(ctx, &cloud.File{ID: existingID, Name: name}, bytes.NewReader(content), size)
}

func (a *Adapter) UpdateContent(ctx context.Context, file *cloud.File, r io.Reader, _ int64) (*cloud.File, error) {
	return a.uploadMultipart(ctx, "/files/"+file.ID+"/content", nil, file.Name, r)
}

func (a *Adapter) uploadMultipart(ctx context.Context, path string, attributes map[string]any, filename string, r io.Reader) (*cloud.File, error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	if attributes != nil {
		attrJSON, err := json.Marshal(attributes)
		if err != nil {
			return nil, fmt.Errorf("box: marshaling upload attributes: %w", err)
		}

		if err := mw.WriteField("attributes", string(attrJSON)); err != nil {
			return nil, fmt.Errorf("box: writing upload attributes: %w", err)
		}
	}

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("box: creating upload part: %w", err)
	}

	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("box: buffering upload content: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("box: finalizing upload body: %w", err)
	}

	resp, err := a.content.Do(ctx, cloud.Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        &buf,
		ContentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ur uploadResponse
	if err := cloud.DecodeJSON(resp.Body, &ur); err != nil {
		return nil, err
	}

	if len(ur.Entries) == 0 {
		return nil, fmt.Errorf("box: upload response has no entries: %w", cloud.ErrMalformedResponse)
	}

	return ur.Entries[0].toFile()
}

// Download streams file content. A freshly uploaded file can answer 202
// while Box finishes processing; DoReady retries with the bounded policy.
func (a *Adapter) Download(ctx context.Context, file *cloud.File, w io.Writer) (int64, error) {
	resp, err := a.api.DoReady(ctx, cloud.Request{
		Method: http.MethodGet,
		Path:   "/files/" + file.ID + "/content",
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return a.api.CopyBody(ctx, w, resp.Body)
}

func (a *Adapter) Thumbnail(ctx context.Context, file *cloud.File, w io.Writer) (int64, error) {
	resp, err := a.api.DoReady(ctx, cloud.Request{
		Method: http.MethodGet,
		Path:   "/files/" + file.ID + "/thumbnail.png",
		Query: url.Values{
			"min_height": {strconv.Itoa(thumbnailMinSize)},
			"min_width":  {strconv.Itoa(thumbnailMinSize)},
		},
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return a.api.CopyBody(ctx, w, resp.Body)
}

// search runs the shared search endpoint, optionally constrained to one
// entity kind.
func (a *Adapter) search(ctx context.Context, query, kind string) ([]itemResponse, error) {
	keep := func(it itemResponse) bool {
		return kind == "" || it.Type == kind
	}

	return cloud.CollectOffset(ctx, searchLimit, keep,
		func(ctx context.Context, offset, limit int) ([]itemResponse, int, error) {
			q := url.Values{
				"query":  {query},
				"limit":  {strconv.Itoa(limit)},
				"offset": {strconv.Itoa(offset)},
			}
			if kind != "" {
				q.Set("type", kind)
			}

			resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodGet, Path: "/search", Query: q})
			if err != nil {
				return nil, 0, err
			}
			defer resp.Body.Close()

			var lr listResponse
			if err := cloud.DecodeJSON(resp.Body, &lr); err != nil {
				return nil, 0, err
			}

			return lr.Entries, lr.TotalCount, nil
		})
}

func (a *Adapter) SearchFiles(ctx context.Context, query string) ([]cloud.File, error) {
	entries, err := a.search(ctx, query, "file")
	if err != nil {
		return nil, err
	}

	return filesOf(entries)
}

func (a *Adapter) SearchFolders(ctx context.Context, query string) ([]cloud.Folder, error) {
	entries, err := a.search(ctx, query, "folder")
	if err != nil {
		return nil, err
	}

	return foldersOf(entries)
}

// Search runs one combined request and partitions the entries.
func (a *Adapter) Search(ctx context.Context, query string) ([]cloud.Folder, []cloud.File, error) {
	entries, err := a.search(ctx, query, "")
	if err != nil {
		return nil, nil, err
	}

	var (
		folders []cloud.Folder
		files   []cloud.File
	)

	for i := range entries {
		switch entries[i].Type {
		case "folder":
			f, convErr := entries[i].toFolder()
			if convErr != nil {
				return nil, nil, convErr
			}

			folders = append(folders, *f)
		case "file":
			f, convErr := entries[i].toFile()
			if convErr != nil {
				return nil, nil, convErr
			}

			files = append(files, *f)
		}
	}

	return folders, files, nil
}

func foldersOf(entries []itemResponse) ([]cloud.Folder, error) {
	var folders []cloud.Folder

	for i := range entries {
		f, err := entries[i].toFolder()
		if err != nil {
			return nil, err
		}

		folders = append(folders, *f)
	}

	return folders, nil
}

func filesOf(entries []itemResponse) ([]cloud.File, error) {
	var files []cloud.File

	for i := range entries {
		f, err := entries[i].toFile()
		if err != nil {
			return nil, err
		}

		files = append(files, *f)
	}

	return files, nil
}
