// Package onedrive binds the adapter contract to the Microsoft Graph drive
// dialect: ID-addressed driveItems with a "root" alias, @odata.nextLink
// pagination, facet-discriminated entity kinds, and path-colon addressing
// for content uploads.
package onedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

const (
	// rootAlias is Graph's path alias for the drive root.
	rootAlias = "root"

	// listTop is the page size hint for children listings.
	listTop = 200
)

// Adapter implements cloud.Adapter against the Microsoft Graph API.
type Adapter struct {
	cfg     cloud.ProviderConfig
	api     *cloud.Client
	session *cloud.Session
	http    *http.Client
	logger  *slog.Logger
}

// New constructs a OneDrive adapter. Registered with the cloud registry
// under cloud.ProviderOneDrive.
func New(cfg cloud.ProviderConfig, opts cloud.Options) (cloud.Adapter, error) {
	if cfg.APIBase == "" {
		return nil, fmt.Errorf("onedrive: missing API base URL")
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

	a.session = cloud.NewSession(cloud.ProviderOneDrive, opts.AccountID, opts.Tokens, opts.Store, cloud.SessionHooks{
		Validate: a.validate,
		Refresh:  a.refresh,
	}, logger)

	a.api = cloud.NewClient(cloud.ProviderOneDrive, cfg.APIBase, cloud.SessionBearer{Session: a.session}, opts)

	return a, nil
}

func (a *Adapter) Provider() cloud.Provider {
	return cloud.ProviderOneDrive
}

func (a *Adapter) Addressing() cloud.AddressingMode {
	return cloud.AddressByID
}

func (a *Adapter) Session() *cloud.Session {
	return a.session
}

// Root synthesizes the drive root under Graph's "root" alias. No network
// I/O; FolderInfo on the alias resolves the real item ID when needed.
func (a *Adapter) Root() *cloud.Folder {
	return &cloud.Folder{
		ID:     rootAlias,
		Name:   "root",
		IsRoot: true,
	}
}

// itemPath resolves a driveItem API path, honoring the root alias.
func itemPath(id string) string {
	if id == rootAlias {
		return "/me/drive/root"
	}

	return "/me/drive/items/" + id
}

func (a *Adapter) validate(ctx context.Context, accessToken string) error {
	resp, err := a.api.Do(ctx, cloud.Request{
		Method: http.MethodGet,
		Path:   "/me",
		Auth:   cloud.StaticBearer(accessToken),
	})
	if err != nil {
		return err
	}

	cloud.DrainClose(resp.Body)

	return nil
}

func (a *Adapter) refresh(ctx context.Context, refreshToken string) (*cloud.TokenSet, error) {
	return cloud.RefreshGrant(ctx, a.http, cloud.ProviderOneDrive,
		a.cfg.TokenURL, a.cfg.ClientID, a.cfg.ClientSecret, refreshToken)
}

func (a *Adapter) CurrentUser(ctx context.Context) (*cloud.User, error) {
	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodGet, Path: "/me"})
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
	item, err := a.fetchItem(ctx, ref.ID)
	if err != nil {
		return nil, err
	}

	if !item.isFolder() && item.Root == nil {
		return nil, fmt.Errorf("onedrive: item %s is not a folder: %w", ref.ID, cloud.ErrMalformedResponse)
	}

	return item.toFolder()
}

func (a *Adapter) FileInfo(ctx context.Context, ref cloud.Ref) (*cloud.File, error) {
	item, err := a.fetchItem(ctx, ref.ID)
	if err != nil {
		return nil, err
	}

	if !item.isFile() {
		return nil, fmt.Errorf("onedrive: item %s is not a file: %w", ref.ID, cloud.ErrMalformedResponse)
	}

	return item.toFile()
}

func (a *Adapter) fetchItem(ctx context.Context, id string) (*driveItemResponse, error) {
	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodGet, Path: itemPath(id)})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ir driveItemResponse
	if err := cloud.DecodeJSON(resp.Body, &ir); err != nil {
		return nil, err
	}

	return &ir, nil
}

// collectItems follows @odata.nextLink until the listing is complete.
// Follow-up links are absolute URLs on the Graph host and still need
// authorization.
func (a *Adapter) collectItems(ctx context.Context, first string, keep cloud.Keep[driveItemResponse]) ([]driveItemResponse, error) {
	return cloud.CollectNextLink(ctx, first, keep,
		func(ctx context.Context, link string) ([]driveItemResponse, string, error) {
			resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodGet, URL: link})
			if err != nil {
				return nil, "", err
			}
			defer resp.Body.Close()

			var lr listResponse
			if err := cloud.DecodeJSON(resp.Body, &lr); err != nil {
				return nil, "", err
			}

			return lr.Value, lr.NextLink, nil
		})
}

func (a *Adapter) listChildren(ctx context.Context, parent *cloud.Folder, keep cloud.Keep[driveItemResponse]) ([]driveItemResponse, error) {
	a.logger.Info("listing children",
		slog.String("provider", "onedrive"),
		slog.String("parent_id", parent.ID),
	)

	first := fmt.Sprintf("%s%s/children?$top=%d", a.api.BaseURL(), itemPath(parent.ID), listTop)

	return a.collectItems(ctx, first, keep)
}

func (a *Adapter) ListFolders(ctx context.Context, parent *cloud.Folder) ([]cloud.Folder, error) {
	entries, err := a.listChildren(ctx, parent, keepFolders)
	if err != nil {
		return nil, err
	}

	return foldersOf(entries)
}

func (a *Adapter) ListFiles(ctx context.Context, parent *cloud.Folder) ([]cloud.File, error) {
	entries, err := a.listChildren(ctx, parent, keepFiles)
	if err != nil {
		return nil, err
	}

	return filesOf(entries)
}

func (a *Adapter) CreateFolder(ctx context.Context, parent *cloud.Folder, name string) (*cloud.Folder, error) {
	item, err := a.writeItem(ctx, http.MethodPost, itemPath(parent.ID)+"/children", map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "fail",
	})
	if err != nil {
		return nil, err
	}

	return item.toFolder()
}

func (a *Adapter) RenameFolder(ctx context.Context, folder *cloud.Folder, newName string) (*cloud.Folder, error) {
	// The root is immutable and a no-op rename needs no round trip.
	if folder.IsRoot || cloud.SameName(folder.Name, newName) {
		return folder, nil
	}

	item, err := a.writeItem(ctx, http.MethodPatch, itemPath(folder.ID), map[string]any{"name": newName})
	if err != nil {
		return nil, err
	}

	return item.toFolder()
}

func (a *Adapter) RenameFile(ctx context.Context, file *cloud.File, newName string) (*cloud.File, error) {
	if cloud.SameName(file.Name, newName) {
		return file, nil
	}

	item, err := a.writeItem(ctx, http.MethodPatch, itemPath(file.ID), map[string]any{"name": newName})
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

	item, err := a.writeItem(ctx, http.MethodPatch, itemPath(folder.ID),
		map[string]any{"parentReference": map[string]string{"id": newParent.ID}})
	if err != nil {
		return nil, err
	}

	return item.toFolder()
}

func (a *Adapter) MoveFile(ctx context.Context, file *cloud.File, newParent *cloud.Folder) (*cloud.File, error) {
	item, err := a.writeItem(ctx, http.MethodPatch, itemPath(file.ID),
		map[string]any{"parentReference": map[string]string{"id": newParent.ID}})
	if err != nil {
		return nil, err
	}

	return item.toFile()
}

func (a *Adapter) writeItem(ctx context.Context, method, path string, fields map[string]any) (*driveItemResponse, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("onedrive: marshaling request: %w", err)
	}

	resp, err := a.api.Do(ctx, cloud.Request{Method: method, Path: path, Body: bytes.NewReader(body)})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ir driveItemResponse
	if err := cloud.DecodeJSON(resp.Body, &ir); err != nil {
		return nil, err
	}

	return &ir, nil
}

func (a *Adapter) DeleteFolder(ctx context.Context, folder *cloud.Folder) error {
	return a.deleteItem(ctx, folder.ID)
}

func (a *Adapter) DeleteFile(ctx context.Context, file *cloud.File) error {
	return a.deleteItem(ctx, file.ID)
}

func (a *Adapter) deleteItem(ctx context.Context, id string) error {
	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodDelete, Path: itemPath(id)})
	if err != nil {
		return err
	}

	cloud.DrainClose(resp.Body)

	return nil
}

// Upload creates a file via simple PUT upload under the parent's path-colon
// address. The conflict policy maps onto Graph's conflictBehavior: fail or
// replace.
func (a *Adapter) Upload(ctx context.Context, parent *cloud.Folder, name string, r io.Reader, _ int64, policy cloud.OnConflict) (*cloud.File, error) {
	behavior := "fail"
	if policy == cloud.ConflictOverwrite {
		behavior = "replace"
	}

	path := itemPath(parent.ID) + ":/" + url.PathEscape(name) + ":/content"

	return a.putContent(ctx, path, url.Values{"@microsoft.graph.conflictBehavior": {behavior}}, r)
}

func (a *Adapter) UpdateContent(ctx context.Context, file *cloud.File, r io.Reader, _ int64) (*cloud.File, error) {
	return a.putContent(ctx, itemPath(file.ID)+"/content", nil, r)
}

func (a *Adapter) putContent(ctx context.Context, path string, query url.Values, r io.Reader) (*cloud.File, error) {
	resp, err := a.api.Do(ctx, cloud.Request{
		Method:      http.MethodPut,
		Path:        path,
		Query:       query,
		Body:        r,
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ir driveItemResponse
	if err := cloud.DecodeJSON(resp.Body, &ir); err != nil {
		return nil, err
	}

	return ir.toFile()
}

// Download streams file content. Graph answers with a redirect to a
// pre-authenticated download URL, which the HTTP client follows.
func (a *Adapter) Download(ctx context.Context, file *cloud.File, w io.Writer) (int64, error) {
	resp, err := a.api.Do(ctx, cloud.Request{
		Method: http.MethodGet,
		Path:   itemPath(file.ID) + "/content",
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return a.api.CopyBody(ctx, w, resp.Body)
}

// Thumbnail streams the medium-size thumbnail. A freshly uploaded file can
// answer 202 while thumbnails are generated; DoReady retries with the
// bounded policy.
func (a *Adapter) Thumbnail(ctx context.Context, file *cloud.File, w io.Writer) (int64, error) {
	resp, err := a.api.DoReady(ctx, cloud.Request{
		Method: http.MethodGet,
		Path:   itemPath(file.ID) + "/thumbnails/0/medium/content",
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return a.api.CopyBody(ctx, w, resp.Body)
}

// search runs the drive-wide search, optionally constrained by a facet
// filter.
func (a *Adapter) search(ctx context.Context, query string, keep cloud.Keep[driveItemResponse]) ([]driveItemResponse, error) {
	escaped := url.PathEscape(strings.ReplaceAll(query, "'", "''"))
	first := fmt.Sprintf("%s/me/drive/root/search(q='%s')", a.api.BaseURL(), escaped)

	return a.collectItems(ctx, first, keep)
}

func (a *Adapter) SearchFiles(ctx context.Context, query string) ([]cloud.File, error) {
	entries, err := a.search(ctx, query, keepFiles)
	if err != nil {
		return nil, err
	}

	return filesOf(entries)
}

func (a *Adapter) SearchFolders(ctx context.Context, query string) ([]cloud.Folder, error) {
	entries, err := a.search(ctx, query, keepFolders)
	if err != nil {
		return nil, err
	}

	return foldersOf(entries)
}

// Search runs one combined request and partitions the entries by facet.
func (a *Adapter) Search(ctx context.Context, query string) ([]cloud.Folder, []cloud.File, error) {
	entries, err := a.search(ctx, query, nil)
	if err != nil {
		return nil, nil, err
	}

	var (
		folders []cloud.Folder
		files   []cloud.File
	)

	for i := range entries {
		switch {
		case entries[i].isFolder():
			f, convErr := entries[i].toFolder()
			if convErr != nil {
				return nil, nil, convErr
			}

			folders = append(folders, *f)
		case entries[i].isFile():
			f, convErr := entries[i].toFile()
			if convErr != nil {
				return nil, nil, convErr
			}

			files = append(files, *f)
		}
	}

	return folders, files, nil
}

func keepFolders(it driveItemResponse) bool {
	return it.isFolder()
}

func keepFiles(it driveItemResponse) bool {
	return it.isFile()
}

func foldersOf(entries []driveItemResponse) ([]cloud.Folder, error) {
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

func filesOf(entries []driveItemResponse) ([]cloud.File, error) {
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
