// Package yandex binds the adapter contract to the Yandex Disk REST
// dialect: path-addressed resources under a "disk:/" root, offset/limit
// pagination with a declared total, and href indirection where modifying
// and content calls answer with a link to follow. Only files are indexed
// for search; folder search always yields an empty result.
package yandex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

const (
	// listLimit is the page size for folder listings.
	listLimit = 200

	thumbnailSize = "256x256"
)

// Adapter implements cloud.Adapter against the Yandex Disk API.
type Adapter struct {
	cfg     cloud.ProviderConfig
	api     *cloud.Client
	session *cloud.Session
	http    *http.Client
	logger  *slog.Logger
}

// New constructs a Yandex Disk adapter. Registered with the cloud registry
// under cloud.ProviderYandex.
func New(cfg cloud.ProviderConfig, opts cloud.Options) (cloud.Adapter, error) {
	if cfg.APIBase == "" {
		return nil, fmt.Errorf("yandex: missing API base URL")
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

	a.session = cloud.NewSession(cloud.ProviderYandex, opts.AccountID, opts.Tokens, opts.Store, cloud.SessionHooks{
		Validate: a.validate,
		Refresh:  a.refresh,
		Revoke:   a.revoke,
	}, logger)

	a.api = cloud.NewClient(cloud.ProviderYandex, cfg.APIBase, cloud.SessionBearer{Session: a.session}, opts)

	return a, nil
}

func (a *Adapter) Provider() cloud.Provider {
	return cloud.ProviderYandex
}

func (a *Adapter) Addressing() cloud.AddressingMode {
	return cloud.AddressByPath
}

func (a *Adapter) Session() *cloud.Session {
	return a.session
}

// Root synthesizes the Disk root at "disk:/". No network I/O.
func (a *Adapter) Root() *cloud.Folder {
	return &cloud.Folder{
		Path:   rootPath,
		Name:   "Disk",
		Size:   cloud.SizeUnknown,
		IsRoot: true,
	}
}

func (a *Adapter) validate(ctx context.Context, accessToken string) error {
	resp, err := a.api.Do(ctx, cloud.Request{
		Method: http.MethodGet,
		Path:   "/",
		Auth:   cloud.StaticBearer(accessToken),
	})
	if err != nil {
		return err
	}

	cloud.DrainClose(resp.Body)

	return nil
}

func (a *Adapter) refresh(ctx context.Context, refreshToken string) (*cloud.TokenSet, error) {
	return cloud.RefreshGrant(ctx, a.http, cloud.ProviderYandex,
		a.cfg.TokenURL, a.cfg.ClientID, a.cfg.ClientSecret, refreshToken)
}

func (a *Adapter) revoke(ctx context.Context, tokens *cloud.TokenSet) error {
	return cloud.RevokeToken(ctx, a.http, cloud.ProviderYandex,
		a.cfg.RevokeURL, a.cfg.ClientID, a.cfg.ClientSecret, tokens.AccessToken)
}

func (a *Adapter) CurrentUser(ctx context.Context) (*cloud.User, error) {
	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodGet, Path: "/"})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dr diskResponse
	if err := cloud.DecodeJSON(resp.Body, &dr); err != nil {
		return nil, err
	}

	return dr.toUser()
}

// getResource fetches one resource's metadata.
func (a *Adapter) getResource(ctx context.Context, path string, extra url.Values) (*resourceResponse, error) {
	q := url.Values{"path": {path}}
	for k, vs := range extra {
		q[k] = vs
	}

	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodGet, Path: "/resources", Query: q})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rr resourceResponse
	if err := cloud.DecodeJSON(resp.Body, &rr); err != nil {
		return nil, err
	}

	return &rr, nil
}

func (a *Adapter) FolderInfo(ctx context.Context, ref cloud.Ref) (*cloud.Folder, error) {
	rr, err := a.getResource(ctx, ref.Path, nil)
	if err != nil {
		return nil, err
	}

	return rr.toFolder()
}

func (a *Adapter) FileInfo(ctx context.Context, ref cloud.Ref) (*cloud.File, error) {
	rr, err := a.getResource(ctx, ref.Path, nil)
	if err != nil {
		return nil, err
	}

	return rr.toFile()
}

// listChildren accumulates one entity kind from the offset-paged listing.
func (a *Adapter) listChildren(ctx context.Context, parent *cloud.Folder, kind string) ([]resourceResponse, error) {
	a.logger.Info("listing children",
		slog.String("provider", "yandex"),
		slog.String("parent_path", parent.Path),
		slog.String("kind", kind),
	)

	keep := func(rr resourceResponse) bool {
		return rr.Type == kind
	}

	return cloud.CollectOffset(ctx, listLimit, keep,
		func(ctx context.Context, offset, limit int) ([]resourceResponse, int, error) {
			rr, err := a.getResource(ctx, parent.Path, url.Values{
				"limit":  {strconv.Itoa(limit)},
				"offset": {strconv.Itoa(offset)},
				"sort":   {"name"},
			})
			if err != nil {
				return nil, 0, err
			}

			if rr.Embedded == nil {
				return nil, 0, fmt.Errorf("yandex: listing missing _embedded: %w", cloud.ErrMalformedResponse)
			}

			return rr.Embedded.Items, rr.Embedded.Total, nil
		})
}

func (a *Adapter) ListFolders(ctx context.Context, parent *cloud.Folder) ([]cloud.Folder, error) {
	entries, err := a.listChildren(ctx, parent, typeDir)
	if err != nil {
		return nil, err
	}

	return foldersOf(entries)
}

func (a *Adapter) ListFiles(ctx context.Context, parent *cloud.Folder) ([]cloud.File, error) {
	entries, err := a.listChildren(ctx, parent, typeFile)
	if err != nil {
		return nil, err
	}

	return filesOf(entries)
}

// CreateFolder issues the PUT and fetches the created resource: the API
// answers with a link, not metadata.
func (a *Adapter) CreateFolder(ctx context.Context, parent *cloud.Folder, name string) (*cloud.Folder, error) {
	path := joinPath(parent.Path, name)

	resp, err := a.api.Do(ctx, cloud.Request{
		Method: http.MethodPut,
		Path:   "/resources",
		Query:  url.Values{"path": {path}},
	})
	if err != nil {
		return nil, err
	}

	cloud.DrainClose(resp.Body)

	rr, err := a.getResource(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	return rr.toFolder()
}

// move relocates a resource and fetches the destination metadata.
func (a *Adapter) move(ctx context.Context, fromPath, toPath string) (*resourceResponse, error) {
	resp, err := a.api.Do(ctx, cloud.Request{
		Method: http.MethodPost,
		Path:   "/resources/move",
		Query: url.Values{
			"from":      {fromPath},
			"path":      {toPath},
			"overwrite": {"false"},
		},
	})
	if err != nil {
		return nil, err
	}

	cloud.DrainClose(resp.Body)

	return a.getResource(ctx, toPath, nil)
}

func (a *Adapter) RenameFolder(ctx context.Context, folder *cloud.Folder, newName string) (*cloud.Folder, error) {
	// The root is immutable and a no-op rename needs no round trip.
	if folder.IsRoot || cloud.SameName(folder.Name, newName) {
		return folder, nil
	}

	rr, err := a.move(ctx, folder.Path, joinPath(parentDir(folder.Path), newName))
	if err != nil {
		return nil, err
	}

	return rr.toFolder()
}

func (a *Adapter) RenameFile(ctx context.Context, file *cloud.File, newName string) (*cloud.File, error) {
	if cloud.SameName(file.Name, newName) {
		return file, nil
	}

	rr, err := a.move(ctx, file.Path, joinPath(parentDir(file.Path), newName))
	if err != nil {
		return nil, err
	}

	return rr.toFile()
}

func (a *Adapter) MoveFolder(ctx context.Context, folder *cloud.Folder, newParent *cloud.Folder) (*cloud.Folder, error) {
	if folder.IsRoot || parentDir(folder.Path) == newParent.Path {
		return folder, nil
	}

	rr, err := a.move(ctx, folder.Path, joinPath(newParent.Path, folder.Name))
	if err != nil {
		return nil, err
	}

	return rr.toFolder()
}

func (a *Adapter) MoveFile(ctx context.Context, file *cloud.File, newParent *cloud.Folder) (*cloud.File, error) {
	if parentDir(file.Path) == newParent.Path {
		return file, nil
	}

	rr, err := a.move(ctx, file.Path, joinPath(newParent.Path, file.Name))
	if err != nil {
		return nil, err
	}

	return rr.toFile()
}

func (a *Adapter) DeleteFolder(ctx context.Context, folder *cloud.Folder) error {
	return a.deleteResource(ctx, folder.Path)
}

func (a *Adapter) DeleteFile(ctx context.Context, file *cloud.File) error {
	return a.deleteResource(ctx, file.Path)
}

func (a *Adapter) deleteResource(ctx context.Context, path string) error {
	resp, err := a.api.Do(ctx, cloud.Request{
		Method: http.MethodDelete,
		Path:   "/resources",
		Query: url.Values{
			"path":        {path},
			"permanently": {"true"},
		},
	})
	if err != nil {
		return err
	}

	cloud.DrainClose(resp.Body)

	return nil
}

// followLink fetches a link-typed response and validates the href.
func (a *Adapter) followLink(ctx context.Context, path string, query url.Values) (*linkResponse, error) {
	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var lr linkResponse
	if err := cloud.DecodeJSON(resp.Body, &lr); err != nil {
		return nil, err
	}

	if lr.Href == "" {
		return nil, fmt.Errorf("yandex: link response missing href: %w", cloud.ErrMalformedResponse)
	}

	return &lr, nil
}

// Upload asks for an upload href, streams the content to it, then fetches
// the resulting metadata. The conflict policy maps onto the overwrite
// flag; with overwrite=false an existing path rejects the href request
// with a conflict error before any content moves.
func (a *Adapter) Upload(ctx context.Context, parent *cloud.Folder, name string, r io.Reader, _ int64, policy cloud.OnConflict) (*cloud.File, error) {
	return a.upload(ctx, joinPath(parent.Path, name), policy == cloud.ConflictOverwrite, r)
}

func (a *Adapter) UpdateContent(ctx context.Context, file *cloud.File, r io.Reader, _ int64) (*cloud.File, error) {
	return a.upload(ctx, file.Path, true, r)
}

func (a *Adapter) upload(ctx context.Context, path string, overwrite bool, r io.Reader) (*cloud.File, error) {
	lr, err := a.followLink(ctx, "/resources/upload", url.Values{
		"path":      {path},
		"overwrite": {strconv.FormatBool(overwrite)},
	})
	if err != nil {
		return nil, err
	}

	method := lr.Method
	if method == "" {
		method = http.MethodPut
	}

	// The href is pre-authenticated; no bearer header.
	resp, err := a.api.Do(ctx, cloud.Request{
		Method:      method,
		URL:         lr.Href,
		Body:        r,
		ContentType: "application/octet-stream",
		NoAuth:      true,
	})
	if err != nil {
		return nil, err
	}

	cloud.DrainClose(resp.Body)

	rr, err := a.getResource(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	return rr.toFile()
}

func (a *Adapter) Download(ctx context.Context, file *cloud.File, w io.Writer) (int64, error) {
	lr, err := a.followLink(ctx, "/resources/download", url.Values{"path": {file.Path}})
	if err != nil {
		return 0, err
	}

	method := lr.Method
	if method == "" {
		method = http.MethodGet
	}

	resp, err := a.api.Do(ctx, cloud.Request{Method: method, URL: lr.Href, NoAuth: true})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return a.api.CopyBody(ctx, w, resp.Body)
}

// Thumbnail fetches the preview rendition. The preview href requires the
// bearer header, unlike download hrefs.
func (a *Adapter) Thumbnail(ctx context.Context, file *cloud.File, w io.Writer) (int64, error) {
	rr, err := a.getResource(ctx, file.Path, url.Values{"preview_size": {thumbnailSize}})
	if err != nil {
		return 0, err
	}

	if rr.Preview == "" {
		return 0, &cloud.RemoteError{
			Provider:   cloud.ProviderYandex,
			StatusCode: http.StatusNotFound,
			Message:    "no preview for " + file.Name,
			Err:        cloud.ErrNotFound,
		}
	}

	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodGet, URL: rr.Preview})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return a.api.CopyBody(ctx, w, resp.Body)
}

// SearchFiles scans the flat file index, matching names case-insensitively
// on their normalized forms. The index carries no total, so pagination
// terminates on a short page.
func (a *Adapter) SearchFiles(ctx context.Context, query string) ([]cloud.File, error) {
	needle := strings.ToLower(cloud.NormalizeName(query))

	keep := func(rr resourceResponse) bool {
		return strings.Contains(strings.ToLower(cloud.NormalizeName(rr.Name)), needle)
	}

	entries, err := cloud.CollectCursor(ctx, keep,
		func(ctx context.Context, cursor string) ([]resourceResponse, string, bool, error) {
			offset := 0

			if cursor != "" {
				parsed, parseErr := strconv.Atoi(cursor)
				if parseErr != nil {
					return nil, "", false, fmt.Errorf("yandex: bad offset cursor %q: %w", cursor, parseErr)
				}

				offset = parsed
			}

			resp, err := a.api.Do(ctx, cloud.Request{
				Method: http.MethodGet,
				Path:   "/resources/files",
				Query: url.Values{
					"limit":  {strconv.Itoa(listLimit)},
					"offset": {strconv.Itoa(offset)},
				},
			})
			if err != nil {
				return nil, "", false, err
			}
			defer resp.Body.Close()

			var fr filesIndexResponse
			if err := cloud.DecodeJSON(resp.Body, &fr); err != nil {
				return nil, "", false, err
			}

			hasMore := len(fr.Items) == listLimit

			return fr.Items, strconv.Itoa(offset + len(fr.Items)), hasMore, nil
		})
	if err != nil {
		return nil, err
	}

	return filesOf(entries)
}

// SearchFolders always returns an empty result: the Disk API indexes files
// only.
func (a *Adapter) SearchFolders(_ context.Context, _ string) ([]cloud.Folder, error) {
	return nil, nil
}

// Search fans out to the per-kind variants.
func (a *Adapter) Search(ctx context.Context, query string) ([]cloud.Folder, []cloud.File, error) {
	return cloud.SearchBoth(ctx, a, query)
}

func foldersOf(entries []resourceResponse) ([]cloud.Folder, error) {
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

func filesOf(entries []resourceResponse) ([]cloud.File, error) {
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
