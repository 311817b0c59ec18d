// Package clouddrive binds the adapter contract to the Amazon Cloud Drive
// dialect: flat ID-addressed nodes related through parents lists, filter
// queries with nextToken continuation, and a separate content host for
// uploads and downloads. The caller-visible root is the synthetic alias
// "root"; the real root node ID is resolved lazily and cached.
package clouddrive

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
	"sync"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

const (
	// rootAlias is the synthetic ID for the drive root.
	rootAlias = "root"

	// listLimit is the page size for node listings; 200 is the service maximum.
	listLimit = 200

	thumbnailViewBox = 256
)

// Adapter implements cloud.Adapter against the Amazon Cloud Drive API.
type Adapter struct {
	cfg     cloud.ProviderConfig
	api     *cloud.Client
	content *cloud.Client
	session *cloud.Session
	http    *http.Client
	logger  *slog.Logger

	mu     sync.Mutex
	rootID string
}

// New constructs a Cloud Drive adapter. Registered with the cloud registry
// under cloud.ProviderCloudDrive.
func New(cfg cloud.ProviderConfig, opts cloud.Options) (cloud.Adapter, error) {
	if cfg.APIBase == "" {
		return nil, fmt.Errorf("clouddrive: missing API base URL")
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

	a.session = cloud.NewSession(cloud.ProviderCloudDrive, opts.AccountID, opts.Tokens, opts.Store, cloud.SessionHooks{
		Validate: a.validate,
		Refresh:  a.refresh,
	}, logger)

	auth := cloud.SessionBearer{Session: a.session}
	a.api = cloud.NewClient(cloud.ProviderCloudDrive, cfg.APIBase, auth, opts)

	contentBase := cfg.ContentBase
	if contentBase == "" {
		contentBase = cfg.APIBase
	}

	a.content = cloud.NewClient(cloud.ProviderCloudDrive, contentBase, auth, opts)

	return a, nil
}

func (a *Adapter) Provider() cloud.Provider {
	return cloud.ProviderCloudDrive
}

func (a *Adapter) Addressing() cloud.AddressingMode {
	return cloud.AddressByID
}

func (a *Adapter) Session() *cloud.Session {
	return a.session
}

// Root synthesizes the drive root under the "root" alias. No network I/O;
// operations that need the real node ID resolve it on first use.
func (a *Adapter) Root() *cloud.Folder {
	return &cloud.Folder{
		ID:     rootAlias,
		Name:   "Amazon Drive",
		IsRoot: true,
	}
}

// resolveID maps the root alias to the real root node ID, cached after the
// first lookup.
func (a *Adapter) resolveID(ctx context.Context, id string) (string, error) {
	if id != rootAlias {
		return id, nil
	}

	a.mu.Lock()
	cached := a.rootID
	a.mu.Unlock()

	if cached != "" {
		return cached, nil
	}

	nodes, err := a.queryNodes(ctx, "isRoot:true", "")
	if err != nil {
		return "", err
	}

	if len(nodes) == 0 || nodes[0].ID == "" {
		return "", fmt.Errorf("clouddrive: no root node: %w", cloud.ErrMalformedResponse)
	}

	a.mu.Lock()
	a.rootID = nodes[0].ID
	a.mu.Unlock()

	return nodes[0].ID, nil
}

func (a *Adapter) validate(ctx context.Context, accessToken string) error {
	resp, err := a.api.Do(ctx, cloud.Request{
		Method: http.MethodGet,
		Path:   "/account/info",
		Auth:   cloud.StaticBearer(accessToken),
	})
	if err != nil {
		return err
	}

	cloud.DrainClose(resp.Body)

	return nil
}

func (a *Adapter) refresh(ctx context.Context, refreshToken string) (*cloud.TokenSet, error) {
	return cloud.RefreshGrant(ctx, a.http, cloud.ProviderCloudDrive,
		a.cfg.TokenURL, a.cfg.ClientID, a.cfg.ClientSecret, refreshToken)
}

func (a *Adapter) CurrentUser(ctx context.Context) (*cloud.User, error) {
	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodGet, Path: "/account/info"})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ar accountResponse
	if err := cloud.DecodeJSON(resp.Body, &ar); err != nil {
		return nil, err
	}

	return ar.toUser()
}

func (a *Adapter) FolderInfo(ctx context.Context, ref cloud.Ref) (*cloud.Folder, error) {
	node, err := a.fetchNode(ctx, ref.ID)
	if err != nil {
		return nil, err
	}

	return node.toFolder()
}

func (a *Adapter) FileInfo(ctx context.Context, ref cloud.Ref) (*cloud.File, error) {
	node, err := a.fetchNode(ctx, ref.ID)
	if err != nil {
		return nil, err
	}

	return node.toFile()
}

func (a *Adapter) fetchNode(ctx context.Context, id string) (*nodeResponse, error) {
	resolved, err := a.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodGet, Path: "/nodes/" + resolved})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var nr nodeResponse
	if err := cloud.DecodeJSON(resp.Body, &nr); err != nil {
		return nil, err
	}

	return &nr, nil
}

// queryNodes runs one filter query to completion, following nextToken.
func (a *Adapter) queryNodes(ctx context.Context, filters string, keepParent string) ([]nodeResponse, error) {
	keep := func(n nodeResponse) bool {
		// The filter query matches on the parents list server-side, but
		// multi-parent nodes can still slip in entries adopted elsewhere.
		return keepParent == "" || n.hasParent(keepParent)
	}

	return cloud.CollectCursor(ctx, keep,
		func(ctx context.Context, cursor string) ([]nodeResponse, string, bool, error) {
			q := url.Values{
				"filters": {filters},
				"limit":   {strconv.Itoa(listLimit)},
			}
			if cursor != "" {
				q.Set("startToken", cursor)
			}

			resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodGet, Path: "/nodes", Query: q})
			if err != nil {
				return nil, "", false, err
			}
			defer resp.Body.Close()

			var nr nodesResponse
			if err := cloud.DecodeJSON(resp.Body, &nr); err != nil {
				return nil, "", false, err
			}

			return nr.Data, nr.NextToken, nr.NextToken != "", nil
		})
}

func (a *Adapter) listChildren(ctx context.Context, parent *cloud.Folder, kind string) ([]nodeResponse, error) {
	parentID, err := a.resolveID(ctx, parent.ID)
	if err != nil {
		return nil, err
	}

	a.logger.Info("listing children",
		slog.String("provider", "clouddrive"),
		slog.String("parent_id", parentID),
		slog.String("kind", kind),
	)

	filters := fmt.Sprintf("kind:%s AND parents:%s", kind, parentID)

	return a.queryNodes(ctx, filters, parentID)
}

func (a *Adapter) ListFolders(ctx context.Context, parent *cloud.Folder) ([]cloud.Folder, error) {
	nodes, err := a.listChildren(ctx, parent, kindFolder)
	if err != nil {
		return nil, err
	}

	return foldersOf(nodes)
}

func (a *Adapter) ListFiles(ctx context.Context, parent *cloud.Folder) ([]cloud.File, error) {
	nodes, err := a.listChildren(ctx, parent, kindFile)
	if err != nil {
		return nil, err
	}

	return filesOf(nodes)
}

func (a *Adapter) CreateFolder(ctx context.Context, parent *cloud.Folder, name string) (*cloud.Folder, error) {
	parentID, err := a.resolveID(ctx, parent.ID)
	if err != nil {
		return nil, err
	}

	node, err := a.writeNode(ctx, http.MethodPost, "/nodes", map[string]any{
		"name":    name,
		"kind":    kindFolder,
		"parents": []string{parentID},
	})
	if err != nil {
		return nil, err
	}

	return node.toFolder()
}

func (a *Adapter) RenameFolder(ctx context.Context, folder *cloud.Folder, newName string) (*cloud.Folder, error) {
	// The root is immutable and a no-op rename needs no round trip.
	if folder.IsRoot || cloud.SameName(folder.Name, newName) {
		return folder, nil
	}

	node, err := a.writeNode(ctx, http.MethodPatch, "/nodes/"+folder.ID, map[string]any{"name": newName})
	if err != nil {
		return nil, err
	}

	return node.toFolder()
}

func (a *Adapter) RenameFile(ctx context.Context, file *cloud.File, newName string) (*cloud.File, error) {
	if cloud.SameName(file.Name, newName) {
		return file, nil
	}

	node, err := a.writeNode(ctx, http.MethodPatch, "/nodes/"+file.ID, map[string]any{"name": newName})
	if err != nil {
		return nil, err
	}

	return node.toFile()
}

// MoveFolder reparents a folder. Canonical entities carry no parent
// reference, so a move into the current parent cannot be detected locally
// and still issues one request; only the root is rejected without I/O.
func (a *Adapter) MoveFolder(ctx context.Context, folder *cloud.Folder, newParent *cloud.Folder) (*cloud.Folder, error) {
	if folder.IsRoot {
		return folder, nil
	}

	node, err := a.reparent(ctx, folder.ID, newParent)
	if err != nil {
		return nil, err
	}

	return node.toFolder()
}

func (a *Adapter) MoveFile(ctx context.Context, file *cloud.File, newParent *cloud.Folder) (*cloud.File, error) {
	node, err := a.reparent(ctx, file.ID, newParent)
	if err != nil {
		return nil, err
	}

	return node.toFile()
}

// reparent replaces the node's parents list. Multi-parent membership is not
// preserved across a move.
func (a *Adapter) reparent(ctx context.Context, id string, newParent *cloud.Folder) (*nodeResponse, error) {
	parentID, err := a.resolveID(ctx, newParent.ID)
	if err != nil {
		return nil, err
	}

	return a.writeNode(ctx, http.MethodPatch, "/nodes/"+id, map[string]any{"parents": []string{parentID}})
}

func (a *Adapter) writeNode(ctx context.Context, method, path string, fields map[string]any) (*nodeResponse, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("clouddrive: marshaling request: %w", err)
	}

	resp, err := a.api.Do(ctx, cloud.Request{Method: method, Path: path, Body: bytes.NewReader(body)})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var nr nodeResponse
	if err := cloud.DecodeJSON(resp.Body, &nr); err != nil {
		return nil, err
	}

	return &nr, nil
}

// DeleteFolder moves the folder to the trash. Cloud Drive has no permanent
// delete on this surface.
func (a *Adapter) DeleteFolder(ctx context.Context, folder *cloud.Folder) error {
	return a.trashNode(ctx, folder.ID)
}

func (a *Adapter) DeleteFile(ctx context.Context, file *cloud.File) error {
	return a.trashNode(ctx, file.ID)
}

func (a *Adapter) trashNode(ctx context.Context, id string) error {
	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodPut, Path: "/trash/" + id})
	if err != nil {
		return err
	}

	cloud.DrainClose(resp.Body)

	return nil
}

// Upload creates a new file via the multipart content endpoint. Cloud Drive
// has no overwrite flag on upload: with ConflictOverwrite, a name collision
// is resolved by replacing the conflicting node's content, carrying the
// caller's stated policy through rather than guessing it.
func (a *Adapter) Upload(ctx context.Context, parent *cloud.Folder, name string, r io.Reader, size int64, policy cloud.OnConflict) (*cloud.File, error) {
	parentID, err := a.resolveID(ctx, parent.ID)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"name":    name,
		"kind":    kindFile,
		"parents": []string{parentID},
	}

	// Buffer the content so the conflict-overwrite path can replay it.
	content, readErr := io.ReadAll(r)
	if readErr != nil {
		return nil, fmt.Errorf("clouddrive: reading upload content: %w", readErr)
	}

	file, err := a.uploadMultipart(ctx, http.MethodPost, "/nodes", metadata, name, bytes.NewReader(content))
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

	existingID := conflictNodeID(remote.Message)
	if existingID == "" {
		return nil, err
	}

	a.logger.Info("upload conflict, overwriting existing node",
		slog.String("provider", "clouddrive"),
		slog.String("node_id", existingID),
	)

	return a.UpdateContent(ctx, &cloud.File{ID: existingID, Name: name}, bytes.NewReader(content), size)
}

func (a *Adapter) UpdateContent(ctx context.Context, file *cloud.File, r io.Reader, _ int64) (*cloud.File, error) {
	return a.uploadMultipart(ctx, http.MethodPut, "/nodes/"+file.ID+"/content", nil, file.Name, r)
}

func (a *Adapter) uploadMultipart(ctx context.Context, method, path string, metadata map[string]any, filename string, r io.Reader) (*cloud.File, error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	if metadata != nil {
		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("clouddrive: marshaling upload metadata: %w", err)
		}

		if err := mw.WriteField("metadata", string(metaJSON)); err != nil {
			return nil, fmt.Errorf("clouddrive: writing upload metadata: %w", err)
		}
	}

	fw, err := mw.CreateFormFile("content", filename)
	if err != nil {
		return nil, fmt.Errorf("clouddrive: creating upload part: %w", err)
	}

	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("clouddrive: buffering upload content: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("clouddrive: finalizing upload body: %w", err)
	}

	resp, err := a.content.Do(ctx, cloud.Request{
		Method:      method,
		Path:        path,
		Query:       url.Values{"suppress": {"deduplication"}},
		Body:        &buf,
		ContentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var nr nodeResponse
	if err := cloud.DecodeJSON(resp.Body, &nr); err != nil {
		return nil, err
	}

	return nr.toFile()
}

// Download streams file content. A freshly uploaded node can answer 202
// while the service finishes processing; DoReady retries with the bounded
// policy.
func (a *Adapter) Download(ctx context.Context, file *cloud.File, w io.Writer) (int64, error) {
	resp, err := a.content.DoReady(ctx, cloud.Request{
		Method: http.MethodGet,
		Path:   "/nodes/" + file.ID + "/content",
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return a.content.CopyBody(ctx, w, resp.Body)
}

// Thumbnail streams a scaled rendition via the viewBox parameter.
func (a *Adapter) Thumbnail(ctx context.Context, file *cloud.File, w io.Writer) (int64, error) {
	resp, err := a.content.DoReady(ctx, cloud.Request{
		Method: http.MethodGet,
		Path:   "/nodes/" + file.ID + "/content",
		Query:  url.Values{"viewBox": {strconv.Itoa(thumbnailViewBox)}},
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return a.content.CopyBody(ctx, w, resp.Body)
}

func (a *Adapter) SearchFiles(ctx context.Context, query string) ([]cloud.File, error) {
	nodes, err := a.queryNodes(ctx, fmt.Sprintf("kind:%s AND name:%s", kindFile, query), "")
	if err != nil {
		return nil, err
	}

	return filesOf(nodes)
}

func (a *Adapter) SearchFolders(ctx context.Context, query string) ([]cloud.Folder, error) {
	nodes, err := a.queryNodes(ctx, fmt.Sprintf("kind:%s AND name:%s", kindFolder, query), "")
	if err != nil {
		return nil, err
	}

	return foldersOf(nodes)
}

// Search runs one combined name query and partitions the nodes by kind.
func (a *Adapter) Search(ctx context.Context, query string) ([]cloud.Folder, []cloud.File, error) {
	nodes, err := a.queryNodes(ctx, "name:"+query, "")
	if err != nil {
		return nil, nil, err
	}

	var (
		folders []cloud.Folder
		files   []cloud.File
	)

	for i := range nodes {
		switch nodes[i].Kind {
		case kindFolder:
			f, convErr := nodes[i].toFolder()
			if convErr != nil {
				return nil, nil, convErr
			}

			folders = append(folders, *f)
		case kindFile:
			f, convErr := nodes[i].toFile()
			if convErr != nil {
				return nil, nil, convErr
			}

			files = append(files, *f)
		}
	}

	return folders, files, nil
}

func foldersOf(nodes []nodeResponse) ([]cloud.Folder, error) {
	var folders []cloud.Folder

	for i := range nodes {
		f, err := nodes[i].toFolder()
		if err != nil {
			return nil, err
		}

		folders = append(folders, *f)
	}

	return folders, nil
}

func filesOf(nodes []nodeResponse) ([]cloud.File, error) {
	var files []cloud.File

	for i := range nodes {
		f, err := nodes[i].toFile()
		if err != nil {
			return nil, err
		}

		files = append(files, *f)
	}

	return files, nil
}
