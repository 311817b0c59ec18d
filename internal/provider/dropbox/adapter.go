// Package dropbox binds the adapter contract to the Dropbox v2 RPC dialect:
// path-addressed entities, POST-with-JSON-arguments calls, cursor pagination
// via continue endpoints, and content transfers on a separate host driven by
// the Dropbox-API-Arg header. Dropbox tokens are long-lived and have no
// refresh grant, so an invalid token always means re-authentication.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

const thumbnailSize = "w256h256"

// Adapter implements cloud.Adapter against the Dropbox v2 API.
type Adapter struct {
	cfg     cloud.ProviderConfig
	api     *cloud.Client
	content *cloud.Client
	session *cloud.Session
	logger  *slog.Logger
}

// New constructs a Dropbox adapter. Registered with the cloud registry under
// cloud.ProviderDropbox.
func New(cfg cloud.ProviderConfig, opts cloud.Options) (cloud.Adapter, error) {
	if cfg.APIBase == "" {
		return nil, fmt.Errorf("dropbox: missing API base URL")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		cfg:    cfg,
		logger: logger,
	}

	a.session = cloud.NewSession(cloud.ProviderDropbox, opts.AccountID, opts.Tokens, opts.Store, cloud.SessionHooks{
		Validate: a.validate,
		Revoke:   a.revoke,
	}, logger)

	auth := cloud.SessionBearer{Session: a.session}
	a.api = cloud.NewClient(cloud.ProviderDropbox, cfg.APIBase, auth, opts)

	contentBase := cfg.ContentBase
	if contentBase == "" {
		contentBase = cfg.APIBase
	}

	a.content = cloud.NewClient(cloud.ProviderDropbox, contentBase, auth, opts)

	return a, nil
}

func (a *Adapter) Provider() cloud.Provider {
	return cloud.ProviderDropbox
}

func (a *Adapter) Addressing() cloud.AddressingMode {
	return cloud.AddressByPath
}

func (a *Adapter) Session() *cloud.Session {
	return a.session
}

// Root synthesizes the Dropbox root, addressed by the empty path. No network
// I/O.
func (a *Adapter) Root() *cloud.Folder {
	return &cloud.Folder{
		Path:   "",
		Name:   "Dropbox",
		Size:   cloud.SizeUnknown,
		IsRoot: true,
	}
}

// rpc runs one POST call against the API host. args marshals to the request
// body; a nil out drains the response.
func (a *Adapter) rpc(ctx context.Context, path string, args, out any) error {
	var body io.Reader

	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("dropbox: marshaling %s arguments: %w", path, err)
		}

		body = bytes.NewReader(raw)
	}

	resp, err := a.api.Do(ctx, cloud.Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return err
	}

	if out == nil {
		cloud.DrainClose(resp.Body)

		return nil
	}

	defer resp.Body.Close()

	return cloud.DecodeJSON(resp.Body, out)
}

// apiArg serializes content-call arguments for the Dropbox-API-Arg header.
func apiArg(args any) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("dropbox: marshaling content arguments: %w", err)
	}

	return string(raw), nil
}

func (a *Adapter) validate(ctx context.Context, accessToken string) error {
	resp, err := a.api.Do(ctx, cloud.Request{
		Method: http.MethodPost,
		Path:   "/users/get_current_account",
		Auth:   cloud.StaticBearer(accessToken),
	})
	if err != nil {
		return err
	}

	cloud.DrainClose(resp.Body)

	return nil
}

func (a *Adapter) revoke(ctx context.Context, _ *cloud.TokenSet) error {
	return a.rpc(ctx, "/auth/token/revoke", nil, nil)
}

func (a *Adapter) CurrentUser(ctx context.Context) (*cloud.User, error) {
	var ar accountResponse
	if err := a.rpc(ctx, "/users/get_current_account", nil, &ar); err != nil {
		return nil, err
	}

	return ar.toUser()
}

func (a *Adapter) FolderInfo(ctx context.Context, ref cloud.Ref) (*cloud.Folder, error) {
	if ref.Path == "" {
		return a.Root(), nil
	}

	md, err := a.getMetadata(ctx, ref.Path)
	if err != nil {
		return nil, err
	}

	return md.toFolder()
}

func (a *Adapter) FileInfo(ctx context.Context, ref cloud.Ref) (*cloud.File, error) {
	md, err := a.getMetadata(ctx, ref.Path)
	if err != nil {
		return nil, err
	}

	return md.toFile()
}

func (a *Adapter) getMetadata(ctx context.Context, path string) (*metadataResponse, error) {
	var md metadataResponse
	if err := a.rpc(ctx, "/files/get_metadata", map[string]any{"path": path}, &md); err != nil {
		return nil, err
	}

	return &md, nil
}

// listChildren accumulates one entity kind from the cursor-paged folder
// listing.
func (a *Adapter) listChildren(ctx context.Context, parent *cloud.Folder, tag string) ([]metadataResponse, error) {
	a.logger.Info("listing children",
		slog.String("provider", "dropbox"),
		slog.String("parent_path", parent.Path),
		slog.String("kind", tag),
	)

	keep := func(md metadataResponse) bool {
		return md.Tag == tag
	}

	return cloud.CollectCursor(ctx, keep,
		func(ctx context.Context, cursor string) ([]metadataResponse, string, bool, error) {
			var (
				path string
				args any
			)

			if cursor == "" {
				path = "/files/list_folder"
				args = map[string]any{"path": parent.Path}
			} else {
				path = "/files/list_folder/continue"
				args = map[string]any{"cursor": cursor}
			}

			var lr listFolderResponse
			if err := a.rpc(ctx, path, args, &lr); err != nil {
				return nil, "", false, err
			}

			return lr.Entries, lr.Cursor, lr.HasMore, nil
		})
}

func (a *Adapter) ListFolders(ctx context.Context, parent *cloud.Folder) ([]cloud.Folder, error) {
	entries, err := a.listChildren(ctx, parent, tagFolder)
	if err != nil {
		return nil, err
	}

	return foldersOf(entries)
}

func (a *Adapter) ListFiles(ctx context.Context, parent *cloud.Folder) ([]cloud.File, error) {
	entries, err := a.listChildren(ctx, parent, tagFile)
	if err != nil {
		return nil, err
	}

	return filesOf(entries)
}

func (a *Adapter) CreateFolder(ctx context.Context, parent *cloud.Folder, name string) (*cloud.Folder, error) {
	var mw metadataWrapper
	if err := a.rpc(ctx, "/files/create_folder_v2", map[string]any{
		"path":       joinPath(parent.Path, name),
		"autorename": false,
	}, &mw); err != nil {
		return nil, err
	}

	return mw.Metadata.toFolder()
}

// move relocates an entity. Dropbox expresses rename as a move within the
// same parent.
func (a *Adapter) move(ctx context.Context, fromPath, toPath string) (*metadataResponse, error) {
	var mw metadataWrapper
	if err := a.rpc(ctx, "/files/move_v2", map[string]any{
		"from_path":  fromPath,
		"to_path":    toPath,
		"autorename": false,
	}, &mw); err != nil {
		return nil, err
	}

	return &mw.Metadata, nil
}

func (a *Adapter) RenameFolder(ctx context.Context, folder *cloud.Folder, newName string) (*cloud.Folder, error) {
	// The root is immutable and a no-op rename needs no round trip.
	if folder.IsRoot || cloud.SameName(folder.Name, newName) {
		return folder, nil
	}

	md, err := a.move(ctx, folder.Path, joinPath(parentDir(folder.Path), newName))
	if err != nil {
		return nil, err
	}

	return md.toFolder()
}

func (a *Adapter) RenameFile(ctx context.Context, file *cloud.File, newName string) (*cloud.File, error) {
	if cloud.SameName(file.Name, newName) {
		return file, nil
	}

	md, err := a.move(ctx, file.Path, joinPath(parentDir(file.Path), newName))
	if err != nil {
		return nil, err
	}

	return md.toFile()
}

func (a *Adapter) MoveFolder(ctx context.Context, folder *cloud.Folder, newParent *cloud.Folder) (*cloud.Folder, error) {
	if folder.IsRoot || parentDir(folder.Path) == newParent.Path {
		return folder, nil
	}

	md, err := a.move(ctx, folder.Path, joinPath(newParent.Path, folder.Name))
	if err != nil {
		return nil, err
	}

	return md.toFolder()
}

func (a *Adapter) MoveFile(ctx context.Context, file *cloud.File, newParent *cloud.Folder) (*cloud.File, error) {
	if parentDir(file.Path) == newParent.Path {
		return file, nil
	}

	md, err := a.move(ctx, file.Path, joinPath(newParent.Path, file.Name))
	if err != nil {
		return nil, err
	}

	return md.toFile()
}

func (a *Adapter) DeleteFolder(ctx context.Context, folder *cloud.Folder) error {
	return a.rpc(ctx, "/files/delete_v2", map[string]any{"path": folder.Path}, nil)
}

func (a *Adapter) DeleteFile(ctx context.Context, file *cloud.File) error {
	return a.rpc(ctx, "/files/delete_v2", map[string]any{"path": file.Path}, nil)
}

// Upload streams content to the upload endpoint. The conflict policy maps
// directly onto Dropbox write modes: add rejects an existing name with a
// conflict error, overwrite replaces it.
func (a *Adapter) Upload(ctx context.Context, parent *cloud.Folder, name string, r io.Reader, _ int64, policy cloud.OnConflict) (*cloud.File, error) {
	mode := "add"
	if policy == cloud.ConflictOverwrite {
		mode = "overwrite"
	}

	return a.upload(ctx, joinPath(parent.Path, name), mode, r)
}

func (a *Adapter) UpdateContent(ctx context.Context, file *cloud.File, r io.Reader, _ int64) (*cloud.File, error) {
	return a.upload(ctx, file.Path, "overwrite", r)
}

func (a *Adapter) upload(ctx context.Context, path, mode string, r io.Reader) (*cloud.File, error) {
	arg, err := apiArg(map[string]any{
		"path":       path,
		"mode":       mode,
		"autorename": false,
		"mute":       true,
	})
	if err != nil {
		return nil, err
	}

	resp, err := a.content.Do(ctx, cloud.Request{
		Method:      http.MethodPost,
		Path:        "/files/upload",
		Header:      http.Header{"Dropbox-API-Arg": {arg}},
		Body:        r,
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var md metadataResponse
	if err := cloud.DecodeJSON(resp.Body, &md); err != nil {
		return nil, err
	}

	return md.toFile()
}

func (a *Adapter) Download(ctx context.Context, file *cloud.File, w io.Writer) (int64, error) {
	arg, err := apiArg(map[string]any{"path": file.Path})
	if err != nil {
		return 0, err
	}

	resp, err := a.content.Do(ctx, cloud.Request{
		Method: http.MethodPost,
		Path:   "/files/download",
		Header: http.Header{"Dropbox-API-Arg": {arg}},
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return a.content.CopyBody(ctx, w, resp.Body)
}

func (a *Adapter) Thumbnail(ctx context.Context, file *cloud.File, w io.Writer) (int64, error) {
	arg, err := apiArg(map[string]any{
		"resource": map[string]string{".tag": "path", "path": file.Path},
		"format":   map[string]string{".tag": "png"},
		"size":     map[string]string{".tag": thumbnailSize},
	})
	if err != nil {
		return 0, err
	}

	resp, err := a.content.Do(ctx, cloud.Request{
		Method: http.MethodPost,
		Path:   "/files/get_thumbnail_v2",
		Header: http.Header{"Dropbox-API-Arg": {arg}},
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return a.content.CopyBody(ctx, w, resp.Body)
}

// search runs the cursor-paged filename search, optionally constrained to
// one entity kind.
func (a *Adapter) search(ctx context.Context, query, tag string) ([]metadataResponse, error) {
	keep := func(md metadataResponse) bool {
		return tag == "" || md.Tag == tag
	}

	return cloud.CollectCursor(ctx, keep,
		func(ctx context.Context, cursor string) ([]metadataResponse, string, bool, error) {
			var (
				path string
				args any
			)

			if cursor == "" {
				path = "/files/search_v2"
				args = map[string]any{
					"query":   query,
					"options": map[string]any{"filename_only": true},
				}
			} else {
				path = "/files/search_v2/continue"
				args = map[string]any{"cursor": cursor}
			}

			var sr searchResponse
			if err := a.rpc(ctx, path, args, &sr); err != nil {
				return nil, "", false, err
			}

			entries := make([]metadataResponse, 0, len(sr.Matches))
			for i := range sr.Matches {
				entries = append(entries, sr.Matches[i].Metadata.Metadata)
			}

			return entries, sr.Cursor, sr.HasMore, nil
		})
}

func (a *Adapter) SearchFiles(ctx context.Context, query string) ([]cloud.File, error) {
	entries, err := a.search(ctx, query, tagFile)
	if err != nil {
		return nil, err
	}

	return filesOf(entries)
}

func (a *Adapter) SearchFolders(ctx context.Context, query string) ([]cloud.Folder, error) {
	entries, err := a.search(ctx, query, tagFolder)
	if err != nil {
		return nil, err
	}

	return foldersOf(entries)
}

// Search runs one combined request and partitions the matches.
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
		switch entries[i].Tag {
		case tagFolder:
			f, convErr := entries[i].toFolder()
			if convErr != nil {
				return nil, nil, convErr
			}

			folders = append(folders, *f)
		case tagFile:
			f, convErr := entries[i].toFile()
			if convErr != nil {
				return nil, nil, convErr
			}

			files = append(files, *f)
		}
	}

	return folders, files, nil
}

func foldersOf(entries []metadataResponse) ([]cloud.Folder, error) {
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

func filesOf(entries []metadataResponse) ([]cloud.File, error) {
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
