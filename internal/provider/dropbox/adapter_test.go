package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/anycloud/internal/cloud"
)

func newTestAdapter(t *testing.T, srvURL string) *Adapter {
	t.Helper()

	a, err := New(cloud.ProviderConfig{
		APIBase:     srvURL,
		ContentBase: srvURL,
	}, cloud.Options{
		Tokens: &cloud.TokenSet{AccessToken: "test-token"},
	})
	require.NoError(t, err)

	adapter, ok := a.(*Adapter)
	require.True(t, ok)

	return adapter
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "/docs", joinPath("", "docs"))
	assert.Equal(t, "/docs/q1.pdf", joinPath("/docs", "q1.pdf"))

	assert.Equal(t, "", parentDir("/docs"))
	assert.Equal(t, "/docs", parentDir("/docs/q1.pdf"))
}

func TestRoot_NoIO(t *testing.T) {
	a := newTestAdapter(t, "http://unreachable.invalid")

	root := a.Root()
	assert.True(t, root.IsRoot)
	assert.Equal(t, "", root.Path)
}

func TestListFiles_CursorPagination(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := calls.Add(1)

		body, _ := io.ReadAll(r.Body)

		switch call {
		case 1:
			assert.Equal(t, "/files/list_folder", r.URL.Path)
			assert.JSONEq(t, `{"path": "/docs"}`, string(body))

			fmt.Fprint(w, `{
				"entries": [
					{".tag": "file", "id": "id:1", "name": "a.txt", "path_display": "/docs/a.txt", "size": 3,
					 "server_modified": "2015-05-12T15:50:38Z"},
					{".tag": "folder", "id": "id:2", "name": "sub", "path_display": "/docs/sub"}
				],
				"cursor": "cursor-1",
				"has_more": true
			}`)
		case 2:
			assert.Equal(t, "/files/list_folder/continue", r.URL.Path)
			assert.JSONEq(t, `{"cursor": "cursor-1"}`, string(body))

			fmt.Fprint(w, `{
				"entries": [
					{".tag": "file", "id": "id:3", "name": "b.txt", "path_display": "/docs/b.txt", "size": 5}
				],
				"cursor": "cursor-2",
				"has_more": false
			}`)
		default:
			t.Errorf("unexpected call %d", call)
		}
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	files, err := a.ListFiles(context.Background(), &cloud.Folder{Path: "/docs", Name: "docs"})
	require.NoError(t, err)

	// Folder entries are filtered out; both pages contribute.
	require.Len(t, files, 2)
	assert.Equal(t, "a.txt", files[0].Name)
	assert.Equal(t, "/docs/b.txt", files[1].Path)
	assert.Equal(t, 2015, files[0].Modified.Year())
	assert.Equal(t, int32(2), calls.Load())
}

func TestRename_BuildsSiblingPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/move_v2", r.URL.Path)

		var args struct {
			FromPath string `json:"from_path"`
			ToPath   string `json:"to_path"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		assert.Equal(t, "/docs/old.txt", args.FromPath)
		assert.Equal(t, "/docs/new.txt", args.ToPath)

		fmt.Fprint(w, `{"metadata": {".tag": "file", "id": "id:1", "name": "new.txt", "path_display": "/docs/new.txt", "size": 3}}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	file, err := a.RenameFile(context.Background(),
		&cloud.File{ID: "id:1", Name: "old.txt", Path: "/docs/old.txt"}, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, "/docs/new.txt", file.Path)
}

func TestMove_SameParentShortCircuit(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	file := &cloud.File{Name: "a.txt", Path: "/docs/a.txt"}

	got, err := a.MoveFile(context.Background(), file, &cloud.Folder{Path: "/docs", Name: "docs"})
	require.NoError(t, err)
	assert.Equal(t, file, got)
	assert.Equal(t, int32(0), calls.Load())
}

func TestUpload_ConflictPolicyMapsToWriteMode(t *testing.T) {
	var gotArgs []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/upload", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))

		gotArgs = append(gotArgs, r.Header.Get("Dropbox-API-Arg"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body))

		fmt.Fprint(w, `{"id": "id:9", "name": "up.txt", "path_display": "/up.txt", "size": 7}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	root := a.Root()

	_, err := a.Upload(context.Background(), root, "up.txt", strings.NewReader("payload"), 7, cloud.ConflictFail)
	require.NoError(t, err)

	_, err = a.Upload(context.Background(), root, "up.txt", strings.NewReader("payload"), 7, cloud.ConflictOverwrite)
	require.NoError(t, err)

	require.Len(t, gotArgs, 2)
	assert.Contains(t, gotArgs[0], `"mode":"add"`)
	assert.Contains(t, gotArgs[0], `"path":"/up.txt"`)
	assert.Contains(t, gotArgs[1], `"mode":"overwrite"`)
}

func TestUpload_ConflictError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error_summary": "path/conflict/file/"}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	_, err := a.Upload(context.Background(), a.Root(), "dup.txt", strings.NewReader("x"), 1, cloud.ConflictFail)
	assert.ErrorIs(t, err, cloud.ErrConflict)
}

func TestDownload_StreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/download", r.URL.Path)
		assert.Contains(t, r.Header.Get("Dropbox-API-Arg"), `"path":"/docs/a.txt"`)

		fmt.Fprint(w, "file-bytes")
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	var sb strings.Builder

	n, err := a.Download(context.Background(), &cloud.File{Name: "a.txt", Path: "/docs/a.txt"}, &sb)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, "file-bytes", sb.String())
}

func TestSearch_Partition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/search_v2", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"query":"report"`)

		fmt.Fprint(w, `{
			"matches": [
				{"metadata": {"metadata": {".tag": "folder", "name": "reports", "path_display": "/reports"}}},
				{"metadata": {"metadata": {".tag": "file", "name": "report.pdf", "path_display": "/reports/report.pdf", "size": 9}}}
			],
			"has_more": false
		}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	folders, files, err := a.Search(context.Background(), "report")
	require.NoError(t, err)

	require.Len(t, folders, 1)
	require.Len(t, files, 1)
	assert.Equal(t, "reports", folders[0].Name)
	assert.Equal(t, "report.pdf", files[0].Name)
}

func TestCurrentUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/get_current_account", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		fmt.Fprint(w, `{
			"account_id": "dbid:abc",
			"name": {"display_name": "Franz Ferdinand"},
			"email": "franz@example.com"
		}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	user, err := a.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dbid:abc", user.ID)
	assert.Equal(t, "Franz Ferdinand", user.DisplayName)
	assert.Equal(t, "franz@example.com", user.Email)
}
