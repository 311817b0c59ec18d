package yandex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
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
		APIBase:  srvURL,
		TokenURL: srvURL + "/token",
	}, cloud.Options{
		Tokens: &cloud.TokenSet{AccessToken: "test-token", RefreshToken: "refresh-token"},
	})
	require.NoError(t, err)

	adapter, ok := a.(*Adapter)
	require.True(t, ok)

	return adapter
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "disk:/docs", joinPath("disk:/", "docs"))
	assert.Equal(t, "disk:/docs/q1.pdf", joinPath("disk:/docs", "q1.pdf"))

	assert.Equal(t, "disk:/", parentDir("disk:/docs"))
	assert.Equal(t, "disk:/docs", parentDir("disk:/docs/q1.pdf"))
}

func TestRoot_NoIO(t *testing.T) {
	a := newTestAdapter(t, "http://unreachable.invalid")

	root := a.Root()
	assert.True(t, root.IsRoot)
	assert.Equal(t, "disk:/", root.Path)
}

func TestListFolders_OffsetPagination(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.Equal(t, "/resources", r.URL.Path)
		assert.Equal(t, "disk:/docs", r.URL.Query().Get("path"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		var items []map[string]any

		switch offset {
		case 0:
			items = []map[string]any{
				{"name": "alpha", "path": "disk:/docs/alpha", "type": "dir",
					"modified": "2024-01-15T10:00:00+03:00"},
				{"name": "a.txt", "path": "disk:/docs/a.txt", "type": "file", "size": 3},
			}
		case 2:
			items = []map[string]any{
				{"name": "beta", "path": "disk:/docs/beta", "type": "dir"},
			}
		default:
			t.Errorf("unexpected offset %d", offset)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"name": "docs",
			"path": "disk:/docs",
			"type": "dir",
			"_embedded": map[string]any{
				"items":  items,
				"total":  3,
				"limit":  200,
				"offset": offset,
			},
		})
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	folders, err := a.ListFolders(context.Background(), &cloud.Folder{Path: "disk:/docs", Name: "docs"})
	require.NoError(t, err)

	// The file entry is filtered out but still advances the offset.
	require.Len(t, folders, 2)
	assert.Equal(t, "alpha", folders[0].Name)
	assert.Equal(t, "beta", folders[1].Name)
	assert.Equal(t, 2024, folders[0].Modified.Year())
	assert.Equal(t, int32(2), calls.Load())
}

func TestCreateFolder_FetchesMetadataAfterLink(t *testing.T) {
	var puts, gets atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/resources", r.URL.Path)
		assert.Equal(t, "disk:/docs", r.URL.Query().Get("path"))

		switch r.Method {
		case http.MethodPut:
			puts.Add(1)
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"href": "https://cloud-api.example/v1/disk/resources?path=disk%3A%2Fdocs", "method": "GET"}`)
		case http.MethodGet:
			gets.Add(1)
			fmt.Fprint(w, `{"name": "docs", "path": "disk:/docs", "type": "dir", "created": "2024-05-01T12:00:00+03:00"}`)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	folder, err := a.CreateFolder(context.Background(), a.Root(), "docs")
	require.NoError(t, err)

	assert.Equal(t, "disk:/docs", folder.Path)
	assert.Equal(t, int32(1), puts.Load())
	assert.Equal(t, int32(1), gets.Load())
}

func TestRename_MoveThenFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/resources/move":
			assert.Equal(t, "disk:/docs/old.txt", r.URL.Query().Get("from"))
			assert.Equal(t, "disk:/docs/new.txt", r.URL.Query().Get("path"))
			assert.Equal(t, "false", r.URL.Query().Get("overwrite"))

			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"href": "x", "method": "GET"}`)
		case "/resources":
			fmt.Fprint(w, `{"name": "new.txt", "path": "disk:/docs/new.txt", "type": "file", "size": 3}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	file, err := a.RenameFile(context.Background(),
		&cloud.File{Name: "old.txt", Path: "disk:/docs/old.txt"}, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, "disk:/docs/new.txt", file.Path)
}

func TestMove_SameParentShortCircuit(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	file := &cloud.File{Name: "a.txt", Path: "disk:/docs/a.txt"}

	got, err := a.MoveFile(context.Background(), file, &cloud.Folder{Path: "disk:/docs", Name: "docs"})
	require.NoError(t, err)
	assert.Equal(t, file, got)
	assert.Equal(t, int32(0), calls.Load())
}

func TestUpload_HrefIndirection(t *testing.T) {
	var uploadedBody atomic.Value

	var srv *httptest.Server

	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/resources/upload":
			assert.Equal(t, "disk:/up.txt", r.URL.Query().Get("path"))
			assert.Equal(t, "false", r.URL.Query().Get("overwrite"))

			fmt.Fprintf(w, `{"href": "%s/upload-target", "method": "PUT"}`, srv.URL)
		case "/upload-target":
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Empty(t, r.Header.Get("Authorization"), "pre-authenticated href gets no bearer")

			body, _ := io.ReadAll(r.Body)
			uploadedBody.Store(string(body))
			w.WriteHeader(http.StatusCreated)
		case "/resources":
			fmt.Fprint(w, `{"name": "up.txt", "path": "disk:/up.txt", "type": "file", "size": 7}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	file, err := a.Upload(context.Background(), a.Root(), "up.txt",
		strings.NewReader("payload"), 7, cloud.ConflictFail)
	require.NoError(t, err)

	assert.Equal(t, "disk:/up.txt", file.Path)
	assert.Equal(t, "payload", uploadedBody.Load())
}

func TestUpload_ConflictBeforeContent(t *testing.T) {
	var targetHits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/resources/upload":
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"message": "resource already exists"}`)
		default:
			targetHits.Add(1)
		}
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	_, err := a.Upload(context.Background(), a.Root(), "dup.txt",
		strings.NewReader("x"), 1, cloud.ConflictFail)
	assert.ErrorIs(t, err, cloud.ErrConflict)
	assert.Equal(t, int32(0), targetHits.Load(), "no content moves on conflict")
}

func TestDownload_HrefIndirection(t *testing.T) {
	var srv *httptest.Server

	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/resources/download":
			assert.Equal(t, "disk:/docs/a.txt", r.URL.Query().Get("path"))

			fmt.Fprintf(w, `{"href": "%s/download-target", "method": "GET"}`, srv.URL)
		case "/download-target":
			assert.Empty(t, r.Header.Get("Authorization"))
			fmt.Fprint(w, "file-bytes")
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	var sb strings.Builder

	n, err := a.Download(context.Background(), &cloud.File{Name: "a.txt", Path: "disk:/docs/a.txt"}, &sb)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, "file-bytes", sb.String())
}

func TestSearch_FilesOnlyIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resources/files", r.URL.Path)

		fmt.Fprint(w, `{
			"items": [
				{"name": "report.pdf", "path": "disk:/work/report.pdf", "type": "file", "size": 9},
				{"name": "notes.txt", "path": "disk:/notes.txt", "type": "file", "size": 2},
				{"name": "REPORT-final.pdf", "path": "disk:/REPORT-final.pdf", "type": "file", "size": 4}
			],
			"limit": 200,
			"offset": 0
		}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	folders, files, err := a.Search(context.Background(), "Report")
	require.NoError(t, err)

	assert.Empty(t, folders, "the file index carries no folders")
	require.Len(t, files, 2)
	assert.Equal(t, "report.pdf", files[0].Name)
	assert.Equal(t, "REPORT-final.pdf", files[1].Name)
}

func TestThumbnail_NoPreview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "256x256", r.URL.Query().Get("preview_size"))

		fmt.Fprint(w, `{"name": "a.bin", "path": "disk:/a.bin", "type": "file", "size": 3}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	var sb strings.Builder

	_, err := a.Thumbnail(context.Background(), &cloud.File{Name: "a.bin", Path: "disk:/a.bin"}, &sb)
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestCurrentUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)

		fmt.Fprint(w, `{"user": {"uid": "1000123", "login": "franz", "display_name": "Franz F."}}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	user, err := a.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1000123", user.ID)
	assert.Equal(t, "franz", user.Name)
}
