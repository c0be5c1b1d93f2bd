package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"lance/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  map[string][]string
	body   map[string]any
	form   map[string][]string
	file   string
}

func recordingClient(t *testing.T, status func(r *http.Request) (int, string)) (*Client, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	client, cfg := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.Query()}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			if assert.NoError(t, r.ParseMultipartForm(1<<20)) {
				rec.form = r.MultipartForm.Value
				if files := r.MultipartForm.File["files[]"]; len(files) == 1 {
					if f, err := files[0].Open(); assert.NoError(t, err) {
						data, _ := io.ReadAll(f)
						f.Close()
						rec.file = files[0].Filename + ":" + string(data)
					}
				}
			}
		} else {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		mu.Lock()
		calls = append(calls, rec)
		mu.Unlock()

		code, body := http.StatusOK, `{}`
		if status != nil {
			code, body = status(r)
		}
		w.WriteHeader(code)
		w.Write([]byte(body))
	})
	require.NoError(t, cfg.SetToken(config.Token{AccessToken: "t", TokenType: "Bearer"}))
	return client, &calls
}

func TestFilesystemBindsBundleID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	fs := NewFilesystem(client, "77")

	for name := range filesystemEndpoints {
		e, ok := fs.Endpoint(name)
		require.True(t, ok, name)
		assert.NotContains(t, e.Path, "{bundleId}", name)
	}
	store, _ := fs.Endpoint("store")
	assert.Equal(t, "/filesystem/77/store?path=%2Fx%2Fy.txt", store.Expand(map[string]string{"path": "/x/y.txt"}))
	copyEndpoint, _ := fs.Endpoint("copy")
	assert.Equal(t, "/filesystem/77/copy?srcPath=%2Fa&destPath=%2Fb", copyEndpoint.Expand(map[string]string{"srcPath": "/a", "destPath": "/b"}))
}

func TestFilesystemStore(t *testing.T) {
	client, calls := recordingClient(t, nil)
	fs := NewFilesystem(client, "5")

	require.NoError(t, fs.Store(context.Background(), "/x/y.txt", "hello"))
	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/api/filesystem/5/store", call.path)
	assert.Equal(t, []string{"/x/y.txt"}, call.query["path"])
	assert.Equal(t, "hello", call.body["content"])
}

func TestFilesystemUpload(t *testing.T) {
	client, calls := recordingClient(t, nil)
	fs := NewFilesystem(client, "5")

	require.NoError(t, fs.Upload(context.Background(), "/300x250/img/logo.svg", strings.NewReader("<svg/>")))
	require.NoError(t, fs.Upload(context.Background(), "/top.txt", strings.NewReader("top")))
	require.Len(t, *calls, 2)

	assert.Equal(t, "/api/filesystem/upload", (*calls)[0].path)
	assert.Equal(t, []string{"5"}, (*calls)[0].form["bundleId"])
	assert.Equal(t, []string{"/300x250/img"}, (*calls)[0].form["path"])
	assert.Equal(t, "logo.svg:<svg/>", (*calls)[0].file)
	assert.Equal(t, []string{"/"}, (*calls)[1].form["path"])
}

func TestFilesystemDeleteNotFoundIsSuccess(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK, body: `{}`},
		{name: "http 404", status: http.StatusNotFound, body: `{"message":"missing"}`},
		{name: "body code 404", status: http.StatusBadRequest, body: `{"code":404}`},
		{name: "server error", status: http.StatusInternalServerError, body: `{}`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, calls := recordingClient(t, func(r *http.Request) (int, string) {
				return tc.status, tc.body
			})
			fs := NewFilesystem(client, "9")

			err := fs.Delete(context.Background(), "/gone")
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			require.Len(t, *calls, 1)
			assert.Equal(t, http.MethodDelete, (*calls)[0].method)
			assert.Equal(t, "/api/filesystem/9", (*calls)[0].path)
		})
	}
}

func TestDevstackCalls(t *testing.T) {
	client, calls := recordingClient(t, func(r *http.Request) (int, string) {
		switch r.URL.Path {
		case "/api/syncs":
			return http.StatusOK, `[{"id":1,"organization":"acme","repo":"acme-a-html"}]`
		case "/api/bundles":
			return http.StatusOK, `{"id":31}`
		case "/api/bundles/running":
			return http.StatusOK, `{"bundle":null}`
		}
		return http.StatusOK, `{}`
	})
	ctx := context.Background()

	syncs, err := client.Syncs(ctx, []string{"acme", "beta"})
	require.NoError(t, err)
	require.Len(t, syncs, 1)
	assert.Equal(t, "acme-a-html", syncs[0].Repo)
	assert.Equal(t, []string{"acme", "beta"}, (*calls)[0].query["organizations[]"])

	running, err := client.RunningBundle(ctx, "acme", "acme-a-html", "html")
	require.NoError(t, err)
	assert.Nil(t, running)

	bundle, err := client.CreateBundle(ctx, "acme", "acme-a-html", "master", "html")
	require.NoError(t, err)
	assert.Equal(t, ID("31"), bundle.ID)
	assert.Equal(t, "master", bundle.Branch)
	create := (*calls)[2]
	assert.Equal(t, false, create.body["startFileWatcher"])
	assert.Equal(t, "html", create.body["outputCategory"])

	require.NoError(t, client.DeleteBundle(ctx, *bundle))
	del := (*calls)[3]
	assert.Equal(t, http.MethodDelete, del.method)
	assert.Equal(t, "/api/bundles/31", del.path)
	assert.Equal(t, false, del.body["saveChanges"])
	assert.Equal(t, "CLI stopped", del.body["commitMessage"])
	assert.Equal(t, "master", del.body["targetBranch"])
}
