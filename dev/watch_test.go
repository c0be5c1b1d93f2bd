package dev

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lance/api"
	"lance/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type remoteCall struct {
	Op      string
	Path    string
	Content string
}

type fakeRemote struct {
	mu    sync.Mutex
	calls []remoteCall
	err   error
	// block makes Store wait for cancellation on its first call.
	block bool
}

func (r *fakeRemote) record(c remoteCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.err
}

func (r *fakeRemote) Calls() []remoteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]remoteCall(nil), r.calls...)
}

func (r *fakeRemote) Upload(ctx context.Context, p string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	return r.record(remoteCall{Op: "upload", Path: p, Content: string(data)})
}

func (r *fakeRemote) Store(ctx context.Context, p, content string) error {
	r.mu.Lock()
	block := r.block
	r.block = false
	r.mu.Unlock()
	if block {
		<-ctx.Done()
		r.record(remoteCall{Op: "store-cancelled", Path: p, Content: content})
		return fmt.Errorf("store failed: %w", api.ErrCanceled)
	}
	return r.record(remoteCall{Op: "store", Path: p, Content: content})
}

func (r *fakeRemote) Delete(ctx context.Context, p string) error {
	return r.record(remoteCall{Op: "delete", Path: p})
}

func (r *fakeRemote) Mkdir(ctx context.Context, p string) error {
	return r.record(remoteCall{Op: "mkdir", Path: p})
}

const testDebounce = 40 * time.Millisecond

func newTestWatcher(t *testing.T, remote *fakeRemote, files map[string]string) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	w, err := NewWatcher(WatchConfig{Dir: dir, Remote: remote, Debounce: testDebounce})
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	return w, dir
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func waitCalls(t *testing.T, remote *fakeRemote, n int) []remoteCall {
	t.Helper()
	require.Eventually(t, func() bool { return len(remote.Calls()) >= n }, 2*time.Second, 5*time.Millisecond)
	// Give a wrongly scheduled extra request the chance to show up.
	time.Sleep(3 * testDebounce)
	return remote.Calls()
}

func TestRapidChangesStoreLatestContentOnce(t *testing.T) {
	remote := &fakeRemote{}
	w, dir := newTestWatcher(t, remote, map[string]string{"300x250/index.html": "v0"})

	p := write(t, dir, "300x250/index.html", "v1")
	w.schedule(p)
	write(t, dir, "300x250/index.html", "v2")
	w.schedule(p)

	calls := waitCalls(t, remote, 1)
	assert.Equal(t, []remoteCall{{Op: "store", Path: "/300x250/index.html", Content: "v2"}}, calls)
}

func TestChangeClassification(t *testing.T) {
	remote := &fakeRemote{}
	w, dir := newTestWatcher(t, remote, map[string]string{
		"old.txt":     "bye",
		"gone/a.txt":  "a",
		"keep/b.txt":  "b",
		".git/config": "x",
	})

	w.schedule(write(t, dir, "300x250/img/logo.svg", "<svg/>"))
	w.schedule(filepath.Join(dir, "300x250"))
	require.NoError(t, os.Remove(filepath.Join(dir, "old.txt")))
	w.schedule(filepath.Join(dir, "old.txt"))
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "gone")))
	w.schedule(filepath.Join(dir, "gone"))
	w.schedule(filepath.Join(dir, "never-existed.txt"))
	w.schedule(write(t, dir, ".git/HEAD", "ref"))
	w.schedule(filepath.Join(dir, "..", "outside.txt"))

	calls := waitCalls(t, remote, 4)
	assert.ElementsMatch(t, []remoteCall{
		{Op: "upload", Path: "/300x250/img/logo.svg", Content: "<svg/>"},
		{Op: "mkdir", Path: "/300x250"},
		{Op: "delete", Path: "/old.txt"},
		{Op: "delete", Path: "/gone"},
	}, calls)

	// The removed directory's children are forgotten too.
	w.mu.Lock()
	_, childKnown := w.known["gone/a.txt"]
	_, keepKnown := w.known["keep/b.txt"]
	w.mu.Unlock()
	assert.False(t, childKnown)
	assert.True(t, keepKnown)
}

func TestCreatedFileIsKnownAfterwards(t *testing.T) {
	remote := &fakeRemote{}
	w, dir := newTestWatcher(t, remote, nil)

	w.schedule(write(t, dir, "a.css", "one"))
	waitCalls(t, remote, 1)
	w.schedule(write(t, dir, "a.css", "two"))

	calls := waitCalls(t, remote, 2)
	assert.Equal(t, []remoteCall{
		{Op: "upload", Path: "/a.css", Content: "one"},
		{Op: "store", Path: "/a.css", Content: "two"},
	}, calls)
}

func TestNewerChangeCancelsInflightRequest(t *testing.T) {
	remote := &fakeRemote{block: true}
	var failures []error
	var mu sync.Mutex
	w, dir := newTestWatcher(t, remote, map[string]string{"index.html": "v0"})
	w.onError = func(rel string, kind ChangeKind, err error) {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	}

	p := write(t, dir, "index.html", "v1")
	w.schedule(p)
	require.Eventually(t, func() bool { return w.inflight.pending() == 1 }, 2*time.Second, 5*time.Millisecond)
	write(t, dir, "index.html", "v2")
	w.schedule(p)

	calls := waitCalls(t, remote, 2)
	assert.ElementsMatch(t, []remoteCall{
		{Op: "store-cancelled", Path: "/index.html", Content: "v1"},
		{Op: "store", Path: "/index.html", Content: "v2"},
	}, calls)
	mu.Lock()
	assert.Empty(t, failures)
	mu.Unlock()
}

func TestMirrorCallbacks(t *testing.T) {
	remote := &fakeRemote{err: errors.New("boom")}
	dir := t.TempDir()
	write(t, dir, "a.txt", "a")

	var mu sync.Mutex
	var mirrored, failed []string
	w, err := NewWatcher(WatchConfig{
		Dir:      dir,
		Remote:   remote,
		Debounce: testDebounce,
		Ignore: func(rel string) bool {
			return rel == "skip.zip"
		},
		OnMirrored: func(rel string, kind ChangeKind) {
			mu.Lock()
			mirrored = append(mirrored, rel)
			mu.Unlock()
		},
		OnError: func(rel string, kind ChangeKind, err error) {
			mu.Lock()
			failed = append(failed, rel+":"+kind.String())
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer w.Stop()

	w.schedule(write(t, dir, "skip.zip", "zip"))
	w.schedule(write(t, dir, "a.txt", "b"))
	waitCalls(t, remote, 1)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, mirrored)
	assert.Equal(t, []string{"a.txt:changed"}, failed)
}

func TestWatcherPicksUpFilesystemEvents(t *testing.T) {
	remote := &fakeRemote{}
	w, dir := newTestWatcher(t, remote, nil)
	require.NoError(t, w.Start())

	write(t, dir, "fresh.txt", "hello")

	require.Eventually(t, func() bool {
		for _, c := range remote.Calls() {
			if c.Path == "/fresh.txt" && c.Content == "hello" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	remote := &fakeRemote{}
	w, dir := newTestWatcher(t, remote, nil)
	w.schedule(write(t, dir, "x.txt", "x"))
	w.Stop()
	w.Stop()
	w.schedule(write(t, dir, "y.txt", "y"))

	time.Sleep(3 * testDebounce)
	assert.Empty(t, remote.Calls())
}

func TestSupersededFilesystemStoreIsSilent(t *testing.T) {
	var stores atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/filesystem/b-1/store", r.URL.Path)
		_, _ = io.ReadAll(r.Body)
		if stores.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	cfg := config.New(config.NewMemoryStore())
	require.NoError(t, cfg.SetToken(config.Token{AccessToken: "abc", TokenType: "Bearer"}))
	client := api.NewClient(api.Environment{Name: "test", Devstack: srv.URL + "/api"}, cfg, api.Options{
		CLIName:    "lance",
		CLIVersion: "0.0.0-test",
	})

	dir := t.TempDir()
	write(t, dir, "index.html", "v0")
	var mu sync.Mutex
	var failures []error
	var mirrored []string
	w, err := NewWatcher(WatchConfig{
		Dir:      dir,
		Remote:   api.NewFilesystem(client, "b-1"),
		Debounce: testDebounce,
		OnMirrored: func(rel string, kind ChangeKind) {
			mu.Lock()
			mirrored = append(mirrored, rel)
			mu.Unlock()
		},
		OnError: func(rel string, kind ChangeKind, err error) {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	write(t, dir, "index.html", "v1")
	first := make(chan struct{})
	go func() {
		defer close(first)
		w.settle("index.html")
	}()
	require.Eventually(t, func() bool { return stores.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	write(t, dir, "index.html", "v2")
	w.settle("index.html")

	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded request did not return")
	}
	assert.EqualValues(t, 2, stores.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, failures)
	assert.Equal(t, []string{"index.html"}, mirrored)
}
