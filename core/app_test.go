package core

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lance/api"
	"lance/config"
	"lance/git/gittest"
	"lance/prompt/prompttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	app    *App
	git    *gittest.Fake
	prompt *prompttest.Scripted
	out    *bytes.Buffer
	root   string
	env    api.Environment
}

func newFixture(t *testing.T, handler http.Handler, answers ...any) *fixture {
	t.Helper()
	if handler == nil {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusInternalServerError)
		})
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	env := api.Environment{
		Name:          "test",
		Accounts:      srv.URL + "/accounts",
		Devstack:      srv.URL + "/api",
		Studio:        srv.URL + "/studio",
		Git:           "https://git.example.com",
		OAuthClientID: "client-id",
	}
	cfg := config.New(config.NewMemoryStore())
	require.NoError(t, cfg.SetToken(config.Token{AccessToken: "abc", TokenType: "Bearer"}))
	require.NoError(t, cfg.SetUser(config.Account{ID: 7, Username: "jane", Password: "pw", Email: "jane@example.com", Name: "Jane"}))
	root := t.TempDir()
	require.NoError(t, cfg.SetRoot(root))

	f := &fixture{
		git:    gittest.New(),
		prompt: prompttest.New(answers...),
		out:    &bytes.Buffer{},
		root:   root,
		env:    env,
	}
	f.app = (&App{
		Config: cfg,
		API: api.NewClient(env, cfg, api.Options{
			CLIName:    "lance",
			CLIVersion: "0.0.0-test",
			OnVersionRejected: func(*api.VersionError) {
				t.Error("unexpected version rejection")
			},
		}),
		Git:    f.git,
		Prompt: f.prompt,
		Out:    f.out,
		Now: func() time.Time {
			return time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
		},
	}).Init()
	return f
}

// repo creates <root>/<brand>/<name> with a .git directory.
func (f *fixture) repo(t *testing.T, brand, name string) string {
	t.Helper()
	dir := filepath.Join(f.root, brand, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	return dir
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func TestVisualsSkipsHiddenAndSorts(t *testing.T) {
	f := newFixture(t, nil)
	f.repo(t, "zeta", "z-1")
	f.repo(t, "acme", "b")
	f.repo(t, "acme", "a")
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, ".cache", "x"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "acme", ".hidden"), 0o755))

	visuals, err := f.app.Visuals()
	require.NoError(t, err)
	var names []string
	for _, v := range visuals {
		names = append(names, v.Name())
	}
	assert.Equal(t, []string{"acme/a", "acme/b", "zeta/z-1"}, names)
}

func TestRootRequiresInstall(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.app.Config.Delete(config.KeyRoot))

	_, err := f.app.Root()
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestEnsureUserDeclined(t *testing.T) {
	f := newFixture(t, nil, false)
	require.NoError(t, f.app.Config.Delete(config.KeyToken))

	_, err := f.app.EnsureUser(context.Background())
	assert.ErrorIs(t, err, ErrLoginDeclined)
}

func TestEnsureUserRunsLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/api/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		writeJSON(w, `{"id":9,"name":"Joe","email":"joe@example.com","git_username":"joe","git_password":"secret"}`)
	})
	f := newFixture(t, mux, true)
	require.NoError(t, f.app.Config.Delete(config.KeyToken))
	f.app.Login = func(ctx context.Context) error {
		return f.app.Config.SetToken(config.Token{AccessToken: "fresh"})
	}

	user, err := f.app.EnsureUser(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 9, user.ID)
	username, password := f.app.Config.GitCredentials()
	assert.Equal(t, "joe", username)
	assert.Equal(t, "secret", password)
}

func TestSetIdentityKeepsLocalValues(t *testing.T) {
	f := newFixture(t, nil)
	dir := f.repo(t, "acme", "a")
	require.NoError(t, f.git.ConfigSet(context.Background(), dir, "user.name", "Someone Else"))

	require.NoError(t, f.app.setIdentity(context.Background(), dir))

	var set []string
	for _, c := range f.git.CallsFor("config-set") {
		set = append(set, c.Args[0]+"="+c.Args[1])
	}
	assert.ElementsMatch(t, []string{"user.name=Someone Else", "user.email=jane@example.com"}, set)
}
