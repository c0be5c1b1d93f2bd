// SPDX-License-Identifier: MPL-2.0

// Package core implements the template commands on top of the remote API,
// the local git client and the config store.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"lance/api"
	"lance/auth"
	"lance/config"
	"lance/git"
	"lance/prompt"
	"lance/report"
	"lance/ui"
	"lance/util/pathutil"

	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

var (
	ErrNotInstalled  = errors.New(`templates root is not set, run "lance install" first`)
	ErrLoginDeclined = errors.New("login is required for this command")
	ErrNoTemplates   = errors.New("no local templates, run \"lance sync\" first")
)

// App is the set of capabilities every command works with.
type App struct {
	Config   *config.Config
	API      *api.Client
	Git      git.Client
	Prompt   prompt.Prompter
	Reporter *report.Reporter
	Logger   *slog.Logger
	Out      io.Writer
	Debug    bool
	// Workers bounds per-repository concurrency.
	Workers int
	// Login runs the interactive login when a command needs a user.
	Login func(ctx context.Context) error
	Now   func() time.Time
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Init fills unset fields with defaults. Out is wrapped so that concurrent
// workers can print to it.
func (a *App) Init() *App {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.Out == nil {
		a.Out = os.Stdout
	}
	if _, ok := a.Out.(*lockedWriter); !ok {
		a.Out = &lockedWriter{w: a.Out}
	}
	if a.Workers <= 0 {
		a.Workers = defaultWorkers
	}
	if a.Now == nil {
		a.Now = time.Now
	}
	return a
}

func (a *App) println(style func(...string) string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if style != nil {
		msg = style(msg)
	}
	fmt.Fprintln(a.Out, msg)
}

func (a *App) info(format string, args ...any)    { a.println(ui.Info.Render, format, args...) }
func (a *App) success(format string, args ...any) { a.println(ui.Success.Render, format, args...) }
func (a *App) warn(format string, args ...any)    { a.println(ui.Warning.Render, format, args...) }
func (a *App) fail(format string, args ...any)    { a.println(ui.Error.Render, format, args...) }

// ReportItem logs and reports a per-item failure. Processing of sibling items
// continues.
func (a *App) ReportItem(item string, err error) {
	if report.Ignored(err) {
		return
	}
	a.Logger.Debug("Item failed", slog.String("item", item), slog.Any("error", err))
	a.Reporter.Capture(err, map[string]any{"item": item})
	a.fail("%s: %s", item, report.Describe(err, a.Debug))
}

// EnsureUser makes sure a valid token exists, offering to log in when it
// does not, and refreshes the stored profile.
func (a *App) EnsureUser(ctx context.Context) (*api.User, error) {
	tok, err := a.Config.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil || auth.Expired(tok.AccessToken, a.Now()) {
		ok, err := a.Prompt.Confirm(`Before running an authenticated command, you need to run "lance login". Do you wish to run this command now?`, true)
		if err != nil {
			return nil, err
		}
		if !ok {
			a.info(`Take your time! When you're ready, just call the "lance login" command.`)
			return nil, ErrLoginDeclined
		}
		if a.Login == nil {
			return nil, api.ErrInvalidUser
		}
		if err := a.Login(ctx); err != nil {
			return nil, err
		}
	}

	user, err := a.API.User(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnreachable) || errors.Is(err, api.ErrCanceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", api.ErrInvalidUser, err)
	}
	if err := a.Config.SetUser(user.Account()); err != nil {
		return nil, fmt.Errorf("failed to store user: %w", err)
	}
	a.Reporter.SetUser(fmt.Sprint(user.ID), user.Email)
	return user, nil
}

// Root returns the configured templates root.
func (a *App) Root() (string, error) {
	root := a.Config.Root()
	if root == "" {
		return "", ErrNotInstalled
	}
	return filepath.FromSlash(root), nil
}

// Visual is one local template working copy at <root>/<brand>/<repo>.
type Visual struct {
	Brand string
	Repo  string
	Path  string
}

func (v Visual) Name() string {
	return v.Brand + "/" + v.Repo
}

// Visuals lists every local template, ordered by brand then repo.
func (a *App) Visuals() ([]Visual, error) {
	root, err := a.Root()
	if err != nil {
		return nil, err
	}
	brands, err := pathutil.ListDirs(root)
	if err != nil {
		return nil, err
	}
	sort.Strings(brands)

	var visuals []Visual
	for _, brand := range brands {
		repos, err := pathutil.ListDirs(filepath.Join(root, brand))
		if err != nil {
			return nil, err
		}
		sort.Strings(repos)
		for _, repo := range repos {
			visuals = append(visuals, Visual{Brand: brand, Repo: repo, Path: filepath.Join(root, brand, repo)})
		}
	}
	return visuals, nil
}

// origin returns the credentialed remote of a visual.
func (a *App) origin(brand, repo string) string {
	username, password := a.Config.GitCredentials()
	return a.API.Env().GitOrigin(brand, repo, username, password)
}

// setIdentity writes user.name and user.email into the repository config
// unless they are already set locally.
func (a *App) setIdentity(ctx context.Context, dir string) error {
	name, email := a.Config.Identity()
	for key, value := range map[string]string{"user.name": name, "user.email": email} {
		if value == "" {
			continue
		}
		current, err := a.Git.ConfigGet(ctx, dir, key)
		if err != nil {
			return err
		}
		if current != "" {
			continue
		}
		if err := a.Git.ConfigSet(ctx, dir, key, value); err != nil {
			return err
		}
	}
	return nil
}

// eachVisual runs fn for every visual on a bounded worker group. Failures
// are reported per visual; the returned count is the number that failed.
func (a *App) eachVisual(ctx context.Context, visuals []Visual, fn func(ctx context.Context, v Visual) error) int {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed int
	)
	g.SetLimit(a.Workers)
	for _, v := range visuals {
		g.Go(func() error {
			if err := fn(ctx, v); err != nil {
				a.ReportItem(v.Name(), err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}
