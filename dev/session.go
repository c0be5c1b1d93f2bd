// SPDX-License-Identifier: MPL-2.0

// Package dev runs a live editing session: it uploads a template into a
// remote bundle and mirrors every local change until interrupted.
package dev

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"lance/api"
	"lance/core"
	"lance/ingest"
	"lance/prompt"
	"lance/ui"
	"lance/util/signals"

	"github.com/pkg/browser"
)

var (
	ErrSyncRequired  = errors.New(`templates were never synced, run "lance sync" first`)
	ErrNoResizes     = errors.New("no resize in template, start by copying the contents of an existing template")
	ErrNoRepository  = errors.New("template repository not found")
	ErrNoBranches    = errors.New("no branches found")
	ErrNoNewest      = errors.New(`no newly created template, create one with "lance create"`)
	ErrGitPullFailed = errors.New("git pull failed, please pull manually")
	ErrGitUnreadable = errors.New("git status of template could not be read")
)

// Options selects the template and how the bundle is handled.
type Options struct {
	// Template is "brand/repo".
	Template string
	Newest   bool
	Latest   bool
	// KeepBundle leaves the bundle running after the session ends.
	KeepBundle bool
	Debounce   time.Duration
}

// Session is one dev run. Run may be called once.
type Session struct {
	App  *core.App
	Opts Options
	// OpenBrowser opens the preview. Defaults to the system browser.
	OpenBrowser func(url string) error

	mu       sync.Mutex
	visual   core.Visual
	bundle   *api.Bundle
	owned    bool
	resize   *api.Resize
	archive  string
	watcher  *Watcher
	feed     *Feed
	teardown *signals.Teardown
}

func (s *Session) logger() *slog.Logger {
	return s.App.Logger
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.App.Out, format, args...)
}

// Run sets the session up, blocks until ctx is done and tears it down.
func (s *Session) Run(ctx context.Context) error {
	if s.OpenBrowser == nil {
		s.OpenBrowser = browser.OpenURL
	}
	s.teardown = signals.NewTeardown(s.stop)
	defer s.teardown.Run()

	if err := s.ensureSynced(ctx); err != nil {
		return err
	}
	visual, err := s.selectTemplate()
	if err != nil {
		return err
	}
	s.visual = visual
	if err := s.App.Config.SetLastDev(visual.Name()); err != nil {
		return fmt.Errorf("failed to store last template: %w", err)
	}
	s.printf("Building %s\n", visual.Path)

	if err := s.updateWorkingCopy(ctx); err != nil {
		return err
	}
	label, err := s.selectResize()
	if err != nil {
		return err
	}

	repo, err := s.App.API.Repository(ctx, visual.Brand, visual.Repo)
	if err != nil {
		return err
	}
	if repo == nil {
		return fmt.Errorf("%w: %s", ErrNoRepository, visual.Name())
	}
	category, err := api.OutputCategory(repo.Name)
	if err != nil {
		return err
	}

	if err := s.openBundle(ctx, repo, category); err != nil {
		return err
	}
	fs := api.NewFilesystem(s.App.API, s.bundle.ID)

	if err := ingest.Upload(ctx, s.App.API, s.bundle.ID, visual.Path, visual.Repo, s.App.Out, s.track); err != nil {
		return fmt.Errorf("could not sync local files to devstack: %w", err)
	}
	s.track("")

	if err := s.App.API.StartBundleWatcher(ctx, visual.Brand, s.bundle.ID); err != nil {
		return err
	}
	resize, err := s.App.API.CreateResize(ctx, visual.Brand, s.bundle.ID, label)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.resize = resize
	s.mu.Unlock()

	if err := s.startMirroring(fs); err != nil {
		return err
	}

	preview := s.previewURL(label)
	s.printf("Preview: %s\n", ui.Link.Render(preview))
	if err := s.OpenBrowser(preview); err != nil {
		s.logger().Warn("Failed opening preview in browser", slog.String("url", preview), slog.Any("error", err))
	}
	s.printf("%s\n", ui.Info.Render("Watching for changes... Press ctrl + c to stop bundler"))

	signals.HandleInterrupt(ctx, s.teardown)
	return nil
}

func (s *Session) ensureSynced(ctx context.Context) error {
	if s.App.Config.HasSynced() {
		return nil
	}
	ok, err := s.App.Prompt.Confirm(`Before running the dev command you need to run "lance sync" to download synchronised templates. Do you wish to run this command now?`, true)
	if err != nil {
		return err
	}
	if !ok {
		s.printf("Take your time! When you're ready, just call the \"lance sync\" command.\n")
		return ErrSyncRequired
	}
	_, err = s.App.Sync(ctx, core.SyncOptions{})
	return err
}

func (s *Session) selectTemplate() (core.Visual, error) {
	cfg := s.App.Config
	switch {
	case s.Opts.Template != "":
		return s.App.FindVisual(s.Opts.Template)
	case s.Opts.Newest:
		newest := cfg.NewestVisual()
		if newest == "" {
			return core.Visual{}, ErrNoNewest
		}
		return s.App.FindVisual(newest)
	}

	if last := cfg.LastDev(); last != "" {
		if v, err := s.App.FindVisual(last); err == nil {
			if s.Opts.Latest {
				return v, nil
			}
			ok, err := s.App.Prompt.Confirm("Develop recent template? "+last, true)
			if err != nil {
				return core.Visual{}, err
			}
			if ok {
				return v, nil
			}
		}
	}
	return s.App.SelectVisual()
}

// updateWorkingCopy makes sure git can read the template and brings it up to
// date with origin before its files are uploaded.
func (s *Session) updateWorkingCopy(ctx context.Context) error {
	v := s.visual
	if _, err := s.App.Git.Status(ctx, v.Path); err != nil {
		return fmt.Errorf("%w: %v", ErrGitUnreadable, err)
	}
	if err := s.App.Git.Fetch(ctx, v.Path); err != nil {
		s.logger().Warn("Failed to fetch template", slog.String("template", v.Name()), slog.Any("error", err))
		return nil
	}
	st, err := s.App.Git.Status(ctx, v.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGitUnreadable, err)
	}
	if st.Behind == 0 {
		return nil
	}
	if err := s.App.Git.Pull(ctx, v.Path, true); err != nil {
		return fmt.Errorf("%w: %v", ErrGitPullFailed, err)
	}
	return nil
}

// Resizes lists the resize folders of a template: top-level folders that
// start with a digit and contain an index.html.
func Resizes(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "[!_][0-9]*", "index.html"))
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(matches))
	for _, m := range matches {
		labels = append(labels, filepath.Base(filepath.Dir(m)))
	}
	sort.Strings(labels)
	return labels, nil
}

func (s *Session) selectResize() (string, error) {
	labels, err := Resizes(s.visual.Path)
	if err != nil {
		return "", err
	}
	switch len(labels) {
	case 0:
		return "", ErrNoResizes
	case 1:
		return labels[0], nil
	}
	idx, err := s.App.Prompt.Select("Select resize", labels)
	if err != nil {
		return "", err
	}
	return labels[idx], nil
}

// openBundle resumes the bundle already running for the template or starts
// a new one that this session owns.
func (s *Session) openBundle(ctx context.Context, repo *api.Repository, category string) error {
	v := s.visual
	running, err := s.App.API.RunningBundle(ctx, v.Brand, repo.Name, category)
	if err != nil {
		return err
	}
	if running != nil {
		s.printf("%s\n", ui.Warning.Bold(true).Render("Template is already being edited in studio. If you start a local build, all unsaved changes from studio will be overwritten by local files"))
		ok, err := s.App.Prompt.Confirm("Do you wish to continue?", false)
		if err != nil {
			return err
		}
		if !ok {
			s.printf("You can continue editing your template in studio here %s\n",
				ui.Link.Render(s.App.API.Env().StudioURL("/visuals/"+v.Brand+"/"+repo.Name)))
			return prompt.ErrAborted
		}
		s.mu.Lock()
		s.bundle = running
		s.mu.Unlock()
		return nil
	}

	branches, err := s.App.API.Branches(ctx, v.Brand, repo.Name)
	if err != nil {
		return err
	}
	var branch string
	switch len(branches) {
	case 0:
		return ErrNoBranches
	case 1:
		branch = branchName(branches[0])
	default:
		options := make([]string, len(branches))
		for i, b := range branches {
			options[i] = b.Title()
		}
		idx, err := s.App.Prompt.Select("Select branch", options)
		if err != nil {
			return err
		}
		branch = branchName(branches[idx])
	}

	bundle, err := s.App.API.CreateBundle(ctx, v.Brand, repo.Name, branch, category)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bundle = bundle
	s.owned = true
	s.mu.Unlock()
	s.logger().Debug("Bundle started", slog.String("bundle", bundle.ID.String()), slog.String("branch", bundle.Branch))
	return nil
}

func branchName(c api.Choice) string {
	if c.Value != "" {
		return c.Value
	}
	return c.Name
}

// track remembers the snapshot archive so that teardown can remove it when
// the upload is interrupted.
func (s *Session) track(archive string) {
	s.mu.Lock()
	s.archive = archive
	s.mu.Unlock()
}

func (s *Session) startMirroring(remote Remote) error {
	feed, err := StartFeed(s.logger())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.feed = feed
	s.mu.Unlock()

	bundleID := s.bundle.ID.String()
	repo := s.visual.Repo
	w, err := NewWatcher(WatchConfig{
		Dir:      s.visual.Path,
		Remote:   remote,
		Debounce: s.Opts.Debounce,
		Logger:   s.logger(),
		Ignore: func(rel string) bool {
			return ingest.IsArchive(rel, repo)
		},
		OnMirrored: func(rel string, kind ChangeKind) {
			s.printf("%s %s\n", ui.Success.Render("✓"), rel)
			feed.Broadcast(bundleID)
		},
		OnError: func(rel string, kind ChangeKind, err error) {
			s.App.ReportItem(rel, err)
		},
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return w.Start()
}

func (s *Session) previewURL(label string) string {
	u := s.App.API.Env().StudioURL(fmt.Sprintf("/visuals/local/%s/%s", s.bundle.ID, label))
	return u + "?dev=" + s.feed.URL()
}

func (s *Session) stop(ctx context.Context) {
	s.mu.Lock()
	watcher, feed, resize, bundle, owned, archive := s.watcher, s.feed, s.resize, s.bundle, s.owned, s.archive
	s.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
	}
	if feed != nil {
		feed.Close()
	}
	if archive != "" {
		if err := os.Remove(archive); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger().Warn("Failed to remove snapshot", slog.String("file", archive), slog.Any("error", err))
		}
	}
	if !owned || s.Opts.KeepBundle {
		return
	}
	if resize != nil {
		if err := s.App.API.DeleteResize(ctx, resize.ID); err != nil {
			s.App.ReportItem("resize "+resize.Label, err)
		}
	}
	if bundle != nil {
		s.printf("Stopping bundle %s\n", bundle.ID)
		if err := s.App.API.DeleteBundle(ctx, *bundle); err != nil {
			s.App.ReportItem("bundle "+bundle.ID.String(), err)
		}
	}
}
