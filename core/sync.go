// SPDX-License-Identifier: MPL-2.0

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"lance/config"
	"lance/git"
	"lance/ui"
	"lance/util/pathutil"
)

type SyncOptions struct {
	// Shallow clones new repositories with depth 1.
	Shallow bool
}

type SyncResult struct {
	Synced  int
	Removed []string
	// Kept lists unsubscribed folders left in place because they hold
	// uncommitted work.
	Kept   []string
	Failed []string
}

// Sync mirrors the subscribed templates of every brand into the root.
func (a *App) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	root, err := a.Root()
	if err != nil {
		return nil, err
	}
	if err := pathutil.EnsureDir(root); err != nil {
		return nil, err
	}

	a.success("Downloading template list available for sync...")
	orgs, err := a.API.Orgs(ctx)
	if err != nil {
		return nil, err
	}
	brands := make([]string, 0, len(orgs))
	for _, org := range orgs {
		brands = append(brands, org.Name)
	}

	syncs, err := a.API.Syncs(ctx, brands)
	if err != nil {
		return nil, err
	}
	if err := a.Config.Set(config.KeyLastSyncResponse, syncs); err != nil {
		a.Logger.Warn("Failed to cache sync response", slog.Any("error", err))
	}

	if err := ensureGitignore(root); err != nil {
		return nil, err
	}

	result := &SyncResult{}
	for _, brand := range brands {
		brandPath := filepath.Join(root, brand)
		if err := pathutil.EnsureDir(brandPath); err != nil {
			return nil, err
		}

		var subscribed []string
		for _, s := range syncs {
			if s.Organization == brand && s.Repo != "" && !slices.Contains(subscribed, s.Repo) {
				subscribed = append(subscribed, s.Repo)
			}
		}
		fmt.Fprintf(a.Out, "Syncing brand: %s (%d synced templates)\n", ui.Highlight.Render(brand), len(subscribed))

		local, err := pathutil.ListDirs(brandPath)
		if err != nil {
			return nil, err
		}
		for _, folder := range local {
			if slices.Contains(subscribed, folder) {
				continue
			}
			a.removeUnsubscribed(ctx, brand, folder, filepath.Join(brandPath, folder), result)
		}

		for _, repo := range subscribed {
			name := brand + "/" + repo
			if err := a.syncRepo(ctx, brand, repo, filepath.Join(brandPath, repo), opts); err != nil {
				a.ReportItem(name, err)
				result.Failed = append(result.Failed, name)
				continue
			}
			result.Synced++
		}
	}

	a.success("Synced %d templates", result.Synced)
	fmt.Fprintln(a.Out, "Start editing in studio:", ui.Link.Render(a.API.Env().StudioURL("")))
	if err := a.Config.MarkSynced(a.Now()); err != nil {
		return result, fmt.Errorf("failed to store sync time: %w", err)
	}
	return result, nil
}

func ensureGitignore(root string) error {
	p := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(p); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.WriteFile(p, []byte("*.url"), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// removeUnsubscribed deletes a folder whose subscription was dropped, unless
// git reports work that would be lost.
func (a *App) removeUnsubscribed(ctx context.Context, brand, folder, path string, result *SyncResult) {
	name := brand + "/" + folder
	if git.IsRepository(path) {
		st, err := a.Git.Status(ctx, path)
		if err != nil {
			a.warn("Keeping %s, its git status could not be read: %v", name, err)
			result.Kept = append(result.Kept, name)
			return
		}
		if !st.Clean() || st.Ahead > 0 {
			a.warn("Keeping %s, it is no longer synced but has local changes", name)
			result.Kept = append(result.Kept, name)
			return
		}
	}
	if a.Debug {
		fmt.Fprintf(a.Out, "Deleting %s\n", name)
	}
	if err := os.RemoveAll(path); err != nil {
		a.ReportItem(name, fmt.Errorf("failed to delete unsynced folder: %w", err))
		result.Failed = append(result.Failed, name)
		return
	}
	result.Removed = append(result.Removed, name)
}

func (a *App) syncRepo(ctx context.Context, brand, repo, path string, opts SyncOptions) error {
	if err := pathutil.EnsureDir(path); err != nil {
		return err
	}
	origin := a.origin(brand, repo)

	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	switch {
	case git.IsRepository(path):
		if err := a.Git.SetRemote(ctx, path, "origin", origin); err != nil {
			return err
		}
	case len(entries) == 0:
		depth := 0
		if opts.Shallow {
			depth = 1
		}
		if a.Debug {
			fmt.Fprintf(a.Out, "Cloning %s/%s\n", brand, repo)
		}
		if err := a.Git.Clone(ctx, origin, path, depth); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s is not empty and not a git repository", path)
	}

	if err := a.setIdentity(ctx, path); err != nil {
		return err
	}
	if err := a.Git.Fetch(ctx, path); err != nil {
		return err
	}
	st, err := a.Git.Status(ctx, path)
	if err != nil {
		return err
	}
	if !st.Clean() {
		a.warn("%s/%s has uncommitted changes, skipping pull", brand, repo)
		return nil
	}
	if st.Behind > 0 {
		if err := a.Git.Pull(ctx, path, false); err != nil {
			return err
		}
	}
	if st.Ahead > 0 {
		a.warn("%s/%s has %d local commits, push them with \"lance push\"", brand, repo, st.Ahead)
	}
	return nil
}
