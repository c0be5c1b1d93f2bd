// SPDX-License-Identifier: MPL-2.0

package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"lance/git"
	"lance/ui"
	"lance/util/pathutil"
)

const (
	mainBranch           = "master"
	defaultCommitMessage = "Changes"
)

var (
	ErrNothingToPush   = errors.New("there is nothing to push")
	ErrNoneSelected    = errors.New("no template selected")
	ErrAlreadyCloned   = errors.New("template is already cloned")
	ErrInvalidVisual   = errors.New(`template must be given as "brand/repo"`)
	ErrSomeItemsFailed = errors.New("some templates failed")
)

func failedErr(failed int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrSomeItemsFailed, failed)
}

// repositories returns the visuals that are git working copies.
func (a *App) repositories() ([]Visual, error) {
	visuals, err := a.Visuals()
	if err != nil {
		return nil, err
	}
	repos := visuals[:0]
	for _, v := range visuals {
		if git.IsRepository(v.Path) {
			repos = append(repos, v)
		}
	}
	if len(repos) == 0 {
		return nil, ErrNoTemplates
	}
	return repos, nil
}

func (a *App) fetchOne(ctx context.Context, v Visual) error {
	if err := a.Git.SetRemote(ctx, v.Path, "origin", a.origin(v.Brand, v.Repo)); err != nil {
		return err
	}
	return a.Git.Fetch(ctx, v.Path)
}

// Fetch refreshes the remote refs of every local template.
func (a *App) Fetch(ctx context.Context) error {
	repos, err := a.repositories()
	if err != nil {
		return err
	}
	failed := a.eachVisual(ctx, repos, func(ctx context.Context, v Visual) error {
		if err := a.fetchOne(ctx, v); err != nil {
			return err
		}
		if a.Debug {
			fmt.Fprintf(a.Out, "Fetched %s\n", v.Name())
		}
		return nil
	})
	a.success("Fetched %d templates", len(repos)-failed)
	return failedErr(failed)
}

// Pull fast-forwards every local template from origin/master.
func (a *App) Pull(ctx context.Context) error {
	repos, err := a.repositories()
	if err != nil {
		return err
	}
	failed := a.eachVisual(ctx, repos, func(ctx context.Context, v Visual) error {
		if err := a.fetchOne(ctx, v); err != nil {
			return err
		}
		if err := a.Git.SetUpstream(ctx, v.Path, "origin/"+mainBranch, mainBranch); err != nil {
			return err
		}
		if err := a.Git.Pull(ctx, v.Path, false); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Pulled %s\n", v.Name())
		return nil
	})
	a.success("Pulled %d templates", len(repos)-failed)
	return failedErr(failed)
}

type pushItem struct {
	visual  Visual
	status  *git.Status
	message string
}

// Push commits and pushes the templates the user picks among those with
// local changes or unpushed commits.
func (a *App) Push(ctx context.Context) error {
	repos, err := a.repositories()
	if err != nil {
		return err
	}

	var candidates []pushItem
	for _, v := range repos {
		st, err := a.Git.Status(ctx, v.Path)
		if err != nil {
			a.ReportItem(v.Name(), err)
			continue
		}
		if !st.Clean() || st.Ahead > 0 {
			candidates = append(candidates, pushItem{visual: v, status: st})
		}
	}
	if len(candidates) == 0 {
		return ErrNothingToPush
	}

	options := make([]string, len(candidates))
	for i, c := range candidates {
		options[i] = fmt.Sprintf("%s (%d changed, %d commits ahead)", c.visual.Name(), len(c.status.Files), c.status.Ahead)
	}
	picked, err := a.Prompt.MultiSelect("Select templates to push", options)
	if err != nil {
		return err
	}
	if len(picked) == 0 {
		return ErrNoneSelected
	}

	selected := make([]pushItem, 0, len(picked))
	for _, idx := range picked {
		item := candidates[idx]
		if !item.status.Clean() {
			msg, err := a.Prompt.Input(fmt.Sprintf("Commit message for %s", item.visual.Name()), defaultCommitMessage)
			if err != nil {
				return err
			}
			if strings.TrimSpace(msg) == "" {
				msg = defaultCommitMessage
			}
			item.message = msg
		}
		selected = append(selected, item)
	}

	byName := make(map[string]pushItem, len(selected))
	visuals := make([]Visual, len(selected))
	for i, item := range selected {
		byName[item.visual.Name()] = item
		visuals[i] = item.visual
	}
	failed := a.eachVisual(ctx, visuals, func(ctx context.Context, v Visual) error {
		return a.pushOne(ctx, byName[v.Name()])
	})
	a.success("Pushed %d templates", len(selected)-failed)
	return failedErr(failed)
}

func (a *App) pushOne(ctx context.Context, item pushItem) error {
	v := item.visual
	if err := a.Git.SetRemote(ctx, v.Path, "origin", a.origin(v.Brand, v.Repo)); err != nil {
		return err
	}
	st, err := a.Git.Status(ctx, v.Path)
	if err != nil {
		return err
	}
	if !st.Clean() {
		if err := a.Git.AddAll(ctx, v.Path); err != nil {
			return err
		}
		if err := a.Git.Commit(ctx, v.Path, item.message); err != nil {
			return err
		}
	}
	branch := st.Branch
	if branch == "" {
		branch = mainBranch
	}
	if err := a.Git.Push(ctx, v.Path, "origin", branch); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Pushed %s to %s\n", v.Name(), branch)
	return nil
}

// StatusRow is one line of the status table.
type StatusRow struct {
	Visual  Visual
	Branch  string
	Status  string
	Removed bool
}

// Status prints a table with the branch and pending changes of every
// template. Empty template folders are removed.
func (a *App) Status(ctx context.Context) ([]StatusRow, error) {
	visuals, err := a.Visuals()
	if err != nil {
		return nil, err
	}
	if len(visuals) == 0 {
		return nil, ErrNoTemplates
	}

	rows := make([]StatusRow, len(visuals))
	index := make(map[string]int, len(visuals))
	for i, v := range visuals {
		index[v.Name()] = i
	}
	var mu sync.Mutex
	failed := a.eachVisual(ctx, visuals, func(ctx context.Context, v Visual) error {
		row, err := a.statusRow(ctx, v)
		if err != nil {
			return err
		}
		mu.Lock()
		rows[index[v.Name()]] = row
		mu.Unlock()
		return nil
	})

	var out []StatusRow
	var table [][]string
	for _, row := range rows {
		if row.Visual.Path == "" {
			continue
		}
		out = append(out, row)
		branch := row.Branch
		if branch != "" && branch != mainBranch {
			branch = ui.Warning.Render(branch + " (not on " + mainBranch + ")")
		}
		table = append(table, []string{row.Visual.Brand, row.Visual.Repo, branch, row.Status})
	}
	fmt.Fprintln(a.Out, ui.Table([]string{"Brand", "Template", "Git Branch", "Status"}, table))
	return out, failedErr(failed)
}

func (a *App) statusRow(ctx context.Context, v Visual) (StatusRow, error) {
	row := StatusRow{Visual: v}
	entries, err := os.ReadDir(v.Path)
	if err != nil {
		return row, err
	}
	if len(entries) == 0 {
		if err := os.Remove(v.Path); err != nil {
			return row, fmt.Errorf("failed to remove empty folder: %w", err)
		}
		row.Removed = true
		row.Status = "Empty folder, deleted"
		return row, nil
	}
	if !git.IsRepository(v.Path) {
		row.Status = ui.Error.Render("Git not initialized")
		return row, nil
	}
	st, err := a.Git.Status(ctx, v.Path)
	if err != nil {
		return row, err
	}
	row.Branch = st.Branch
	var parts []string
	if !st.Clean() {
		paths := make([]string, len(st.Files))
		for i, f := range st.Files {
			paths[i] = f.Path
		}
		parts = append(parts, fmt.Sprintf("Changed %d files: %s", len(paths), strings.Join(paths, ", ")))
	}
	if st.Ahead > 0 {
		parts = append(parts, fmt.Sprintf("%d commits to push", st.Ahead))
	}
	if st.Behind > 0 {
		parts = append(parts, fmt.Sprintf("%d commits to pull", st.Behind))
	}
	if len(parts) == 0 {
		row.Status = "No changes"
	} else {
		row.Status = strings.Join(parts, "; ")
	}
	return row, nil
}

// ParseVisual splits "brand/repo".
func ParseVisual(name string) (string, string, error) {
	brand, repo, ok := strings.Cut(strings.Trim(name, "/"), "/")
	if !ok || brand == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidVisual, name)
	}
	return brand, repo, nil
}

// Clone makes a shallow clone of one template into the root.
func (a *App) Clone(ctx context.Context, name string) (Visual, error) {
	brand, repo, err := ParseVisual(name)
	if err != nil {
		return Visual{}, err
	}
	root, err := a.Root()
	if err != nil {
		return Visual{}, err
	}
	v := Visual{Brand: brand, Repo: repo, Path: filepath.Join(root, brand, repo)}
	if git.IsRepository(v.Path) {
		return v, fmt.Errorf("%w: %s", ErrAlreadyCloned, v.Path)
	}
	if entries, err := os.ReadDir(v.Path); err == nil && len(entries) > 0 {
		return v, fmt.Errorf("%s is not empty", v.Path)
	}
	if err := pathutil.EnsureDir(filepath.Dir(v.Path)); err != nil {
		return v, err
	}
	fmt.Fprintf(a.Out, "Cloning %s...\n", v.Name())
	if err := a.Git.Clone(ctx, a.origin(brand, repo), v.Path, 1); err != nil {
		return v, err
	}
	if err := a.setIdentity(ctx, v.Path); err != nil {
		return v, err
	}
	a.success("Cloned %s into %s", v.Name(), v.Path)
	return v, nil
}
