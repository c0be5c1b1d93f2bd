package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"lance/git"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchContinuesAfterFailure(t *testing.T) {
	f := newFixture(t, nil)
	broken := f.repo(t, "acme", "a")
	f.repo(t, "acme", "b")
	f.git.FailOn("fetch", broken, assert.AnError)

	err := f.app.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrSomeItemsFailed)
	assert.Len(t, f.git.CallsFor("fetch"), 2)
	assert.Contains(t, f.out.String(), "Fetched 1 templates")
}

func TestFetchWithoutTemplates(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "acme", "not-a-repo"), 0o755))

	err := f.app.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrNoTemplates)
}

func TestPullSetsUpstream(t *testing.T) {
	f := newFixture(t, nil)
	dir := f.repo(t, "acme", "a")

	require.NoError(t, f.app.Pull(context.Background()))

	upstream := f.git.CallsFor("upstream")
	require.Len(t, upstream, 1)
	assert.Equal(t, dir, upstream[0].Dir)
	assert.Equal(t, []string{"origin/master", "master"}, upstream[0].Args)
	assert.Len(t, f.git.CallsFor("pull"), 1)
}

func TestPushCommitsSelected(t *testing.T) {
	f := newFixture(t, nil, []int{1}, "")
	clean := f.repo(t, "acme", "a")
	ahead := f.repo(t, "acme", "b")
	dirty := f.repo(t, "acme", "c")
	f.git.SetStatus(clean, &git.Status{Branch: "master"})
	f.git.SetStatus(ahead, &git.Status{Branch: "master", Ahead: 1})
	f.git.SetStatus(dirty, &git.Status{Branch: "feature", Files: []git.FileStatus{{Path: "index.html", XY: ".M"}}})

	require.NoError(t, f.app.Push(context.Background()))

	commits := f.git.CallsFor("commit")
	require.Len(t, commits, 1)
	assert.Equal(t, dirty, commits[0].Dir)
	assert.Equal(t, []string{"Changes"}, commits[0].Args)

	pushes := f.git.CallsFor("push")
	require.Len(t, pushes, 1)
	assert.Equal(t, dirty, pushes[0].Dir)
	assert.Equal(t, []string{"origin", "feature"}, pushes[0].Args)
	assert.Len(t, f.git.CallsFor("add"), 1)
}

func TestPushOnlyAheadSkipsCommit(t *testing.T) {
	f := newFixture(t, nil, []int{0})
	ahead := f.repo(t, "acme", "b")
	f.git.SetStatus(ahead, &git.Status{Branch: "master", Ahead: 2})

	require.NoError(t, f.app.Push(context.Background()))

	assert.Empty(t, f.git.CallsFor("commit"))
	assert.Len(t, f.git.CallsFor("push"), 1)
}

func TestPushErrors(t *testing.T) {
	t.Run("nothing to push", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo(t, "acme", "a")
		assert.ErrorIs(t, f.app.Push(context.Background()), ErrNothingToPush)
	})
	t.Run("nothing selected", func(t *testing.T) {
		f := newFixture(t, nil, []int{})
		dir := f.repo(t, "acme", "a")
		f.git.SetStatus(dir, &git.Status{Branch: "master", Ahead: 1})
		assert.ErrorIs(t, f.app.Push(context.Background()), ErrNoneSelected)
		assert.Empty(t, f.git.CallsFor("push"))
	})
}

func TestStatusRows(t *testing.T) {
	f := newFixture(t, nil)
	f.repo(t, "acme", "clean")
	dirty := f.repo(t, "acme", "dirty")
	f.git.SetStatus(dirty, &git.Status{
		Branch: "feature",
		Ahead:  1,
		Files:  []git.FileStatus{{Path: "a.js", XY: "??"}, {Path: "b.css", XY: ".M"}},
	})
	empty := filepath.Join(f.root, "acme", "empty")
	require.NoError(t, os.MkdirAll(empty, 0o755))
	plain := filepath.Join(f.root, "acme", "plain")
	require.NoError(t, os.MkdirAll(plain, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(plain, "index.html"), []byte("<html>"), 0o644))

	rows, err := f.app.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "No changes", rows[0].Status)
	assert.Equal(t, "master", rows[0].Branch)

	assert.Equal(t, "feature", rows[1].Branch)
	assert.Contains(t, rows[1].Status, "Changed 2 files: a.js, b.css")
	assert.Contains(t, rows[1].Status, "1 commits to push")

	assert.True(t, rows[2].Removed)
	assert.NoDirExists(t, empty)

	assert.Contains(t, rows[3].Status, "Git not initialized")
	assert.Contains(t, f.out.String(), "Template")
}

func TestParseVisual(t *testing.T) {
	tests := []struct {
		in      string
		brand   string
		repo    string
		wantErr bool
	}{
		{in: "acme/acme-spring-html-1", brand: "acme", repo: "acme-spring-html-1"},
		{in: "/acme/x/", brand: "acme", repo: "x"},
		{in: "acme", wantErr: true},
		{in: "acme/", wantErr: true},
		{in: "a/b/c", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			brand, repo, err := ParseVisual(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidVisual)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.brand, brand)
			assert.Equal(t, tc.repo, repo)
		})
	}
}

func TestClone(t *testing.T) {
	f := newFixture(t, nil)

	v, err := f.app.Clone(context.Background(), "acme/acme-spring-html-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.root, "acme", "acme-spring-html-1"), v.Path)

	clones := f.git.CallsFor("clone")
	require.Len(t, clones, 1)
	assert.Equal(t, "https://jane:pw@git.example.com/acme/acme-spring-html-1.git", clones[0].Args[0])

	_, err = f.app.Clone(context.Background(), "acme/acme-spring-html-1")
	assert.ErrorIs(t, err, ErrAlreadyCloned)
}
