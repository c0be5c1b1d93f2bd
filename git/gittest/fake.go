// SPDX-License-Identifier: MPL-2.0

// Package gittest provides an in-memory git.Client for tests.
package gittest

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"lance/git"
)

type Call struct {
	Op   string
	Dir  string
	Args []string
}

// Fake records every call. Clone creates <dir>/.git on disk so that
// git.IsRepository holds afterwards.
type Fake struct {
	mu       sync.Mutex
	calls    []Call
	statuses map[string]*git.Status
	config   map[string]map[string]string
	errs     map[string]error
}

var _ git.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		statuses: map[string]*git.Status{},
		config:   map[string]map[string]string{},
		errs:     map[string]error{},
	}
}

// SetStatus fixes the status reported for dir.
func (f *Fake) SetStatus(dir string, st *git.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[filepath.Clean(dir)] = st
}

// FailOn makes op on dir return err. An empty dir matches every directory.
func (f *Fake) FailOn(op, dir string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op+"|"+cleanOrEmpty(dir)] = err
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsFor returns the calls of one operation.
func (f *Fake) CallsFor(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func cleanOrEmpty(dir string) string {
	if dir == "" {
		return ""
	}
	return filepath.Clean(dir)
}

func (f *Fake) record(op, dir string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Dir: cleanOrEmpty(dir), Args: args})
	if err, ok := f.errs[op+"|"+cleanOrEmpty(dir)]; ok {
		return err
	}
	return f.errs[op+"|"]
}

func (f *Fake) Clone(ctx context.Context, url, dir string, depth int) error {
	if err := f.record("clone", dir, url); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(dir, ".git"), 0o755)
}

func (f *Fake) Fetch(ctx context.Context, dir string) error {
	return f.record("fetch", dir)
}

func (f *Fake) Pull(ctx context.Context, dir string, rebase bool) error {
	if err := f.record("pull", dir); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.statuses[filepath.Clean(dir)]; ok {
		st.Behind = 0
	}
	return nil
}

func (f *Fake) Push(ctx context.Context, dir, remote, branch string) error {
	return f.record("push", dir, remote, branch)
}

func (f *Fake) Status(ctx context.Context, dir string) (*git.Status, error) {
	if err := f.record("status", dir); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.statuses[filepath.Clean(dir)]; ok {
		cp := *st
		cp.Files = slices.Clone(st.Files)
		return &cp, nil
	}
	return &git.Status{Branch: "master"}, nil
}

func (f *Fake) SetRemote(ctx context.Context, dir, name, url string) error {
	return f.record("remote", dir, name, url)
}

func (f *Fake) ConfigGet(ctx context.Context, dir, key string) (string, error) {
	if err := f.record("config-get", dir, key); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config[filepath.Clean(dir)][key], nil
}

func (f *Fake) ConfigSet(ctx context.Context, dir, key, value string) error {
	if err := f.record("config-set", dir, key, value); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dir = filepath.Clean(dir)
	if f.config[dir] == nil {
		f.config[dir] = map[string]string{}
	}
	f.config[dir][key] = value
	return nil
}

func (f *Fake) SetUpstream(ctx context.Context, dir, upstream, branch string) error {
	return f.record("upstream", dir, upstream, branch)
}

func (f *Fake) AddAll(ctx context.Context, dir string) error {
	return f.record("add", dir)
}

func (f *Fake) Commit(ctx context.Context, dir, message string) error {
	if err := f.record("commit", dir, message); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.statuses[filepath.Clean(dir)]; ok {
		st.Files = nil
		st.Ahead++
	}
	return nil
}
