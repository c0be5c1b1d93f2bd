// SPDX-License-Identifier: MPL-2.0

// Package git runs the git binary against template working directories.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Client is the set of git operations the commands rely on.
type Client interface {
	Clone(ctx context.Context, url, dir string, depth int) error
	Fetch(ctx context.Context, dir string) error
	Pull(ctx context.Context, dir string, rebase bool) error
	Push(ctx context.Context, dir, remote, branch string) error
	Status(ctx context.Context, dir string) (*Status, error)
	SetRemote(ctx context.Context, dir, name, url string) error
	// ConfigGet reads a key from the repository's local config only. A
	// missing key yields "" without error.
	ConfigGet(ctx context.Context, dir, key string) (string, error)
	ConfigSet(ctx context.Context, dir, key, value string) error
	SetUpstream(ctx context.Context, dir, upstream, branch string) error
	AddAll(ctx context.Context, dir string) error
	Commit(ctx context.Context, dir, message string) error
}

// IsRepository reports whether dir contains a .git directory.
func IsRepository(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}

var credentials = regexp.MustCompile(`://[^/@\s]+@`)

// Redact hides basic-auth credentials embedded in URLs.
func Redact(s string) string {
	return credentials.ReplaceAllString(s, "://***@")
}

type Exec struct {
	binary string
	logger *slog.Logger
}

func NewExec(logger *slog.Logger) *Exec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exec{binary: "git", logger: logger}
}

func (g *Exec) run(ctx context.Context, dir string, args ...string) (string, error) {
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	g.logger.Debug("git", slog.String("args", Redact(strings.Join(args, " "))))
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return stdout.String(), fmt.Errorf("git %s failed: %s: %w", args[firstVerb(args)], Redact(msg), err)
	}
	return stdout.String(), nil
}

// firstVerb returns the index of the git subcommand, skipping -C <dir>.
func firstVerb(args []string) int {
	if len(args) > 2 && args[0] == "-C" {
		return 2
	}
	return 0
}

func (g *Exec) Clone(ctx context.Context, url, dir string, depth int) error {
	args := []string{"clone"}
	if depth > 0 {
		args = append(args, "--depth", strconv.Itoa(depth))
	}
	args = append(args, url, dir)
	_, err := g.run(ctx, "", args...)
	return err
}

func (g *Exec) Fetch(ctx context.Context, dir string) error {
	_, err := g.run(ctx, dir, "fetch", "origin")
	return err
}

func (g *Exec) Pull(ctx context.Context, dir string, rebase bool) error {
	args := []string{"pull"}
	if rebase {
		args = append(args, "--rebase")
	}
	_, err := g.run(ctx, dir, args...)
	return err
}

func (g *Exec) Push(ctx context.Context, dir, remote, branch string) error {
	_, err := g.run(ctx, dir, "push", remote, branch)
	return err
}

func (g *Exec) Status(ctx context.Context, dir string) (*Status, error) {
	out, err := g.run(ctx, dir, "status", "--porcelain=v2", "--branch")
	if err != nil {
		return nil, err
	}
	return ParseStatus(out)
}

// SetRemote replaces the remote name with url.
func (g *Exec) SetRemote(ctx context.Context, dir, name, url string) error {
	if _, err := g.run(ctx, dir, "remote", "get-url", name); err == nil {
		if _, err := g.run(ctx, dir, "remote", "remove", name); err != nil {
			return err
		}
	}
	_, err := g.run(ctx, dir, "remote", "add", name, url)
	return err
}

func (g *Exec) ConfigGet(ctx context.Context, dir, key string) (string, error) {
	out, err := g.run(ctx, dir, "config", "--local", "--get", key)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *Exec) ConfigSet(ctx context.Context, dir, key, value string) error {
	_, err := g.run(ctx, dir, "config", "--local", key, value)
	return err
}

func (g *Exec) SetUpstream(ctx context.Context, dir, upstream, branch string) error {
	_, err := g.run(ctx, dir, "branch", "--set-upstream-to="+upstream, branch)
	return err
}

func (g *Exec) AddAll(ctx context.Context, dir string) error {
	_, err := g.run(ctx, dir, "add", "--all", ".")
	return err
}

func (g *Exec) Commit(ctx context.Context, dir, message string) error {
	_, err := g.run(ctx, dir, "commit", "-m", message)
	return err
}
