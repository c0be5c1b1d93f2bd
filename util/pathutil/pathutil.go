// SPDX-License-Identifier: MPL-2.0

package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandUser resolves leading ~ references to the current user's home directory.
func ExpandUser(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p[0] != '~' {
		return p, nil
	}
	if len(p) > 1 && p[1] != '/' && p[1] != '\\' {
		return "", fmt.Errorf("cannot expand home directory in path %q", p)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	if len(p) == 1 {
		return homeDir, nil
	}

	suffix := strings.TrimLeft(p[1:], "/\\")
	if suffix == "" {
		return homeDir, nil
	}

	normalized := strings.ReplaceAll(suffix, "\\", "/")
	normalized = filepath.FromSlash(normalized)

	return filepath.Join(homeDir, normalized), nil
}

// ResolveAbsolute expands ~ and returns an absolute path.
func ResolveAbsolute(p string) (string, error) {
	expanded, err := ExpandUser(p)
	if err != nil {
		return "", err
	}
	if expanded == "" {
		return "", nil
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	return absPath, nil
}

// IsHidden reports whether any segment of a slash or OS separated relative
// path starts with a dot.
func IsHidden(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, segment := range strings.Split(rel, "/") {
		if segment == "" || segment == "." || segment == ".." {
			continue
		}
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}

// ListDirs returns the names of the non-hidden directories directly under dir.
// A missing dir yields an empty list.
func ListDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dirs = append(dirs, entry.Name())
	}
	return dirs, nil
}

// EnsureDir creates path (and parents) unless it already is a directory.
func EnsureDir(path string) error {
	if stat, err := os.Stat(path); err == nil {
		if !stat.IsDir() {
			return fmt.Errorf("%s is not a directory", path)
		}
		return nil
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return nil
	} else {
		return fmt.Errorf("failed to access directory: %w", err)
	}
}
