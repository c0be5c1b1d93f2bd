// SPDX-License-Identifier: MPL-2.0

// Package ingest zips a template and uploads it into a bundle.
package ingest

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lance/util/pathutil"

	"github.com/klauspost/compress/zip"
	"github.com/nrednav/cuid2"
)

// ArchiveName returns a unique snapshot file name for repo.
func ArchiveName(repo string) string {
	return repo + "-" + cuid2.Generate() + ".zip"
}

// IsArchive reports whether name looks like a snapshot of repo, including
// stale ones left by an interrupted run.
func IsArchive(name, repo string) bool {
	return strings.HasPrefix(name, repo+"-") && strings.HasSuffix(name, ".zip")
}

// Snapshot writes a zip of dir into dir itself and returns its path. Hidden
// files and directories and earlier snapshots of repo are left out.
func Snapshot(dir, repo string) (string, error) {
	name := ArchiveName(repo)
	target := filepath.Join(dir, name)

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}
	zw := zip.NewWriter(f)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if pathutil.IsHidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			_, err := zw.Create(rel + "/")
			return err
		}
		if !d.Type().IsRegular() || (!strings.Contains(rel, "/") && IsArchive(rel, repo)) {
			return nil
		}
		return addFile(zw, path, rel)
	})

	closeErr := zw.Close()
	fileErr := f.Close()
	for _, err := range []error{walkErr, closeErr, fileErr} {
		if err != nil {
			os.Remove(target)
			return "", fmt.Errorf("failed to write snapshot: %w", err)
		}
	}
	return target, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// RemoveStale deletes snapshots of repo left in dir by earlier runs.
func RemoveStale(dir, repo string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && IsArchive(e.Name(), repo) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}
