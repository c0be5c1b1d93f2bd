// SPDX-License-Identifier: MPL-2.0

package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lance/api"

	"github.com/dustin/go-humanize"
)

type Ingester interface {
	Ingest(ctx context.Context, bundleID api.ID, name string, r io.Reader, size int64, progress api.ProgressFunc) error
}

// Progress prints upload progress to out at most every interval.
type Progress struct {
	out      io.Writer
	interval time.Duration
	mu       sync.Mutex
	last     time.Time
}

func NewProgress(out io.Writer) *Progress {
	return &Progress{out: out, interval: 250 * time.Millisecond}
}

func (p *Progress) Report(sent, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	done := total > 0 && sent >= total
	if !done && time.Since(p.last) < p.interval {
		return
	}
	p.last = time.Now()
	if total > 0 {
		fmt.Fprintf(p.out, "\rUploading %s / %s (%d%%)", humanize.Bytes(uint64(sent)), humanize.Bytes(uint64(total)), sent*100/total)
	} else {
		fmt.Fprintf(p.out, "\rUploading %s", humanize.Bytes(uint64(sent)))
	}
	if done {
		fmt.Fprintln(p.out)
	}
}

// Upload snapshots dir, ingests the archive into the bundle and removes it
// again. The archive path is handed to track before the upload starts so
// that an interrupted session can clean it up.
func Upload(ctx context.Context, client Ingester, bundleID api.ID, dir, repo string, out io.Writer, track func(string)) error {
	if err := RemoveStale(dir, repo); err != nil {
		return fmt.Errorf("failed to remove stale snapshots: %w", err)
	}
	archive, err := Snapshot(dir, repo)
	if err != nil {
		return err
	}
	if track != nil {
		track(archive)
	}
	defer os.Remove(archive)

	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}

	var progress api.ProgressFunc
	if out != nil {
		progress = NewProgress(out).Report
	}
	return client.Ingest(ctx, bundleID, filepath.Base(archive), f, info.Size(), progress)
}
