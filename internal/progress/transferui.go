package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// TransferUI manages multiple concurrent transfer progress bars using mpb
type TransferUI struct {
	progress   *mpb.Progress
	out        io.Writer
	verb       string // "Uploading" or "Downloading"
	isTerminal bool
	totalFiles int
	started    int32 // Atomic counter for file index (1, 2, 3, ...)
	completed  int32
	failed     int32
}

// FileBar represents a single file transfer progress bar
type FileBar struct {
	bar        *mpb.Bar
	ui         *TransferUI
	index      int
	label      string
	size       int64
	current    atomic.Int64
	startTime  time.Time
	lastUpdate time.Time
}

// NewTransferUI creates a new transfer UI with the given number of total files
func NewTransferUI(verb string, totalFiles int) *TransferUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd())) && enableVirtualTerminal(os.Stderr)

	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	} else {
		// Non-TTY: disable progress bars, just use text output
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &TransferUI{
		progress:   p,
		out:        os.Stderr,
		verb:       verb,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// AddFileBar creates a new progress bar for one transfer. size < 0 means unknown.
func (u *TransferUI) AddFileBar(localPath string, size int64) *FileBar {
	index := int(atomic.AddInt32(&u.started, 1))
	label := truncatePath(localPath, 2)

	fb := &FileBar{
		ui:         u,
		index:      index,
		label:      label,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	total := size
	if total < 0 {
		total = 0 // mpb treats 0 as unknown until SetTotal
	}

	if u.isTerminal {
		fb.bar = u.progress.New(total,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("[%d/%d] %s", fb.index, u.totalFiles, label), decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
				decor.Name("  "),
				decor.Name("ETA ", decor.WCSyncWidth),
				decor.EwmaETA(decor.ET_STYLE_GO, 30),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "%s [%d/%d]: %s (%s)\n", u.verb, fb.index, u.totalFiles, label, formatSize(size))
	}

	return fb
}

// Observe implements Sink. Uses EWMA timing for speed and ETA.
func (f *FileBar) Observe(s Sample) {
	f.current.Add(s.BytesDelta)
	if f.bar == nil {
		return
	}
	now := time.Now()
	f.bar.EwmaIncrInt64(s.BytesDelta, now.Sub(f.lastUpdate))
	f.lastUpdate = now
}

// Complete marks the transfer as finished and prints a summary
func (f *FileBar) Complete(storageID string, err error) {
	elapsed := time.Since(f.startTime)
	moved := f.current.Load()
	speed := float64(moved) / elapsed.Seconds() / (1024 * 1024) // MB/s

	var msg string
	if err == nil {
		if f.bar != nil {
			// ENSURE exact 100% completion (no rounding errors)
			f.bar.SetTotal(moved, true)
		}
		msg = fmt.Sprintf("✓ %s (%s, %s, %s, %.1f MiB/s)\n",
			f.label, storageID, formatSize(moved), elapsed.Round(time.Millisecond), speed)
		atomic.AddInt32(&f.ui.completed, 1)
	} else {
		if f.bar != nil {
			f.bar.Abort(false) // false = don't remove (show failure)
		}
		msg = fmt.Sprintf("✗ %s: %v\n", f.label, err)
		atomic.AddInt32(&f.ui.failed, 1)
	}

	// Write through mpb's writer (not stderr) to avoid breaking redraws
	_, _ = f.ui.Writer().Write([]byte(msg))
}

// Wait blocks until all progress bars complete
func (u *TransferUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that safely prints above the progress bars
func (u *TransferUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal returns true if output is to a terminal (progress bars are active).
func (u *TransferUI) IsTerminal() bool {
	return u.isTerminal
}

// Counts returns how many transfers completed and failed.
func (u *TransferUI) Counts() (completed, failed int) {
	return int(atomic.LoadInt32(&u.completed)), int(atomic.LoadInt32(&u.failed))
}

func formatSize(n int64) string {
	if n < 0 {
		return "unknown size"
	}
	return fmt.Sprintf("%.1f MiB", float64(n)/(1024*1024))
}

// truncatePath truncates a file path to show only the last N components
// Example: truncatePath("/a/b/c/d/file.txt", 3) → "…/c/d/file.txt"
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}
