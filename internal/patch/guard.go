// Package patch applies generated fixes to disk. Every overwrite is
// preceded by a timestamped backup copy of the original; backups are
// never rotated or deleted, so any prior state can be restored by hand.
package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"

	"sentinel/internal/safeio"
)

// ErrNotFound reports that the patch target does not exist. A patch is
// only ever an overwrite of an existing unit, never a file creation.
var ErrNotFound = errors.New("patch: target file not found")

const backupTimeLayout = "20060102T150405Z"

// Guard performs the backup-then-overwrite discipline for one root.
// The write is all-or-nothing from the caller's perspective: if the
// backup copy fails the target is left untouched.
type Guard struct {
	fs  *safeio.SafeFS
	log hclog.Logger
	now func() time.Time
}

func NewGuard(fs *safeio.SafeFS, log hclog.Logger) *Guard {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Guard{fs: fs, log: log.Named("patch"), now: time.Now}
}

type applyResult struct {
	backup string
	err    error
}

// Apply overwrites the unit at the root-relative path with content,
// snapshotting the original to <path>.bak.<UTC timestamp> first. The
// file I/O runs on its own goroutine; the caller blocks on completion
// or context cancellation.
func (g *Guard) Apply(ctx context.Context, relPath string, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	done := make(chan applyResult, 1)
	go func() {
		backup, err := g.write(relPath, content)
		done <- applyResult{backup: backup, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.backup, res.err
	}
}

func (g *Guard) write(relPath string, content string) (string, error) {
	target, err := g.fs.Resolve(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, relPath)
		}
		return "", err
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, relPath)
		}
		return "", err
	}

	original, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("patch: read original: %w", err)
	}

	ts := g.now().UTC().Format(backupTimeLayout)
	backup := target + ".bak." + ts
	// Applies within the same second must still yield distinct backups.
	for n := 1; ; n++ {
		if _, err := os.Stat(backup); errors.Is(err, os.ErrNotExist) {
			break
		}
		backup = fmt.Sprintf("%s.bak.%s-%d", target, ts, n)
	}
	if err := os.WriteFile(backup, original, info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("patch: backup copy: %w", err)
	}
	g.log.Info("backup saved", "path", backup)

	if err := os.WriteFile(target, []byte(content), info.Mode().Perm()); err != nil {
		return backup, fmt.Errorf("patch: overwrite: %w", err)
	}
	g.log.Info("patch applied", "path", relPath)
	return backup, nil
}
