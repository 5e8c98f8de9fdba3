package output

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

const (
	artifactLockTimeout = 10 * time.Second
	artifactLockRetry   = 50 * time.Millisecond
)

// WriteFile writes an artifact while holding a sibling ".lock" file, so
// two sweeps pointed at the same output path cannot interleave writes.
// The lock file itself is left in place; only its flock state matters.
func WriteFile(path string, data []byte) error {
	lock := flock.New(path + ".lock")

	ctx, cancel := context.WithTimeout(context.Background(), artifactLockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, artifactLockRetry)
	if err != nil {
		return fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("lock %s: held by another process", lock.Path())
	}
	defer lock.Unlock()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
