package process

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// LockFileName is created in the base directory to serialise servectl
// invocations.
const LockFileName = ".servectl.lock"

const lockRetryInterval = 50 * time.Millisecond

// AcquireLock takes the exclusive servectl lock in dir, retrying until ctx is
// done.
func AcquireLock(ctx context.Context, dir string) (*flock.Flock, error) {
	path := filepath.Join(dir, LockFileName)
	fl := flock.New(path)

	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !locked {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", path, ctx.Err())
		}
		return nil, fmt.Errorf("acquire lock %s: lock not acquired", path)
	}
	return fl, nil
}

// ReleaseLock unlocks and closes fl. The lock file stays on disk so a
// concurrent holder is never invalidated by its removal.
func ReleaseLock(logger logrus.FieldLogger, fl *flock.Flock) {
	if fl == nil {
		return
	}
	if err := fl.Close(); err != nil && logger != nil {
		logger.WithError(err).WithField("path", fl.Path()).Debug("release lock")
	}
}
