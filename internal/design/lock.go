package design

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/56kcloud/mb-client/internal/textutil"
)

// ErrSessionLocked reports that another process is tracking the same request.
var ErrSessionLocked = errors.New("design request is already being tracked by another process")

// sessionLock is the per-request lock file under the state directory.
type sessionLock struct {
	path string
	lock *flock.Flock
}

func acquireSessionLock(dir, requestID string) (*sessionLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	path := filepath.Join(dir, textutil.SanitizeToken(requestID)+".lock")
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrSessionLocked, path)
	}
	return &sessionLock{path: path, lock: lock}, nil
}

func (l *sessionLock) release() error {
	if l == nil {
		return nil
	}
	return l.lock.Unlock()
}
