package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// ErrDatasetLocked reports that another process holds the dataset's write lock.
var ErrDatasetLocked = errors.New("dataset is locked by another run")

// DatasetLock is an exclusive, cross-process lock on one dataset namespace.
type DatasetLock struct {
	path string
	lock *flock.Flock
}

// AcquireDatasetLock takes the write lock for dataset under lockDir without
// blocking.
func AcquireDatasetLock(lockDir, dataset string) (*DatasetLock, error) {
	if strings.TrimSpace(dataset) == "" {
		return nil, errors.New("acquire lock: dataset is required")
	}
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(lockDir, lockFileName(dataset))
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrDatasetLocked, dataset, path)
	}
	return &DatasetLock{path: path, lock: lock}, nil
}

// Path returns the lock file path.
func (l *DatasetLock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release unlocks the dataset. Safe on nil.
func (l *DatasetLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

func lockFileName(dataset string) string {
	var b strings.Builder
	for _, r := range dataset {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + ".lock"
}
