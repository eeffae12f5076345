package embed

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// AcquireCacheLock takes a non-blocking advisory lock on the persistent
// cache directory so two processes never open the store concurrently.
// The returned release function is safe to call more than once.
func AcquireCacheLock(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	fl := flock.New(filepath.Join(dir, ".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock cache dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("cache dir %s is locked by another process", dir)
	}

	return func() { _ = fl.Unlock() }, nil
}
