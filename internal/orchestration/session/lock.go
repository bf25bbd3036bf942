package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zjrosen/stagehook/internal/config"
	"github.com/zjrosen/stagehook/internal/log"
)

// ErrLockUnsupported is returned by FlockLocker where advisory file locks are unavailable.
var ErrLockUnsupported = errors.New("advisory file locking is not supported on this platform")

// Locker provides session-scoped mutual exclusion around read-modify-write updates.
type Locker interface {
	// Lock blocks until the lock for path is held. The returned func releases it and is
	// safe to call exactly once.
	Lock(path string) (unlock func(), err error)
	// Name identifies the strategy in logs.
	Name() string
}

// NopLocker performs no locking.
type NopLocker struct{}

// Lock implements Locker.
func (NopLocker) Lock(string) (func(), error) { return func() {}, nil }

// Name implements Locker.
func (NopLocker) Name() string { return config.LockingNone }

// FlockLocker takes an advisory flock(2) on a lock file. A per-path mutex is held as well
// because flock does not exclude goroutines sharing one process.
type FlockLocker struct {
	mutexes sync.Map // path -> *sync.Mutex
}

// NewFlockLocker creates a FlockLocker.
func NewFlockLocker() *FlockLocker {
	return &FlockLocker{}
}

// Name implements Locker.
func (l *FlockLocker) Name() string { return config.LockingFlock }

// Lock implements Locker.
func (l *FlockLocker) Lock(path string) (func(), error) {
	mu := l.processMutex(path)
	mu.Lock()

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("preparing lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600) //nolint:gosec // G304: derived from the state dir
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		mu.Unlock()
		return nil, fmt.Errorf("acquiring lock %s: %w", path, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = unlockFile(f)
			_ = f.Close()
			mu.Unlock()
		})
	}, nil
}

func (l *FlockLocker) processMutex(path string) *sync.Mutex {
	mu, _ := l.mutexes.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// SelectLocker returns the locker for a configured strategy and logs the choice.
func SelectLocker(mode string) Locker {
	var locker Locker
	switch mode {
	case config.LockingNone:
		locker = NopLocker{}
	case config.LockingFlock:
		if !flockSupported {
			log.Warn(log.CatState, "flock requested but unsupported, state updates are unsynchronized")
			locker = NopLocker{}
		} else {
			locker = NewFlockLocker()
		}
	default:
		if flockSupported {
			locker = NewFlockLocker()
		} else {
			locker = NopLocker{}
		}
	}
	log.Debug(log.CatState, "session locking selected", "requested", mode, "locker", locker.Name())
	return locker
}
