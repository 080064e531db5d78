package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"formate/internal/core"
)

// staleAfter is how old a lock may get before another process may take it.
const staleAfter = 30 * time.Minute

// LockFile is the metadata written into the lock file.
type LockFile struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	Holder    string    `json:"holder"` // "cli" or "server"
	Timestamp time.Time `json:"timestamp"`
}

// FileLock guards a data directory against concurrent writers. It
// implements core.Locker.
type FileLock struct {
	path   string
	holder string
	file   *os.File
	logger core.Logger
}

var _ core.Locker = (*FileLock)(nil)

// NewFileLock creates a lock at path held on behalf of holder.
func NewFileLock(path, holder string, logger core.Logger) *FileLock {
	if logger == nil {
		logger = core.NopLogger()
	}
	return &FileLock{path: path, holder: holder, logger: logger}
}

// LockPath returns the lock file used for a data directory. It sits next to
// the directory because commits rename the directory itself.
func LockPath(dataDir string) string {
	return dataDir + ".lock"
}

// Acquire takes the lock without blocking. A lock left by a dead process or
// older than staleAfter is taken over.
func (l *FileLock) Acquire() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return &core.LockError{Operation: "acquire", Message: "open lock file", Err: err}
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			l.logger.Warn("failed to close lock file", "path", l.path, "error", closeErr)
		}

		existing, readErr := l.readLockFile()
		if readErr == nil && isStale(existing) {
			l.logger.Warn("taking over stale lock", "path", l.path, "pid", existing.PID)
			_ = os.Remove(l.path)
			return l.Acquire()
		}
		if readErr == nil {
			age := time.Since(existing.Timestamp).Round(time.Second)
			return &core.LockError{
				Operation: "acquire",
				Message:   fmt.Sprintf("data directory locked by %s (PID %d, %v ago)", existing.Holder, existing.PID, age),
				Err:       err,
			}
		}
		return &core.LockError{Operation: "acquire", Message: "lock is held", Err: err}
	}

	l.file = file

	hostname, _ := os.Hostname()
	data, _ := json.MarshalIndent(LockFile{
		PID:       os.Getpid(),
		Hostname:  hostname,
		Holder:    l.holder,
		Timestamp: time.Now(),
	}, "", "  ")
	if err := file.Truncate(0); err != nil {
		return &core.LockError{Operation: "acquire", Message: "truncate lock file", Err: err}
	}
	if _, err := file.Seek(0, 0); err != nil {
		return &core.LockError{Operation: "acquire", Message: "seek lock file", Err: err}
	}
	if _, err := file.Write(data); err != nil {
		return &core.LockError{Operation: "acquire", Message: "write lock metadata", Err: err}
	}
	return nil
}

// Release drops the lock and removes the lock file.
func (l *FileLock) Release() error {
	if l.file == nil {
		return nil
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.logger.Warn("failed to release flock", "path", l.path, "error", err)
	}
	if err := l.file.Close(); err != nil {
		l.logger.Warn("failed to close lock file", "path", l.path, "error", err)
	}
	l.file = nil

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return &core.LockError{Operation: "release", Message: "remove lock file", Err: err}
	}
	return nil
}

func (l *FileLock) readLockFile() (*LockFile, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	var lock LockFile
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

func isStale(lock *LockFile) bool {
	process, err := os.FindProcess(lock.PID)
	if err != nil {
		return true
	}
	// FindProcess always succeeds on Unix; signal 0 checks liveness.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return true
	}
	return time.Since(lock.Timestamp) > staleAfter
}
