package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const (
	lockPollInterval = 100 * time.Millisecond
	// DefaultStaleLock is how old a lock file may get before another
	// process treats it as abandoned, even if its owner still runs.
	DefaultStaleLock = time.Hour
)

// processAlive reports whether pid names a running process. Lookup errors
// count as alive so a lock is never broken on uncertain information.
var processAlive = func(pid int) bool {
	if pid == os.Getpid() {
		return true
	}
	ok, err := process.PidExists(int32(pid))
	return err != nil || ok
}

// acquireLock takes an exclusive per-component lock shared across processes.
// The lock file holds the owner's pid. It polls until the lock is free or ctx
// is done; a lock whose owner has exited, or that is older than staleAfter,
// is broken.
func acquireLock(ctx context.Context, dir, name string, staleAfter time.Duration) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock dir: %w", err)
	}

	lockPath := filepath.Join(dir, name+".lock")
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if lockAbandoned(lockPath, staleAfter) {
			_ = os.Remove(lockPath)
			continue
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// lockAbandoned reports whether the lock at path can be broken. A lock
// without a readable pid is only judged by its age, since its owner may
// still be writing it.
func lockAbandoned(path string, staleAfter time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if staleAfter > 0 && time.Since(info.ModTime()) > staleAfter {
		return true
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false
	}
	return !processAlive(pid)
}
