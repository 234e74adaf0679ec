package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"wrtools/internal/components"
)

const deadPID = 424242

func withDeadPID(t *testing.T) {
	t.Helper()
	original := processAlive
	processAlive = func(pid int) bool { return pid != deadPID }
	t.Cleanup(func() { processAlive = original })
}

func writeLock(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name+".lock")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAcquireLockBreaksLockOfExitedProcess(t *testing.T) {
	withDeadPID(t)
	dir := t.TempDir()
	path := writeLock(t, dir, "cli", strconv.Itoa(deadPID))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	unlock, err := acquireLock(ctx, dir, "cli", DefaultStaleLock)
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock owner = %q", data)
	}
	unlock()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file not removed on unlock")
	}
}

func TestAcquireLockWaitsForLiveOwner(t *testing.T) {
	withDeadPID(t)
	tests := []struct {
		name    string
		content string
	}{
		{"running pid", strconv.Itoa(os.Getpid())},
		{"pid not written yet", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeLock(t, dir, "sdk", tt.content)

			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()
			if _, err := acquireLock(ctx, dir, "sdk", DefaultStaleLock); !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("expected to wait for the owner, got %v", err)
			}
		})
	}
}

func TestAcquireLockBreaksOldLock(t *testing.T) {
	dir := t.TempDir()
	path := writeLock(t, dir, "lldb-dap", strconv.Itoa(os.Getpid()))
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	unlock, err := acquireLock(ctx, dir, "lldb-dap", time.Hour)
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}
	unlock()
}

func TestLeftoverLockDoesNotBlockRunOrDelete(t *testing.T) {
	withDeadPID(t)
	reg := newFakeRegistry(t)
	asset, archive := cliArchive(t, testLinux, "v1")
	reg.publish(asset, archive, "T1")
	inst, dir := newTestInstaller(t, reg, testLinux)
	mgr := NewManager(inst)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	writeLock(t, dir, "cli", strconv.Itoa(deadPID))
	res, err := inst.Run(ctx, components.CLI, Options{Mode: ModeExplicit})
	if err != nil || res.State != StateDone {
		t.Fatalf("Run after crashed owner: %v %+v", err, res)
	}

	writeLock(t, dir, "cli", strconv.Itoa(deadPID))
	if err := mgr.Delete(ctx, components.CLI); err != nil {
		t.Fatalf("Delete after crashed owner: %v", err)
	}
}

func TestProcessAliveForSelf(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Fatal("current process reported as exited")
	}
}
