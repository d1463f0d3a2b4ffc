package daemonctl

import (
	"context"
	"path/filepath"
	"testing"

	"keygate/internal/testsupport"
)

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	dbPath := store.Path()

	socket := filepath.Join(testsupport.BaseDir(cfg), "missing.sock")
	status, err := BuildStatusSnapshot(context.Background(), socket, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if status.Running {
		t.Fatal("expected offline status")
	}
	if status.LedgerDBPath != dbPath {
		t.Fatalf("expected ledger path %s, got %s", dbPath, status.LedgerDBPath)
	}
}

func TestProcessInfoNoDaemon(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")
	running, pid, err := ProcessInfo(socket)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if running || pid != 0 {
		t.Fatalf("expected no daemon, got running=%v pid=%d", running, pid)
	}
}

func TestStopAndTerminateNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	socket := filepath.Join(testsupport.BaseDir(cfg), "missing.sock")
	if _, err := StopAndTerminate(socket, cfg, 0); err != ErrDaemonNotRunning {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}
