package store

import (
	"path/filepath"
	"testing"
	"time"
)

func TestFileLockLockUnlock(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")
	l := NewFileLock(dbPath)

	if err := l.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestFileLockUnlockWithoutLockIsNoop(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")
	l := NewFileLock(dbPath)

	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock on an unlocked FileLock: %v", err)
	}
}

func TestFileLockExcludesConcurrentLockers(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")
	first := NewFileLock(dbPath)
	second := NewFileLock(dbPath)

	if err := first.Lock(); err != nil {
		t.Fatalf("first Lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		_ = second.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("expected the second locker to block while the first holds the lock")
	case <-time.After(100 * time.Millisecond):
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("first Unlock: %v", err)
	}

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the second locker to acquire the lock after the first released it")
	}
	_ = second.Unlock()
}

func TestFileLockCreatesParentDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "metadata.db")
	l := NewFileLock(dbPath)
	if err := l.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer l.Unlock()
}
