//go:build unix

package runtime

import (
	"syscall"
	"testing"
	"time"
)

func TestShutdownManager_SignalCancelsContext(t *testing.T) {
	m := newManager(5 * time.Second)
	stop := m.ListenForSignals()
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGINT); err != nil {
		t.Skipf("cannot signal self: %v", err)
	}

	select {
	case <-m.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context should be cancelled by SIGINT")
	}

	// Handlers still wait for an explicit Shutdown.
	select {
	case <-m.Done():
		t.Fatal("shutdown should not have run yet")
	default:
	}
}
