//go:build unix

package filestore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/agentsh/internal/store"
)

func TestDeleteKeepsLockFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, "/tmp", "")
	require.NoError(t, err)
	before, err := os.Stat(s.lockPath(sess.ID))
	require.NoError(t, err)

	// A writer waiting on the lock must contend with Delete on the same inode.
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.withLock(sess.ID, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	deleted := make(chan error, 1)
	go func() { deleted <- s.Delete(ctx, sess.ID) }()

	select {
	case <-deleted:
		t.Fatal("Delete did not wait for the lock holder")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-deleted)

	after, err := os.Stat(s.lockPath(sess.ID))
	require.NoError(t, err)
	assert.True(t, os.SameFile(before, after))

	_, err = s.Peek(ctx, sess.ID)
	assert.True(t, store.IsNotFound(err))
}
