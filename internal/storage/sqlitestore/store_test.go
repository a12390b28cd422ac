package sqlitestore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/agentsh/internal/domain"
	"github.com/joss/agentsh/internal/logging"
	"github.com/joss/agentsh/internal/store"
)

func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestStorage(t *testing.T, opts ...Option) *Storage {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	s, err := New(filepath.Join(t.TempDir(), "data", "sessions.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndPeek(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, "/tmp", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sess.Version)

	got, err := s.Peek(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "/tmp", got.WorkingDirectory)
	assert.True(t, sess.Created.Equal(got.Created))
	assert.True(t, sess.LastAccessed.Equal(got.LastAccessed))
}

func TestCreateSubAgent(t *testing.T) {
	s := newTestStorage(t)

	sess, err := s.Create(context.Background(), "/tmp", "parent-9")
	require.NoError(t, err)
	require.NotNil(t, sess.SubAgentID)
	assert.Equal(t, "parent-9", domain.Deref(sess.ParentSessionID))
}

func TestGetAndTouch(t *testing.T) {
	s := newTestStorage(t, WithClock(stepClock()))
	ctx := context.Background()

	sess, err := s.Create(ctx, "/tmp", "")
	require.NoError(t, err)

	got, err := s.GetAndTouch(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.LastAccessed.After(sess.LastAccessed))
	assert.Equal(t, uint64(2), got.Version)

	peeked, err := s.Peek(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.LastAccessed.Equal(peeked.LastAccessed))
}

func TestGetMissing(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetAndTouch(context.Background(), "missing")
	assert.True(t, store.IsNotFound(err))
}

func TestCorruptRecord(t *testing.T) {
	s := newTestStorage(t, WithClock(stepClock()))
	ctx := context.Background()

	good, err := s.Create(ctx, "/tmp", "")
	require.NoError(t, err)

	_, err = s.db.Exec(`INSERT INTO sessions (id, version, created_at, last_accessed, record) VALUES ('bad', 1, 0, 0, '{oops')`)
	require.NoError(t, err)

	_, err = s.GetAndTouch(ctx, "bad")
	assert.True(t, store.IsNotFound(err))
	assert.True(t, store.IsCorrupt(err))

	sessions, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, good.ID, sessions[0].ID)
}

func TestListOrdering(t *testing.T) {
	s := newTestStorage(t, WithClock(stepClock()))
	ctx := context.Background()

	a, err := s.Create(ctx, "/a", "")
	require.NoError(t, err)
	b, err := s.Create(ctx, "/b", "")
	require.NoError(t, err)
	_, err = s.GetAndTouch(ctx, a.ID)
	require.NoError(t, err)

	sessions, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, a.ID, sessions[0].ID)
	assert.Equal(t, b.ID, sessions[1].ID)
}

func TestSaveAndConflict(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, "/tmp", "")
	require.NoError(t, err)

	stale, err := s.Peek(ctx, sess.ID)
	require.NoError(t, err)

	sess.Conversation = append(sess.Conversation, domain.ConversationTurn{ID: "t1", Role: domain.RoleUser, Content: "hi"})
	require.NoError(t, s.Save(ctx, sess))
	assert.Equal(t, uint64(2), sess.Version)

	stale.WorkingDirectory = "/elsewhere"
	err = s.Save(ctx, stale)
	assert.True(t, store.IsConflict(err))

	final, err := s.Peek(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp", final.WorkingDirectory)
	require.Len(t, final.Conversation, 1)
	assert.Equal(t, "hi", final.Conversation[0].Content)
}

func TestSaveMissing(t *testing.T) {
	s := newTestStorage(t)

	err := s.Save(context.Background(), &domain.Session{ID: "ghost", Version: 1})
	assert.True(t, store.IsNotFound(err))
}

func TestDeleteIdempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, "/tmp", "")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, sess.ID))
	require.NoError(t, s.Delete(ctx, sess.ID))

	_, err = s.Peek(ctx, sess.ID)
	assert.True(t, store.IsNotFound(err))
}

func TestPing(t *testing.T) {
	s := newTestStorage(t)
	assert.NoError(t, s.Ping(context.Background()))
}
