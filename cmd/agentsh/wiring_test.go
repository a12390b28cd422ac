package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/agentsh/internal/config"
	"github.com/joss/agentsh/internal/logging"
	"github.com/joss/agentsh/internal/selftest"
	"github.com/joss/agentsh/internal/session"
	"github.com/joss/agentsh/internal/storage/filestore"
	"github.com/joss/agentsh/internal/storage/sqlitestore"
)

func testEnv(t *testing.T, store string) *config.Env {
	t.Helper()
	return config.LoadFrom(func(key string) (string, bool) {
		switch key {
		case "AGENTSH_HOME":
			return t.TempDir(), true
		case "AGENTSH_STORE":
			return store, true
		}
		return "", false
	})
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	st, err := openStore(ctx, testEnv(t, "file"), logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &filestore.Store{}, st)
	require.NoError(t, st.Close())

	st, err = openStore(ctx, testEnv(t, "sqlite"), logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &sqlitestore.Storage{}, st)
	require.NoError(t, st.Close())

	_, err = openStore(ctx, testEnv(t, "redis"), logging.Discard())
	assert.Error(t, err)
}

func TestAppRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := testEnv(t, "file")

	a, err := newApp(ctx, env, logging.Discard())
	require.NoError(t, err)
	defer a.store.Close()

	sess, err := a.manager.CreateSession(ctx, session.CreateOptions{WorkingDirectory: "/tmp"})
	require.NoError(t, err)

	// A second app on the same home sees the session.
	b, err := newApp(ctx, env, logging.Discard())
	require.NoError(t, err)
	defer b.store.Close()
	got, err := b.manager.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp", got.WorkingDirectory)
}

func TestNewResponder(t *testing.T) {
	env := testEnv(t, "file")

	r, err := newResponder(env)
	require.NoError(t, err)
	assert.Equal(t, "keyword", r.Name())

	env.Responder = "claude"
	env.AnthropicKey = "test-key"
	r, err = newResponder(env)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", r.Name())

	env.Responder = "eliza"
	_, err = newResponder(env)
	assert.Error(t, err)
}

func TestFlagsApply(t *testing.T) {
	env := testEnv(t, "file")
	home := env.Home

	f := flags{store: "sqlite", sessionID: "abc"}
	f.apply(env)
	assert.Equal(t, "sqlite", env.Store)
	assert.Equal(t, "abc", env.SessionID)
	assert.Equal(t, home, env.Home)
	assert.Equal(t, "keyword", env.Responder)
}

func TestRunChecks(t *testing.T) {
	ctx := context.Background()

	status := runChecks(ctx, testEnv(t, "file"))
	assert.True(t, status.OK())
	assert.Contains(t, status.Components, "store")
	assert.Contains(t, status.Components, "data_dir")
	assert.Contains(t, status.Components, "responder")

	env := testEnv(t, "redis")
	status = runChecks(ctx, env)
	assert.False(t, status.OK())
	assert.Contains(t, status.Components["store"].Error, "unknown session store")

	env = testEnv(t, "file")
	env.Responder = "eliza"
	status = runChecks(ctx, env)
	assert.Equal(t, selftest.StatusError, status.Components["responder"].Status)
}

func TestSessionsExportImport(t *testing.T) {
	ctx := context.Background()
	src := testEnv(t, "file")
	a, err := newApp(ctx, src, logging.Discard())
	require.NoError(t, err)
	sess, err := a.manager.CreateSession(ctx, session.CreateOptions{WorkingDirectory: "/tmp"})
	require.NoError(t, err)
	require.NoError(t, a.store.Close())

	archive := filepath.Join(t.TempDir(), "out.tar.gz")
	var out bytes.Buffer
	cmd := sessionsCmd(src, &flags{})
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"export", archive, sess.ID})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Exported 1 sessions")

	dst := testEnv(t, "sqlite")
	out.Reset()
	cmd = sessionsCmd(dst, &flags{})
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"import", archive})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), sess.ID+" -> ")
	assert.Contains(t, out.String(), "Imported 1 sessions")
}
