package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/agentsh/internal/domain"
	"github.com/joss/agentsh/internal/logging"
	"github.com/joss/agentsh/internal/render"
	"github.com/joss/agentsh/internal/responder"
	"github.com/joss/agentsh/internal/session"
	"github.com/joss/agentsh/internal/storage/filestore"
	"github.com/joss/agentsh/internal/store"
)

func init() {
	color.NoColor = true
}

// fakeResponder records requests and replies with a fixed text.
type fakeResponder struct {
	reply    string
	err      error
	requests []domain.ResponseRequest
}

func (f *fakeResponder) Name() string { return "fake" }

func (f *fakeResponder) Respond(ctx context.Context, req domain.ResponseRequest) (domain.Reply, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return domain.Reply{}, f.err
	}
	return domain.Reply{Text: f.reply, Metadata: map[string]any{"model": "fake-1"}}, nil
}

type fixture struct {
	manager    *session.Manager
	dispatcher *Dispatcher
	responder  *fakeResponder
	active     *domain.Session
}

func newFixture(t *testing.T, workingDirectory string) *fixture {
	t.Helper()
	fs, err := filestore.New(t.TempDir(), filestore.WithLogger(logging.Discard()))
	require.NoError(t, err)
	m := session.NewManager(fs, session.WithLogger(logging.Discard()))
	r := &fakeResponder{reply: "ok"}
	d := NewDispatcher(m, r, WithLogger(logging.Discard()), WithRenderer(render.New(false)))

	active, err := m.CreateSession(context.Background(), session.CreateOptions{WorkingDirectory: workingDirectory})
	require.NoError(t, err)
	return &fixture{manager: m, dispatcher: d, responder: r, active: active}
}

func (f *fixture) dispatch(t *testing.T, line string) (Result, error) {
	t.Helper()
	res, err := f.dispatcher.Dispatch(context.Background(), line, f.active)
	if err == nil && res.Session != nil {
		f.active = res.Session
	}
	return res, err
}

func TestDispatchBlank(t *testing.T) {
	f := newFixture(t, "/tmp")

	res, err := f.dispatch(t, "   ")
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t, "/tmp")
	before := f.active

	res, err := f.dispatch(t, "/bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/bogus")
	assert.Contains(t, err.Error(), "/help")
	assert.Nil(t, res.Session)
	assert.Same(t, before, f.active)
}

func TestHistoryEndToEnd(t *testing.T) {
	f := newFixture(t, "/tmp")
	_, err := f.manager.AddConversationTurn(context.Background(), f.active.ID, domain.RoleUser, "hi", nil)
	require.NoError(t, err)

	res, err := f.dispatch(t, "/history")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "hi")
	assert.Equal(t, f.active.ID, res.Session.ID)
}

func TestMessageFlow(t *testing.T) {
	f := newFixture(t, "/tmp")
	f.responder.reply = "hello back"

	_, err := f.dispatch(t, "first")
	require.NoError(t, err)
	res, err := f.dispatch(t, "second")
	require.NoError(t, err)
	assert.Equal(t, "hello back", res.Output)

	sess, err := f.manager.GetSession(context.Background(), f.active.ID)
	require.NoError(t, err)
	require.Len(t, sess.Conversation, 4)
	assert.Equal(t, domain.RoleUser, sess.Conversation[2].Role)
	assert.Equal(t, "second", sess.Conversation[2].Content)
	assert.Equal(t, domain.RoleAssistant, sess.Conversation[3].Role)
	assert.Equal(t, "hello back", sess.Conversation[3].Content)
	assert.Equal(t, "fake-1", sess.Conversation[3].Metadata["model"])
	assert.Equal(t, "fake", sess.Conversation[3].Metadata["responder"])

	// The responder saw the earlier turns but not the message itself.
	last := f.responder.requests[1]
	assert.Equal(t, "second", last.Message)
	assert.Equal(t, f.active.ID, last.SessionID)
	assert.Len(t, last.History, 2)
}

func TestMessageResponderError(t *testing.T) {
	f := newFixture(t, "/tmp")
	f.responder.err = errors.New("upstream down")

	_, err := f.dispatch(t, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")

	// The user's turn is kept.
	sess, err := f.manager.GetSession(context.Background(), f.active.ID)
	require.NoError(t, err)
	assert.Len(t, sess.Conversation, 1)
}

func TestKeywordResponderIntegration(t *testing.T) {
	fs, err := filestore.New(t.TempDir(), filestore.WithLogger(logging.Discard()))
	require.NoError(t, err)
	m := session.NewManager(fs, session.WithLogger(logging.Discard()))
	d := NewDispatcher(m, responder.NewKeyword(), WithLogger(logging.Discard()))
	active, err := m.CreateSession(context.Background(), session.CreateOptions{WorkingDirectory: "/tmp"})
	require.NoError(t, err)

	res, err := d.Dispatch(context.Background(), "hello", active)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Output)
	assert.Equal(t, "greeting", res.Session.Conversation[1].Metadata["intent"])
}

func TestHelp(t *testing.T) {
	f := newFixture(t, "/tmp")

	res, err := f.dispatch(t, "/help")
	require.NoError(t, err)
	for _, usage := range []string{"/help", "/status", "/sessions", "/new", "/switch <id>", "/history", "/clear", "/cd [path]", "/sub", "/subs", "/delete <id>"} {
		assert.Contains(t, res.Output, usage)
	}
	assert.Nil(t, res.Session)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, "/tmp")

	res, err := f.dispatch(t, "/status")
	require.NoError(t, err)
	assert.Contains(t, res.Output, f.active.ID)
	assert.Contains(t, res.Output, "/tmp")
	assert.Contains(t, res.Output, "Turns:      0")
}

func TestStatusReportsMissingParent(t *testing.T) {
	f := newFixture(t, "/tmp")
	parentID := f.active.ID

	_, err := f.dispatch(t, "/sub")
	require.NoError(t, err)
	require.NoError(t, f.manager.DeleteSession(context.Background(), parentID))

	res, err := f.dispatch(t, "/status")
	require.NoError(t, err)
	assert.Contains(t, res.Output, parentID+" (missing)")
}

func TestNewAndSwitch(t *testing.T) {
	f := newFixture(t, "/tmp")
	first := f.active

	res, err := f.dispatch(t, "/new")
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.NotEqual(t, first.ID, res.Session.ID)
	assert.Equal(t, "/tmp", res.Session.WorkingDirectory)
	assert.Nil(t, res.Session.ParentSessionID)
	assert.Contains(t, res.Output, res.Session.ID)

	res, err = f.dispatch(t, "/switch "+first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, f.active.ID)
	assert.Contains(t, res.Output, first.ID)
}

func TestSwitchErrors(t *testing.T) {
	f := newFixture(t, "/tmp")
	before := f.active

	_, err := f.dispatch(t, "/switch")
	var usage *UsageError
	require.ErrorAs(t, err, &usage)

	res, err := f.dispatch(t, "/switch ghost-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost-id")
	assert.Nil(t, res.Session)
	assert.Same(t, before, f.active)
}

func TestSessions(t *testing.T) {
	f := newFixture(t, "/tmp")
	_, err := f.dispatch(t, "/new")
	require.NoError(t, err)

	res, err := f.dispatch(t, "/sessions")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Sessions (2)")
	assert.Contains(t, res.Output, f.active.ID)
}

func TestClear(t *testing.T) {
	f := newFixture(t, "/tmp")
	_, err := f.dispatch(t, "hello")
	require.NoError(t, err)

	res, err := f.dispatch(t, "/clear")
	require.NoError(t, err)
	assert.Empty(t, res.Session.Conversation)

	sess, err := f.manager.GetSession(context.Background(), f.active.ID)
	require.NoError(t, err)
	assert.Empty(t, sess.Conversation)
}

func TestCd(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "child"), 0755))
	canonicalBase, err := filepath.EvalSymlinks(base)
	require.NoError(t, err)

	f := newFixture(t, base)

	res, err := f.dispatch(t, "/cd")
	require.NoError(t, err)
	assert.Equal(t, base, res.Output)
	assert.Nil(t, res.Session)

	res, err = f.dispatch(t, "/cd child")
	require.NoError(t, err)
	want := filepath.Join(canonicalBase, "child")
	assert.Equal(t, want, res.Output)
	assert.Equal(t, want, f.active.WorkingDirectory)

	res, err = f.dispatch(t, "/cd ..")
	require.NoError(t, err)
	assert.Equal(t, canonicalBase, res.Output)

	sess, err := f.manager.GetSession(context.Background(), f.active.ID)
	require.NoError(t, err)
	assert.Equal(t, canonicalBase, sess.WorkingDirectory)
}

func TestCdMissingPath(t *testing.T) {
	base := t.TempDir()
	f := newFixture(t, base)
	missing := filepath.Join(base, "does-not-exist")

	res, err := f.dispatch(t, "/cd "+missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)
	assert.Nil(t, res.Session)

	sess, err := f.manager.GetSession(context.Background(), f.active.ID)
	require.NoError(t, err)
	assert.Equal(t, base, sess.WorkingDirectory)
}

func TestCdFile(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	f := newFixture(t, base)

	_, err := f.dispatch(t, "/cd file.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestSubAndSubs(t *testing.T) {
	f := newFixture(t, "/tmp")
	parent := f.active

	res, err := f.dispatch(t, "/sub")
	require.NoError(t, err)
	child := res.Session
	require.NotNil(t, child)
	require.NotNil(t, child.SubAgentID)
	assert.Equal(t, parent.ID, domain.Deref(child.ParentSessionID))
	assert.Contains(t, res.Output, *child.SubAgentID)
	assert.Contains(t, res.Output, child.ID)
	assert.Equal(t, child.ID, f.active.ID)

	_, err = f.dispatch(t, "/switch "+parent.ID)
	require.NoError(t, err)
	res, err = f.dispatch(t, "/subs")
	require.NoError(t, err)
	assert.Contains(t, res.Output, child.ID)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, "/tmp")
	first := f.active
	_, err := f.dispatch(t, "/new")
	require.NoError(t, err)

	_, err = f.dispatch(t, "/delete "+f.active.ID)
	assert.Error(t, err)

	res, err := f.dispatch(t, "/delete "+first.ID)
	require.NoError(t, err)
	assert.Contains(t, res.Output, first.ID)

	_, err = f.manager.GetSession(context.Background(), first.ID)
	assert.True(t, store.IsNotFound(err))

	_, err = f.dispatch(t, "/delete")
	var usage *UsageError
	assert.ErrorAs(t, err, &usage)
}
