package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joss/agentsh/internal/domain"
	"github.com/joss/agentsh/internal/logging"
	"github.com/joss/agentsh/internal/render"
	"github.com/joss/agentsh/internal/session"
)

// Dispatcher classifies input lines and routes them to a command or the
// responder.
type Dispatcher struct {
	manager   *session.Manager
	responder domain.Responder
	registry  *Registry
	render    *render.Renderer
	log       *logging.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRegistry replaces the built-in command set.
func WithRegistry(r *Registry) DispatcherOption {
	return func(d *Dispatcher) { d.registry = r }
}

// WithRenderer sets the output renderer.
func WithRenderer(r *render.Renderer) DispatcherOption {
	return func(d *Dispatcher) { d.render = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l.Named("dispatch") }
}

// NewDispatcher creates a dispatcher over the default command registry.
func NewDispatcher(m *session.Manager, r domain.Responder, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		manager:   m,
		responder: r,
		registry:  DefaultRegistry(),
		render:    render.New(true),
		log:       logging.New("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the command registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch handles one line of input for the active session. Blank input
// yields an empty Result.
func (d *Dispatcher) Dispatch(ctx context.Context, line string, active *domain.Session) (Result, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Result{}, nil
	}
	if active == nil {
		return Result{}, fmt.Errorf("no active session")
	}

	env := &Env{
		Manager:   d.manager,
		Responder: d.responder,
		Registry:  d.registry,
		Render:    d.render,
		Log:       d.log.WithSession(active.ID),
		Session:   active,
	}

	name, args, ok := Parse(line)
	if !ok {
		return d.message(ctx, env, line)
	}

	cmd, found := d.registry.Get(name)
	if !found {
		env.Log.Debug("unknown_command", map[string]interface{}{"name": name})
		return Result{}, &UnknownCommandError{Name: name}
	}

	start := time.Now()
	res, err := cmd.Execute(ctx, env, args)
	env.Log.TimedEvent("command", start, map[string]interface{}{
		"name": name,
		"args": len(args),
		"ok":   err == nil,
	})
	return res, err
}

// message records the user's message, asks the responder and records the
// reply. The responder sees the turns that preceded the message.
func (d *Dispatcher) message(ctx context.Context, env *Env, text string) (Result, error) {
	sess, err := d.manager.AddConversationTurn(ctx, env.Session.ID, domain.RoleUser, text, map[string]any{
		"source": "shell",
	})
	if err != nil {
		return Result{}, err
	}

	prior := sess.Conversation[:len(sess.Conversation)-1]
	start := time.Now()
	reply, err := d.responder.Respond(ctx, domain.ResponseRequest{
		Message:   text,
		SessionID: sess.ID,
		History:   prior,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s responder: %w", d.responder.Name(), err)
	}
	env.Log.TimedEvent("respond", start, map[string]interface{}{
		"responder": d.responder.Name(),
		"chars":     len(reply.Text),
	})

	metadata := map[string]any{}
	for k, v := range reply.Metadata {
		metadata[k] = v
	}
	if _, ok := metadata["responder"]; !ok {
		metadata["responder"] = d.responder.Name()
	}

	sess, err = d.manager.AddConversationTurn(ctx, sess.ID, domain.RoleAssistant, reply.Text, metadata)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: reply.Text, Session: sess}, nil
}
