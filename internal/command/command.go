// Package command implements the slash commands of the interactive shell and
// routes free-form messages to the responder.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/joss/agentsh/internal/domain"
	"github.com/joss/agentsh/internal/logging"
	"github.com/joss/agentsh/internal/render"
	"github.com/joss/agentsh/internal/session"
)

// Command is the interface for slash commands
type Command interface {
	Name() string
	Usage() string
	Description() string
	Execute(ctx context.Context, env *Env, args []string) (Result, error)
}

// Env is what a command runs against: the shared services plus the session
// that was active when the command was typed.
type Env struct {
	Manager   *session.Manager
	Responder domain.Responder
	Registry  *Registry
	Render    *render.Renderer
	Log       *logging.Logger
	Session   *domain.Session
}

// Result is a command's output. A non-nil Session becomes the active session;
// nil leaves the active session unchanged.
type Result struct {
	Output  string
	Session *domain.Session
}

// UsageError reports a command invoked with missing or extra arguments.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return "usage: " + e.Usage
}

// UnknownCommandError reports a slash command with no registered handler.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command /%s (type /help for available commands)", e.Name)
}

// Registry holds all available commands
type Registry struct {
	commands map[string]Command
	order    []string
}

// NewRegistry creates a new command registry
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
	}
}

// Register adds a command to the registry. Registering a name again replaces
// the earlier command.
func (r *Registry) Register(cmd Command) {
	name := strings.ToLower(cmd.Name())
	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = cmd
}

// Get retrieves a command by name
func (r *Registry) Get(name string) (Command, bool) {
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// List returns all registered commands in registration order
func (r *Registry) List() []Command {
	result := make([]Command, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.commands[name])
	}
	return result
}

// Parse parses a slash command input. ok is false for anything that is not a
// command, including blank input.
func Parse(input string) (name string, args []string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", nil, false
	}

	fields := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(fields) == 0 {
		return "", nil, true
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// DefaultRegistry returns a registry with built-in commands
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(HelpCommand{})
	r.Register(StatusCommand{})
	r.Register(SessionsCommand{})
	r.Register(NewCommand{})
	r.Register(SwitchCommand{})
	r.Register(HistoryCommand{})
	r.Register(ClearCommand{})
	r.Register(CdCommand{})
	r.Register(SubCommand{})
	r.Register(SubsCommand{})
	r.Register(DeleteCommand{})
	return r
}
