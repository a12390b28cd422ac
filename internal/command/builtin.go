package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joss/agentsh/internal/domain"
	"github.com/joss/agentsh/internal/render"
	"github.com/joss/agentsh/internal/session"
	"github.com/joss/agentsh/internal/store"
)

// HelpCommand shows available commands
type HelpCommand struct{}

func (HelpCommand) Name() string        { return "help" }
func (HelpCommand) Usage() string       { return "/help" }
func (HelpCommand) Description() string { return "Show available commands" }

func (HelpCommand) Execute(ctx context.Context, env *Env, args []string) (Result, error) {
	cmds := env.Registry.List()
	entries := make([]render.HelpEntry, 0, len(cmds))
	for _, cmd := range cmds {
		entries = append(entries, render.HelpEntry{Usage: cmd.Usage(), Description: cmd.Description()})
	}
	return Result{Output: env.Render.Help(entries)}, nil
}

// StatusCommand shows the active session
type StatusCommand struct{}

func (StatusCommand) Name() string        { return "status" }
func (StatusCommand) Usage() string       { return "/status" }
func (StatusCommand) Description() string { return "Show the current session" }

func (StatusCommand) Execute(ctx context.Context, env *Env, args []string) (Result, error) {
	sess, err := env.Manager.GetSession(ctx, env.Session.ID)
	if err != nil {
		return Result{}, err
	}

	parentMissing := false
	if parent := domain.Deref(sess.ParentSessionID); parent != "" {
		_, err := env.Manager.Store().Peek(ctx, parent)
		if err != nil && !store.IsNotFound(err) {
			return Result{}, err
		}
		parentMissing = err != nil
	}
	return Result{Output: env.Render.Status(sess, parentMissing), Session: sess}, nil
}

// SessionsCommand lists all sessions
type SessionsCommand struct{}

func (SessionsCommand) Name() string        { return "sessions" }
func (SessionsCommand) Usage() string       { return "/sessions" }
func (SessionsCommand) Description() string { return "List all sessions, most recent first" }

func (SessionsCommand) Execute(ctx context.Context, env *Env, args []string) (Result, error) {
	sessions, err := env.Manager.ListSessions(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: env.Render.Sessions(sessions, env.Session.ID)}, nil
}

// NewCommand starts a fresh top-level session
type NewCommand struct{}

func (NewCommand) Name() string        { return "new" }
func (NewCommand) Usage() string       { return "/new" }
func (NewCommand) Description() string { return "Start a new session in the current directory" }

func (NewCommand) Execute(ctx context.Context, env *Env, args []string) (Result, error) {
	sess, err := env.Manager.CreateSession(ctx, session.CreateOptions{
		WorkingDirectory: env.Session.WorkingDirectory,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Output:  fmt.Sprintf("Created new session %s", sess.ID),
		Session: sess,
	}, nil
}

// SwitchCommand makes another session active
type SwitchCommand struct{}

func (SwitchCommand) Name() string        { return "switch" }
func (SwitchCommand) Usage() string       { return "/switch <id>" }
func (SwitchCommand) Description() string { return "Switch to another session" }

func (c SwitchCommand) Execute(ctx context.Context, env *Env, args []string) (Result, error) {
	if len(args) != 1 {
		return Result{}, &UsageError{Usage: c.Usage()}
	}
	sess, err := env.Manager.GetSession(ctx, args[0])
	if err != nil {
		if store.IsNotFound(err) {
			return Result{}, fmt.Errorf("session not found: %s", args[0])
		}
		return Result{}, err
	}
	return Result{
		Output:  fmt.Sprintf("Switched to session %s", sess.ID),
		Session: sess,
	}, nil
}

// HistoryCommand shows recent conversation turns
type HistoryCommand struct{}

func (HistoryCommand) Name() string        { return "history" }
func (HistoryCommand) Usage() string       { return "/history" }
func (HistoryCommand) Description() string { return "Show the last 10 conversation turns" }

func (HistoryCommand) Execute(ctx context.Context, env *Env, args []string) (Result, error) {
	sess, err := env.Manager.GetSession(ctx, env.Session.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: env.Render.History(sess), Session: sess}, nil
}

// ClearCommand empties the active session's history
type ClearCommand struct{}

func (ClearCommand) Name() string        { return "clear" }
func (ClearCommand) Usage() string       { return "/clear" }
func (ClearCommand) Description() string { return "Clear the conversation history" }

func (ClearCommand) Execute(ctx context.Context, env *Env, args []string) (Result, error) {
	sess, err := env.Manager.ClearConversation(ctx, env.Session.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: "Conversation history cleared", Session: sess}, nil
}

// CdCommand shows or changes the working directory
type CdCommand struct{}

func (CdCommand) Name() string        { return "cd" }
func (CdCommand) Usage() string       { return "/cd [path]" }
func (CdCommand) Description() string { return "Show or change the working directory" }

func (CdCommand) Execute(ctx context.Context, env *Env, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{Output: env.Session.WorkingDirectory}, nil
	}

	// Paths with spaces arrive split.
	target := strings.Join(args, " ")
	dir, err := resolveDir(env.Session.WorkingDirectory, target)
	if err != nil {
		return Result{}, err
	}

	sess, err := env.Manager.SetWorkingDirectory(ctx, env.Session.ID, dir)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: dir, Session: sess}, nil
}

// resolveDir resolves path against base and returns its canonical form.
// The result must be an existing directory.
func resolveDir(base, path string) (string, error) {
	p := path
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", path, err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("directory does not exist: %s", path)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return "", fmt.Errorf("directory does not exist: %s", path)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", path)
	}
	return canonical, nil
}

// SubCommand spawns a sub-agent of the active session
type SubCommand struct{}

func (SubCommand) Name() string        { return "sub" }
func (SubCommand) Usage() string       { return "/sub" }
func (SubCommand) Description() string { return "Spawn a sub-agent session and switch to it" }

func (SubCommand) Execute(ctx context.Context, env *Env, args []string) (Result, error) {
	sess, err := env.Manager.CreateSession(ctx, session.CreateOptions{
		WorkingDirectory: env.Session.WorkingDirectory,
		ParentID:         env.Session.ID,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Output:  fmt.Sprintf("Created sub-agent %s (session %s)", domain.Deref(sess.SubAgentID), sess.ID),
		Session: sess,
	}, nil
}

// SubsCommand lists sub-agents of the active session
type SubsCommand struct{}

func (SubsCommand) Name() string        { return "subs" }
func (SubsCommand) Usage() string       { return "/subs" }
func (SubsCommand) Description() string { return "List sub-agents of the current session" }

func (SubsCommand) Execute(ctx context.Context, env *Env, args []string) (Result, error) {
	subs, err := env.Manager.SubAgents(ctx, env.Session.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: env.Render.SubAgents(env.Session.ID, subs)}, nil
}

// DeleteCommand removes another session
type DeleteCommand struct{}

func (DeleteCommand) Name() string        { return "delete" }
func (DeleteCommand) Usage() string       { return "/delete <id>" }
func (DeleteCommand) Description() string { return "Delete a session (not the current one)" }

func (c DeleteCommand) Execute(ctx context.Context, env *Env, args []string) (Result, error) {
	if len(args) != 1 {
		return Result{}, &UsageError{Usage: c.Usage()}
	}
	if args[0] == env.Session.ID {
		return Result{}, fmt.Errorf("cannot delete the current session; /switch or /new first")
	}
	if err := env.Manager.DeleteSession(ctx, args[0]); err != nil {
		return Result{}, err
	}
	return Result{Output: fmt.Sprintf("Deleted session %s", args[0])}, nil
}
