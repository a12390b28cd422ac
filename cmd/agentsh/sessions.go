package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/joss/agentsh/internal/backup"
	"github.com/joss/agentsh/internal/config"
	"github.com/joss/agentsh/internal/render"
	"github.com/joss/agentsh/internal/session"
)

// sessionsCmd exposes the session repository without starting the shell.
func sessionsCmd(env *config.Env, f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored sessions",
	}

	// withApp opens the store for one subcommand and closes it afterwards.
	withApp := func(fn func(ctx context.Context, a *app, w *render.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			f.apply(env)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, env, newLogger(env))
			if err != nil {
				return err
			}
			defer a.store.Close()
			return fn(ctx, a, render.NewWriter(cmd.OutOrStdout()))
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recent first",
		Args:  cobra.NoArgs,
	}
	list.RunE = withApp(func(ctx context.Context, a *app, w *render.Writer) error {
		sessions, err := a.manager.ListSessions(ctx)
		if err != nil {
			return err
		}
		w.Block(render.New(!color.NoColor).Sessions(sessions, ""))
		return nil
	})

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session's status and recent history",
		Args:  cobra.ExactArgs(1),
	}
	show.RunE = withApp(func(ctx context.Context, a *app, w *render.Writer) error {
		sess, err := a.store.Peek(ctx, show.Flags().Arg(0))
		if err != nil {
			return err
		}
		r := render.New(!color.NoColor)
		w.Block(r.Status(sess, false))
		w.Line()
		w.Block(r.History(sess))
		return nil
	})

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session (its sub-agents are kept)",
		Args:  cobra.ExactArgs(1),
	}
	del.RunE = withApp(func(ctx context.Context, a *app, w *render.Writer) error {
		id := del.Flags().Arg(0)
		if err := a.manager.DeleteSession(ctx, id); err != nil {
			return err
		}
		w.Success("Deleted session %s", id)
		return nil
	})

	var parentID, dir string
	create := &cobra.Command{
		Use:   "new",
		Short: "Create a session without starting the shell",
		Args:  cobra.NoArgs,
	}
	create.Flags().StringVar(&parentID, "parent", "", "Create a sub-agent of this session")
	create.Flags().StringVar(&dir, "dir", "", "Working directory (default current directory)")
	create.RunE = withApp(func(ctx context.Context, a *app, w *render.Writer) error {
		sess, err := a.manager.CreateSession(ctx, session.CreateOptions{
			WorkingDirectory: dir,
			ParentID:         parentID,
		})
		if err != nil {
			return err
		}
		if sess.IsSubAgent() {
			w.Println("%s %s", sess.ID, *sess.SubAgentID)
			return nil
		}
		w.Println("%s", sess.ID)
		return nil
	})

	var description string
	export := &cobra.Command{
		Use:   "export <file> [id...]",
		Short: "Write sessions to a .tar.gz archive (all sessions when no ids are given)",
		Args:  cobra.MinimumNArgs(1),
	}
	export.Flags().StringVar(&description, "description", "", "Note stored in the archive metadata")
	export.RunE = withApp(func(ctx context.Context, a *app, w *render.Writer) error {
		args := export.Flags().Args()
		meta, err := backup.NewManager(a.store, backup.WithLogger(a.log)).Export(ctx, args[0], args[1:], description)
		if err != nil {
			return err
		}
		w.Success("Exported %d sessions (%d turns) to %s", len(meta.Sessions), meta.Turns, args[0])
		return nil
	})

	inspect := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show an archive's metadata without importing it",
		Args:  cobra.ExactArgs(1),
	}
	inspect.RunE = withApp(func(ctx context.Context, a *app, w *render.Writer) error {
		meta, err := backup.NewManager(a.store, backup.WithLogger(a.log)).Inspect(inspect.Flags().Arg(0))
		if err != nil {
			return err
		}
		w.Println("Created:  %s", meta.CreatedAt.Format("2006-01-02 15:04:05"))
		if meta.Description != "" {
			w.Println("Note:     %s", meta.Description)
		}
		w.Println("Sessions: %d", len(meta.Sessions))
		w.Println("Turns:    %d", meta.Turns)
		for _, id := range meta.Sessions {
			w.Println("  %s", id)
		}
		return nil
	})

	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Restore archived sessions under fresh ids",
		Args:  cobra.ExactArgs(1),
	}
	imp.RunE = withApp(func(ctx context.Context, a *app, w *render.Writer) error {
		result, err := backup.NewManager(a.store, backup.WithLogger(a.log)).Import(ctx, imp.Flags().Arg(0))
		if err != nil {
			return err
		}
		for _, old := range result.Metadata.Sessions {
			if id, ok := result.IDs[old]; ok {
				w.Println("%s -> %s", old, id)
			}
		}
		w.Success("Imported %d sessions", len(result.IDs))
		return nil
	})

	cmd.AddCommand(list, show, del, create, export, inspect, imp)
	return cmd
}
