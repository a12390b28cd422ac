// Package main provides the agentsh CLI entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joss/agentsh/internal/command"
	"github.com/joss/agentsh/internal/config"
	"github.com/joss/agentsh/internal/render"
	"github.com/joss/agentsh/internal/runtime"
	"github.com/joss/agentsh/internal/shell"
)

var version = "0.1.0"

// flags holds command-line overrides for config.Env.
type flags struct {
	sessionID string
	store     string
	responder string
	dataDir   string
	workDir   string
}

func main() {
	env := config.Load()
	var f flags

	rootCmd := &cobra.Command{
		Use:   "agentsh",
		Short: "Interactive AI-assistant shell with persistent sessions",
		Long: `agentsh: an interactive assistant shell.

Every conversation is a session stored under the agentsh home directory.
Lines starting with / are shell commands (try /help); anything else is
sent to the configured responder.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(env)
			return runInteractive(env, f.workDir)
		},
	}

	rootCmd.PersistentFlags().StringVar(&f.dataDir, "data-dir", "", "agentsh home directory (default $AGENTSH_HOME or ~/.agentsh)")
	rootCmd.PersistentFlags().StringVar(&f.store, "store", "", "session store: file, sqlite or graph (default $AGENTSH_STORE or file)")
	rootCmd.Flags().StringVar(&f.sessionID, "session", "", "resume this session (default $AGENTSH_SESSION_ID)")
	rootCmd.Flags().StringVar(&f.responder, "responder", "", "responder: keyword, anthropic or openai (default $AGENTSH_RESPONDER)")
	rootCmd.Flags().StringVar(&f.workDir, "dir", "", "working directory for new sessions (default current directory)")

	rootCmd.AddCommand(sessionsCmd(env, &f))
	rootCmd.AddCommand(doctorCmd(env, &f))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// apply copies non-empty flag values over the environment configuration.
func (f *flags) apply(env *config.Env) {
	if f.sessionID != "" {
		env.SessionID = f.sessionID
	}
	if f.store != "" {
		env.Store = f.store
	}
	if f.responder != "" {
		env.Responder = f.responder
	}
	if f.dataDir != "" {
		env.Home = f.dataDir
	}
}

func runInteractive(env *config.Env, workDir string) error {
	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	if !isTTY {
		color.NoColor = true
	}
	log := newLogger(env)

	shutdown := runtime.NewShutdownManager(runtime.DefaultShutdownTimeout, log)
	stop := shutdown.ListenForSignals()
	defer stop()
	ctx := shutdown.Context()

	a, err := newApp(ctx, env, log)
	if err != nil {
		return err
	}
	shutdown.RegisterCloser("session store", a.store.Close)

	r, err := newResponder(env)
	if err != nil {
		shutdown.Shutdown()
		return err
	}

	dispatcher := command.NewDispatcher(a.manager, r,
		command.WithLogger(log),
		command.WithRenderer(render.New(isTTY)),
	)
	loop := shell.New(a.manager, dispatcher, os.Stdin, os.Stdout,
		shell.WithLogger(log),
		shell.WithSessionID(env.SessionID),
		shell.WithWorkingDirectory(workDir),
	)

	runErr := loop.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if err := shutdown.Shutdown(); err != nil {
		log.Warn("shutdown_failed", nil, err)
	}
	return runErr
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agentsh version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentsh %s\n", version)
		},
	}
}
