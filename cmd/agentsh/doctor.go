package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/joss/agentsh/internal/config"
	"github.com/joss/agentsh/internal/render"
	"github.com/joss/agentsh/internal/selftest"
)

// errUnhealthy makes doctor exit non-zero without repeating the report.
var errUnhealthy = errors.New("one or more checks failed")

func doctorCmd(env *config.Env, f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the session store, data directory and responder configuration",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&f.responder, "responder", "", "responder to check (default $AGENTSH_RESPONDER)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		f.apply(env)
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		w := render.NewWriter(cmd.OutOrStdout())

		status := runChecks(ctx, env)
		w.Block(status.Summary())
		if !status.OK() {
			return errUnhealthy
		}
		return nil
	}
	return cmd
}

// runChecks probes every dependency the shell needs to start.
func runChecks(ctx context.Context, env *config.Env) *selftest.HealthStatus {
	paths := env.Paths()
	checks := []selftest.Check{
		{Name: "responder", Run: func(context.Context) error {
			_, err := newResponder(env)
			return err
		}},
	}

	if err := config.EnsureDir(paths.Data); err != nil {
		checks = append(checks, failed("data_dir", err))
	} else {
		checks = append(checks, selftest.DirCheck("data_dir", paths.Data))
	}

	st, err := openStore(ctx, env, newLogger(env))
	if err != nil {
		checks = append(checks, failed("store", err))
		return selftest.CheckHealth(ctx, checks...)
	}
	defer st.Close()
	checks = append(checks, selftest.StoreCheck("store", st))
	return selftest.CheckHealth(ctx, checks...)
}

func failed(name string, err error) selftest.Check {
	return selftest.Check{Name: name, Run: func(context.Context) error { return err }}
}
