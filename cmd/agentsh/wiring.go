package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joss/agentsh/internal/config"
	"github.com/joss/agentsh/internal/domain"
	"github.com/joss/agentsh/internal/graph"
	"github.com/joss/agentsh/internal/logging"
	"github.com/joss/agentsh/internal/responder"
	"github.com/joss/agentsh/internal/session"
	"github.com/joss/agentsh/internal/storage/filestore"
	"github.com/joss/agentsh/internal/storage/graphstore"
	"github.com/joss/agentsh/internal/storage/sqlitestore"
	"github.com/joss/agentsh/internal/store"
)

// graphConnectTimeout bounds the initial graph database ping.
const graphConnectTimeout = 5 * time.Second

// app bundles the services shared by every subcommand.
type app struct {
	store   domain.SessionStore
	manager *session.Manager
	log     *logging.Logger
}

func newLogger(env *config.Env) *logging.Logger {
	return logging.NewWithWriter("agentsh", os.Stderr, logging.ParseLevel(env.LogLevel))
}

func newApp(ctx context.Context, env *config.Env, log *logging.Logger) (*app, error) {
	st, err := openStore(ctx, env, log)
	if err != nil {
		return nil, err
	}
	return &app{
		store:   st,
		manager: session.NewManager(st, session.WithLogger(log)),
		log:     log,
	}, nil
}

// openStore builds the session store selected by env.Store.
func openStore(ctx context.Context, env *config.Env, log *logging.Logger) (domain.SessionStore, error) {
	kind, err := store.ParseKind(env.Store)
	if err != nil {
		return nil, err
	}
	paths := env.Paths()

	switch kind {
	case store.KindSQLite:
		if err := config.EnsureDir(paths.Data); err != nil {
			return nil, err
		}
		return sqlitestore.New(paths.DB, sqlitestore.WithLogger(log))

	case store.KindGraph:
		mg, err := graph.Connect(ctx, graph.Config{
			URI:      env.Neo4jURI,
			Username: env.Neo4jUser,
			Password: env.Neo4jPassword,
		}, graphConnectTimeout)
		if err != nil {
			return nil, err
		}
		return graphstore.New(mg, graphstore.WithLogger(log)), nil

	default:
		return filestore.New(paths.Sessions, filestore.WithLogger(log))
	}
}

// newResponder builds the responder selected by env.Responder.
func newResponder(env *config.Env) (domain.Responder, error) {
	cfg := responder.Config{Model: env.Model}
	switch env.Responder {
	case string(responder.TypeAnthropic), "claude":
		cfg.APIKey = env.AnthropicKey
		cfg.BaseURL = env.AnthropicBaseURL
	case string(responder.TypeOpenAI), "gpt":
		cfg.APIKey = env.OpenAIKey
	}

	r, err := responder.NewFactory().Create(env.Responder, cfg)
	if err != nil {
		return nil, fmt.Errorf("responder: %w", err)
	}
	return r, nil
}
