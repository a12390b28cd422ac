// Package config provides centralized configuration management.
// Every environment variable agentsh reads is listed here.
package config

import (
	"os"
	"path/filepath"
)

// Env holds all agentsh environment variables.
type Env struct {
	// Home is the agentsh home directory (AGENTSH_HOME, default ~/.agentsh)
	Home string

	// SessionID is a session to resume on start (AGENTSH_SESSION_ID)
	SessionID string

	// Store selects the session backend: file, sqlite or graph (AGENTSH_STORE)
	Store string

	// Responder selects the AI responder: keyword, anthropic or openai (AGENTSH_RESPONDER)
	Responder string

	// Model overrides the responder's default model (AGENTSH_MODEL)
	Model string

	// LogLevel is the minimum structured log level (AGENTSH_LOG_LEVEL)
	LogLevel string

	// AnthropicKey is the Anthropic API key (ANTHROPIC_API_KEY)
	AnthropicKey string

	// AnthropicBaseURL overrides the Anthropic API base URL (ANTHROPIC_BASE_URL)
	AnthropicBaseURL string

	// OpenAIKey is the OpenAI API key (OPENAI_API_KEY)
	OpenAIKey string

	// Neo4jURI is the graph database URI (NEO4J_URI)
	Neo4jURI string

	// Neo4jUser is the graph database user (NEO4J_USER)
	Neo4jUser string

	// Neo4jPassword is the graph database password (NEO4J_PASSWORD)
	Neo4jPassword string
}

// Load reads the environment. It is called once in main and the result is
// passed down explicitly.
func Load() *Env {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads configuration through lookup, which makes tests independent
// of the process environment.
func LoadFrom(lookup func(string) (string, bool)) *Env {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return fallback
	}

	return &Env{
		Home:             get("AGENTSH_HOME", defaultHome()),
		SessionID:        get("AGENTSH_SESSION_ID", ""),
		Store:            get("AGENTSH_STORE", "file"),
		Responder:        get("AGENTSH_RESPONDER", "keyword"),
		Model:            get("AGENTSH_MODEL", ""),
		LogLevel:         get("AGENTSH_LOG_LEVEL", "warn"),
		AnthropicKey:     get("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: get("ANTHROPIC_BASE_URL", ""),
		OpenAIKey:        get("OPENAI_API_KEY", ""),
		Neo4jURI:         get("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:        get("NEO4J_USER", ""),
		Neo4jPassword:    get("NEO4J_PASSWORD", ""),
	}
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".agentsh")
}

// Paths holds standard agentsh directory paths.
type Paths struct {
	// Home is the agentsh home directory (~/.agentsh)
	Home string

	// Data is the data directory (~/.agentsh/data)
	Data string

	// Sessions holds one JSON record per session (~/.agentsh/data/sessions)
	Sessions string

	// DB is the SQLite database file (~/.agentsh/data/sessions.db)
	DB string
}

// PathsFor derives the standard paths under home.
func PathsFor(home string) Paths {
	data := filepath.Join(home, "data")
	return Paths{
		Home:     home,
		Data:     data,
		Sessions: filepath.Join(data, "sessions"),
		DB:       filepath.Join(data, "sessions.db"),
	}
}

// Paths returns the standard paths for this environment.
func (e *Env) Paths() Paths {
	return PathsFor(e.Home)
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
