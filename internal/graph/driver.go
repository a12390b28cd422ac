// Package graph provides the database abstraction used by the graph session
// backend. Consumers depend on Driver, never on the bolt client directly.
package graph

import (
	"context"
)

// Record represents a single result row from a query.
type Record map[string]any

// GraphReader provides read-only graph database operations.
type GraphReader interface {
	// Execute runs a Cypher query and returns results.
	Execute(ctx context.Context, query string, params map[string]any) ([]Record, error)
}

// GraphWriter provides write graph database operations.
type GraphWriter interface {
	// ExecuteWrite runs a write query (CREATE, MERGE, SET, DELETE).
	ExecuteWrite(ctx context.Context, query string, params map[string]any) error

	// ExecuteWriteReturning runs a write query and collects the rows it
	// RETURNs. Conditional updates use it to learn whether they matched.
	ExecuteWriteReturning(ctx context.Context, query string, params map[string]any) ([]Record, error)
}

// Driver defines the full interface for graph database operations.
// Any bolt-speaking database (Memgraph, Neo4j) must implement this interface.
type Driver interface {
	GraphReader
	GraphWriter

	// Close releases database resources.
	Close() error

	// Ping checks if the database is reachable.
	Ping(ctx context.Context) error
}

// Config holds database connection configuration.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// DefaultURI is used when Config.URI is empty.
const DefaultURI = "bolt://localhost:7687"

func (c Config) uri() string {
	if c.URI == "" {
		return DefaultURI
	}
	return c.URI
}
