package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigURIDefault(t *testing.T) {
	assert.Equal(t, DefaultURI, Config{}.uri())
	assert.Equal(t, "bolt://memgraph:7687", Config{URI: "bolt://memgraph:7687"}.uri())
}

func TestNewMemgraphDoesNotDial(t *testing.T) {
	mg, err := NewMemgraph(Config{URI: "bolt://invalid-host:7687"})
	require.NoError(t, err)
	assert.NoError(t, mg.Close())
}

func TestNewMemgraphRejectsBadScheme(t *testing.T) {
	_, err := NewMemgraph(Config{URI: "ftp://localhost:21"})
	assert.Error(t, err)
}

func TestConnectUnreachable(t *testing.T) {
	// Port 1 on loopback is never a bolt server.
	_, err := Connect(context.Background(), Config{URI: "bolt://127.0.0.1:1"}, 500*time.Millisecond)
	assert.Error(t, err)
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("lookup db: no such host"), true},
		{errors.New("i/o timeout"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsConnectionError(tt.err), "%v", tt.err)
	}
}

func TestRecordHelpers(t *testing.T) {
	r := Record{"s": "x", "i": int64(7), "n": 3, "f": 2.9, "bad": true}

	assert.Equal(t, "x", GetString(r, "s"))
	assert.Equal(t, "", GetString(r, "i"))
	assert.Equal(t, "", GetString(r, "missing"))

	assert.Equal(t, int64(7), GetInt64(r, "i"))
	assert.Equal(t, int64(3), GetInt64(r, "n"))
	assert.Equal(t, int64(2), GetInt64(r, "f"))
	assert.Equal(t, int64(0), GetInt64(r, "bad"))
}
