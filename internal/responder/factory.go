package responder

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/joss/agentsh/internal/domain"
)

// Type identifies a responder implementation.
type Type string

const (
	TypeKeyword   Type = "keyword"
	TypeAnthropic Type = "anthropic"
	TypeOpenAI    Type = "openai"
)

// DefaultMaxTokens caps hosted model replies.
const DefaultMaxTokens = 4096

// Config holds responder configuration.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

func (c Config) maxTokens() int64 {
	if c.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return c.MaxTokens
}

// Builder constructs a responder from config.
type Builder func(cfg Config) (domain.Responder, error)

// Factory creates responders by type.
type Factory struct {
	mu       sync.RWMutex
	builders map[Type]Builder
}

// NewFactory creates a factory with default builders.
func NewFactory() *Factory {
	f := &Factory{builders: make(map[Type]Builder)}
	f.RegisterDefaults()
	return f
}

// RegisterDefaults registers the built-in responder builders.
func (f *Factory) RegisterDefaults() {
	f.Register(TypeKeyword, func(Config) (domain.Responder, error) {
		return NewKeyword(), nil
	})
	f.Register(TypeAnthropic, func(cfg Config) (domain.Responder, error) {
		return NewAnthropic(cfg), nil
	})
	f.Register(TypeOpenAI, func(cfg Config) (domain.Responder, error) {
		return NewOpenAI(cfg), nil
	})
}

// Register adds a responder builder. Allows extension with custom responders.
func (f *Factory) Register(t Type, builder Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[t] = builder
}

// Create builds a responder. Names are case-insensitive; "claude" and "gpt"
// are accepted as aliases. Empty selects the keyword responder.
func (f *Factory) Create(name string, cfg Config) (domain.Responder, error) {
	t := normalize(name)

	f.mu.RLock()
	builder, ok := f.builders[t]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown responder %q (available: %s)", name, strings.Join(f.Types(), ", "))
	}
	return builder(cfg)
}

// Types lists registered responder types, sorted.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, string(t))
	}
	sort.Strings(types)
	return types
}

func normalize(name string) Type {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "":
		return TypeKeyword
	case "claude":
		return TypeAnthropic
	case "gpt":
		return TypeOpenAI
	default:
		return Type(n)
	}
}
