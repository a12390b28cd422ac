// Package backup exports sessions to a gzip-compressed tar archive and
// restores them into any session store.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joss/agentsh/internal/domain"
	"github.com/joss/agentsh/internal/logging"
	"github.com/joss/agentsh/internal/store"
)

// FormatVersion is written into every archive's metadata.
const FormatVersion = "1"

const (
	metadataName  = "metadata.json"
	sessionPrefix = "sessions/"
)

// Metadata describes an archive.
type Metadata struct {
	Version     string            `json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	Description string            `json:"description,omitempty"`
	Sessions    []string          `json:"sessions"`
	Turns       int               `json:"turns"`
	Checksums   map[string]string `json:"checksums"`
}

// ImportResult maps archived session ids to the ids assigned on import.
type ImportResult struct {
	Metadata *Metadata
	IDs      map[string]string
}

// Manager handles export and import against one store.
type Manager struct {
	store domain.SessionStore
	log   *logging.Logger
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.log = l.Named("backup") }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a backup manager.
func NewManager(s domain.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store: s,
		log:   logging.New("backup"),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Export writes the given sessions (every session when ids is empty) to
// outputPath. Sessions are read with Peek so exporting does not touch them.
func (m *Manager) Export(ctx context.Context, outputPath string, ids []string, description string) (*Metadata, error) {
	sessions, err := m.collect(ctx, ids)
	if err != nil {
		return nil, err
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("creating backup file: %w", err)
	}
	defer file.Close()

	meta, err := m.write(file, sessions, description)
	if err != nil {
		return nil, err
	}
	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("syncing backup file: %w", err)
	}

	m.log.Info("export", map[string]interface{}{
		"path":     outputPath,
		"sessions": len(meta.Sessions),
	})
	return meta, nil
}

func (m *Manager) collect(ctx context.Context, ids []string) ([]*domain.Session, error) {
	if len(ids) == 0 {
		return m.store.List(ctx)
	}
	sessions := make([]*domain.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := m.store.Peek(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("exporting %s: %w", id, err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (m *Manager) write(w io.Writer, sessions []*domain.Session, description string) (*Metadata, error) {
	gzw := gzip.NewWriter(w)
	tw := tar.NewWriter(gzw)

	now := m.now()
	meta := &Metadata{
		Version:     FormatVersion,
		CreatedAt:   now,
		Description: description,
		Sessions:    make([]string, 0, len(sessions)),
		Checksums:   make(map[string]string),
	}

	for _, sess := range sessions {
		data, err := json.MarshalIndent(sess, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", sess.ID, err)
		}
		name := sessionPrefix + sess.ID + ".json"
		if err := addToTar(tw, name, data, now); err != nil {
			return nil, fmt.Errorf("adding %s to tar: %w", sess.ID, err)
		}
		meta.Sessions = append(meta.Sessions, sess.ID)
		meta.Turns += sess.TurnCount()
		meta.Checksums[name] = checksum(data)
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	if err := addToTar(tw, metadataName, metaJSON, now); err != nil {
		return nil, fmt.Errorf("adding metadata: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip: %w", err)
	}
	return meta, nil
}

// Inspect returns an archive's metadata without importing it.
func (m *Manager) Inspect(inputPath string) (*Metadata, error) {
	meta, _, err := read(inputPath)
	return meta, err
}

// Import restores every archived session under a fresh id, keeping its
// creation time. Parent links between archived sessions are remapped to the
// new ids; a parent outside the archive keeps its original id. If any
// session fails, the ones already created are deleted again.
func (m *Manager) Import(ctx context.Context, inputPath string) (*ImportResult, error) {
	meta, sessions, err := read(inputPath)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(sessions))
	for _, old := range parentsFirst(sessions) {
		id, err := m.restore(ctx, old, ids)
		if id != "" {
			ids[old.ID] = id
		}
		if err != nil {
			m.rollback(ctx, ids)
			return nil, fmt.Errorf("importing %s: %w", old.ID, err)
		}
	}

	m.log.Info("import", map[string]interface{}{
		"path":     inputPath,
		"sessions": len(ids),
	})
	return &ImportResult{Metadata: meta, IDs: ids}, nil
}

// restore recreates one session. The new id is returned whenever the record
// was created, even if filling it in failed.
func (m *Manager) restore(ctx context.Context, old *domain.Session, ids map[string]string) (string, error) {
	parent := domain.Deref(old.ParentSessionID)
	if mapped, ok := ids[parent]; ok {
		parent = mapped
	}

	created, err := m.store.Create(ctx, old.WorkingDirectory, parent)
	if err != nil {
		return "", err
	}
	created.Created = old.Created
	created.Conversation = old.Conversation
	created.Context = old.Context
	return created.ID, m.store.Save(ctx, created)
}

func (m *Manager) rollback(ctx context.Context, ids map[string]string) {
	ctx = context.WithoutCancel(ctx)
	for old, id := range ids {
		if err := m.store.Delete(ctx, id); err != nil {
			m.log.Warn("import_rollback_failed", map[string]interface{}{"archived": old, "id": id}, err)
		}
	}
}

// read loads and verifies an archive.
func read(inputPath string) (*Metadata, []*domain.Session, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening backup: %w", err)
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return nil, nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)

	var meta *Metadata
	files := make(map[string][]byte)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading tar: %w", err)
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", header.Name, err)
		}

		if header.Name == metadataName {
			meta = &Metadata{}
			if err := json.Unmarshal(data, meta); err != nil {
				return nil, nil, fmt.Errorf("parsing metadata: %w", err)
			}
			continue
		}
		if strings.HasPrefix(header.Name, sessionPrefix) {
			files[header.Name] = data
		}
	}

	if meta == nil {
		return nil, nil, fmt.Errorf("backup missing metadata")
	}
	if meta.Version != FormatVersion {
		return nil, nil, fmt.Errorf("unsupported backup version %q", meta.Version)
	}

	sessions := make([]*domain.Session, 0, len(meta.Sessions))
	for _, id := range meta.Sessions {
		name := sessionPrefix + id + ".json"
		data, ok := files[name]
		if !ok {
			return nil, nil, fmt.Errorf("backup missing %s", name)
		}
		if want := meta.Checksums[name]; want != checksum(data) {
			return nil, nil, &store.CorruptError{ID: id, Err: fmt.Errorf("checksum mismatch")}
		}
		var sess domain.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return nil, nil, &store.CorruptError{ID: id, Err: err}
		}
		sess.Normalize()
		sessions = append(sessions, &sess)
	}
	return meta, sessions, nil
}

// parentsFirst orders sessions so every archived parent precedes its
// sub-agents. Relative order is otherwise preserved.
func parentsFirst(sessions []*domain.Session) []*domain.Session {
	byID := make(map[string]*domain.Session, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
	}

	ordered := make([]*domain.Session, 0, len(sessions))
	seen := make(map[string]bool, len(sessions))
	var visit func(s *domain.Session)
	visit = func(s *domain.Session) {
		if seen[s.ID] {
			return
		}
		seen[s.ID] = true
		if p, ok := byID[domain.Deref(s.ParentSessionID)]; ok {
			visit(p)
		}
		ordered = append(ordered, s)
	}
	for _, s := range sessions {
		visit(s)
	}
	return ordered
}

func addToTar(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
