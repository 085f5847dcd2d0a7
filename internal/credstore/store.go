// Package credstore persists at most one authorization session under a fixed
// key in a pluggable key-value backend.
//
// The store is self-healing: a value that cannot be decoded into a complete
// session is deleted and reported as absent, never as an error.
package credstore

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/wefram/sysui/internal/errors"
	"github.com/wefram/sysui/internal/log"
	"github.com/wefram/sysui/internal/metrics"
	"github.com/wefram/sysui/pkg/sysui/types"
)

// DefaultKey is the well-known key holding the serialized session.
const DefaultKey = "systemui.authorization"

var (
	// ErrNotFound is returned by a Backend when the key is absent.
	ErrNotFound = stderrors.New("credstore: key not found")

	// ErrCorrupt is returned by a Backend when a stored value cannot be read
	// back (for example a sealed value that fails authentication).
	ErrCorrupt = stderrors.New("credstore: stored value is corrupt")
)

// Backend is the key-value persistence the store is layered on.
//
// Implementations must be safe for concurrent use. Delete of a missing key
// is not an error.
type Backend interface {
	Name() string
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store holds the single persisted AuthorizationSession.
type Store struct {
	backend Backend
	key     string
	logger  *log.Logger
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the storage key. (default: DefaultKey)
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger used to report self-healing.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithMetrics enables store metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New creates a Store over the given backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		logger:  log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the key the session is stored under.
func (s *Store) Key() string {
	return s.key
}

// Backend returns the name of the underlying backend.
func (s *Store) Backend() string {
	return s.backend.Name()
}

// Get returns the stored session, or nil when none is stored or the stored
// value is unusable. Corrupt values are deleted.
func (s *Store) Get(ctx context.Context) *types.AuthorizationSession {
	s.metrics.RecordStore("get", s.backend.Name())

	data, err := s.backend.Load(ctx, s.key)
	switch {
	case err == nil:
	case stderrors.Is(err, ErrNotFound):
		return nil
	case stderrors.Is(err, ErrCorrupt):
		s.heal(ctx, err)
		return nil
	default:
		s.logger.WithError(err).WarnContext(ctx, "credential store read failed", "backend", s.backend.Name())
		return nil
	}

	session, err := types.DecodeAuthorizationSession(data)
	if err != nil {
		s.heal(ctx, err)
		return nil
	}
	return session
}

// Put validates and stores the session, replacing any previous one.
func (s *Store) Put(ctx context.Context, session *types.AuthorizationSession) error {
	s.metrics.RecordStore("put", s.backend.Name())

	if err := session.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreInvalid, "refusing to store incomplete session", err)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWrite, "failed to encode session", err)
	}

	if err := s.backend.Save(ctx, s.key, data); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWrite, "failed to save session", err)
	}
	return nil
}

// Clear removes the stored session. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.metrics.RecordStore("clear", s.backend.Name())

	if err := s.backend.Delete(ctx, s.key); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWrite, "failed to clear session", err)
	}
	return nil
}

// Probe writes, reads back and deletes a throwaway value next to the session
// key. It verifies that the backend is writable without touching the stored
// session.
func (s *Store) Probe(ctx context.Context) error {
	key := s.key + ".probe"
	value := []byte(`{"probe":true}`)

	if err := s.backend.Save(ctx, key, value); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWrite, "probe write failed", err)
	}
	defer func() { _ = s.backend.Delete(ctx, key) }()

	got, err := s.backend.Load(ctx, key)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, "probe read failed", err)
	}
	if !bytes.Equal(got, value) {
		return errors.New(errors.ErrCodeStoreUnavailable, "probe value did not round-trip")
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) heal(ctx context.Context, cause error) {
	s.metrics.RecordCorruption()
	s.logger.WithError(cause).WarnContext(ctx, "discarding corrupt stored session", "backend", s.backend.Name(), "key", s.key)

	if err := s.backend.Delete(ctx, s.key); err != nil {
		s.logger.WithError(err).WarnContext(ctx, "failed to delete corrupt session", "backend", s.backend.Name())
	}
}
