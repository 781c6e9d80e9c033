// Package session keeps one volatile index per conversation session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/bull/report-rag/internal/index"
	"github.com/bull/report-rag/internal/retriever"
)

// DefaultTTL is how long an idle session keeps its index.
const DefaultTTL = 30 * time.Minute

// ErrSessionNotFound is returned by Lookup for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// StoreFactory builds the index and retriever of a new session.
type StoreFactory func(sessionID string) (*index.Store, *retriever.Retriever, error)

// Session is one user's index plus the documents it was last synced with.
type Session struct {
	ID        string
	Store     *index.Store
	Retriever *retriever.Retriever

	mu       sync.Mutex // serializes Sync
	docsMu   sync.RWMutex
	docs     []index.Document
	lastSync *index.SyncResult
}

// Documents returns a copy of the documents from the last successful sync.
func (s *Session) Documents() []index.Document {
	s.docsMu.RLock()
	defer s.docsMu.RUnlock()
	return slices.Clone(s.docs)
}

// LastSync returns the result of the last successful sync, or nil.
func (s *Session) LastSync() *index.SyncResult {
	s.docsMu.RLock()
	defer s.docsMu.RUnlock()
	return s.lastSync
}

// Manager owns every live session. Sessions expire after TTL without access.
type Manager struct {
	factory StoreFactory
	ttl     time.Duration
	cache   *cache.Cache
	group   singleflight.Group
	create  sync.Mutex
	logger  *slog.Logger
	onEvict func(sessionID string)
}

// Option configures a Manager.
type Option func(*Manager)

// WithEvictionHook runs fn after a session leaves the manager, whether it
// expired or was dropped. fn runs synchronously on the evicting goroutine.
func WithEvictionHook(fn func(sessionID string)) Option {
	return func(m *Manager) {
		m.onEvict = fn
	}
}

// NewManager creates a Manager. ttl <= 0 uses DefaultTTL.
func NewManager(factory StoreFactory, ttl time.Duration, logger *slog.Logger, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		factory: factory,
		ttl:     ttl,
		cache:   cache.New(ttl, ttl/2),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cache.OnEvicted(func(id string, _ any) {
		m.logger.Info("Session evicted, index dropped", "session", id)
		if m.onEvict != nil {
			m.onEvict(id)
		}
	})
	return m
}

// Session returns the session for id, creating it if needed. Access refreshes its TTL.
func (m *Manager) Session(id string) (*Session, error) {
	if id == "" {
		return nil, errors.New("session id must not be empty")
	}

	m.create.Lock()
	defer m.create.Unlock()

	if v, ok := m.cache.Get(id); ok {
		sess := v.(*Session)
		m.cache.SetDefault(id, sess)
		return sess, nil
	}

	store, ret, err := m.factory(id)
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}

	sess := &Session{ID: id, Store: store, Retriever: ret}
	m.cache.SetDefault(id, sess)
	m.logger.Info("Session created", "session", id)
	return sess, nil
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(id string) (*Session, error) {
	v, ok := m.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess := v.(*Session)
	m.cache.SetDefault(id, sess)
	return sess, nil
}

// Sync brings the session's index in line with docs.
// Syncs of one session run one at a time; concurrent calls with the same
// document id set share a single rebuild.
func (m *Manager) Sync(ctx context.Context, id string, docs []index.Document) (*index.SyncResult, error) {
	sess, err := m.Session(id)
	if err != nil {
		return nil, err
	}

	key := id + ":" + index.Fingerprint(docs)
	v, err, shared := m.group.Do(key, func() (any, error) {
		sess.mu.Lock()
		defer sess.mu.Unlock()

		result, err := sess.Store.Sync(ctx, docs)
		if err != nil {
			return nil, err
		}

		sess.docsMu.Lock()
		sess.docs = slices.Clone(docs)
		sess.lastSync = result
		sess.docsMu.Unlock()

		return result, nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync session %s: %w", id, err)
	}
	if shared {
		m.logger.Debug("Sync shared with concurrent caller", "session", id)
	}
	return v.(*index.SyncResult), nil
}

// Drop removes a session and its index.
func (m *Manager) Drop(id string) {
	m.cache.Delete(id)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.cache.ItemCount()
}
