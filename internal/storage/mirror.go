package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bull/report-rag/internal/index"
)

// SessionMirror copies one session's snapshots into Qdrant.
type SessionMirror struct {
	storage   *QdrantStorage
	sessionID string
	wait      WaitConfig
	logger    *slog.Logger
}

var _ index.Mirror = (*SessionMirror)(nil)

// MirrorFor returns an index.Mirror writing under sessionID.
func (s *QdrantStorage) MirrorFor(sessionID string, logger *slog.Logger) *SessionMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionMirror{
		storage:   s,
		sessionID: sessionID,
		wait:      DefaultWaitConfig(),
		logger:    logger,
	}
}

// Replace writes snap and checks the write became visible. A lagging count
// is logged and accepted.
func (m *SessionMirror) Replace(ctx context.Context, snap *index.Snapshot) error {
	written, err := m.storage.ReplaceSession(ctx, m.sessionID, snap)
	if err != nil {
		return err
	}

	seen, err := m.storage.WaitForCount(ctx, m.sessionID, uint64(written), m.wait)
	if err != nil {
		if errors.Is(err, ErrReadLag) {
			m.logger.Warn("Mirror not yet consistent, continuing",
				"session", m.sessionID, "written", written, "seen", seen)
			return nil
		}
		return err
	}

	m.logger.Debug("Mirrored snapshot",
		"session", m.sessionID, "points", written, "generation", snap.Generation())
	return nil
}
