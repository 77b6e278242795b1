package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/InvoiceDesk/internal/metrics"
)

// Session is the explicit context object for one working file. Every core
// operation takes the session it acts on; the mutex serializes operations so
// a read-modify-write cycle on the table never interleaves with another.
type Session struct {
	ID string

	mu       sync.Mutex
	state    SessionState
	table    *Table
	history  *History
	audit    *AuditLog
	fileName string
	loadedAt time.Time
	stale    bool // priorities need a recompute before the next read
}

// State returns the current recovery state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FileName returns the name of the loaded file.
func (s *Session) FileName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileName
}

// HistoryLen returns the number of undoable entries.
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		return 0
	}
	return s.history.Len()
}

// Audit returns the session's audit log.
func (s *Session) Audit() *AuditLog { return s.audit }

// SessionConfig sizes the per-session history.
type SessionConfig struct {
	HistoryCapacity     int
	BulkDeleteThreshold int
}

// SessionManager owns the live sessions and their lifecycle: create on load,
// rehydrate on lookup miss, evict on mismatch, destroy on teardown.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	snapshots SnapshotStore
	blobs     BlobStore
	cfg       SessionConfig
	logger    *slog.Logger
}

// NewSessionManager creates a manager. snapshots may be nil, in which case
// lost sessions cannot be recovered.
func NewSessionManager(snapshots SnapshotStore, blobs BlobStore, cfg SessionConfig, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		sessions:  make(map[string]*Session),
		snapshots: snapshots,
		blobs:     blobs,
		cfg:       cfg,
		logger:    logger,
	}
}

func (m *SessionManager) newSession(id string) *Session {
	return &Session{
		ID:      id,
		state:   StateMissing,
		history: NewHistory(m.cfg.HistoryCapacity, m.cfg.BulkDeleteThreshold, m.blobs, m.logger),
		audit:   NewAuditLog(),
	}
}

// Create starts a session for a freshly loaded dataset. The dataset is
// persisted to the Recovery Store before the session becomes live.
func (m *SessionManager) Create(ctx context.Context, ds Dataset) (*Session, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if m.snapshots != nil {
		if err := m.snapshots.Save(ctx, id, ds); err != nil {
			return nil, storageErr("save snapshot", err)
		}
	}

	sess := m.newSession(id)
	sess.table = NewTable(ds)
	sess.fileName = ds.FileName
	sess.loadedAt = time.Now()
	sess.state = StateReady
	sess.stale = true

	m.mu.Lock()
	m.sessions[id] = sess
	m.updateGauge()
	m.mu.Unlock()

	m.logger.Info("session created",
		"session_id", id,
		"file", ds.FileName,
		"rows", len(ds.Records),
	)
	return sess, nil
}

// Resolve verifies the claimed token against the token bound to the caller
// and returns the session, rehydrating it when its live state is missing.
//
// An empty claim is a SessionError. A bound token that differs from the claim
// evicts the bound session's live state and is a SessionError.
func (m *SessionManager) Resolve(ctx context.Context, claimed, bound string) (*Session, error) {
	if claimed == "" {
		return nil, sessionf("session token missing")
	}
	if bound != "" && bound != claimed {
		m.Evict(ctx, bound)
		return nil, sessionf("file %s does not match the active session", claimed)
	}

	m.mu.Lock()
	sess, ok := m.sessions[claimed]
	if !ok {
		sess = m.newSession(claimed)
		m.sessions[claimed] = sess
	}
	m.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state == StateReady {
		return sess, nil
	}
	if err := m.rehydrate(ctx, sess); err != nil {
		m.forget(sess)
		return nil, err
	}
	m.adopt(sess)
	return sess, nil
}

// rehydrate runs Missing -> Rehydrating -> Ready. The caller holds sess.mu.
func (m *SessionManager) rehydrate(ctx context.Context, sess *Session) error {
	sess.state = StateRehydrating
	table, ds, err := rehydrateTable(ctx, m.snapshots, sess.ID)
	if err != nil {
		sess.state = StateMissing
		metrics.Rehydrations.WithLabelValues("failed").Inc()
		m.logger.Warn("session rehydrate failed", "session_id", sess.ID, "error", err)
		return err
	}

	sess.table = table
	sess.fileName = ds.FileName
	sess.loadedAt = time.Now()
	sess.stale = true
	sess.state = StateReady
	metrics.Rehydrations.WithLabelValues("ok").Inc()
	m.logger.Info("session rehydrated", "session_id", sess.ID, "rows", table.Len())
	return nil
}

// Evict drops the live state of a session and frees its history blobs.
// The snapshot is kept so the session can be rehydrated later.
func (m *SessionManager) Evict(ctx context.Context, id string) {
	sess := m.remove(id)
	if sess == nil {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.history.Clear(ctx)
	sess.table = nil
	sess.state = StateMissing
	m.logger.Info("session evicted", "session_id", id)
}

// Destroy tears a session down completely: live state, history blobs and snapshot.
func (m *SessionManager) Destroy(ctx context.Context, id string) error {
	m.Evict(ctx, id)
	if m.snapshots == nil {
		return nil
	}
	if err := m.snapshots.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return storageErr("delete snapshot", err)
	}
	m.logger.Info("session destroyed", "session_id", id)
	return nil
}

// Live returns the number of sessions currently held in memory.
func (m *SessionManager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Handles returns every blob handle still referenced by a live history.
func (m *SessionManager) Handles() map[string]bool {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make(map[string]bool)
	for _, s := range list {
		s.mu.Lock()
		for _, h := range s.history.Handles() {
			out[h] = true
		}
		s.mu.Unlock()
	}
	return out
}

func (m *SessionManager) remove(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	m.updateGauge()
	return sess
}

// forget removes sess only if it is still the registered session for its id.
func (m *SessionManager) forget(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[sess.ID] == sess {
		delete(m.sessions, sess.ID)
	}
	m.updateGauge()
}

// adopt registers sess again if a concurrent failure removed it.
func (m *SessionManager) adopt(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.ID]; !ok {
		m.sessions[sess.ID] = sess
	}
	m.updateGauge()
}

// updateGauge must be called with m.mu held.
func (m *SessionManager) updateGauge() {
	metrics.LiveSessions.Set(float64(len(m.sessions)))
}
