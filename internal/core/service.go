package core

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/JonMunkholm/InvoiceDesk/internal/metrics"
)

// Outcome distinguishes an applied operation from one that changed nothing.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeNoChange Outcome = "no_change"
)

// BulkTarget is reported instead of a row id when more than one row changed.
const BulkTarget = "bulk"

// Result is the success payload of every mutation, undo and commit.
type Result struct {
	Outcome  Outcome     `json:"status"`
	Action   Action      `json:"action,omitempty"`
	Affected []int       `json:"affected,omitempty"`
	Storage  StorageTier `json:"storage,omitempty"`
	Columns  []string    `json:"columns,omitempty"`
	Message  string      `json:"message,omitempty"`
	Summary  Summary     `json:"summary"`
}

// Target returns the affected row id, BulkTarget, or "" when nothing changed.
func (r Result) Target() string {
	switch len(r.Affected) {
	case 0:
		return ""
	case 1:
		return strconv.Itoa(r.Affected[0])
	}
	return BulkTarget
}

// TableView is a read-only copy of a session's working table.
type TableView struct {
	SessionID string   `json:"session_id"`
	FileName  string   `json:"file_name"`
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"rows"`
	Summary   Summary  `json:"summary"`
}

// Config holds the core service settings.
type Config struct {
	HistoryCapacity     int
	BulkDeleteThreshold int
	MaxConcurrentLoads  int
	LoadWait            time.Duration
}

// Service provides the core business logic for invoice working sessions.
type Service struct {
	rules     RuleStore
	snapshots SnapshotStore
	blobs     BlobStore
	sessions  *SessionManager
	limiter   *LoadLimiter
	logger    *slog.Logger
}

// NewService creates a new Service instance. snapshots and blobs may be nil:
// without snapshots lost sessions cannot be recovered, without blobs every
// history payload stays inline.
func NewService(rules RuleStore, snapshots SnapshotStore, blobs BlobStore, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		rules:     rules,
		snapshots: snapshots,
		blobs:     blobs,
		sessions: NewSessionManager(snapshots, blobs, SessionConfig{
			HistoryCapacity:     cfg.HistoryCapacity,
			BulkDeleteThreshold: cfg.BulkDeleteThreshold,
		}, logger),
		limiter: NewLoadLimiter(cfg.MaxConcurrentLoads, cfg.LoadWait),
		logger:  logger,
	}
}

// Sessions returns the session manager.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// Limiter returns the limiter guarding dataset loads.
func (s *Service) Limiter() *LoadLimiter { return s.limiter }

// Load starts a new session from a parsed dataset and computes its priorities.
func (s *Service) Load(ctx context.Context, ds Dataset) (*Session, TableView, error) {
	rules, settings, err := s.loadRules(ctx)
	if err != nil {
		return nil, TableView{}, err
	}

	sess, err := s.sessions.Create(ctx, ds)
	if err != nil {
		return nil, TableView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.recompute(sess, rules, settings)
	sess.audit.Record(ctx, AuditLoad, "", "", "", ds.FileName)
	return sess, s.view(sess), nil
}

// Resolve returns the session for a claimed token, see SessionManager.Resolve.
func (s *Service) Resolve(ctx context.Context, claimed, bound string) (*Session, error) {
	return s.sessions.Resolve(ctx, claimed, bound)
}

// Rehydrate forces recovery of a session whose live state is missing.
func (s *Service) Rehydrate(ctx context.Context, id string) (*Session, error) {
	return s.sessions.Resolve(ctx, id, "")
}

// Teardown deletes a session's live state, history blobs and snapshot.
func (s *Service) Teardown(ctx context.Context, id string) error {
	return s.sessions.Destroy(ctx, id)
}

// View returns the current table with its summary.
func (s *Service) View(ctx context.Context, sess *Session) (TableView, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.ensureLive(sess); err != nil {
		return TableView{}, err
	}
	if sess.stale {
		rules, settings, err := s.loadRules(ctx)
		if err != nil {
			return TableView{}, err
		}
		s.recompute(sess, rules, settings)
	}
	return s.view(sess), nil
}

// ApplyRules re-runs the rule engine over the session's table.
func (s *Service) ApplyRules(ctx context.Context, sess *Session) (Result, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.ensureLive(sess); err != nil {
		return Result{}, err
	}
	rules, settings, err := s.loadRules(ctx)
	if err != nil {
		return Result{}, err
	}
	s.recompute(sess, rules, settings)
	return Result{Outcome: OutcomeApplied, Summary: s.summarize(sess)}, nil
}

// Duplicates lists rows sharing a key. An empty column selects the detected
// invoice column.
func (s *Service) Duplicates(ctx context.Context, sess *Session, column string) (string, []DuplicateGroup, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.ensureLive(sess); err != nil {
		return "", nil, err
	}
	col, err := resolveKeyColumn(sess.table, column)
	if err != nil {
		return "", nil, err
	}
	return col, findDuplicates(sess.table, col), nil
}

// ExportAudit writes the session's audit log as TSV.
func (s *Service) ExportAudit(ctx context.Context, sess *Session, w io.Writer) error {
	return sess.audit.WriteTSV(w)
}

// mutate runs op against the live table under the session lock. The rule set
// is read before op runs so a store failure leaves the table untouched.
// Applied operations end with a full recompute.
func (s *Service) mutate(ctx context.Context, sess *Session, action Action, op func(t *Table, h *History) (Result, error)) (Result, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.ensureLive(sess); err != nil {
		metrics.Mutations.WithLabelValues(string(action), "failed").Inc()
		return Result{}, err
	}
	rules, settings, err := s.loadRules(ctx)
	if err != nil {
		metrics.Mutations.WithLabelValues(string(action), "failed").Inc()
		return Result{}, err
	}

	res, err := op(sess.table, sess.history)
	if err != nil {
		metrics.Mutations.WithLabelValues(string(action), "failed").Inc()
		return Result{}, err
	}
	if res.Action == "" {
		res.Action = action
	}

	if res.Outcome == OutcomeApplied || sess.stale {
		s.recompute(sess, rules, settings)
	}
	res.Summary = s.summarize(sess)
	metrics.Mutations.WithLabelValues(string(action), string(res.Outcome)).Inc()

	s.logger.Debug("session mutation",
		"session_id", sess.ID,
		"action", res.Action,
		"outcome", res.Outcome,
		"rows", len(res.Affected),
		"history", sess.history.Len(),
	)
	return res, nil
}

func (s *Service) ensureLive(sess *Session) error {
	if sess.state != StateReady || sess.table == nil {
		return sessionf("session expired: %s is no longer live", sess.ID)
	}
	return nil
}

func (s *Service) loadRules(ctx context.Context) ([]Rule, Settings, error) {
	if s.rules == nil {
		return nil, DefaultSettings(), nil
	}
	rules, err := s.rules.Rules(ctx)
	if err != nil {
		return nil, Settings{}, storageErr("load rules", err)
	}
	settings, err := s.rules.Settings(ctx)
	if err != nil {
		return nil, Settings{}, storageErr("load settings", err)
	}
	return rules, settings, nil
}

// recompute must be called with sess.mu held.
func (s *Service) recompute(sess *Session, rules []Rule, settings Settings) {
	ApplyRules(sess.table, rules, settings)
	sess.stale = false
}

func (s *Service) summarize(sess *Session) Summary {
	sum := Summarize(sess.table)
	sum.HistoryDepth = sess.history.Len()
	return sum
}

func (s *Service) view(sess *Session) TableView {
	return TableView{
		SessionID: sess.ID,
		FileName:  sess.fileName,
		Columns:   sess.table.Columns(),
		Rows:      sess.table.Rows(),
		Summary:   s.summarize(sess),
	}
}
