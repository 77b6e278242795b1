package core

import (
	"context"
	"sort"

	"github.com/JonMunkholm/InvoiceDesk/internal/metrics"
)

// Undo reverts the most recent mutation. With an empty history it returns an
// EmptyHistory error and leaves the table untouched.
//
// When the removed rows of an external bulk delete cannot be read back, the
// entry is discarded and the result reports that nothing was restored.
func (s *Service) Undo(ctx context.Context, sess *Session) (Result, error) {
	return s.mutate(ctx, sess, "undo", func(t *Table, h *History) (Result, error) {
		e, err := h.Pop()
		if err != nil {
			return Result{}, err
		}

		affected, err := s.invert(ctx, t, h, e)
		if err != nil {
			h.release(ctx, e)
			s.logger.Warn("undo restored nothing",
				"session_id", sess.ID,
				"action", e.Action,
				"error", err,
			)
			return Result{Outcome: OutcomeNoChange, Action: e.Action, Message: "nothing restored"}, nil
		}

		metrics.Undos.WithLabelValues(string(e.Action)).Inc()
		sess.audit.Record(ctx, AuditUndo, targetKey(affected), e.Column, string(e.Action), "")
		return Result{Outcome: OutcomeApplied, Action: e.Action, Affected: affected, Columns: t.Columns()}, nil
	})
}

// Commit clears the history, freeing every external blob it references.
func (s *Service) Commit(ctx context.Context, sess *Session) (Result, error) {
	return s.mutate(ctx, sess, "commit", func(t *Table, h *History) (Result, error) {
		n := h.Clear(ctx)
		if n == 0 {
			return Result{Outcome: OutcomeNoChange}, nil
		}
		sess.audit.Record(ctx, AuditCommit, countKey(n), "", "", "")
		return Result{Outcome: OutcomeApplied, Message: countKey(n) + " committed"}, nil
	})
}

// invert applies the inverse of e to t and returns the affected row ids.
func (s *Service) invert(ctx context.Context, t *Table, h *History, e HistoryEntry) ([]int, error) {
	switch e.Action {
	case ActionUpdate, ActionBulkUpdate, ActionFindReplace:
		for _, c := range e.Changes {
			if idx := t.indexOf(c.RowID); idx >= 0 {
				t.restoreCell(idx, e.Column, c.Old, c.Had)
			}
		}
		return changedIDs(e.Changes), nil

	case ActionAdd:
		if idx := t.indexOf(e.RowID); idx >= 0 {
			t.removeAt(idx)
		}
		return []int{e.RowID}, nil

	case ActionDelete:
		t.insertAt(e.Removed.Index, e.Removed.Row)
		return []int{e.RowID}, nil

	case ActionBulkDelete:
		rows, err := h.loadRemoved(ctx, e)
		if err != nil {
			return nil, err
		}
		t.rows = append(t.rows, rows...)
		sort.SliceStable(t.rows, func(i, j int) bool { return t.rows[i].ID < t.rows[j].ID })
		ids := make([]int, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
		}
		t.refreshStatus()
		return ids, nil

	case ActionDeleteColumn:
		values := make(map[int]string, len(e.Changes))
		for _, c := range e.Changes {
			values[c.RowID] = c.Old
		}
		t.restoreColumn(e.Column, e.ColumnPosition, values)
		t.refreshStatus()
		return changedIDs(e.Changes), nil
	}
	return nil, validationf("unknown history action %q", e.Action)
}

func targetKey(ids []int) string {
	return Result{Affected: ids}.Target()
}
