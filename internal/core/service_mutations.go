package core

import (
	"context"
	"strconv"
)

// UpdateCell sets one cell. Writing the value a cell already holds is a
// no-op and records no history.
func (s *Service) UpdateCell(ctx context.Context, sess *Session, rowID int, column, value string) (Result, error) {
	return s.mutate(ctx, sess, ActionUpdate, func(t *Table, h *History) (Result, error) {
		idx := t.indexOf(rowID)
		if idx < 0 {
			return Result{}, validationf("row not found: %d", rowID)
		}
		if !t.HasColumn(column) {
			return Result{}, validationf("column not found: %q", column)
		}
		if old, had := t.rows[idx].Values[column]; had && old == value {
			return Result{Outcome: OutcomeNoChange}, nil
		}

		old, had := t.setCell(idx, column, value)
		h.Push(ctx, HistoryEntry{
			Action:  ActionUpdate,
			RowID:   rowID,
			Column:  column,
			Changes: []CellChange{{RowID: rowID, Old: old, Had: had}},
		})
		sess.audit.Record(ctx, AuditCellEdit, rowKey(rowID), column, old, value)
		return Result{Outcome: OutcomeApplied, Affected: []int{rowID}}, nil
	})
}

// AddRow appends an empty row with the next unused id.
func (s *Service) AddRow(ctx context.Context, sess *Session) (Result, error) {
	return s.mutate(ctx, sess, ActionAdd, func(t *Table, h *History) (Result, error) {
		id := t.appendRow()
		h.Push(ctx, HistoryEntry{Action: ActionAdd, RowID: id})
		sess.audit.Record(ctx, AuditRowAdd, rowKey(id), "", "", "")
		return Result{Outcome: OutcomeApplied, Affected: []int{id}}, nil
	})
}

// DeleteRow removes one row, remembering its position for undo.
func (s *Service) DeleteRow(ctx context.Context, sess *Session, rowID int) (Result, error) {
	return s.mutate(ctx, sess, ActionDelete, func(t *Table, h *History) (Result, error) {
		idx := t.indexOf(rowID)
		if idx < 0 {
			return Result{}, validationf("row not found: %d", rowID)
		}
		row := t.removeAt(idx)
		h.Push(ctx, HistoryEntry{
			Action:  ActionDelete,
			RowID:   rowID,
			Removed: &PositionedRow{Index: idx, Row: row},
		})
		sess.audit.Record(ctx, AuditRowDelete, rowKey(rowID), "", "", "")
		return Result{Outcome: OutcomeApplied, Affected: []int{rowID}}, nil
	})
}

// BulkUpdate sets column to value on every listed row whose value differs.
func (s *Service) BulkUpdate(ctx context.Context, sess *Session, rowIDs []int, column, value string) (Result, error) {
	return s.mutate(ctx, sess, ActionBulkUpdate, func(t *Table, h *History) (Result, error) {
		if !t.HasColumn(column) {
			return Result{}, validationf("column not found: %q", column)
		}
		changes := t.rewrite(idSet(rowIDs), column, func(old string, had bool) (string, bool) {
			return value, !had || old != value
		})
		if len(changes) == 0 {
			return Result{Outcome: OutcomeNoChange}, nil
		}
		h.Push(ctx, HistoryEntry{Action: ActionBulkUpdate, Column: column, Changes: changes})
		sess.audit.Record(ctx, AuditBulkEdit, countKey(len(changes)), column, "", value)
		return Result{Outcome: OutcomeApplied, Affected: changedIDs(changes)}, nil
	})
}

// FindReplace replaces the cell value in column on listed rows whose value
// equals find exactly.
func (s *Service) FindReplace(ctx context.Context, sess *Session, rowIDs []int, column, find, replace string) (Result, error) {
	return s.mutate(ctx, sess, ActionFindReplace, func(t *Table, h *History) (Result, error) {
		if !t.HasColumn(column) {
			return Result{}, validationf("column not found: %q", column)
		}
		changes := t.rewrite(idSet(rowIDs), column, func(old string, had bool) (string, bool) {
			return replace, old == find
		})
		if len(changes) == 0 {
			return Result{Outcome: OutcomeNoChange, Message: "no matches"}, nil
		}
		h.Push(ctx, HistoryEntry{Action: ActionFindReplace, Column: column, Changes: changes})
		sess.audit.Record(ctx, AuditFindReplace, countKey(len(changes)), column, find, replace)
		return Result{Outcome: OutcomeApplied, Affected: changedIDs(changes)}, nil
	})
}

// BulkDelete removes every listed row. Removals above the history threshold
// are stored in the blob store.
func (s *Service) BulkDelete(ctx context.Context, sess *Session, rowIDs []int) (Result, error) {
	return s.mutate(ctx, sess, ActionBulkDelete, func(t *Table, h *History) (Result, error) {
		return s.bulkDelete(ctx, sess, t, h, idSet(rowIDs), "")
	})
}

// CleanupDuplicates deletes every row after the first that shares a value
// of keyColumn. An empty keyColumn selects the detected invoice column.
func (s *Service) CleanupDuplicates(ctx context.Context, sess *Session, keyColumn string) (Result, error) {
	return s.mutate(ctx, sess, ActionBulkDelete, func(t *Table, h *History) (Result, error) {
		col, err := resolveKeyColumn(t, keyColumn)
		if err != nil {
			return Result{}, err
		}
		return s.bulkDelete(ctx, sess, t, h, idSet(duplicateIDs(t, col)), col)
	})
}

func (s *Service) bulkDelete(ctx context.Context, sess *Session, t *Table, h *History, ids map[int]bool, column string) (Result, error) {
	if len(ids) == 0 {
		return Result{Outcome: OutcomeNoChange}, nil
	}
	kept := make([]Row, 0, len(t.rows))
	var removed []Row
	for _, r := range t.rows {
		if ids[r.ID] {
			removed = append(removed, r)
		} else {
			kept = append(kept, r)
		}
	}
	if len(removed) == 0 {
		return Result{Outcome: OutcomeNoChange}, nil
	}

	entry := h.bulkDeleteEntry(ctx, removed)
	t.rows = kept
	h.Push(ctx, entry)
	sess.audit.Record(ctx, AuditBulkDelete, countKey(len(removed)), column, "", "")

	affected := make([]int, len(removed))
	for i, r := range removed {
		affected[i] = r.ID
	}
	return Result{Outcome: OutcomeApplied, Affected: affected, Storage: entry.Storage}, nil
}

// DeleteColumn drops a column from every row, recording each row's value.
func (s *Service) DeleteColumn(ctx context.Context, sess *Session, column string) (Result, error) {
	return s.mutate(ctx, sess, ActionDeleteColumn, func(t *Table, h *History) (Result, error) {
		if !t.HasColumn(column) {
			return Result{}, validationf("column not found: %q", column)
		}
		values, pos := t.removeColumn(column)
		t.refreshStatus()

		changes := make([]CellChange, 0, len(values))
		for _, r := range t.rows {
			if v, ok := values[r.ID]; ok {
				changes = append(changes, CellChange{RowID: r.ID, Old: v, Had: true})
			}
		}
		h.Push(ctx, HistoryEntry{
			Action:         ActionDeleteColumn,
			Column:         column,
			Changes:        changes,
			ColumnPosition: pos,
		})
		sess.audit.Record(ctx, AuditColumnDelete, "", column, "", "")
		return Result{Outcome: OutcomeApplied, Affected: changedIDs(changes), Columns: t.Columns()}, nil
	})
}

// rewrite applies fn to column on every row in ids, in table order, and
// returns the prior state of the cells it changed.
func (t *Table) rewrite(ids map[int]bool, column string, fn func(old string, had bool) (string, bool)) []CellChange {
	var changes []CellChange
	for i := range t.rows {
		if !ids[t.rows[i].ID] {
			continue
		}
		old, had := t.rows[i].Values[column]
		next, change := fn(old, had)
		if !change {
			continue
		}
		t.setCell(i, column, next)
		changes = append(changes, CellChange{RowID: t.rows[i].ID, Old: old, Had: had})
	}
	return changes
}

func idSet(ids []int) map[int]bool {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func changedIDs(changes []CellChange) []int {
	out := make([]int, len(changes))
	for i, c := range changes {
		out[i] = c.RowID
	}
	return out
}

func countKey(n int) string { return strconv.Itoa(n) + " rows" }
