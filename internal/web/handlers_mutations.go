package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/InvoiceDesk/internal/core"
	"github.com/JonMunkholm/InvoiceDesk/internal/web/templates"
)

type updateCellRequest struct {
	RowID  int    `json:"row_id"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

type bulkUpdateRequest struct {
	RowIDs []int  `json:"row_ids"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

type findReplaceRequest struct {
	RowIDs  []int  `json:"row_ids"`
	Column  string `json:"column"`
	Find    string `json:"find"`
	Replace string `json:"replace"`
}

type bulkDeleteRequest struct {
	RowIDs []int `json:"row_ids"`
}

type cleanupRequest struct {
	Column string `json:"column"`
}

// handleUpdateCell sets one cell.
func (s *Server) handleUpdateCell(w http.ResponseWriter, r *http.Request) {
	var req updateCellRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.runMutation(w, r, func(ctx context.Context, sess *core.Session) (core.Result, error) {
		return s.service.UpdateCell(ctx, sess, req.RowID, req.Column, req.Value)
	})
}

// handleAddRow appends an empty row.
func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	s.runMutation(w, r, s.service.AddRow)
}

// handleDeleteRow removes the row named in the path.
func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	rowID, err := rowIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.runMutation(w, r, func(ctx context.Context, sess *core.Session) (core.Result, error) {
		return s.service.DeleteRow(ctx, sess, rowID)
	})
}

// handleBulkUpdate sets one column on many rows.
func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.runMutation(w, r, func(ctx context.Context, sess *core.Session) (core.Result, error) {
		return s.service.BulkUpdate(ctx, sess, req.RowIDs, req.Column, req.Value)
	})
}

// handleFindReplace replaces cells equal to find in one column of many rows.
func (s *Server) handleFindReplace(w http.ResponseWriter, r *http.Request) {
	var req findReplaceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.runMutation(w, r, func(ctx context.Context, sess *core.Session) (core.Result, error) {
		return s.service.FindReplace(ctx, sess, req.RowIDs, req.Column, req.Find, req.Replace)
	})
}

// handleBulkDelete removes many rows.
func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.runMutation(w, r, func(ctx context.Context, sess *core.Session) (core.Result, error) {
		return s.service.BulkDelete(ctx, sess, req.RowIDs)
	})
}

// handleDeleteColumn drops a column from every row.
func (s *Server) handleDeleteColumn(w http.ResponseWriter, r *http.Request) {
	column := pathParam(r, "column")
	s.runMutation(w, r, func(ctx context.Context, sess *core.Session) (core.Result, error) {
		return s.service.DeleteColumn(ctx, sess, column)
	})
}

// handleDuplicates lists rows sharing a key column value.
// Without ?column= the invoice column is detected.
func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	sess, ctx, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	column, groups, err := s.service.Duplicates(ctx, sess, r.URL.Query().Get("column"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if groups == nil {
		groups = []core.DuplicateGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"column": column,
		"groups": groups,
		"count":  len(groups),
	})
}

// handleCleanupDuplicates keeps the first row of every duplicate key.
func (s *Server) handleCleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.runMutation(w, r, func(ctx context.Context, sess *core.Session) (core.Result, error) {
		return s.service.CleanupDuplicates(ctx, sess, req.Column)
	})
}

// handleUndo reverts the most recent change.
func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.runMutation(w, r, s.service.Undo)
}

// handleCommit clears the undo history.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	if !isHTMX(r) {
		s.runMutation(w, r, s.service.Commit)
		return
	}

	sess, ctx, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	res, err := s.service.Commit(ctx, sess)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	msg := "Nothing to commit"
	if res.Outcome == core.OutcomeApplied {
		msg = "Changes committed"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = templates.Notice(msg).Render(ctx, w)
}
