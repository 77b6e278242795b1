package web

import (
	"net/http"

	"github.com/JonMunkholm/InvoiceDesk/internal/logging"
	"github.com/JonMunkholm/InvoiceDesk/internal/web/templates"
)

// handleTable returns the working table with its summary.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	sess, ctx, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	view, err := s.service.View(ctx, sess)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleApplyRules re-runs prioritization over the working table.
func (s *Server) handleApplyRules(w http.ResponseWriter, r *http.Request) {
	s.runMutation(w, r, s.service.ApplyRules)
}

// handleTeardown ends the caller's session and deletes everything it stored.
func (s *Server) handleTeardown(w http.ResponseWriter, r *http.Request) {
	sess, ctx, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := s.service.Teardown(ctx, sess.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(ctx).Info("session closed")
	s.clearSessionCookie(w)

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = templates.Notice("Working file closed").Render(ctx, w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed", "session_id": sess.ID})
}
