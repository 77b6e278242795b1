package web

import (
	"bytes"
	"net/http"
	"strconv"
)

// handleAuditLog downloads the session's audit log as a tab-separated file.
// The log is rendered into a buffer first so a failure still gets an error
// response instead of a truncated download.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	sess, ctx, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := s.service.ExportAudit(ctx, sess, &buf); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit_log.txt"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}
