package web

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/InvoiceDesk/internal/core"
	"github.com/JonMunkholm/InvoiceDesk/internal/dataset"
	"github.com/JonMunkholm/InvoiceDesk/internal/logging"
)

// multipartOverhead is allowed on top of the file limit for form framing.
const multipartOverhead = 1 << 20

// multipartMemory is the part of a form kept in memory; the rest spills to disk.
const multipartMemory = 32 << 20

var errNoFile = &core.Error{Kind: core.ErrValidation, Msg: "no file provided"}

// handleLoad parses an uploaded CSV into a new working session.
// The caller's previous session, if any, is torn down once the new one is live.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	maxSize := s.cfg.Session.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, dataset.ErrTooLarge)
			return
		}
		s.respondError(w, r, errNoFile)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	ticket, err := s.service.Limiter().Acquire(ctx, header.Filename, header.Size)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer ticket.Release()

	ds, err := dataset.Load(ctx, file, dataset.Options{FileName: header.Filename, MaxSize: maxSize})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	sess, view, err := s.service.Load(ctx, ds)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	ctx = logging.WithSession(ctx, sess.ID)

	if prev := s.boundToken(r); prev != "" && prev != sess.ID {
		if err := s.service.Teardown(ctx, prev); err != nil {
			logging.FromContext(ctx).Warn("previous session teardown failed", "previous", prev, "error", err)
		}
	}

	logging.WithFields(ctx,
		"file", header.Filename,
		"rows", len(view.Rows),
		"columns", len(view.Columns),
		"grouping_column", ds.GroupingColumn,
	).Info("dataset loaded")

	s.setSessionCookie(w, sess.ID)
	writeJSON(w, http.StatusCreated, view)
}

// handleLoadStatus reports how many load slots are in use.
func (s *Server) handleLoadStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Limiter().Status())
}
