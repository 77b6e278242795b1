package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/InvoiceDesk/internal/core"
)

// mutationResponse is the JSON body of every mutation, undo and commit.
type mutationResponse struct {
	core.Result
	Target string `json:"affected_row_id,omitempty"`
}

// runMutation resolves the caller's session, runs op and writes its result.
func (s *Server) runMutation(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, sess *core.Session) (core.Result, error)) {
	sess, ctx, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	res, err := op(ctx, sess)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Result: res, Target: res.Target()})
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := decodeJSON(r, v)
	var ce *core.Error
	if errors.As(err, &ce) && errors.Is(ce.Err, io.EOF) {
		return nil
	}
	return err
}

// rowIDParam parses the {rowID} path parameter.
func rowIDParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "rowID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, &core.Error{Kind: core.ErrValidation, Msg: "row not found: " + raw}
	}
	return id, nil
}

// pathParam returns a decoded path parameter. Column names may contain
// escaped slashes or spaces.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
