package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/InvoiceDesk/internal/core"
	"github.com/JonMunkholm/InvoiceDesk/internal/logging"
)

// ruleResponse carries the summary of the caller's table when a rule change
// recomputed it.
type ruleResponse struct {
	Status  string        `json:"status"`
	Rule    *core.Rule    `json:"rule,omitempty"`
	Summary *core.Summary `json:"summary,omitempty"`
}

type toggleRequest struct {
	Active bool `json:"active"`
}

// handleListRules returns every rule and the global settings.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	set, err := s.service.Rules(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if set.Rules == nil {
		set.Rules = []core.Rule{}
	}
	writeJSON(w, http.StatusOK, set)
}

// handleSaveRule creates or replaces a rule.
func (s *Server) handleSaveRule(w http.ResponseWriter, r *http.Request) {
	var draft core.RuleDraft
	if err := decodeJSON(r, &draft); err != nil {
		s.respondError(w, r, err)
		return
	}
	sess, ctx := s.optionalSession(r)

	rule, sum, err := s.service.SaveRule(ctx, sess, draft)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.WithFields(ctx, "rule_id", rule.ID, "priority", rule.Priority).Info("rule saved")
	writeJSON(w, http.StatusOK, ruleResponse{Status: "saved", Rule: &rule, Summary: sum})
}

// handleReplaceRules overwrites all rules and settings with an imported set.
func (s *Server) handleReplaceRules(w http.ResponseWriter, r *http.Request) {
	var set core.RuleImport
	if err := decodeJSON(r, &set); err != nil {
		s.respondError(w, r, err)
		return
	}
	sess, ctx := s.optionalSession(r)

	sum, err := s.service.ReplaceAll(ctx, sess, set)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.WithFields(ctx, "rules", len(set.Rules)).Info("rules replaced")
	writeJSON(w, http.StatusOK, ruleResponse{Status: "replaced", Summary: sum})
}

// handleDeleteRule removes the rule named in the path.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ctx := s.optionalSession(r)

	sum, err := s.service.DeleteRule(ctx, sess, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleResponse{Status: "deleted", Summary: sum})
}

// handleToggleRule activates or deactivates a rule.
func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	sess, ctx := s.optionalSession(r)

	sum, err := s.service.ToggleRule(ctx, sess, id, req.Active)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleResponse{Status: "toggled", Summary: sum})
}

// handleSaveSettings stores the global prioritization settings.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings core.Settings
	if err := decodeJSON(r, &settings); err != nil {
		s.respondError(w, r, err)
		return
	}
	sess, ctx := s.optionalSession(r)

	sum, err := s.service.SaveSettings(ctx, sess, settings)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleResponse{Status: "saved", Summary: sum})
}
