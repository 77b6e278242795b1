package core

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// RuleDraft is a rule as submitted for saving. A nil Active keeps the stored
// state of an existing rule.
type RuleDraft struct {
	ID         string      `json:"id,omitempty"`
	Active     *bool       `json:"active,omitempty"`
	Conditions []Condition `json:"conditions"`
	Priority   Priority    `json:"priority"`
	Reason     string      `json:"reason"`
}

// rule builds a rule from the draft. A draft without Active is active.
func (d RuleDraft) rule() Rule {
	r := Rule{
		ID:         d.ID,
		Active:     true,
		Conditions: d.Conditions,
		Priority:   d.Priority,
		Reason:     d.Reason,
	}
	if d.Active != nil {
		r.Active = *d.Active
	}
	return r
}

// RuleSet is the full rule configuration.
type RuleSet struct {
	Rules    []Rule   `json:"rules"`
	Settings Settings `json:"settings"`
}

// RuleImport is a rule configuration as submitted for import. Rules that
// omit "active" are imported active.
type RuleImport struct {
	Rules    []RuleDraft `json:"rules"`
	Settings Settings    `json:"settings"`
}

// Rules returns the stored rules and settings.
func (s *Service) Rules(ctx context.Context) (RuleSet, error) {
	rules, settings, err := s.loadRules(ctx)
	if err != nil {
		return RuleSet{}, err
	}
	return RuleSet{Rules: rules, Settings: settings}, nil
}

// SaveRule stores a rule.
//
// A draft without id becomes a new active rule appended to the list. A draft
// whose id is stored replaces that rule in place. A draft with an unknown id
// is appended. When sess is non-nil its table is recomputed and the summary
// returned.
func (s *Service) SaveRule(ctx context.Context, sess *Session, draft RuleDraft) (Rule, *Summary, error) {
	rs, err := s.Rules(ctx)
	if err != nil {
		return Rule{}, nil, err
	}

	rule := draft.rule()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	} else if draft.Active == nil {
		for _, existing := range rs.Rules {
			if existing.ID == rule.ID {
				rule.Active = existing.Active
				break
			}
		}
	}
	if err := rule.Validate(); err != nil {
		return Rule{}, nil, err
	}

	saved, err := s.rules.SaveRule(ctx, rule)
	if err != nil {
		return Rule{}, nil, storageErr("save rule", err)
	}
	sum, err := s.refresh(ctx, sess)
	return saved, sum, err
}

// DeleteRule removes a rule by id.
func (s *Service) DeleteRule(ctx context.Context, sess *Session, id string) (*Summary, error) {
	if err := s.rules.DeleteRule(ctx, id); err != nil {
		return nil, ruleStoreErr("delete rule", id, err)
	}
	return s.refresh(ctx, sess)
}

// ToggleRule activates or deactivates a rule.
func (s *Service) ToggleRule(ctx context.Context, sess *Session, id string, active bool) (*Summary, error) {
	if err := s.rules.ToggleRule(ctx, id, active); err != nil {
		return nil, ruleStoreErr("toggle rule", id, err)
	}
	return s.refresh(ctx, sess)
}

// ReplaceAll overwrites every rule and the settings, as when importing a
// saved view. Every rule is validated before anything is written.
func (s *Service) ReplaceAll(ctx context.Context, sess *Session, set RuleImport) (*Summary, error) {
	rules := make([]Rule, len(set.Rules))
	for i, d := range set.Rules {
		r := d.rule()
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		rules[i] = r
	}
	if err := s.rules.ReplaceAll(ctx, rules, set.Settings); err != nil {
		return nil, storageErr("replace rules", err)
	}
	return s.refresh(ctx, sess)
}

// SaveSettings stores the global prioritization settings.
func (s *Service) SaveSettings(ctx context.Context, sess *Session, settings Settings) (*Summary, error) {
	if err := s.rules.SaveSettings(ctx, settings); err != nil {
		return nil, storageErr("save settings", err)
	}
	return s.refresh(ctx, sess)
}

// refresh recomputes the caller's live table after a rule change. A nil or
// no longer live session yields a nil summary.
func (s *Service) refresh(ctx context.Context, sess *Session) (*Summary, error) {
	if sess == nil {
		return nil, nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if s.ensureLive(sess) != nil {
		return nil, nil
	}
	rules, settings, err := s.loadRules(ctx)
	if err != nil {
		return nil, err
	}
	s.recompute(sess, rules, settings)
	sum := s.summarize(sess)
	return &sum, nil
}

func ruleStoreErr(op, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return validationf("rule not found: %s", id)
	}
	return storageErr(op, err)
}
