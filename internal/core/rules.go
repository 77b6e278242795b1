package core

import (
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/InvoiceDesk/internal/metrics"
)

// Base heuristic classification of the pay-group column.
var (
	highPayGroups  = map[string]bool{"SCF": true, "INTERCOMPANY": true}
	lowPayGroupPfx = "PAY GROUP"
)

const (
	reasonBaseHigh     = "Base priority (SCF/Intercompany)"
	reasonBaseLow      = "Base priority (Pay Group)"
	reasonBaseStandard = "Base priority (Standard)"
	reasonBaseInactive = "Base priority (disabled or no pay group column)"
	reasonDefaultRule  = "Custom rule"
	reasonNewRow       = "New row"
)

// RuleIssue describes a rule that was skipped during evaluation.
type RuleIssue struct {
	RuleID string
	Err    error
}

// ApplyRules recomputes priority and priority_reason for every row of t.
//
// The result depends only on the table contents, the rule list and the
// settings. Rules are applied in stored order and a later matching rule
// overwrites an earlier one. Invalid rules are skipped and reported, they
// never abort the recompute.
func ApplyRules(t *Table, rules []Rule, settings Settings) []RuleIssue {
	start := time.Now()
	defer func() { metrics.RecomputeDuration.Observe(time.Since(start).Seconds()) }()

	applyBase(t, settings)

	var issues []RuleIssue
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if err := rule.Validate(); err != nil {
			issues = append(issues, RuleIssue{RuleID: rule.ID, Err: err})
			continue
		}
		reason := rule.Reason
		if reason == "" {
			reason = reasonDefaultRule
		}
		for i := range t.rows {
			if ruleMatches(t, rule, t.rows[i]) {
				t.rows[i].Priority = rule.Priority
				t.rows[i].PriorityReason = reason
			}
		}
	}

	for _, is := range issues {
		metrics.RulesSkipped.Inc()
		slog.Warn("rule skipped", "rule_id", is.RuleID, "error", is.Err)
	}
	return issues
}

func applyBase(t *Table, settings Settings) {
	col := t.GroupingColumn()
	if col == "" || !settings.EnableBaseHeuristic {
		for i := range t.rows {
			t.rows[i].Priority = PriorityMedium
			t.rows[i].PriorityReason = reasonBaseInactive
		}
		return
	}

	for i := range t.rows {
		group := strings.ToUpper(strings.TrimSpace(t.rows[i].Values[col]))
		switch {
		case highPayGroups[group]:
			t.rows[i].Priority = PriorityHigh
			t.rows[i].PriorityReason = reasonBaseHigh
		case strings.HasPrefix(group, lowPayGroupPfx):
			t.rows[i].Priority = PriorityLow
			t.rows[i].PriorityReason = reasonBaseLow
		default:
			t.rows[i].Priority = PriorityMedium
			t.rows[i].PriorityReason = reasonBaseStandard
		}
	}
}

// ruleMatches ANDs every condition. A missing column fails the rule for all rows.
func ruleMatches(t *Table, rule Rule, row Row) bool {
	for _, c := range rule.Conditions {
		if !t.HasColumn(c.Column) {
			return false
		}
		if !conditionMatches(c, row.Values[c.Column]) {
			return false
		}
	}
	return true
}

// conditionMatches evaluates one condition against a cell. Numeric coercion
// failures count as a non-match.
func conditionMatches(c Condition, cell string) bool {
	want := normalizeText(c.Value)
	if !c.Operator.Numeric() {
		got := normalizeText(cell)
		switch c.Operator {
		case OpContains:
			return strings.Contains(got, want)
		case OpEquals:
			return got == want
		}
		return false
	}

	got, ok := ParseAmount(cell)
	if !ok {
		return false
	}
	threshold, ok := ParseAmount(want)
	if !ok {
		return false
	}
	switch c.Operator {
	case OpGreater:
		return got > threshold
	case OpLess:
		return got < threshold
	case OpGreaterEq:
		return got >= threshold
	case OpLessEq:
		return got <= threshold
	}
	return false
}
