package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Priority is the business-priority label assigned to every row.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Valid reports whether p is one of the three known labels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ParsePriority accepts a label case-insensitively.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, nil
	case "medium":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	}
	return "", validationf("invalid priority %q", s)
}

// RowStatus reports whether every non-reserved field of a row carries data.
type RowStatus string

const (
	StatusComplete   RowStatus = "Complete"
	StatusIncomplete RowStatus = "Incomplete"
)

// Row is a single record of the working table.
//
// Values holds the non-reserved columns. A column missing from Values has no
// value for this row, which is distinct from an empty string only for
// column restores after undo.
type Row struct {
	ID             int               `json:"row_id"`
	Values         map[string]string `json:"values"`
	Priority       Priority          `json:"priority"`
	PriorityReason string            `json:"priority_reason"`
	Status         RowStatus         `json:"row_status"`
}

// Value returns the cell for column, or "" when the row has none.
func (r Row) Value(column string) string {
	return r.Values[column]
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	out := r
	out.Values = make(map[string]string, len(r.Values))
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// Operator is the closed set of comparison operators a Condition may use.
type Operator string

const (
	OpContains  Operator = "contains"
	OpEquals    Operator = "equals"
	OpGreater   Operator = ">"
	OpLess      Operator = "<"
	OpGreaterEq Operator = ">="
	OpLessEq    Operator = "<="
)

// Numeric reports whether the operator compares numbers rather than text.
func (o Operator) Numeric() bool {
	switch o {
	case OpGreater, OpLess, OpGreaterEq, OpLessEq:
		return true
	}
	return false
}

// ParseOperator rejects anything outside the closed operator set.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.TrimSpace(s)); op {
	case OpContains, OpEquals, OpGreater, OpLess, OpGreaterEq, OpLessEq:
		return op, nil
	}
	return "", validationf("unknown operator %q", s)
}

// Condition is a single column comparison. Conditions of a rule are AND-combined.
type Condition struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// Rule assigns Priority and Reason to every row matching all of its conditions.
type Rule struct {
	ID         string      `json:"id"`
	Active     bool        `json:"active"`
	Conditions []Condition `json:"conditions"`
	Priority   Priority    `json:"priority"`
	Reason     string      `json:"reason"`
}

// Validate checks a rule at the persistence boundary.
func (r Rule) Validate() error {
	if len(r.Conditions) == 0 {
		return validationf("rule %q has no conditions", r.ID)
	}
	if !r.Priority.Valid() {
		return validationf("rule %q has invalid priority %q", r.ID, r.Priority)
	}
	for i, c := range r.Conditions {
		if strings.TrimSpace(c.Column) == "" {
			return validationf("rule %q condition %d has no column", r.ID, i)
		}
		if _, err := ParseOperator(string(c.Operator)); err != nil {
			return err
		}
	}
	return nil
}

// Settings holds global toggles for prioritization.
type Settings struct {
	// EnableBaseHeuristic turns on the pay-group classification.
	EnableBaseHeuristic bool `json:"enable_base_heuristic"`

	// EnableAgeSort is carried for clients; the core does not read it.
	EnableAgeSort bool `json:"enable_age_sort"`
}

// DefaultSettings returns the settings used when nothing is stored.
func DefaultSettings() Settings {
	return Settings{EnableBaseHeuristic: true, EnableAgeSort: true}
}

// RuleStore persists rules and settings.
type RuleStore interface {
	Rules(ctx context.Context) ([]Rule, error)
	Settings(ctx context.Context) (Settings, error)
	SaveRule(ctx context.Context, rule Rule) (Rule, error)
	DeleteRule(ctx context.Context, id string) error
	ToggleRule(ctx context.Context, id string, active bool) error
	ReplaceAll(ctx context.Context, rules []Rule, settings Settings) error
	SaveSettings(ctx context.Context, settings Settings) error
}

// BlobStore holds overflow history payloads out of process.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, handle string) ([]byte, error)
	Delete(ctx context.Context, handle string) error
	// Sweep deletes blobs older than olderThan whose handle is not in keep.
	Sweep(ctx context.Context, olderThan time.Time, keep map[string]bool) (int, error)
}

// Dataset is a parsed source file as delivered by a loader.
type Dataset struct {
	Columns        []string            `json:"columns"`
	Records        []map[string]string `json:"records"`
	GroupingColumn string              `json:"grouping_column,omitempty"` // empty when no pay-group column was detected
	FileName       string              `json:"file_name,omitempty"`
}

// Validate checks that the dataset can seed a session.
func (d Dataset) Validate() error {
	if len(d.Columns) == 0 {
		return validationf("dataset has no columns")
	}
	if len(d.Records) == 0 {
		return validationf("empty file: dataset has no rows")
	}
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if isReservedColumn(c) {
			return validationf("column %q is reserved", c)
		}
		if seen[c] {
			return validationf("duplicate column %q", c)
		}
		seen[c] = true
	}
	if d.GroupingColumn != "" && !seen[d.GroupingColumn] {
		return fmt.Errorf("grouping column %q: %w", d.GroupingColumn, ErrValidation)
	}
	return nil
}

// Reserved column names used in table views.
const (
	ColRowID          = "row_id"
	ColPriority       = "priority"
	ColPriorityReason = "priority_reason"
	ColRowStatus      = "row_status"
)

func isReservedColumn(name string) bool {
	switch name {
	case ColRowID, ColPriority, ColPriorityReason, ColRowStatus:
		return true
	}
	return false
}
