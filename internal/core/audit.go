package core

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	AuditCellEdit     AuditAction = "cell_edit"
	AuditRowAdd       AuditAction = "row_add"
	AuditRowDelete    AuditAction = "row_delete"
	AuditBulkEdit     AuditAction = "bulk_edit"
	AuditFindReplace  AuditAction = "find_replace"
	AuditBulkDelete   AuditAction = "bulk_delete"
	AuditColumnDelete AuditAction = "column_delete"
	AuditUndo         AuditAction = "undo"
	AuditCommit       AuditAction = "commit"
	AuditLoad         AuditAction = "load"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEntry is an immutable record of one change.
type AuditEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Action    AuditAction   `json:"action"`
	Severity  AuditSeverity `json:"severity"`
	RowKey    string        `json:"rowKey,omitempty"`
	Column    string        `json:"column,omitempty"`
	OldValue  string        `json:"oldValue,omitempty"`
	NewValue  string        `json:"newValue,omitempty"`
	IPAddress string        `json:"ipAddress,omitempty"`
	UserAgent string        `json:"userAgent,omitempty"`
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case AuditBulkEdit, AuditFindReplace, AuditBulkDelete, AuditRowDelete:
		return SeverityHigh
	case AuditColumnDelete, AuditCommit:
		return SeverityCritical
	case AuditLoad, AuditUndo:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// AuditLog is an append-only list of entries for one session. The core only
// writes to it; readers get copies.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	now     func() time.Time
}

// NewAuditLog returns an empty log.
func NewAuditLog() *AuditLog {
	return &AuditLog{now: time.Now}
}

// Record appends an entry stamped with the current time and the request's
// client details from ctx.
func (l *AuditLog) Record(ctx context.Context, action AuditAction, rowKey, column, oldValue, newValue string) {
	client := ClientFromContext(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, AuditEntry{
		Timestamp: l.now(),
		Action:    action,
		Severity:  determineSeverity(action),
		RowKey:    rowKey,
		Column:    column,
		OldValue:  oldValue,
		NewValue:  newValue,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
}

// Entries returns a copy of every entry in insertion order.
func (l *AuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEntry(nil), l.entries...)
}

// Len returns the number of recorded entries.
func (l *AuditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// WriteTSV writes the log as tab-separated text with a header line.
func (l *AuditLog) WriteTSV(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString("TIMESTAMP\tACTION\tROW\tCOLUMN\tOLD\tNEW\n")
	for _, e := range l.Entries() {
		sb.WriteString(fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Action,
			tsvEscapeField(e.RowKey),
			tsvEscapeField(e.Column),
			tsvEscapeField(e.OldValue),
			tsvEscapeField(e.NewValue),
		))
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// tsvEscapeField flattens separators so one entry stays on one line.
func tsvEscapeField(s string) string {
	return strings.NewReplacer("\t", " ", "\r", " ", "\n", " ").Replace(s)
}

func rowKey(id int) string { return strconv.Itoa(id) }
