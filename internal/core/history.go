package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/InvoiceDesk/internal/codec"
	"github.com/JonMunkholm/InvoiceDesk/internal/metrics"
)

// Action identifies the kind of a mutation and of the history entry that inverts it.
type Action string

const (
	ActionUpdate       Action = "update"
	ActionAdd          Action = "add"
	ActionDelete       Action = "delete"
	ActionBulkUpdate   Action = "bulk_update"
	ActionFindReplace  Action = "find_replace"
	ActionBulkDelete   Action = "bulk_delete"
	ActionDeleteColumn Action = "delete_column"
)

// StorageTier says where the removed rows of a bulk delete live.
type StorageTier string

const (
	StorageInline   StorageTier = "inline"
	StorageExternal StorageTier = "external"
)

// Defaults for a session history.
const (
	DefaultHistoryCapacity     = 15
	DefaultBulkDeleteThreshold = 50
)

// CellChange is the prior state of one cell.
type CellChange struct {
	RowID int    `json:"row_id"`
	Old   string `json:"old"`
	Had   bool   `json:"had"` // false when the row had no value for the column
}

// PositionedRow is a removed row with the index it was removed from.
type PositionedRow struct {
	Index int `json:"index"`
	Row   Row `json:"row"`
}

// HistoryEntry carries exactly what is needed to invert one mutation.
// Which fields are set depends on Action.
type HistoryEntry struct {
	Action    Action
	CreatedAt time.Time

	// update, add, delete
	RowID int

	// update, bulk_update, find_replace, delete_column
	Column  string
	Changes []CellChange

	// delete
	Removed *PositionedRow

	// bulk_delete
	Storage StorageTier
	Rows    []Row  // inline payload
	Handle  string // external payload
	Count   int

	// delete_column
	ColumnPosition int
}

// History is a bounded LIFO stack of reversible mutations.
// It is not safe for concurrent use; the owning Session serializes access.
type History struct {
	entries   []HistoryEntry
	capacity  int
	threshold int
	blobs     BlobStore
	logger    *slog.Logger
}

// NewHistory creates an empty history. A nil blobs store keeps every
// bulk delete inline.
func NewHistory(capacity, threshold int, blobs BlobStore, logger *slog.Logger) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	if threshold <= 0 {
		threshold = DefaultBulkDeleteThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &History{capacity: capacity, threshold: threshold, blobs: blobs, logger: logger}
}

// Len returns the number of entries on the stack.
func (h *History) Len() int { return len(h.entries) }

// Capacity returns the maximum stack length.
func (h *History) Capacity() int { return h.capacity }

// Push appends e, evicting the oldest entry when the stack is full.
// An evicted external entry has its blob deleted; a failed delete is logged only.
func (h *History) Push(ctx context.Context, e HistoryEntry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	h.entries = append(h.entries, e)
	for len(h.entries) > h.capacity {
		oldest := h.entries[0]
		h.entries[0] = HistoryEntry{}
		h.entries = h.entries[1:]
		metrics.HistoryEvictions.Inc()
		h.release(ctx, oldest)
	}
}

// Pop removes and returns the most recent entry.
func (h *History) Pop() (HistoryEntry, error) {
	if len(h.entries) == 0 {
		return HistoryEntry{}, &Error{Kind: ErrEmptyHistory}
	}
	last := len(h.entries) - 1
	e := h.entries[last]
	h.entries[last] = HistoryEntry{}
	h.entries = h.entries[:last]
	return e, nil
}

// Peek returns the most recent entry without removing it.
func (h *History) Peek() (HistoryEntry, bool) {
	if len(h.entries) == 0 {
		return HistoryEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Clear drops every entry and frees their external blobs. It returns the
// number of entries discarded.
func (h *History) Clear(ctx context.Context) int {
	n := len(h.entries)
	for _, e := range h.entries {
		h.release(ctx, e)
	}
	h.entries = nil
	return n
}

// Handles returns every blob handle referenced by the stack.
func (h *History) Handles() []string {
	var out []string
	for _, e := range h.entries {
		if e.Storage == StorageExternal && e.Handle != "" {
			out = append(out, e.Handle)
		}
	}
	return out
}

// bulkDeleteEntry builds the entry for removed rows, moving the payload to
// the blob store when more than threshold rows were removed. A failed blob
// write falls back to inline storage.
func (h *History) bulkDeleteEntry(ctx context.Context, removed []Row) HistoryEntry {
	e := HistoryEntry{Action: ActionBulkDelete, Count: len(removed), Storage: StorageInline}
	if len(removed) <= h.threshold || h.blobs == nil {
		e.Rows = removed
		return e
	}

	data, err := codec.Encode(removed)
	if err == nil {
		var handle string
		handle, err = h.blobs.Put(ctx, data)
		if err == nil {
			metrics.BlobWrites.WithLabelValues("stored").Inc()
			e.Storage = StorageExternal
			e.Handle = handle
			return e
		}
	}

	metrics.BlobWrites.WithLabelValues("fallback").Inc()
	h.logger.Warn("history overflow write failed, keeping rows inline",
		"rows", len(removed),
		"error", err,
	)
	e.Rows = removed
	return e
}

// loadRemoved returns the rows of a bulk delete entry, reading and then
// deleting the blob for external entries.
func (h *History) loadRemoved(ctx context.Context, e HistoryEntry) ([]Row, error) {
	if e.Storage != StorageExternal {
		return e.Rows, nil
	}
	if h.blobs == nil {
		return nil, storageErr("read history blob", ErrNotFound)
	}
	data, err := h.blobs.Get(ctx, e.Handle)
	if err != nil {
		return nil, storageErr("read history blob", err)
	}
	var rows []Row
	if err := codec.Decode(data, &rows); err != nil {
		return nil, storageErr("decode history blob", err)
	}
	h.release(ctx, e)
	return rows, nil
}

func (h *History) release(ctx context.Context, e HistoryEntry) {
	if e.Storage != StorageExternal || e.Handle == "" || h.blobs == nil {
		return
	}
	if err := h.blobs.Delete(ctx, e.Handle); err != nil {
		metrics.BlobDeleteFailures.Inc()
		h.logger.Warn("history blob delete failed",
			"handle", e.Handle,
			"error", err,
		)
	}
}
