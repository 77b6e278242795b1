package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AssignsSequentialIDs(t *testing.T) {
	env := newTestEnv(t)
	sess, view, err := env.svc.Load(context.Background(), invoiceDataset(4))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3}, rowIDs(view.Rows))
	assert.Equal(t, sess.ID, view.SessionID)
	assert.Equal(t, 4, view.Summary.TotalInvoices)
	assert.True(t, env.snapshots.has(sess.ID))
	assert.Equal(t, StateReady, sess.State())
}

func TestLoad_RejectsInvalidDataset(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.svc.Load(context.Background(), Dataset{Columns: []string{"a"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "VAL007", MapError(err).Code)

	_, _, err = env.svc.Load(context.Background(), Dataset{
		Columns: []string{"priority"},
		Records: []map[string]string{{"priority": "x"}},
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, env.svc.Sessions().Live())
}

func TestUpdateCell_ThenUndo(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, vendorDataset())
	before := sess.HistoryLen()

	res, err := env.svc.UpdateCell(ctx, sess, 1, "amount", "$75")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, "1", res.Target())
	assert.Equal(t, before+1, sess.HistoryLen())

	res, err = env.svc.Undo(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, res.Action)

	view, err := env.svc.View(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "$50", view.Rows[1].Values["amount"])
	assert.Equal(t, before, sess.HistoryLen())
}

func TestUpdateCell_NoChange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, vendorDataset())

	res, err := env.svc.UpdateCell(ctx, sess, 0, "vendor", "Amazon")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoChange, res.Outcome)
	assert.Equal(t, 0, sess.HistoryLen())
	assert.Equal(t, 1, sess.Audit().Len(), "only the load is audited")
}

func TestUpdateCell_Errors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, vendorDataset())

	_, err := env.svc.UpdateCell(ctx, sess, 99, "vendor", "x")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "VAL001", MapError(err).Code)

	_, err = env.svc.UpdateCell(ctx, sess, 0, "Region", "x")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "VAL002", MapError(err).Code)
	assert.Equal(t, 0, sess.HistoryLen())
}

func TestUpdateCell_RecomputesStatusAndPriority(t *testing.T) {
	ctx := context.Background()
	rule := Rule{
		ID: "big", Active: true,
		Conditions: []Condition{{Column: "amount", Operator: OpGreater, Value: "500"}},
		Priority:   PriorityHigh, Reason: "large amount",
	}
	env := newTestEnv(t, rule)
	sess := env.load(t, vendorDataset())

	_, err := env.svc.UpdateCell(ctx, sess, 1, "amount", "$1,000")
	require.NoError(t, err)
	view, _ := env.svc.View(ctx, sess)
	assert.Equal(t, PriorityHigh, view.Rows[1].Priority)
	assert.Equal(t, StatusComplete, view.Rows[1].Status)

	_, err = env.svc.UpdateCell(ctx, sess, 1, "amount", "0")
	require.NoError(t, err)
	view, _ = env.svc.View(ctx, sess)
	assert.Equal(t, PriorityMedium, view.Rows[1].Priority)
	assert.Equal(t, StatusIncomplete, view.Rows[1].Status)
}

func TestAddRow_NeverReusesIDs(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, invoiceDataset(8))

	_, err := env.svc.DeleteRow(ctx, sess, 7)
	require.NoError(t, err)

	res, err := env.svc.AddRow(ctx, sess)
	require.NoError(t, err)
	require.Len(t, res.Affected, 1)
	assert.Equal(t, 8, res.Affected[0])

	view, _ := env.svc.View(ctx, sess)
	added := view.Rows[len(view.Rows)-1]
	assert.Equal(t, StatusIncomplete, added.Status)
	assert.Equal(t, PriorityMedium, added.Priority)
	for _, c := range view.Columns {
		assert.Equal(t, "", added.Values[c])
	}
}

func TestAddRow_UndoDoesNotRecycleID(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, invoiceDataset(2))

	_, err := env.svc.AddRow(ctx, sess)
	require.NoError(t, err)
	_, err = env.svc.Undo(ctx, sess)
	require.NoError(t, err)

	res, err := env.svc.AddRow(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, res.Affected)
}

func TestDeleteRow_UndoRestoresExactTable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, invoiceDataset(5))
	before, _ := env.svc.View(ctx, sess)

	_, err := env.svc.DeleteRow(ctx, sess, 2)
	require.NoError(t, err)
	mid, _ := env.svc.View(ctx, sess)
	assert.Equal(t, []int{0, 1, 3, 4}, rowIDs(mid.Rows))

	_, err = env.svc.Undo(ctx, sess)
	require.NoError(t, err)
	after, _ := env.svc.View(ctx, sess)
	assert.Equal(t, before.Rows, after.Rows)
	assert.Equal(t, before.Columns, after.Columns)
}

func TestDeleteRow_NotFound(t *testing.T) {
	env := newTestEnv(t)
	sess := env.load(t, invoiceDataset(2))

	_, err := env.svc.DeleteRow(context.Background(), sess, 5)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "row not found")
}

func TestBulkUpdate_RecordsOnlyChangedRows(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ds := invoiceDataset(4)
	ds.Records[1]["Vendor"] = "Acme"
	sess := env.load(t, ds)

	res, err := env.svc.BulkUpdate(ctx, sess, []int{0, 1, 2, 42}, "Vendor", "Acme")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, res.Affected)
	assert.Equal(t, BulkTarget, res.Target())

	res, err = env.svc.BulkUpdate(ctx, sess, []int{0, 1, 2}, "Vendor", "Acme")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoChange, res.Outcome)
	assert.Equal(t, 1, sess.HistoryLen())

	_, err = env.svc.Undo(ctx, sess)
	require.NoError(t, err)
	view, _ := env.svc.View(ctx, sess)
	assert.Equal(t, "Vendor 0", view.Rows[0].Values["Vendor"])
	assert.Equal(t, "Acme", view.Rows[1].Values["Vendor"])
	assert.Equal(t, "Vendor 2", view.Rows[2].Values["Vendor"])
}

func TestFindReplace(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ds := invoiceDataset(4)
	ds.Records[0]["Pay Group"] = "SCF"
	ds.Records[2]["Pay Group"] = "SCF"
	sess := env.load(t, ds)

	res, err := env.svc.FindReplace(ctx, sess, []int{0, 1, 2}, "Pay Group", "SCF", "Pay Group 2")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, res.Affected)
	assert.Equal(t, 2, res.Summary.Low)

	res, err = env.svc.FindReplace(ctx, sess, []int{3}, "Pay Group", "SCF", "x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoChange, res.Outcome)

	res, err = env.svc.Undo(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, ActionFindReplace, res.Action)
	assert.Equal(t, 2, res.Summary.High)
}

func TestBulkDelete_StorageTiering(t *testing.T) {
	tests := []struct {
		name    string
		removed int
		want    StorageTier
	}{
		{"inline below threshold", 49, StorageInline},
		{"external above threshold", 51, StorageExternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t)
			sess := env.load(t, invoiceDataset(60))

			res, err := env.svc.BulkDelete(ctx, sess, idRange(0, tt.removed))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Storage)
			assert.Equal(t, 60-tt.removed, res.Summary.TotalInvoices)

			if tt.want == StorageExternal {
				assert.Equal(t, 1, env.blobs.count())
			} else {
				assert.Equal(t, 0, env.blobs.count())
			}
		})
	}
}

func TestBulkDelete_UndoRestoresSortedByID(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, invoiceDataset(60))

	_, err := env.svc.BulkDelete(ctx, sess, idRange(5, 60))
	require.NoError(t, err)
	require.Equal(t, 1, env.blobs.count())

	res, err := env.svc.Undo(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, BulkTarget, res.Target())
	assert.Equal(t, 0, env.blobs.count(), "blob deleted after restore")

	view, _ := env.svc.View(ctx, sess)
	assert.Equal(t, idRange(0, 60), rowIDs(view.Rows))
}

func TestBulkDelete_WriteFailureKeepsRowsInline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.blobs.failPut = true
	sess := env.load(t, invoiceDataset(60))

	res, err := env.svc.BulkDelete(ctx, sess, idRange(0, 55))
	require.NoError(t, err)
	assert.Equal(t, StorageInline, res.Storage)

	_, err = env.svc.Undo(ctx, sess)
	require.NoError(t, err)
	view, _ := env.svc.View(ctx, sess)
	assert.Len(t, view.Rows, 60)
}

func TestBulkDelete_ReadFailureRestoresNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, invoiceDataset(60))

	_, err := env.svc.BulkDelete(ctx, sess, idRange(0, 55))
	require.NoError(t, err)
	before, _ := env.svc.View(ctx, sess)
	env.blobs.failGet = true

	res, err := env.svc.Undo(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoChange, res.Outcome)
	assert.Equal(t, "nothing restored", res.Message)
	assert.Equal(t, 0, sess.HistoryLen())

	after, _ := env.svc.View(ctx, sess)
	assert.Equal(t, before.Rows, after.Rows)
}

func TestDeleteColumn_UndoRestoresColumn(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, invoiceDataset(3))
	before, _ := env.svc.View(ctx, sess)

	res, err := env.svc.DeleteColumn(ctx, sess, "Pay Group")
	require.NoError(t, err)
	assert.Equal(t, []string{"Invoice #", "Vendor", "Amount"}, res.Columns)
	view, _ := env.svc.View(ctx, sess)
	for _, r := range view.Rows {
		_, ok := r.Values["Pay Group"]
		assert.False(t, ok)
		assert.Equal(t, reasonBaseInactive, r.PriorityReason)
	}

	_, err = env.svc.Undo(ctx, sess)
	require.NoError(t, err)
	after, _ := env.svc.View(ctx, sess)
	assert.Equal(t, before.Columns, after.Columns)
	assert.Equal(t, before.Rows, after.Rows)
}

func TestDeleteColumn_RowsWithoutRecordedValueStayEmpty(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, Dataset{
		Columns: []string{"Vendor", "Notes"},
		Records: []map[string]string{
			{"Vendor": "Acme", "Notes": "late"},
			{"Vendor": "Globex"},
		},
	})

	_, err := env.svc.DeleteColumn(ctx, sess, "Notes")
	require.NoError(t, err)
	_, err = env.svc.Undo(ctx, sess)
	require.NoError(t, err)

	view, _ := env.svc.View(ctx, sess)
	assert.Equal(t, "late", view.Rows[0].Values["Notes"])
	_, ok := view.Rows[1].Values["Notes"]
	assert.False(t, ok)
}

func TestDeleteColumn_Missing(t *testing.T) {
	env := newTestEnv(t)
	sess := env.load(t, invoiceDataset(2))

	_, err := env.svc.DeleteColumn(context.Background(), sess, "Region")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, sess.HistoryLen())
}

func TestCleanupDuplicates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ds := invoiceDataset(5)
	ds.Records[2]["Invoice #"] = "INV-1000"
	ds.Records[4]["Invoice #"] = "INV-1001"
	sess := env.load(t, ds)

	col, groups, err := env.svc.Duplicates(ctx, sess, "")
	require.NoError(t, err)
	assert.Equal(t, "Invoice #", col)
	require.Len(t, groups, 2)
	assert.Equal(t, []int{0, 2}, rowIDs(groups[0].Rows))

	res, err := env.svc.CleanupDuplicates(ctx, sess, "")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, res.Affected)
	view, _ := env.svc.View(ctx, sess)
	assert.Equal(t, []int{0, 1, 3}, rowIDs(view.Rows))

	res, err = env.svc.CleanupDuplicates(ctx, sess, "Invoice #")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoChange, res.Outcome)
}

func TestCleanupDuplicates_NoInvoiceColumn(t *testing.T) {
	env := newTestEnv(t)
	sess := env.load(t, vendorDataset())

	_, err := env.svc.CleanupDuplicates(context.Background(), sess, "")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "VAL006", MapError(err).Code)
}

func TestMutation_RuleStoreFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, vendorDataset())
	env.rules.fail = true

	_, err := env.svc.UpdateCell(ctx, sess, 0, "vendor", "Globex")
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, 0, sess.HistoryLen())

	env.rules.fail = false
	view, _ := env.svc.View(ctx, sess)
	assert.Equal(t, "Amazon", view.Rows[0].Values["vendor"])
}

func TestAuditLogRecordsMutations(t *testing.T) {
	ctx := WithClient(context.Background(), ClientInfo{IPAddress: "10.0.0.7", UserAgent: "test"})
	env := newTestEnv(t)
	sess := env.load(t, vendorDataset())

	_, err := env.svc.UpdateCell(ctx, sess, 1, "amount", "$75")
	require.NoError(t, err)

	entries := sess.Audit().Entries()
	require.Len(t, entries, 2)
	last := entries[1]
	assert.Equal(t, AuditCellEdit, last.Action)
	assert.Equal(t, "1", last.RowKey)
	assert.Equal(t, "$50", last.OldValue)
	assert.Equal(t, "$75", last.NewValue)
	assert.Equal(t, "10.0.0.7", last.IPAddress)
}
