package core

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amazonDraft() RuleDraft {
	return RuleDraft{
		Conditions: []Condition{{Column: "vendor", Operator: OpContains, Value: "amazon"}},
		Priority:   PriorityLow,
		Reason:     "vendor rule",
	}
}

func TestSaveRule_NewRuleIsActiveAndAppended(t *testing.T) {
	ctx := context.Background()
	existing := Rule{
		ID: "first", Active: true,
		Conditions: []Condition{{Column: "vendor", Operator: OpEquals, Value: "staples"}},
		Priority:   PriorityHigh,
	}
	env := newTestEnv(t, existing)
	sess := env.load(t, vendorDataset())

	off := false
	draft := amazonDraft()
	draft.Active = &off
	saved, sum, err := env.svc.SaveRule(ctx, sess, draft)
	require.NoError(t, err)

	assert.NotEmpty(t, saved.ID)
	assert.True(t, saved.Active, "new rules start active")
	require.NotNil(t, sum)
	assert.Equal(t, 1, sum.Low)
	assert.Equal(t, 1, sum.High)

	rs, err := env.svc.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 2)
	assert.Equal(t, "first", rs.Rules[0].ID)
	assert.Equal(t, saved.ID, rs.Rules[1].ID)
}

func TestSaveRule_ExistingIDReplacesInPlaceKeepingActive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t,
		Rule{ID: "a", Active: false, Conditions: []Condition{{Column: "vendor", Operator: OpEquals, Value: "x"}}, Priority: PriorityHigh},
		Rule{ID: "b", Active: true, Conditions: []Condition{{Column: "vendor", Operator: OpEquals, Value: "y"}}, Priority: PriorityHigh},
	)

	draft := amazonDraft()
	draft.ID = "a"
	saved, sum, err := env.svc.SaveRule(ctx, nil, draft)
	require.NoError(t, err)
	assert.Nil(t, sum)
	assert.False(t, saved.Active)

	rs, _ := env.svc.Rules(ctx)
	require.Len(t, rs.Rules, 2)
	assert.Equal(t, "a", rs.Rules[0].ID)
	assert.Equal(t, "vendor rule", rs.Rules[0].Reason)

	on := true
	draft.Active = &on
	saved, _, err = env.svc.SaveRule(ctx, nil, draft)
	require.NoError(t, err)
	assert.True(t, saved.Active)
}

func TestSaveRule_UnknownIDIsAppended(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	draft := amazonDraft()
	draft.ID = "imported-1"
	saved, _, err := env.svc.SaveRule(ctx, nil, draft)
	require.NoError(t, err)
	assert.Equal(t, "imported-1", saved.ID)
	assert.True(t, saved.Active)

	rs, _ := env.svc.Rules(ctx)
	assert.Len(t, rs.Rules, 1)
}

func TestSaveRule_RejectsUnknownOperator(t *testing.T) {
	env := newTestEnv(t)
	draft := amazonDraft()
	draft.Conditions[0].Operator = "matches"

	_, _, err := env.svc.SaveRule(context.Background(), nil, draft)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "VAL003", MapError(err).Code)

	rs, _ := env.svc.Rules(context.Background())
	assert.Empty(t, rs.Rules)
}

func TestToggleAndDeleteRule_Recompute(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, vendorDataset())
	saved, _, err := env.svc.SaveRule(ctx, sess, amazonDraft())
	require.NoError(t, err)

	sum, err := env.svc.ToggleRule(ctx, sess, saved.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Low)

	sum, err = env.svc.ToggleRule(ctx, sess, saved.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Low)

	sum, err = env.svc.DeleteRule(ctx, sess, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Low)

	_, err = env.svc.DeleteRule(ctx, sess, saved.ID)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "VAL005", MapError(err).Code)
}

func TestReplaceAll(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Rule{ID: "old", Active: true, Conditions: []Condition{{Column: "vendor", Operator: OpEquals, Value: "x"}}, Priority: PriorityLow})
	sess := env.load(t, vendorDataset())

	active := true
	set := RuleImport{
		Rules: []RuleDraft{{
			Active:     &active,
			Conditions: []Condition{{Column: "amount", Operator: OpGreater, Value: "75"}},
			Priority:   PriorityHigh,
		}},
		Settings: Settings{EnableBaseHeuristic: false, EnableAgeSort: false},
	}
	sum, err := env.svc.ReplaceAll(ctx, sess, set)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.High)

	rs, _ := env.svc.Rules(ctx)
	require.Len(t, rs.Rules, 1)
	assert.NotEmpty(t, rs.Rules[0].ID)
	assert.NotEqual(t, "old", rs.Rules[0].ID)
	assert.False(t, rs.Settings.EnableBaseHeuristic)

	bad := RuleImport{Rules: []RuleDraft{{ID: "x", Priority: PriorityHigh}}}
	_, err = env.svc.ReplaceAll(ctx, sess, bad)
	assert.ErrorIs(t, err, ErrValidation)
	rs, _ = env.svc.Rules(ctx)
	assert.Len(t, rs.Rules, 1, "invalid import writes nothing")
}

func TestReplaceAll_OmittedActiveImportsActive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, vendorDataset())

	payload := `{"rules":[
		{"conditions":[{"column":"vendor","operator":"contains","value":"amazon"}],"priority":"Low","reason":"vendor rule"},
		{"active":false,"conditions":[{"column":"vendor","operator":"contains","value":"staples"}],"priority":"High","reason":"paused"}
	],"settings":{"enable_base_heuristic":true}}`
	var set RuleImport
	require.NoError(t, json.Unmarshal([]byte(payload), &set))

	_, err := env.svc.ReplaceAll(ctx, sess, set)
	require.NoError(t, err)

	rs, err := env.svc.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 2)
	assert.True(t, rs.Rules[0].Active)
	assert.False(t, rs.Rules[1].Active)

	view, err := env.svc.View(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, PriorityLow, view.Rows[0].Priority)
	assert.Equal(t, "vendor rule", view.Rows[0].PriorityReason)
	assert.Equal(t, PriorityMedium, view.Rows[1].Priority)
}

func TestSaveSettings_DisablesHeuristic(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ds := invoiceDataset(2)
	ds.Records[0]["Pay Group"] = "SCF"
	sess := env.load(t, ds)

	sum, err := env.svc.SaveSettings(ctx, sess, Settings{EnableBaseHeuristic: false})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.High)

	sum, err = env.svc.SaveSettings(ctx, sess, DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.High)
}
