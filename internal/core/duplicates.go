package core

// DuplicateGroup is a set of rows sharing one key value.
type DuplicateGroup struct {
	Key  string `json:"key"`
	Rows []Row  `json:"rows"`
}

// findDuplicates groups rows by the exact value of column, keeping only
// keys seen more than once. Groups come back in order of first appearance.
func findDuplicates(t *Table, column string) []DuplicateGroup {
	byKey := make(map[string]int)
	var groups []DuplicateGroup
	for _, r := range t.rows {
		key := r.Values[column]
		i, ok := byKey[key]
		if !ok {
			i = len(groups)
			byKey[key] = i
			groups = append(groups, DuplicateGroup{Key: key})
		}
		groups[i].Rows = append(groups[i].Rows, r.Clone())
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.Rows) > 1 {
			out = append(out, g)
		}
	}
	return out
}

// duplicateIDs returns every row id after the first occurrence of each key.
func duplicateIDs(t *Table, column string) []int {
	var ids []int
	for _, g := range findDuplicates(t, column) {
		for _, r := range g.Rows[1:] {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// resolveKeyColumn validates an explicit key column or detects the invoice column.
func resolveKeyColumn(t *Table, column string) (string, error) {
	if column == "" {
		column = InvoiceColumn(t.columns)
		if column == "" {
			return "", validationf("no invoice column detected")
		}
		return column, nil
	}
	if !t.HasColumn(column) {
		return "", validationf("column not found: %q", column)
	}
	return column, nil
}
