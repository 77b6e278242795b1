package core

// Table is the live working table of one session.
//
// Row ids are assigned from a high-water mark that only grows, so an id is
// never handed out twice even after the row holding it was deleted.
type Table struct {
	columns        []string
	rows           []Row
	nextID         int
	groupingColumn string
}

// NewTable builds a working table from a dataset, assigning ids 0..n-1 in
// dataset order. Every row starts at Medium until the first recompute.
func NewTable(ds Dataset) *Table {
	t := &Table{
		columns:        append([]string(nil), ds.Columns...),
		rows:           make([]Row, 0, len(ds.Records)),
		groupingColumn: ds.GroupingColumn,
	}
	for _, rec := range ds.Records {
		values := make(map[string]string, len(t.columns))
		for _, c := range t.columns {
			if v, ok := rec[c]; ok {
				values[c] = v
			}
		}
		t.rows = append(t.rows, Row{
			ID:       t.nextID,
			Values:   values,
			Priority: PriorityMedium,
		})
		t.nextID++
	}
	t.refreshStatus()
	return t
}

// Columns returns the non-reserved columns in display order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// GroupingColumn returns the pay-group column detected at load, or "".
func (t *Table) GroupingColumn() string {
	if t.groupingColumn != "" && !t.HasColumn(t.groupingColumn) {
		return ""
	}
	return t.groupingColumn
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// NextID returns the id the next added row will receive.
func (t *Table) NextID() int { return t.nextID }

// Rows returns deep copies of every row in display order.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Clone()
	}
	return out
}

// Row returns a copy of the row with the given id.
func (t *Table) Row(id int) (Row, bool) {
	if i := t.indexOf(id); i >= 0 {
		return t.rows[i].Clone(), true
	}
	return Row{}, false
}

// HasColumn reports whether column is part of the table.
func (t *Table) HasColumn(column string) bool {
	return t.columnIndex(column) >= 0
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{
		columns:        t.Columns(),
		rows:           t.Rows(),
		nextID:         t.nextID,
		groupingColumn: t.groupingColumn,
	}
	return out
}

func (t *Table) indexOf(id int) int {
	for i := range t.rows {
		if t.rows[i].ID == id {
			return i
		}
	}
	return -1
}

func (t *Table) columnIndex(column string) int {
	for i, c := range t.columns {
		if c == column {
			return i
		}
	}
	return -1
}

// appendRow adds an empty row and returns its id.
func (t *Table) appendRow() int {
	values := make(map[string]string, len(t.columns))
	for _, c := range t.columns {
		values[c] = ""
	}
	id := t.nextID
	t.nextID++
	t.rows = append(t.rows, Row{
		ID:             id,
		Values:         values,
		Priority:       PriorityMedium,
		PriorityReason: reasonNewRow,
		Status:         StatusIncomplete,
	})
	return id
}

// insertAt places row at index, clamping to the table bounds.
func (t *Table) insertAt(index int, row Row) {
	if index < 0 {
		index = 0
	}
	if index > len(t.rows) {
		index = len(t.rows)
	}
	t.rows = append(t.rows, Row{})
	copy(t.rows[index+1:], t.rows[index:])
	t.rows[index] = row
	if row.ID >= t.nextID {
		t.nextID = row.ID + 1
	}
}

func (t *Table) removeAt(index int) Row {
	row := t.rows[index]
	t.rows = append(t.rows[:index], t.rows[index+1:]...)
	return row
}

// setCell writes a value and reports the previous one.
func (t *Table) setCell(index int, column, value string) (old string, had bool) {
	row := &t.rows[index]
	old, had = row.Values[column]
	row.Values[column] = value
	row.Status = t.statusOf(*row)
	return old, had
}

// restoreCell writes a value back, or clears it when the row had none.
func (t *Table) restoreCell(index int, column, value string, had bool) {
	row := &t.rows[index]
	if had {
		row.Values[column] = value
	} else {
		delete(row.Values, column)
	}
	row.Status = t.statusOf(*row)
}

func (t *Table) removeColumn(column string) (values map[int]string, position int) {
	position = t.columnIndex(column)
	t.columns = append(t.columns[:position], t.columns[position+1:]...)
	values = make(map[int]string)
	for i := range t.rows {
		if v, ok := t.rows[i].Values[column]; ok {
			values[t.rows[i].ID] = v
			delete(t.rows[i].Values, column)
		}
	}
	return values, position
}

func (t *Table) restoreColumn(column string, position int, values map[int]string) {
	if position < 0 || position > len(t.columns) {
		position = len(t.columns)
	}
	t.columns = append(t.columns, "")
	copy(t.columns[position+1:], t.columns[position:])
	t.columns[position] = column
	for i := range t.rows {
		if v, ok := values[t.rows[i].ID]; ok {
			t.rows[i].Values[column] = v
		}
	}
}

func (t *Table) statusOf(r Row) RowStatus {
	for _, c := range t.columns {
		if isBlankCell(r.Values[c]) {
			return StatusIncomplete
		}
	}
	return StatusComplete
}

func (t *Table) refreshStatus() {
	for i := range t.rows {
		t.rows[i].Status = t.statusOf(t.rows[i])
	}
}
