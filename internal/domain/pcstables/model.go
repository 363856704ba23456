package pcstables

// AxisLabel is one code/label pair of an axis, e.g. "0" / "Scalp".
type AxisLabel struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// AxisLabels is the ordered set of values one variable axis (positions 4-7)
// admits within a table row.
type AxisLabels struct {
	Title  string      `json:"title"`
	Labels []AxisLabel `json:"labels"`
}

// TableRow holds the four variable axes of a table row.
type TableRow struct {
	BodyPart  AxisLabels `json:"body_part"`
	Approach  AxisLabels `json:"approach"`
	Device    AxisLabels `json:"device"`
	Qualifier AxisLabels `json:"qualifier"`
}

// Axis returns the axis at code position pos (4 to 7).
func (r *TableRow) Axis(pos int) *AxisLabels {
	switch pos {
	case 4:
		return &r.BodyPart
	case 5:
		return &r.Approach
	case 6:
		return &r.Device
	case 7:
		return &r.Qualifier
	}
	return nil
}

// Table is a code table identified by its section, body system and
// operation characters. All rows share that 3-character prefix.
type Table struct {
	Section         string     `json:"section"`
	BodySystem      string     `json:"body_system"`
	Operation       string     `json:"operation"`
	SectionLabel    string     `json:"section_label"`
	BodySystemLabel string     `json:"body_system_label"`
	OperationLabel  string     `json:"operation_label"`
	Rows            []TableRow `json:"rows"`
}

// Prefix returns the 3-character key of the table.
func (t *Table) Prefix() string {
	return t.Section + t.BodySystem + t.Operation
}

// Expansion pairs a row with the table it belongs to.
type Expansion struct {
	Table *Table
	Row   *TableRow
}
