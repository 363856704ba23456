package pcstables

import (
	"errors"
	"testing"
)

func axis(title string, pairs ...string) AxisLabels {
	a := AxisLabels{Title: title}
	for i := 0; i+1 < len(pairs); i += 2 {
		a.Labels = append(a.Labels, AxisLabel{Code: pairs[i], Label: pairs[i+1]})
	}
	return a
}

func sampleTables() []*Table {
	return []*Table{
		{
			Section: "0", BodySystem: "H", Operation: "B", OperationLabel: "Excision",
			Rows: []TableRow{{
				BodyPart:  axis("Body Part", "0", "Scalp"),
				Approach:  axis("Approach", "X", "External"),
				Device:    axis("Device", "Z", "No Device"),
				Qualifier: axis("Qualifier", "X", "Diagnostic", "Z", "No Qualifier"),
			}},
		},
		{
			Section: "0", BodySystem: "J", Operation: "9", OperationLabel: "Drainage",
			Rows: []TableRow{
				{BodyPart: axis("Body Part", "C", "Pelvic Region")},
				{BodyPart: axis("Body Part", "D", "Right Upper Arm")},
			},
		},
	}
}

func TestExpandFromPrefix(t *testing.T) {
	store := NewStore(sampleTables())

	got := store.ExpandFromPrefix("0J9")
	if len(got) != 2 {
		t.Fatalf("expected 2 expansions, got %d", len(got))
	}
	for _, e := range got {
		if e.Table.Prefix() != "0J9" {
			t.Errorf("expected every row to belong to 0J9, got %s", e.Table.Prefix())
		}
	}
	if got[1].Row.BodyPart.Labels[0].Label != "Right Upper Arm" {
		t.Errorf("expected rows in stored order, got %+v", got[1].Row.BodyPart)
	}
}

func TestExpandFromPrefix_LongerPrefixUsesFirstThree(t *testing.T) {
	store := NewStore(sampleTables())
	if got := store.ExpandFromPrefix("0HBJXZX"); len(got) != 1 {
		t.Errorf("expected 1 expansion, got %d", len(got))
	}
}

func TestExpandFromPrefix_Empty(t *testing.T) {
	store := NewStore(sampleTables())
	for _, p := range []string{"", "0H", "0HT", "XYZ"} {
		got := store.ExpandFromPrefix(p)
		if got == nil || len(got) != 0 {
			t.Errorf("prefix %q: expected empty result, got %#v", p, got)
		}
	}
}

func TestGet_Errors(t *testing.T) {
	store := NewStore(sampleTables())

	if _, err := store.Get("0H"); !errors.Is(err, ErrShortPrefix) {
		t.Errorf("expected ErrShortPrefix, got %v", err)
	}
	if _, err := store.Get("0HT"); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}
}

func TestNewStore_MergesDuplicatePrefixes(t *testing.T) {
	tables := sampleTables()
	tables = append(tables, &Table{
		Section: "0", BodySystem: "H", Operation: "B", OperationLabel: "Excision",
		Rows: []TableRow{{BodyPart: axis("Body Part", "1", "Face")}},
	})
	store := NewStore(tables)

	if store.Len() != 2 {
		t.Errorf("expected 2 distinct tables, got %d", store.Len())
	}
	got := store.ExpandFromPrefix("0HB")
	if len(got) != 2 {
		t.Fatalf("expected merged rows, got %d", len(got))
	}
	if got[1].Row.BodyPart.Labels[0].Label != "Face" {
		t.Errorf("expected appended row last, got %+v", got[1].Row.BodyPart)
	}
}

func TestTableRow_Axis(t *testing.T) {
	var row TableRow
	for pos := 4; pos <= 7; pos++ {
		if row.Axis(pos) == nil {
			t.Errorf("expected axis for position %d", pos)
		}
	}
	if row.Axis(3) != nil || row.Axis(8) != nil {
		t.Error("expected nil outside positions 4-7")
	}
}

func TestFlatten(t *testing.T) {
	recs := flatten(sampleTables())
	// 0HB: 1 + 1 + 1 + 2 labels; 0J9: 2 rows with one body part and three empty axes each.
	if len(recs) != 5+8 {
		t.Fatalf("expected 13 records, got %d", len(recs))
	}
	for _, r := range recs {
		if len(r) != len(labelColumns) {
			t.Fatalf("expected %d columns, got %d", len(labelColumns), len(r))
		}
	}
	last := recs[len(recs)-1]
	if last[10] != emptyAxisOrdinal {
		t.Errorf("expected empty-axis marker, got %v", last[10])
	}
}

func TestFlatten_TableWithoutRows(t *testing.T) {
	recs := flatten([]*Table{{Section: "0", BodySystem: "W", Operation: "W", OperationLabel: "Irrigation"}})
	if len(recs) != 1 {
		t.Fatalf("expected one header record, got %d", len(recs))
	}
	r := recs[0]
	if r[7] != headerRowIndex || r[10] != emptyAxisOrdinal || r[6] != "Irrigation" {
		t.Errorf("unexpected header record %v", r)
	}
}
