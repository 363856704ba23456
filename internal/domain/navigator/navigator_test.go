package navigator

import (
	"context"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/ehr/pcsguide/internal/domain/checklist"
	"github.com/ehr/pcsguide/internal/domain/pcsindex"
	"github.com/ehr/pcsguide/internal/domain/pcstables"
	"github.com/ehr/pcsguide/internal/domain/resolver"
	"github.com/ehr/pcsguide/internal/domain/rules"
)

func axis(title string, pairs ...string) pcstables.AxisLabels {
	a := pcstables.AxisLabels{Title: title}
	for i := 0; i+1 < len(pairs); i += 2 {
		a.Labels = append(a.Labels, pcstables.AxisLabel{Code: pairs[i], Label: pairs[i+1]})
	}
	return a
}

func testIndex() *pcsindex.Index {
	return pcsindex.NewIndex([]*pcsindex.Node{
		{
			Title: "Biopsy",
			Leaves: []pcsindex.Leaf{
				{Kind: pcsindex.KindTable, Value: "0H9"},
				{Kind: pcsindex.KindTable, Value: "0HB"},
				{Kind: pcsindex.KindCode, Value: "BH00ZZZ"},
			},
		},
		{
			Title:  "Debridement",
			Leaves: []pcsindex.Leaf{{Kind: pcsindex.KindTable, Value: "0HB"}},
		},
		{
			Title:  "Inspection",
			Leaves: []pcsindex.Leaf{{Kind: pcsindex.KindTable, Value: "0HJ"}},
		},
	})
}

func testStore() *pcstables.Store {
	return pcstables.NewStore([]*pcstables.Table{
		{
			Section: "0", BodySystem: "H", Operation: "B", OperationLabel: "Excision",
			Rows: []pcstables.TableRow{{
				BodyPart:  axis("Body Part", "0", "Skin, Scalp", "1", "Skin, Face"),
				Approach:  axis("Approach", "X", "External"),
				Device:    axis("Device", "Z", "No Device"),
				Qualifier: axis("Qualifier", "X", "Diagnostic", "Z", "No Qualifier"),
			}},
		},
		{
			Section: "0", BodySystem: "H", Operation: "9", OperationLabel: "Drainage",
			Rows: []pcstables.TableRow{{
				BodyPart:  axis("Body Part", "0", "Skin, Scalp"),
				Approach:  axis("Approach", "X", "External"),
				Device:    axis("Device", "0", "Drainage Device", "Z", "No Device"),
				Qualifier: axis("Qualifier", "X", "Diagnostic", "Z", "No Qualifier"),
			}},
		},
	})
}

func newTestNavigator(opts ...Option) *Navigator {
	return New(testIndex(), testStore(), rules.NewEngine(), opts...)
}

func codes(res *ProposeResult) []string {
	out := make([]string, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		out = append(out, c.Code)
	}
	return out
}

// =========== Scoring ===========

func TestScoreOperation(t *testing.T) {
	diag := rules.Mutations{rules.Set{Target: rules.FieldQualifier, Value: rules.QualifierDiagnostic}}
	hint := rules.Mutations{rules.Set{Target: rules.FieldRootOperationHint, Value: "Occlusion"}}
	priority := &checklist.Constraints{RootOpPriority: []string{"Excision", "Extraction", "Drainage", "", "Bypass", "Insertion", "Repair"}}

	tests := []struct {
		name string
		op   string
		muts rules.Mutations
		cl   *checklist.Constraints
		want int
	}{
		{"nothing applies", "Excision", nil, nil, 0},
		{"diagnostic on excision", "Excision", diag, nil, 10},
		{"diagnostic on drainage", "Drainage", diag, nil, 10},
		{"diagnostic elsewhere", "Inspection", diag, nil, 0},
		{"root hint", "Occlusion", hint, nil, 8},
		{"first priority", "Excision", nil, priority, 5},
		{"third priority", "Drainage", nil, priority, 3},
		{"priority floor", "Insertion", nil, priority, 1},
		{"diagnostic and priority", "Extraction", diag, priority, 14},
		{"note carries no weight", "Excision", rules.Mutations{rules.Note{Target: rules.FieldRootOpPriority, Values: []string{"Excision"}}}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreOperation(tt.op, tt.muts, tt.cl); got != tt.want {
				t.Errorf("scoreOperation(%q) = %d, want %d", tt.op, got, tt.want)
			}
		})
	}
}

func TestRankPrefixes_TieBreak(t *testing.T) {
	scored := []ScoredPrefix{
		{Prefix: "0H9", Score: 10, OperationLabel: "Drainage"},
		{Prefix: "0HB", Score: 10, OperationLabel: "Excision"},
		{Prefix: "0JB", Score: 0, OperationLabel: "Excision"},
		{Prefix: "0J9", Score: 12, OperationLabel: "Drainage"},
	}
	rankPrefixes(scored)

	var got []string
	for _, s := range scored {
		got = append(got, s.Prefix)
	}
	want := []string{"0J9", "0HB", "0H9", "0JB"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// =========== ProposeCodes ===========

func TestProposeCodes_Biopsy(t *testing.T) {
	nav := newTestNavigator()
	facts := rules.Facts{Flags: []string{rules.FlagBiopsy}}

	res := nav.ProposeCodes(context.Background(), "biopsy", facts, 25)

	if want := []string{"0HB", "0H9"}; !reflect.DeepEqual(res.PrefixesConsidered, want) {
		t.Errorf("prefixes = %v, want %v", res.PrefixesConsidered, want)
	}
	if want := []string{"0HB0XZX", "0HB1XZX", "0H90X0X", "0H90XZX"}; !reflect.DeepEqual(codes(res), want) {
		t.Errorf("codes = %v, want %v", codes(res), want)
	}
	if v, ok := res.Mutations.LastSet(rules.FieldQualifier); !ok || v != rules.QualifierDiagnostic {
		t.Errorf("expected qualifier mutation, got %v", res.Mutations)
	}
	first := res.Candidates[0]
	if first.Labels.Pos7 != "Diagnostic" || first.Labels.Operation != "Excision" {
		t.Errorf("unexpected labels %+v", first.Labels)
	}
	wantRationale := []string{"Qualifier matched 'Diagnostic'", "Operation prioritized as 'Excision'"}
	if !reflect.DeepEqual(first.Rationale, wantRationale) {
		t.Errorf("rationale = %v, want %v", first.Rationale, wantRationale)
	}
}

func TestProposeCodes_CandidatesAreSevenCharacters(t *testing.T) {
	res := newTestNavigator().ProposeCodes(context.Background(), "biopsy", rules.Facts{}, 100)
	if len(res.Candidates) != 8 {
		t.Fatalf("expected the full cross-product of 8 codes, got %d", len(res.Candidates))
	}
	for _, c := range res.Candidates {
		if len(c.Code) != 7 {
			t.Errorf("code %q is not 7 characters", c.Code)
		}
		if !slices.Contains(res.PrefixesConsidered, c.Code[:3]) {
			t.Errorf("code %q does not start with a considered prefix", c.Code)
		}
	}
}

func TestProposeCodes_Limit(t *testing.T) {
	nav := newTestNavigator()
	facts := rules.Facts{Flags: []string{rules.FlagBiopsy}}

	res := nav.ProposeCodes(context.Background(), "biopsy", facts, 1)
	if want := []string{"0HB0XZX"}; !reflect.DeepEqual(codes(res), want) {
		t.Errorf("codes = %v, want %v", codes(res), want)
	}
	if len(res.PrefixesConsidered) != 2 {
		t.Errorf("limit must not shrink prefixes considered, got %v", res.PrefixesConsidered)
	}
}

func TestProposeCodes_DefaultLimit(t *testing.T) {
	res := newTestNavigator().ProposeCodes(context.Background(), "biopsy", rules.Facts{}, 0)
	if len(res.Candidates) != 8 {
		t.Errorf("expected non-positive limit to fall back to the default, got %d candidates", len(res.Candidates))
	}
}

func TestProposeCodes_EmptyQuery(t *testing.T) {
	facts := rules.Facts{Flags: []string{rules.FlagBiopsy}}
	res := newTestNavigator().ProposeCodes(context.Background(), "", facts, 25)

	if len(res.PrefixesConsidered) != 0 || len(res.Candidates) != 0 {
		t.Errorf("expected no prefixes or candidates, got %v / %v", res.PrefixesConsidered, res.Candidates)
	}
	if res.Candidates == nil {
		t.Error("candidates must be an empty list, not nil")
	}
	if len(res.Mutations) != 1 {
		t.Errorf("expected only the rule mutations, got %v", res.Mutations)
	}
}

func TestProposeCodes_KeepsTopTenPrefixes(t *testing.T) {
	ops := []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "B", "C", "D", "F"}
	var (
		leaves []pcsindex.Leaf
		tables []*pcstables.Table
	)
	for _, op := range ops {
		leaves = append(leaves, pcsindex.Leaf{Kind: pcsindex.KindTable, Value: "0H" + op})
		tables = append(tables, &pcstables.Table{
			Section: "0", BodySystem: "H", Operation: op, OperationLabel: "Operation " + op,
			Rows: []pcstables.TableRow{{
				BodyPart:  axis("Body Part", "0", "Skin, Scalp"),
				Approach:  axis("Approach", "X", "External"),
				Device:    axis("Device", "Z", "No Device"),
				Qualifier: axis("Qualifier", "Z", "No Qualifier"),
			}},
		})
	}
	index := pcsindex.NewIndex([]*pcsindex.Node{{Title: "Skin", Leaves: leaves}})
	nav := New(index, pcstables.NewStore(tables), nil)

	res := nav.ProposeCodes(context.Background(), "skin", rules.Facts{}, 200)

	want := []string{"0HF", "0HD", "0HC", "0HB", "0H9", "0H8", "0H7", "0H6", "0H5", "0H4"}
	if !reflect.DeepEqual(res.PrefixesConsidered, want) {
		t.Fatalf("prefixes = %v, want %v", res.PrefixesConsidered, want)
	}
	if len(res.Candidates) != len(want) {
		t.Errorf("expected one candidate per kept prefix, got %v", codes(res))
	}
	for _, c := range res.Candidates {
		if !slices.Contains(want, c.Code[:3]) {
			t.Errorf("candidate %s comes from a prefix past the cap", c.Code)
		}
	}
}

func TestProposeCodes_PrefixWithoutTableSkipped(t *testing.T) {
	res := newTestNavigator().ProposeCodes(context.Background(), "inspection", rules.Facts{}, 25)
	if len(res.PrefixesConsidered) != 0 || len(res.Candidates) != 0 {
		t.Errorf("expected 0HJ to be dropped for lack of a table, got %v", res.PrefixesConsidered)
	}
}

func TestProposeCodes_RemovedAtEnd(t *testing.T) {
	facts := rules.Facts{Flags: []string{rules.FlagRemovedAtEnd}}
	res := newTestNavigator().ProposeCodes(context.Background(), "biopsy", facts, 100)

	if len(res.Candidates) == 0 {
		t.Fatal("expected candidates")
	}
	for _, c := range res.Candidates {
		if c.Labels.Pos6 != "No Device" {
			t.Errorf("code %s kept device %q", c.Code, c.Labels.Pos6)
		}
		if !slices.Contains(c.Rationale, "Device forced to 'No Device' by rule") {
			t.Errorf("code %s missing forced-device rationale: %v", c.Code, c.Rationale)
		}
	}
}

func TestProposeCodes_ChecklistAllowList(t *testing.T) {
	facts := rules.Facts{Checklist: &checklist.Constraints{
		AllowedPos4Labels: []string{"skin, face"},
		RootOpPriority:    []string{"Drainage", "Excision"},
	}}
	res := newTestNavigator().ProposeCodes(context.Background(), "biopsy", facts, 100)

	if want := []string{"0HB1XZX", "0HB1XZZ"}; !reflect.DeepEqual(codes(res), want) {
		t.Errorf("codes = %v, want %v", codes(res), want)
	}
	if want := []string{"0H9", "0HB"}; !reflect.DeepEqual(res.PrefixesConsidered, want) {
		t.Errorf("expected priority to rank drainage first, got %v", res.PrefixesConsidered)
	}
	if len(res.Mutations.SetValues(rules.FieldQualifier)) != 0 || len(res.Mutations) != 1 {
		t.Errorf("expected a single priority note, got %v", res.Mutations)
	}
}

func TestProposeCodes_Approach(t *testing.T) {
	nav := newTestNavigator()

	res := nav.ProposeCodes(context.Background(), "biopsy", rules.Facts{ApproachName: "Open"}, 100)
	if len(res.Candidates) != 0 {
		t.Errorf("expected no external rows to survive an open approach, got %v", codes(res))
	}

	facts := rules.Facts{Checklist: &checklist.Constraints{ApproachRequired: "Percutaneous"}}
	res = nav.ProposeCodes(context.Background(), "biopsy", facts, 100)
	if len(res.Candidates) != 0 {
		t.Errorf("expected required approach to filter every row, got %v", codes(res))
	}

	res = nav.ProposeCodes(context.Background(), "biopsy", rules.Facts{ApproachName: "external"}, 1)
	if !slices.Contains(res.Candidates[0].Rationale, "Approach matched 'external'") {
		t.Errorf("missing approach rationale: %v", res.Candidates[0].Rationale)
	}
}

func TestProposeCodes_DeviceWithoutResolver(t *testing.T) {
	res := newTestNavigator().ProposeCodes(context.Background(), "biopsy", rules.Facts{DeviceName: "drainage"}, 100)
	if want := []string{"0H90X0X", "0H90X0Z"}; !reflect.DeepEqual(codes(res), want) {
		t.Errorf("codes = %v, want %v", codes(res), want)
	}
	if !slices.Contains(res.Candidates[0].Rationale, "Simple device match to 'drainage' (no resolver)") {
		t.Errorf("unexpected rationale %v", res.Candidates[0].Rationale)
	}
}

func TestProposeCodes_DeviceResolver(t *testing.T) {
	devices := resolver.NewDeviceResolver(map[string][]string{"jp drain": {"Drainage Device"}}, nil)

	without := newTestNavigator().ProposeCodes(context.Background(), "biopsy", rules.Facts{DeviceName: "JP drain"}, 100)
	if len(without.Candidates) != 0 {
		t.Errorf("expected no raw match for a synonym, got %v", codes(without))
	}

	res := newTestNavigator(WithDeviceResolver(devices)).
		ProposeCodes(context.Background(), "biopsy", rules.Facts{DeviceName: "JP drain"}, 100)
	if want := []string{"0H90X0X", "0H90X0Z"}; !reflect.DeepEqual(codes(res), want) {
		t.Errorf("codes = %v, want %v", codes(res), want)
	}
	want := "Device matched via key/aggregation: 'JP drain' → drainage device"
	if !slices.Contains(res.Candidates[0].Rationale, want) {
		t.Errorf("rationale %v missing %q", res.Candidates[0].Rationale, want)
	}
}

func TestProposeCodes_BodyPartResolver(t *testing.T) {
	bodyParts := resolver.NewBodyPartResolver(map[string][]string{"scalp": {"Skin, Scalp"}})
	nav := newTestNavigator(WithBodyPartResolver(bodyParts))

	res := nav.ProposeCodes(context.Background(), "biopsy", rules.Facts{AnatomyTerms: []string{"Scalp"}}, 100)
	for _, c := range res.Candidates {
		if c.Labels.Pos4 != "Skin, Scalp" {
			t.Errorf("code %s kept body part %q", c.Code, c.Labels.Pos4)
		}
	}
	if len(res.Candidates) != 6 {
		t.Errorf("expected 6 scalp candidates, got %d", len(res.Candidates))
	}
	if got := res.Candidates[0].Rationale[0]; got != "Body part matched via key: Scalp → skin, scalp" {
		t.Errorf("unexpected rationale %q", got)
	}

	unmapped := nav.ProposeCodes(context.Background(), "biopsy", rules.Facts{AnatomyTerms: []string{"elbow"}}, 100)
	if len(unmapped.Candidates) != 8 {
		t.Errorf("expected unmapped anatomy terms to leave body parts unfiltered, got %d", len(unmapped.Candidates))
	}
}

func TestProposeCodes_BodyPartFallsBackToIndexQuery(t *testing.T) {
	bodyParts := resolver.NewBodyPartResolver(map[string][]string{"biopsy": {"Face"}})
	res := newTestNavigator(WithBodyPartResolver(bodyParts)).
		ProposeCodes(context.Background(), "biopsy", rules.Facts{IndexQuery: "biopsy"}, 100)
	if want := []string{"0HB1XZX", "0HB1XZZ"}; !reflect.DeepEqual(codes(res), want) {
		t.Errorf("codes = %v, want %v", codes(res), want)
	}
}

func TestProposeCodes_Idempotent(t *testing.T) {
	nav := newTestNavigator()
	facts := rules.Facts{Flags: []string{rules.FlagBiopsy}, ApproachName: "External"}

	a := nav.ProposeCodes(context.Background(), "biopsy", facts, 25)
	b := nav.ProposeCodes(context.Background(), "biopsy", facts, 25)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected identical results, got\n%+v\n%+v", a, b)
	}
}

func TestCandidates_StopsEarly(t *testing.T) {
	nav := newTestNavigator()
	plan := nav.Plan("biopsy", rules.Facts{})

	n := 0
	for c := range nav.Candidates(plan) {
		n++
		if !strings.HasPrefix(c.Code, "0HB") {
			t.Errorf("expected the first prefix to be expanded first, got %s", c.Code)
		}
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("expected to stop after 3, got %d", n)
	}
}
