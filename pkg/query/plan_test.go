package query

import (
	"fmt"
	"reflect"
	"strconv"
	"testing"
)

func years(from, to int) []string {
	var vals []string
	for y := from; y <= to; y++ {
		vals = append(vals, strconv.Itoa(y))
	}
	return vals
}

func TestNeedsBatching(t *testing.T) {
	tests := []struct {
		name     string
		query    Query
		maxBatch int
		expected bool
	}{
		{
			name: "small query",
			query: New("t10026",
				Var("ar", "2020", "2021"),
				Var("reglan", "01", "03"),
				Measure("nyregunder"),
			),
			maxBatch: 5,
			expected: false,
		},
		{
			name: "one variable over the limit",
			query: New("t10026",
				Var("ar", years(2020, 2025)...),
				Var("reglan", "01"),
				Measure("nyregunder"),
			),
			maxBatch: 5,
			expected: true,
		},
		{
			name: "exactly at the limit",
			query: New("t10026",
				Var("ar", years(2020, 2024)...),
				Measure("nyregunder"),
			),
			maxBatch: 5,
			expected: false,
		},
		{
			name:     "empty query",
			query:    New("t10026"),
			maxBatch: 5,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsBatching(tt.query, tt.maxBatch); got != tt.expected {
				t.Errorf("NeedsBatching() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNeedsBatchingQueryLength(t *testing.T) {
	// Few values per variable, but enough long values to push the serialized
	// query over MaxQueryLength.
	var filters []Filter
	for i := 0; i < 50; i++ {
		filters = append(filters, Var(fmt.Sprintf("var%02d", i), "longvaluename0001", "longvaluename0002"))
	}
	q := New("t10026", filters...)

	if len(q.String()) <= MaxQueryLength {
		t.Fatalf("test query too short: %d", len(q.String()))
	}
	if !NeedsBatching(q, 50) {
		t.Error("NeedsBatching() = false for over-length query, want true")
	}
}

func TestPlanBatchesSingleVariable(t *testing.T) {
	q := New("t10026",
		Var("ar", years(2020, 2027)...), // 8 values
		Var("reglan", "01"),
		Measure("nyregunder"),
	)

	plan := PlanBatches(q, 5)

	if plan.TotalBatches != 2 {
		t.Fatalf("TotalBatches = %d, want 2", plan.TotalBatches)
	}
	if plan.SplitVariable != "ar" {
		t.Errorf("SplitVariable = %q, want %q", plan.SplitVariable, "ar")
	}

	want0 := "t10026|ar:2020,2021,2022,2023,2024|reglan:01|nyregunder"
	want1 := "t10026|ar:2025,2026,2027|reglan:01|nyregunder"
	if got := plan.Queries[0].String(); got != want0 {
		t.Errorf("Queries[0] = %q, want %q", got, want0)
	}
	if got := plan.Queries[1].String(); got != want1 {
		t.Errorf("Queries[1] = %q, want %q", got, want1)
	}
}

func TestPlanBatchesSplitsLargestVariable(t *testing.T) {
	q := New("t10026",
		Var("ar", years(2020, 2025)...),                                    // 6 values
		Var("reglan", "01", "02", "03", "04", "05", "06", "07", "08"), // 8 values
		Measure("nyregunder"),
	)

	plan := PlanBatches(q, 5)

	if plan.SplitVariable != "reglan" {
		t.Fatalf("SplitVariable = %q, want reglan", plan.SplitVariable)
	}
	if plan.TotalBatches != 2 {
		t.Fatalf("TotalBatches = %d, want 2", plan.TotalBatches)
	}

	// The year variable is copied unchanged into every sub-query.
	for i, sub := range plan.Queries {
		if !reflect.DeepEqual(sub.Filters[0].Values, years(2020, 2025)) {
			t.Errorf("batch %d: ar values changed: %v", i, sub.Filters[0].Values)
		}
	}

	if !reflect.DeepEqual(plan.Queries[0].Filters[1].Values, []string{"01", "02", "03", "04", "05"}) {
		t.Errorf("batch 0 reglan = %v", plan.Queries[0].Filters[1].Values)
	}
	if !reflect.DeepEqual(plan.Queries[1].Filters[1].Values, []string{"06", "07", "08"}) {
		t.Errorf("batch 1 reglan = %v", plan.Queries[1].Filters[1].Values)
	}
}

func TestPlanBatchesTieBreakFirstInOrder(t *testing.T) {
	q := New("t10026",
		Var("ar", years(2020, 2025)...),     // 6 values
		Var("reglan", years(2020, 2025)...), // also 6 values
	)

	plan := PlanBatches(q, 5)

	if plan.SplitVariable != "ar" {
		t.Errorf("SplitVariable = %q, want first variable on tie", plan.SplitVariable)
	}
}

func TestPlanBatchesNoBatchingNeeded(t *testing.T) {
	q := New("t10026",
		Var("ar", "2020", "2021"),
		Var("reglan", "01"),
		Measure("nyregunder"),
	)

	plan := PlanBatches(q, 5)

	if plan.TotalBatches != 1 {
		t.Fatalf("TotalBatches = %d, want 1", plan.TotalBatches)
	}
	if !plan.SingleBatch() {
		t.Error("SingleBatch() = false, want true")
	}
	if plan.SplitVariable != "" {
		t.Errorf("SplitVariable = %q, want empty", plan.SplitVariable)
	}
	if got := plan.Queries[0].String(); got != q.String() {
		t.Errorf("single-batch plan query = %q, want input %q", got, q.String())
	}
}

func TestPlanBatchesPartitionInvariant(t *testing.T) {
	// 120 values at max 50 must produce 3 chunks with no overlap and no gap.
	values := make([]string, 120)
	for i := range values {
		values[i] = fmt.Sprintf("v%03d", i)
	}
	q := New("t10026", Var("reglan", values...), Measure("nyregunder"))

	plan := PlanBatches(q, 50)

	if plan.TotalBatches != 3 {
		t.Fatalf("TotalBatches = %d, want 3", plan.TotalBatches)
	}

	var reassembled []string
	for _, sub := range plan.Queries {
		reassembled = append(reassembled, sub.Filters[0].Values...)
	}
	if !reflect.DeepEqual(reassembled, values) {
		t.Error("chunks do not reassemble into the original value set in order")
	}

	sizes := []int{len(plan.Queries[0].Filters[0].Values), len(plan.Queries[1].Filters[0].Values), len(plan.Queries[2].Filters[0].Values)}
	if !reflect.DeepEqual(sizes, []int{50, 50, 20}) {
		t.Errorf("chunk sizes = %v, want [50 50 20]", sizes)
	}
}

func TestPlanBatchesVeryLargeVariable(t *testing.T) {
	q := New("t10026", Var("ar", years(2000, 2029)...), Measure("nyregunder"))

	plan := PlanBatches(q, 5)

	if plan.TotalBatches != 6 {
		t.Fatalf("TotalBatches = %d, want 6", plan.TotalBatches)
	}

	seen := make(map[string]bool)
	for _, sub := range plan.Queries {
		for _, v := range sub.Filters[0].Values {
			if seen[v] {
				t.Errorf("value %q appears in more than one batch", v)
			}
			seen[v] = true
		}
	}
	if len(seen) != 30 {
		t.Errorf("batches cover %d values, want 30", len(seen))
	}
}

func TestPlanBatchesDeterministic(t *testing.T) {
	q := New("t10026",
		Var("ar", years(2000, 2029)...),
		Var("reglan", "01", "02"),
		Measure("nyregunder"),
	)

	a := PlanBatches(q, 7)
	b := PlanBatches(q, 7)

	if !reflect.DeepEqual(a, b) {
		t.Error("PlanBatches() is not deterministic for identical input")
	}
}

func TestPlanBatchesDoesNotAliasInput(t *testing.T) {
	q := New("t10026", Var("ar", years(2020, 2027)...))
	plan := PlanBatches(q, 5)

	plan.Queries[0].Filters[0].Values[0] = "mutated"
	if q.Filters[0].Values[0] != "2020" {
		t.Error("plan sub-query aliases the input query's values")
	}
}
