package query

// Batching limits.
const (
	// DefaultMaxBatchSize is the maximum number of values a single variable
	// may carry in one request before the query is split.
	DefaultMaxBatchSize = 50

	// MaxQueryLength is the practical limit for the serialized query string.
	// Longer queries risk exceeding the server's URL length limit and are
	// split even when every variable is within DefaultMaxBatchSize.
	MaxQueryLength = 1800
)

// Plan is an ordered sequence of sub-queries that together are equivalent to
// one logical query. The union of the split variable's value chunks equals
// the original value set with no duplication; every other filter is copied
// verbatim into each sub-query.
type Plan struct {
	// Queries are the sub-queries, in execution order.
	Queries []Query

	// SplitVariable is the variable that was partitioned, or "" for a
	// single-query plan.
	SplitVariable string

	// TotalBatches is len(Queries).
	TotalBatches int
}

// SingleBatch reports whether the plan needs no merging.
func (p Plan) SingleBatch() bool {
	return p.TotalBatches <= 1
}

// NeedsBatching reports whether a query must be split: some variable holds
// more than maxBatchSize values, or the serialized query exceeds
// MaxQueryLength. Queries containing the unresolved All sentinel must be
// resolved first; the sentinel counts as a single value here.
func NeedsBatching(q Query, maxBatchSize int) bool {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	for _, f := range q.Filters {
		if len(f.Values) > maxBatchSize {
			return true
		}
	}
	return len(q.String()) > MaxQueryLength
}

// PlanBatches partitions a query into sub-queries that each respect
// maxBatchSize. It is pure and deterministic: the same query always yields
// an identical plan.
//
// Only the variable with the most values is split (ties go to the first in
// query order); its values are chunked consecutively, preserving order. A
// second oversized variable is left unsplit, so a query with two independently
// huge variables can still produce sub-queries over the transport limit.
func PlanBatches(q Query, maxBatchSize int) Plan {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}

	if !NeedsBatching(q, maxBatchSize) {
		return Plan{Queries: []Query{q.Clone()}, TotalBatches: 1}
	}

	split := largestFilter(q)
	if split == "" {
		// Over MaxQueryLength but no multi-value variable to split on.
		return Plan{Queries: []Query{q.Clone()}, TotalBatches: 1}
	}

	var values []string
	for _, f := range q.Filters {
		if f.Name == split {
			values = f.Values
			break
		}
	}

	var queries []Query
	for start := 0; start < len(values); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(values) {
			end = len(values)
		}
		queries = append(queries, q.WithValues(split, values[start:end]))
	}

	return Plan{
		Queries:       queries,
		SplitVariable: split,
		TotalBatches:  len(queries),
	}
}

// largestFilter returns the name of the filter with the most values,
// first-in-order on ties. Returns "" when no filter has more than one value.
func largestFilter(q Query) string {
	name := ""
	max := 1
	for _, f := range q.Filters {
		if len(f.Values) > max {
			name = f.Name
			max = len(f.Values)
		}
	}
	return name
}
