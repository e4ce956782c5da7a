// Package query models Trafikanalys data queries and plans how oversized
// queries are split into API-compliant batches.
//
// A query selects a product and an ordered list of variable filters. The
// wire format is pipe-delimited: "t10026|ar:2020,2021|reglan:01|nyregunder".
// Variable order is preserved because it determines wire-format order.
package query

import "strings"

// All is the sentinel filter value meaning "every available value for this
// variable". It must be resolved to the full value set (see
// client.ResolveQuery) before a query is planned or sent.
const All = "all"

// Filter is a single variable selection within a query.
// An empty Values slice means the variable is included without a filter
// (typical for measures).
type Filter struct {
	Name   string
	Values []string
}

// IsAll reports whether the filter carries the unresolved All sentinel.
func (f Filter) IsAll() bool {
	return len(f.Values) == 1 && f.Values[0] == All
}

// Query is a logical data request: a product code plus ordered filters.
type Query struct {
	Product string
	Filters []Filter
}

// New creates a query for a product with the given filters.
func New(product string, filters ...Filter) Query {
	return Query{Product: product, Filters: filters}
}

// Var returns a filter selecting specific values for a variable.
func Var(name string, values ...string) Filter {
	return Filter{Name: name, Values: values}
}

// Measure returns a filter that includes a variable without constraining it.
func Measure(name string) Filter {
	return Filter{Name: name}
}

// String renders the query in the API wire format:
// product|var:v1,v2|measure. Rendering is deterministic: filters appear in
// declaration order, values in the order given.
func (q Query) String() string {
	parts := make([]string, 0, len(q.Filters)+1)
	parts = append(parts, q.Product)
	for _, f := range q.Filters {
		if len(f.Values) > 0 {
			parts = append(parts, f.Name+":"+strings.Join(f.Values, ","))
		} else {
			parts = append(parts, f.Name)
		}
	}
	return strings.Join(parts, "|")
}

// Clone returns a deep copy of the query. Sub-queries produced by the
// planner must not alias the original's value slices.
func (q Query) Clone() Query {
	out := Query{Product: q.Product, Filters: make([]Filter, len(q.Filters))}
	for i, f := range q.Filters {
		vals := make([]string, len(f.Values))
		copy(vals, f.Values)
		out.Filters[i] = Filter{Name: f.Name, Values: vals}
	}
	return out
}

// WithValues returns a copy of the query with the named filter's values
// replaced. Filters other than name are copied unchanged.
func (q Query) WithValues(name string, values []string) Query {
	out := q.Clone()
	for i := range out.Filters {
		if out.Filters[i].Name == name {
			vals := make([]string, len(values))
			copy(vals, values)
			out.Filters[i].Values = vals
		}
	}
	return out
}

// HasAll reports whether any filter still carries the All sentinel.
func (q Query) HasAll() bool {
	for _, f := range q.Filters {
		if f.IsAll() {
			return true
		}
	}
	return false
}
