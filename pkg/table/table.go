// Package table provides the tabular result model for Trafikanalys data
// responses: conversion from the API's Rows/Cell JSON, concatenation of
// batched results, and duplicate-row removal.
package table

import (
	"sort"
	"strings"
)

// Row is a single data row, keyed by column name.
type Row map[string]string

// Table is an ordered collection of rows. Columns records the column names
// in first-seen order so output stays stable across merges.
type Table struct {
	Columns []string
	Rows    []Row
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return len(t.Rows) == 0
}

// AddRow appends a row, registering any new columns in first-seen order.
// Empty rows are ignored.
func (t *Table) AddRow(row Row) {
	if len(row) == 0 {
		return
	}
	for _, col := range rowColumns(row) {
		if !t.hasColumn(col) {
			t.Columns = append(t.Columns, col)
		}
	}
	t.Rows = append(t.Rows, row)
}

// Append concatenates another table's rows onto this one, unioning columns.
func (t *Table) Append(other *Table) {
	if other == nil {
		return
	}
	for _, col := range other.Columns {
		if !t.hasColumn(col) {
			t.Columns = append(t.Columns, col)
		}
	}
	t.Rows = append(t.Rows, other.Rows...)
}

// Dedup removes exact-duplicate rows, keeping the first occurrence. The
// dedup key is the full row tuple over the table's column set, so a value
// fetched twice near a chunk boundary collapses to one row.
func (t *Table) Dedup() {
	seen := make(map[string]struct{}, len(t.Rows))
	out := t.Rows[:0]
	for _, row := range t.Rows {
		key := t.rowKey(row)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, row)
	}
	t.Rows = out
}

// Column returns all values of a column in row order. Rows missing the
// column contribute an empty string.
func (t *Table) Column(name string) []string {
	vals := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		vals[i] = row[name]
	}
	return vals
}

// rowKey builds a canonical string for duplicate detection. Columns are
// visited in table order; 0x1f separates fields to avoid collisions from
// values containing separators.
func (t *Table) rowKey(row Row) string {
	var b strings.Builder
	for _, col := range t.Columns {
		b.WriteString(col)
		b.WriteByte(0x1e)
		b.WriteString(row[col])
		b.WriteByte(0x1f)
	}
	return b.String()
}

func (t *Table) hasColumn(name string) bool {
	for _, col := range t.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// rowColumns returns a row's column names in deterministic order.
func rowColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	// Map iteration order is unspecified; sort for stable column
	// registration when a row introduces several new columns at once.
	sort.Strings(cols)
	return cols
}
