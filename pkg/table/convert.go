package table

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// dataResponse mirrors the relevant parts of a /data response.
type dataResponse struct {
	Header struct {
		Column []headerColumn `json:"Column"`
	} `json:"Header"`
	Rows []dataRow `json:"Rows"`
}

type headerColumn struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
	Type  string `json:"Type"`
}

type dataRow struct {
	Cell cellList `json:"Cell"`
}

type cell struct {
	Column string `json:"Column"`
	Value  string `json:"Value"`
}

// cellList accepts both shapes the API emits: a JSON array of cells for
// multi-column rows, and a bare object when the row has a single cell.
type cellList []cell

func (c *cellList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single cell
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*c = cellList{single}
		return nil
	}
	var many []cell
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return err
	}
	*c = many
	return nil
}

// FromResponse converts a raw /data JSON response into a Table. A response
// without rows yields an empty table, not an error; malformed JSON fails.
func FromResponse(data []byte) (*Table, error) {
	var resp dataResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse data response: %w", err)
	}

	t := New()

	// Register header columns first so table order follows the API's
	// column order rather than row map order.
	for _, col := range resp.Header.Column {
		if col.Name != "" && !t.hasColumn(col.Name) {
			t.Columns = append(t.Columns, col.Name)
		}
	}

	for _, r := range resp.Rows {
		row := make(Row, len(r.Cell))
		for _, c := range r.Cell {
			if c.Column != "" {
				row[c.Column] = c.Value
			}
		}
		t.AddRow(row)
	}

	return t, nil
}
