package storage

import (
	"fmt"
	"strings"
)

// ColumnType is a portable column type; each backend maps it to its dialect.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeTimestamp ColumnType = "timestamp"
)

// ColumnSpec describes one column of a rate table.
type ColumnSpec struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// TableSpec describes a table the export stage writes to.
//
// Unique lists the columns of the single UNIQUE constraint used for
// idempotent loads (normally just row_hash).
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
	Unique  []string
}

// Validate checks that the spec is usable for DDL generation.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("storage: table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("storage: table %s has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		n := strings.ToLower(strings.TrimSpace(c.Name))
		if n == "" {
			return fmt.Errorf("storage: table %s has a column with empty name", t.Name)
		}
		if seen[n] {
			return fmt.Errorf("storage: table %s has duplicate column %q", t.Name, c.Name)
		}
		seen[n] = true
		switch c.Type {
		case TypeText, TypeTimestamp:
		default:
			return fmt.Errorf("storage: table %s column %s has unsupported type %q", t.Name, c.Name, c.Type)
		}
	}
	for _, u := range t.Unique {
		if !seen[strings.ToLower(u)] {
			return fmt.Errorf("storage: table %s unique column %q is not defined", t.Name, u)
		}
	}
	return nil
}

// ColumnNames returns the column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}
