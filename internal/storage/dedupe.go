package storage

import (
	"fmt"
	"strings"
)

// NormalizeKey converts a dedupe key value to a canonical string form.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// DedupeRows keeps the first row for each distinct dedupe key and preserves
// the order of first occurrences. Backends whose insert statement does not
// collapse duplicates inside one VALUES list (SQL Server) rely on it.
func DedupeRows(rows [][]any, columns []string, dedupeColumns []string) ([][]any, error) {
	if len(dedupeColumns) == 0 || len(rows) == 0 {
		return rows, nil
	}

	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i
	}
	idx := make([]int, len(dedupeColumns))
	for i, dc := range dedupeColumns {
		p, ok := pos[dc]
		if !ok {
			return nil, fmt.Errorf("storage: dedupe column %q not present in columns", dc)
		}
		idx[i] = p
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([][]any, 0, len(rows))
	var b strings.Builder
	for _, row := range rows {
		b.Reset()
		for i, p := range idx {
			if i > 0 {
				b.WriteByte('\x1f')
			}
			b.WriteString(NormalizeKey(row[p]))
		}
		k := b.String()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out, nil
}
