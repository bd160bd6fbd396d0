package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ratesheet/internal/storage"
)

// VPColumns and VUColumns are the database column names, aligned with
// tariff.VPHeaders and tariff.VUHeaders.
var (
	VPColumns = []string{
		"category", "model", "daily_rate", "max_deductible",
		"cdw", "tp", "reduced_cdw", "reduced_tp", "super_cover",
	}
	VUColumns = []string{
		"category", "model", "volume", "daily_rate", "extra_km",
		"reduced_cdw", "reduced_tp", "super_cover", "top_part_guarantee",
	}
)

// Bookkeeping columns added in front of the data columns.
const (
	ColRowHash  = "row_hash"
	ColRunID    = "run_id"
	ColSource   = "source"
	ColLoadedAt = "loaded_at"
)

// TableSpecFor returns the table layout for a schema with the given data
// columns. row_hash is the only unique key.
func TableSpecFor(name string, dataColumns []string) storage.TableSpec {
	cols := []storage.ColumnSpec{
		{Name: ColRowHash, Type: storage.TypeText},
		{Name: ColRunID, Type: storage.TypeText},
		{Name: ColSource, Type: storage.TypeText, Nullable: true},
		{Name: ColLoadedAt, Type: storage.TypeTimestamp},
	}
	for _, c := range dataColumns {
		cols = append(cols, storage.ColumnSpec{Name: c, Type: storage.TypeText, Nullable: true})
	}
	return storage.TableSpec{Name: name, Columns: cols, Unique: []string{ColRowHash}}
}

// RowHash is a lowercase hex SHA-256 over "column=value" pairs joined by the
// ASCII unit separator. Values are trimmed. Identical rate lines hash the same
// across runs, which makes reloads idempotent.
func RowHash(columns, values []string) string {
	var b strings.Builder
	b.Grow(len(columns) * 24)
	for i, c := range columns {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(c)
		b.WriteByte('=')
		if i < len(values) {
			b.WriteString(strings.TrimSpace(values[i]))
		} else {
			b.WriteByte('\x00')
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// SQLSink loads rows into a storage.Repository. One sink is one run: every
// row it writes carries the same run_id and loaded_at.
type SQLSink struct {
	repo   storage.Repository
	runID  string
	source string
	now    func() time.Time
}

// NewSQLSink returns a sink tagging rows with a fresh run ID and source.
func NewSQLSink(repo storage.Repository, source string) *SQLSink {
	return &SQLSink{
		repo:   repo,
		runID:  uuid.NewString(),
		source: source,
		now:    time.Now,
	}
}

// RunID is the identifier stored in every row's run_id column.
func (s *SQLSink) RunID() string { return s.runID }

// Load creates table if needed and inserts rows. Rows already present (same
// row_hash) are skipped. It returns the number of rows inserted.
func (s *SQLSink) Load(ctx context.Context, table string, dataColumns []string, rows [][]string) (int64, error) {
	spec := TableSpecFor(table, dataColumns)
	if err := s.repo.EnsureTable(ctx, spec); err != nil {
		return 0, fmt.Errorf("export sql: ensure %s: %w", table, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	loadedAt := s.now().UTC()
	columns := spec.ColumnNames()
	out := make([][]any, 0, len(rows))
	for i, row := range rows {
		if len(row) != len(dataColumns) {
			return 0, fmt.Errorf("export sql: %s row %d has %d values, want %d", table, i, len(row), len(dataColumns))
		}
		vals := make([]any, 0, len(columns))
		vals = append(vals, RowHash(dataColumns, row), s.runID, nullIfEmpty(s.source), loadedAt)
		for _, v := range row {
			vals = append(vals, nullIfEmpty(v))
		}
		out = append(out, vals)
	}

	n, err := s.repo.InsertRows(ctx, table, columns, out, []string{ColRowHash})
	if err != nil {
		return n, fmt.Errorf("export sql: insert %s: %w", table, err)
	}
	return n, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
