// Package tariff turns the loosely structured rows of an extracted rate-sheet
// table into typed passenger (VP) and utility (VU) vehicle records.
//
// Parsing is pure: no I/O, no shared state, and the same table always yields
// the same records in the same order. Rows that are headers, noise or lack a
// valid category code are dropped silently; rows that run out of amounts are
// kept with empty trailing fields.
package tariff

// Stats describes what happened to the rows of one table.
type Stats struct {
	Rows        int // raw rows seen
	Empty       int // rows with no tokens after cleaning
	Headers     int // rows rejected by the header filter
	BadCategory int // rows whose leading token is not a category code
	Emitted     int // records produced
	Degraded    int // emitted records with at least one empty amount
}

// Dropped is the number of rows that produced no record.
func (s Stats) Dropped() int { return s.Empty + s.Headers + s.BadCategory }

// ParseVP parses a passenger-vehicle table.
func ParseVP(t Table) []VPRecord {
	recs, _ := ParseVPStats(t)
	return recs
}

// ParseVU parses a utility-vehicle table.
func ParseVU(t Table) []VURecord {
	recs, _ := ParseVUStats(t)
	return recs
}

// ParseVPStats is ParseVP plus per-row accounting.
func ParseVPStats(t Table) ([]VPRecord, Stats) {
	out := make([]VPRecord, 0, len(t))
	st := scanTable(t, VP, func(category string, r scannedRow) {
		f := r.fields
		out = append(out, VPRecord{
			Category:      category,
			Model:         r.model,
			DailyRate:     f[0],
			MaxDeductible: f[1],
			CDW:           f[2],
			TP:            f[3],
			ReducedCDW:    f[4],
			ReducedTP:     f[5],
			SuperCover:    f[6],
		})
	})
	return out, st
}

// ParseVUStats is ParseVU plus per-row accounting.
func ParseVUStats(t Table) ([]VURecord, Stats) {
	out := make([]VURecord, 0, len(t))
	st := scanTable(t, VU, func(category string, r scannedRow) {
		f := r.fields
		out = append(out, VURecord{
			Category:         category,
			Model:            r.model,
			Volume:           r.volume,
			DailyRate:        f[0],
			ExtraKm:          f[1],
			ReducedCDW:       f[2],
			ReducedTP:        f[3],
			SuperCover:       f[4],
			TopPartGuarantee: f[5],
		})
	})
	return out, st
}

// scannedRow is what the cursor components extract from one qualifying row.
type scannedRow struct {
	model  string
	volume string
	fields []string
	filled int
}

// scanRow runs the model accumulator, the volume parser when the schema has a
// volume column, and the field sequencer over c.
func scanRow(c *cursor) scannedRow {
	var r scannedRow
	r.model = c.accumulateModel()
	if c.schema.Volume {
		r.volume = c.scanVolume()
	}
	r.fields, r.filled = c.sequenceFields(c.schema.Fields)
	return r
}

// scanTable runs cleaning, filtering and category extraction for every row and
// hands the scanned form of each qualifying row to emit.
func scanTable(t Table, s Schema, emit func(category string, r scannedRow)) Stats {
	var st Stats
	filter := newRowFilter(s)

	for _, raw := range t {
		st.Rows++

		toks := Clean(raw)
		if len(toks) == 0 {
			st.Empty++
			continue
		}
		if filter.reject(toks) {
			st.Headers++
			continue
		}
		if !s.MatchCategory(toks[0]) {
			st.BadCategory++
			continue
		}

		r := scanRow(newCursor(toks, s))
		emit(toks[0], r)
		if r.filled < s.Fields {
			st.Degraded++
		}
		st.Emitted++
	}
	return st
}
