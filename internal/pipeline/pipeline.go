// Package pipeline runs one rate-sheet conversion end to end:
// acquire -> extract -> select -> parse -> export.
//
// Every stage is logged as a "stage=<name> ..." line and recorded through the
// metrics package. Collaborators are interfaces so tests can swap them.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"ratesheet/internal/config"
	"ratesheet/internal/export"
	"ratesheet/internal/fetch"
	"ratesheet/internal/metrics"
	"ratesheet/internal/source"
	"ratesheet/internal/storage"
	"ratesheet/internal/tariff"
)

// Logger is the minimal logging seam used by this package.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Fetcher downloads a URL. *fetch.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Result, error)
}

// Extractor turns an input into tables. source.Set implements it.
type Extractor interface {
	Extract(ctx context.Context, in source.Input, f source.Format) (tariff.Document, error)
}

// Runner wires the stages together. Fetcher is only needed when the config
// names a URL; Repo is only used when storage is configured.
type Runner struct {
	Config    config.Pipeline
	Fetcher   Fetcher
	Extractor Extractor
	Repo      storage.Repository
	Log       Logger
}

// Result summarizes a run.
type Result struct {
	Source string
	Format string
	Tables int

	VP      []tariff.VPRecord
	VU      []tariff.VURecord
	VPStats tariff.Stats
	VUStats tariff.Stats

	Files      []string
	RunID      string
	VPInserted int64
	VUInserted int64
}

// Run executes the pipeline. A document without the configured tables fails
// with an error wrapping tariff.ErrMalformedDocument; a well-formed document
// that yields no rows is not an error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	log := r.Log
	if log == nil {
		log = nopLogger{}
	}
	var res Result

	var in source.Input
	if err := r.step(log, "acquire", func() error {
		var err error
		in, err = r.acquire(ctx)
		return err
	}); err != nil {
		return res, err
	}
	res.Source = in.Name

	format, err := source.ParseFormat(r.Config.Source.Format)
	if err != nil {
		return res, fmt.Errorf("extract: %w", err)
	}
	var doc tariff.Document
	if err := r.step(log, "extract", func() error {
		var err error
		doc, err = r.Extractor.Extract(ctx, in, format)
		return err
	}); err != nil {
		return res, fmt.Errorf("extract: %w", err)
	}
	res.Format = doc.Format
	res.Tables = len(doc.Tables)
	log.Printf("stage=extract source=%s format=%s tables=%d", res.Source, res.Format, res.Tables)

	var vpTable, vuTable tariff.Table
	if err := r.step(log, "select", func() error {
		var err error
		vpTable, vuTable, err = tariff.Select(doc, r.Config.Tables)
		return err
	}); err != nil {
		return res, fmt.Errorf("select: %w", err)
	}

	if err := r.step(log, "parse", func() error {
		var g errgroup.Group
		g.Go(func() error {
			res.VP, res.VPStats = tariff.ParseVPStats(vpTable)
			return nil
		})
		g.Go(func() error {
			res.VU, res.VUStats = tariff.ParseVUStats(vuTable)
			return nil
		})
		return g.Wait()
	}); err != nil {
		return res, fmt.Errorf("parse: %w", err)
	}
	reportParse(log, "vp", res.VPStats)
	reportParse(log, "vu", res.VUStats)

	if err := r.step(log, "export", func() error {
		return r.export(ctx, log, &res)
	}); err != nil {
		return res, err
	}
	return res, nil
}

// step times fn and records it under name.
func (r *Runner) step(log Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	metrics.RecordStep(name, err, d)
	if err != nil {
		log.Printf("stage=%s status=error duration=%s err=%v", name, d.Truncate(time.Millisecond), err)
	}
	return err
}

func (r *Runner) acquire(ctx context.Context) (source.Input, error) {
	src := r.Config.Source
	if src.File != "" {
		return source.Input{Name: src.File, Path: src.File}, nil
	}
	if src.URL == "" {
		return source.Input{}, fmt.Errorf("acquire: no source url or file")
	}
	if r.Fetcher == nil {
		return source.Input{}, fmt.Errorf("acquire: no fetcher for %s", src.URL)
	}
	got, err := r.Fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return source.Input{}, fmt.Errorf("acquire: %w", err)
	}
	return source.Input{Name: src.URL, Data: got.Body}, nil
}

func reportParse(log Logger, schema string, st tariff.Stats) {
	log.Printf("stage=parse schema=%s rows=%d emitted=%d dropped=%d degraded=%d",
		schema, st.Rows, st.Emitted, st.Dropped(), st.Degraded)
	metrics.RecordRows(schema, "emitted", st.Emitted)
	metrics.RecordRows(schema, "dropped", st.Dropped())
	metrics.RecordRows(schema, "degraded", st.Degraded)
	if st.Emitted == 0 {
		log.Printf("stage=parse schema=%s warning=no rows emitted", schema)
	}
}

// export writes the CSV files and the workbook concurrently, then loads the
// database. The CSV and XLSX outputs never depend on the database load.
func (r *Runner) export(ctx context.Context, log Logger, res *Result) error {
	out := r.Config.Output
	vpRows := tariff.Rows(res.VP)
	vuRows := tariff.Rows(res.VU)

	var files []string
	var g errgroup.Group
	if out.CSVDir != "" {
		vpPath := filepath.Join(out.CSVDir, out.VPFile)
		vuPath := filepath.Join(out.CSVDir, out.VUFile)
		files = append(files, vpPath, vuPath)
		g.Go(func() error { return export.WriteCSVFile(vpPath, tariff.VPHeaders, vpRows) })
		g.Go(func() error { return export.WriteCSVFile(vuPath, tariff.VUHeaders, vuRows) })
	}
	if out.XLSXPath != "" {
		files = append(files, out.XLSXPath)
		g.Go(func() error {
			return export.WriteXLSXFile(out.XLSXPath, []export.Sheet{
				{Name: "VP", Headers: tariff.VPHeaders, Rows: vpRows},
				{Name: "VU", Headers: tariff.VUHeaders, Rows: vuRows},
			})
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	for _, f := range files {
		log.Printf("stage=export wrote=%s", f)
	}
	res.Files = files

	if r.Config.Storage.Kind == "" || r.Repo == nil {
		return nil
	}
	sink := export.NewSQLSink(r.Repo, res.Source)
	res.RunID = sink.RunID()

	st := r.Config.Storage
	n, err := sink.Load(ctx, st.VPTable, export.VPColumns, vpRows)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	res.VPInserted = n
	n, err = sink.Load(ctx, st.VUTable, export.VUColumns, vuRows)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	res.VUInserted = n
	log.Printf("stage=export storage=%s run_id=%s inserted_vp=%d inserted_vu=%d",
		st.Kind, res.RunID, res.VPInserted, res.VUInserted)
	return nil
}
