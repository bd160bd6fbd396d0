// Command ratesheet downloads (or reads) a rental rate sheet, extracts its
// tables, parses the passenger (VP) and utility (VU) grids and writes the
// records to CSV, XLSX and optionally a SQL database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ratesheet/internal/config"
	"ratesheet/internal/fetch"
	"ratesheet/internal/metrics"
	"ratesheet/internal/metrics/datadog"
	"ratesheet/internal/pipeline"
	"ratesheet/internal/source"
	"ratesheet/internal/source/csvgrid"
	"ratesheet/internal/source/html"
	"ratesheet/internal/source/pdf"
	"ratesheet/internal/storage"
	"ratesheet/internal/tariff"

	// register all storage backends; the config picks one.
	_ "ratesheet/internal/storage/all"
)

// backendCloser is a metrics backend this command must close on exit.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are the external seams of run.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
	OpenStorage    func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	HTTPClient     *http.Client
	Getenv         func(string) string
}

// runConfig holds the parsed flags. set records which flags were given
// explicitly so they override the config file.
type runConfig struct {
	ConfigPath string
	EnvFile    string
	Validate   bool
	Verbose    bool

	URL            string
	File           string
	Format         string
	VPIndex        int
	VUIndex        int
	CSVDir         string
	XLSXPath       string
	StorageKind    string
	DSN            string
	MetricsBackend string
	MetricsTags    string
	Timeout        time.Duration
	Retries        int

	set map[string]bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code := run(ctx, os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
		OpenStorage: storage.New,
		HTTPClient:  &http.Client{},
		Getenv:      os.Getenv,
	})
	os.Exit(code)
}

// run executes one conversion and returns an exit code.
//
// Exit codes:
//   - 0: success (including a run that emitted zero rows).
//   - 1: runtime failure (download, extraction, export).
//   - 2: usage or configuration error.
//   - 3: the document does not contain the configured tables.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.OpenStorage == nil {
		d.OpenStorage = storage.New
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	logger := log.New(d.Stderr, "", log.LstdFlags)

	rc, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	if rc.EnvFile != "" {
		if err := godotenv.Load(rc.EnvFile); err != nil && !(errors.Is(err, os.ErrNotExist) && !rc.set["env-file"]) {
			fmt.Fprintf(d.Stderr, "load env file: %v\n", err)
			return 2
		}
	}

	p := config.Default()
	if rc.ConfigPath != "" {
		if p, err = config.Load(rc.ConfigPath); err != nil {
			fmt.Fprintln(d.Stderr, err.Error())
			return 2
		}
	}
	applyFlags(&p, rc)

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintln(d.Stderr, iss.String())
	}
	if config.HasErrors(issues) {
		logger.Printf("configuration is invalid")
		return 2
	}
	if rc.Validate {
		logger.Printf("configuration is valid")
		return 0
	}

	// Metrics backend: flag -> env -> config.
	backendName := p.Metrics.Backend
	if v := d.Getenv("METRICS_BACKEND"); v != "" && !rc.set["metrics-backend"] {
		backendName = v
	}
	switch backendName {
	case "datadog":
		if d.BackendFactory == nil {
			fmt.Fprintln(d.Stderr, "internal error: BackendFactory is nil")
			return 2
		}
		tags := append([]string{}, p.Metrics.Tags...)
		tags = append(tags, datadog.ParseTagsCSV(d.Getenv("METRICS_TAGS"))...)
		tags = append(tags, datadog.ParseTagsCSV(rc.MetricsTags)...)

		b, err := d.BackendFactory(ctx, p.Job, tags, p.Metrics.FlushEvery.Std())
		if err != nil {
			logger.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			logger.Printf("metrics: backend=%s job_name=%s tags=%v", backendName, p.Job, tags)
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					logger.Printf("metrics: datadog close/flush error: %v", err)
				}
				metrics.SetBackend(nil)
			}()
		}
	case "", "none":
		if rc.Verbose {
			logger.Printf("metrics: disabled (backend=%q)", backendName)
		}
	default:
		logger.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	// Library packages only log when -v is set.
	var detail pipeline.Logger = log.New(io.Discard, "", 0)
	if rc.Verbose {
		detail = logger
	}

	var repo storage.Repository
	if p.Storage.Kind != "" {
		repo, err = d.OpenStorage(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN})
		if err != nil {
			logger.Printf("%v", err)
			return 1
		}
		defer repo.Close()
	}

	runner := &pipeline.Runner{
		Config: p,
		Fetcher: fetch.New(d.HTTPClient, fetch.Options{
			Timeout:   p.Source.Timeout.Std(),
			Retries:   p.Source.Retries,
			UserAgent: p.Source.UserAgent,
		}, detail),
		Extractor: source.Set{
			source.FormatPDF:  pdf.New(detail),
			source.FormatHTML: html.Extractor{},
			source.FormatCSV:  csvgrid.Extractor{Charset: p.Source.Charset},
		},
		Repo: repo,
		Log:  logger,
	}

	if rc.Verbose {
		logger.Printf("pipeline: job=%s url=%s file=%s format=%s vp_index=%d vu_index=%d storage=%s",
			p.Job, p.Source.URL, p.Source.File, p.Source.Format, p.Tables.VP, p.Tables.VU, p.Storage.Kind)
	}

	start := time.Now()
	res, err := runner.Run(ctx)
	if err != nil {
		logger.Printf("%v", err)
		if errors.Is(err, tariff.ErrMalformedDocument) {
			return 3
		}
		return 1
	}

	summary := fmt.Sprintf("source=%s format=%s tables=%d vp=%d vu=%d",
		res.Source, res.Format, res.Tables, len(res.VP), len(res.VU))
	if res.RunID != "" {
		summary += fmt.Sprintf(" run_id=%s inserted_vp=%d inserted_vu=%d", res.RunID, res.VPInserted, res.VUInserted)
	}
	fmt.Fprintln(d.Stdout, summary)

	if rc.Verbose {
		logger.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
	return 0
}

// parseFlags parses command arguments. It never exits the process.
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("ratesheet", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var rc runConfig
	fs.StringVar(&rc.ConfigPath, "config", "", "pipeline config path (.json or .toml); defaults are used when empty")
	fs.StringVar(&rc.EnvFile, "env-file", ".env", "dotenv file loaded before the config is expanded")
	fs.BoolVar(&rc.Validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&rc.Verbose, "v", false, "enable verbose logs")

	fs.StringVar(&rc.URL, "url", "", "rate sheet URL")
	fs.StringVar(&rc.File, "file", "", "local rate sheet file (wins over -url)")
	fs.StringVar(&rc.Format, "format", "", "input format: auto, pdf, html or csv")
	fs.IntVar(&rc.VPIndex, "vp-index", tariff.DefaultSelection.VP, "index of the passenger-vehicle table")
	fs.IntVar(&rc.VUIndex, "vu-index", tariff.DefaultSelection.VU, "index of the utility-vehicle table")
	fs.StringVar(&rc.CSVDir, "csv-dir", "", "directory for the CSV files (empty string in config disables CSV)")
	fs.StringVar(&rc.XLSXPath, "xlsx", "", "write a workbook with VP and VU sheets to this path")
	fs.StringVar(&rc.StorageKind, "storage-kind", "", "database backend: sqlite, postgres or mssql")
	fs.StringVar(&rc.DSN, "dsn", "", "database DSN")
	fs.StringVar(&rc.MetricsBackend, "metrics-backend", "", "metrics backend: none or datadog (overrides env METRICS_BACKEND)")
	fs.StringVar(&rc.MetricsTags, "metrics-tags", "", "extra Datadog tags CSV (e.g. env:prod,team:pricing)")
	fs.DurationVar(&rc.Timeout, "timeout", 0, "HTTP timeout per attempt")
	fs.IntVar(&rc.Retries, "retries", 0, "HTTP retries after the first attempt")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}
	if fs.NArg() > 0 {
		return runConfig{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	rc.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { rc.set[f.Name] = true })

	if rc.set["vp-index"] && rc.VPIndex < 0 {
		return runConfig{}, errors.New("-vp-index must be >= 0")
	}
	if rc.set["vu-index"] && rc.VUIndex < 0 {
		return runConfig{}, errors.New("-vu-index must be >= 0")
	}
	if rc.set["retries"] && rc.Retries < 0 {
		return runConfig{}, errors.New("-retries must be >= 0")
	}
	if rc.set["timeout"] && rc.Timeout <= 0 {
		return runConfig{}, errors.New("-timeout must be > 0")
	}
	return rc, nil
}

// applyFlags copies explicitly set flags over p.
func applyFlags(p *config.Pipeline, rc runConfig) {
	if rc.set["url"] {
		p.Source.URL = rc.URL
		p.Source.File = ""
	}
	if rc.set["file"] {
		p.Source.File = rc.File
	}
	if rc.set["format"] {
		p.Source.Format = rc.Format
	}
	if rc.set["timeout"] {
		p.Source.Timeout = config.Duration(rc.Timeout)
	}
	if rc.set["retries"] {
		p.Source.Retries = rc.Retries
	}
	if rc.set["vp-index"] {
		p.Tables.VP = rc.VPIndex
	}
	if rc.set["vu-index"] {
		p.Tables.VU = rc.VUIndex
	}
	if rc.set["csv-dir"] {
		p.Output.CSVDir = rc.CSVDir
	}
	if rc.set["xlsx"] {
		p.Output.XLSXPath = rc.XLSXPath
	}
	if rc.set["storage-kind"] {
		p.Storage.Kind = rc.StorageKind
	}
	if rc.set["dsn"] {
		p.Storage.DSN = rc.DSN
	}
	if rc.set["metrics-backend"] {
		p.Metrics.Backend = rc.MetricsBackend
	}
}
