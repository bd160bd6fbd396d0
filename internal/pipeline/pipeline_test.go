package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"ratesheet/internal/config"
	"ratesheet/internal/fetch"
	"ratesheet/internal/source"
	"ratesheet/internal/storage"
	"ratesheet/internal/tariff"
)

type fakeExtractor struct {
	doc    tariff.Document
	err    error
	in     source.Input
	format source.Format
}

func (f *fakeExtractor) Extract(_ context.Context, in source.Input, format source.Format) (tariff.Document, error) {
	f.in, f.format = in, format
	if f.err != nil {
		return tariff.Document{}, f.err
	}
	doc := f.doc
	doc.Source = in.Name
	return doc, nil
}

type fakeFetcher struct {
	url  string
	body []byte
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (fetch.Result, error) {
	f.url = url
	if f.err != nil {
		return fetch.Result{}, f.err
	}
	return fetch.Result{URL: url, Status: 200, Body: f.body, Attempts: 1}, nil
}

type fakeRepo struct {
	mu       sync.Mutex
	ensured  []string
	inserted map[string]int
}

func (r *fakeRepo) Close() {}

func (r *fakeRepo) EnsureTable(_ context.Context, spec storage.TableSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensured = append(r.ensured, spec.Name)
	return nil
}

func (r *fakeRepo) InsertRows(_ context.Context, table string, _ []string, rows [][]any, _ []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inserted == nil {
		r.inserted = map[string]int{}
	}
	r.inserted[table] += len(rows)
	return int64(len(rows)), nil
}

type captureLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLog) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *captureLog) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

func rateDoc() tariff.Document {
	return tariff.Document{
		Format: "pdf",
		Tables: []tariff.Table{
			{
				{"CATÉGORIE", "MODÈLES (ou similaires)", "1 jour"},
				{"A", "Fiat 500", "39,00", "1 200", "10,00", "8,00", "600", "600", "25,00"},
				{"C", "Peugeot 308", "55,00", "1 500", "12,00"},
			},
			{{"Conditions générales"}},
			{
				{"Catégorie", "Modèles", "Volume (m³)"},
				{"B4", "Partner", "20", "+", "Hayon", "60,00", "0,50", "35,00", "150,00", "60,00", "40,00"},
			},
		},
	}
}

func testConfig(t *testing.T) config.Pipeline {
	t.Helper()
	dir := t.TempDir()
	p := config.Default()
	p.Source.URL = ""
	p.Source.File = "sheet.pdf"
	p.Source.Format = "pdf"
	p.Tables = tariff.Selection{VP: 0, VU: 2}
	p.Output.CSVDir = dir
	p.Output.XLSXPath = filepath.Join(dir, "rates.xlsx")
	return p
}

func TestRun_FileToCSVAndXLSX(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	ex := &fakeExtractor{doc: rateDoc()}
	logs := &captureLog{}
	r := &Runner{Config: cfg, Extractor: ex, Log: logs}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if ex.in.Path != "sheet.pdf" || ex.format != source.FormatPDF {
		t.Fatalf("extract got in=%+v format=%q", ex.in, ex.format)
	}
	if res.Tables != 3 || res.Format != "pdf" || res.Source != "sheet.pdf" {
		t.Fatalf("result meta = %+v", res)
	}
	if len(res.VP) != 2 || len(res.VU) != 1 {
		t.Fatalf("records vp=%d vu=%d", len(res.VP), len(res.VU))
	}
	if res.VPStats.Degraded != 1 || res.VUStats.Headers != 1 {
		t.Fatalf("stats vp=%+v vu=%+v", res.VPStats, res.VUStats)
	}
	if len(res.Files) != 3 {
		t.Fatalf("files = %v", res.Files)
	}

	b, err := os.ReadFile(filepath.Join(cfg.Output.CSVDir, cfg.Output.VUFile))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "\ufeffCategory,") {
		t.Fatalf("vu csv = %q", b)
	}
	if lines[1] != "B4,Partner,20 + Hayon,\"60,00\",\"0,50\",\"35,00\",\"150,00\",\"60,00\",\"40,00\"" {
		t.Fatalf("vu row = %q", lines[1])
	}
	if _, err := os.Stat(cfg.Output.XLSXPath); err != nil {
		t.Fatalf("xlsx not written: %v", err)
	}

	for _, want := range []string{
		"stage=extract source=sheet.pdf format=pdf tables=3",
		"stage=parse schema=vp rows=3 emitted=2 dropped=1 degraded=1",
		"stage=export wrote=",
	} {
		if !logs.contains(want) {
			t.Fatalf("missing log line %q in %v", want, logs.lines)
		}
	}
}

func TestRun_FetchesURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Source.File = ""
	cfg.Source.URL = "https://example.test/rates.pdf"
	cfg.Source.Format = ""
	cfg.Output = config.Output{}

	fe := &fakeFetcher{body: []byte("%PDF-1.7")}
	ex := &fakeExtractor{doc: rateDoc()}
	r := &Runner{Config: cfg, Fetcher: fe, Extractor: ex}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fe.url != cfg.Source.URL {
		t.Fatalf("fetched %q", fe.url)
	}
	if string(ex.in.Data) != "%PDF-1.7" || ex.in.Name != cfg.Source.URL || ex.format != source.FormatAuto {
		t.Fatalf("extract input = %+v format=%q", ex.in, ex.format)
	}
	if len(res.Files) != 0 {
		t.Fatalf("no outputs configured, got files %v", res.Files)
	}
}

func TestRun_FetchError(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Source.File = ""
	cfg.Source.URL = "https://example.test/rates.pdf"
	boom := errors.New("connection refused")

	r := &Runner{Config: cfg, Fetcher: &fakeFetcher{err: boom}, Extractor: &fakeExtractor{}}
	_, err := r.Run(context.Background())
	if !errors.Is(err, boom) || !strings.HasPrefix(err.Error(), "acquire: ") {
		t.Fatalf("err = %v", err)
	}
}

func TestRun_MalformedDocument(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Tables = tariff.DefaultSelection

	r := &Runner{Config: cfg, Extractor: &fakeExtractor{doc: rateDoc()}}
	_, err := r.Run(context.Background())
	if !errors.Is(err, tariff.ErrMalformedDocument) {
		t.Fatalf("err = %v, want ErrMalformedDocument", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.Output.CSVDir, cfg.Output.VPFile)); !os.IsNotExist(err) {
		t.Fatalf("nothing must be written for a malformed document, stat err = %v", err)
	}
}

func TestRun_ExtractError(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	r := &Runner{Config: cfg, Extractor: &fakeExtractor{err: source.ErrNoTables}}
	_, err := r.Run(context.Background())
	if !errors.Is(err, source.ErrNoTables) || !strings.HasPrefix(err.Error(), "extract: ") {
		t.Fatalf("err = %v", err)
	}
}

func TestRun_BadFormat(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Source.Format = "docx"
	r := &Runner{Config: cfg, Extractor: &fakeExtractor{doc: rateDoc()}}
	if _, err := r.Run(context.Background()); !errors.Is(err, source.ErrUnsupportedFormat) {
		t.Fatalf("err = %v", err)
	}
}

func TestRun_NoRowsIsNotAnError(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Tables = tariff.Selection{VP: 1, VU: 1}
	logs := &captureLog{}

	r := &Runner{Config: cfg, Extractor: &fakeExtractor{doc: rateDoc()}, Log: logs}
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.VP) != 0 || len(res.VU) != 0 {
		t.Fatalf("records vp=%d vu=%d", len(res.VP), len(res.VU))
	}
	if !logs.contains("schema=vp warning=no rows emitted") {
		t.Fatalf("missing warning in %v", logs.lines)
	}
}

func TestRun_LoadsStorage(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Output = config.Output{}
	cfg.Storage = config.Storage{Kind: "sqlite", DSN: ":memory:", VPTable: "rates_vp", VUTable: "rates_vu"}
	repo := &fakeRepo{}

	r := &Runner{Config: cfg, Extractor: &fakeExtractor{doc: rateDoc()}, Repo: repo}
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.VPInserted != 2 || res.VUInserted != 1 || res.RunID == "" {
		t.Fatalf("result = %+v", res)
	}
	if len(repo.ensured) != 2 || repo.ensured[0] != "rates_vp" || repo.ensured[1] != "rates_vu" {
		t.Fatalf("ensured = %v", repo.ensured)
	}
}
