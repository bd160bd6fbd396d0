// Command ratesheet-tables lists every table extracted from a rate sheet with
// its index, size and first rows. Use it to find the -vp-index and -vu-index
// values for ratesheet when a new sheet layout is published.
//
// Usage:
//
//	ratesheet-tables -url "https://example.com/rates.pdf"
//	ratesheet-tables -file rates.html -rows 5
//	cat rates.pdf | ratesheet-tables -json
//
// Dump the raw grids to a CSV file that ratesheet can read back with
// -format csv:
//
//	ratesheet-tables -file rates.pdf -dump grids.csv
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"ratesheet/internal/fetch"
	"ratesheet/internal/source"
	"ratesheet/internal/source/csvgrid"
	"ratesheet/internal/source/html"
	"ratesheet/internal/source/pdf"
	"ratesheet/internal/tariff"
)

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
	))
}

// tableSummary is one listed table.
type tableSummary struct {
	Index int        `json:"index"`
	Rows  int        `json:"rows"`
	Cols  int        `json:"cols"`
	Guess string     `json:"guess"`
	Head  [][]string `json:"head"`
}

// run returns 0 on success, 2 for usage errors and 1 for runtime errors.
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("ratesheet-tables", flag.ContinueOnError)
	fs.SetOutput(stderr)

	urlFlag := fs.String("url", "", "fetch the rate sheet from URL")
	fileFlag := fs.String("file", "", "read the rate sheet from a local file (default: stdin)")
	formatFlag := fs.String("format", "auto", "input format: auto, pdf, html or csv")
	rows := fs.Int("rows", 3, "rows to print per table")
	asJSON := fs.Bool("json", false, "print summaries as JSON")
	dump := fs.String("dump", "", "write every extracted table to this CSV file")
	timeout := fs.Duration("timeout", 60*time.Second, "timeout for -url fetch")
	verbose := fs.Bool("v", false, "log extraction details to stderr")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *urlFlag != "" && *fileFlag != "" {
		fmt.Fprintln(stderr, "use only one of -url and -file")
		return 2
	}
	if *rows < 0 {
		fmt.Fprintln(stderr, "-rows must be >= 0")
		return 2
	}
	format, err := source.ParseFormat(*formatFlag)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}

	var logger pdf.Logger
	if *verbose {
		logger = log.New(stderr, "", 0)
	}

	in, err := loadInput(ctx, *urlFlag, *fileFlag, stdin, httpClient, *timeout, logger)
	if err != nil {
		fmt.Fprintf(stderr, "load: %v\n", err)
		return 1
	}

	set := source.Set{
		source.FormatPDF:  pdf.New(logger),
		source.FormatHTML: html.Extractor{},
		source.FormatCSV:  csvgrid.Extractor{},
	}
	doc, err := set.Extract(ctx, in, format)
	if err != nil {
		fmt.Fprintf(stderr, "extract: %v\n", err)
		return 1
	}

	sums := summarize(doc, *rows)
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sums); err != nil {
			fmt.Fprintf(stderr, "encode json: %v\n", err)
			return 1
		}
	} else {
		printSummaries(stdout, doc, sums)
	}

	if *dump != "" {
		if err := dumpCSV(*dump, doc); err != nil {
			fmt.Fprintf(stderr, "dump: %v\n", err)
			return 1
		}
	}
	return 0
}

func loadInput(ctx context.Context, url, file string, stdin io.Reader, client *http.Client, timeout time.Duration, log fetch.Logger) (source.Input, error) {
	switch {
	case file != "":
		return source.Input{Name: file, Path: file}, nil
	case url != "":
		res, err := fetch.New(client, fetch.Options{Timeout: timeout}, log).Fetch(ctx, url)
		if err != nil {
			return source.Input{}, err
		}
		return source.Input{Name: url, Data: res.Body}, nil
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return source.Input{}, fmt.Errorf("read stdin: %w", err)
		}
		return source.Input{Name: "stdin", Data: b}, nil
	}
}

func summarize(doc tariff.Document, head int) []tableSummary {
	out := make([]tableSummary, 0, len(doc.Tables))
	for i, t := range doc.Tables {
		s := tableSummary{Index: i, Rows: len(t), Guess: guessSchema(t), Head: [][]string{}}
		for _, r := range t {
			s.Cols = max(s.Cols, len(r))
		}
		for _, r := range t[:min(head, len(t))] {
			s.Head = append(s.Head, tariff.Clean(r))
		}
		out = append(out, s)
	}
	return out
}

// guessSchema names the schema whose category codes start the most data
// rows, or "-" when neither matches.
func guessSchema(t tariff.Table) string {
	var vp, vu int
	for _, r := range t {
		toks := tariff.Clean(r)
		if len(toks) == 0 {
			continue
		}
		if tariff.VP.MatchCategory(toks[0]) && !tariff.VP.IsHeader(toks) {
			vp++
		}
		if tariff.VU.MatchCategory(toks[0]) && !tariff.VU.IsHeader(toks) {
			vu++
		}
	}
	switch {
	case vp == 0 && vu == 0:
		return "-"
	case vp >= vu:
		return "vp"
	default:
		return "vu"
	}
}

func printSummaries(w io.Writer, doc tariff.Document, sums []tableSummary) {
	fmt.Fprintf(w, "source=%s format=%s tables=%d\n", doc.Source, doc.Format, len(sums))
	for _, s := range sums {
		fmt.Fprintf(w, "\n[%d] %d rows x %d cols guess=%s\n", s.Index, s.Rows, s.Cols, s.Guess)
		for _, r := range s.Head {
			fmt.Fprintf(w, "    %s\n", strings.Join(r, " | "))
		}
	}
}

func dumpCSV(path string, doc tariff.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := csvgrid.Write(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
