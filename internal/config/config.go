// Package config loads the pipeline document that drives a ratesheet run.
//
// The document is JSON or TOML, chosen by file extension. Fields that are not
// set keep the values from Default. URL and DSN strings go through
// os.ExpandEnv so credentials can stay in the environment (or a .env file).
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"ratesheet/internal/tariff"
)

// DefaultURL is the published July 2025 corporate rate sheet.
const DefaultURL = "https://images.hertz.com/pdfs/Affichette-Leg-Corp-Tarifs-HERTZ-DTG-VP-VU-JUILLET-2025-clean.pdf"

// Pipeline is the full run configuration.
type Pipeline struct {
	Job     string           `json:"job" toml:"job"`
	Source  Source           `json:"source" toml:"source"`
	Tables  tariff.Selection `json:"tables" toml:"tables"`
	Output  Output           `json:"output" toml:"output"`
	Storage Storage          `json:"storage" toml:"storage"`
	Metrics Metrics          `json:"metrics" toml:"metrics"`
}

// Source says where the rate sheet comes from. File wins over URL.
type Source struct {
	URL       string   `json:"url" toml:"url"`
	File      string   `json:"file" toml:"file"`
	Format    string   `json:"format" toml:"format"` // auto | pdf | html | csv
	Timeout   Duration `json:"timeout" toml:"timeout"`
	Retries   int      `json:"retries" toml:"retries"`
	UserAgent string   `json:"user_agent" toml:"user_agent"`

	// Charset applies to CSV grids only ("utf-8" or "latin1").
	Charset string `json:"charset" toml:"charset"`
}

// Output controls the file exports. An empty CSVDir disables CSV output; an
// empty XLSXPath disables the workbook.
type Output struct {
	CSVDir   string `json:"csv_dir" toml:"csv_dir"`
	VPFile   string `json:"vp_file" toml:"vp_file"`
	VUFile   string `json:"vu_file" toml:"vu_file"`
	XLSXPath string `json:"xlsx_path" toml:"xlsx_path"`
}

// Storage configures the optional database sink. An empty Kind disables it.
type Storage struct {
	Kind    string `json:"kind" toml:"kind"`
	DSN     string `json:"dsn" toml:"dsn"`
	VPTable string `json:"vp_table" toml:"vp_table"`
	VUTable string `json:"vu_table" toml:"vu_table"`
}

// Metrics selects the metrics backend ("none" or "datadog").
type Metrics struct {
	Backend    string   `json:"backend" toml:"backend"`
	Tags       []string `json:"tags" toml:"tags"`
	FlushEvery Duration `json:"flush_every" toml:"flush_every"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for JSON and TOML.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file is given.
func Default() Pipeline {
	return Pipeline{
		Job: "ratesheet",
		Source: Source{
			URL:     DefaultURL,
			Format:  "auto",
			Timeout: Duration(60 * time.Second),
			Retries: 3,
			Charset: "utf-8",
		},
		Tables: tariff.DefaultSelection,
		Output: Output{
			CSVDir: ".",
			VPFile: "hertz_vehicules_tourism.csv",
			VUFile: "hertz_vehicules_utility.csv",
		},
		Storage: Storage{
			VPTable: "rates_vp",
			VUTable: "rates_vu",
		},
		Metrics: Metrics{
			Backend:    "none",
			FlushEvery: Duration(60 * time.Second),
		},
	}
}

// Load reads path over Default. ".toml" files are TOML; anything else is JSON.
func Load(path string) (Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: %w", err)
	}
	p, err := Parse(data, formatOf(path))
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes data ("json" or "toml") over Default and expands
// environment references.
func Parse(data []byte, format string) (Pipeline, error) {
	p := Default()
	switch format {
	case "toml":
		if err := toml.Unmarshal(data, &p); err != nil {
			return Pipeline{}, fmt.Errorf("decode toml: %w", err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, fmt.Errorf("decode json: %w", err)
		}
	default:
		return Pipeline{}, fmt.Errorf("unknown config format %q", format)
	}
	p.expandEnv()
	return p, nil
}

func (p *Pipeline) expandEnv() {
	p.Source.URL = os.ExpandEnv(p.Source.URL)
	p.Source.File = os.ExpandEnv(p.Source.File)
	p.Storage.DSN = os.ExpandEnv(p.Storage.DSN)
	p.Output.CSVDir = os.ExpandEnv(p.Output.CSVDir)
	p.Output.XLSXPath = os.ExpandEnv(p.Output.XLSXPath)
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "json"
}
