package config

import (
	"fmt"
	"strings"
)

// Severity ranks a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding, addressed by a dotted config path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	sourceFormats   = []string{"", "auto", "pdf", "html", "csv"}
	charsets        = []string{"", "utf-8", "utf8", "latin1", "iso-8859-1", "windows-1252"}
	storageKinds    = []string{"", "sqlite", "postgres", "mssql"}
	metricsBackends = []string{"", "none", "datadog"}
)

// ValidatePipeline checks p and returns every finding; nil means valid.
func ValidatePipeline(p Pipeline) []Issue {
	var out []Issue
	errf := func(path, format string, a ...any) {
		out = append(out, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		out = append(out, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	s := p.Source
	switch {
	case s.URL == "" && s.File == "":
		errf("source", "one of url or file is required")
	case s.URL != "" && s.File != "":
		warnf("source", "both url and file set; file is used")
	}
	if s.URL != "" && s.File == "" && !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
		errf("source.url", "must be an http or https URL, got %q", s.URL)
	}
	if !oneOf(strings.ToLower(s.Format), sourceFormats) {
		errf("source.format", "unsupported format %q (want auto, pdf, html or csv)", s.Format)
	}
	if !oneOf(strings.ToLower(s.Charset), charsets) {
		errf("source.charset", "unsupported charset %q", s.Charset)
	}
	if s.Timeout < 0 {
		errf("source.timeout", "must not be negative")
	}
	if s.Retries < 0 {
		errf("source.retries", "must not be negative")
	} else if s.Retries > 10 {
		warnf("source.retries", "%d retries is unusually high", s.Retries)
	}

	if p.Tables.VP < 0 {
		errf("tables.vp_index", "must not be negative")
	}
	if p.Tables.VU < 0 {
		errf("tables.vu_index", "must not be negative")
	}
	if p.Tables.VP == p.Tables.VU && p.Tables.VP >= 0 {
		warnf("tables", "vp_index and vu_index both select table %d", p.Tables.VP)
	}

	o := p.Output
	if o.CSVDir != "" {
		if o.VPFile == "" {
			errf("output.vp_file", "required when csv_dir is set")
		}
		if o.VUFile == "" {
			errf("output.vu_file", "required when csv_dir is set")
		}
		if o.VPFile != "" && o.VPFile == o.VUFile {
			errf("output", "vp_file and vu_file must differ")
		}
	}
	if o.XLSXPath != "" && !strings.HasSuffix(strings.ToLower(o.XLSXPath), ".xlsx") {
		warnf("output.xlsx_path", "%q does not end in .xlsx", o.XLSXPath)
	}

	st := p.Storage
	if !oneOf(st.Kind, storageKinds) {
		errf("storage.kind", "unsupported kind %q (want sqlite, postgres or mssql)", st.Kind)
	}
	if st.Kind != "" {
		if st.DSN == "" {
			errf("storage.dsn", "required when storage.kind is set")
		}
		if st.VPTable == "" {
			errf("storage.vp_table", "required when storage.kind is set")
		}
		if st.VUTable == "" {
			errf("storage.vu_table", "required when storage.kind is set")
		}
		if st.VPTable != "" && st.VPTable == st.VUTable {
			errf("storage", "vp_table and vu_table must differ")
		}
	}

	if o.CSVDir == "" && o.XLSXPath == "" && st.Kind == "" {
		warnf("output", "no csv_dir, xlsx_path or storage configured; parsed rows are discarded")
	}

	m := p.Metrics
	if !oneOf(m.Backend, metricsBackends) {
		errf("metrics.backend", "unsupported backend %q (want none or datadog)", m.Backend)
	}
	if m.FlushEvery < 0 {
		errf("metrics.flush_every", "must not be negative")
	}
	for i, tag := range m.Tags {
		if !strings.Contains(tag, ":") {
			warnf(fmt.Sprintf("metrics.tags[%d]", i), "tag %q has no key:value form", tag)
		}
	}

	return out
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
