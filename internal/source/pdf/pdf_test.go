package pdf

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/text"

	"ratesheet/internal/source"
	"ratesheet/internal/tariff"
)

func TestToTable(t *testing.T) {
	t.Parallel()

	in := &model.Table{Rows: [][]model.Cell{
		{{Text: "A"}, {Text: "Fiat 500"}, {Text: "35,00"}},
		{{Text: ""}, {Text: "KILOMÉTRAGE"}},
	}}
	want := tariff.Table{
		{"A", "Fiat 500", "35,00"},
		{"", "KILOMÉTRAGE"},
	}
	if got := toTable(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("toTable = %#v, want %#v", got, want)
	}
	if toTable(nil) != nil {
		t.Fatalf("toTable(nil) should be nil")
	}
}

func TestToModelFragments(t *testing.T) {
	t.Parallel()

	got := toModelFragments([]text.TextFragment{{Text: "CAT", X: 10, Y: 700, Width: 20, Height: 8, FontName: "F1", FontSize: 8}})
	want := model.TextFragment{Text: "CAT", BBox: model.BBox{X: 10, Y: 700, Width: 20, Height: 8}, FontName: "F1", FontSize: 8}
	if len(got) != 1 || !reflect.DeepEqual(got[0], want) {
		t.Fatalf("toModelFragments = %#v", got)
	}
}

func TestExtract_RejectsNonPDF(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Extract(context.Background(), source.Input{Name: "x.pdf", Data: []byte("not a pdf at all")})
	if err == nil {
		t.Fatalf("expected error for non-PDF input")
	}
}

func TestExtract_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Extract(context.Background(), source.Input{Path: filepath.Join(t.TempDir(), "missing.pdf")})
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSpillWritesContent(t *testing.T) {
	t.Parallel()

	p, err := spill([]byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("spill: %v", err)
	}
	defer os.Remove(p)

	b, err := os.ReadFile(p)
	if err != nil || string(b) != "%PDF-1.4" {
		t.Fatalf("spilled content = %q, %v", b, err)
	}
}
