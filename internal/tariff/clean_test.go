package tariff

import (
	"reflect"
	"testing"
)

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		row  RawRow
		want []string
	}{
		{
			name: "trims_and_drops_empty",
			row:  RawRow{"  B ", "", "   ", "45,00"},
			want: []string{"B", "45,00"},
		},
		{
			name: "line_breaks_become_spaces",
			row:  RawRow{"Renault Clio\nou similaire", "20\r\n+", "1 200\n"},
			want: []string{"Renault Clio ou similaire", "20 +", "1 200"},
		},
		{
			name: "decomposed_accents_are_composed",
			row:  RawRow{"Mode\u0300les"},
			want: []string{"Modèles"},
		},
		{
			name: "all_empty",
			row:  RawRow{"", " ", "\n"},
			want: []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Clean(tc.row)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Clean(%q)=%q want %q", tc.row, got, tc.want)
			}
		})
	}
}
