package sheets

import (
	"context"
	"strings"
	"testing"
)

func TestCSVSource(t *testing.T) {
	cases := []struct {
		name  string
		input string
		rows  int
		check func(t *testing.T, rows []Row)
	}{
		{
			name:  "comma separated with bom",
			input: "\ufeffLínea,Responsable,Enero\nPapelería,SPS,\"1,500.00\"\n",
			rows:  1,
			check: func(t *testing.T, rows []Row) {
				if rows[0]["Línea"] != "Papelería" || rows[0]["Enero"] != "1,500.00" {
					t.Fatalf("unexpected row %v", rows[0])
				}
			},
		},
		{
			name:  "semicolon separated",
			input: "Linea;Tienda;Febrero\nInternet;VA;800\nLuz;SPS\n",
			rows:  2,
			check: func(t *testing.T, rows []Row) {
				if rows[1]["Febrero"] != "" {
					t.Fatalf("short record must yield empty cell, got %q", rows[1]["Febrero"])
				}
			},
		},
		{
			name:  "empty",
			input: "",
			rows:  0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := NewCSVSource(strings.NewReader(tc.input)).ReadRows(context.Background())
			if err != nil {
				t.Fatalf("read rows: %v", err)
			}
			if len(rows) != tc.rows {
				t.Fatalf("expected %d rows, got %d", tc.rows, len(rows))
			}
			if tc.check != nil {
				tc.check(t, rows)
			}
		})
	}
}
