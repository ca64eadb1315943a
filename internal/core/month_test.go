package core

import (
	"errors"
	"testing"
)

func TestParseMonth(t *testing.T) {
	cases := []struct {
		in   string
		want Month
		ok   bool
	}{
		{"Ene", Ene, true},
		{"ene", Ene, true},
		{"1", Ene, true},
		{"12", Dic, true},
		{"Diciembre", Dic, true},
		{"SEPTIEMBRE", Sep, true},
		{"setiembre", Sep, true},
		{"August", Ago, true},
		{" marzo ", Mar, true},
		{"13", 0, false},
		{"0", 0, false},
		{"", 0, false},
		{"smarch", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMonth(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Errorf("%q: expected %v, got %v (err=%v)", tc.in, tc.want, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidMonth) {
			t.Errorf("%q: expected ErrInvalidMonth, got %v", tc.in, err)
		}
	}
}

func TestMonthFromNameEnglish(t *testing.T) {
	names := []string{"january", "february", "march", "april", "may", "june",
		"july", "august", "september", "october", "november", "december"}
	for i, name := range names {
		m, ok := MonthFromName(name)
		if !ok || m != Months()[i] {
			t.Errorf("%q: expected %v, got %v (ok=%v)", name, Months()[i], m, ok)
		}
	}
}

func TestMonthNext(t *testing.T) {
	if m, ok := Ene.Next(); !ok || m != Feb {
		t.Fatalf("Ene.Next() = %v, %v", m, ok)
	}
	if m, ok := Nov.Next(); !ok || m != Dic {
		t.Fatalf("Nov.Next() = %v, %v", m, ok)
	}
	if _, ok := Dic.Next(); ok {
		t.Fatal("Dic must have no next month")
	}
	if _, ok := Month(0).Next(); ok {
		t.Fatal("invalid month must have no next month")
	}
}

func TestMonthCodes(t *testing.T) {
	months := Months()
	if len(months) != 12 {
		t.Fatalf("expected 12 months, got %d", len(months))
	}
	if months[0].Code() != "Ene" || months[11].Code() != "Dic" || Ago.String() != "Ago" {
		t.Fatalf("unexpected codes: %v", months)
	}
	if MonthOf(NewDate(2025, 3, 14)) != Mar {
		t.Fatal("MonthOf mismatch")
	}
}

func TestFold(t *testing.T) {
	if Fold("  Línea ") != "linea" {
		t.Fatalf("got %q", Fold("  Línea "))
	}
	if !ContainsFolded("Energía Eléctrica", "energia") {
		t.Fatal("expected accent-insensitive match")
	}
	if ContainsFolded("Papelería", "") {
		t.Fatal("empty needle must not match")
	}
}
