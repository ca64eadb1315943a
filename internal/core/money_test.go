package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true},
		{"12.345", 1235, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := []struct {
		in   Money
		want string
	}{
		{Money{}, "L0.00"},
		{Money{Cents: 5}, "L0.05"},
		{Money{Cents: 123450}, "L1,234.50"},
		{Money{Cents: 100000000}, "L1,000,000.00"},
		{Money{Cents: -2500}, "-L25.00"},
	}
	for _, tc := range cases {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("%d: expected %q, got %q", tc.in.Cents, tc.want, got)
		}
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := Lempiras(300)
	b := Lempiras(120)
	if got := a.Sub(b); got != Lempiras(180) {
		t.Fatalf("sub: got %v", got)
	}
	if got := SumMoney(a, b, Money{Cents: 1}); got.Cents != 42001 {
		t.Fatalf("sum: got %d", got.Cents)
	}
	if got := MinMoney(a, b); got != b {
		t.Fatalf("min: got %v", got)
	}
	if !b.Less(a) || a.Less(b) {
		t.Fatal("less is inconsistent")
	}
	if a.Neg().IsPositive() || !a.IsPositive() {
		t.Fatal("sign checks failed")
	}
}
