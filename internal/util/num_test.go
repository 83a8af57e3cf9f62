package util

import "testing"

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"42", 42},
		{"3.5", 3.5},
		{"1,000", 1000},
		{"1.000", 1000},
		{"1 000", 1000},
		{"1\u00a0000", 1000},
		{"12,5", 12.5},
		{"$1,234.5", 1234.5},
		{"€99", 99},
	}
	for _, c := range cases {
		got := ParseNumber(c.in)
		if got == nil {
			t.Fatalf("ParseNumber(%q) = nil, want %v", c.in, c.want)
		}
		if *got != c.want {
			t.Fatalf("ParseNumber(%q) = %v, want %v", c.in, *got, c.want)
		}
	}
}

func TestParseNumberRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "n/a", "ten"} {
		if got := ParseNumber(in); got != nil {
			t.Fatalf("ParseNumber(%q) = %v, want nil", in, *got)
		}
	}
}
