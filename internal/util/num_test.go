package util

import "testing"

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "plain", input: "125.40", want: 125.40},
		{name: "decimal comma", input: "125,40", want: 125.40},
		{name: "thousand dot", input: "1.000", want: 1000},
		{name: "thousand comma with decimal", input: "1,234.56", want: 1234.56},
		{name: "thousand dot with decimal comma", input: "1.234,56", want: 1234.56},
		{name: "currency prefix", input: "$ 1,234.56", want: 1234.56},
		{name: "unit suffix", input: "12.5 USD", want: 12.5},
		{name: "negative", input: "-3,50", want: -3.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseDecimal(tc.input)
			if got == nil {
				t.Fatalf("got nil")
			}
			if *got != tc.want {
				t.Fatalf("got %v want %v", *got, tc.want)
			}
		})
	}
}

func TestParseDecimalRejects(t *testing.T) {
	for _, input := range []string{"", "N/A", "sin datos", "-"} {
		if got := ParseDecimal(input); got != nil {
			t.Fatalf("ParseDecimal(%q) = %v, want nil", input, *got)
		}
	}
}

func TestParseCount(t *testing.T) {
	got := ParseCount("1,000")
	if got == nil || *got != 1000 {
		t.Fatalf("got %v want 1000", got)
	}
	if ParseCount("x") != nil {
		t.Fatalf("expected nil for non-numeric input")
	}
}
