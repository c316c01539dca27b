package main

import "testing"

func TestParseSize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		s    string
		unit string
		want int
	}{
		{"gigabytes", "2g", "", 2 << 30},
		{"megabytes-upper", "64M", "", 64 << 20},
		{"kilobytes", "512k", "", 512 << 10},
		{"bare-number-uses-default-unit", "64", "m", 64 << 20},
		{"no-unit-and-no-default", "64", "", 64},
	}

	for _, c := range cases {
		c := c

		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseSize(c.s, c.unit)
			if err != nil {
				t.Fatalf("parseSize(%q, %q): %v", c.s, c.unit, err)
			}

			if got != c.want {
				t.Fatalf("parseSize(%q, %q) = %d, want %d", c.s, c.unit, got, c.want)
			}
		})
	}
}

func TestParseSizeRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := parseSize("", "m"); err == nil {
		t.Fatalf("expected error for an empty size string")
	}

	if _, err := parseSize("abc", "m"); err == nil {
		t.Fatalf("expected error for a non-numeric size string")
	}

	if _, err := parseSize("4x", ""); err == nil {
		t.Fatalf("expected error for an unrecognized suffix")
	}
}
