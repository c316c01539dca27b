package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseSize parses s as num[gGmMkK], the same grammar flag.ParseSize uses
// for gokvm's -m/-T flags. unit is the multiplier assumed when s carries
// none of its own.
func parseSize(s, unit string) (int, error) {
	digits := strings.TrimRight(s, "gGmMkK")
	if len(digits) == 0 {
		return 0, fmt.Errorf("%q: not a num[gGmMkK] size", s)
	}

	amt, err := strconv.ParseUint(digits, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, err)
	}

	if len(s) > len(digits) {
		unit = s[len(digits):]
	}

	switch unit {
	case "G", "g":
		return int(amt) << 30, nil
	case "M", "m":
		return int(amt) << 20, nil
	case "K", "k":
		return int(amt) << 10, nil
	case "":
		return int(amt), nil
	}

	return 0, fmt.Errorf("%q: unrecognized size suffix %q", s, unit)
}
