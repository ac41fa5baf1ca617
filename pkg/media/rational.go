// package media parses reports produced by the external media processing
// tools (transcoder, thumbnailer, caption generator). Numeric fields arrive
// as strings in tool output and are parsed strictly; tool output is
// untrusted and is never evaluated.
package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Rational is an exact numerator/denominator pair as reported by media
// tools for frame rates and sample aspect ratios (e.g. "30000/1001").
type Rational struct {
	Num int64
	Den int64
}

// ParseRational parses a "num/den" string. A bare integer is accepted as
// num/1, matching how tools report integral frame rates. Anything else,
// including signs, whitespace, decimals, and a zero denominator, is an
// error.
func ParseRational(s string) (Rational, error) {
	if s == "" {
		return Rational{}, fmt.Errorf("parse rational: empty input")
	}

	numStr, denStr, found := strings.Cut(s, "/")
	if !found {
		denStr = "1"
	}

	num, err := parseDigits(numStr)
	if err != nil {
		return Rational{}, fmt.Errorf("parse rational %q: %w", s, err)
	}
	den, err := parseDigits(denStr)
	if err != nil {
		return Rational{}, fmt.Errorf("parse rational %q: %w", s, err)
	}
	if den == 0 {
		return Rational{}, fmt.Errorf("parse rational %q: zero denominator", s)
	}

	return Rational{Num: num, Den: den}, nil
}

// parseDigits parses an unsigned decimal integer. strconv.ParseInt is not
// used directly because it accepts leading signs.
func parseDigits(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty component")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid character %q", r)
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// Float64 returns the rational as a float.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// IsZero reports whether the rational is 0 (tools report "0/0" for
// streams with no frame rate).
func (r Rational) IsZero() bool {
	return r.Num == 0
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// ParseSeconds parses a duration-in-seconds field ("42", "41.958000").
// NaN, infinities, hex floats, exponents and negative values are rejected.
func ParseSeconds(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("parse seconds: empty input")
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return 0, fmt.Errorf("parse seconds %q: invalid character %q", s, r)
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse seconds %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("parse seconds %q: not finite", s)
	}
	return v, nil
}
