package invoice

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Number is a lenient numeric form field. Values that cannot be read as a
// finite number (empty strings, null, booleans, "abc", NaN) count as zero, so a
// half-typed form never fails to decode.
type Number struct {
	value decimal.Decimal
	valid bool
}

// Num wraps a float. NaN and infinities read as zero.
func Num(v float64) Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}
	}
	return Number{value: decimal.NewFromFloat(v), valid: true}
}

// minExponent bounds how many fractional digits a parsed value keeps exactly.
// Sums rescale every operand to the smallest exponent, so an input like
// "1e-20000000" would otherwise cost a 20-million-digit integer per addition.
const minExponent = -64

// maxExactLen is the longest text parsed exactly; longer digit runs go through
// float64 instead of an arbitrary-precision parse.
const maxExactLen = 128

// ParseNumber reads a textual number, returning an invalid (zero) Number on
// failure. Values outside the float64 range ("1e400") are not finite and read
// as zero. Very long or very fine values are rounded through float64.
func ParseNumber(s string) Number {
	s = strings.TrimSpace(s)
	if s == "" {
		return Number{}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Number{}
	}
	if len(s) > maxExactLen {
		return Num(f)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Number{}
	}
	if d.Exponent() < minExponent {
		return Num(f)
	}
	return Number{value: d, valid: true}
}

// Decimal returns the value, or zero when the field was missing or invalid.
func (n Number) Decimal() decimal.Decimal {
	if !n.valid {
		return decimal.Zero
	}
	return n.value
}

// Valid reports whether the field held a finite number.
func (n Number) Valid() bool { return n.valid }

// UnmarshalJSON accepts numbers and numeric strings. It never fails.
func (n *Number) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*n = Number{}
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			*n = Number{}
			return nil
		}
		*n = ParseNumber(s)
		return nil
	}
	*n = ParseNumber(string(raw))
	return nil
}

// MarshalJSON writes the effective value as a JSON number.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal().String()), nil
}
