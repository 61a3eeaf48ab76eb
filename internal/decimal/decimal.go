// Package decimal provides the fixed-point numeric type used end-to-end
// for prices, sizes, and fees. Money never touches float64 except at the
// log/metrics boundary (redesign flag: "floats for money").
package decimal

import (
	"database/sql/driver"
	"fmt"

	shopspring "github.com/shopspring/decimal"
)

// Decimal wraps shopspring/decimal.Decimal. A distinct named type keeps
// the dependency swappable behind this package's API without touching
// every call site, and lets us attach domain-specific rounding helpers
// (Truncate, RoundStep) that the raw library doesn't provide.
type Decimal struct {
	d shopspring.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{d: shopspring.Zero}

// New constructs a Decimal from an integer coefficient and exponent,
// value = coefficient * 10^exponent.
func New(coefficient int64, exponent int32) Decimal {
	return Decimal{d: shopspring.New(coefficient, exponent)}
}

// NewFromFloat constructs a Decimal from a float64. Reserved for
// constants and test fixtures; never use on a value that originated as
// a string from a venue payload; use NewFromString for those so a
// binary float never silently perturbs precision.
func NewFromFloat(f float64) Decimal {
	return Decimal{d: shopspring.NewFromFloat(f)}
}

// NewFromString parses a decimal literal. Venue wire payloads.
func NewFromString(s string) (Decimal, error) {
	if s == "" {
		return Zero, nil
	}
	d, err := shopspring.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("decimal: parse %q: %w", s, err)
	}
	return Decimal{d: d}, nil
}

// MustFromString is NewFromString for literal constants / test fixtures
// where a parse failure is a programmer error.
func MustFromString(s string) Decimal {
	d, err := NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NewFromStringZeroOnEmpty parses a possibly-empty/"0" venue numeric
// string, treating the empty string or a parse error as zero rather
// than raising: adapters treat missing/empty/"0" numeric strings as
// zero without erroring.
func NewFromStringZeroOnEmpty(s string) Decimal {
	if s == "" {
		return Zero
	}
	d, err := shopspring.NewFromString(s)
	if err != nil {
		return Zero
	}
	return Decimal{d: d}
}

func (d Decimal) Add(o Decimal) Decimal { return Decimal{d: d.d.Add(o.d)} }
func (d Decimal) Sub(o Decimal) Decimal { return Decimal{d: d.d.Sub(o.d)} }
func (d Decimal) Mul(o Decimal) Decimal { return Decimal{d: d.d.Mul(o.d)} }

// Div divides by o. An inexact quotient is rounded to 16 digits after
// the decimal point (shopspring's default DivisionPrecision).
func (d Decimal) Div(o Decimal) Decimal { return Decimal{d: d.d.Div(o.d)} }

func (d Decimal) Neg() Decimal { return Decimal{d: d.d.Neg()} }
func (d Decimal) Abs() Decimal { return Decimal{d: d.d.Abs()} }

func (d Decimal) Cmp(o Decimal) int     { return d.d.Cmp(o.d) }
func (d Decimal) Equal(o Decimal) bool  { return d.d.Equal(o.d) }
func (d Decimal) GreaterThan(o Decimal) bool { return d.d.GreaterThan(o.d) }
func (d Decimal) LessThan(o Decimal) bool    { return d.d.LessThan(o.d) }
func (d Decimal) GreaterThanOrEqual(o Decimal) bool { return d.d.GreaterThanOrEqual(o.d) }
func (d Decimal) LessThanOrEqual(o Decimal) bool    { return d.d.LessThanOrEqual(o.d) }

func (d Decimal) IsZero() bool     { return d.d.IsZero() }
func (d Decimal) IsPositive() bool { return d.d.IsPositive() }
func (d Decimal) IsNegative() bool { return d.d.IsNegative() }

// Float64 widens to float64. Only ever call this at the log/metrics
// boundary (structured log fields, Prometheus gauges); never feed the
// result back into a money computation.
func (d Decimal) Float64() float64 {
	f, _ := d.d.Float64()
	return f
}

func (d Decimal) String() string { return d.d.String() }

// StringFixed formats with exactly places digits after the decimal point.
func (d Decimal) StringFixed(places int32) string { return d.d.StringFixed(places) }

// Truncate drops digits beyond places without rounding, used to enforce
// a venue's sz_decimals on an order size (never round a size up past
// what the venue will accept).
func (d Decimal) Truncate(places int32) Decimal {
	return Decimal{d: d.d.Truncate(places)}
}

// RoundStep rounds down to the nearest multiple of step (lot size /
// contract multiplier / tick size). A zero or negative step is a no-op,
// since some venues report no step constraint for a symbol.
func (d Decimal) RoundStep(step Decimal) Decimal {
	if step.IsZero() || step.IsNegative() {
		return d
	}
	quotient := d.d.Div(step.d).Truncate(0)
	return Decimal{d: quotient.Mul(step.d)}
}

// MarshalJSON / UnmarshalJSON delegate to shopspring so Decimal can be
// embedded directly in venue wire structs decoded by json-iterator.
func (d Decimal) MarshalJSON() ([]byte, error) { return d.d.MarshalJSON() }

func (d *Decimal) UnmarshalJSON(data []byte) error {
	return d.d.UnmarshalJSON(data)
}

// Value / Scan satisfy database/sql/driver for completeness; this repo
// does not persist Decimal values, but a
// money type that can't round-trip sql.Scanner is a latent bug magnet.
func (d Decimal) Value() (driver.Value, error) { return d.d.Value() }

func (d *Decimal) Scan(value interface{}) error { return d.d.Scan(value) }
