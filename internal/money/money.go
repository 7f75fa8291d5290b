// Package money holds exact decimal amounts reported by the store: cart
// totals, line item totals and coupon discounts.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidAmount is returned for values that are not non-negative decimals.
var ErrInvalidAmount = errors.New("invalid amount")

// Amount is an exact, non-negative decimal amount.
// It uses big.Rat internally to avoid floating-point drift. Amount is
// immutable; the zero value is 0.00.
type Amount struct {
	rat *big.Rat
}

// Zero returns 0.00.
func Zero() Amount {
	return Amount{}
}

// New creates an Amount of numerator/denominator, e.g. New(1850, 100) is 18.50.
func New(numerator, denominator int64) Amount {
	if denominator == 0 {
		panic("money: denominator cannot be zero")
	}
	return Amount{rat: big.NewRat(numerator, denominator)}
}

// Parse reads a decimal string such as "18.50" or "0".
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	// big.Rat also accepts "a/b" fractions and exponents; the store never
	// sends either.
	if strings.ContainsAny(s, "/eE") {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	rat, ok := new(big.Rat).SetString(s)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if rat.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: negative %q", ErrInvalidAmount, s)
	}
	return Amount{rat: rat}, nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromJSON accepts either a JSON string ("18.50") or a JSON number (18.5),
// the two encodings the store uses for decimals.
func FromJSON(v any) (Amount, error) {
	switch x := v.(type) {
	case string:
		return Parse(x)
	case json.Number:
		return Parse(x.String())
	case float64:
		return Parse(big.NewFloat(x).Text('f', -1))
	case int:
		return Parse(fmt.Sprint(x))
	case int64:
		return Parse(fmt.Sprint(x))
	default:
		return Amount{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, v)
	}
}

func (a Amount) value() *big.Rat {
	if a.rat == nil {
		return new(big.Rat)
	}
	return a.rat
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{rat: new(big.Rat).Add(a.value(), b.value())}
}

// Sub returns a - b, or zero when b exceeds a.
func (a Amount) Sub(b Amount) Amount {
	diff := new(big.Rat).Sub(a.value(), b.value())
	if diff.Sign() < 0 {
		return Zero()
	}
	return Amount{rat: diff}
}

// Mul returns a * n.
func (a Amount) Mul(n int64) Amount {
	return Amount{rat: new(big.Rat).Mul(a.value(), new(big.Rat).SetInt64(n))}
}

// Equal reports whether a and b are the same amount.
func (a Amount) Equal(b Amount) bool {
	return a.value().Cmp(b.value()) == 0
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.value().Sign() == 0
}

// String formats with two decimal places, e.g. "18.50".
func (a Amount) String() string {
	return a.value().FloatString(2)
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode amount: %w", err)
	}
	parsed, err := FromJSON(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
