package valuegen

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"
)

// Decimal is a fixed-point number: unscaled * 10^-scale.
type Decimal struct {
	unscaled *big.Int
	scale    int
}

// NewDecimal returns unscaled * 10^-scale.
func NewDecimal(unscaled *big.Int, scale int) Decimal {
	if unscaled == nil {
		unscaled = new(big.Int)
	}
	return Decimal{unscaled: new(big.Int).Set(unscaled), scale: scale}
}

// ParseDecimal parses a plain decimal literal such as "-12.50".
func ParseDecimal(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimLeft(s, "+-")
	intPart, frac, _ := strings.Cut(digits, ".")
	if intPart == "" {
		intPart = "0"
	}
	u, ok := new(big.Int).SetString(intPart+frac, 10)
	if !ok {
		return Decimal{}, fmt.Errorf("invalid decimal %q", s)
	}
	if neg {
		u.Neg(u)
	}
	return Decimal{unscaled: u, scale: len(frac)}, nil
}

// Scale returns the number of fractional digits.
func (d Decimal) Scale() int { return d.scale }

// Unscaled returns a copy of the unscaled integer value.
func (d Decimal) Unscaled() *big.Int {
	if d.unscaled == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(d.unscaled)
}

// Round rounds half-up (away from zero on ties) to the given scale.
func (d Decimal) Round(scale int) Decimal {
	u := d.Unscaled()
	switch {
	case scale == d.scale:
		return Decimal{unscaled: u, scale: scale}
	case scale > d.scale:
		u.Mul(u, pow10(scale-d.scale))
		return Decimal{unscaled: u, scale: scale}
	}

	div := pow10(d.scale - scale)
	neg := u.Sign() < 0
	u.Abs(u)
	q, r := new(big.Int).QuoRem(u, div, new(big.Int))
	if r.Mul(r, big.NewInt(2)).Cmp(div) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	if neg {
		q.Neg(q)
	}
	return Decimal{unscaled: q, scale: scale}
}

// Cmp compares two decimals numerically.
func (d Decimal) Cmp(o Decimal) int {
	s := max(d.scale, o.scale)
	return d.Round(s).unscaled.Cmp(o.Round(s).unscaled)
}

// Equal reports whether both value and scale match.
func (d Decimal) Equal(o Decimal) bool {
	return d.scale == o.scale && d.Unscaled().Cmp(o.Unscaled()) == 0
}

// String renders the decimal without exponent, e.g. "1234.50".
func (d Decimal) String() string {
	u := d.Unscaled()
	neg := u.Sign() < 0
	digits := u.Abs(u).String()
	if d.scale > 0 {
		if len(digits) <= d.scale {
			digits = strings.Repeat("0", d.scale-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-d.scale] + "." + digits[len(digits)-d.scale:]
	} else if d.scale < 0 && u.Sign() != 0 {
		digits += strings.Repeat("0", -d.scale)
	}
	if neg {
		return "-" + digits
	}
	return digits
}

// Value implements driver.Valuer so decimals bind as exact literals.
func (d Decimal) Value() (driver.Value, error) {
	return d.String(), nil
}

// MarshalJSON emits the decimal as a JSON number.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
