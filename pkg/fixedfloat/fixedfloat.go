// Package fixedfloat implements a signed base-10 fixed-point number
// with 18 fractional digits, the numeric type every other package in
// the module builds on. It never wraps: a result beyond 2^256-1 is an
// overflow error. Parse and the token-integer conversions return a
// precision-loss error rather than drop digits; Mul and Div truncate
// their results toward zero at 18 fractional digits without an error.
package fixedfloat

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/rainorder/obcore/pkg/obcoreerr"
)

// Scale is the fixed number of fractional decimal digits every Value
// carries internally. 10^Scale is the unit conversion factor between
// a Value's magnitude and its decimal representation.
const Scale = 18

// MaxDecimals is the largest token-decimals value FromTokenInteger and
// ToTokenInteger will accept, per the design's stated range.
const MaxDecimals = 77

var pow10Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Scale), nil)

// maxMagnitude is the largest magnitude a Value may hold: 2^256 - 1,
// matching the design's "range at least ±2^256". Any operation whose
// result would exceed this is an overflow, not a wraparound.
var maxMagnitude = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func checkBounds(mag *big.Int) error {
	if mag.CmpAbs(maxMagnitude) > 0 {
		return obcoreerr.New(obcoreerr.KindArithmeticOverflow, fmt.Sprintf("magnitude %s exceeds 2^256-1", mag.String()))
	}
	return nil
}

// Value is an immutable signed fixed-point number: magnitude * 10^-18,
// negated if neg is true. Zero is always represented with neg=false.
// The zero Go value (nil Mag is never produced by this package's
// constructors) is not a valid Value; use Zero().
type Value struct {
	mag *big.Int
	neg bool
}

// Zero returns the canonical zero value.
func Zero() Value {
	return Value{mag: big.NewInt(0), neg: false}
}

func normalize(mag *big.Int, neg bool) Value {
	if mag.Sign() == 0 {
		neg = false
	}
	return Value{mag: mag, neg: neg}
}

// FromInt64 builds a Value representing the given signed integer
// number of whole units (no fractional part).
func FromInt64(n int64) Value {
	neg := n < 0
	mag := big.NewInt(n)
	mag.Abs(mag)
	mag.Mul(mag, pow10Scale)
	return normalize(mag, neg)
}

// Parse reads a decimal string (optionally signed, optionally with a
// fractional part) into a Value. Fractional digits beyond Scale are a
// precision-loss error rather than silently truncated.
func Parse(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, obcoreerr.New(obcoreerr.KindInvalidInput, "empty decimal string")
	}

	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}
	if s == "" {
		return Value{}, obcoreerr.New(obcoreerr.KindInvalidInput, "no digits after sign")
	}

	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > Scale {
		return Value{}, obcoreerr.New(obcoreerr.KindArithmeticPrecisionLoss,
			fmt.Sprintf("%q has more than %d fractional digits", s, Scale))
	}
	for _, c := range intPart + fracPart {
		if c < '0' || c > '9' {
			return Value{}, obcoreerr.New(obcoreerr.KindInvalidInput, fmt.Sprintf("malformed decimal %q", s))
		}
	}
	fracPart = fracPart + strings.Repeat("0", Scale-len(fracPart))

	mag, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return Value{}, obcoreerr.New(obcoreerr.KindInvalidInput, fmt.Sprintf("malformed decimal %q", s))
	}
	return normalize(mag, neg), nil
}

// MustParse is Parse that panics on error; intended for constants and
// tests, never for caller-supplied input.
func MustParse(s string) Value {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromTokenInteger scales a raw token-integer amount (as held onchain,
// at the token's native decimals) up to the 18-decimal fixed point
// representation. decimals must be in [0, MaxDecimals].
func FromTokenInteger(raw *big.Int, decimals uint8, neg bool) (Value, error) {
	if decimals > MaxDecimals {
		return Value{}, obcoreerr.New(obcoreerr.KindInvalidInput, fmt.Sprintf("decimals %d out of range", decimals))
	}
	if raw == nil || raw.Sign() < 0 {
		return Value{}, obcoreerr.New(obcoreerr.KindInvalidInput, "raw token integer must be non-negative")
	}

	mag := new(big.Int).Set(raw)
	shift := int(Scale) - int(decimals)
	if shift >= 0 {
		mag.Mul(mag, pow10(shift))
	} else {
		divisor := pow10(-shift)
		rem := new(big.Int)
		mag.QuoRem(mag, divisor, rem)
		if rem.Sign() != 0 {
			return Value{}, obcoreerr.New(obcoreerr.KindArithmeticPrecisionLoss,
				"raw amount does not fit in 18 fractional digits at this token's decimals")
		}
	}
	return normalize(mag, neg), nil
}

// ToTokenInteger scales a Value down to a raw token-integer amount at
// the given token decimals. Fails if the value carries precision the
// target decimals cannot represent.
func (v Value) ToTokenInteger(decimals uint8) (*big.Int, error) {
	if decimals > MaxDecimals {
		return nil, obcoreerr.New(obcoreerr.KindInvalidInput, fmt.Sprintf("decimals %d out of range", decimals))
	}
	shift := int(Scale) - int(decimals)
	mag := new(big.Int).Set(v.mag)
	if shift <= 0 {
		mag.Mul(mag, pow10(-shift))
		return mag, nil
	}
	divisor := pow10(shift)
	rem := new(big.Int)
	mag.QuoRem(mag, divisor, rem)
	if rem.Sign() != 0 {
		return nil, obcoreerr.New(obcoreerr.KindArithmeticPrecisionLoss,
			"value cannot be represented exactly at this token's decimals")
	}
	return mag, nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Format renders the value as a canonical signed decimal string in its
// shortest exact form: trailing fractional zeros are trimmed, and whole
// numbers carry no fractional part at all.
func (v Value) Format() string {
	digits := v.mag.String()
	if len(digits) <= Scale {
		digits = strings.Repeat("0", Scale-len(digits)+1) + digits
	}
	intPart := digits[:len(digits)-Scale]
	fracPart := digits[len(digits)-Scale:]
	fracPart = strings.TrimRight(fracPart, "0")

	var b strings.Builder
	if v.neg {
		b.WriteByte('-')
	}
	b.WriteString(intPart)
	if fracPart != "" {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}
	return b.String()
}

func (v Value) String() string { return v.Format() }

// IsZero reports whether v is the canonical zero value.
func (v Value) IsZero() bool { return v.mag.Sign() == 0 }

// IsNegative reports whether v is strictly less than zero.
func (v Value) IsNegative() bool { return v.neg && v.mag.Sign() != 0 }

// Neg returns -v.
func (v Value) Neg() Value {
	return normalize(new(big.Int).Set(v.mag), !v.neg)
}

// Cmp implements the design's total ordering: negatives < positives,
// and within a sign, magnitude order (reversed for negatives).
func (v Value) Cmp(other Value) int {
	if v.neg != other.neg {
		if v.mag.Sign() == 0 && other.mag.Sign() == 0 {
			return 0
		}
		if v.neg {
			return -1
		}
		return 1
	}
	c := v.mag.Cmp(other.mag)
	if v.neg {
		return -c
	}
	return c
}

func (v Value) Eq(o Value) bool  { return v.Cmp(o) == 0 }
func (v Value) Lt(o Value) bool  { return v.Cmp(o) < 0 }
func (v Value) Lte(o Value) bool { return v.Cmp(o) <= 0 }
func (v Value) Gt(o Value) bool  { return v.Cmp(o) > 0 }
func (v Value) Gte(o Value) bool { return v.Cmp(o) >= 0 }

// Add returns v + o.
func (v Value) Add(o Value) (Value, error) {
	if v.neg == o.neg {
		sum := new(big.Int).Add(v.mag, o.mag)
		if err := checkBounds(sum); err != nil {
			return Value{}, err
		}
		return normalize(sum, v.neg), nil
	}
	// opposite signs: subtract the smaller magnitude from the larger
	switch v.mag.CmpAbs(o.mag) {
	case 0:
		return Zero(), nil
	case 1:
		return normalize(new(big.Int).Sub(v.mag, o.mag), v.neg), nil
	default:
		return normalize(new(big.Int).Sub(o.mag, v.mag), o.neg), nil
	}
}

// Sub returns v - o.
func (v Value) Sub(o Value) (Value, error) {
	return v.Add(o.Neg())
}

// Mul returns v * o. The product of two 18-decimal fixed-point numbers
// is computed at double scale and then divided back down by 10^18,
// truncating toward zero: digits beyond the 18th fractional place are
// dropped without an error.
func (v Value) Mul(o Value) (Value, error) {
	product := new(big.Int).Mul(v.mag, o.mag)
	product.Quo(product, pow10Scale)
	if err := checkBounds(product); err != nil {
		return Value{}, err
	}
	return normalize(product, v.neg != o.neg), nil
}

// Div returns v / o to 18 fractional digits, truncating toward zero
// without an error. Returns ArithmeticDivisionByZero if o is zero.
func (v Value) Div(o Value) (Value, error) {
	if o.mag.Sign() == 0 {
		return Value{}, obcoreerr.New(obcoreerr.KindArithmeticDivisionByZero, "division by zero")
	}
	numerator := new(big.Int).Mul(v.mag, pow10Scale)
	quotient := new(big.Int).Quo(numerator, o.mag)
	if err := checkBounds(quotient); err != nil {
		return Value{}, err
	}
	return normalize(quotient, v.neg != o.neg), nil
}

// Raw exposes the underlying 18-decimal magnitude for codec use; the
// returned *big.Int is a defensive copy.
func (v Value) Raw() (*big.Int, bool) {
	return new(big.Int).Set(v.mag), v.neg
}

// FromRaw constructs a Value from an already-18-decimal-scaled
// magnitude, for codec/storage round trips.
func FromRaw(mag *big.Int, neg bool) Value {
	return normalize(new(big.Int).Set(mag), neg)
}
