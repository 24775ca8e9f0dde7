// Package fixed implements WAD (1e18-scaled) fixed-point arithmetic on
// 256-bit-bounded big integers. Every operation that can leave the signed or
// unsigned 256-bit range fails with ErrOverflow; nothing saturates or wraps.
package fixed

import (
	"errors"
	"math/big"
)

// Errors are sentinel values so callers can distinguish arithmetic failure
// from business-rule failure.
var (
	ErrOverflow     = errors.New("fixed: arithmetic overflow")
	ErrDivideByZero = errors.New("fixed: division by zero")
)

var (
	// WAD is the fixed-point scale: all monetary quantities carry 18 decimals.
	WAD = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// MaxInt256 / MinInt256 bound signed quantities, MaxUint256 unsigned ones.
	MaxInt256  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	MinInt256  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	zero = big.NewInt(0)
)

// CheckSigned rejects values outside the signed 256-bit range.
func CheckSigned(v *big.Int) error {
	if v.Cmp(MinInt256) < 0 || v.Cmp(MaxInt256) > 0 {
		return ErrOverflow
	}
	return nil
}

// CheckUnsigned rejects negative values and values above the unsigned
// 256-bit range.
func CheckUnsigned(v *big.Int) error {
	if v.Sign() < 0 || v.Cmp(MaxUint256) > 0 {
		return ErrOverflow
	}
	return nil
}

// Add returns a + b bounded to the signed range.
func Add(a, b *big.Int) (*big.Int, error) {
	r := new(big.Int).Add(a, b)
	if err := CheckSigned(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Sub returns a - b bounded to the signed range.
func Sub(a, b *big.Int) (*big.Int, error) {
	r := new(big.Int).Sub(a, b)
	if err := CheckSigned(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Mul returns (a * b) / WAD. The wide intermediate a*b is checked against
// the signed range before descaling, so an overflowing product is reported
// even when the final quotient would fit.
func Mul(a, b *big.Int) (*big.Int, error) {
	wide := new(big.Int).Mul(a, b)
	if err := CheckSigned(wide); err != nil {
		return nil, err
	}
	return wide.Quo(wide, WAD), nil
}

// Div returns (a * WAD) / b. Fails with ErrDivideByZero when b is zero and
// with ErrOverflow when the widened numerator leaves the signed range.
func Div(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivideByZero
	}
	wide := new(big.Int).Mul(a, WAD)
	if err := CheckSigned(wide); err != nil {
		return nil, err
	}
	r := wide.Quo(wide, b)
	if err := CheckSigned(r); err != nil {
		return nil, err
	}
	return r, nil
}

// UMul is Mul restricted to the unsigned range on inputs and output.
func UMul(a, b *big.Int) (*big.Int, error) {
	if a.Sign() < 0 || b.Sign() < 0 {
		return nil, ErrOverflow
	}
	wide := new(big.Int).Mul(a, b)
	if err := CheckUnsigned(wide); err != nil {
		return nil, err
	}
	return wide.Quo(wide, WAD), nil
}

// UDiv is Div restricted to the unsigned range on inputs and output.
func UDiv(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivideByZero
	}
	if a.Sign() < 0 || b.Sign() < 0 {
		return nil, ErrOverflow
	}
	wide := new(big.Int).Mul(a, WAD)
	if err := CheckUnsigned(wide); err != nil {
		return nil, err
	}
	return wide.Quo(wide, b), nil
}

// Abs returns |a| as a fresh value.
func Abs(a *big.Int) *big.Int {
	return new(big.Int).Abs(a)
}

// Max returns the larger of a and b as a fresh value.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Min returns the smaller of a and b as a fresh value.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Clone returns an independent copy of v, treating nil as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// FromInt64 lifts an unscaled integer amount into WAD scale.
func FromInt64(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), WAD)
}

// IsZero reports whether v is nil or exactly zero.
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}
