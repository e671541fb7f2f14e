/*
This file contains checked arithmetic for the u64 tallies, supplies and rewards.
Operations are carried out on SDK Ints and then range-checked back into 64 bits,
so an overflow is reported as an error instead of wrapping.
*/

package utils

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance arithmetic
var (
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrUnderflow      = errors.New("arithmetic underflow")
	ErrDivisionByZero = errors.New("division by zero")
	ErrAmountNil      = errors.New("amount is nil")
	ErrAmountNegative = errors.New("amount is negative")
)

// CheckedAdd returns a+b or ErrOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	return toUint64(sdkmath.NewIntFromUint64(a).Add(sdkmath.NewIntFromUint64(b)), "add")
}

// CheckedMul returns a*b or ErrOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	return toUint64(sdkmath.NewIntFromUint64(a).Mul(sdkmath.NewIntFromUint64(b)), "mul")
}

// CheckedQuo returns the truncated quotient a/b or ErrDivisionByZero.
func CheckedQuo(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: %d / 0", ErrDivisionByZero, a)
	}
	return toUint64(sdkmath.NewIntFromUint64(a).Quo(sdkmath.NewIntFromUint64(b)), "quo")
}

// CheckedSub returns a-b or ErrUnderflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %d - %d", ErrUnderflow, a, b)
	}
	return a - b, nil
}

// CheckedSubInt64 returns a-b for signed timestamps or an overflow error.
func CheckedSubInt64(a, b int64) (int64, error) {
	res := sdkmath.NewInt(a).Sub(sdkmath.NewInt(b))
	if !res.IsInt64() {
		return 0, fmt.Errorf("%w: %d - %d", ErrOverflow, a, b)
	}
	return res.Int64(), nil
}

// SDKIntToUint64 converts an SDK Int holding a token amount into a uint64.
func SDKIntToUint64(amount sdkmath.Int) (uint64, error) {
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}
	return toUint64(amount, "convert")
}

func toUint64(v sdkmath.Int, op string) (uint64, error) {
	if v.IsNegative() {
		return 0, fmt.Errorf("%w: %s result %s", ErrUnderflow, op, v.String())
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s result %s", ErrOverflow, op, v.String())
	}
	return v.Uint64(), nil
}
