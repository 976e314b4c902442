/*
SPDX-License-Identifier: Apache-2.0
*/

// Package amount holds overflow-safe arithmetic on ledger amounts.
package amount

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrOverflow     = errors.New("amount overflows uint64")
	ErrUnderflow    = errors.New("amount underflows zero")
	ErrDivideByZero = errors.New("division by zero")
)

func dec(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func fromDecimal(d decimal.Decimal) (uint64, error) {
	b := d.BigInt()
	if b.Sign() < 0 {
		return 0, ErrUnderflow
	}
	if !b.IsUint64() {
		return 0, ErrOverflow
	}
	return b.Uint64(), nil
}

// MulDiv returns floor(a*b/c) without intermediate overflow.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivideByZero
	}
	q, _ := dec(a).Mul(dec(b)).QuoRem(dec(c), 0)
	return fromDecimal(q)
}

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrUnderflow.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// Sum adds all values, failing on overflow.
func Sum(values []uint64) (uint64, error) {
	var total uint64
	for _, v := range values {
		next, err := Add(total, v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}

// Min returns the smaller of a and b.
func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
