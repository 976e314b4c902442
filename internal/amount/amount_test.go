/*
SPDX-License-Identifier: Apache-2.0
*/

package amount

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c uint64
		want    uint64
	}{
		{"exact", 100, 1, 5, 20},
		{"truncates", 100, 1, 3, 33},
		{"zero numerator", 0, 7, 3, 0},
		{"wide intermediate", math.MaxUint64, 3, 4, 13835058055282163711},
		{"identity", math.MaxUint64, 1, 1, math.MaxUint64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDiv(tt.a, tt.b, tt.c)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestMulDivErrors(t *testing.T) {
	_, err := MulDiv(1, 1, 0)
	require.ErrorIs(t, err, ErrDivideByZero)

	_, err = MulDiv(math.MaxUint64, 2, 1)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedArithmetic(t *testing.T) {
	require := require.New(t)

	v, err := Add(2, 3)
	require.NoError(err)
	require.Equal(uint64(5), v)

	_, err = Add(math.MaxUint64, 1)
	require.ErrorIs(err, ErrOverflow)

	v, err = Sub(5, 3)
	require.NoError(err)
	require.Equal(uint64(2), v)

	_, err = Sub(3, 5)
	require.ErrorIs(err, ErrUnderflow)

	v, err = Sum([]uint64{1, 2, 3, 4})
	require.NoError(err)
	require.Equal(uint64(10), v)

	_, err = Sum([]uint64{math.MaxUint64, 1})
	require.ErrorIs(err, ErrOverflow)

	require.Equal(uint64(3), Min(3, 9))
	require.Equal(uint64(3), Min(9, 3))
}
