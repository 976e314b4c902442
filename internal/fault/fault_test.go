/*
SPDX-License-Identifier: Apache-2.0
*/

package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := New(NotAuthorized, "cancel", "caller %s holds no cancelling role", "abc")

	require.ErrorIs(t, err, ErrNotAuthorized)
	assert.NotErrorIs(t, err, ErrInvalidState)

	wrapped := fmt.Errorf("chaincode: %w", err)
	require.ErrorIs(t, wrapped, ErrNotAuthorized)
	assert.Equal(t, NotAuthorized, KindOf(wrapped))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"full", New(WrongToken, "deposit", "got %q", "gil"), `WRONG_TOKEN: deposit: got "gil"`},
		{"no op", &Error{Kind: InvalidState, Message: "closed"}, "INVALID_STATE: closed"},
		{"kind only", ErrInsufficientFunds, "INSUFFICIENT_FUNDS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}
