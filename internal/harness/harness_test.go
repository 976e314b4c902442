/*
SPDX-License-Identifier: Apache-2.0
*/

package harness

import (
	"context"
	"testing"
	"time"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/config"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/escrow"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/metrics"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/protocol"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testOptions(t *testing.T) Options {
	opts := OptionsFrom(config.Default().Simulation)
	opts.Logger = zaptest.NewLogger(t)
	return opts
}

func balanceOf(res Result, asset, owner string) uint64 {
	for _, b := range res.Balances {
		if b.Asset == asset && b.Owner == owner {
			return b.Amount
		}
	}
	return 0
}

func run(t *testing.T, name string, opts Options) Result {
	t.Helper()
	s, ok := Lookup(name)
	require.True(t, ok, name)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := Run(ctx, s, opts)
	require.NoError(t, err)
	return res
}

func TestPurchaseScenarios(t *testing.T) {
	tests := []struct {
		name  string
		price uint64
	}{
		{"purchase-at-start", 100},
		{"purchase-in-mid", 55},
		{"purchase-at-end", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.name, testOptions(t))

			assert.Equal(t, protocol.Accepted, res.Lifecycle)
			assert.True(t, res.Closed)
			assert.Equal(t, tt.price, res.Price)
			assert.Equal(t, 2001-tt.price, balanceOf(res, escrow.Currency, Alice))
			assert.Equal(t, uint64(1999), balanceOf(res, escrow.Currency, Bob))
			assert.Equal(t, tt.price, balanceOf(res, escrow.Currency, Creator))
			assert.Equal(t, uint64(1), balanceOf(res, Lot, Alice))
			assert.Equal(t, uint64(0), balanceOf(res, Lot, Bob))
		})
	}
}

func TestDeleteInactive(t *testing.T) {
	res := run(t, "delete-inactive", testOptions(t))

	assert.Equal(t, protocol.Deleted, res.Lifecycle)
	assert.False(t, res.Closed)
	assert.Equal(t, uint64(2000), balanceOf(res, escrow.Currency, Alice))
	assert.Equal(t, uint64(2000), balanceOf(res, escrow.Currency, Bob))
}

func TestActivateWithPayment(t *testing.T) {
	res := run(t, "activate-with-payment", testOptions(t))

	assert.Equal(t, protocol.Active, res.Lifecycle)
	assert.Equal(t, uint64(2001), balanceOf(res, escrow.Currency, Alice))
	assert.Equal(t, uint64(1999), balanceOf(res, escrow.Currency, Bob))
}

func TestCancel(t *testing.T) {
	res := run(t, "cancel", testOptions(t))

	assert.Equal(t, protocol.Cancelled, res.Lifecycle)
	assert.True(t, res.Closed)
	assert.Equal(t, uint64(1), balanceOf(res, Lot, Bob))
	assert.Equal(t, uint64(0), balanceOf(res, Lot, escrow.AccountFor("cancel")))
	assert.Equal(t, uint64(2001), balanceOf(res, escrow.Currency, Alice))
}

func TestSplitPayment(t *testing.T) {
	for _, name := range []string{"split-payment-2", "split-payment-5", "split-payment-50", "split-payment-500"} {
		t.Run(name, func(t *testing.T) {
			res := run(t, name, testOptions(t))

			require.Equal(t, protocol.Accepted, res.Lifecycle)
			require.Equal(t, uint64(10), res.Price)

			paid := balanceOf(res, escrow.Currency, Creator)
			for _, payee := range Payees {
				paid += balanceOf(res, escrow.Currency, payee)
			}
			assert.Equal(t, res.Price, paid)
			assert.Equal(t, uint64(0), balanceOf(res, escrow.Currency, escrow.AccountFor(name)))
		})
	}
}

func TestRunAll(t *testing.T) {
	opts := testOptions(t)
	rec, err := metrics.NewRecorder()
	require.NoError(t, err)
	opts.Metrics = rec

	results, err := RunAll(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, results, len(Scenarios()))

	for i, s := range Scenarios() {
		assert.Equal(t, s.Name, results[i].Scenario)
		assert.NotEmpty(t, s.Description)
	}
	assert.Equal(t, 7.0, testutil.ToFloat64(rec.RelaysCompleted))
	assert.Equal(t, 100.0+55+10+4*10, testutil.ToFloat64(rec.SettledVolume))
}

func TestLookupUnknown(t *testing.T) {
	_, ok := Lookup("nope")
	assert.False(t, ok)
}

func TestRunFailsOnBadSizing(t *testing.T) {
	opts := testOptions(t)
	opts.StartingBalance = 5

	s, _ := Lookup("purchase-at-start")
	_, err := Run(context.Background(), s, opts)
	require.Error(t, err)
}
