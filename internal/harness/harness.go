/*
SPDX-License-Identifier: Apache-2.0
*/

// Package harness replays end-to-end auction scenarios in process. Each
// participant runs its own role script concurrently and the scripts only
// coordinate through the contract instance, as they would on a ledger.
package harness

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/config"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/escrow"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/ledger"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/metrics"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/protocol"
	"go.uber.org/zap"
)

// Participant addresses used by every scenario.
const (
	Alice   = "alice" // initiator and bidder
	Bob     = "bob"   // counterparty, auctioneer and depositer
	Creator = "creator"
	Lot     = "gil"
)

// Epoch is the simulated time every scenario starts at.
const Epoch = int64(1_700_000_000)

// Payees receive royalties in the scenarios that pay any.
var Payees = []string{"payee-1", "payee-2", "payee-3", "payee-4", "payee-5"}

// Options size a run.
type Options struct {
	StartingBalance  uint64
	LotAmount        uint64
	ActivationAmount uint64
	StartPrice       uint64
	FloorPrice       uint64
	RoyaltyCap       uint64
	Duration         int64 // seconds from configuration to end time
	Seed             int64 // drives the random royalty weights

	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// OptionsFrom copies the simulation sizing out of the configuration.
func OptionsFrom(cfg config.SimulationConfig) Options {
	return Options{
		StartingBalance:  cfg.StartingBalance,
		LotAmount:        cfg.LotAmount,
		ActivationAmount: cfg.ActivationAmount,
		StartPrice:       cfg.StartPrice,
		FloorPrice:       cfg.FloorPrice,
		RoyaltyCap:       cfg.RoyaltyCap,
		Duration:         cfg.Duration,
		Seed:             1,
	}
}

// Balance is one ledger entry at the end of a scenario.
type Balance struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

// Result is the outcome of one scenario.
type Result struct {
	Scenario  string             `json:"scenario"`
	Instance  string             `json:"instance"`
	Lifecycle protocol.Lifecycle `json:"lifecycle"`
	Closed    bool               `json:"closed"`
	Price     uint64             `json:"price,omitempty"`
	Balances  []Balance          `json:"balances"`
}

// world is the fresh ledger and clock one scenario runs against.
type world struct {
	opts  Options
	bank  *ledger.Memory
	clock *protocol.ManualClock
	rng   *rand.Rand
	log   *zap.Logger
}

func newWorld(opts Options, name string) (*world, error) {
	w := &world{
		opts:  opts,
		bank:  ledger.NewMemory(),
		clock: protocol.NewManualClock(Epoch),
		rng:   rand.New(rand.NewSource(opts.Seed)),
		log:   opts.Logger.With(zap.String("scenario", name)),
	}
	for _, who := range []string{Alice, Bob} {
		if err := w.bank.Fund(escrow.Currency, who, opts.StartingBalance); err != nil {
			return nil, err
		}
	}
	if err := w.bank.Fund(Lot, Bob, opts.LotAmount); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *world) deploy(id string) (*protocol.Machine, error) {
	return protocol.Deploy(id, Alice, w.bank,
		protocol.CreateOptions{ActivationAmount: w.opts.ActivationAmount},
		protocol.WithClock(w.clock),
		protocol.WithLogger(w.log),
		protocol.WithMetrics(w.opts.Metrics))
}

// params are the auction parameters configured at the clock's current time.
func (w *world) params(weights []uint64) protocol.Params {
	if weights == nil {
		weights = make([]uint64, len(Payees))
	}
	return protocol.Params{
		Token:      Lot,
		StartPrice: w.opts.StartPrice,
		FloorPrice: w.opts.FloorPrice,
		EndTime:    w.clock.Now() + w.opts.Duration,
		Creator:    Creator,
		Payees:     append([]string(nil), Payees...),
		Weights:    weights,
		RoyaltyCap: w.opts.RoyaltyCap,
		Bidder:     Alice,
	}
}

func (w *world) result(name string, m *protocol.Machine) Result {
	snap := m.Snapshot()
	res := Result{
		Scenario:  name,
		Instance:  snap.ID,
		Lifecycle: snap.Lifecycle,
		Closed:    snap.Closed(),
	}
	if snap.Sale != nil {
		res.Price = snap.Sale.Price
	}
	for _, asset := range []string{escrow.Currency, Lot} {
		for _, owner := range w.bank.Holders(asset) {
			amt, _ := w.bank.Balance(asset, owner)
			res.Balances = append(res.Balances, Balance{Owner: owner, Asset: asset, Amount: amt})
		}
	}
	sort.SliceStable(res.Balances, func(i, j int) bool {
		return res.Balances[i].Owner < res.Balances[j].Owner
	})
	return res
}

// Run executes one scenario on a fresh ledger.
func Run(ctx context.Context, s Scenario, opts Options) (Result, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	w, err := newWorld(opts, s.Name)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fund scenario %s: %w", s.Name, err)
	}
	m, err := w.deploy(s.Name)
	if err != nil {
		return Result{}, err
	}
	if err := s.play(ctx, w, m); err != nil {
		return Result{}, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	res := w.result(s.Name, m)
	w.log.Info("scenario finished",
		zap.String("lifecycle", string(res.Lifecycle)),
		zap.Uint64("price", res.Price))
	return res, nil
}

// RunAll executes every scenario in order and stops at the first failure.
func RunAll(ctx context.Context, opts Options) ([]Result, error) {
	var results []Result
	for _, s := range Scenarios() {
		res, err := Run(ctx, s, opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
