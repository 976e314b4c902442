/*
SPDX-License-Identifier: Apache-2.0
*/

package harness

import (
	"context"
	"fmt"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/protocol"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scenario is a named sequence of role scripts.
type Scenario struct {
	Name        string
	Description string
	play        func(ctx context.Context, w *world, m *protocol.Machine) error
}

// Scenarios lists every scenario in the order RunAll plays them.
func Scenarios() []Scenario {
	out := []Scenario{
		{
			Name:        "delete-inactive",
			Description: "the verifier deletes an instance nobody joined",
			play: func(_ context.Context, _ *world, m *protocol.Machine) error {
				return m.Participant(Alice).Delete()
			},
		},
		{
			Name:        "activate-with-payment",
			Description: "the counterparty joins and pays the activation amount",
			play: func(_ context.Context, _ *world, m *protocol.Machine) error {
				return m.Participant(Bob).Join()
			},
		},
		{
			Name:        "purchase-at-start",
			Description: "the bidder accepts as soon as the auction opens",
			play:        purchaseAfter(func(*world) int64 { return 0 }),
		},
		{
			Name:        "purchase-in-mid",
			Description: "the bidder accepts halfway down the curve",
			play:        purchaseAfter(func(w *world) int64 { return w.opts.Duration / 2 }),
		},
		{
			Name:        "purchase-at-end",
			Description: "the bidder accepts once the price has reached the floor",
			play:        purchaseAfter(func(w *world) int64 { return w.opts.Duration }),
		},
		{
			Name:        "cancel",
			Description: "initiator and counterparty cancel concurrently and the lot is refunded",
			play:        cancelBoth,
		},
	}
	for _, limit := range []int64{2, 5, 50, 500} {
		out = append(out, Scenario{
			Name:        fmt.Sprintf("split-payment-%d", limit),
			Description: fmt.Sprintf("the floor price is split over payees with random weights below %d", limit),
			play:        splitPayment(limit),
		})
	}
	return out
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, bool) {
	for _, s := range Scenarios() {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// openAuction is the counterparty's script up to an open auction.
func openAuction(w *world, m *protocol.Machine, weights []uint64) error {
	bob := m.Participant(Bob)
	if err := bob.Join(); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	if err := bob.Configure(w.params(weights)); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	if err := bob.Deposit(Lot, w.opts.LotAmount); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	return nil
}

func purchaseAfter(delay func(*world) int64) func(context.Context, *world, *protocol.Machine) error {
	return func(ctx context.Context, w *world, m *protocol.Machine) error {
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := openAuction(w, m, nil); err != nil {
				return err
			}
			return m.WaitFor(ctx, protocol.Accepted)
		})
		g.Go(func() error {
			if err := m.WaitFor(ctx, protocol.Open); err != nil {
				return err
			}
			w.clock.Advance(delay(w))
			sale, err := m.Participant(Alice).AcceptOffer()
			if err != nil {
				return fmt.Errorf("accept: %w", err)
			}
			w.log.Info("offer accepted", zap.Uint64("price", sale.Price))
			if _, err := m.Participant(Alice).Relay(); err != nil {
				return fmt.Errorf("relay: %w", err)
			}
			return nil
		})
		return g.Wait()
	}
}

func cancelBoth(ctx context.Context, w *world, m *protocol.Machine) error {
	if err := openAuction(w, m, nil); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, who := range []string{Alice, Bob} {
		who := who
		g.Go(func() error {
			if _, err := m.Participant(who).Cancel(); err != nil {
				return fmt.Errorf("cancel by %s: %w", who, err)
			}
			return m.WaitFor(ctx, protocol.Cancelled)
		})
	}
	return g.Wait()
}

func splitPayment(maxWeight int64) func(context.Context, *world, *protocol.Machine) error {
	return func(ctx context.Context, w *world, m *protocol.Machine) error {
		weights := make([]uint64, len(Payees))
		for i := range weights {
			weights[i] = uint64(w.rng.Int63n(maxWeight))
		}
		w.opts.RoyaltyCap = w.opts.FloorPrice * 10

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := openAuction(w, m, weights); err != nil {
				return err
			}
			return m.Wait(ctx, func(in *protocol.Instance) bool {
				return in.Sale != nil && in.Sale.Relayed
			})
		})
		g.Go(func() error {
			if err := m.WaitFor(ctx, protocol.Open); err != nil {
				return err
			}
			alice := m.Participant(Alice)
			step := w.opts.Duration / 10
			if step == 0 {
				step = 1
			}
			// walk the price down to the floor
			for {
				price, err := alice.Touch()
				if err != nil {
					return fmt.Errorf("touch: %w", err)
				}
				if price <= w.opts.FloorPrice {
					break
				}
				w.clock.Advance(step)
			}
			if _, err := alice.AcceptOffer(); err != nil {
				return fmt.Errorf("accept: %w", err)
			}
			_, err := alice.Relay()
			return err
		})
		return g.Wait()
	}
}
