/*
SPDX-License-Identifier: Apache-2.0
*/

// Package protocol implements the royalty Dutch auction state machine.
//
// An Instance is plain data. Every transition method validates lifecycle,
// caller role and funds before moving anything, applies its effects to a copy
// and only then replaces the receiver, so a failed transition leaves the
// instance unchanged.
package protocol

import (
	"fmt"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/escrow"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/fault"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/roles"
)

// Instance is one deployed contract.
type Instance struct {
	ID               string        `json:"id"`
	Lifecycle        Lifecycle     `json:"lifecycle"`
	ActivationAmount uint64        `json:"activationAmount"`
	CreatedAt        int64         `json:"createdAt"`
	Roles            roles.Table   `json:"roles"`
	Auction          *Params       `json:"auction,omitempty"`
	Escrow           escrow.Ledger `json:"escrow"`
	OpenedAt         int64         `json:"openedAt,omitempty"`
	Quote            Quote         `json:"quote"`
	CancelledBy      []roles.Role  `json:"cancelledBy,omitempty"`
	Sale             *Sale         `json:"sale,omitempty"`
}

// New deploys an instance in Pending with initiator as Initiator.
func New(id, initiator string, now int64, opts CreateOptions) (*Instance, error) {
	if id == "" {
		return nil, fault.New(fault.InvalidParameters, "create", "instance id is required")
	}
	in := &Instance{
		ID:               id,
		Lifecycle:        Pending,
		ActivationAmount: opts.ActivationAmount,
		CreatedAt:        now,
		Roles:            roles.Table{},
		Escrow:           escrow.Ledger{Account: escrow.AccountFor(id)},
	}
	if err := in.Roles.Bind(roles.Initiator, initiator); err != nil {
		return nil, err
	}
	verifier := opts.Verifier
	if verifier == "" {
		verifier = initiator
	}
	if err := in.Roles.Bind(roles.Verifier, verifier); err != nil {
		return nil, err
	}
	if opts.Auctioneer != "" {
		if err := in.Roles.Bind(roles.Auctioneer, opts.Auctioneer); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// Closed reports whether the auction finished by acceptance or mutual cancellation.
func (in *Instance) Closed() bool {
	return in.Lifecycle == Accepted || in.Lifecycle == Cancelled
}

// CurrentPrice returns the price at now, or false unless the auction is Open.
// Observation time never moves backwards past the last persisted quote.
func (in *Instance) CurrentPrice(now int64) (uint64, bool) {
	if in.Lifecycle != Open || in.Auction == nil {
		return 0, false
	}
	return in.Auction.curve(in.OpenedAt).At(in.observe(now)), true
}

func (in *Instance) observe(now int64) int64 {
	if now < in.Quote.ObservedAt {
		return in.Quote.ObservedAt
	}
	return now
}

// Join activates the instance: caller becomes Counterparty and pays the
// activation amount to the Initiator.
func (in *Instance) Join(caller string, now int64, bank escrow.Bank) error {
	const op = string(roles.Join)
	return in.apply(func(next *Instance) error {
		if err := next.requireState(op, Pending); err != nil {
			return err
		}
		initiator, _ := next.Roles.Address(roles.Initiator)
		if caller == "" || caller == initiator {
			return fault.New(fault.NotAuthorized, op, "the initiator cannot join its own instance")
		}
		if err := next.Roles.Bind(roles.Counterparty, caller); err != nil {
			return err
		}
		if _, ok := next.Roles.Address(roles.Auctioneer); !ok {
			next.Roles[roles.Auctioneer] = caller
		}
		if err := escrow.RequireFunds(bank, op, escrow.Currency, caller, next.ActivationAmount); err != nil {
			return err
		}
		if next.ActivationAmount > 0 {
			if err := bank.Transfer(escrow.Currency, caller, initiator, next.ActivationAmount); err != nil {
				return fmt.Errorf("failed to pay activation: %w", err)
			}
		}
		next.Lifecycle = Active
		return nil
	})
}

// Delete tears down an instance nobody joined.
func (in *Instance) Delete(caller string) error {
	const op = roles.Delete
	return in.apply(func(next *Instance) error {
		if err := next.requireState(string(op), Pending); err != nil {
			return err
		}
		if _, err := next.Roles.Authorize(op, caller); err != nil {
			return err
		}
		next.Lifecycle = Deleted
		return nil
	})
}

// Configure sets the auction parameters.
func (in *Instance) Configure(caller string, now int64, params Params) error {
	const op = roles.Configure
	return in.apply(func(next *Instance) error {
		if err := next.requireState(string(op), Active); err != nil {
			return err
		}
		auctioneer, err := next.Roles.Authorize(op, caller)
		if err != nil {
			return err
		}
		p := params.clone()
		if err := p.Validate(now); err != nil {
			return err
		}
		if p.Depositer == "" {
			p.Depositer, _ = next.Roles.Address(auctioneer)
		}
		if err := next.Roles.Bind(roles.Depositer, p.Depositer); err != nil {
			return err
		}
		if p.Bidder != "" {
			if err := next.Roles.Bind(roles.Bidder, p.Bidder); err != nil {
				return err
			}
		}
		next.Auction = p
		next.Escrow.Token = p.Token
		next.Lifecycle = AuctionConfigured
		return nil
	})
}

// Deposit escrows the lot and opens the auction.
func (in *Instance) Deposit(caller string, now int64, token string, amt uint64, bank escrow.Bank) error {
	const op = roles.Deposit
	return in.apply(func(next *Instance) error {
		if err := next.requireState(string(op), AuctionConfigured); err != nil {
			return err
		}
		if _, err := next.Roles.Authorize(op, caller); err != nil {
			return err
		}
		if err := next.Escrow.Deposit(bank, caller, token, amt); err != nil {
			return err
		}
		next.OpenedAt = next.observe(now)
		next.Lifecycle = Open
		next.refreshQuote(next.OpenedAt)
		return nil
	})
}

// Touch recomputes and persists the price at now.
func (in *Instance) Touch(caller string, now int64) (uint64, error) {
	const op = roles.Touch
	var price uint64
	err := in.apply(func(next *Instance) error {
		if err := next.requireState(string(op), Open); err != nil {
			return err
		}
		if _, err := next.Roles.Authorize(op, caller); err != nil {
			return err
		}
		price = next.refreshQuote(now)
		return nil
	})
	return price, err
}

// AcceptOffer buys the lot at the current price: the price moves into escrow,
// the lot moves to the buyer and the payout split is fixed.
func (in *Instance) AcceptOffer(caller string, now int64, bank escrow.Bank) (*Sale, error) {
	const op = roles.AcceptOffer
	var sale *Sale
	err := in.apply(func(next *Instance) error {
		if err := next.requireState(string(op), Open); err != nil {
			return err
		}
		if _, bound := next.Roles.Address(roles.Bidder); !bound && caller != "" {
			next.Roles[roles.Bidder] = caller
		}
		if _, err := next.Roles.Authorize(op, caller); err != nil {
			return err
		}
		price := next.refreshQuote(now)
		dist, err := next.Auction.royalty().Settle(price)
		if err != nil {
			return fmt.Errorf("failed to settle price %d: %w", price, err)
		}
		if err := next.Escrow.CheckRelease(bank, string(op), caller); err != nil {
			return err
		}
		if err := next.Escrow.Hold(bank, caller, price); err != nil {
			return err
		}
		if err := next.Escrow.ReleaseLot(bank, caller); err != nil {
			return err
		}
		next.Sale = &Sale{
			Buyer:        caller,
			Price:        price,
			AcceptedAt:   next.Quote.ObservedAt,
			Distribution: dist,
		}
		next.Lifecycle = Accepted
		sale = next.Sale.clone()
		return nil
	})
	return sale, err
}

// Cancel records a cancellation request from the Initiator or Counterparty.
// Funds move only once both have asked; a repeated request is a no-op, also
// after the lot was sold. It reports whether the instance is now Cancelled.
func (in *Instance) Cancel(caller string, bank escrow.Bank) (bool, error) {
	const op = roles.Cancel
	err := in.apply(func(next *Instance) error {
		if err := next.requireState(string(op), Open, Cancelled, Accepted); err != nil {
			return err
		}
		if next.Lifecycle == Accepted {
			// only a request recorded before the sale may be repeated
			if role, err := next.Roles.Authorize(op, caller); err == nil && next.cancelledBy(role) {
				return nil
			}
			return fault.New(fault.InvalidState, string(op), "instance %s is %s", next.ID, next.Lifecycle)
		}
		role, err := next.Roles.Authorize(op, caller)
		if err != nil {
			return err
		}
		if next.cancelledBy(role) {
			return nil
		}
		next.CancelledBy = append(next.CancelledBy, role)
		if !next.cancelledBy(roles.Initiator) || !next.cancelledBy(roles.Counterparty) {
			return nil
		}
		if err := next.Escrow.CheckRelease(bank, string(op), next.Escrow.Depositer); err != nil {
			return err
		}
		refund := []escrow.Leg{{To: next.buyer(), Amount: next.Escrow.HeldCurrency}}
		if err := next.Escrow.CheckPay(bank, string(op), refund); err != nil {
			return err
		}
		if err := next.Escrow.RefundLot(bank); err != nil {
			return err
		}
		if err := next.Escrow.RefundCurrency(bank, next.buyer()); err != nil {
			return err
		}
		next.Lifecycle = Cancelled
		return nil
	})
	return in.Lifecycle == Cancelled, err
}

// Relay pays the accepted price out of escrow. Every payout is checked
// before the first one moves. Only the first call after acceptance moves
// funds; it reports whether this call did.
func (in *Instance) Relay(caller string, bank escrow.Bank) (bool, error) {
	const op = roles.Relay
	var paid bool
	err := in.apply(func(next *Instance) error {
		if err := next.requireState(string(op), Accepted); err != nil {
			return err
		}
		if _, err := next.Roles.Authorize(op, caller); err != nil {
			return err
		}
		if next.Sale == nil || next.Sale.Relayed {
			return nil
		}
		payouts := next.Sale.Distribution.Transfers()
		legs := make([]escrow.Leg, 0, len(payouts))
		for _, p := range payouts {
			legs = append(legs, escrow.Leg{To: p.Address, Amount: p.Amount})
		}
		if err := next.Escrow.CheckPay(bank, string(op), legs); err != nil {
			return err
		}
		for _, p := range payouts {
			if err := next.Escrow.Pay(bank, p.Address, p.Amount); err != nil {
				return err
			}
		}
		next.Sale.Relayed = true
		paid = true
		return nil
	})
	return paid, err
}

func (in *Instance) refreshQuote(now int64) uint64 {
	at := in.observe(now)
	price, _ := in.CurrentPrice(at)
	in.Quote = Quote{Price: price, ObservedAt: at}
	return price
}

func (in *Instance) cancelledBy(role roles.Role) bool {
	for _, r := range in.CancelledBy {
		if r == role {
			return true
		}
	}
	return false
}

func (in *Instance) buyer() string {
	if in.Sale != nil {
		return in.Sale.Buyer
	}
	addr, _ := in.Roles.Address(roles.Bidder)
	return addr
}

func (in *Instance) requireState(op string, allowed ...Lifecycle) error {
	for _, l := range allowed {
		if in.Lifecycle == l {
			return nil
		}
	}
	return fault.New(fault.InvalidState, op, "instance %s is %s", in.ID, in.Lifecycle)
}

func (in *Instance) apply(fn func(next *Instance) error) error {
	next := in.Clone()
	if err := fn(next); err != nil {
		return err
	}
	*in = *next
	return nil
}

// Clone returns a deep copy.
func (in *Instance) Clone() *Instance {
	c := *in
	c.Roles = in.Roles.Clone()
	if in.Auction != nil {
		c.Auction = in.Auction.clone()
	}
	c.CancelledBy = append([]roles.Role(nil), in.CancelledBy...)
	if in.Sale != nil {
		c.Sale = in.Sale.clone()
	}
	return &c
}
