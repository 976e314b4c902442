/*
SPDX-License-Identifier: Apache-2.0
*/

// Package escrow tracks the token lot and currency a contract instance holds
// on behalf of its participants.
package escrow

import (
	"fmt"
	"strings"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/amount"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/fault"
)

// Currency is the asset identifier of the network currency.
const Currency = "currency"

// Bank is the fungible-token ledger the escrow moves funds on.
type Bank interface {
	Balance(asset, owner string) (uint64, error)
	Transfer(asset, from, to string, amount uint64) error
}

const accountPrefix = "escrow:"

// AccountFor returns the ledger address an instance escrows funds under.
func AccountFor(instanceID string) string {
	return accountPrefix + instanceID
}

// IsAccount reports whether addr is an escrow address rather than a participant.
func IsAccount(addr string) bool {
	return strings.HasPrefix(addr, accountPrefix)
}

// Ledger is the escrow state of one contract instance.
type Ledger struct {
	Account      string `json:"account"`
	Token        string `json:"token"`
	Depositer    string `json:"depositer,omitempty"`
	LotAmount    uint64 `json:"lotAmount"`
	HeldCurrency uint64 `json:"heldCurrency"`
}

// Empty reports whether nothing is held.
func (l *Ledger) Empty() bool {
	return l.LotAmount == 0 && l.HeldCurrency == 0
}

// RequireFunds fails with InsufficientFunds if owner holds less than amt of asset.
func RequireFunds(bank Bank, op, asset, owner string, amt uint64) error {
	balance, err := bank.Balance(asset, owner)
	if err != nil {
		return fmt.Errorf("failed to read balance of %s: %w", owner, err)
	}
	if balance < amt {
		return fault.New(fault.InsufficientFunds, op, "%s holds %d %s, needs %d", owner, balance, asset, amt)
	}
	return nil
}

// RequireCredit fails if crediting amt of asset to owner would overflow its balance.
func RequireCredit(bank Bank, op, asset, owner string, amt uint64) error {
	balance, err := bank.Balance(asset, owner)
	if err != nil {
		return fmt.Errorf("failed to read balance of %s: %w", owner, err)
	}
	if _, err := amount.Add(balance, amt); err != nil {
		return fault.New(fault.InvalidParameters, op, "%s cannot receive %d %s: %v", owner, amt, asset, err)
	}
	return nil
}

// Leg is one outgoing payment of held currency.
type Leg struct {
	To     string
	Amount uint64
}

// CheckRelease verifies that the whole lot can move to to.
func (l *Ledger) CheckRelease(bank Bank, op, to string) error {
	if l.LotAmount == 0 || to == l.Account {
		return nil
	}
	if err := RequireFunds(bank, op, l.Token, l.Account, l.LotAmount); err != nil {
		return err
	}
	return RequireCredit(bank, op, l.Token, to, l.LotAmount)
}

// CheckPay verifies that every leg can be paid out of held currency, so a
// sequence of Pay calls cannot stop halfway.
func (l *Ledger) CheckPay(bank Bank, op string, legs []Leg) error {
	var order []string
	totals := make(map[string]uint64, len(legs))
	var total uint64
	for _, leg := range legs {
		if leg.Amount == 0 {
			continue
		}
		var err error
		if total, err = amount.Add(total, leg.Amount); err != nil {
			return fault.New(fault.InvalidParameters, op, "payout total: %v", err)
		}
		if leg.To == l.Account {
			continue
		}
		if _, seen := totals[leg.To]; !seen {
			order = append(order, leg.To)
		}
		if totals[leg.To], err = amount.Add(totals[leg.To], leg.Amount); err != nil {
			return fault.New(fault.InvalidParameters, op, "payout to %s: %v", leg.To, err)
		}
	}
	if total > l.HeldCurrency {
		return fault.New(fault.InsufficientFunds, op, "escrow holds %d, cannot pay %d", l.HeldCurrency, total)
	}
	if err := RequireFunds(bank, op, Currency, l.Account, total); err != nil {
		return err
	}
	for _, to := range order {
		if err := RequireCredit(bank, op, Currency, to, totals[to]); err != nil {
			return err
		}
	}
	return nil
}

// Deposit moves the lot from the depositer into escrow.
func (l *Ledger) Deposit(bank Bank, from, token string, amt uint64) error {
	const op = "deposit"
	if token != l.Token {
		return fault.New(fault.WrongToken, op, "expected token %q, got %q", l.Token, token)
	}
	if amt == 0 {
		return fault.New(fault.InvalidParameters, op, "lot amount must be positive")
	}
	if l.LotAmount > 0 {
		return fault.New(fault.InvalidState, op, "lot already deposited")
	}
	if err := RequireFunds(bank, op, token, from, amt); err != nil {
		return err
	}
	if err := bank.Transfer(token, from, l.Account, amt); err != nil {
		return fmt.Errorf("failed to escrow lot: %w", err)
	}
	l.Depositer = from
	l.LotAmount = amt
	return nil
}

// Hold moves currency from a buyer into escrow.
func (l *Ledger) Hold(bank Bank, from string, amt uint64) error {
	if amt == 0 {
		return nil
	}
	if err := RequireFunds(bank, "hold", Currency, from, amt); err != nil {
		return err
	}
	if err := bank.Transfer(Currency, from, l.Account, amt); err != nil {
		return fmt.Errorf("failed to escrow currency: %w", err)
	}
	l.HeldCurrency += amt
	return nil
}

// ReleaseLot hands the whole lot to the buyer.
func (l *Ledger) ReleaseLot(bank Bank, to string) error {
	if l.LotAmount == 0 {
		return nil
	}
	if err := bank.Transfer(l.Token, l.Account, to, l.LotAmount); err != nil {
		return fmt.Errorf("failed to release lot: %w", err)
	}
	l.LotAmount = 0
	return nil
}

// Pay moves held currency to a recipient.
func (l *Ledger) Pay(bank Bank, to string, amt uint64) error {
	if amt == 0 {
		return nil
	}
	if amt > l.HeldCurrency {
		return fault.New(fault.InsufficientFunds, "pay", "escrow holds %d, cannot pay %d", l.HeldCurrency, amt)
	}
	if err := bank.Transfer(Currency, l.Account, to, amt); err != nil {
		return fmt.Errorf("failed to pay %s: %w", to, err)
	}
	l.HeldCurrency -= amt
	return nil
}

// RefundLot returns the lot to the depositer. It is a no-op once the lot is gone.
func (l *Ledger) RefundLot(bank Bank) error {
	if l.LotAmount == 0 {
		return nil
	}
	return l.ReleaseLot(bank, l.Depositer)
}

// RefundCurrency returns all held currency to buyer. It is a no-op once nothing is held.
func (l *Ledger) RefundCurrency(bank Bank, buyer string) error {
	if l.HeldCurrency == 0 {
		return nil
	}
	return l.Pay(bank, buyer, l.HeldCurrency)
}
