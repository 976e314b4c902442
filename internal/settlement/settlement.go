/*
SPDX-License-Identifier: Apache-2.0
*/

// Package settlement splits an accepted auction price between royalty payees
// and the creator.
package settlement

import (
	"fmt"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/amount"
)

// MaxPayees is the largest number of royalty payees an auction may name.
const MaxPayees = 5

// Payout is a single transfer of currency out of escrow.
type Payout struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// Distribution is the full split of one accepted price.
type Distribution struct {
	Price       uint64   `json:"price"`
	RoyaltyPool uint64   `json:"royaltyPool"`
	Payees      []Payout `json:"payees"` // insertion order of the configured payees
	Creator     Payout   `json:"creator"`
}

// Total is the sum of every payout, which always equals Price.
func (d Distribution) Total() uint64 {
	total := d.Creator.Amount
	for _, p := range d.Payees {
		total += p.Amount
	}
	return total
}

// Transfers lists every non-zero payout in payout order, payees first.
func (d Distribution) Transfers() []Payout {
	out := make([]Payout, 0, len(d.Payees)+1)
	for _, p := range d.Payees {
		if p.Amount > 0 {
			out = append(out, p)
		}
	}
	if d.Creator.Amount > 0 {
		out = append(out, d.Creator)
	}
	return out
}

// Royalty describes who shares in a sale.
type Royalty struct {
	Creator string   `json:"creator"`
	Payees  []string `json:"payees"`
	Weights []uint64 `json:"weights"`
	Cap     uint64   `json:"royaltyCap"`
}

// Validate checks the payee table shape.
func (r Royalty) Validate() error {
	if r.Creator == "" {
		return fmt.Errorf("creator address is required")
	}
	if len(r.Payees) > MaxPayees {
		return fmt.Errorf("at most %d payees are allowed, got %d", MaxPayees, len(r.Payees))
	}
	if len(r.Weights) != len(r.Payees) {
		return fmt.Errorf("got %d weights for %d payees", len(r.Weights), len(r.Payees))
	}
	for i, p := range r.Payees {
		if p == "" {
			return fmt.Errorf("payee %d has no address", i)
		}
	}
	if _, err := amount.Sum(r.Weights); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	return nil
}

// Settle splits price. The royalty pool is min(Cap, price); each payee gets
// floor(pool*weight/sum(weights)) and the creator gets everything else, so
// truncation never overpays a payee.
func (r Royalty) Settle(price uint64) (Distribution, error) {
	if err := r.Validate(); err != nil {
		return Distribution{}, err
	}
	weightSum, _ := amount.Sum(r.Weights)

	pool := amount.Min(r.Cap, price)
	dist := Distribution{
		Price:       price,
		RoyaltyPool: pool,
		Payees:      make([]Payout, len(r.Payees)),
	}

	var paid uint64
	for i, addr := range r.Payees {
		var share uint64
		if weightSum > 0 {
			var err error
			share, err = amount.MulDiv(pool, r.Weights[i], weightSum)
			if err != nil {
				return Distribution{}, fmt.Errorf("payee %d share: %w", i, err)
			}
		}
		dist.Payees[i] = Payout{Address: addr, Amount: share}
		paid += share
	}

	// paid <= pool <= price by construction
	dist.Creator = Payout{Address: r.Creator, Amount: price - paid}
	return dist, nil
}
