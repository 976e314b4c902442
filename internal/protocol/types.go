/*
SPDX-License-Identifier: Apache-2.0
*/

package protocol

import (
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/escrow"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/fault"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/pricecurve"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/roles"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/settlement"
)

// Lifecycle is the position of an instance in the protocol.
type Lifecycle string

const (
	Pending           Lifecycle = "Pending"
	Active            Lifecycle = "Active"
	AuctionConfigured Lifecycle = "AuctionConfigured"
	// Deposited is never persisted: deposit opens the auction in the same transition.
	Deposited Lifecycle = "Deposited"
	Open      Lifecycle = "Open"
	Accepted  Lifecycle = "Accepted"
	Cancelled Lifecycle = "Cancelled"
	Deleted   Lifecycle = "Deleted"
)

// Terminal reports whether no further state-mutating transition can succeed.
func (l Lifecycle) Terminal() bool {
	return l == Accepted || l == Cancelled || l == Deleted
}

// CreateOptions are supplied by the Initiator when deploying an instance.
type CreateOptions struct {
	ActivationAmount uint64 `json:"activationAmount"`
	// Auctioneer defaults to the Counterparty.
	Auctioneer string `json:"auctioneer,omitempty"`
	// Verifier defaults to the Initiator.
	Verifier string `json:"verifier,omitempty"`
}

// Params configure the auction. They are immutable once accepted.
type Params struct {
	Token      string   `json:"token"`
	StartPrice uint64   `json:"startPrice"`
	FloorPrice uint64   `json:"floorPrice"`
	EndTime    int64    `json:"endTime"` // unix seconds
	Creator    string   `json:"creator"`
	Payees     []string `json:"payees"`
	Weights    []uint64 `json:"weights"`
	RoyaltyCap uint64   `json:"royaltyCap"`
	// Depositer defaults to the Auctioneer.
	Depositer string `json:"depositer,omitempty"`
	// Bidder is the bound buyer. When empty the first caller to accept
	// becomes the Bidder.
	Bidder string `json:"bidder,omitempty"`
}

// Validate checks the parameters against the configuration time now.
func (p *Params) Validate(now int64) error {
	const op = string(roles.Configure)
	if p.Token == "" {
		return fault.New(fault.InvalidParameters, op, "token is required")
	}
	if p.Token == escrow.Currency {
		return fault.New(fault.InvalidParameters, op, "the lot cannot be the network currency")
	}
	if err := p.curve(now).Validate(); err != nil {
		return fault.New(fault.InvalidParameters, op, "%v", err)
	}
	if p.EndTime <= now {
		return fault.New(fault.InvalidParameters, op, "end time %d is not after %d", p.EndTime, now)
	}
	if err := p.royalty().Validate(); err != nil {
		return fault.New(fault.InvalidParameters, op, "%v", err)
	}
	return nil
}

func (p *Params) curve(openedAt int64) pricecurve.Curve {
	return pricecurve.Curve{
		Start:    p.StartPrice,
		Floor:    p.FloorPrice,
		OpenedAt: openedAt,
		EndTime:  p.EndTime,
	}
}

func (p *Params) royalty() settlement.Royalty {
	return settlement.Royalty{
		Creator: p.Creator,
		Payees:  p.Payees,
		Weights: p.Weights,
		Cap:     p.RoyaltyCap,
	}
}

func (p *Params) clone() *Params {
	c := *p
	c.Payees = append([]string(nil), p.Payees...)
	c.Weights = append([]uint64(nil), p.Weights...)
	return &c
}

// Quote is the last price persisted by open, touch or acceptance.
type Quote struct {
	Price      uint64 `json:"price"`
	ObservedAt int64  `json:"observedAt"`
}

// Sale records an accepted offer.
type Sale struct {
	Buyer        string                  `json:"buyer"`
	Price        uint64                  `json:"price"`
	AcceptedAt   int64                   `json:"acceptedAt"`
	Distribution settlement.Distribution `json:"distribution"`
	Relayed      bool                    `json:"relayed"`
}

func (s *Sale) clone() *Sale {
	c := *s
	c.Distribution.Payees = append([]settlement.Payout(nil), s.Distribution.Payees...)
	return &c
}
