/*
SPDX-License-Identifier: Apache-2.0
*/

package auction

import (
	"sort"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/protocol"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/settlement"
)

// AuctionParams is the argument of ConfigureAuction
type AuctionParams struct {
	Token      string   `json:"token"`
	StartPrice uint64   `json:"startPrice"`
	FloorPrice uint64   `json:"floorPrice"`
	EndTime    int64    `json:"endTime"` // unix seconds
	Creator    string   `json:"creator"`
	Payees     []string `json:"payees,omitempty"` // at most 5
	Weights    []uint64 `json:"weights,omitempty"`
	RoyaltyCap uint64   `json:"royaltyCap"`
	Depositer  string   `json:"depositer,omitempty"` // defaults to the auctioneer
	Bidder     string   `json:"bidder,omitempty"`    // empty lets the first caller to accept buy
}

func (p AuctionParams) toParams() protocol.Params {
	return protocol.Params{
		Token:      p.Token,
		StartPrice: p.StartPrice,
		FloorPrice: p.FloorPrice,
		EndTime:    p.EndTime,
		Creator:    p.Creator,
		Payees:     p.Payees,
		Weights:    p.Weights,
		RoyaltyCap: p.RoyaltyCap,
		Depositer:  p.Depositer,
		Bidder:     p.Bidder,
	}
}

// PriceView answers CurrentPrice. Available is false unless the auction is open.
type PriceView struct {
	Available  bool   `json:"available"`
	Price      uint64 `json:"price"`
	ObservedAt int64  `json:"observedAt"`
}

type RoleBinding struct {
	Role    string `json:"role"`
	Address string `json:"address"`
}

type EscrowView struct {
	Account      string `json:"account"`
	Token        string `json:"token,omitempty"`
	LotAmount    uint64 `json:"lotAmount"`
	HeldCurrency uint64 `json:"heldCurrency"`
}

type PayoutView struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

type SaleView struct {
	Buyer       string       `json:"buyer"`
	Price       uint64       `json:"price"`
	AcceptedAt  int64        `json:"acceptedAt"`
	RoyaltyPool uint64       `json:"royaltyPool"`
	Payees      []PayoutView `json:"payees,omitempty"`
	Creator     PayoutView   `json:"creator"`
	Relayed     bool         `json:"relayed"`
}

// InstanceView is the queryable state of a contract instance
type InstanceView struct {
	ID               string        `json:"id"`
	Lifecycle        string        `json:"lifecycle"`
	ActivationAmount uint64        `json:"activationAmount"`
	CreatedAt        int64         `json:"createdAt"`
	Roles            []RoleBinding `json:"roles,omitempty"` // sorted by role
	Configured       bool          `json:"configured"`
	Auction          AuctionParams `json:"auction"` // zero until configured
	Escrow           EscrowView    `json:"escrow"`
	OpenedAt         int64         `json:"openedAt"`
	Quote            PriceView     `json:"quote"`
	CancelledBy      []string      `json:"cancelledBy,omitempty"`
	Sold             bool          `json:"sold"`
	Sale             SaleView      `json:"sale"` // zero until accepted
}

// Instance status information, which will be presented to the users in an event
type InstanceSummary struct {
	ID         string `json:"id"`
	Op         string `json:"op"`
	Caller     string `json:"caller"`
	Lifecycle  string `json:"lifecycle"`
	Price      uint64 `json:"price"`
	ObservedAt int64  `json:"observedAt"`
	Closed     bool   `json:"closed"`
	Buyer      string `json:"buyer,omitempty"`
	Relayed    bool   `json:"relayed,omitempty"`
}

func newInstanceView(in *protocol.Instance) InstanceView {
	view := InstanceView{
		ID:               in.ID,
		Lifecycle:        string(in.Lifecycle),
		ActivationAmount: in.ActivationAmount,
		CreatedAt:        in.CreatedAt,
		Escrow: EscrowView{
			Account:      in.Escrow.Account,
			Token:        in.Escrow.Token,
			LotAmount:    in.Escrow.LotAmount,
			HeldCurrency: in.Escrow.HeldCurrency,
		},
		OpenedAt: in.OpenedAt,
		Quote: PriceView{
			Available:  in.Lifecycle == protocol.Open,
			Price:      in.Quote.Price,
			ObservedAt: in.Quote.ObservedAt,
		},
	}

	for role, addr := range in.Roles {
		view.Roles = append(view.Roles, RoleBinding{Role: string(role), Address: addr})
	}
	sort.Slice(view.Roles, func(i, j int) bool {
		return view.Roles[i].Role < view.Roles[j].Role
	})

	if p := in.Auction; p != nil {
		view.Configured = true
		view.Auction = AuctionParams{
			Token:      p.Token,
			StartPrice: p.StartPrice,
			FloorPrice: p.FloorPrice,
			EndTime:    p.EndTime,
			Creator:    p.Creator,
			Payees:     p.Payees,
			Weights:    p.Weights,
			RoyaltyCap: p.RoyaltyCap,
			Depositer:  p.Depositer,
			Bidder:     p.Bidder,
		}
	}

	for _, role := range in.CancelledBy {
		view.CancelledBy = append(view.CancelledBy, string(role))
	}

	if sale := in.Sale; sale != nil {
		view.Sold = true
		view.Sale = SaleView{
			Buyer:       sale.Buyer,
			Price:       sale.Price,
			AcceptedAt:  sale.AcceptedAt,
			RoyaltyPool: sale.Distribution.RoyaltyPool,
			Creator:     payoutView(sale.Distribution.Creator),
			Relayed:     sale.Relayed,
		}
		for _, p := range sale.Distribution.Payees {
			view.Sale.Payees = append(view.Sale.Payees, payoutView(p))
		}
	}
	return view
}

func payoutView(p settlement.Payout) PayoutView {
	return PayoutView{Address: p.Address, Amount: p.Amount}
}

func newInstanceSummary(in *protocol.Instance, op, caller string) *InstanceSummary {
	summary := &InstanceSummary{
		ID:         in.ID,
		Op:         op,
		Caller:     caller,
		Lifecycle:  string(in.Lifecycle),
		Price:      in.Quote.Price,
		ObservedAt: in.Quote.ObservedAt,
		Closed:     in.Closed(),
	}
	if in.Sale != nil {
		summary.Buyer = in.Sale.Buyer
		summary.Relayed = in.Sale.Relayed
	}
	return summary
}
