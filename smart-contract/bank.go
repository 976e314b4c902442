/*
SPDX-License-Identifier: Apache-2.0
*/

package auction

import (
	"fmt"
	"strconv"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/amount"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/fault"
)

// balanceObjectType prefixes the composite key (asset, owner) of a balance
const balanceObjectType = "balance"

// worldStateBank keeps fungible balances in world state, one key per asset
// and owner, through the transaction's write buffer.
type worldStateBank struct {
	state *txState
}

func balanceKey(state *txState, asset, owner string) (string, error) {
	key, err := state.stub.CreateCompositeKey(balanceObjectType, []string{asset, owner})
	if err != nil {
		return "", fmt.Errorf("failed to build balance key: %w", err)
	}
	return key, nil
}

func (b worldStateBank) Balance(asset, owner string) (uint64, error) {
	key, err := balanceKey(b.state, asset, owner)
	if err != nil {
		return 0, err
	}
	raw, err := b.state.get(key)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	if raw == nil {
		return 0, nil
	}
	balance, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt balance of %s in %s: %w", owner, asset, err)
	}
	return balance, nil
}

func (b worldStateBank) Transfer(asset, from, to string, amt uint64) error {
	if amt == 0 || from == to {
		return nil
	}
	fromBalance, err := b.Balance(asset, from)
	if err != nil {
		return err
	}
	if fromBalance < amt {
		return fault.New(fault.InsufficientFunds, "transfer", "%s holds %d %s, needs %d", from, fromBalance, asset, amt)
	}
	toBalance, err := b.Balance(asset, to)
	if err != nil {
		return err
	}
	toNext, err := amount.Add(toBalance, amt)
	if err != nil {
		return fmt.Errorf("balance of %s in %s: %w", to, asset, err)
	}
	if err := b.set(asset, from, fromBalance-amt); err != nil {
		return err
	}
	return b.set(asset, to, toNext)
}

func (b worldStateBank) set(asset, owner string, balance uint64) error {
	key, err := balanceKey(b.state, asset, owner)
	if err != nil {
		return err
	}
	b.state.put(key, []byte(strconv.FormatUint(balance, 10)))
	return nil
}
