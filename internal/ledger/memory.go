/*
SPDX-License-Identifier: Apache-2.0
*/

// Package ledger provides an in-process fungible-token bank.
package ledger

import (
	"sort"
	"sync"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/amount"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/fault"
)

// Memory is a thread-safe bank of asset balances keyed by owner address.
type Memory struct {
	mu       sync.RWMutex
	balances map[string]map[string]uint64
}

// NewMemory creates an empty bank.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]map[string]uint64)}
}

// Fund credits owner with amt of asset, as a test account faucet would.
func (m *Memory) Fund(asset, owner string, amt uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := amount.Add(m.balances[asset][owner], amt)
	if err != nil {
		return err
	}
	m.set(asset, owner, next)
	return nil
}

// Balance returns the balance of owner in asset.
func (m *Memory) Balance(asset, owner string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[asset][owner], nil
}

// Transfer moves amt of asset between owners. Nothing changes on failure.
func (m *Memory) Transfer(asset, from, to string, amt uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amt == 0 || from == to {
		return nil
	}
	src := m.balances[asset][from]
	if src < amt {
		return fault.New(fault.InsufficientFunds, "transfer", "%s holds %d %s, needs %d", from, src, asset, amt)
	}
	dst, err := amount.Add(m.balances[asset][to], amt)
	if err != nil {
		return err
	}
	m.set(asset, from, src-amt)
	m.set(asset, to, dst)
	return nil
}

// Holders lists every owner with a non-zero balance of asset, sorted.
func (m *Memory) Holders(asset string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owners := make([]string, 0, len(m.balances[asset]))
	for owner, bal := range m.balances[asset] {
		if bal > 0 {
			owners = append(owners, owner)
		}
	}
	sort.Strings(owners)
	return owners
}

func (m *Memory) set(asset, owner string, v uint64) {
	byOwner, ok := m.balances[asset]
	if !ok {
		byOwner = make(map[string]uint64)
		m.balances[asset] = byOwner
	}
	byOwner[owner] = v
}
