/*
SPDX-License-Identifier: Apache-2.0
*/

// Package roles binds protocol roles to ledger addresses and guards each
// transition with a single table lookup.
package roles

import (
	"fmt"
	"sort"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/fault"
)

// Role is a participant position in the protocol.
type Role string

const (
	Initiator    Role = "Initiator"
	Counterparty Role = "Counterparty"
	Auctioneer   Role = "Auctioneer"
	Depositer    Role = "Depositer"
	Bidder       Role = "Bidder"
	Verifier     Role = "Verifier"
)

// Op is a role-gated contract operation.
type Op string

const (
	Join        Op = "join"
	Delete      Op = "delete"
	Configure   Op = "configureAuction"
	Deposit     Op = "deposit"
	Touch       Op = "touch"
	AcceptOffer Op = "acceptOffer"
	Cancel      Op = "cancel"
	Relay       Op = "relay"
)

// required lists the roles allowed to invoke each op. Ops absent from the
// map are open to any caller.
var required = map[Op][]Role{
	Delete:      {Verifier},
	Configure:   {Auctioneer},
	Deposit:     {Depositer},
	AcceptOffer: {Bidder},
	Cancel:      {Initiator, Counterparty},
}

// RequiredRoles returns the roles permitted to invoke op, nil when open.
func RequiredRoles(op Op) []Role {
	return required[op]
}

// Table maps each role to the one address bound to it.
type Table map[Role]string

// Bind assigns addr to role. Rebinding a role to a different address fails.
func (t Table) Bind(role Role, addr string) error {
	if addr == "" {
		return fault.New(fault.InvalidParameters, "bind", "empty address for role %s", role)
	}
	if cur, ok := t[role]; ok && cur != addr {
		return fault.New(fault.InvalidState, "bind", "role %s is already bound", role)
	}
	t[role] = addr
	return nil
}

// Address returns the address bound to role.
func (t Table) Address(role Role) (string, bool) {
	addr, ok := t[role]
	return addr, ok
}

// Has reports whether caller is bound to role.
func (t Table) Has(role Role, caller string) bool {
	addr, ok := t[role]
	return ok && caller != "" && addr == caller
}

// Authorize returns the first role permitted for op that caller holds, or
// NotAuthorized. Open ops return "".
func (t Table) Authorize(op Op, caller string) (Role, error) {
	allowed, gated := required[op]
	if !gated {
		return "", nil
	}
	for _, role := range allowed {
		if t.Has(role, caller) {
			return role, nil
		}
	}
	return "", fault.New(fault.NotAuthorized, string(op), "caller %s is not %s", caller, describe(allowed))
}

// RolesOf lists every role caller is bound to, sorted.
func (t Table) RolesOf(caller string) []Role {
	var out []Role
	for role, addr := range t {
		if addr == caller {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy.
func (t Table) Clone() Table {
	c := make(Table, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

func describe(roles []Role) string {
	if len(roles) == 1 {
		return string(roles[0])
	}
	return fmt.Sprintf("one of %v", roles)
}

// Handle is a capability for one address: it carries the address and the ops
// the role table permits it, and nothing else.
type Handle struct {
	Address string
	ops     map[Op]bool
}

// NewHandle snapshots what addr may do under t.
func NewHandle(t Table, addr string) Handle {
	h := Handle{Address: addr, ops: make(map[Op]bool)}
	for _, op := range []Op{Join, Delete, Configure, Deposit, Touch, AcceptOffer, Cancel, Relay} {
		if _, err := t.Authorize(op, addr); err == nil {
			h.ops[op] = true
		}
	}
	return h
}

// Can reports whether the handle may invoke op.
func (h Handle) Can(op Op) bool {
	return h.ops[op]
}
