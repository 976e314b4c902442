/*
SPDX-License-Identifier: Apache-2.0
*/

package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/escrow"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/fault"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/metrics"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/roles"
	"go.uber.org/zap"
)

// Machine serializes transitions on one Instance for in-process callers.
// Every call takes the lock, reads the clock once and either commits fully
// or leaves the instance untouched.
type Machine struct {
	mu      sync.Mutex
	inst    *Instance
	bank    escrow.Bank
	clock   Clock
	log     *zap.Logger
	metrics *metrics.Recorder

	// changed is closed and replaced on every committed transition.
	changed chan struct{}
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock sets the clock. Defaults to SystemClock.
func WithClock(c Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Machine) { m.metrics = r }
}

// Deploy creates a Pending instance with initiator as Initiator.
func Deploy(id, initiator string, bank escrow.Bank, create CreateOptions, opts ...Option) (*Machine, error) {
	m := &Machine{
		bank:    bank,
		clock:   SystemClock{},
		log:     zap.NewNop(),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	inst, err := New(id, initiator, m.clock.Now(), create)
	if err != nil {
		return nil, err
	}
	m.inst = inst
	m.log = m.log.With(zap.String("instance", id))
	m.log.Info("instance deployed",
		zap.String("initiator", initiator),
		zap.Uint64("activationAmount", create.ActivationAmount))
	return m, nil
}

// Snapshot returns a copy of the instance.
func (m *Machine) Snapshot() *Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inst.Clone()
}

// CurrentPrice returns the price at the clock's time, or false unless Open.
func (m *Machine) CurrentPrice() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inst.CurrentPrice(m.clock.Now())
}

// Closed reports whether the auction was accepted or mutually cancelled.
func (m *Machine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inst.Closed()
}

// Wait blocks until cond holds for the instance or ctx is done.
func (m *Machine) Wait(ctx context.Context, cond func(*Instance) bool) error {
	for {
		m.mu.Lock()
		ok := cond(m.inst)
		changed := m.changed
		m.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitFor blocks until the instance reaches one of the lifecycles.
func (m *Machine) WaitFor(ctx context.Context, states ...Lifecycle) error {
	return m.Wait(ctx, func(in *Instance) bool {
		for _, s := range states {
			if in.Lifecycle == s {
				return true
			}
		}
		return false
	})
}

// Participant returns the capability handle for addr.
func (m *Machine) Participant(addr string) *Participant {
	return &Participant{m: m, addr: addr}
}

func (m *Machine) do(op roles.Op, caller string, fn func(in *Instance, now int64) error) error {
	start := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.inst.Lifecycle
	err := fn(m.inst, m.clock.Now())
	m.metrics.ObserveTransition(string(op), err, time.Since(start))

	if err != nil {
		m.log.Debug("transition rejected",
			zap.String("op", string(op)),
			zap.String("caller", caller),
			zap.String("kind", string(fault.KindOf(err))),
			zap.Error(err))
		return err
	}
	m.log.Info("transition applied",
		zap.String("op", string(op)),
		zap.String("caller", caller),
		zap.String("from", string(before)),
		zap.String("to", string(m.inst.Lifecycle)))

	close(m.changed)
	m.changed = make(chan struct{})
	return nil
}

// Participant is a caller bound to one address. It carries nothing but the
// address; what it may do is decided by the instance's role table.
type Participant struct {
	m    *Machine
	addr string
}

// Address returns the bound address.
func (p *Participant) Address() string {
	return p.addr
}

// Handle returns what the role table currently permits this participant.
func (p *Participant) Handle() roles.Handle {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return roles.NewHandle(p.m.inst.Roles, p.addr)
}

// Join activates the instance as Counterparty.
func (p *Participant) Join() error {
	return p.m.do(roles.Join, p.addr, func(in *Instance, now int64) error {
		return in.Join(p.addr, now, p.m.bank)
	})
}

// Delete tears down a Pending instance.
func (p *Participant) Delete() error {
	return p.m.do(roles.Delete, p.addr, func(in *Instance, _ int64) error {
		return in.Delete(p.addr)
	})
}

// Configure sets the auction parameters.
func (p *Participant) Configure(params Params) error {
	return p.m.do(roles.Configure, p.addr, func(in *Instance, now int64) error {
		return in.Configure(p.addr, now, params)
	})
}

// Deposit escrows the lot.
func (p *Participant) Deposit(token string, amt uint64) error {
	return p.m.do(roles.Deposit, p.addr, func(in *Instance, now int64) error {
		return in.Deposit(p.addr, now, token, amt, p.m.bank)
	})
}

// Touch refreshes the persisted price.
func (p *Participant) Touch() (uint64, error) {
	var price uint64
	err := p.m.do(roles.Touch, p.addr, func(in *Instance, now int64) error {
		var err error
		price, err = in.Touch(p.addr, now)
		return err
	})
	return price, err
}

// AcceptOffer buys the lot at the current price.
func (p *Participant) AcceptOffer() (*Sale, error) {
	var sale *Sale
	err := p.m.do(roles.AcceptOffer, p.addr, func(in *Instance, now int64) error {
		var err error
		sale, err = in.AcceptOffer(p.addr, now, p.m.bank)
		return err
	})
	if err == nil {
		p.m.metrics.ObserveSale(sale.Distribution)
	}
	return sale, err
}

// Cancel requests mutual cancellation. It reports whether the instance is now Cancelled.
func (p *Participant) Cancel() (bool, error) {
	var cancelled bool
	err := p.m.do(roles.Cancel, p.addr, func(in *Instance, _ int64) error {
		var err error
		cancelled, err = in.Cancel(p.addr, p.m.bank)
		return err
	})
	return cancelled, err
}

// Relay pays out the accepted sale. It reports whether this call moved funds.
func (p *Participant) Relay() (bool, error) {
	var paid bool
	var sale *Sale
	err := p.m.do(roles.Relay, p.addr, func(in *Instance, _ int64) error {
		var err error
		paid, err = in.Relay(p.addr, p.m.bank)
		sale = in.Sale
		return err
	})
	if paid {
		p.m.metrics.ObserveRelay(sale.Distribution)
	}
	return paid, err
}
