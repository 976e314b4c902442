/*
SPDX-License-Identifier: Apache-2.0
*/

package auction

import (
	"fmt"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/escrow"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/fault"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/metrics"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/protocol"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/roles"
	"go.uber.org/zap"
)

// This contract implements a Dutch auction of a token lot with royalty payouts
type SmartContract struct {
	contractapi.Contract

	log     *zap.Logger
	metrics *metrics.Recorder
}

// New returns the contract. Both arguments may be nil.
func New(log *zap.Logger, rec *metrics.Recorder) *SmartContract {
	return &SmartContract{log: log, metrics: rec}
}

func (s *SmartContract) logger() *zap.Logger {
	if s.log == nil {
		return zap.NewNop()
	}
	return s.log
}

// step is one transition applied to a stored instance
type step func(in *protocol.Instance, caller string, now int64, bank escrow.Bank) error

// transition loads the instance, applies fn and, only if it succeeds, writes
// the instance and every balance it touched, then announces the new status.
func (s *SmartContract) transition(ctx contractapi.TransactionContextInterface, id, op string, fn step) (*protocol.Instance, error) {
	start := time.Now()
	instance, caller, err := s.applyStep(ctx, id, op, fn)
	s.metrics.ObserveTransition(op, err, time.Since(start))

	log := s.logger().With(
		zap.String("instance", id),
		zap.String("op", op),
		zap.String("caller", caller),
		zap.String("txID", ctx.GetStub().GetTxID()))
	if err != nil {
		log.Debug("transition rejected", zap.String("kind", string(fault.KindOf(err))), zap.Error(err))
		return nil, err
	}
	log.Info("transition applied", zap.String("lifecycle", string(instance.Lifecycle)))
	return instance, nil
}

func (s *SmartContract) applyStep(ctx contractapi.TransactionContextInterface, id, op string, fn step) (*protocol.Instance, string, error) {
	// Get ID of submitting client
	caller, err := clientAddress(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get client identity: %w", err)
	}

	now, err := txTime(ctx)
	if err != nil {
		return nil, caller, err
	}

	// Get instance from world state
	state := newTxState(ctx.GetStub())
	instance, err := getInstance(state, id)
	if err != nil {
		return nil, caller, err
	}

	if err := fn(instance, caller, now, worldStateBank{state: state}); err != nil {
		return nil, caller, err
	}

	// Save the updated instance together with the moved balances
	if err := putInstance(state, instance); err != nil {
		return nil, caller, fmt.Errorf("could not encode instance: %w", err)
	}
	if err := state.flush(); err != nil {
		return nil, caller, fmt.Errorf("could not save the updated instance: %w", err)
	}

	if err := setInstanceSummaryEvent(ctx, newInstanceSummary(instance, op, caller)); err != nil {
		return nil, caller, fmt.Errorf("could not announce instance status: %w", err)
	}
	return instance, caller, nil
}

/**************** INITIATOR METHODS ****************/

// Create deploys a new instance with the caller as Initiator and returns its
// id. An empty id is replaced by one derived from the transaction id.
// Empty auctioneer and verifier default to the counterparty and the caller.
func (s *SmartContract) Create(ctx contractapi.TransactionContextInterface, id string, activationAmount uint64, auctioneer string, verifier string) (string, error) {
	start := time.Now()
	id, caller, err := s.create(ctx, id, protocol.CreateOptions{
		ActivationAmount: activationAmount,
		Auctioneer:       auctioneer,
		Verifier:         verifier,
	})
	s.metrics.ObserveTransition("create", err, time.Since(start))
	if err != nil {
		s.logger().Debug("create rejected", zap.String("instance", id), zap.Error(err))
		return "", err
	}
	s.logger().Info("instance created", zap.String("instance", id), zap.String("initiator", caller))
	return id, nil
}

func (s *SmartContract) create(ctx contractapi.TransactionContextInterface, id string, opts protocol.CreateOptions) (string, string, error) {
	caller, err := clientAddress(ctx)
	if err != nil {
		return id, "", fmt.Errorf("failed to get client identity: %w", err)
	}
	now, err := txTime(ctx)
	if err != nil {
		return id, caller, err
	}
	if id == "" {
		id = instanceIDFor(ctx.GetStub().GetTxID())
	}

	// check if such an instance already exists
	state := newTxState(ctx.GetStub())
	exists, err := doesInstanceExist(state, id)
	if err != nil {
		return id, caller, fmt.Errorf("failed to check if an instance with the same id already exists: %w", err)
	}
	if exists {
		return id, caller, fault.New(fault.AlreadyExists, "create", "instance %s already exists", id)
	}

	instance, err := protocol.New(id, caller, now, opts)
	if err != nil {
		return id, caller, err
	}
	if err := putInstance(state, instance); err != nil {
		return id, caller, err
	}
	if err := state.flush(); err != nil {
		return id, caller, fmt.Errorf("could not save the new instance in the world state: %w", err)
	}
	if err := setInstanceSummaryEvent(ctx, newInstanceSummary(instance, "create", caller)); err != nil {
		return id, caller, err
	}
	return id, caller, nil
}

// Delete tears down an instance nobody joined. Only the verifier may do this.
func (s *SmartContract) Delete(ctx contractapi.TransactionContextInterface, id string) error {
	_, err := s.transition(ctx, id, string(roles.Delete), func(in *protocol.Instance, caller string, _ int64, _ escrow.Bank) error {
		return in.Delete(caller)
	})
	return err
}

/**************** COUNTERPARTY METHODS ****************/

// Join activates the instance and pays the activation amount to the initiator
func (s *SmartContract) Join(ctx contractapi.TransactionContextInterface, id string) error {
	_, err := s.transition(ctx, id, string(roles.Join), func(in *protocol.Instance, caller string, now int64, bank escrow.Bank) error {
		return in.Join(caller, now, bank)
	})
	return err
}

/**************** AUCTIONEER AND DEPOSITER METHODS ****************/

// ConfigureAuction sets the auction parameters
func (s *SmartContract) ConfigureAuction(ctx contractapi.TransactionContextInterface, id string, params AuctionParams) error {
	_, err := s.transition(ctx, id, string(roles.Configure), func(in *protocol.Instance, caller string, now int64, _ escrow.Bank) error {
		return in.Configure(caller, now, params.toParams())
	})
	return err
}

// Deposit escrows the lot and opens the auction
func (s *SmartContract) Deposit(ctx contractapi.TransactionContextInterface, id string, token string, amount uint64) error {
	_, err := s.transition(ctx, id, string(roles.Deposit), func(in *protocol.Instance, caller string, now int64, bank escrow.Bank) error {
		return in.Deposit(caller, now, token, amount, bank)
	})
	return err
}

/**************** BIDDER METHODS ****************/

// Touch persists the price at the transaction time and returns it
func (s *SmartContract) Touch(ctx contractapi.TransactionContextInterface, id string) (uint64, error) {
	var price uint64
	_, err := s.transition(ctx, id, string(roles.Touch), func(in *protocol.Instance, caller string, now int64, _ escrow.Bank) error {
		var err error
		price, err = in.Touch(caller, now)
		return err
	})
	return price, err
}

// AcceptOffer buys the lot at the current price and returns the price paid
func (s *SmartContract) AcceptOffer(ctx contractapi.TransactionContextInterface, id string) (uint64, error) {
	var sale *protocol.Sale
	_, err := s.transition(ctx, id, string(roles.AcceptOffer), func(in *protocol.Instance, caller string, now int64, bank escrow.Bank) error {
		var err error
		sale, err = in.AcceptOffer(caller, now, bank)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.metrics.ObserveSale(sale.Distribution)
	return sale.Price, nil
}

/**************** SHARED METHODS ****************/

// Cancel records the caller's cancellation request. Escrowed funds are
// refunded once both initiator and counterparty have asked.
func (s *SmartContract) Cancel(ctx contractapi.TransactionContextInterface, id string) error {
	_, err := s.transition(ctx, id, string(roles.Cancel), func(in *protocol.Instance, caller string, _ int64, bank escrow.Bank) error {
		_, err := in.Cancel(caller, bank)
		return err
	})
	return err
}

// Relay pays out an accepted sale. Calls after the first one change nothing.
func (s *SmartContract) Relay(ctx contractapi.TransactionContextInterface, id string) error {
	var paid bool
	instance, err := s.transition(ctx, id, string(roles.Relay), func(in *protocol.Instance, caller string, _ int64, bank escrow.Bank) error {
		var err error
		paid, err = in.Relay(caller, bank)
		return err
	})
	if err != nil {
		return err
	}
	if paid {
		s.metrics.ObserveRelay(instance.Sale.Distribution)
	}
	return nil
}

// Transfer moves amount of asset from the caller to another address.
// Balances are seeded out of band; no transaction mints them.
func (s *SmartContract) Transfer(ctx contractapi.TransactionContextInterface, asset string, to string, amount uint64) error {
	const op = "transfer"
	caller, err := clientAddress(ctx)
	if err != nil {
		return fmt.Errorf("failed to get client identity: %w", err)
	}
	switch {
	case asset == "":
		return fault.New(fault.InvalidParameters, op, "asset is required")
	case to == "":
		return fault.New(fault.InvalidParameters, op, "recipient is required")
	case escrow.IsAccount(to):
		return fault.New(fault.InvalidParameters, op, "cannot transfer into escrow account %s", to)
	case amount == 0:
		return fault.New(fault.InvalidParameters, op, "amount must be positive")
	}

	state := newTxState(ctx.GetStub())
	if err := (worldStateBank{state: state}).Transfer(asset, caller, to, amount); err != nil {
		return err
	}
	if err := state.flush(); err != nil {
		return fmt.Errorf("could not save balances: %w", err)
	}
	s.logger().Info("transfer applied",
		zap.String("asset", asset),
		zap.String("from", caller),
		zap.String("to", to),
		zap.Uint64("amount", amount))
	return nil
}

/**************** QUERIES ****************/

// CurrentPrice returns the price at the transaction time without persisting it
func (s *SmartContract) CurrentPrice(ctx contractapi.TransactionContextInterface, id string) (PriceView, error) {
	instance, err := getInstance(newTxState(ctx.GetStub()), id)
	if err != nil {
		return PriceView{}, err
	}
	now, err := txTime(ctx)
	if err != nil {
		return PriceView{}, err
	}
	price, ok := instance.CurrentPrice(now)
	if !ok {
		return PriceView{}, nil
	}
	if now < instance.Quote.ObservedAt {
		now = instance.Quote.ObservedAt
	}
	return PriceView{Available: true, Price: price, ObservedAt: now}, nil
}

// Closed reports whether the instance was accepted or mutually cancelled
func (s *SmartContract) Closed(ctx contractapi.TransactionContextInterface, id string) (bool, error) {
	instance, err := getInstance(newTxState(ctx.GetStub()), id)
	if err != nil {
		return false, err
	}
	return instance.Closed(), nil
}

// GetInstance returns the full state of an instance
func (s *SmartContract) GetInstance(ctx contractapi.TransactionContextInterface, id string) (InstanceView, error) {
	instance, err := getInstance(newTxState(ctx.GetStub()), id)
	if err != nil {
		return InstanceView{}, err
	}
	return newInstanceView(instance), nil
}

// BalanceOf returns how much of asset owner holds
func (s *SmartContract) BalanceOf(ctx contractapi.TransactionContextInterface, asset string, owner string) (uint64, error) {
	return worldStateBank{state: newTxState(ctx.GetStub())}.Balance(asset, owner)
}

// ClientAddress returns the ledger address of the submitting client
func (s *SmartContract) ClientAddress(ctx contractapi.TransactionContextInterface) (string, error) {
	return clientAddress(ctx)
}
