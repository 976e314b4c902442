/*
SPDX-License-Identifier: Apache-2.0
*/

package auction

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/golang/protobuf/ptypes"
	"github.com/google/uuid"
	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/escrow"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/fault"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const t0 = int64(1_700_000_000)

// identity is a client with a throwaway self-signed certificate
type identity struct {
	cert *x509.Certificate
}

var _ cid.ClientIdentity = identity{}

func newIdentity(t *testing.T, name string) identity {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: name, Organization: []string{"Org1"}},
		NotBefore:    time.Unix(t0-3600, 0),
		NotAfter:     time.Unix(t0+365*24*3600, 0),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return identity{cert: cert}
}

func (i identity) GetID() (string, error) {
	return "x509::" + i.cert.Subject.String(), nil
}

func (i identity) GetMSPID() (string, error) {
	return "Org1MSP", nil
}

func (i identity) GetAttributeValue(string) (string, bool, error) {
	return "", false, nil
}

func (i identity) AssertAttributeValue(name, _ string) error {
	return fmt.Errorf("attribute %s not found", name)
}

func (i identity) GetX509Certificate() (*x509.Certificate, error) {
	return i.cert, nil
}

func (i identity) address() string {
	return certAddress(i.cert)
}

// network drives the contract over a mock stub, one transaction per call
type network struct {
	t        *testing.T
	stub     *shimtest.MockStub
	contract *SmartContract
	metrics  *metrics.Recorder
	now      int64
	seq      int
	events   []*peer.ChaincodeEvent
}

func newNetwork(t *testing.T) *network {
	t.Helper()
	rec, err := metrics.NewRecorder()
	require.NoError(t, err)
	contract := New(zaptest.NewLogger(t), rec)
	cc, err := contractapi.NewChaincode(contract)
	require.NoError(t, err)
	return &network{
		t:        t,
		stub:     shimtest.NewMockStub("royalty-auction", cc),
		contract: contract,
		metrics:  rec,
		now:      t0,
	}
}

func (n *network) lastTxID() string {
	return fmt.Sprintf("tx%d", n.seq)
}

func (n *network) tx(who identity, fn func(ctx contractapi.TransactionContextInterface) error) error {
	n.t.Helper()
	n.seq++
	txID := n.lastTxID()
	n.stub.MockTransactionStart(txID)
	defer n.stub.MockTransactionEnd(txID)

	ts, err := ptypes.TimestampProto(time.Unix(n.now, 0))
	require.NoError(n.t, err)
	n.stub.TxTimestamp = ts

	ctx := new(contractapi.TransactionContext)
	ctx.SetStub(n.stub)
	ctx.SetClientIdentity(who)
	err = fn(ctx)
	n.drainEvents()
	return err
}

func (n *network) drainEvents() {
	for {
		select {
		case ev := <-n.stub.ChaincodeEventsChannel:
			n.events = append(n.events, ev)
		default:
			return
		}
	}
}

func (n *network) lastSummary() InstanceSummary {
	n.t.Helper()
	require.NotEmpty(n.t, n.events)
	var summary InstanceSummary
	require.NoError(n.t, json.Unmarshal(n.events[len(n.events)-1].Payload, &summary))
	return summary
}

func (n *network) fund(asset, owner string, amt uint64) {
	n.t.Helper()
	n.seq++
	txID := n.lastTxID()
	n.stub.MockTransactionStart(txID)
	defer n.stub.MockTransactionEnd(txID)
	state := newTxState(n.stub)
	require.NoError(n.t, worldStateBank{state: state}.set(asset, owner, amt))
	require.NoError(n.t, state.flush())
}

func (n *network) balance(asset, owner string) uint64 {
	n.t.Helper()
	var b uint64
	require.NoError(n.t, n.tx(identity{}, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		b, err = n.contract.BalanceOf(ctx, asset, owner)
		return err
	}))
	return b
}

func (n *network) instance(id string) InstanceView {
	n.t.Helper()
	var view InstanceView
	require.NoError(n.t, n.tx(identity{}, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		view, err = n.contract.GetInstance(ctx, id)
		return err
	}))
	return view
}

func (n *network) worldState() map[string]string {
	out := make(map[string]string, len(n.stub.State))
	for k, v := range n.stub.State {
		out[k] = string(v)
	}
	return out
}

type participants struct {
	alice, bob, carol identity
	payees            []string
}

func newParticipants(t *testing.T) participants {
	return participants{
		alice:  newIdentity(t, "alice"),
		bob:    newIdentity(t, "bob"),
		carol:  newIdentity(t, "carol"),
		payees: []string{"p1", "p2", "p3", "p4", "p5"},
	}
}

func (p participants) params(weights ...uint64) AuctionParams {
	if len(weights) == 0 {
		weights = []uint64{0, 0, 0, 0, 0}
	}
	return AuctionParams{
		Token:      "gil",
		StartPrice: 100,
		FloorPrice: 10,
		EndTime:    t0 + 1000,
		Creator:    "creator",
		Payees:     p.payees,
		Weights:    weights,
		RoyaltyCap: 100,
		Bidder:     p.alice.address(),
	}
}

// open funds alice and bob and drives instance "ctc" to Open at t0
func (n *network) open(p participants, params AuctionParams) {
	n.t.Helper()
	n.fund(escrow.Currency, p.alice.address(), 2000)
	n.fund(escrow.Currency, p.bob.address(), 2000)
	n.fund("gil", p.bob.address(), 3)

	require.NoError(n.t, n.tx(p.alice, func(ctx contractapi.TransactionContextInterface) error {
		_, err := n.contract.Create(ctx, "ctc", 1, "", "")
		return err
	}))
	require.NoError(n.t, n.tx(p.bob, func(ctx contractapi.TransactionContextInterface) error {
		return n.contract.Join(ctx, "ctc")
	}))
	require.NoError(n.t, n.tx(p.bob, func(ctx contractapi.TransactionContextInterface) error {
		return n.contract.ConfigureAuction(ctx, "ctc", params)
	}))
	require.NoError(n.t, n.tx(p.bob, func(ctx contractapi.TransactionContextInterface) error {
		return n.contract.Deposit(ctx, "ctc", "gil", 1)
	}))
}

func TestClientAddress(t *testing.T) {
	n := newNetwork(t)
	p := newParticipants(t)

	var addr string
	require.NoError(t, n.tx(p.alice, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		addr, err = n.contract.ClientAddress(ctx)
		return err
	}))
	assert.Len(t, addr, 2*addressLength)
	assert.Equal(t, p.alice.address(), addr)
	assert.NotEqual(t, p.bob.address(), addr)
}

func TestCreate(t *testing.T) {
	n := newNetwork(t)
	p := newParticipants(t)

	var id string
	require.NoError(t, n.tx(p.alice, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		id, err = n.contract.Create(ctx, "", 5, p.carol.address(), "")
		return err
	}))
	assert.Equal(t, instanceIDFor(n.lastTxID()), id)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	summary := n.lastSummary()
	assert.Equal(t, id, summary.ID)
	assert.Equal(t, "create", summary.Op)
	assert.Equal(t, "Pending", summary.Lifecycle)
	assert.Equal(t, instanceKey(id), n.events[len(n.events)-1].EventName)

	view := n.instance(id)
	assert.Equal(t, uint64(5), view.ActivationAmount)
	assert.Equal(t, t0, view.CreatedAt)
	assert.Equal(t, []RoleBinding{
		{Role: "Auctioneer", Address: p.carol.address()},
		{Role: "Initiator", Address: p.alice.address()},
		{Role: "Verifier", Address: p.alice.address()},
	}, view.Roles)

	err = n.tx(p.bob, func(ctx contractapi.TransactionContextInterface) error {
		_, err := n.contract.Create(ctx, id, 0, "", "")
		return err
	})
	require.ErrorIs(t, err, fault.ErrAlreadyExists)
}

func TestUnknownInstance(t *testing.T) {
	n := newNetwork(t)
	p := newParticipants(t)

	err := n.tx(p.bob, func(ctx contractapi.TransactionContextInterface) error {
		return n.contract.Join(ctx, "nope")
	})
	require.ErrorIs(t, err, fault.ErrNotFound)

	err = n.tx(p.bob, func(ctx contractapi.TransactionContextInterface) error {
		_, err := n.contract.Closed(ctx, "nope")
		return err
	})
	require.ErrorIs(t, err, fault.ErrNotFound)
}

func TestDeleteInactive(t *testing.T) {
	n := newNetwork(t)
	p := newParticipants(t)

	require.NoError(t, n.tx(p.alice, func(ctx contractapi.TransactionContextInterface) error {
		_, err := n.contract.Create(ctx, "ctc", 1, "", p.carol.address())
		return err
	}))
	err := n.tx(p.alice, func(ctx contractapi.TransactionContextInterface) error {
		return n.contract.Delete(ctx, "ctc")
	})
	require.ErrorIs(t, err, fault.ErrNotAuthorized)

	require.NoError(t, n.tx(p.carol, func(ctx contractapi.TransactionContextInterface) error {
		return n.contract.Delete(ctx, "ctc")
	}))
	assert.Equal(t, "Deleted", n.instance("ctc").Lifecycle)

	err = n.tx(p.bob, func(ctx contractapi.TransactionContextInterface) error {
		return n.contract.ConfigureAuction(ctx, "ctc", p.params())
	})
	require.ErrorIs(t, err, fault.ErrInvalidState)
}

func TestPurchaseMidAuctionWithRoyalties(t *testing.T) {
	n := newNetwork(t)
	p := newParticipants(t)
	n.open(p, p.params(1, 1, 1, 1, 1))

	assert.Equal(t, uint64(2001), n.balance(escrow.Currency, p.alice.address()))
	assert.Equal(t, uint64(1999), n.balance(escrow.Currency, p.bob.address()))
	assert.Equal(t, uint64(1), n.balance("gil", escrow.AccountFor("ctc")))
	assert.Equal(t, "Open", n.lastSummary().Lifecycle)

	n.now = t0 + 500
	var price uint64
	require.NoError(t, n.tx(p.carol, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		price, err = n.contract.Touch(ctx, "ctc")
		return err
	}))
	assert.Equal(t, uint64(55), price)

	require.NoError(t, n.tx(p.alice, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		price, err = n.contract.AcceptOffer(ctx, "ctc")
		return err
	}))
	assert.Equal(t, uint64(55), price)
	assert.Equal(t, uint64(55), n.balance(escrow.Currency, escrow.AccountFor("ctc")))
	assert.Equal(t, uint64(1), n.balance("gil", p.alice.address()))

	var closed bool
	require.NoError(t, n.tx(p.carol, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		closed, err = n.contract.Closed(ctx, "ctc")
		return err
	}))
	assert.True(t, closed)

	for i := 0; i < 2; i++ {
		require.NoError(t, n.tx(p.carol, func(ctx contractapi.TransactionContextInterface) error {
			return n.contract.Relay(ctx, "ctc")
		}))
		for _, payee := range p.payees {
			assert.Equal(t, uint64(11), n.balance(escrow.Currency, payee))
		}
		assert.Equal(t, uint64(0), n.balance(escrow.Currency, "creator"))
		assert.Equal(t, uint64(0), n.balance(escrow.Currency, escrow.AccountFor("ctc")))
	}

	view := n.instance("ctc")
	assert.Equal(t, "Accepted", view.Lifecycle)
	assert.True(t, view.Sold)
	assert.True(t, view.Sale.Relayed)
	assert.Equal(t, p.alice.address(), view.Sale.Buyer)
	assert.Equal(t, uint64(55), view.Sale.RoyaltyPool)
	assert.Len(t, view.Sale.Payees, 5)
	assert.Equal(t, uint64(0), view.Escrow.HeldCurrency)

	assert.Equal(t, 55.0, testutil.ToFloat64(n.metrics.SettledVolume))
	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.RelaysCompleted))
	assert.Equal(t, 2.0, testutil.ToFloat64(n.metrics.Transitions.WithLabelValues("relay", "ok")))
}

func TestRejectedTransitionWritesNothing(t *testing.T) {
	n := newNetwork(t)
	p := newParticipants(t)
	params := p.params()
	params.StartPrice = 5000
	n.open(p, params)

	before := n.worldState()
	events := len(n.events)

	err := n.tx(p.alice, func(ctx contractapi.TransactionContextInterface) error {
		_, err := n.contract.AcceptOffer(ctx, "ctc")
		return err
	})
	require.ErrorIs(t, err, fault.ErrInsufficientFunds)
	assert.Equal(t, before, n.worldState())
	assert.Len(t, n.events, events)

	err = n.tx(p.carol, func(ctx contractapi.TransactionContextInterface) error {
		_, err := n.contract.AcceptOffer(ctx, "ctc")
		return err
	})
	require.ErrorIs(t, err, fault.ErrNotAuthorized)
	assert.Equal(t, before, n.worldState())
	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.Transitions.WithLabelValues("acceptOffer", "not_authorized")))
}

func TestCurrentPriceQueryDoesNotPersist(t *testing.T) {
	n := newNetwork(t)
	p := newParticipants(t)
	n.open(p, p.params())

	n.now = t0 + 1000
	var view PriceView
	require.NoError(t, n.tx(p.carol, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		view, err = n.contract.CurrentPrice(ctx, "ctc")
		return err
	}))
	assert.Equal(t, PriceView{Available: true, Price: 10, ObservedAt: t0 + 1000}, view)

	quote := n.instance("ctc").Quote
	assert.Equal(t, uint64(100), quote.Price)
	assert.Equal(t, t0, quote.ObservedAt)
}

func TestCancelRefundsLot(t *testing.T) {
	n := newNetwork(t)
	p := newParticipants(t)
	n.open(p, p.params())

	cancel := func(who identity) error {
		return n.tx(who, func(ctx contractapi.TransactionContextInterface) error {
			return n.contract.Cancel(ctx, "ctc")
		})
	}

	require.ErrorIs(t, cancel(p.carol), fault.ErrNotAuthorized)
	require.NoError(t, cancel(p.bob))
	require.NoError(t, cancel(p.bob))
	assert.Equal(t, uint64(2), n.balance("gil", p.bob.address()))
	assert.Equal(t, []string{"Counterparty"}, n.instance("ctc").CancelledBy)

	require.NoError(t, cancel(p.alice))
	assert.Equal(t, uint64(3), n.balance("gil", p.bob.address()))
	assert.Equal(t, uint64(0), n.balance("gil", escrow.AccountFor("ctc")))

	summary := n.lastSummary()
	assert.Equal(t, "Cancelled", summary.Lifecycle)
	assert.True(t, summary.Closed)

	var view PriceView
	require.NoError(t, n.tx(p.carol, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		view, err = n.contract.CurrentPrice(ctx, "ctc")
		return err
	}))
	assert.False(t, view.Available)
}

func TestTransfer(t *testing.T) {
	n := newNetwork(t)
	p := newParticipants(t)
	n.fund(escrow.Currency, p.alice.address(), 10)

	transfer := func(asset, to string, amt uint64) error {
		return n.tx(p.alice, func(ctx contractapi.TransactionContextInterface) error {
			return n.contract.Transfer(ctx, asset, to, amt)
		})
	}

	require.ErrorIs(t, transfer("", p.bob.address(), 1), fault.ErrInvalidParameters)
	require.ErrorIs(t, transfer(escrow.Currency, "", 1), fault.ErrInvalidParameters)
	require.ErrorIs(t, transfer(escrow.Currency, escrow.AccountFor("ctc"), 1), fault.ErrInvalidParameters)
	require.ErrorIs(t, transfer(escrow.Currency, p.bob.address(), 0), fault.ErrInvalidParameters)
	require.ErrorIs(t, transfer(escrow.Currency, p.bob.address(), 11), fault.ErrInsufficientFunds)

	require.NoError(t, transfer(escrow.Currency, p.bob.address(), 4))
	assert.Equal(t, uint64(6), n.balance(escrow.Currency, p.alice.address()))
	assert.Equal(t, uint64(4), n.balance(escrow.Currency, p.bob.address()))
}

func TestTxStateBuffersWrites(t *testing.T) {
	n := newNetwork(t)
	n.stub.MockTransactionStart("buffer")
	defer n.stub.MockTransactionEnd("buffer")

	state := newTxState(n.stub)
	state.put("a", []byte("1"))
	state.put("b", []byte("2"))
	state.put("a", []byte("3"))

	v, err := state.get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), v)
	raw, err := n.stub.GetState("a")
	require.NoError(t, err)
	assert.Nil(t, raw)

	require.NoError(t, state.flush())
	raw, err = n.stub.GetState("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), raw)
	assert.Empty(t, state.order)
}
