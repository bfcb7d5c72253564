package contracts

import (
	"crypto/x509"
	"strconv"
	"testing"

	"github.com/golang/protobuf/ptypes/timestamp"
	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/stretchr/testify/require"
)

// testIdentity is a fixed client identity standing in for one enrolled user.
type testIdentity struct {
	id string
}

func (i *testIdentity) GetID() (string, error)                         { return i.id, nil }
func (i *testIdentity) GetMSPID() (string, error)                      { return "AgriTradeMSP", nil }
func (i *testIdentity) GetAttributeValue(string) (string, bool, error) { return "", false, nil }
func (i *testIdentity) AssertAttributeValue(string, string) error      { return nil }
func (i *testIdentity) GetX509Certificate() (*x509.Certificate, error) { return nil, nil }

var _ cid.ClientIdentity = (*testIdentity)(nil)

// testContext pairs the shared mock stub with the acting caller.
type testContext struct {
	stub     *shimtest.MockStub
	identity cid.ClientIdentity
}

func (c *testContext) GetStub() shim.ChaincodeStubInterface  { return c.stub }
func (c *testContext) GetClientIdentity() cid.ClientIdentity { return c.identity }

// ledgerHarness drives the contracts the way peer invocations would: one mock
// transaction per operation, with a controllable clock.
type ledgerHarness struct {
	t        *testing.T
	stub     *shimtest.MockStub
	registry *BatchRegistryContract
	tracker  *ShipmentTrackerContract
	manager  *TransactionManagerContract
	seq      int
	now      int64
}

func newLedger(t *testing.T) *ledgerHarness {
	return &ledgerHarness{
		t:        t,
		stub:     shimtest.NewMockStub("agritrade", nil),
		registry: &BatchRegistryContract{},
		tracker:  &ShipmentTrackerContract{},
		manager:  &TransactionManagerContract{},
		now:      1_700_000_000,
	}
}

func (l *ledgerHarness) advance(seconds int64) { l.now += seconds }

// as runs fn in a fresh mock transaction on behalf of caller.
func (l *ledgerHarness) as(caller string, fn func(ctx *testContext) error) error {
	l.seq++
	txID := "tx" + strconv.Itoa(l.seq)
	l.stub.MockTransactionStart(txID)
	// MockTransactionStart stamps wall-clock time; override it afterwards so
	// the harness clock governs every timestamp the contracts read.
	l.stub.TxTimestamp = &timestamp.Timestamp{Seconds: l.now}
	defer l.stub.MockTransactionEnd(txID)
	return fn(&testContext{stub: l.stub, identity: &testIdentity{id: caller}})
}

// snapshot deep-copies world state for unchanged-after-error assertions.
func (l *ledgerHarness) snapshot() map[string][]byte {
	out := make(map[string][]byte, len(l.stub.State))
	for key, value := range l.stub.State {
		out[key] = append([]byte(nil), value...)
	}
	return out
}

// Operation helpers

func (l *ledgerHarness) createBatch(caller string, forSale bool, price uint64, location string, quantity uint64) (uint64, error) {
	var id uint64
	err := l.as(caller, func(ctx *testContext) error {
		var err error
		id, err = l.registry.CreateBatch(ctx, forSale, price, location, quantity)
		return err
	})
	return id, err
}

func (l *ledgerHarness) toggleSale(caller string, batchID uint64, forSale bool, price uint64) error {
	return l.as(caller, func(ctx *testContext) error {
		return l.registry.ToggleSale(ctx, batchID, forSale, price)
	})
}

func (l *ledgerHarness) updateLocation(caller string, batchID uint64, location string) error {
	return l.as(caller, func(ctx *testContext) error {
		return l.registry.UpdateBatchLocation(ctx, batchID, location)
	})
}

func (l *ledgerHarness) transform(caller string, batchID uint64, quantity uint64, location string, note string) (uint64, error) {
	var id uint64
	err := l.as(caller, func(ctx *testContext) error {
		var err error
		id, err = l.registry.TransformBatch(ctx, batchID, quantity, location, note)
		return err
	})
	return id, err
}

func (l *ledgerHarness) transferOwnership(caller string, batchID uint64, newOwner string) error {
	return l.as(caller, func(ctx *testContext) error {
		return l.registry.TransferBatchOwnership(ctx, batchID, newOwner)
	})
}

func (l *ledgerHarness) batch(batchID uint64) *Batch {
	l.t.Helper()
	var batch *Batch
	err := l.as("reader", func(ctx *testContext) error {
		var err error
		batch, err = l.registry.GetBatch(ctx, batchID)
		return err
	})
	require.NoError(l.t, err)
	return batch
}

func (l *ledgerHarness) userBatches(address string) []uint64 {
	l.t.Helper()
	var ids []uint64
	err := l.as("reader", func(ctx *testContext) error {
		var err error
		ids, err = l.registry.GetUserBatches(ctx, address)
		return err
	})
	require.NoError(l.t, err)
	return ids
}

func (l *ledgerHarness) allBatches() []*Batch {
	l.t.Helper()
	var batches []*Batch
	err := l.as("reader", func(ctx *testContext) error {
		var err error
		batches, err = l.registry.GetAllBatches(ctx)
		return err
	})
	require.NoError(l.t, err)
	return batches
}

func (l *ledgerHarness) addShipment(caller string, batchID uint64, from, to, details string) error {
	return l.as(caller, func(ctx *testContext) error {
		return l.tracker.AddShipment(ctx, batchID, from, to, details)
	})
}

func (l *ledgerHarness) completeLeg(caller string, batchID uint64, legIndex uint64) error {
	return l.as(caller, func(ctx *testContext) error {
		return l.tracker.CompleteLeg(ctx, batchID, legIndex)
	})
}

func (l *ledgerHarness) journey(batchID uint64) []ShipmentLeg {
	l.t.Helper()
	var legs []ShipmentLeg
	err := l.as("reader", func(ctx *testContext) error {
		var err error
		legs, err = l.tracker.GetBatchJourney(ctx, batchID)
		return err
	})
	require.NoError(l.t, err)
	return legs
}

func (l *ledgerHarness) deposit(caller string, amount uint64) (uint64, error) {
	var balance uint64
	err := l.as(caller, func(ctx *testContext) error {
		var err error
		balance, err = l.manager.Deposit(ctx, amount)
		return err
	})
	return balance, err
}

func (l *ledgerHarness) withdraw(caller string, amount uint64) (uint64, error) {
	var balance uint64
	err := l.as(caller, func(ctx *testContext) error {
		var err error
		balance, err = l.manager.Withdraw(ctx, amount)
		return err
	})
	return balance, err
}

func (l *ledgerHarness) balance(address string) uint64 {
	l.t.Helper()
	var balance uint64
	err := l.as("reader", func(ctx *testContext) error {
		var err error
		balance, err = l.manager.GetBalance(ctx, address)
		return err
	})
	require.NoError(l.t, err)
	return balance
}

func (l *ledgerHarness) buy(caller string, batchID, quantity, payment uint64) (uint64, error) {
	var id uint64
	err := l.as(caller, func(ctx *testContext) error {
		var err error
		id, err = l.manager.BuyBatch(ctx, batchID, quantity, payment)
		return err
	})
	return id, err
}

func (l *ledgerHarness) confirm(caller string, transactionID uint64) error {
	return l.as(caller, func(ctx *testContext) error {
		return l.manager.ConfirmPurchase(ctx, transactionID)
	})
}

func (l *ledgerHarness) dispute(caller string, transactionID uint64) error {
	return l.as(caller, func(ctx *testContext) error {
		return l.manager.DisputePurchase(ctx, transactionID)
	})
}

func (l *ledgerHarness) autoRelease(caller string, transactionID uint64) error {
	return l.as(caller, func(ctx *testContext) error {
		return l.manager.AutoReleaseEscrow(ctx, transactionID)
	})
}

func (l *ledgerHarness) transaction(transactionID uint64) *Transaction {
	l.t.Helper()
	var txn *Transaction
	err := l.as("reader", func(ctx *testContext) error {
		var err error
		txn, err = l.manager.GetTransaction(ctx, transactionID)
		return err
	})
	require.NoError(l.t, err)
	return txn
}

func (l *ledgerHarness) userTransactions(address string) []uint64 {
	l.t.Helper()
	var ids []uint64
	err := l.as("reader", func(ctx *testContext) error {
		var err error
		ids, err = l.manager.GetUserTransactions(ctx, address)
		return err
	})
	require.NoError(l.t, err)
	return ids
}
