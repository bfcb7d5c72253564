package contracts

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// World-state key scheme. Records are JSON documents under typed prefixes;
// ids are monotonic from 1 and assigned from the seq_ counters. The seq_ and
// purchase_ keys deliberately sit outside the batch_/txn_ scan ranges.
const (
	batchKeyPrefix    = "batch_"
	txnKeyPrefix      = "txn_"
	journeyKeyPrefix  = "journey_"
	accountKeyPrefix  = "account_"
	userBatchesPrefix = "userbatch_"
	userTxnsPrefix    = "usertxn_"
	purchaseKeyPrefix = "purchase_"
	batchCounterKey   = "seq_batch"
	txnCounterKey     = "seq_txn"
)

func batchKey(id uint64) string { return batchKeyPrefix + strconv.FormatUint(id, 10) }
func txnKey(id uint64) string { return txnKeyPrefix + strconv.FormatUint(id, 10) }
func journeyKey(id uint64) string { return journeyKeyPrefix + strconv.FormatUint(id, 10) }
func purchaseKey(id uint64) string { return purchaseKeyPrefix + strconv.FormatUint(id, 10) }
func accountKey(addr string) string { return accountKeyPrefix + addr }
func userBatchesKey(a string) string { return userBatchesPrefix + a }
func userTxnsKey(a string) string { return userTxnsPrefix + a }

// callerID resolves the authenticated identity submitting the transaction.
func callerID(ctx contractapi.TransactionContextInterface) (string, error) {
	id, err := ctx.GetClientIdentity().GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %v", err)
	}
	return id, nil
}

// txTimestamp returns the consensus-agreed transaction time in unix seconds.
func txTimestamp(ctx contractapi.TransactionContextInterface) (int64, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return 0, fmt.Errorf("failed to get tx timestamp: %v", err)
	}
	return ts.Seconds, nil
}

// nextID advances a counter record and returns the newly assigned id.
func nextID(ctx contractapi.TransactionContextInterface, counterKey string) (uint64, error) {
	data, err := ctx.GetStub().GetState(counterKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %v", counterKey, err)
	}
	var last uint64
	if data != nil {
		last, err = strconv.ParseUint(string(data), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt counter %s: %v", counterKey, err)
		}
	}
	next := last + 1
	if err := ctx.GetStub().PutState(counterKey, []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, fmt.Errorf("failed to advance counter %s: %v", counterKey, err)
	}
	return next, nil
}

func getBatch(ctx contractapi.TransactionContextInterface, id uint64) (*Batch, error) {
	data, err := ctx.GetStub().GetState(batchKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read batch %d: %v", id, err)
	}
	if data == nil {
		return nil, fmt.Errorf("batch %d: %w", id, ErrBatchNotFound)
	}
	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("corrupt batch %d: %v", id, err)
	}
	return &batch, nil
}

func putBatch(ctx contractapi.TransactionContextInterface, batch *Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutState(batchKey(batch.ID), data)
}

func getTransaction(ctx contractapi.TransactionContextInterface, id uint64) (*Transaction, error) {
	data, err := ctx.GetStub().GetState(txnKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction %d: %v", id, err)
	}
	if data == nil {
		return nil, fmt.Errorf("transaction %d: %w", id, ErrTransactionNotFound)
	}
	var txn Transaction
	if err := json.Unmarshal(data, &txn); err != nil {
		return nil, fmt.Errorf("corrupt transaction %d: %v", id, err)
	}
	return &txn, nil
}

func putTransaction(ctx contractapi.TransactionContextInterface, txn *Transaction) error {
	data, err := json.Marshal(txn)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutState(txnKey(txn.ID), data)
}

func getJourney(ctx contractapi.TransactionContextInterface, batchID uint64) ([]ShipmentLeg, error) {
	data, err := ctx.GetStub().GetState(journeyKey(batchID))
	if err != nil {
		return nil, fmt.Errorf("failed to read journey for batch %d: %v", batchID, err)
	}
	if data == nil {
		return []ShipmentLeg{}, nil
	}
	var journey []ShipmentLeg
	if err := json.Unmarshal(data, &journey); err != nil {
		return nil, fmt.Errorf("corrupt journey for batch %d: %v", batchID, err)
	}
	return journey, nil
}

func putJourney(ctx contractapi.TransactionContextInterface, batchID uint64, journey []ShipmentLeg) error {
	data, err := json.Marshal(journey)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutState(journeyKey(batchID), data)
}

// readIndex loads an append-only id index, returning an empty slice when the
// index has never been written.
func readIndex(ctx contractapi.TransactionContextInterface, key string) ([]uint64, error) {
	data, err := ctx.GetStub().GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %v", key, err)
	}
	if data == nil {
		return []uint64{}, nil
	}
	var ids []uint64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("corrupt index %s: %v", key, err)
	}
	return ids, nil
}

// appendIndex records an id in an append-only index. Ids are never removed,
// so an id transferred back simply stays listed once.
func appendIndex(ctx contractapi.TransactionContextInterface, key string, id uint64) error {
	ids, err := readIndex(ctx, key)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutState(key, data)
}

func getAccount(ctx contractapi.TransactionContextInterface, addr string) (*Account, error) {
	data, err := ctx.GetStub().GetState(accountKey(addr))
	if err != nil {
		return nil, fmt.Errorf("failed to read account %s: %v", addr, err)
	}
	if data == nil {
		return &Account{Address: addr}, nil
	}
	var account Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("corrupt account %s: %v", addr, err)
	}
	return &account, nil
}

func putAccount(ctx contractapi.TransactionContextInterface, account *Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutState(accountKey(account.Address), data)
}

func creditAccount(ctx contractapi.TransactionContextInterface, addr string, amount uint64) (*Account, error) {
	account, err := getAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	if account.Balance+amount < account.Balance {
		return nil, fmt.Errorf("credit %s: %w", addr, ErrAmountOverflow)
	}
	account.Balance += amount
	if err := putAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func debitAccount(ctx contractapi.TransactionContextInterface, addr string, amount uint64) (*Account, error) {
	account, err := getAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	if account.Balance < amount {
		return nil, fmt.Errorf("account %s holds %d, needs %d: %w", addr, account.Balance, amount, ErrInsufficientFunds)
	}
	account.Balance -= amount
	if err := putAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func emitEvent(ctx contractapi.TransactionContextInterface, name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return ctx.GetStub().SetEvent(name, data)
}
