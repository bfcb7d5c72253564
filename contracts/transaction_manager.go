package contracts

import (
	"fmt"
	"math"
	"strconv"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// disputePeriodSeconds is the window after delivery during which the buyer
// may contest. Auto-release becomes callable strictly after it elapses.
const disputePeriodSeconds int64 = 7 * 24 * 60 * 60

// TransactionManagerContract escrows purchase funds and runs the
// buy -> ship -> confirm/dispute/release protocol. It also carries the funds
// ledger that stands in for native value transfer on this platform.
type TransactionManagerContract struct {
	contractapi.Contract
}

// BuyBatch purchases a quantity from a listed batch. The payment argument is
// the amount the buyer authorizes; exactly quantity x unit price is debited
// and escrowed, and the excess never leaves the buyer's balance. A child
// batch is carved out of the listing, pending the buyer's confirmation.
func (t *TransactionManagerContract) BuyBatch(ctx contractapi.TransactionContextInterface,
	batchID uint64, quantity uint64, payment uint64) (uint64, error) {

	buyer, err := callerID(ctx)
	if err != nil {
		return 0, err
	}
	batch, err := getBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if !batch.IsForSale {
		return 0, fmt.Errorf("batch %d: %w", batchID, ErrNotForSale)
	}
	if quantity == 0 {
		return 0, fmt.Errorf("buy from batch %d: %w", batchID, ErrInvalidQuantity)
	}
	if quantity > batch.Available {
		return 0, fmt.Errorf("batch %d has %d available: %w", batchID, batch.Available, ErrNotEnoughAvailable)
	}
	if buyer == batch.Creator {
		return 0, fmt.Errorf("buy from batch %d: %w", batchID, ErrSelfTrade)
	}
	if batch.Price != 0 && quantity > math.MaxUint64/batch.Price {
		return 0, fmt.Errorf("buy from batch %d: %w", batchID, ErrAmountOverflow)
	}
	required := quantity * batch.Price
	if payment < required {
		return 0, fmt.Errorf("batch %d needs %d, payment %d: %w", batchID, required, payment, ErrInsufficientFunds)
	}
	if _, err := debitAccount(ctx, buyer, required); err != nil {
		return 0, err
	}

	now, err := txTimestamp(ctx)
	if err != nil {
		return 0, err
	}
	child, err := createPurchaseBatch(ctx, batch, buyer, quantity, now)
	if err != nil {
		return 0, err
	}
	id, err := nextID(ctx, txnCounterKey)
	if err != nil {
		return 0, err
	}

	txn := &Transaction{
		ID:        id,
		Buyer:     buyer,
		Seller:    batch.Creator,
		BatchID:   child.ID,
		Quantity:  quantity,
		Price:     required,
		Status:    TxNotShipped,
		CreatedAt: now,
	}
	if err := putTransaction(ctx, txn); err != nil {
		return 0, err
	}
	if err := linkPurchase(ctx, child.ID, id); err != nil {
		return 0, err
	}
	if err := appendIndex(ctx, userTxnsKey(buyer), id); err != nil {
		return 0, err
	}
	if err := appendIndex(ctx, userTxnsKey(txn.Seller), id); err != nil {
		return 0, err
	}
	if err := emitEvent(ctx, "BatchPurchased", txn); err != nil {
		return 0, err
	}
	return id, nil
}

// ConfirmPurchase releases the escrowed funds to the seller and finalizes
// custody of the purchase batch. Only the buyer of a delivered purchase may
// confirm.
func (t *TransactionManagerContract) ConfirmPurchase(ctx contractapi.TransactionContextInterface,
	transactionID uint64) error {

	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	txn, err := getTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.Buyer != caller {
		return fmt.Errorf("confirm transaction %d: %w", transactionID, ErrNotBuyer)
	}
	if txn.Status != TxDelivered {
		return fmt.Errorf("transaction %d is %s: %w", transactionID, txn.Status, ErrNotDelivered)
	}

	if err := settleTransaction(ctx, txn); err != nil {
		return err
	}
	return emitEvent(ctx, "PurchaseConfirmed", txn)
}

// DisputePurchase freezes the escrow of a delivered purchase. Resolution is
// an external process; only the time-based auto-release exits this state.
func (t *TransactionManagerContract) DisputePurchase(ctx contractapi.TransactionContextInterface,
	transactionID uint64) error {

	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	txn, err := getTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.Buyer != caller {
		return fmt.Errorf("dispute transaction %d: %w", transactionID, ErrNotBuyer)
	}
	if txn.Status != TxDelivered {
		return fmt.Errorf("transaction %d is %s: %w", transactionID, txn.Status, ErrNotDelivered)
	}

	txn.Status = TxDisputed
	if err := putTransaction(ctx, txn); err != nil {
		return err
	}
	return emitEvent(ctx, "PurchaseDisputed", txn)
}

// AutoReleaseEscrow settles a delivered purchase once the dispute window has
// elapsed. Anyone may trigger it; it is the escape hatch against an
// unresponsive buyer.
func (t *TransactionManagerContract) AutoReleaseEscrow(ctx contractapi.TransactionContextInterface,
	transactionID uint64) error {

	txn, err := getTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.Status != TxDelivered && txn.Status != TxDisputed {
		return fmt.Errorf("transaction %d is %s: %w", transactionID, txn.Status, ErrNotDelivered)
	}

	now, err := txTimestamp(ctx)
	if err != nil {
		return err
	}
	if now <= txn.DeliveredAt+disputePeriodSeconds {
		return fmt.Errorf("transaction %d: %w", transactionID, ErrDisputePeriodActive)
	}

	if err := settleTransaction(ctx, txn); err != nil {
		return err
	}
	return emitEvent(ctx, "EscrowReleased", txn)
}

// GetTransaction retrieves a transaction by id.
func (t *TransactionManagerContract) GetTransaction(ctx contractapi.TransactionContextInterface,
	transactionID uint64) (*Transaction, error) {
	return getTransaction(ctx, transactionID)
}

// GetUserTransactions returns every transaction id where the address is the
// buyer or the seller.
func (t *TransactionManagerContract) GetUserTransactions(ctx contractapi.TransactionContextInterface,
	address string) ([]uint64, error) {
	return readIndex(ctx, userTxnsKey(address))
}

// Deposit credits the caller's on-ledger balance and returns it. Backing the
// credit with an off-ledger payment rail is a collaborator concern.
func (t *TransactionManagerContract) Deposit(ctx contractapi.TransactionContextInterface,
	amount uint64) (uint64, error) {

	if amount == 0 {
		return 0, fmt.Errorf("deposit amount: %w", ErrInvalidQuantity)
	}
	caller, err := callerID(ctx)
	if err != nil {
		return 0, err
	}
	account, err := creditAccount(ctx, caller, amount)
	if err != nil {
		return 0, err
	}
	if err := emitEvent(ctx, "FundsDeposited", account); err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Withdraw debits the caller's on-ledger balance and returns the remainder.
func (t *TransactionManagerContract) Withdraw(ctx contractapi.TransactionContextInterface,
	amount uint64) (uint64, error) {

	if amount == 0 {
		return 0, fmt.Errorf("withdraw amount: %w", ErrInvalidQuantity)
	}
	caller, err := callerID(ctx)
	if err != nil {
		return 0, err
	}
	account, err := debitAccount(ctx, caller, amount)
	if err != nil {
		return 0, err
	}
	if err := emitEvent(ctx, "FundsWithdrawn", account); err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// GetBalance returns the on-ledger balance of an address.
func (t *TransactionManagerContract) GetBalance(ctx contractapi.TransactionContextInterface,
	address string) (uint64, error) {

	account, err := getAccount(ctx, address)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// settleTransaction pays the seller the locked price and hands the purchase
// batch to the buyer: creator becomes the buyer, the pending owner clears and
// the state resets for the new owner.
func settleTransaction(ctx contractapi.TransactionContextInterface, txn *Transaction) error {
	if _, err := creditAccount(ctx, txn.Seller, txn.Price); err != nil {
		return err
	}
	txn.Status = TxConfirmed
	if err := putTransaction(ctx, txn); err != nil {
		return err
	}

	batch, err := getBatch(ctx, txn.BatchID)
	if err != nil {
		return err
	}
	batch.Creator = txn.Buyer
	batch.PendingOwner = ""
	batch.State = BatchAvailable
	if err := putBatch(ctx, batch); err != nil {
		return err
	}
	return appendIndex(ctx, userBatchesKey(txn.Buyer), batch.ID)
}

// linkPurchase ties a purchase batch to its transaction so shipment progress
// can find the transaction without an explicit id.
func linkPurchase(ctx contractapi.TransactionContextInterface, batchID uint64, transactionID uint64) error {
	return ctx.GetStub().PutState(purchaseKey(batchID), []byte(strconv.FormatUint(transactionID, 10)))
}

// syncTransactionForBatch propagates shipment progress to the transaction
// waiting on the batch, if any. Settled or disputed transactions are left
// alone; shipment activity after settlement belongs to the new owner.
func syncTransactionForBatch(ctx contractapi.TransactionContextInterface,
	batchID uint64, status TransactionStatus, deliveredAt int64) error {

	data, err := ctx.GetStub().GetState(purchaseKey(batchID))
	if err != nil {
		return fmt.Errorf("failed to read purchase link for batch %d: %v", batchID, err)
	}
	if data == nil {
		return nil
	}
	transactionID, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("corrupt purchase link for batch %d: %v", batchID, err)
	}
	txn, err := getTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.Status == TxConfirmed || txn.Status == TxDisputed {
		return nil
	}
	txn.Status = status
	if deliveredAt != 0 {
		txn.DeliveredAt = deliveredAt
	}
	return putTransaction(ctx, txn)
}
