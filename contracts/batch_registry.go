package contracts

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// BatchRegistryContract is the single source of truth for batch records.
// Every other contract mutates batches only through its operations.
type BatchRegistryContract struct {
	contractapi.Contract
}

// CreateBatch registers a new root batch owned by the caller.
func (r *BatchRegistryContract) CreateBatch(ctx contractapi.TransactionContextInterface,
	isForSale bool, unitPrice uint64, location string, quantity uint64) (uint64, error) {

	if quantity == 0 {
		return 0, fmt.Errorf("batch quantity: %w", ErrInvalidQuantity)
	}

	caller, err := callerID(ctx)
	if err != nil {
		return 0, err
	}
	now, err := txTimestamp(ctx)
	if err != nil {
		return 0, err
	}
	id, err := nextID(ctx, batchCounterKey)
	if err != nil {
		return 0, err
	}

	batch := &Batch{
		ID:        id,
		Creator:   caller,
		Quantity:  quantity,
		Available: quantity,
		IsForSale: isForSale,
		Price:     unitPrice,
		Location:  location,
		State:     BatchAvailable,
		CreatedAt: now,
	}
	if err := putBatch(ctx, batch); err != nil {
		return 0, err
	}
	if err := appendIndex(ctx, userBatchesKey(caller), id); err != nil {
		return 0, err
	}
	if err := emitEvent(ctx, "BatchCreated", batch); err != nil {
		return 0, err
	}
	return id, nil
}

// ToggleSale updates the sale listing and unit price of a batch.
func (r *BatchRegistryContract) ToggleSale(ctx contractapi.TransactionContextInterface,
	batchID uint64, isForSale bool, unitPrice uint64) error {

	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	batch, err := getBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if !isBatchOwner(batch, caller) {
		return fmt.Errorf("toggle sale on batch %d: %w", batchID, ErrNotBatchOwner)
	}

	batch.IsForSale = isForSale
	batch.Price = unitPrice
	if err := putBatch(ctx, batch); err != nil {
		return err
	}
	return emitEvent(ctx, "SaleToggled", batch)
}

// UpdateBatchLocation records a new location for the batch.
func (r *BatchRegistryContract) UpdateBatchLocation(ctx contractapi.TransactionContextInterface,
	batchID uint64, newLocation string) error {

	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	batch, err := getBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if !canRelocate(batch, caller) {
		return fmt.Errorf("relocate batch %d: %w", batchID, ErrNotAuthorized)
	}

	batch.Location = newLocation
	if err := putBatch(ctx, batch); err != nil {
		return err
	}
	return emitEvent(ctx, "BatchRelocated", batch)
}

// TransformBatch converts part of an owned batch into a new batch at a new
// location, recording the move as one already-completed shipment leg on the
// child. The parent's available quantity shrinks exactly as it does on a sale
// split, but no escrow is involved.
func (r *BatchRegistryContract) TransformBatch(ctx contractapi.TransactionContextInterface,
	batchID uint64, splitQuantity uint64, newLocation string, note string) (uint64, error) {

	caller, err := callerID(ctx)
	if err != nil {
		return 0, err
	}
	batch, err := getBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if !isBatchOwner(batch, caller) {
		return 0, fmt.Errorf("transform batch %d: %w", batchID, ErrNotBatchOwner)
	}
	if batch.PendingOwner != "" {
		return 0, fmt.Errorf("transform batch %d: %w", batchID, ErrPendingTransfer)
	}
	if splitQuantity == 0 {
		return 0, fmt.Errorf("transform batch %d: %w", batchID, ErrInvalidQuantity)
	}
	if splitQuantity > batch.Available {
		return 0, fmt.Errorf("transform batch %d has %d available: %w", batchID, batch.Available, ErrNotEnoughAvailable)
	}

	now, err := txTimestamp(ctx)
	if err != nil {
		return 0, err
	}
	newID, err := nextID(ctx, batchCounterKey)
	if err != nil {
		return 0, err
	}

	oldLocation := batch.Location
	batch.Available -= splitQuantity
	if err := putBatch(ctx, batch); err != nil {
		return 0, err
	}

	child := &Batch{
		ID:        newID,
		ParentID:  batchID,
		Creator:   caller,
		Quantity:  splitQuantity,
		Available: splitQuantity,
		Location:  newLocation,
		State:     BatchAvailable,
		CreatedAt: now,
	}
	if err := putBatch(ctx, child); err != nil {
		return 0, err
	}
	if err := appendIndex(ctx, userBatchesKey(caller), newID); err != nil {
		return 0, err
	}
	if err := recordCompletedLeg(ctx, newID, oldLocation, newLocation, caller, note, now); err != nil {
		return 0, err
	}
	if err := emitEvent(ctx, "BatchTransformed", child); err != nil {
		return 0, err
	}
	return newID, nil
}

// TransferBatchOwnership reassigns a batch directly, bypassing escrow. Used
// for non-sale transfers between parties that settle off-ledger.
func (r *BatchRegistryContract) TransferBatchOwnership(ctx contractapi.TransactionContextInterface,
	batchID uint64, newOwner string) error {

	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	batch, err := getBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if !isBatchOwner(batch, caller) {
		return fmt.Errorf("transfer batch %d: %w", batchID, ErrNotBatchOwner)
	}
	if batch.PendingOwner != "" {
		return fmt.Errorf("transfer batch %d: %w", batchID, ErrPendingTransfer)
	}
	if newOwner == "" {
		return fmt.Errorf("transfer batch %d: new owner required", batchID)
	}

	batch.Creator = newOwner
	batch.State = BatchTransferred
	if err := putBatch(ctx, batch); err != nil {
		return err
	}
	if err := appendIndex(ctx, userBatchesKey(newOwner), batchID); err != nil {
		return err
	}
	return emitEvent(ctx, "OwnershipTransferred", batch)
}

// GetBatch retrieves a batch by id.
func (r *BatchRegistryContract) GetBatch(ctx contractapi.TransactionContextInterface,
	batchID uint64) (*Batch, error) {
	return getBatch(ctx, batchID)
}

// GetUserBatches returns every batch id ever created by or transferred to the
// address. The index is append-only; it is not pruned on transfer-out.
func (r *BatchRegistryContract) GetUserBatches(ctx contractapi.TransactionContextInterface,
	address string) ([]uint64, error) {
	return readIndex(ctx, userBatchesKey(address))
}

// GetAllBatches returns every batch record on the ledger.
func (r *BatchRegistryContract) GetAllBatches(ctx contractapi.TransactionContextInterface) ([]*Batch, error) {
	resultsIterator, err := ctx.GetStub().GetStateByRange(batchKeyPrefix, batchKeyPrefix+"~")
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %v", err)
	}
	defer resultsIterator.Close()

	var batches []*Batch
	for resultsIterator.HasNext() {
		queryResponse, err := resultsIterator.Next()
		if err != nil {
			return nil, err
		}
		var batch Batch
		if err := json.Unmarshal(queryResponse.Value, &batch); err != nil {
			return nil, fmt.Errorf("corrupt batch record %s: %v", queryResponse.Key, err)
		}
		batches = append(batches, &batch)
	}
	// Range scans order keys lexicographically; callers expect id order.
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
	return batches, nil
}

// createPurchaseBatch carves the purchased quantity out of the original batch
// into a new batch held for the buyer. The seller keeps legal ownership until
// the buyer confirms; the buyer is recorded as pending owner.
func createPurchaseBatch(ctx contractapi.TransactionContextInterface,
	original *Batch, buyer string, quantity uint64, now int64) (*Batch, error) {

	if quantity == 0 {
		return nil, fmt.Errorf("purchase from batch %d: %w", original.ID, ErrInvalidQuantity)
	}
	if quantity > original.Available {
		return nil, fmt.Errorf("purchase from batch %d has %d available: %w", original.ID, original.Available, ErrNotEnoughAvailable)
	}

	id, err := nextID(ctx, batchCounterKey)
	if err != nil {
		return nil, err
	}

	original.Available -= quantity
	if err := putBatch(ctx, original); err != nil {
		return nil, err
	}

	child := &Batch{
		ID:           id,
		ParentID:     original.ID,
		Creator:      original.Creator,
		PendingOwner: buyer,
		Quantity:     quantity,
		Available:    quantity,
		Location:     original.Location,
		State:        BatchPurchased,
		CreatedAt:    now,
	}
	if err := putBatch(ctx, child); err != nil {
		return nil, err
	}
	if err := appendIndex(ctx, userBatchesKey(original.Creator), id); err != nil {
		return nil, err
	}
	return child, nil
}
