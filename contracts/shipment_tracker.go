package contracts

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// ShipmentTrackerContract keeps the append-only journey log for each batch
// and drives batch and transaction status transitions as legs progress. At
// most one leg per batch is in transit at a time.
type ShipmentTrackerContract struct {
	contractapi.Contract
}

// AddShipment opens the next leg of a batch's journey. The previous leg, if
// any, must already be delivered.
func (s *ShipmentTrackerContract) AddShipment(ctx contractapi.TransactionContextInterface,
	batchID uint64, from string, to string, details string) error {

	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	batch, err := getBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if !canShip(batch, caller) {
		return fmt.Errorf("add shipment for batch %d: %w", batchID, ErrNotAuthorized)
	}

	journey, err := getJourney(ctx, batchID)
	if err != nil {
		return err
	}
	if n := len(journey); n > 0 && journey[n-1].Status == LegInTransit {
		return fmt.Errorf("batch %d leg %d still in transit: %w", batchID, n-1, ErrInvalidLegState)
	}

	now, err := txTimestamp(ctx)
	if err != nil {
		return err
	}
	leg := ShipmentLeg{
		BatchID:   batchID,
		LegIndex:  len(journey),
		From:      from,
		To:        to,
		Shipper:   caller,
		Details:   details,
		Status:    LegInTransit,
		Timestamp: now,
	}
	if err := putJourney(ctx, batchID, append(journey, leg)); err != nil {
		return err
	}

	batch.State = BatchShipped
	if err := putBatch(ctx, batch); err != nil {
		return err
	}
	if err := syncTransactionForBatch(ctx, batchID, TxInTransit, 0); err != nil {
		return err
	}
	return emitEvent(ctx, "ShipmentAdded", leg)
}

// CompleteLeg marks an in-transit leg as delivered. Only the shipper who
// opened the leg may complete it. The batch moves to the leg destination and
// any active transaction on the batch becomes deliverable.
func (s *ShipmentTrackerContract) CompleteLeg(ctx contractapi.TransactionContextInterface,
	batchID uint64, legIndex uint64) error {

	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	batch, err := getBatch(ctx, batchID)
	if err != nil {
		return err
	}
	journey, err := getJourney(ctx, batchID)
	if err != nil {
		return err
	}
	if legIndex >= uint64(len(journey)) {
		return fmt.Errorf("batch %d has no leg %d: %w", batchID, legIndex, ErrInvalidLegState)
	}

	leg := &journey[legIndex]
	if leg.Shipper != caller {
		return fmt.Errorf("complete leg %d of batch %d: %w", legIndex, batchID, ErrNotShipper)
	}
	if leg.Status != LegInTransit {
		return fmt.Errorf("leg %d of batch %d already delivered: %w", legIndex, batchID, ErrInvalidLegState)
	}

	now, err := txTimestamp(ctx)
	if err != nil {
		return err
	}
	leg.Status = LegDelivered
	if err := putJourney(ctx, batchID, journey); err != nil {
		return err
	}

	batch.State = BatchDelivered
	batch.Location = leg.To
	if err := putBatch(ctx, batch); err != nil {
		return err
	}
	if err := syncTransactionForBatch(ctx, batchID, TxDelivered, now); err != nil {
		return err
	}
	return emitEvent(ctx, "LegCompleted", *leg)
}

// GetBatchJourney returns the ordered sequence of legs for a batch.
func (s *ShipmentTrackerContract) GetBatchJourney(ctx contractapi.TransactionContextInterface,
	batchID uint64) ([]ShipmentLeg, error) {

	if _, err := getBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return getJourney(ctx, batchID)
}

// recordCompletedLeg appends an already-delivered leg to a batch journey.
// BatchRegistry uses it when a transformation relocates goods in one step.
func recordCompletedLeg(ctx contractapi.TransactionContextInterface,
	batchID uint64, from string, to string, shipper string, details string, now int64) error {

	journey, err := getJourney(ctx, batchID)
	if err != nil {
		return err
	}
	leg := ShipmentLeg{
		BatchID:   batchID,
		LegIndex:  len(journey),
		From:      from,
		To:        to,
		Shipper:   shipper,
		Details:   details,
		Status:    LegDelivered,
		Timestamp: now,
	}
	return putJourney(ctx, batchID, append(journey, leg))
}
