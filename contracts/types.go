package contracts

// Batch represents a tracked quantity of agricultural goods with location and
// ownership state. Batches form a forest: splitting or transforming a batch
// creates a child pointing back at its parent, and no batch is ever deleted.
type Batch struct {
	ID           uint64     `json:"id"`
	ParentID     uint64     `json:"parentId"`
	Creator      string     `json:"creator"`
	PendingOwner string     `json:"pendingOwner,omitempty"`
	Quantity     uint64     `json:"quantity"`
	Available    uint64     `json:"available"`
	IsForSale    bool       `json:"isForSale"`
	Price        uint64     `json:"price"` // per unit, smallest monetary unit
	Location     string     `json:"location"`
	State        BatchState `json:"state"`
	CreatedAt    int64      `json:"createdAt"`
}

// Transaction is one escrowed purchase. Price is the total amount locked at
// purchase time; it stays escrowed until confirmation or auto-release.
type Transaction struct {
	ID          uint64            `json:"id"`
	Buyer       string            `json:"buyer"`
	Seller      string            `json:"seller"`
	BatchID     uint64            `json:"batchId"`
	Quantity    uint64            `json:"quantity"`
	Price       uint64            `json:"price"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   int64             `json:"createdAt"`
	DeliveredAt int64             `json:"deliveredAt,omitempty"`
}

// ShipmentLeg is one recorded hop of a batch's physical journey.
type ShipmentLeg struct {
	BatchID   uint64    `json:"batchId"`
	LegIndex  int       `json:"legIndex"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Shipper   string    `json:"shipper"`
	Details   string    `json:"details"`
	Status    LegStatus `json:"status"`
	Timestamp int64     `json:"timestamp"`
}

// Account holds a user's on-ledger funds. Escrowed money is not part of any
// account balance; it is owned by the transaction record until settlement.
type Account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// BatchState records the last custody event on a batch. The escrowed sale
// path runs Available -> Purchased -> Shipped -> Delivered -> Available;
// TransferPending and Transferred mark hand-offs outside escrow.
type BatchState string

const (
	BatchAvailable       BatchState = "AVAILABLE"
	BatchPurchased       BatchState = "PURCHASED"
	BatchShipped         BatchState = "SHIPPED"
	BatchDelivered       BatchState = "DELIVERED"
	BatchTransferPending BatchState = "TRANSFER_PENDING"
	BatchTransferred     BatchState = "TRANSFERRED"
)

type TransactionStatus string

const (
	TxNotShipped TransactionStatus = "NOT_SHIPPED"
	TxInTransit  TransactionStatus = "IN_TRANSIT"
	TxDelivered  TransactionStatus = "DELIVERED"
	TxConfirmed  TransactionStatus = "CONFIRMED"
	TxDisputed   TransactionStatus = "DISPUTED"
)

type LegStatus string

const (
	LegInTransit LegStatus = "IN_TRANSIT"
	LegDelivered LegStatus = "DELIVERED"
)

// Authorization policies. Each mutating operation asks one of these with the
// entity snapshot and the caller identity rather than scattering conditionals.

func isBatchOwner(b *Batch, caller string) bool {
	return b.Creator == caller
}

// canRelocate allows the pending owner to correct location metadata while a
// sale is in flight; only the current owner may do anything else.
func canRelocate(b *Batch, caller string) bool {
	return b.Creator == caller || (b.PendingOwner != "" && b.PendingOwner == caller)
}

// canShip restricts shipping to the current owner. The pending owner of a
// purchase batch is the receiving party, not the fulfilling one.
func canShip(b *Batch, caller string) bool {
	return b.Creator == caller
}
