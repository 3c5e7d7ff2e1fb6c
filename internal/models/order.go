package models

import "time"

type OrderStatus string

const (
	StatusCreated  OrderStatus = "CREATED"
	StatusPending  OrderStatus = "PENDING"
	StatusComplete OrderStatus = "COMPLETE"
)

// PlaceholderContractAddress marks an order whose escrow contract has not
// been deployed yet. It is replaced exactly once, at successful deployment.
const PlaceholderContractAddress = "X"

// Forward reports whether moving from s to next advances the order exactly
// one step along CREATED -> PENDING -> COMPLETE.
func (s OrderStatus) Forward(next OrderStatus) bool {
	switch s {
	case StatusCreated:
		return next == StatusPending
	case StatusPending:
		return next == StatusComplete
	default:
		return false
	}
}

type Order struct {
	ID              int64       `json:"id"`
	Status          OrderStatus `json:"status"`
	UserEmail       string      `json:"user_email"`
	ContractAddress string      `json:"contract_address"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Deployed reports whether the order's escrow contract exists on chain.
func (o *Order) Deployed() bool {
	return o != nil && o.ContractAddress != "" && o.ContractAddress != PlaceholderContractAddress
}

type OrderItem struct {
	ID        int64 `json:"id"`
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	// UnitPriceCents is the catalog price frozen at placement time, so the
	// stored total always matches the amount locked in the escrow contract.
	UnitPriceCents int64 `json:"unit_price_cents"`
}

// TotalCents sums quantity x frozen unit price over the given items.
func TotalCents(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * item.UnitPriceCents
	}
	return total
}
