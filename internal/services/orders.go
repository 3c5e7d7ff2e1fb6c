package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/chainshopapp/chainshop/internal/catalog"
	"github.com/chainshopapp/chainshop/internal/db"
	"github.com/chainshopapp/chainshop/internal/logging"
	"github.com/chainshopapp/chainshop/internal/models"
	"github.com/chainshopapp/chainshop/internal/observability"
)

type orderStore interface {
	Create(ctx context.Context, email string, items []models.OrderItem) (*models.Order, error)
	GetByID(ctx context.Context, orderID int64) (*models.Order, error)
	SetContractAddress(ctx context.Context, orderID int64, address string) error
	AdvanceStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) error
	ListByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error)
	ListByEmail(ctx context.Context, email string) ([]*models.Order, error)
	ItemsByOrder(ctx context.Context, orderID int64) ([]models.OrderItem, error)
}

type catalogReader interface {
	Resolve(ctx context.Context, productID int64) (*models.Product, error)
}

type escrowClient interface {
	ChainID() *big.Int
	Deploy(ctx context.Context, customer common.Address, amountMinorUnits *big.Int) (common.Address, error)
	IsPaid(ctx context.Context, contract common.Address) (bool, error)
	IsPickedUp(ctx context.Context, contract common.Address) (bool, error)
	Customer(ctx context.Context, contract common.Address) (common.Address, error)
	PickUp(ctx context.Context, contract, courier common.Address) error
	FinaliseDelivery(ctx context.Context, contract common.Address) error
	GasPrice(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	GasLimit() uint64
}

// OrderLifecycle drives the order state machine and keeps the ledger in
// step with the escrow contract. All mutating operations on an existing
// order are serialized per order id.
type OrderLifecycle struct {
	orders  orderStore
	catalog catalogReader
	escrow  escrowClient
	locks   *orderLocks
	logger  *slog.Logger
}

func NewOrderLifecycle(orders orderStore, catalogReader catalogReader, escrowClient escrowClient, logger *slog.Logger) *OrderLifecycle {
	return &OrderLifecycle{
		orders:  orders,
		catalog: catalogReader,
		escrow:  escrowClient,
		locks:   newOrderLocks(),
		logger:  logger,
	}
}

func (s *OrderLifecycle) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// ItemRequest is one requested line of an order. Fields arrive untyped so
// missing values can be told apart from malformed ones.
type ItemRequest struct {
	ID       any `json:"id"`
	Quantity any `json:"quantity"`
}

// PlaceOrder validates the requested items, persists a CREATED order with
// price snapshots, then deploys the escrow contract for the order total.
// The order is persisted before deployment on purpose: a deployment
// failure leaves a recorded order that operators can re-deploy.
func (s *OrderLifecycle) PlaceOrder(ctx context.Context, identity Identity, address string, requests []ItemRequest) (int64, error) {
	span := sentry.StartSpan(ctx, "service.order.place", sentry.WithOpName("service.order"))
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	if !identity.HasRole(models.RoleCustomer) {
		return 0, ErrUnauthorized
	}
	if len(requests) == 0 {
		return 0, validationError("Field requests is missing.")
	}

	// counter counts previously validated items, so error messages index
	// the offending request the way clients already expect.
	counter := 0
	items := make([]models.OrderItem, 0, len(requests))
	for _, request := range requests {
		if request.ID == nil {
			return 0, validationError("Product id is missing for request number %d.", counter)
		}
		if request.Quantity == nil {
			return 0, validationError("Product quantity is missing for request number %d.", counter)
		}
		productID, ok := coercePositiveInt(request.ID)
		if !ok {
			return 0, validationError("Invalid product id for request number %d.", counter)
		}
		quantity, ok := coercePositiveInt(request.Quantity)
		if !ok {
			return 0, validationError("Invalid product quantity for request number %d.", counter)
		}

		product, err := s.catalog.Resolve(ctx, productID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			return 0, validationError("Invalid product for request number %d.", counter)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to resolve product %d: %w", productID, err)
		}
		counter++

		items = append(items, models.OrderItem{
			ProductID:      product.ID,
			Quantity:       int(quantity),
			UnitPriceCents: product.PriceCents,
		})
	}

	if address == "" {
		return 0, validationError("Field address is missing.")
	}
	if !common.IsHexAddress(address) {
		return 0, validationError("Invalid address.")
	}

	order, err := s.orders.Create(ctx, identity.Email, items)
	if err != nil {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}
	meter.Count("order.created", 1)

	totalCents := models.TotalCents(items)
	contractAddress, err := s.escrow.Deploy(ctx, common.HexToAddress(address), big.NewInt(totalCents))
	if err != nil {
		meter.Count("order.deploy.failed", 1)
		logger.Error("escrow deployment failed, order parked in CREATED",
			"order_id", order.ID, "amount_minor_units", totalCents, "error", err)
		return 0, chainError(err)
	}

	if err := s.orders.SetContractAddress(ctx, order.ID, contractAddress.Hex()); err != nil {
		logger.Error("failed to record contract address",
			"order_id", order.ID, "contract", contractAddress.Hex(), "error", err)
		return 0, fmt.Errorf("failed to record contract address: %w", err)
	}

	logger.Info("order placed",
		"order_id", order.ID, "contract", contractAddress.Hex(), "amount_minor_units", totalCents)
	return order.ID, nil
}

// PickUp records courier pickup after verifying on-chain payment.
func (s *OrderLifecycle) PickUp(ctx context.Context, identity Identity, orderID int64, address string) error {
	span := sentry.StartSpan(ctx, "service.order.pick_up", sentry.WithOpName("service.order"))
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)

	if !identity.HasRole(models.RoleCourier) {
		return ErrUnauthorized
	}
	if orderID <= 0 {
		return validationError("Invalid order id.")
	}

	s.locks.Lock(orderID)
	defer s.locks.Unlock(orderID)

	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, db.ErrOrderNotFound) {
		return validationError("Invalid order id.")
	}
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}
	if order.Status != models.StatusCreated || !order.Deployed() {
		return validationError("Invalid order id.")
	}
	if address == "" {
		return validationError("Field address is missing.")
	}
	if !common.IsHexAddress(address) {
		return validationError("Invalid address.")
	}

	contract := common.HexToAddress(order.ContractAddress)
	paid, err := s.escrow.IsPaid(ctx, contract)
	if err != nil {
		return chainError(err)
	}
	if !paid {
		meter.Count("order.pickup.rejected", 1, sentry.WithAttributes(
			attribute.String("reason", "payment_incomplete"),
		))
		return conflictError("Transfer not complete.")
	}

	if err := s.escrow.PickUp(ctx, contract, common.HexToAddress(address)); err != nil {
		meter.Count("order.pickup.failed", 1)
		return chainError(err)
	}

	if err := s.orders.AdvanceStatus(ctx, orderID, models.StatusCreated, models.StatusPending); err != nil {
		// Chain state is now ahead of the ledger; the reconciler closes
		// this gap on its next sweep.
		s.loggerFromContext(ctx).Error("ledger behind chain after pickup",
			"order_id", orderID, "error", err)
		return fmt.Errorf("failed to advance order %d: %w", orderID, err)
	}

	meter.Count("order.picked_up", 1)
	s.loggerFromContext(ctx).Info("order picked up", "order_id", orderID, "courier", identity.Email)
	return nil
}

// ConfirmDelivery finalises the escrow after verifying on-chain pickup.
func (s *OrderLifecycle) ConfirmDelivery(ctx context.Context, identity Identity, orderID int64) error {
	span := sentry.StartSpan(ctx, "service.order.confirm_delivery", sentry.WithOpName("service.order"))
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)

	if !identity.HasRole(models.RoleCustomer) {
		return ErrUnauthorized
	}
	if orderID <= 0 {
		return validationError("Invalid order id.")
	}

	s.locks.Lock(orderID)
	defer s.locks.Unlock(orderID)

	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, db.ErrOrderNotFound) {
		return validationError("Invalid order id.")
	}
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}
	if order.UserEmail != identity.Email || order.Status == models.StatusComplete || !order.Deployed() {
		return validationError("Invalid order id.")
	}

	contract := common.HexToAddress(order.ContractAddress)
	pickedUp, err := s.escrow.IsPickedUp(ctx, contract)
	if err != nil {
		return chainError(err)
	}
	if !pickedUp {
		meter.Count("order.delivery.rejected", 1, sentry.WithAttributes(
			attribute.String("reason", "pickup_incomplete"),
		))
		return conflictError("Delivery not complete.")
	}

	// A CREATED order whose contract reports pickup means the ledger fell
	// behind the chain. Catch it up before completing so the status never
	// skips PENDING.
	if order.Status == models.StatusCreated {
		if err := s.orders.AdvanceStatus(ctx, orderID, models.StatusCreated, models.StatusPending); err != nil {
			return fmt.Errorf("failed to catch up order %d: %w", orderID, err)
		}
	}

	if err := s.escrow.FinaliseDelivery(ctx, contract); err != nil {
		meter.Count("order.delivery.failed", 1)
		return chainError(err)
	}

	if err := s.orders.AdvanceStatus(ctx, orderID, models.StatusPending, models.StatusComplete); err != nil {
		s.loggerFromContext(ctx).Error("ledger behind chain after delivery",
			"order_id", orderID, "error", err)
		return fmt.Errorf("failed to complete order %d: %w", orderID, err)
	}

	meter.Count("order.delivered", 1)
	s.loggerFromContext(ctx).Info("order delivered", "order_id", orderID)
	return nil
}

// Invoice is an unsigned transaction descriptor. The caller signs and
// submits it externally; the platform never touches customer keys.
type Invoice struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Value    int64  `json:"value"`
	Gas      uint64 `json:"gas"`
	GasPrice uint64 `json:"gasPrice"`
	Nonce    uint64 `json:"nonce"`
	ChainID  uint64 `json:"chainId"`
}

// GenerateInvoice builds the payment transaction for an order's escrow
// contract. The payer must be the counterparty recorded at deployment.
func (s *OrderLifecycle) GenerateInvoice(ctx context.Context, identity Identity, orderID int64, address string) (*Invoice, error) {
	meter := observability.MeterFromContext(ctx)

	if !identity.HasRole(models.RoleCustomer) {
		return nil, ErrUnauthorized
	}
	if orderID <= 0 {
		return nil, validationError("Invalid order id.")
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, db.ErrOrderNotFound) {
		return nil, validationError("Invalid order id.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if !order.Deployed() {
		return nil, validationError("Invalid order id.")
	}
	if address == "" {
		return nil, validationError("Missing address.")
	}
	if !common.IsHexAddress(address) {
		return nil, validationError("Invalid address.")
	}

	contract := common.HexToAddress(order.ContractAddress)
	payer := common.HexToAddress(address)

	customer, err := s.escrow.Customer(ctx, contract)
	if err != nil {
		return nil, chainError(err)
	}
	if customer != payer {
		return nil, validationError("Invalid address.")
	}

	paid, err := s.escrow.IsPaid(ctx, contract)
	if err != nil {
		return nil, chainError(err)
	}
	if paid {
		return nil, conflictError("Transfer already complete.")
	}

	items, err := s.orders.ItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	gasPrice, err := s.escrow.GasPrice(ctx)
	if err != nil {
		return nil, chainError(err)
	}
	nonce, err := s.escrow.PendingNonce(ctx, payer)
	if err != nil {
		return nil, chainError(err)
	}

	meter.Count("order.invoice.generated", 1)
	return &Invoice{
		From:     payer.Hex(),
		To:       contract.Hex(),
		Value:    models.TotalCents(items),
		Gas:      s.escrow.GasLimit(),
		GasPrice: gasPrice.Uint64(),
		Nonce:    nonce,
		ChainID:  s.escrow.ChainID().Uint64(),
	}, nil
}

// PendingOrder is a row in the courier's pickup list.
type PendingOrder struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// ListPendingOrders returns every order still waiting for pickup.
func (s *OrderLifecycle) ListPendingOrders(ctx context.Context, identity Identity) ([]PendingOrder, error) {
	if !identity.HasRole(models.RoleCourier) {
		return nil, ErrUnauthorized
	}

	orders, err := s.orders.ListByStatus(ctx, models.StatusCreated)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	pending := make([]PendingOrder, 0, len(orders))
	for _, order := range orders {
		pending = append(pending, PendingOrder{ID: order.ID, Email: order.UserEmail})
	}
	return pending, nil
}

type OrderProduct struct {
	Categories []string `json:"categories"`
	Name       string   `json:"name"`
	Price      float64  `json:"price"`
	Quantity   int      `json:"quantity"`
}

type OrderStatusEntry struct {
	Products  []OrderProduct     `json:"products"`
	Price     float64            `json:"price"`
	Status    models.OrderStatus `json:"status"`
	Timestamp string             `json:"timestamp"`
}

// ListOrderStatus returns the caller's orders with items and totals.
// Prices are the ones frozen at placement, so totals always match the
// escrowed amount even after catalog updates.
func (s *OrderLifecycle) ListOrderStatus(ctx context.Context, identity Identity) ([]OrderStatusEntry, error) {
	if !identity.HasRole(models.RoleCustomer) {
		return nil, ErrUnauthorized
	}

	orders, err := s.orders.ListByEmail(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	entries := make([]OrderStatusEntry, 0, len(orders))
	for _, order := range orders {
		items, err := s.orders.ItemsByOrder(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load items for order %d: %w", order.ID, err)
		}

		products := make([]OrderProduct, 0, len(items))
		for _, item := range items {
			product, err := s.catalog.Resolve(ctx, item.ProductID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve product %d: %w", item.ProductID, err)
			}
			products = append(products, OrderProduct{
				Categories: product.Categories,
				Name:       product.Name,
				Price:      float64(item.UnitPriceCents) / 100,
				Quantity:   item.Quantity,
			})
		}

		entries = append(entries, OrderStatusEntry{
			Products:  products,
			Price:     float64(models.TotalCents(items)) / 100,
			Status:    order.Status,
			Timestamp: order.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return entries, nil
}

// ParseOrderID validates the untyped order id field of a request body.
func ParseOrderID(value any) (int64, error) {
	if value == nil {
		return 0, validationError("Missing order id.")
	}
	orderID, ok := coercePositiveInt(value)
	if !ok {
		return 0, validationError("Invalid order id.")
	}
	return orderID, nil
}

// coercePositiveInt accepts JSON numbers and numeric strings, rejecting
// fractional and non-positive values.
func coercePositiveInt(value any) (int64, bool) {
	switch v := value.(type) {
	case float64:
		if v != float64(int64(v)) || int64(v) <= 0 {
			return 0, false
		}
		return int64(v), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			return 0, false
		}
		return parsed, true
	case int64:
		if v <= 0 {
			return 0, false
		}
		return v, true
	case int:
		if v <= 0 {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}
