package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainshopapp/chainshop/internal/models"
)

var (
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrContractAddressSet      = errors.New("contract address already set")
	ErrOrderNotFound           = errors.New("order not found")
)

// OrderStore persists orders and their line items. Order ids are assigned
// by the database so concurrent creations never collide.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts the order and its items in one transaction. Items must
// carry their frozen unit price; the order starts CREATED with the
// placeholder contract address.
func (s *OrderStore) Create(ctx context.Context, email string, items []models.OrderItem) (*models.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	order := &models.Order{
		Status:          models.StatusCreated,
		UserEmail:       email,
		ContractAddress: models.PlaceholderContractAddress,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (status, user_email, contract_address)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		order.Status, order.UserEmail, order.ContractAddress,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price_cents)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			items[i].OrderID, items[i].ProductID, items[i].Quantity, items[i].UnitPriceCents,
		).Scan(&items[i].ID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return order, nil
}

// NextOrderID reports the id the next created order would receive. It is a
// pure read: calling it never reserves anything.
func (s *OrderStore) NextOrderID(ctx context.Context) (int64, error) {
	var next int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM orders`).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID int64) (*models.Order, error) {
	order := &models.Order{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, user_email, contract_address, created_at
		 FROM orders WHERE id = $1`, orderID,
	).Scan(&order.ID, &order.Status, &order.UserEmail, &order.ContractAddress, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// SetContractAddress records the deployed escrow contract. It only succeeds
// while the stored address is still the placeholder, so the address is set
// exactly once.
func (s *OrderStore) SetContractAddress(ctx context.Context, orderID int64, address string) error {
	cmdTag, err := s.pool.Exec(ctx,
		`UPDATE orders SET contract_address = $1 WHERE id = $2 AND contract_address = $3`,
		address, orderID, models.PlaceholderContractAddress)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrContractAddressSet
	}
	return nil
}

// AdvanceStatus moves an order one step forward. The update is conditional
// on the expected current status, so concurrent writers cannot make the
// status regress or skip a step.
func (s *OrderStore) AdvanceStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) error {
	if !from.Forward(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
	}
	cmdTag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`,
		to, orderID, from)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected %s", ErrInvalidStatusTransition, from)
	}
	return nil
}

func (s *OrderStore) ListByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error) {
	return s.list(ctx,
		`SELECT id, status, user_email, contract_address, created_at
		 FROM orders WHERE status = $1 ORDER BY id`, status)
}

func (s *OrderStore) ListByEmail(ctx context.Context, email string) ([]*models.Order, error) {
	return s.list(ctx,
		`SELECT id, status, user_email, contract_address, created_at
		 FROM orders WHERE user_email = $1 ORDER BY id`, email)
}

func (s *OrderStore) list(ctx context.Context, query string, arg any) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order := &models.Order{}
		if err := rows.Scan(&order.ID, &order.Status, &order.UserEmail, &order.ContractAddress, &order.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (s *OrderStore) ItemsByOrder(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, order_id, product_id, quantity, unit_price_cents
		 FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPriceCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
