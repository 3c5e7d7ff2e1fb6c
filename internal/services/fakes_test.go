package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainshopapp/chainshop/internal/catalog"
	"github.com/chainshopapp/chainshop/internal/db"
	"github.com/chainshopapp/chainshop/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeOrderStore struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*models.Order
	items  map[int64][]models.OrderItem
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		nextID: 1,
		orders: make(map[int64]*models.Order),
		items:  make(map[int64][]models.OrderItem),
	}
}

func (f *fakeOrderStore) Create(ctx context.Context, email string, items []models.OrderItem) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order := &models.Order{
		ID:              f.nextID,
		Status:          models.StatusCreated,
		UserEmail:       email,
		ContractAddress: models.PlaceholderContractAddress,
		CreatedAt:       time.Now(),
	}
	f.nextID++
	f.orders[order.ID] = order
	f.items[order.ID] = items
	copied := *order
	return &copied, nil
}

func (f *fakeOrderStore) GetByID(ctx context.Context, orderID int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return nil, db.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderStore) SetContractAddress(ctx context.Context, orderID int64, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	if order.ContractAddress != models.PlaceholderContractAddress {
		return db.ErrContractAddressSet
	}
	order.ContractAddress = address
	return nil
}

func (f *fakeOrderStore) AdvanceStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	if order.Status != from || !from.Forward(to) {
		return db.ErrInvalidStatusTransition
	}
	order.Status = to
	return nil
}

func (f *fakeOrderStore) ListByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var orders []*models.Order
	for id := int64(1); id < f.nextID; id++ {
		order, ok := f.orders[id]
		if ok && order.Status == status {
			copied := *order
			orders = append(orders, &copied)
		}
	}
	return orders, nil
}

func (f *fakeOrderStore) ListByEmail(ctx context.Context, email string) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var orders []*models.Order
	for id := int64(1); id < f.nextID; id++ {
		order, ok := f.orders[id]
		if ok && order.UserEmail == email {
			copied := *order
			orders = append(orders, &copied)
		}
	}
	return orders, nil
}

func (f *fakeOrderStore) ItemsByOrder(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[orderID], nil
}

type fakeCatalogReader struct {
	products map[int64]models.Product
}

func (f *fakeCatalogReader) Resolve(ctx context.Context, productID int64) (*models.Product, error) {
	product, ok := f.products[productID]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	copied := product
	return &copied, nil
}

type fakeEscrowClient struct {
	mu sync.Mutex

	deployErr   error
	deployCount int
	customers   map[common.Address]common.Address
	paid        map[common.Address]bool
	pickedUp    map[common.Address]bool
	finalised   map[common.Address]bool
	pickUpCalls int
}

func newFakeEscrowClient() *fakeEscrowClient {
	return &fakeEscrowClient{
		customers: make(map[common.Address]common.Address),
		paid:      make(map[common.Address]bool),
		pickedUp:  make(map[common.Address]bool),
		finalised: make(map[common.Address]bool),
	}
}

func (f *fakeEscrowClient) ChainID() *big.Int { return big.NewInt(1337) }

func (f *fakeEscrowClient) GasLimit() uint64 { return 3_000_000 }

func (f *fakeEscrowClient) Deploy(ctx context.Context, customer common.Address, amountMinorUnits *big.Int) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deployErr != nil {
		return common.Address{}, f.deployErr
	}
	f.deployCount++
	contract := common.BigToAddress(big.NewInt(int64(0x1000 + f.deployCount)))
	f.customers[contract] = customer
	return contract, nil
}

func (f *fakeEscrowClient) IsPaid(ctx context.Context, contract common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paid[contract], nil
}

func (f *fakeEscrowClient) IsPickedUp(ctx context.Context, contract common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pickedUp[contract], nil
}

func (f *fakeEscrowClient) Customer(ctx context.Context, contract common.Address) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	customer, ok := f.customers[contract]
	if !ok {
		return common.Address{}, errors.New("unknown contract")
	}
	return customer, nil
}

func (f *fakeEscrowClient) PickUp(ctx context.Context, contract, courier common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pickUpCalls++
	if !f.paid[contract] {
		return fmt.Errorf("pick up rejected: not paid")
	}
	f.pickedUp[contract] = true
	return nil
}

func (f *fakeEscrowClient) FinaliseDelivery(ctx context.Context, contract common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.pickedUp[contract] {
		return fmt.Errorf("finalise rejected: not picked up")
	}
	f.finalised[contract] = true
	return nil
}

func (f *fakeEscrowClient) GasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(20_000_000_000), nil
}

func (f *fakeEscrowClient) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}
