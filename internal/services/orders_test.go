package services

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainshopapp/chainshop/internal/models"
)

const (
	testCustomerAddress = "0x1BFc92A20e4ee1f9d9298E5C3e8939f764C6d9fd"
	testCourierAddress  = "0x2546BcD3c84621e976D8185a91A922aE77ECEc30"
)

func customerIdentity() Identity {
	return Identity{Email: "alice@mail.com", Roles: []string{models.RoleCustomer}}
}

func courierIdentity() Identity {
	return Identity{Email: "bob@mail.com", Roles: []string{models.RoleCourier}}
}

func testCatalog() *fakeCatalogReader {
	return &fakeCatalogReader{products: map[int64]models.Product{
		1: {ID: 1, Name: "Apple", PriceCents: 1000, Categories: []string{"fruit"}},
		2: {ID: 2, Name: "Bread", PriceCents: 250, Categories: []string{"food"}},
	}}
}

func newTestLifecycle() (*OrderLifecycle, *fakeOrderStore, *fakeEscrowClient) {
	orders := newFakeOrderStore()
	escrowClient := newFakeEscrowClient()
	lifecycle := NewOrderLifecycle(orders, testCatalog(), escrowClient, testLogger())
	return lifecycle, orders, escrowClient
}

func placeTestOrder(t *testing.T, lifecycle *OrderLifecycle) int64 {
	t.Helper()

	orderID, err := lifecycle.PlaceOrder(context.Background(), customerIdentity(), testCustomerAddress, []ItemRequest{
		{ID: float64(1), Quantity: float64(2)},
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	return orderID
}

func wantServiceError(t *testing.T, err error, kind ErrorKind, message string) {
	t.Helper()

	serviceErr, ok := AsError(err)
	if !ok {
		t.Fatalf("error = %v, want a service error", err)
	}
	if serviceErr.Kind != kind {
		t.Fatalf("error kind = %d, want %d (message %q)", serviceErr.Kind, kind, serviceErr.Message)
	}
	if serviceErr.Message != message {
		t.Fatalf("error message = %q, want %q", serviceErr.Message, message)
	}
}

func TestPlaceOrder(t *testing.T) {
	t.Parallel()

	t.Run("deploys escrow for the frozen total", func(t *testing.T) {
		t.Parallel()

		lifecycle, orders, escrowClient := newTestLifecycle()
		orderID, err := lifecycle.PlaceOrder(context.Background(), customerIdentity(), testCustomerAddress, []ItemRequest{
			{ID: float64(1), Quantity: float64(2)},
			{ID: float64(2), Quantity: float64(4)},
		})
		if err != nil {
			t.Fatalf("PlaceOrder() error = %v", err)
		}

		order, err := orders.GetByID(context.Background(), orderID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if order.Status != models.StatusCreated {
			t.Fatalf("order status = %s, want CREATED", order.Status)
		}
		if !order.Deployed() {
			t.Fatalf("order contract address = %q, want a deployed contract", order.ContractAddress)
		}

		items, _ := orders.ItemsByOrder(context.Background(), orderID)
		if got := models.TotalCents(items); got != 2*1000+4*250 {
			t.Fatalf("order total = %d cents, want 3000", got)
		}
		if escrowClient.deployCount != 1 {
			t.Fatalf("deploy count = %d, want 1", escrowClient.deployCount)
		}
	})

	t.Run("order survives a failed deployment", func(t *testing.T) {
		t.Parallel()

		lifecycle, orders, escrowClient := newTestLifecycle()
		escrowClient.deployErr = context.DeadlineExceeded

		_, err := lifecycle.PlaceOrder(context.Background(), customerIdentity(), testCustomerAddress, []ItemRequest{
			{ID: float64(1), Quantity: float64(1)},
		})
		serviceErr, ok := AsError(err)
		if !ok || serviceErr.Kind != KindChainUnavailable {
			t.Fatalf("PlaceOrder() error = %v, want chain unavailable", err)
		}

		order, err := orders.GetByID(context.Background(), 1)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if order.Status != models.StatusCreated || order.Deployed() {
			t.Fatalf("order = %+v, want CREATED with placeholder contract", order)
		}
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name     string
			identity Identity
			address  string
			requests []ItemRequest
			wantKind ErrorKind
			wantMsg  string
		}{
			{
				name:     "courier cannot order",
				identity: courierIdentity(),
				address:  testCustomerAddress,
				requests: []ItemRequest{{ID: float64(1), Quantity: float64(1)}},
				wantKind: KindUnauthorized,
				wantMsg:  "Missing Authorization Header",
			},
			{
				name:     "missing requests",
				identity: customerIdentity(),
				address:  testCustomerAddress,
				wantKind: KindValidation,
				wantMsg:  "Field requests is missing.",
			},
			{
				name:     "missing product id",
				identity: customerIdentity(),
				address:  testCustomerAddress,
				requests: []ItemRequest{{Quantity: float64(1)}},
				wantKind: KindValidation,
				wantMsg:  "Product id is missing for request number 0.",
			},
			{
				name:     "missing quantity on second request",
				identity: customerIdentity(),
				address:  testCustomerAddress,
				requests: []ItemRequest{{ID: float64(1), Quantity: float64(1)}, {ID: float64(2)}},
				wantKind: KindValidation,
				wantMsg:  "Product quantity is missing for request number 1.",
			},
			{
				name:     "fractional product id",
				identity: customerIdentity(),
				address:  testCustomerAddress,
				requests: []ItemRequest{{ID: 1.5, Quantity: float64(1)}},
				wantKind: KindValidation,
				wantMsg:  "Invalid product id for request number 0.",
			},
			{
				name:     "non positive quantity",
				identity: customerIdentity(),
				address:  testCustomerAddress,
				requests: []ItemRequest{{ID: float64(1), Quantity: float64(0)}},
				wantKind: KindValidation,
				wantMsg:  "Invalid product quantity for request number 0.",
			},
			{
				name:     "unknown product",
				identity: customerIdentity(),
				address:  testCustomerAddress,
				requests: []ItemRequest{{ID: float64(99), Quantity: float64(1)}},
				wantKind: KindValidation,
				wantMsg:  "Invalid product for request number 0.",
			},
			{
				name:     "missing address",
				identity: customerIdentity(),
				requests: []ItemRequest{{ID: float64(1), Quantity: float64(1)}},
				wantKind: KindValidation,
				wantMsg:  "Field address is missing.",
			},
			{
				name:     "malformed address",
				identity: customerIdentity(),
				address:  "not-an-address",
				requests: []ItemRequest{{ID: float64(1), Quantity: float64(1)}},
				wantKind: KindValidation,
				wantMsg:  "Invalid address.",
			},
		}

		for _, tc := range tests {
			tc := tc
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				lifecycle, _, _ := newTestLifecycle()
				_, err := lifecycle.PlaceOrder(context.Background(), tc.identity, tc.address, tc.requests)
				wantServiceError(t, err, tc.wantKind, tc.wantMsg)
			})
		}
	})
}

func TestPickUp(t *testing.T) {
	t.Parallel()

	t.Run("rejected while unpaid", func(t *testing.T) {
		t.Parallel()

		lifecycle, orders, escrowClient := newTestLifecycle()
		orderID := placeTestOrder(t, lifecycle)

		err := lifecycle.PickUp(context.Background(), courierIdentity(), orderID, testCourierAddress)
		wantServiceError(t, err, KindConflict, "Transfer not complete.")

		order, _ := orders.GetByID(context.Background(), orderID)
		if order.Status != models.StatusCreated {
			t.Fatalf("order status = %s, want CREATED after rejected pickup", order.Status)
		}
		if escrowClient.pickUpCalls != 0 {
			t.Fatalf("pickUp calls = %d, want 0 for unpaid order", escrowClient.pickUpCalls)
		}
	})

	t.Run("advances a paid order", func(t *testing.T) {
		t.Parallel()

		lifecycle, orders, escrowClient := newTestLifecycle()
		orderID := placeTestOrder(t, lifecycle)

		order, _ := orders.GetByID(context.Background(), orderID)
		escrowClient.paid[common.HexToAddress(order.ContractAddress)] = true

		if err := lifecycle.PickUp(context.Background(), courierIdentity(), orderID, testCourierAddress); err != nil {
			t.Fatalf("PickUp() error = %v", err)
		}

		order, _ = orders.GetByID(context.Background(), orderID)
		if order.Status != models.StatusPending {
			t.Fatalf("order status = %s, want PENDING", order.Status)
		}
		if !escrowClient.pickedUp[common.HexToAddress(order.ContractAddress)] {
			t.Fatal("contract pickup not recorded")
		}
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name     string
			identity Identity
			orderID  int64
			address  string
			wantKind ErrorKind
			wantMsg  string
		}{
			{
				name:     "customer cannot pick up",
				identity: customerIdentity(),
				orderID:  1,
				address:  testCourierAddress,
				wantKind: KindUnauthorized,
				wantMsg:  "Missing Authorization Header",
			},
			{
				name:     "unknown order",
				identity: courierIdentity(),
				orderID:  42,
				address:  testCourierAddress,
				wantKind: KindValidation,
				wantMsg:  "Invalid order id.",
			},
			{
				name:     "non positive id",
				identity: courierIdentity(),
				orderID:  0,
				address:  testCourierAddress,
				wantKind: KindValidation,
				wantMsg:  "Invalid order id.",
			},
			{
				name:     "missing address",
				identity: courierIdentity(),
				orderID:  1,
				wantKind: KindValidation,
				wantMsg:  "Field address is missing.",
			},
			{
				name:     "malformed address",
				identity: courierIdentity(),
				orderID:  1,
				address:  "bogus",
				wantKind: KindValidation,
				wantMsg:  "Invalid address.",
			},
		}

		for _, tc := range tests {
			tc := tc
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				lifecycle, _, _ := newTestLifecycle()
				placeTestOrder(t, lifecycle)

				err := lifecycle.PickUp(context.Background(), tc.identity, tc.orderID, tc.address)
				wantServiceError(t, err, tc.wantKind, tc.wantMsg)
			})
		}
	})

	t.Run("already pending order is invalid", func(t *testing.T) {
		t.Parallel()

		lifecycle, orders, escrowClient := newTestLifecycle()
		orderID := placeTestOrder(t, lifecycle)

		order, _ := orders.GetByID(context.Background(), orderID)
		escrowClient.paid[common.HexToAddress(order.ContractAddress)] = true
		if err := lifecycle.PickUp(context.Background(), courierIdentity(), orderID, testCourierAddress); err != nil {
			t.Fatalf("PickUp() error = %v", err)
		}

		err := lifecycle.PickUp(context.Background(), courierIdentity(), orderID, testCourierAddress)
		wantServiceError(t, err, KindValidation, "Invalid order id.")
	})
}

func TestConfirmDelivery(t *testing.T) {
	t.Parallel()

	deliverableOrder := func(t *testing.T) (*OrderLifecycle, *fakeOrderStore, *fakeEscrowClient, int64) {
		t.Helper()

		lifecycle, orders, escrowClient := newTestLifecycle()
		orderID := placeTestOrder(t, lifecycle)
		order, _ := orders.GetByID(context.Background(), orderID)
		escrowClient.paid[common.HexToAddress(order.ContractAddress)] = true
		if err := lifecycle.PickUp(context.Background(), courierIdentity(), orderID, testCourierAddress); err != nil {
			t.Fatalf("PickUp() error = %v", err)
		}
		return lifecycle, orders, escrowClient, orderID
	}

	t.Run("completes a picked up order", func(t *testing.T) {
		t.Parallel()

		lifecycle, orders, escrowClient, orderID := deliverableOrder(t)

		if err := lifecycle.ConfirmDelivery(context.Background(), customerIdentity(), orderID); err != nil {
			t.Fatalf("ConfirmDelivery() error = %v", err)
		}

		order, _ := orders.GetByID(context.Background(), orderID)
		if order.Status != models.StatusComplete {
			t.Fatalf("order status = %s, want COMPLETE", order.Status)
		}
		if !escrowClient.finalised[common.HexToAddress(order.ContractAddress)] {
			t.Fatal("escrow not finalised")
		}
	})

	t.Run("rejected before pickup", func(t *testing.T) {
		t.Parallel()

		lifecycle, orders, _ := newTestLifecycle()
		orderID := placeTestOrder(t, lifecycle)

		err := lifecycle.ConfirmDelivery(context.Background(), customerIdentity(), orderID)
		wantServiceError(t, err, KindConflict, "Delivery not complete.")

		order, _ := orders.GetByID(context.Background(), orderID)
		if order.Status != models.StatusCreated {
			t.Fatalf("order status = %s, want CREATED", order.Status)
		}
	})

	t.Run("catches up a ledger behind the chain", func(t *testing.T) {
		t.Parallel()

		lifecycle, orders, escrowClient := newTestLifecycle()
		orderID := placeTestOrder(t, lifecycle)

		// Chain says picked up, ledger still says CREATED.
		order, _ := orders.GetByID(context.Background(), orderID)
		contract := common.HexToAddress(order.ContractAddress)
		escrowClient.paid[contract] = true
		escrowClient.pickedUp[contract] = true

		if err := lifecycle.ConfirmDelivery(context.Background(), customerIdentity(), orderID); err != nil {
			t.Fatalf("ConfirmDelivery() error = %v", err)
		}

		order, _ = orders.GetByID(context.Background(), orderID)
		if order.Status != models.StatusComplete {
			t.Fatalf("order status = %s, want COMPLETE", order.Status)
		}
	})

	t.Run("only the ordering customer may confirm", func(t *testing.T) {
		t.Parallel()

		lifecycle, _, _, orderID := deliverableOrder(t)

		other := Identity{Email: "mallory@mail.com", Roles: []string{models.RoleCustomer}}
		err := lifecycle.ConfirmDelivery(context.Background(), other, orderID)
		wantServiceError(t, err, KindValidation, "Invalid order id.")
	})

	t.Run("completed order is invalid", func(t *testing.T) {
		t.Parallel()

		lifecycle, _, _, orderID := deliverableOrder(t)
		if err := lifecycle.ConfirmDelivery(context.Background(), customerIdentity(), orderID); err != nil {
			t.Fatalf("ConfirmDelivery() error = %v", err)
		}

		err := lifecycle.ConfirmDelivery(context.Background(), customerIdentity(), orderID)
		wantServiceError(t, err, KindValidation, "Invalid order id.")
	})
}

func TestGenerateInvoice(t *testing.T) {
	t.Parallel()

	t.Run("invoice value is the frozen total", func(t *testing.T) {
		t.Parallel()

		orders := newFakeOrderStore()
		escrowClient := newFakeEscrowClient()
		reader := testCatalog()
		lifecycle := NewOrderLifecycle(orders, reader, escrowClient, testLogger())

		orderID := placeTestOrder(t, lifecycle)
		order, _ := orders.GetByID(context.Background(), orderID)

		// A later catalog price change must not affect the invoice.
		reader.products[1] = models.Product{ID: 1, Name: "Apple", PriceCents: 9999}

		invoice, err := lifecycle.GenerateInvoice(context.Background(), customerIdentity(), orderID, testCustomerAddress)
		if err != nil {
			t.Fatalf("GenerateInvoice() error = %v", err)
		}
		if invoice.Value != 2000 {
			t.Fatalf("invoice value = %d, want 2000", invoice.Value)
		}
		if invoice.To != common.HexToAddress(order.ContractAddress).Hex() {
			t.Fatalf("invoice to = %s, want %s", invoice.To, order.ContractAddress)
		}
		if invoice.From != common.HexToAddress(testCustomerAddress).Hex() {
			t.Fatalf("invoice from = %s", invoice.From)
		}
		if invoice.Gas != 3_000_000 || invoice.Nonce != 7 || invoice.ChainID != 1337 {
			t.Fatalf("invoice = %+v", invoice)
		}
	})

	t.Run("payer must be the recorded counterparty", func(t *testing.T) {
		t.Parallel()

		lifecycle, _, _ := newTestLifecycle()
		orderID := placeTestOrder(t, lifecycle)

		_, err := lifecycle.GenerateInvoice(context.Background(), customerIdentity(), orderID, testCourierAddress)
		wantServiceError(t, err, KindValidation, "Invalid address.")
	})

	t.Run("already paid", func(t *testing.T) {
		t.Parallel()

		lifecycle, orders, escrowClient := newTestLifecycle()
		orderID := placeTestOrder(t, lifecycle)
		order, _ := orders.GetByID(context.Background(), orderID)
		escrowClient.paid[common.HexToAddress(order.ContractAddress)] = true

		_, err := lifecycle.GenerateInvoice(context.Background(), customerIdentity(), orderID, testCustomerAddress)
		wantServiceError(t, err, KindConflict, "Transfer already complete.")
	})

	t.Run("missing address", func(t *testing.T) {
		t.Parallel()

		lifecycle, _, _ := newTestLifecycle()
		orderID := placeTestOrder(t, lifecycle)

		_, err := lifecycle.GenerateInvoice(context.Background(), customerIdentity(), orderID, "")
		wantServiceError(t, err, KindValidation, "Missing address.")
	})
}

func TestListPendingOrders(t *testing.T) {
	t.Parallel()

	lifecycle, orders, escrowClient := newTestLifecycle()
	first := placeTestOrder(t, lifecycle)
	second := placeTestOrder(t, lifecycle)

	order, _ := orders.GetByID(context.Background(), first)
	escrowClient.paid[common.HexToAddress(order.ContractAddress)] = true
	if err := lifecycle.PickUp(context.Background(), courierIdentity(), first, testCourierAddress); err != nil {
		t.Fatalf("PickUp() error = %v", err)
	}

	pending, err := lifecycle.ListPendingOrders(context.Background(), courierIdentity())
	if err != nil {
		t.Fatalf("ListPendingOrders() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second {
		t.Fatalf("pending = %+v, want only order %d", pending, second)
	}

	if _, err := lifecycle.ListPendingOrders(context.Background(), customerIdentity()); err == nil {
		t.Fatal("ListPendingOrders() accepted a customer")
	}
}

func TestListOrderStatus(t *testing.T) {
	t.Parallel()

	orders := newFakeOrderStore()
	escrowClient := newFakeEscrowClient()
	reader := testCatalog()
	lifecycle := NewOrderLifecycle(orders, reader, escrowClient, testLogger())

	placeTestOrder(t, lifecycle)

	// Reported prices come from the order snapshot, not the live catalog.
	reader.products[1] = models.Product{ID: 1, Name: "Apple", PriceCents: 9999}

	entries, err := lifecycle.ListOrderStatus(context.Background(), customerIdentity())
	if err != nil {
		t.Fatalf("ListOrderStatus() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Status != models.StatusCreated {
		t.Fatalf("entry status = %s, want CREATED", entry.Status)
	}
	if entry.Price != 20.0 {
		t.Fatalf("entry price = %v, want 20.0", entry.Price)
	}
	if len(entry.Products) != 1 || entry.Products[0].Price != 10.0 || entry.Products[0].Quantity != 2 {
		t.Fatalf("entry products = %+v", entry.Products)
	}
}

func TestParseOrderID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   any
		want    int64
		wantMsg string
	}{
		{name: "nil", value: nil, wantMsg: "Missing order id."},
		{name: "number", value: float64(3), want: 3},
		{name: "numeric string", value: "5", want: 5},
		{name: "fractional", value: 2.5, wantMsg: "Invalid order id."},
		{name: "negative", value: float64(-1), wantMsg: "Invalid order id."},
		{name: "garbage", value: "abc", wantMsg: "Invalid order id."},
		{name: "wrong type", value: true, wantMsg: "Invalid order id."},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseOrderID(tc.value)
			if tc.wantMsg != "" {
				wantServiceError(t, err, KindValidation, tc.wantMsg)
				return
			}
			if err != nil {
				t.Fatalf("ParseOrderID(%v) error = %v", tc.value, err)
			}
			if got != tc.want {
				t.Fatalf("ParseOrderID(%v) = %d, want %d", tc.value, got, tc.want)
			}
		})
	}
}
