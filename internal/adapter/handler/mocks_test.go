package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Load(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Save(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) keysWithPrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type fakeCatalog struct {
	variants map[string]domain.Variant
	err      error
}

func (f *fakeCatalog) GetVariant(ctx context.Context, variantID string) (*domain.Variant, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.variants[variantID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	created   []domain.CheckoutSessionRequest
	sessions  map[string]domain.CheckoutSession
}

func (f *fakeGateway) CreateSession(ctx context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return domain.CheckoutSession{}, f.createErr
	}
	f.created = append(f.created, req)
	return domain.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil
}

func (f *fakeGateway) RetrieveSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return domain.CheckoutSession{}, errors.New("no such session")
	}
	return s, nil
}

type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func (f *fakeOrders) CreateOrder(ctx context.Context, order domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[order.SessionID]; ok {
		return port.ErrDuplicateOrder
	}
	f.orders[order.SessionID] = order
	return nil
}

func (f *fakeOrders) GetOrderBySession(ctx context.Context, sessionID string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[sessionID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

type fakeCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (f *fakeCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeCache) ReleaseIdempotency(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

type testDeps struct {
	kv       *memKV
	catalog  *fakeCatalog
	gateway  *fakeGateway
	orders   *fakeOrders
	orderSvc *service.OrderService
}

func newTestDeps() *testDeps {
	d := &testDeps{
		kv: newMemKV(),
		catalog: &fakeCatalog{variants: map[string]domain.Variant{
			"A": {ID: "A", ProductID: "p1", ProductSlug: "tee", Title: "Tee",
				Price: decimal.RequireFromString("10.00"), SalePrice: decimal.RequireFromString("7.50"), OnSale: true, Stock: 2},
			"B": {ID: "B", ProductID: "p2", ProductSlug: "mug", Title: "Mug",
				Price: decimal.RequireFromString("12.00"), SalePrice: decimal.RequireFromString("12.00"), Stock: 5},
			"OUT": {ID: "OUT", ProductID: "p3", ProductSlug: "gone", Title: "Gone",
				Price: decimal.RequireFromString("1.00"), SalePrice: decimal.RequireFromString("1.00"), Stock: 0},
		}},
		gateway: &fakeGateway{sessions: map[string]domain.CheckoutSession{
			"cs_paid": {ID: "cs_paid", PaymentStatus: domain.PaymentStatusPaid, Currency: "usd", AmountTotal: 1500,
				LineItems: []domain.CheckoutLineItem{{Title: "Tee", UnitAmountMinorUnits: 750, Quantity: 2}}},
			"cs_open": {ID: "cs_open", PaymentStatus: domain.PaymentStatusUnpaid},
		}},
		orders: &fakeOrders{orders: make(map[string]domain.Order)},
	}
	d.orderSvc = service.NewOrderService(d.orders, d.gateway, &fakeCache{keys: map[string]bool{}}, 10, discardLogger())
	return d
}

func (d *testDeps) checkoutService() *service.CheckoutService {
	return service.NewCheckoutService(d.gateway, service.CheckoutConfig{
		PublicBaseURL:         "https://shop.example.com",
		Currency:              "usd",
		FreeShippingThreshold: decimal.RequireFromString("50"),
		ShippingFee:           decimal.RequireFromString("4.99"),
	}, discardLogger())
}
