package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

var errStorageDown = errors.New("storage unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Mock KeyValueStore
type memKV struct {
	mu       sync.Mutex
	data     map[string][]byte
	failLoad bool
	failSave bool
	failDel  bool
	saves    int
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Load(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad {
		return nil, false, errStorageDown
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Save(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errStorageDown
	}
	m.saves++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDel {
		return errStorageDown
	}
	delete(m.data, key)
	return nil
}

func (m *memKV) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	idempotencySet map[string]bool
	fail           bool
}

func (m *mockCacheRepo) held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idempotencySet[key]
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{idempotencySet: make(map[string]bool)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, errStorageDown
	}
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

// Mock OrderRepository; enforces one order per session like the unique index.
type mockOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]domain.Order
	creates int
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]domain.Order)}
}

func (m *mockOrderRepo) CreateOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.SessionID]; ok {
		return port.ErrDuplicateOrder
	}
	m.creates++
	m.orders[order.SessionID] = order
	return nil
}

func (m *mockOrderRepo) GetOrderBySession(ctx context.Context, sessionID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[sessionID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

// Mock CheckoutGateway
type mockGateway struct {
	mu        sync.Mutex
	requests  []domain.CheckoutSessionRequest
	sessions  map[string]domain.CheckoutSession
	createErr error
	retrieves int
}

func newMockGateway() *mockGateway {
	return &mockGateway{sessions: make(map[string]domain.CheckoutSession)}
}

func (m *mockGateway) CreateSession(ctx context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return domain.CheckoutSession{}, m.createErr
	}
	m.requests = append(m.requests, req)
	return domain.CheckoutSession{ID: "cs_test", URL: "https://pay.example.com/c/cs_test"}, nil
}

func (m *mockGateway) RetrieveSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrieves++
	sess, ok := m.sessions[sessionID]
	if !ok {
		return domain.CheckoutSession{}, errors.New("no such session")
	}
	return sess, nil
}

// Mock Notifier
type mockNotifier struct {
	mu   sync.Mutex
	sent []domain.Order
	err  error

	// hang makes sends wait for the context deadline, like a stalled provider.
	hang bool
}

func (m *mockNotifier) SendOrderConfirmation(ctx context.Context, order domain.Order) error {
	if m.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, order)
	return nil
}

func testLine(variantID string, price string, stockCap int) domain.CartLine {
	return domain.CartLine{
		VariantID:     variantID,
		ProductID:     "prod-" + variantID,
		ProductSlug:   "product-" + variantID,
		Title:         "Product " + variantID,
		UnitPrice:     decimal.RequireFromString(price),
		UnitSalePrice: decimal.RequireFromString(price),
		StockCap:      stockCap,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
