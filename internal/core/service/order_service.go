package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

var (
	ErrMissingSession = errors.New("missing checkout session id")
	ErrSessionNotPaid = errors.New("checkout session not paid")
	ErrOrderNotFound  = errors.New("order not found")
)

const (
	confirmationKeyPrefix = "order-confirmation:"

	confirmationSendTimeout = 10 * time.Second
	guardReleaseTimeout     = 2 * time.Second
)

// OrderService turns completed checkout sessions into persisted orders.
// Reconcile is idempotent per session: the first call creates the order,
// later calls return the same order number.
type OrderService struct {
	orders  port.OrderRepository
	gateway port.CheckoutGateway
	cache   port.CacheRepository
	log     *slog.Logger
	now     func() time.Time

	sendTimeout time.Duration

	// mu guards closed; senders hold it shared so Close never races a send.
	mu                sync.RWMutex
	closed            bool
	confirmationQueue chan domain.Order
}

func NewOrderService(orders port.OrderRepository, gateway port.CheckoutGateway, cache port.CacheRepository, queueSize int, log *slog.Logger) *OrderService {
	if log == nil {
		log = slog.Default()
	}
	return &OrderService{
		orders:            orders,
		gateway:           gateway,
		cache:             cache,
		log:               log,
		now:               time.Now,
		sendTimeout:       confirmationSendTimeout,
		confirmationQueue: make(chan domain.Order, queueSize),
	}
}

func (s *OrderService) Reconcile(ctx context.Context, sessionID string) (domain.Order, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || sessionID == SessionIDPlaceholder {
		return domain.Order{}, ErrMissingSession
	}

	existing, err := s.orders.GetOrderBySession(ctx, sessionID)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "lookup order")
	}
	if existing != nil {
		s.enqueueConfirmation(ctx, *existing)
		return *existing, nil
	}

	sess, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "retrieve checkout session")
	}
	if sess.PaymentStatus != domain.PaymentStatusPaid {
		return domain.Order{}, ErrSessionNotPaid
	}

	order := s.newOrder(sess)
	err = s.orders.CreateOrder(ctx, order)
	if errors.Is(err, port.ErrDuplicateOrder) {
		// A concurrent call for the same session won the insert.
		winner, lookupErr := s.orders.GetOrderBySession(ctx, sessionID)
		if lookupErr != nil {
			return domain.Order{}, errors.Wrap(lookupErr, "lookup order after conflict")
		}
		if winner == nil {
			return domain.Order{}, errors.Wrap(err, "order vanished after conflict")
		}
		order = *winner
	} else if err != nil {
		return domain.Order{}, errors.Wrap(err, "create order")
	} else {
		s.log.Info("order created",
			slog.String("order_number", order.OrderNumber),
			slog.String("session_id", sessionID),
			slog.Int64("amount_total", order.AmountTotalMinor),
		)
	}

	s.enqueueConfirmation(ctx, order)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, sessionID string) (domain.Order, error) {
	order, err := s.orders.GetOrderBySession(ctx, sessionID)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "lookup order")
	}
	if order == nil {
		return domain.Order{}, ErrOrderNotFound
	}
	return *order, nil
}

func (s *OrderService) newOrder(sess domain.CheckoutSession) domain.Order {
	now := s.now().UTC()
	order := domain.Order{
		ID:               uuid.NewString(),
		OrderNumber:      newOrderNumber(),
		SessionID:        sess.ID,
		CustomerEmail:    sess.CustomerEmail,
		Currency:         sess.Currency,
		AmountTotalMinor: sess.AmountTotal,
		Status:           domain.OrderStatusPaid,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var computed int64
	for _, it := range sess.LineItems {
		line := domain.OrderLine{
			VariantID:        it.Metadata["variant_id"],
			Title:            it.Title,
			Quantity:         it.Quantity,
			UnitAmountMinor:  it.UnitAmountMinorUnits,
			TotalAmountMinor: it.UnitAmountMinorUnits * int64(it.Quantity),
		}
		computed += line.TotalAmountMinor
		order.Lines = append(order.Lines, line)
	}
	if order.AmountTotalMinor == 0 {
		order.AmountTotalMinor = computed
	}
	return order
}

// enqueueConfirmation queues the confirmation email once per session without
// blocking the caller. When the queue is full or closed the guard is released
// so a later reconcile can queue it again.
func (s *OrderService) enqueueConfirmation(ctx context.Context, order domain.Order) {
	if order.CustomerEmail == "" {
		return
	}

	key := confirmationKeyPrefix + order.SessionID
	ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		s.log.Warn("confirmation idempotency check failed", slog.Any("err", err), slog.String("order_number", order.OrderNumber))
		return
	}
	if !ok {
		return
	}

	if s.tryEnqueue(order) {
		return
	}
	s.log.Warn("confirmation queue unavailable, email deferred", slog.String("order_number", order.OrderNumber))
	s.releaseGuard(key)
}

func (s *OrderService) tryEnqueue(order domain.Order) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.confirmationQueue <- order:
		return true
	default:
		return false
	}
}

// releaseGuard frees the confirmation guard with its own deadline; the
// caller's context may already be done.
func (s *OrderService) releaseGuard(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), guardReleaseTimeout)
	defer cancel()
	if err := s.cache.ReleaseIdempotency(ctx, key); err != nil {
		s.log.Error("release confirmation key failed", slog.String("key", key), slog.Any("err", err))
	}
}

func (s *OrderService) GetConfirmationQueue() <-chan domain.Order {
	return s.confirmationQueue
}

// RunConfirmationWorker sends confirmation emails until the queue is closed.
func (s *OrderService) RunConfirmationWorker(id int, notifier port.Notifier) {
	for order := range s.confirmationQueue {
		ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
		err := notifier.SendOrderConfirmation(ctx, order)
		cancel()

		if err != nil {
			s.log.Error("send order confirmation failed",
				slog.Int("worker", id),
				slog.String("order_number", order.OrderNumber),
				slog.Any("err", err),
			)
			// Allow a later reconcile of the same session to retry the email.
			s.releaseGuard(confirmationKeyPrefix + order.SessionID)
			continue
		}
		s.log.Info("order confirmation sent", slog.Int("worker", id), slog.String("order_number", order.OrderNumber))
	}
}

// Close stops accepting confirmations and lets workers drain the queue. It is
// safe to call while reconciliations are still in flight.
func (s *OrderService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.confirmationQueue)
}

func newOrderNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(id[:8])
}
