package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type CheckoutGateway interface {
	CreateSession(ctx context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error)
}

type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order domain.Order) error
}
