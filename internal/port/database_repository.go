package port

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/rl1809/storefront/internal/core/domain"
)

// ErrDuplicateOrder is returned by CreateOrder when the session already has an order.
var ErrDuplicateOrder = errors.New("order already exists for session")

type OrderRepository interface {
	// CreateOrder persists the order and its lines; session IDs are unique
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrderBySession returns nil when no order exists for the session
	GetOrderBySession(ctx context.Context, sessionID string) (*domain.Order, error)
}

type CatalogReader interface {
	// GetVariant returns nil when the variant does not exist
	GetVariant(ctx context.Context, variantID string) (*domain.Variant, error)
}
