package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidCandidate = errors.New("item cannot be purchased")
	ErrCheckoutFailed   = errors.New("checkout session creation failed")
)

// SessionIDPlaceholder is substituted by the checkout provider with the real
// session id when redirecting to the success URL.
const SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

type CheckoutConfig struct {
	PublicBaseURL         string
	Currency              string
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
}

type CheckoutService struct {
	gateway port.CheckoutGateway
	cfg     CheckoutConfig
	log     *slog.Logger
}

func NewCheckoutService(gateway port.CheckoutGateway, cfg CheckoutConfig, log *slog.Logger) *CheckoutService {
	if log == nil {
		log = slog.Default()
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &CheckoutService{gateway: gateway, cfg: cfg, log: log}
}

// BuildLineItems converts cart lines into the provider's line items, charging
// the sale price for lines on sale. Shipping is appended as its own line while
// the subtotal is below the free-shipping threshold.
func (s *CheckoutService) BuildLineItems(lines []domain.CartLine) []domain.CheckoutLineItem {
	items := make([]domain.CheckoutLineItem, 0, len(lines)+1)
	subtotal := decimal.Zero

	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal())

		item := domain.CheckoutLineItem{
			Title:                lineTitle(l),
			UnitAmountMinorUnits: toMinorUnits(l.EffectivePrice()),
			Currency:             s.cfg.Currency,
			Quantity:             l.Quantity,
			Metadata: map[string]string{
				"variant_id": l.VariantID,
				"product_id": l.ProductID,
			},
		}
		if img := s.absoluteURL(l.ImageRef); img != "" {
			item.ImageURLs = []string{img}
		}
		items = append(items, item)
	}

	if s.cfg.ShippingFee.IsPositive() && subtotal.LessThan(s.cfg.FreeShippingThreshold) {
		items = append(items, domain.CheckoutLineItem{
			Title:                "Shipping",
			UnitAmountMinorUnits: toMinorUnits(s.cfg.ShippingFee),
			Currency:             s.cfg.Currency,
			Quantity:             1,
			Metadata:             map[string]string{"kind": "shipping"},
		})
	}
	return items
}

// StartCheckout opens a checkout session for the whole cart and returns the
// URL to redirect to. The cart is left as is; it is cleared only when the
// shopper returns to the success page.
func (s *CheckoutService) StartCheckout(ctx context.Context, store *CartStore) (string, error) {
	lines := store.Lines()
	if len(lines) == 0 {
		return "", ErrEmptyCart
	}

	sess, err := s.gateway.CreateSession(ctx, domain.CheckoutSessionRequest{
		LineItems:       s.BuildLineItems(lines),
		SuccessURL:      s.successURL(),
		CancelURL:       s.cfg.PublicBaseURL + "/checkout/cancel",
		ClientReference: store.SessionID(),
	})
	if err != nil {
		s.log.Error("create checkout session", slog.Any("err", err), slog.Int("lines", len(lines)))
		return "", errors.Wrap(ErrCheckoutFailed, err.Error())
	}
	return sess.URL, nil
}

// BuyNow checks out a single unit of candidate without touching the cart.
// Once the session exists the line is parked as a restore record, so a
// cancelled checkout can put it in the cart.
func (s *CheckoutService) BuyNow(ctx context.Context, store *CartStore, candidate domain.CartLine) (string, error) {
	if !candidate.Valid() {
		return "", ErrInvalidCandidate
	}
	line := candidate.Clone()
	line.Quantity = 1

	sess, err := s.gateway.CreateSession(ctx, domain.CheckoutSessionRequest{
		LineItems:       s.BuildLineItems([]domain.CartLine{line}),
		SuccessURL:      s.successURL(),
		CancelURL:       s.cfg.PublicBaseURL + "/checkout/cancel?restore=1",
		ClientReference: store.SessionID(),
	})
	if err != nil {
		s.log.Error("create buy-now session", slog.Any("err", err), slog.String("variant_id", line.VariantID))
		return "", errors.Wrap(ErrCheckoutFailed, err.Error())
	}

	store.WriteRestoreRecord(ctx, line)
	return sess.URL, nil
}

func (s *CheckoutService) successURL() string {
	return s.cfg.PublicBaseURL + "/checkout/success?session_id=" + SessionIDPlaceholder
}

func (s *CheckoutService) absoluteURL(ref string) string {
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	return s.cfg.PublicBaseURL + "/" + strings.TrimLeft(ref, "/")
}

func lineTitle(l domain.CartLine) string {
	if len(l.OptionLabels) == 0 {
		return l.Title
	}
	opts := make([]string, 0, len(l.OptionLabels))
	for _, o := range l.OptionLabels {
		opts = append(opts, o.Value)
	}
	return l.Title + " (" + strings.Join(opts, ", ") + ")"
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
