package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	cartKeyPrefix    = "cart:"
	restoreKeyPrefix = "cart-restore:"

	cartSchemaVersion = 1
)

var errInvalidCartDocument = errors.New("invalid cart document")

// CartStore owns the cart of a single browsing session for one activation
// (one request, one page load). It is not safe for concurrent use; callers
// serialize activations of the same session.
//
// Every public method is total: storage faults are logged and swallowed and
// the in-memory state stays authoritative for the rest of the activation.
type CartStore struct {
	kv         port.KeyValueStore
	log        *slog.Logger
	sessionID  string
	cartKey    string
	restoreKey string
	now        func() time.Time

	state domain.CartState

	cancelHandled  bool
	successHandled bool
}

func NewCartStore(kv port.KeyValueStore, sessionID string, log *slog.Logger) *CartStore {
	if log == nil {
		log = slog.Default()
	}
	return &CartStore{
		kv:         kv,
		log:        log.With(slog.String("cart_session", sessionID)),
		sessionID:  sessionID,
		cartKey:    cartKeyPrefix + sessionID,
		restoreKey: restoreKeyPrefix + sessionID,
		now:        time.Now,
	}
}

// OpenCartStore builds a store and loads the persisted cart.
func OpenCartStore(ctx context.Context, kv port.KeyValueStore, sessionID string, log *slog.Logger) *CartStore {
	s := NewCartStore(kv, sessionID, log)
	s.Load(ctx)
	return s
}

// Load replaces the in-memory cart with the persisted one. An absent or
// unreadable document yields an empty cart. The panel always starts closed.
func (s *CartStore) Load(ctx context.Context) {
	s.state = domain.CartState{}

	data, ok, err := s.kv.Load(ctx, s.cartKey)
	if err != nil {
		s.log.Warn("cart load failed, starting empty", slog.Any("err", err))
		return
	}
	if !ok {
		return
	}

	lines, err := decodeCart(data)
	if err != nil {
		s.log.Warn("persisted cart is corrupt, starting empty", slog.Any("err", err))
		return
	}
	s.state.Lines = lines
}

func (s *CartStore) SessionID() string { return s.sessionID }

// Lines returns a copy of the cart lines in insertion order.
func (s *CartStore) Lines() []domain.CartLine { return s.state.CloneLines() }

// Snapshot returns a copy of the whole cart state.
func (s *CartStore) Snapshot() domain.CartState {
	return domain.CartState{Lines: s.state.CloneLines(), PanelOpen: s.state.PanelOpen}
}

func (s *CartStore) ItemCount() int { return s.state.ItemCount() }

func (s *CartStore) Subtotal() decimal.Decimal { return s.state.Subtotal() }

func (s *CartStore) PanelOpen() bool { return s.state.PanelOpen }

func (s *CartStore) OpenPanel() { s.state.PanelOpen = true }

func (s *CartStore) ClosePanel() { s.state.PanelOpen = false }

// AddItem adds one unit of the candidate's variant. An existing line is
// incremented up to its stock cap; a line already at cap is left unchanged.
// The candidate's Quantity is ignored.
func (s *CartStore) AddItem(ctx context.Context, candidate domain.CartLine) {
	if !candidate.Valid() {
		s.log.Debug("ignoring invalid cart candidate", slog.String("variant_id", candidate.VariantID))
		return
	}

	if i := s.state.IndexOf(candidate.VariantID); i >= 0 {
		line := &s.state.Lines[i]
		if line.Quantity < line.StockCap {
			line.Quantity++
		}
	} else {
		line := candidate.Clone()
		line.Quantity = 1
		s.state.Lines = append(s.state.Lines, line)
	}

	s.state.PanelOpen = true
	s.persist(ctx)
}

func (s *CartStore) RemoveItem(ctx context.Context, variantID string) {
	i := s.state.IndexOf(variantID)
	if i < 0 {
		return
	}
	s.state.Lines = append(s.state.Lines[:i], s.state.Lines[i+1:]...)
	s.persist(ctx)
}

// UpdateQuantity sets the quantity of a line, clamped to its stock cap.
// A non-positive quantity removes the line.
func (s *CartStore) UpdateQuantity(ctx context.Context, variantID string, quantity int) {
	i := s.state.IndexOf(variantID)
	if i < 0 {
		return
	}
	if quantity <= 0 {
		s.RemoveItem(ctx, variantID)
		return
	}

	line := &s.state.Lines[i]
	line.Quantity = min(quantity, line.StockCap)
	s.persist(ctx)
}

func (s *CartStore) ClearCart(ctx context.Context) {
	s.state.Lines = nil
	s.persist(ctx)
}

// WriteRestoreRecord parks a single buy-now line in storage so a cancelled
// checkout can put it back in the cart.
func (s *CartStore) WriteRestoreRecord(ctx context.Context, line domain.CartLine) {
	rec := domain.RestoreRecord{Line: line.Clone(), CreatedAt: s.now().UTC()}
	rec.Line.Quantity = 1

	data, err := json.Marshal(rec)
	if err != nil {
		s.log.Warn("encode restore record failed", slog.Any("err", err))
		return
	}
	if err := s.kv.Save(ctx, s.restoreKey, data); err != nil {
		s.log.Warn("save restore record failed", slog.Any("err", err))
	}
}

// OnCancelReturn runs when the shopper comes back from a cancelled checkout.
// With restoreFlag set, a parked buy-now line is added back to the cart and
// the record is deleted, whether or not the add changed anything. Only the
// first call in an activation has any effect.
func (s *CartStore) OnCancelReturn(ctx context.Context, restoreFlag bool) {
	if s.cancelHandled {
		return
	}
	s.cancelHandled = true

	if !restoreFlag {
		return
	}

	data, ok, err := s.kv.Load(ctx, s.restoreKey)
	if err != nil {
		s.log.Warn("load restore record failed", slog.Any("err", err))
		return
	}
	if !ok {
		return
	}

	var rec domain.RestoreRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.log.Warn("malformed restore record dropped", slog.Any("err", err))
	} else {
		s.AddItem(ctx, rec.Line)
	}

	if err := s.kv.Delete(ctx, s.restoreKey); err != nil {
		s.log.Warn("delete restore record failed", slog.Any("err", err))
	}
}

// OnSuccessReturn runs when the shopper comes back from a completed checkout.
// It empties the cart once per activation and drops any parked buy-now line.
func (s *CartStore) OnSuccessReturn(ctx context.Context, sessionPresent bool) {
	if s.successHandled {
		return
	}
	s.successHandled = true

	if !sessionPresent {
		return
	}

	s.ClearCart(ctx)
	if err := s.kv.Delete(ctx, s.restoreKey); err != nil {
		s.log.Warn("delete restore record failed", slog.Any("err", err))
	}
}

func (s *CartStore) persist(ctx context.Context) {
	data, err := encodeCart(s.state.Lines)
	if err != nil {
		s.log.Warn("encode cart failed", slog.Any("err", err))
		return
	}
	if err := s.kv.Save(ctx, s.cartKey, data); err != nil {
		s.log.Warn("save cart failed", slog.Any("err", err))
	}
}

type cartDocument struct {
	Version int               `json:"v"`
	Lines   []domain.CartLine `json:"lines"`
}

func encodeCart(lines []domain.CartLine) ([]byte, error) {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return json.Marshal(cartDocument{Version: cartSchemaVersion, Lines: lines})
}

// decodeCart parses a persisted cart and rejects documents that break the
// cart invariants: unknown version, invalid lines, quantities outside
// 1..stockCap or a variant listed twice.
func decodeCart(data []byte) ([]domain.CartLine, error) {
	var doc cartDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "unmarshal cart")
	}
	if doc.Version != cartSchemaVersion {
		return nil, errors.Wrapf(errInvalidCartDocument, "version %d", doc.Version)
	}

	seen := make(map[string]struct{}, len(doc.Lines))
	for _, l := range doc.Lines {
		if !l.Valid() || l.Quantity < 1 || l.Quantity > l.StockCap {
			return nil, errors.Wrapf(errInvalidCartDocument, "line %q", l.VariantID)
		}
		if _, dup := seen[l.VariantID]; dup {
			return nil, errors.Wrapf(errInvalidCartDocument, "duplicate variant %q", l.VariantID)
		}
		seen[l.VariantID] = struct{}{}
	}

	if len(doc.Lines) == 0 {
		return nil, nil
	}
	return doc.Lines, nil
}
