package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OptionLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CartLine is one purchasable variant held in a cart. Titles, options and prices
// are copies taken when the line was added; they are not re-read from the catalog.
type CartLine struct {
	VariantID     string          `json:"variantId"`
	ProductID     string          `json:"productId"`
	ProductSlug   string          `json:"productSlug"`
	Title         string          `json:"title"`
	OptionLabels  []OptionLabel   `json:"optionLabels,omitempty"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	UnitSalePrice decimal.Decimal `json:"unitSalePrice"`
	IsOnSale      bool            `json:"isOnSale"`
	Quantity      int             `json:"quantity"`
	StockCap      int             `json:"stockCap"` // known stock at add time
	ImageRef      string          `json:"imageRef,omitempty"`
}

func (l CartLine) EffectivePrice() decimal.Decimal {
	if l.IsOnSale {
		return l.UnitSalePrice
	}
	return l.UnitPrice
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.EffectivePrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Valid reports whether l can be placed in a cart, ignoring Quantity.
func (l CartLine) Valid() bool {
	if l.VariantID == "" || l.StockCap < 1 {
		return false
	}
	if l.UnitPrice.IsNegative() || l.UnitSalePrice.IsNegative() {
		return false
	}
	return true
}

// Equal compares two lines by value, treating prices numerically.
func (l CartLine) Equal(o CartLine) bool {
	if l.VariantID != o.VariantID || l.ProductID != o.ProductID || l.ProductSlug != o.ProductSlug ||
		l.Title != o.Title || l.ImageRef != o.ImageRef || l.IsOnSale != o.IsOnSale ||
		l.Quantity != o.Quantity || l.StockCap != o.StockCap {
		return false
	}
	if !l.UnitPrice.Equal(o.UnitPrice) || !l.UnitSalePrice.Equal(o.UnitSalePrice) {
		return false
	}
	if len(l.OptionLabels) != len(o.OptionLabels) {
		return false
	}
	for i := range l.OptionLabels {
		if l.OptionLabels[i] != o.OptionLabels[i] {
			return false
		}
	}
	return true
}

func (l CartLine) Clone() CartLine {
	if l.OptionLabels != nil {
		l.OptionLabels = append([]OptionLabel(nil), l.OptionLabels...)
	}
	return l
}

type CartState struct {
	Lines     []CartLine
	PanelOpen bool
}

func (s CartState) ItemCount() int {
	n := 0
	for _, l := range s.Lines {
		n += l.Quantity
	}
	return n
}

func (s CartState) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

// IndexOf returns the position of variantID in Lines, or -1.
func (s CartState) IndexOf(variantID string) int {
	for i, l := range s.Lines {
		if l.VariantID == variantID {
			return i
		}
	}
	return -1
}

// CloneLines returns a deep copy of the lines so callers cannot mutate the cart.
func (s CartState) CloneLines() []CartLine {
	out := make([]CartLine, len(s.Lines))
	for i, l := range s.Lines {
		out[i] = l.Clone()
	}
	return out
}

// RestoreRecord is the buy-now line parked in storage while the shopper is away
// at the checkout page.
type RestoreRecord struct {
	Line      CartLine  `json:"line"`
	CreatedAt time.Time `json:"createdAt"`
}
