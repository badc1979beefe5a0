package domain

import "github.com/shopspring/decimal"

// Variant is the catalog's view of a purchasable SKU.
type Variant struct {
	ID           string
	ProductID    string
	ProductSlug  string
	Title        string
	OptionLabels []OptionLabel
	Price        decimal.Decimal
	SalePrice    decimal.Decimal
	OnSale       bool
	Stock        int
	ImageURL     string
}

// CartCandidate snapshots the variant into a line ready for AddItem.
func (v Variant) CartCandidate() CartLine {
	return CartLine{
		VariantID:     v.ID,
		ProductID:     v.ProductID,
		ProductSlug:   v.ProductSlug,
		Title:         v.Title,
		OptionLabels:  append([]OptionLabel(nil), v.OptionLabels...),
		UnitPrice:     v.Price,
		UnitSalePrice: v.SalePrice,
		IsOnSale:      v.OnSale,
		StockCap:      v.Stock,
		ImageRef:      v.ImageURL,
	}
}
