package domain

type CheckoutLineItem struct {
	Title                string            `json:"title"`
	UnitAmountMinorUnits int64             `json:"unit_amount"`
	Currency             string            `json:"currency"`
	Quantity             int               `json:"quantity"`
	ImageURLs            []string          `json:"images,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

type CheckoutSessionRequest struct {
	LineItems  []CheckoutLineItem `json:"line_items"`
	SuccessURL string             `json:"success_url"`
	CancelURL  string             `json:"cancel_url"`
	// ClientReference ties the session back to the shopper's cart session.
	ClientReference string `json:"client_reference_id,omitempty"`
}

type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusUnpaid PaymentStatus = "unpaid"
)

type CheckoutSession struct {
	ID            string
	URL           string
	PaymentStatus PaymentStatus
	CustomerEmail string
	Currency      string
	AmountTotal   int64
	LineItems     []CheckoutLineItem
}
