package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type OrderLine struct {
	VariantID        string
	Title            string
	Quantity         int
	UnitAmountMinor  int64
	TotalAmountMinor int64
}

type Order struct {
	ID               string
	OrderNumber      string
	SessionID        string
	CustomerEmail    string
	Currency         string
	AmountTotalMinor int64
	Status           OrderStatus
	Lines            []OrderLine
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
