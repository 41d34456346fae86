package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unitPrice"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (i *CartItem) Total() decimal.Decimal {
	return decimal.NewFromFloat(i.UnitPrice).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartLine is a cart item joined with its product.
type CartLine struct {
	CartItem
	Product *Product `json:"product"`
}

type Cart struct {
	Items    []*CartLine `json:"items"`
	Subtotal float64     `json:"subtotal"`
}

func NewCart(lines []*CartLine) *Cart {
	if lines == nil {
		lines = []*CartLine{}
	}
	subtotal, _ := CartSubtotal(lines).Float64()
	return &Cart{Items: lines, Subtotal: subtotal}
}

func CartSubtotal(lines []*CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Total())
	}
	return total.Round(2)
}
