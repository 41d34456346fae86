package models

import (
	"time"

	"goflare.io/checkout/models/enum"
)

// Product 代表可加入購物車的商品
// Product represents a catalog item that can be added to a cart
type Product struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Image       string        `json:"image,omitempty"`
	Price       float64       `json:"price"`
	Category    enum.Category `json:"category,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}
