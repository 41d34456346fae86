package models

import (
	"time"

	"github.com/stripe/stripe-go/v79"
)

type Event struct {
	ID        string           `json:"id"`
	Type      stripe.EventType `json:"type"`
	Processed bool             `json:"processed"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// OrderEvent is published to the message bus after an order settles.
type OrderEvent struct {
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Total      float64   `json:"total"`
	CouponID   string    `json:"couponId,omitempty"`
	Code       string    `json:"code,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
