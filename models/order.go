package models

import (
	"time"

	"goflare.io/checkout/models/enum"
)

type Order struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	Type             enum.OrderType   `json:"type"`
	Products         []OrderProduct   `json:"products"`
	Coupon           *OrderCoupon     `json:"coupon,omitempty"`
	AppliedCoupon    *AppliedCoupon   `json:"appliedCoupon,omitempty"`
	TotalAmount      float64          `json:"totalAmount"`
	GatewaySessionID string           `json:"gatewaySessionId"`
	Status           enum.OrderStatus `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	CompletedAt      *time.Time       `json:"completedAt,omitempty"`
}

// OrderProduct is the snapshot of a cart line at checkout time.
type OrderProduct struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// OrderCoupon references the reserved code a coupon order pays for.
type OrderCoupon struct {
	CouponID string  `json:"couponId"`
	Code     string  `json:"code"`
	Price    float64 `json:"price"`
}

// AppliedCoupon references an owned code used as a discount on a product order.
type AppliedCoupon struct {
	CouponID       string  `json:"couponId"`
	Code           string  `json:"code"`
	DiscountAmount float64 `json:"discountAmount"`
}

type CheckoutRequest struct {
	Type          enum.OrderType `json:"type" validate:"required,oneof=product coupon"`
	Items         []string       `json:"items"`
	AppliedCoupon *CouponRef     `json:"appliedCoupon"`
}

type CouponRef struct {
	Code string `json:"code" validate:"required"`
}

type CheckoutSession struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	OrderID string `json:"orderId"`
}
