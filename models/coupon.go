package models

import (
	"time"

	"goflare.io/checkout/models/enum"
)

type Coupon struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Image             string            `json:"image,omitempty"`
	IsFree            bool              `json:"isFree"`
	Price             float64           `json:"price"`
	DiscountType      enum.DiscountType `json:"discountType"`
	DiscountValue     float64           `json:"discountValue"`
	MaxDiscountAmount float64           `json:"maxDiscountAmount,omitempty"`
	MinOrderAmount    float64           `json:"minOrderAmount"`
	Category          enum.Category     `json:"category,omitempty"`
	IsActive          bool              `json:"isActive"`
	ExpiryDate        time.Time         `json:"expiryDate"`
	UsageLimitPerUser int               `json:"usageLimitPerUser,omitempty"`
	UsedCount         int               `json:"usedCount"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

func (c *Coupon) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiryDate)
}

// Redeemable reports whether the coupon can still be claimed or applied.
func (c *Coupon) Redeemable(now time.Time) bool {
	return c.IsActive && !c.IsExpired(now)
}

type PartialCoupon struct {
	Title             *string            `json:"title"`
	Description       *string            `json:"description"`
	Image             *string            `json:"image"`
	Price             *float64           `json:"price"`
	DiscountType      *enum.DiscountType `json:"discountType"`
	DiscountValue     *float64           `json:"discountValue"`
	MaxDiscountAmount *float64           `json:"maxDiscountAmount"`
	MinOrderAmount    *float64           `json:"minOrderAmount"`
	Category          *enum.Category     `json:"category"`
	IsActive          *bool              `json:"isActive"`
	ExpiryDate        *time.Time         `json:"expiryDate"`
	UsageLimitPerUser *int               `json:"usageLimitPerUser"`
}

type CouponCode struct {
	Code        string     `json:"code"`
	CouponID    string     `json:"couponId"`
	Position    int        `json:"position"`
	ClaimedBy   *string    `json:"claimedBy,omitempty"`
	Used        bool       `json:"used"`
	ReservedAt  *time.Time `json:"reservedAt,omitempty"`
	FinalizedAt *time.Time `json:"finalizedAt,omitempty"`
}

func (c *CouponCode) IsAvailable() bool {
	return c.ClaimedBy == nil
}

// IsReserved reports a code held for a checkout that has not been paid yet.
func (c *CouponCode) IsReserved() bool {
	return c.ClaimedBy != nil && !c.Used && c.FinalizedAt == nil
}

func (c *CouponCode) IsFinalized() bool {
	return c.FinalizedAt != nil
}

func (c *CouponCode) ClaimedByUser(userID string) bool {
	return c.ClaimedBy != nil && *c.ClaimedBy == userID
}

type CouponPurchase struct {
	CouponID    string    `json:"couponId"`
	UserID      string    `json:"userId"`
	PurchasedAt time.Time `json:"purchasedAt"`
}

// CouponSummary is the admin listing view of a coupon and its pool.
type CouponSummary struct {
	Coupon
	TotalCodes     int `json:"totalCodes"`
	AvailableCodes int `json:"availableCodes"`
	Purchases      int `json:"purchases"`
}

type OwnedCoupon struct {
	UserID      string    `json:"userId"`
	CouponID    string    `json:"couponId"`
	Code        string    `json:"code"`
	IsFree      bool      `json:"isFree"`
	PurchasedAt time.Time `json:"purchasedAt"`
}

// OwnedCouponView joins an owned code with its coupon definition.
type OwnedCouponView struct {
	Coupon      *Coupon   `json:"coupon"`
	Code        string    `json:"code"`
	Used        bool      `json:"used"`
	PurchasedAt time.Time `json:"purchasedAt"`
}

type CreateCouponRequest struct {
	Title             string            `json:"title" validate:"required,max=200"`
	Description       string            `json:"description" validate:"max=2000"`
	Image             string            `json:"image" validate:"omitempty,url"`
	Price             float64           `json:"price" validate:"gte=0"`
	DiscountType      enum.DiscountType `json:"discountType" validate:"required,oneof=percent flat"`
	DiscountValue     float64           `json:"discountValue" validate:"gt=0"`
	MaxDiscountAmount float64           `json:"maxDiscountAmount" validate:"gte=0"`
	MinOrderAmount    float64           `json:"minOrderAmount" validate:"gte=0"`
	Category          enum.Category     `json:"category"`
	ExpiryDate        *time.Time        `json:"expiryDate"`
	UsageLimitPerUser int               `json:"usageLimitPerUser" validate:"gte=0"`
	TotalCodes        int               `json:"totalCodes" validate:"required,gte=1,lte=10000"`
}

type ClaimedCoupon struct {
	Coupon *Coupon `json:"coupon"`
	Code   string  `json:"code"`
}
