package models

// AppliedDiscount is the result of previewing a coupon code against an order.
type AppliedDiscount struct {
	Coupon         *Coupon `json:"appliedCoupon"`
	Code           string  `json:"code"`
	DiscountAmount float64 `json:"discountAmount"`
	NewOrderTotal  float64 `json:"newOrderTotal"`
}

// Validation is the outcome of checking a coupon code against an order.
type Validation struct {
	Valid  bool
	Reason string
}

func ValidationOK() Validation {
	return Validation{Valid: true}
}

func ValidationRejected(reason string) Validation {
	return Validation{Reason: reason}
}
