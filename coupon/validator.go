package coupon

import (
	"time"

	"github.com/shopspring/decimal"

	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
)

const (
	ReasonNotFound     = "Coupon not found."
	ReasonInactive     = "Coupon is inactive or expired."
	ReasonNotOwned     = "This coupon code does not belong to you."
	ReasonAlreadyUsed  = "This coupon code has already been used."
	ReasonNotPurchased = "This coupon has not been purchased yet."
	ReasonMinOrder     = "Order does not meet the minimum amount for this coupon."
	ReasonCategory     = "Cart does not contain enough eligible items for this coupon's category."
)

var hundred = decimal.NewFromInt(100)

// Validate checks whether userID may apply code to an order of orderTotal.
// A category-restricted coupon must also reach its minimum on the subtotal
// of matching cart lines alone.
func Validate(coupon *models.Coupon, code *models.CouponCode, userID string, lines []*models.CartLine, orderTotal float64, now time.Time) models.Validation {
	if coupon == nil || code == nil || code.CouponID != coupon.ID {
		return models.ValidationRejected(ReasonNotFound)
	}
	if !coupon.Redeemable(now) {
		return models.ValidationRejected(ReasonInactive)
	}
	if !code.ClaimedByUser(userID) {
		return models.ValidationRejected(ReasonNotOwned)
	}
	if code.Used {
		return models.ValidationRejected(ReasonAlreadyUsed)
	}
	if !code.IsFinalized() {
		return models.ValidationRejected(ReasonNotPurchased)
	}

	minimum := decimal.NewFromFloat(coupon.MinOrderAmount)
	if decimal.NewFromFloat(orderTotal).LessThan(minimum) {
		return models.ValidationRejected(ReasonMinOrder)
	}

	if coupon.Category != "" {
		if !hasCategory(lines, coupon.Category) || CategorySubtotal(lines, coupon.Category).LessThan(minimum) {
			return models.ValidationRejected(ReasonCategory)
		}
	}

	return models.ValidationOK()
}

// ComputeDiscount returns the discount and the resulting total, both rounded
// to two decimals. The discount never exceeds the order total.
func ComputeDiscount(coupon *models.Coupon, orderTotal float64) (discount, newTotal float64) {
	total := decimal.NewFromFloat(orderTotal)
	if total.IsNegative() {
		total = decimal.Zero
	}

	var d decimal.Decimal
	switch coupon.DiscountType {
	case enum.DiscountTypePercent:
		d = total.Mul(decimal.NewFromFloat(coupon.DiscountValue)).Div(hundred)
		if limit := decimal.NewFromFloat(coupon.MaxDiscountAmount); d.GreaterThan(limit) {
			d = limit
		}
	case enum.DiscountTypeFlat:
		d = decimal.NewFromFloat(coupon.DiscountValue)
	}

	if d.IsNegative() {
		d = decimal.Zero
	}
	if d.GreaterThan(total) {
		d = total
	}

	d = d.Round(2)
	discount, _ = d.Float64()
	newTotal, _ = total.Sub(d).Round(2).Float64()
	return discount, newTotal
}

func CategorySubtotal(lines []*models.CartLine, category enum.Category) decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range lines {
		if InCategory(line, category) {
			subtotal = subtotal.Add(line.Total())
		}
	}
	return subtotal
}

func InCategory(line *models.CartLine, category enum.Category) bool {
	return category == "" || (line.Product != nil && line.Product.Category == category)
}

func hasCategory(lines []*models.CartLine, category enum.Category) bool {
	for _, line := range lines {
		if InCategory(line, category) {
			return true
		}
	}
	return false
}
