package checkout

import (
	"github.com/shopspring/decimal"

	"goflare.io/checkout/coupon"
	"goflare.io/checkout/gateway"
	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
)

var centsPerUnit = decimal.NewFromInt(100)

func toCents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(centsPerUnit).Round(0).IntPart()
}

func lineCents(line *models.CartLine) int64 {
	return line.Total().Mul(centsPerUnit).Round(0).IntPart()
}

// buildLineItems turns cart lines into gateway line items with discount
// (in currency units) spread over the lines in category, proportionally to
// their totals. Lines outside category are never discounted. A line whose
// per-unit share does not divide evenly is split in two so the charged total
// is exact to the cent.
func buildLineItems(lines []*models.CartLine, category enum.Category, discount float64) []gateway.LineItem {
	shares := discountShares(lines, category, toCents(discount))

	items := make([]gateway.LineItem, 0, len(lines))
	for i, line := range lines {
		name, images := lineLabel(line)
		qty := int64(line.Quantity)
		unit := toCents(line.UnitPrice)

		if shares[i] == 0 || qty == 0 {
			items = append(items, gateway.LineItem{Name: name, Images: images, UnitAmount: unit, Quantity: qty})
			continue
		}

		perUnit := shares[i] / qty
		remainder := shares[i] % qty

		if qty-remainder > 0 {
			items = append(items, gateway.LineItem{
				Name:       name,
				Images:     images,
				UnitAmount: unit - perUnit,
				Quantity:   qty - remainder,
			})
		}
		if remainder > 0 {
			items = append(items, gateway.LineItem{
				Name:       name,
				Images:     images,
				UnitAmount: unit - perUnit - 1,
				Quantity:   remainder,
			})
		}
	}
	return items
}

// discountShares returns the discount in cents carried by each line in
// category. The shares sum to discount, capped at the category total, and
// never exceed a line's own total.
func discountShares(lines []*models.CartLine, category enum.Category, discount int64) []int64 {
	shares := make([]int64, len(lines))
	if discount <= 0 || len(lines) == 0 {
		return shares
	}

	totals := make([]int64, len(lines))
	eligible := make([]bool, len(lines))
	var eligibleTotal int64
	for i, line := range lines {
		totals[i] = lineCents(line)
		if coupon.InCategory(line, category) {
			eligible[i] = true
			eligibleTotal += totals[i]
		}
	}

	if discount > eligibleTotal {
		discount = eligibleTotal
	}
	if eligibleTotal == 0 {
		return shares
	}

	d := decimal.NewFromInt(discount)
	base := decimal.NewFromInt(eligibleTotal)
	var assigned int64
	for i := range lines {
		if !eligible[i] {
			continue
		}
		shares[i] = d.Mul(decimal.NewFromInt(totals[i])).Div(base).Floor().IntPart()
		assigned += shares[i]
	}

	for left := discount - assigned; left > 0; {
		for i := range lines {
			if left == 0 {
				break
			}
			if eligible[i] && shares[i] < totals[i] {
				shares[i]++
				left--
			}
		}
	}

	return shares
}

func lineLabel(line *models.CartLine) (string, []string) {
	if line.Product == nil {
		return line.ProductID, nil
	}
	var images []string
	if line.Product.Image != "" {
		images = []string{line.Product.Image}
	}
	return line.Product.Name, images
}

func lineItemsTotal(items []gateway.LineItem) int64 {
	var total int64
	for _, item := range items {
		total += item.UnitAmount * item.Quantity
	}
	return total
}
