package enum

type DiscountType string

const (
	DiscountTypePercent DiscountType = "percent"
	DiscountTypeFlat    DiscountType = "flat"
)

func (d DiscountType) Valid() bool {
	return d == DiscountTypePercent || d == DiscountTypeFlat
}
