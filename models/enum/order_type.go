package enum

type OrderType string

const (
	OrderTypeProduct OrderType = "product"
	OrderTypeCoupon  OrderType = "coupon"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeProduct || t == OrderTypeCoupon
}
