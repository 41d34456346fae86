package enum

type Category string

const (
	CategoryElectronics    Category = "Electronics"
	CategoryApparel        Category = "Apparel"
	CategoryHomeGoods      Category = "Home Goods"
	CategoryBooks          Category = "Books"
	CategorySportsOutdoors Category = "Sports & Outdoors"
	CategoryBeauty         Category = "Beauty & Personal Care"
)

var categories = map[Category]struct{}{
	CategoryElectronics:    {},
	CategoryApparel:        {},
	CategoryHomeGoods:      {},
	CategoryBooks:          {},
	CategorySportsOutdoors: {},
	CategoryBeauty:         {},
}

func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}
