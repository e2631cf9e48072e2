package conditions

import (
	"regdesk/internal/model"
	"sort"
)

// Allocate spreads the available discounts over the cart's items. Items
// are visited from the highest unit price down, and each item takes the
// biggest reduction first. Allocations use up the shared clause quantities,
// so available is consumed by the call.
func Allocate(cartID uint, items []*model.ProductItem, available []*DiscountAndQuantity) []*model.DiscountItem {
	ordered := make([]*model.ProductItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Product.Price.GreaterThan(ordered[j].Product.Price)
	})

	var out []*model.DiscountItem
	for _, item := range ordered {
		price := item.Product.Price

		var candidates []*DiscountAndQuantity
		for _, d := range available {
			if d.Applies(&item.Product) {
				candidates = append(candidates, d)
			}
		}
		// ascending and walked from the end: among equal reductions the
		// later clause is used first
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Reduction(price).LessThan(candidates[j].Reduction(price))
		})

		remaining := item.Quantity
		for k := len(candidates) - 1; k >= 0; k-- {
			d := candidates[k]
			if remaining == 0 {
				break
			}
			if d.Quantity <= 0 {
				continue
			}

			n := min(remaining, d.Quantity)
			out = append(out, &model.DiscountItem{
				CartID:     cartID,
				ProductID:  item.ProductID,
				DiscountID: d.Discount.ID,
				Quantity:   n,
			})
			d.Quantity -= n
			remaining -= n
		}
	}
	return out
}
