package conditions

import (
	"context"
	"fmt"
	"regdesk/internal/batch"
	"regdesk/internal/model"

	"github.com/shopspring/decimal"
)

// DiscountAndQuantity is one clause the user may still use, and how many
// units of it remain.
type DiscountAndQuantity struct {
	Discount       *model.Discount
	ProductClause  *model.DiscountForProduct
	CategoryClause *model.DiscountForCategory
	Quantity       int
}

// Applies reports whether the clause covers the product.
func (d *DiscountAndQuantity) Applies(p *model.Product) bool {
	if d.ProductClause != nil {
		return d.ProductClause.ProductID == p.ID
	}
	return d.CategoryClause != nil && d.CategoryClause.CategoryID == p.CategoryID
}

// Reduction is the per-unit amount the clause takes off price.
func (d *DiscountAndQuantity) Reduction(price decimal.Decimal) decimal.Decimal {
	if d.ProductClause != nil {
		return d.ProductClause.Reduction(price)
	}
	return d.CategoryClause.Reduction(price)
}

func (e *Engine) paidDiscountItems(ctx context.Context, userID string) ([]*model.DiscountItem, error) {
	return batch.Memoise(ctx, batch.NewKey("conditions.paid_discount_items", userID), func(ctx context.Context) ([]*model.DiscountItem, error) {
		return e.carts.PaidDiscountItems(ctx, userID)
	})
}

// AvailableDiscounts lists the clauses covering the given categories and
// products that the user has earned and not used up in paid carts.
func (e *Engine) AvailableDiscounts(ctx context.Context, userID string, categories []*model.Category, products []*model.Product) ([]*DiscountAndQuantity, error) {
	discounts, err := e.discounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load discounts: %w", err)
	}
	used, err := e.paidDiscountItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load past discount uses: %w", err)
	}

	productIDs := make(map[uint]bool, len(products))
	categoryIDs := make(map[uint]bool, len(categories)+len(products))
	for _, c := range categories {
		categoryIDs[c.ID] = true
	}
	for _, p := range products {
		productIDs[p.ID] = true
		categoryIDs[p.CategoryID] = true
	}

	// each discount's condition is evaluated once per call
	met := make(map[uint]bool)
	isMet := func(d *model.Discount) (bool, error) {
		if ok, seen := met[d.ID]; seen {
			return ok, nil
		}
		ok, err := e.IsMet(ctx, userID, d.Spec())
		if err != nil {
			return false, err
		}
		met[d.ID] = ok
		return ok, nil
	}

	var out []*DiscountAndQuantity
	consider := func(d *model.Discount, quantity, past int, build func(remaining int) *DiscountAndQuantity) error {
		if past >= quantity {
			return nil
		}
		ok, err := isMet(d)
		if err != nil || !ok {
			return err
		}
		out = append(out, build(quantity-past))
		return nil
	}

	for _, d := range discounts {
		for i := range d.ProductClauses {
			clause := &d.ProductClauses[i]
			if !productIDs[clause.ProductID] {
				continue
			}
			past := 0
			for _, item := range used {
				if item.DiscountID == d.ID && item.ProductID == clause.ProductID {
					past += item.Quantity
				}
			}
			err := consider(d, clause.Quantity, past, func(remaining int) *DiscountAndQuantity {
				return &DiscountAndQuantity{Discount: d, ProductClause: clause, Quantity: remaining}
			})
			if err != nil {
				return nil, err
			}
		}

		for i := range d.CategoryClauses {
			clause := &d.CategoryClauses[i]
			if !categoryIDs[clause.CategoryID] {
				continue
			}
			past := 0
			for _, item := range used {
				if item.DiscountID == d.ID && item.Product.CategoryID == clause.CategoryID {
					past += item.Quantity
				}
			}
			err := consider(d, clause.Quantity, past, func(remaining int) *DiscountAndQuantity {
				return &DiscountAndQuantity{Discount: d, CategoryClause: clause, Quantity: remaining}
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}
