package conditions

import (
	"context"
	"fmt"
	"regdesk/internal/batch"
	"regdesk/internal/model"
)

func (e *Engine) paidProductQuantities(ctx context.Context, userID string) (map[uint]int, error) {
	return batch.Memoise(ctx, batch.NewKey("conditions.paid_products", userID), func(ctx context.Context) (map[uint]int, error) {
		return e.carts.ProductQuantities(ctx, userID, []model.CartStatus{model.CartPaid})
	})
}

func (e *Engine) paidCategoryQuantities(ctx context.Context, userID string) (map[uint]int, error) {
	return batch.Memoise(ctx, batch.NewKey("conditions.paid_categories", userID), func(ctx context.Context) (map[uint]int, error) {
		return e.carts.CategoryQuantities(ctx, userID, []model.CartStatus{model.CartPaid})
	})
}

// ProductRemainder is how many more of the product the user may buy given
// what they have already paid for.
func (e *Engine) ProductRemainder(ctx context.Context, userID string, p *model.Product) (int, error) {
	if p.LimitPerUser == nil {
		return BigQuantity, nil
	}
	paid, err := e.paidProductQuantities(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load paid quantities: %w", err)
	}
	return max(0, *p.LimitPerUser-paid[p.ID]), nil
}

func (e *Engine) CategoryRemainder(ctx context.Context, userID string, c *model.Category) (int, error) {
	if c.LimitPerUser == nil {
		return BigQuantity, nil
	}
	paid, err := e.paidCategoryQuantities(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load paid quantities: %w", err)
	}
	return max(0, *c.LimitPerUser-paid[c.ID]), nil
}

// AvailableProducts keeps the products the user could add at least one of.
func (e *Engine) AvailableProducts(ctx context.Context, userID string, products []*model.Product) ([]*model.Product, error) {
	if len(products) == 0 {
		return nil, nil
	}

	flagErrs, err := e.TestProductFlags(ctx, userID, products)
	if err != nil {
		return nil, err
	}
	blocked := make(map[uint]bool, len(flagErrs))
	for _, fe := range flagErrs {
		blocked[fe.Product.ID] = true
	}

	var out []*model.Product
	for _, p := range products {
		if blocked[p.ID] {
			continue
		}
		productLeft, err := e.ProductRemainder(ctx, userID, p)
		if err != nil {
			return nil, err
		}
		categoryLeft, err := e.CategoryRemainder(ctx, userID, &p.Category)
		if err != nil {
			return nil, err
		}
		if productLeft > 0 && categoryLeft > 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

// AvailableCategories keeps the categories with at least one available product.
func (e *Engine) AvailableCategories(ctx context.Context, userID string, categories []*model.Category) ([]*model.Category, error) {
	products, err := e.catalog.AllProducts(ctx)
	if err != nil {
		return nil, err
	}
	available, err := e.AvailableProducts(ctx, userID, products)
	if err != nil {
		return nil, err
	}

	has := make(map[uint]bool)
	for _, p := range available {
		has[p.CategoryID] = true
	}

	var out []*model.Category
	for _, c := range categories {
		if has[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}
