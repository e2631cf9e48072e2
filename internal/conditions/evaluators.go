package conditions

import (
	"context"
	"regdesk/internal/model"
)

func dependency(met bool) int {
	if met {
		return BigQuantity
	}
	return 0
}

func (e *Engine) enablingProductRemaining(ctx context.Context, userID string, c model.ConditionSpec) (int, error) {
	held, err := e.carts.HoldsAnyProduct(ctx, userID, c.EnablingProductIDs, model.HeldStatuses)
	return dependency(held), err
}

func (e *Engine) enablingCategoryRemaining(ctx context.Context, userID string, c model.ConditionSpec) (int, error) {
	if c.EnablingCategoryID == nil {
		return 0, nil
	}
	held, err := e.carts.HoldsCategory(ctx, userID, *c.EnablingCategoryID, model.HeldStatuses)
	return dependency(held), err
}

func (e *Engine) voucherRemaining(ctx context.Context, userID string, c model.ConditionSpec) (int, error) {
	if c.VoucherID == nil {
		return 0, nil
	}
	held, err := e.carts.HasVoucher(ctx, userID, *c.VoucherID, model.HeldStatuses)
	return dependency(held), err
}

// ceilingRemaining is 0 outside the date range, and limit minus what
// reserved carts of other users (and the user's paid carts) consume inside it.
func (e *Engine) ceilingRemaining(c model.Ceiling, consumed func() (int, error)) (int, error) {
	if !c.Open(e.clock.Now()) {
		return 0, nil
	}
	if c.Limit == nil {
		return BigQuantity, nil
	}

	used, err := consumed()
	if err != nil {
		return 0, err
	}
	return *c.Limit - used, nil
}

func (e *Engine) flagCeilingRemaining(ctx context.Context, userID string, c model.ConditionSpec) (int, error) {
	return e.ceilingRemaining(c.Ceiling, func() (int, error) {
		return e.carts.ReservedProductQuantity(ctx, c.ProductIDs, c.CategoryIDs, e.clock.Now(), userID)
	})
}

func (e *Engine) discountCeilingRemaining(ctx context.Context, userID string, c model.ConditionSpec) (int, error) {
	return e.ceilingRemaining(c.Ceiling, func() (int, error) {
		return e.carts.ReservedDiscountQuantity(ctx, c.ID, e.clock.Now(), userID)
	})
}
