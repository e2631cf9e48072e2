// Package conditions evaluates flags and discounts for a user: which
// products they may take, how many, and which discounts they have earned.
package conditions

import (
	"context"
	"fmt"
	"regdesk/internal/batch"
	"regdesk/internal/clock"
	"regdesk/internal/model"
	"regdesk/internal/repository"
)

// BigQuantity stands in for an unbounded remainder.
const BigQuantity = 99999999

// Evaluator reports how many more covered items a user may take under a
// condition. Dependency conditions answer BigQuantity or 0.
type Evaluator interface {
	Remaining(ctx context.Context, userID string, c model.ConditionSpec) (int, error)
}

type EvaluatorFunc func(ctx context.Context, userID string, c model.ConditionSpec) (int, error)

func (f EvaluatorFunc) Remaining(ctx context.Context, userID string, c model.ConditionSpec) (int, error) {
	return f(ctx, userID, c)
}

type Engine struct {
	conditions repository.ConditionRepository
	carts      repository.CartRepository
	catalog    repository.CatalogRepository
	clock      clock.Clock
	evaluators map[model.ConditionKind]Evaluator
}

func NewEngine(
	conditions repository.ConditionRepository,
	carts repository.CartRepository,
	catalog repository.CatalogRepository,
	clk clock.Clock,
) (*Engine, error) {
	e := &Engine{
		conditions: conditions,
		carts:      carts,
		catalog:    catalog,
		clock:      clk,
	}

	e.evaluators = map[model.ConditionKind]Evaluator{
		model.KindTimeOrStockLimitFlag:     EvaluatorFunc(e.flagCeilingRemaining),
		model.KindProductFlag:              EvaluatorFunc(e.enablingProductRemaining),
		model.KindCategoryFlag:             EvaluatorFunc(e.enablingCategoryRemaining),
		model.KindVoucherFlag:              EvaluatorFunc(e.voucherRemaining),
		model.KindTimeOrStockLimitDiscount: EvaluatorFunc(e.discountCeilingRemaining),
		model.KindVoucherDiscount:          EvaluatorFunc(e.voucherRemaining),
		model.KindIncludedProductDiscount:  EvaluatorFunc(e.enablingProductRemaining),
	}
	if err := validateRegistry(e.evaluators); err != nil {
		return nil, err
	}

	return e, nil
}

// validateRegistry requires exactly one evaluator per condition kind.
func validateRegistry(evaluators map[model.ConditionKind]Evaluator) error {
	known := make(map[model.ConditionKind]bool)
	for _, kind := range model.AllKinds() {
		known[kind] = true
		if evaluators[kind] == nil {
			return fmt.Errorf("no evaluator registered for condition kind %q", kind)
		}
	}
	for kind := range evaluators {
		if !known[kind] {
			return fmt.Errorf("evaluator registered for unknown condition kind %q", kind)
		}
	}
	return nil
}

// Remaining dispatches to the evaluator registered for c.Kind.
func (e *Engine) Remaining(ctx context.Context, userID string, c model.ConditionSpec) (int, error) {
	ev, ok := e.evaluators[c.Kind]
	if !ok {
		return 0, fmt.Errorf("no evaluator registered for condition kind %q", c.Kind)
	}

	remaining, err := ev.Remaining(ctx, userID, c)
	if err != nil {
		return 0, fmt.Errorf("evaluate %s condition %d: %w", c.Kind, c.ID, err)
	}
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// IsMet reports whether the condition leaves the user anything at all.
func (e *Engine) IsMet(ctx context.Context, userID string, c model.ConditionSpec) (bool, error) {
	remaining, err := e.Remaining(ctx, userID, c)
	return remaining > 0, err
}

func (e *Engine) flags(ctx context.Context, userID string) ([]*model.Flag, error) {
	return batch.Memoise(ctx, batch.NewKey("conditions.flags", userID), e.conditions.Flags)
}

func (e *Engine) discounts(ctx context.Context, userID string) ([]*model.Discount, error) {
	return batch.Memoise(ctx, batch.NewKey("conditions.discounts", userID), e.conditions.Discounts)
}
