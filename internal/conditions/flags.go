package conditions

import (
	"context"
	"fmt"
	"regdesk/internal/model"
	"strings"
)

type ProductQuantity struct {
	Product  *model.Product
	Quantity int
}

// FlagError names a product the user may not take and why.
type FlagError struct {
	Product *model.Product
	Message string
}

type verdict struct {
	disableOK  bool
	enableSeen bool
	enableOK   bool
	message    string
}

func (v *verdict) valid() bool {
	return v.disableOK && (!v.enableSeen || v.enableOK)
}

func (v *verdict) fail(message string) {
	if v.message == "" {
		v.message = message
	}
}

// TestFlags checks whether the user may hold the given quantities. Every
// disable-if-false flag on a product must be met, and at least one of its
// enable-if-true flags when it has any.
func (e *Engine) TestFlags(ctx context.Context, userID string, quantities []ProductQuantity) ([]FlagError, error) {
	products := make([]*model.Product, len(quantities))
	byID := make(map[uint]int, len(quantities))
	for i, pq := range quantities {
		products[i] = pq.Product
		byID[pq.Product.ID] += pq.Quantity
	}
	return e.testFlags(ctx, userID, products, byID)
}

// TestProductFlags checks whether the user may take one of each product.
func (e *Engine) TestProductFlags(ctx context.Context, userID string, products []*model.Product) ([]FlagError, error) {
	return e.testFlags(ctx, userID, products, nil)
}

func (e *Engine) testFlags(ctx context.Context, userID string, products []*model.Product, quantities map[uint]int) ([]FlagError, error) {
	flags, err := e.flags(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}

	verdicts := make(map[uint]*verdict)
	for _, flag := range flags {
		var covered []*model.Product
		seen := make(map[uint]bool)
		for _, p := range products {
			if !seen[p.ID] && flag.Covers(p) {
				seen[p.ID] = true
				covered = append(covered, p)
			}
		}
		if len(covered) == 0 {
			continue
		}

		remaining, err := e.Remaining(ctx, userID, flag.Spec())
		if err != nil {
			return nil, err
		}

		consumed := 1
		if quantities != nil {
			consumed = 0
			for _, p := range covered {
				consumed += quantities[p.ID]
			}
		}
		met := consumed <= remaining
		message := ""
		if !met {
			message = flagMessage(covered, remaining)
		}

		for _, p := range covered {
			v, ok := verdicts[p.ID]
			if !ok {
				v = &verdict{disableOK: true}
				verdicts[p.ID] = v
			}

			switch flag.Effect {
			case model.DisableIfFalse:
				if !met {
					v.disableOK = false
					v.fail(message)
				}
			case model.EnableIfTrue:
				v.enableSeen = true
				if met {
					v.enableOK = true
				} else {
					v.fail(message)
				}
			}
		}
	}

	var errs []FlagError
	reported := make(map[uint]bool)
	for _, p := range products {
		v, ok := verdicts[p.ID]
		if !ok || reported[p.ID] || v.valid() {
			continue
		}
		if quantities != nil && quantities[p.ID] == 0 {
			continue
		}
		reported[p.ID] = true
		errs = append(errs, FlagError{Product: p, Message: v.message})
	}
	return errs, nil
}

func flagMessage(products []*model.Product, remaining int) string {
	labels := make([]string, len(products))
	for i, p := range products {
		labels[i] = p.Label()
	}
	items := strings.Join(labels, ", ")

	plural := len(products) > 1
	switch {
	case remaining <= 0 && plural:
		return fmt.Sprintf("%s are no longer available to you", items)
	case remaining <= 0:
		return fmt.Sprintf("%s is no longer available to you", items)
	case plural:
		return fmt.Sprintf("Only %d of the following items remain: %s", remaining, items)
	default:
		return fmt.Sprintf("Only %d of the following item remains: %s", remaining, items)
	}
}
