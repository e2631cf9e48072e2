package service

import (
	"context"
	"regdesk/internal/model"
	"regdesk/internal/repository"
)

type ItemSummary struct {
	Product  *model.Product `json:"product"`
	Quantity int            `json:"quantity"`
}

type UserItems struct {
	Purchased []*ItemSummary `json:"purchased"`
	Pending   []*ItemSummary `json:"pending"`
	Released  []*ItemSummary `json:"released"`
}

type UserService interface {
	// Items summarises what the user has paid for, holds and has given
	// up, optionally limited to one category.
	Items(ctx context.Context, userID string, categoryID *uint) (*UserItems, error)
}

type userServiceImpl struct {
	carts   repository.CartRepository
	catalog repository.CatalogRepository
}

func NewUserService(
	carts repository.CartRepository,
	catalog repository.CatalogRepository,
) UserService {
	return &userServiceImpl{
		carts:   carts,
		catalog: catalog,
	}
}

func (s *userServiceImpl) Items(ctx context.Context, userID string, categoryID *uint) (*UserItems, error) {
	purchased, err := s.summarise(ctx, userID, categoryID, model.CartPaid)
	if err != nil {
		return nil, err
	}
	pending, err := s.summarise(ctx, userID, categoryID, model.CartActive)
	if err != nil {
		return nil, err
	}
	released, err := s.summarise(ctx, userID, categoryID, model.CartReleased)
	if err != nil {
		return nil, err
	}

	return &UserItems{
		Purchased: purchased,
		Pending:   pending,
		Released:  released,
	}, nil
}

func (s *userServiceImpl) summarise(ctx context.Context, userID string, categoryID *uint, status model.CartStatus) ([]*ItemSummary, error) {
	quantities, err := s.carts.ProductQuantities(ctx, userID, []model.CartStatus{status})
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(quantities))
	for id, quantity := range quantities {
		if quantity > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	products, err := s.catalog.FindProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	var out []*ItemSummary
	for _, p := range products {
		if categoryID != nil && p.CategoryID != *categoryID {
			continue
		}
		out = append(out, &ItemSummary{Product: p, Quantity: quantities[p.ID]})
	}
	return out, nil
}
