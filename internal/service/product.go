package service

import (
	"context"
	"regdesk/internal/batch"
	"regdesk/internal/conditions"
	"regdesk/internal/model"
	"regdesk/internal/repository"
)

type ProductService interface {
	// AvailableCategories lists categories the user can still buy from.
	AvailableCategories(ctx context.Context, userID string) ([]*model.Category, error)
	// AvailableProducts lists products the user can add at least one of,
	// optionally limited to one category.
	AvailableProducts(ctx context.Context, userID string, categoryID *uint) ([]*model.Product, error)
}

type productServiceImpl struct {
	catalog repository.CatalogRepository
	engine  *conditions.Engine
}

func NewProductService(
	catalog repository.CatalogRepository,
	engine *conditions.Engine,
) ProductService {
	return &productServiceImpl{
		catalog: catalog,
		engine:  engine,
	}
}

func (s *productServiceImpl) AvailableCategories(ctx context.Context, userID string) ([]*model.Category, error) {
	var out []*model.Category
	err := batch.Do(ctx, userID, func(ctx context.Context) error {
		categories, err := s.catalog.AllCategories(ctx)
		if err != nil {
			return err
		}
		out, err = s.engine.AvailableCategories(ctx, userID, categories)
		return err
	})
	return out, err
}

func (s *productServiceImpl) AvailableProducts(ctx context.Context, userID string, categoryID *uint) ([]*model.Product, error) {
	var out []*model.Product
	err := batch.Do(ctx, userID, func(ctx context.Context) error {
		var (
			products []*model.Product
			err      error
		)
		if categoryID != nil {
			products, err = s.catalog.ProductsInCategory(ctx, *categoryID)
		} else {
			products, err = s.catalog.AllProducts(ctx)
		}
		if err != nil {
			return err
		}
		out, err = s.engine.AvailableProducts(ctx, userID, products)
		return err
	})
	return out, err
}
