package repository

import (
	"context"
	"errors"
	"fmt"
	"regdesk/internal/model"

	"gorm.io/gorm"
)

type CatalogRepository interface {
	CreateCategory(ctx context.Context, category *model.Category) error
	CreateProduct(ctx context.Context, product *model.Product) error
	CreateVoucher(ctx context.Context, voucher *model.Voucher) error
	FindCategory(ctx context.Context, categoryID uint) (*model.Category, error)
	FindProduct(ctx context.Context, productID uint) (*model.Product, error)
	FindProducts(ctx context.Context, productIDs []uint) ([]*model.Product, error)
	ProductsInCategory(ctx context.Context, categoryID uint) ([]*model.Product, error)
	AllProducts(ctx context.Context) ([]*model.Product, error)
	AllCategories(ctx context.Context) ([]*model.Category, error)
	RequiredCategories(ctx context.Context) ([]*model.Category, error)
	FindVoucherByCode(ctx context.Context, code string) (*model.Voucher, error)
}

type catalogRepoImpl struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepoImpl{
		db: db,
	}
}

func (r *catalogRepoImpl) CreateCategory(ctx context.Context, category *model.Category) error {
	return conn(ctx, r.db).Create(category).Error
}

func (r *catalogRepoImpl) CreateProduct(ctx context.Context, product *model.Product) error {
	if err := conn(ctx, r.db).Omit("Category").Create(product).Error; err != nil {
		return err
	}
	// callers expect labels to render straight away
	return conn(ctx, r.db).Where("id = ?", product.CategoryID).First(&product.Category).Error
}

func (r *catalogRepoImpl) CreateVoucher(ctx context.Context, voucher *model.Voucher) error {
	code := model.NormaliseCode(voucher.Code)

	var count int64
	err := conn(ctx, r.db).Model(&model.Voucher{}).
		Where("code = ?", code).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return model.IntegrityErrorf("voucher code %s already exists", code)
	}

	err = conn(ctx, r.db).Create(voucher).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return model.IntegrityErrorf("voucher code %s already exists", code)
	}
	return err
}

func (r *catalogRepoImpl) FindCategory(ctx context.Context, categoryID uint) (*model.Category, error) {
	var category model.Category
	err := conn(ctx, r.db).
		Where("id = ?", categoryID).
		First(&category).Error

	if err != nil {
		return nil, err
	}

	return &category, nil
}

func (r *catalogRepoImpl) FindProduct(ctx context.Context, productID uint) (*model.Product, error) {
	var product model.Product
	err := conn(ctx, r.db).
		Preload("Category").
		Where("id = ?", productID).
		First(&product).Error

	if err != nil {
		return nil, err
	}

	return &product, nil
}

func (r *catalogRepoImpl) FindProducts(ctx context.Context, productIDs []uint) ([]*model.Product, error) {
	var products []*model.Product
	err := conn(ctx, r.db).
		Preload("Category").
		Where("id IN ?", productIDs).
		Find(&products).Error

	if err != nil {
		return nil, err
	}

	if len(products) != len(uniqueIDs(productIDs)) {
		return nil, fmt.Errorf("some products not found: %w", gorm.ErrRecordNotFound)
	}

	model.SortProducts(products)
	return products, nil
}

func (r *catalogRepoImpl) ProductsInCategory(ctx context.Context, categoryID uint) ([]*model.Product, error) {
	var products []*model.Product
	err := conn(ctx, r.db).
		Preload("Category").
		Where("category_id = ?", categoryID).
		Find(&products).Error

	if err != nil {
		return nil, err
	}

	model.SortProducts(products)
	return products, nil
}

func (r *catalogRepoImpl) AllProducts(ctx context.Context) ([]*model.Product, error) {
	var products []*model.Product
	err := conn(ctx, r.db).
		Preload("Category").
		Find(&products).Error

	if err != nil {
		return nil, err
	}

	model.SortProducts(products)
	return products, nil
}

func (r *catalogRepoImpl) AllCategories(ctx context.Context) ([]*model.Category, error) {
	var categories []*model.Category
	if err := conn(ctx, r.db).Find(&categories).Error; err != nil {
		return nil, err
	}

	model.SortCategories(categories)
	return categories, nil
}

func (r *catalogRepoImpl) RequiredCategories(ctx context.Context) ([]*model.Category, error) {
	var categories []*model.Category
	err := conn(ctx, r.db).
		Where("required = ?", true).
		Find(&categories).Error

	if err != nil {
		return nil, err
	}

	model.SortCategories(categories)
	return categories, nil
}

func (r *catalogRepoImpl) FindVoucherByCode(ctx context.Context, code string) (*model.Voucher, error) {
	var voucher model.Voucher
	err := conn(ctx, r.db).
		Where("code = ?", model.NormaliseCode(code)).
		First(&voucher).Error

	if err != nil {
		return nil, err
	}

	return &voucher, nil
}

func uniqueIDs(ids []uint) map[uint]struct{} {
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
