package repository

import (
	"context"
	"regdesk/internal/model"

	"gorm.io/gorm"
)

type ConditionRepository interface {
	CreateFlag(ctx context.Context, flag *model.Flag) error
	CreateDiscount(ctx context.Context, discount *model.Discount) error
	AddProductClause(ctx context.Context, clause *model.DiscountForProduct) error
	AddCategoryClause(ctx context.Context, clause *model.DiscountForCategory) error
	Flags(ctx context.Context) ([]*model.Flag, error)
	Discounts(ctx context.Context) ([]*model.Discount, error)
	FindDiscount(ctx context.Context, discountID uint) (*model.Discount, error)
}

type conditionRepoImpl struct {
	db *gorm.DB
}

func NewConditionRepository(db *gorm.DB) ConditionRepository {
	return &conditionRepoImpl{
		db: db,
	}
}

func (r *conditionRepoImpl) CreateFlag(ctx context.Context, flag *model.Flag) error {
	return conn(ctx, r.db).Create(flag).Error
}

func (r *conditionRepoImpl) CreateDiscount(ctx context.Context, discount *model.Discount) error {
	if discount.VoucherID != nil {
		var count int64
		err := conn(ctx, r.db).Model(&model.Discount{}).
			Where("voucher_id = ?", *discount.VoucherID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return model.IntegrityErrorf("voucher %d already has a discount", *discount.VoucherID)
		}
	}
	return conn(ctx, r.db).Omit("ProductClauses", "CategoryClauses").Create(discount).Error
}

// AddProductClause rejects a second clause for the same product, and a
// product clause whose category already has a clause in the same discount.
func (r *conditionRepoImpl) AddProductClause(ctx context.Context, clause *model.DiscountForProduct) error {
	var product model.Product
	if err := conn(ctx, r.db).Where("id = ?", clause.ProductID).First(&product).Error; err != nil {
		return err
	}

	var count int64
	err := conn(ctx, r.db).Model(&model.DiscountForProduct{}).
		Where("discount_id = ? AND product_id = ?", clause.DiscountID, clause.ProductID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return model.IntegrityErrorf("You may only have one discount line per product")
	}

	err = conn(ctx, r.db).Model(&model.DiscountForCategory{}).
		Where("discount_id = ? AND category_id = ?", clause.DiscountID, product.CategoryID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return model.IntegrityErrorf("It is not currently possible to apply a category and a product discount for the same product")
	}

	return conn(ctx, r.db).Omit("Product").Create(clause).Error
}

func (r *conditionRepoImpl) AddCategoryClause(ctx context.Context, clause *model.DiscountForCategory) error {
	var count int64
	err := conn(ctx, r.db).Model(&model.DiscountForCategory{}).
		Where("discount_id = ? AND category_id = ?", clause.DiscountID, clause.CategoryID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return model.IntegrityErrorf("You may only have one discount for a category")
	}

	err = conn(ctx, r.db).Model(&model.DiscountForProduct{}).
		Joins("JOIN products ON products.id = discount_for_products.product_id").
		Where("discount_for_products.discount_id = ? AND products.category_id = ?", clause.DiscountID, clause.CategoryID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return model.IntegrityErrorf("It is not currently possible to apply a category and a product discount for the same product")
	}

	return conn(ctx, r.db).Omit("Category").Create(clause).Error
}

func (r *conditionRepoImpl) Flags(ctx context.Context) ([]*model.Flag, error) {
	var flags []*model.Flag
	err := conn(ctx, r.db).
		Preload("Products.Category").
		Preload("Categories").
		Preload("EnablingProducts").
		Order("id").
		Find(&flags).Error

	if err != nil {
		return nil, err
	}

	return flags, nil
}

func (r *conditionRepoImpl) Discounts(ctx context.Context) ([]*model.Discount, error) {
	var discounts []*model.Discount
	err := conn(ctx, r.db).
		Preload("EnablingProducts").
		Preload("ProductClauses.Product.Category").
		Preload("CategoryClauses.Category").
		Order("id").
		Find(&discounts).Error

	if err != nil {
		return nil, err
	}

	return discounts, nil
}

func (r *conditionRepoImpl) FindDiscount(ctx context.Context, discountID uint) (*model.Discount, error) {
	var discount model.Discount
	err := conn(ctx, r.db).
		Preload("EnablingProducts").
		Preload("ProductClauses.Product.Category").
		Preload("CategoryClauses.Category").
		Where("id = ?", discountID).
		First(&discount).Error

	if err != nil {
		return nil, err
	}

	return &discount, nil
}
