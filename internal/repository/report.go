package repository

import (
	"context"
	"regdesk/internal/model"
	"time"

	"gorm.io/gorm"
)

// ProductStatus counts where a product's units currently sit.
type ProductStatus struct {
	ProductID  uint   `json:"product_id"`
	Product    string `json:"product" gorm:"-"`
	Paid       int    `json:"paid"`
	Reserved   int    `json:"reserved"`
	Unreserved int    `json:"unreserved"`
	Released   int    `json:"released"`
}

type ReportRepository interface {
	ProductStatus(ctx context.Context, now time.Time) ([]*ProductStatus, error)
}

type reportRepoImpl struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepoImpl{
		db: db,
	}
}

func (r *reportRepoImpl) ProductStatus(ctx context.Context, now time.Time) ([]*ProductStatus, error) {
	var rows []*ProductStatus
	err := conn(ctx, r.db).Model(&model.ProductItem{}).
		Select(`product_items.product_id AS product_id,
			SUM(CASE WHEN carts.status = ? THEN product_items.quantity ELSE 0 END) AS paid,
			SUM(CASE WHEN carts.status = ? AND carts.reserved_until > ? THEN product_items.quantity ELSE 0 END) AS reserved,
			SUM(CASE WHEN carts.status = ? AND carts.reserved_until <= ? THEN product_items.quantity ELSE 0 END) AS unreserved,
			SUM(CASE WHEN carts.status = ? THEN product_items.quantity ELSE 0 END) AS released`,
			model.CartPaid,
			model.CartActive, now,
			model.CartActive, now,
			model.CartReleased,
		).
		Joins("JOIN carts ON carts.id = product_items.cart_id").
		Group("product_items.product_id").
		Order("product_items.product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var products []*model.Product
	if err := conn(ctx, r.db).Preload("Category").Find(&products).Error; err != nil {
		return nil, err
	}
	labels := make(map[uint]string, len(products))
	for _, p := range products {
		labels[p.ID] = p.Label()
	}
	for _, row := range rows {
		row.Product = labels[row.ProductID]
	}

	return rows, nil
}
