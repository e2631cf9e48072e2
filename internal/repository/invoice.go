package repository

import (
	"context"
	"regdesk/internal/model"

	"gorm.io/gorm"
)

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	FindByID(ctx context.Context, invoiceID uint) (*model.Invoice, error)
	FindOpenForCartRevision(ctx context.Context, cartID uint, revision int) (*model.Invoice, error)
	ForCart(ctx context.Context, cartID uint) ([]*model.Invoice, error)
	ForUser(ctx context.Context, userID string) ([]*model.Invoice, error)
	UpdateStatus(ctx context.Context, invoiceID uint, status model.InvoiceStatus) error
	CountUnpaid(ctx context.Context, userID string) (int64, error)
}

type invoiceRepoImpl struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepoImpl{
		db: db,
	}
}

func (r *invoiceRepoImpl) Create(ctx context.Context, invoice *model.Invoice) error {
	return conn(ctx, r.db).Omit("Cart").Create(invoice).Error
}

func (r *invoiceRepoImpl) FindByID(ctx context.Context, invoiceID uint) (*model.Invoice, error) {
	var invoice model.Invoice
	err := conn(ctx, r.db).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Cart").
		Where("id = ?", invoiceID).
		First(&invoice).Error

	if err != nil {
		return nil, err
	}

	return &invoice, nil
}

func (r *invoiceRepoImpl) FindOpenForCartRevision(ctx context.Context, cartID uint, revision int) (*model.Invoice, error) {
	var invoice model.Invoice
	err := conn(ctx, r.db).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Cart").
		Where("cart_id = ? AND cart_revision = ?", cartID, revision).
		Where("status <> ?", model.InvoiceVoid).
		Order("id DESC").
		First(&invoice).Error

	if err != nil {
		return nil, err
	}

	return &invoice, nil
}

func (r *invoiceRepoImpl) ForCart(ctx context.Context, cartID uint) ([]*model.Invoice, error) {
	var invoices []*model.Invoice
	err := conn(ctx, r.db).
		Preload("Cart").
		Where("cart_id = ?", cartID).
		Order("id").
		Find(&invoices).Error

	if err != nil {
		return nil, err
	}

	return invoices, nil
}

func (r *invoiceRepoImpl) ForUser(ctx context.Context, userID string) ([]*model.Invoice, error) {
	var invoices []*model.Invoice
	err := conn(ctx, r.db).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Cart").
		Where("user_id = ?", userID).
		Order("id").
		Find(&invoices).Error

	if err != nil {
		return nil, err
	}

	return invoices, nil
}

func (r *invoiceRepoImpl) UpdateStatus(ctx context.Context, invoiceID uint, status model.InvoiceStatus) error {
	result := conn(ctx, r.db).Model(&model.Invoice{}).
		Where("id = ?", invoiceID).
		Update("status", status)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *invoiceRepoImpl) CountUnpaid(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&model.Invoice{}).
		Where("user_id = ? AND status = ?", userID, model.InvoiceUnpaid).
		Count(&count).Error

	return count, err
}
