package repository

import (
	"context"
	"regdesk/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartRepository interface {
	ActiveForUser(ctx context.Context, userID string) (*model.Cart, error)
	Create(ctx context.Context, cart *model.Cart) error
	FindByID(ctx context.Context, cartID uint) (*model.Cart, error)
	Save(ctx context.Context, cart *model.Cart) error
	UpdateStatus(ctx context.Context, cartID uint, status model.CartStatus) error

	Items(ctx context.Context, cartID uint) ([]*model.ProductItem, error)
	SetItems(ctx context.Context, cartID uint, quantities map[uint]int) error
	DiscountItems(ctx context.Context, cartID uint) ([]*model.DiscountItem, error)
	ReplaceDiscountItems(ctx context.Context, cartID uint, items []*model.DiscountItem) error

	AddVoucher(ctx context.Context, cart *model.Cart, voucher *model.Voucher) error
	RemoveVoucher(ctx context.Context, cart *model.Cart, voucher *model.Voucher) error

	// CountReservedWithVoucher counts reserved carts other than excludeCartID
	// holding the voucher. An empty userID counts every user's carts.
	CountReservedWithVoucher(ctx context.Context, voucherID uint, now time.Time, excludeCartID uint, userID string) (int64, error)
	HasVoucher(ctx context.Context, userID string, voucherID uint, statuses []model.CartStatus) (bool, error)
	HoldsAnyProduct(ctx context.Context, userID string, productIDs []uint, statuses []model.CartStatus) (bool, error)
	HoldsCategory(ctx context.Context, userID string, categoryID uint, statuses []model.CartStatus) (bool, error)

	ProductQuantities(ctx context.Context, userID string, statuses []model.CartStatus) (map[uint]int, error)
	CategoryQuantities(ctx context.Context, userID string, statuses []model.CartStatus) (map[uint]int, error)

	// ReservedProductQuantity sums items of the given products and categories
	// in reserved carts, leaving out the active cart of excludeUserID.
	ReservedProductQuantity(ctx context.Context, productIDs, categoryIDs []uint, now time.Time, excludeUserID string) (int, error)
	ReservedDiscountQuantity(ctx context.Context, discountID uint, now time.Time, excludeUserID string) (int, error)
	PaidDiscountItems(ctx context.Context, userID string) ([]*model.DiscountItem, error)
}

type cartRepoImpl struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepoImpl{
		db: db,
	}
}

// reserved keeps carts that hold a claim on limited stock at now.
func reserved(now time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"((carts.status = ? AND carts.reserved_until > ?) OR carts.status = ?)",
			model.CartActive, now, model.CartPaid,
		)
	}
}

func notActiveCartOf(userID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("NOT (carts.user_id = ? AND carts.status = ?)", userID, model.CartActive)
	}
}

func (r *cartRepoImpl) ActiveForUser(ctx context.Context, userID string) (*model.Cart, error) {
	var cart model.Cart
	err := conn(ctx, r.db).
		Preload("Vouchers").
		Where("user_id = ? AND status = ?", userID, model.CartActive).
		Order("id").
		First(&cart).Error

	if err != nil {
		return nil, err
	}

	return &cart, nil
}

func (r *cartRepoImpl) Create(ctx context.Context, cart *model.Cart) error {
	return conn(ctx, r.db).Omit(clause.Associations).Create(cart).Error
}

func (r *cartRepoImpl) FindByID(ctx context.Context, cartID uint) (*model.Cart, error) {
	var cart model.Cart
	err := conn(ctx, r.db).
		Preload("Vouchers").
		Where("id = ?", cartID).
		First(&cart).Error

	if err != nil {
		return nil, err
	}

	return &cart, nil
}

func (r *cartRepoImpl) Save(ctx context.Context, cart *model.Cart) error {
	return conn(ctx, r.db).Omit(clause.Associations).Save(cart).Error
}

func (r *cartRepoImpl) UpdateStatus(ctx context.Context, cartID uint, status model.CartStatus) error {
	result := conn(ctx, r.db).Model(&model.Cart{}).
		Where("id = ?", cartID).
		Update("status", status)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *cartRepoImpl) Items(ctx context.Context, cartID uint) ([]*model.ProductItem, error) {
	var items []*model.ProductItem
	err := conn(ctx, r.db).
		Preload("Product.Category").
		Where("cart_id = ?", cartID).
		Find(&items).Error

	if err != nil {
		return nil, err
	}

	model.SortItems(items)
	return items, nil
}

// SetItems replaces the rows of every product in quantities. Zero drops the row.
func (r *cartRepoImpl) SetItems(ctx context.Context, cartID uint, quantities map[uint]int) error {
	if len(quantities) == 0 {
		return nil
	}

	productIDs := make([]uint, 0, len(quantities))
	var items []*model.ProductItem
	for productID, quantity := range quantities {
		productIDs = append(productIDs, productID)
		if quantity > 0 {
			items = append(items, &model.ProductItem{
				CartID:    cartID,
				ProductID: productID,
				Quantity:  quantity,
			})
		}
	}

	db := conn(ctx, r.db)
	err := db.Where("cart_id = ? AND product_id IN ?", cartID, productIDs).
		Delete(&model.ProductItem{}).Error
	if err != nil {
		return err
	}

	if len(items) == 0 {
		return nil
	}
	return db.Omit(clause.Associations).Create(&items).Error
}

func (r *cartRepoImpl) DiscountItems(ctx context.Context, cartID uint) ([]*model.DiscountItem, error) {
	var items []*model.DiscountItem
	err := conn(ctx, r.db).
		Preload("Product.Category").
		Preload("Discount.EnablingProducts").
		Preload("Discount.ProductClauses").
		Preload("Discount.CategoryClauses").
		Where("cart_id = ?", cartID).
		Order("id").
		Find(&items).Error

	if err != nil {
		return nil, err
	}

	return items, nil
}

func (r *cartRepoImpl) ReplaceDiscountItems(ctx context.Context, cartID uint, items []*model.DiscountItem) error {
	db := conn(ctx, r.db)
	if err := db.Where("cart_id = ?", cartID).Delete(&model.DiscountItem{}).Error; err != nil {
		return err
	}

	if len(items) == 0 {
		return nil
	}
	return db.Omit(clause.Associations).Create(&items).Error
}

func (r *cartRepoImpl) AddVoucher(ctx context.Context, cart *model.Cart, voucher *model.Voucher) error {
	return conn(ctx, r.db).Model(cart).Association("Vouchers").Append(voucher)
}

func (r *cartRepoImpl) RemoveVoucher(ctx context.Context, cart *model.Cart, voucher *model.Voucher) error {
	return conn(ctx, r.db).Model(cart).Association("Vouchers").Delete(voucher)
}

func (r *cartRepoImpl) CountReservedWithVoucher(ctx context.Context, voucherID uint, now time.Time, excludeCartID uint, userID string) (int64, error) {
	query := conn(ctx, r.db).Model(&model.Cart{}).
		Joins("JOIN cart_vouchers ON cart_vouchers.cart_id = carts.id").
		Where("cart_vouchers.voucher_id = ?", voucherID).
		Where("carts.id <> ?", excludeCartID).
		Scopes(reserved(now))

	if userID != "" {
		query = query.Where("carts.user_id = ?", userID)
	}

	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (r *cartRepoImpl) HasVoucher(ctx context.Context, userID string, voucherID uint, statuses []model.CartStatus) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&model.Cart{}).
		Joins("JOIN cart_vouchers ON cart_vouchers.cart_id = carts.id").
		Where("cart_vouchers.voucher_id = ?", voucherID).
		Where("carts.user_id = ? AND carts.status IN ?", userID, statuses).
		Count(&count).Error

	return count > 0, err
}

func (r *cartRepoImpl) HoldsAnyProduct(ctx context.Context, userID string, productIDs []uint, statuses []model.CartStatus) (bool, error) {
	if len(productIDs) == 0 {
		return false, nil
	}

	var count int64
	err := conn(ctx, r.db).Model(&model.ProductItem{}).
		Joins("JOIN carts ON carts.id = product_items.cart_id").
		Where("carts.user_id = ? AND carts.status IN ?", userID, statuses).
		Where("product_items.product_id IN ?", productIDs).
		Count(&count).Error

	return count > 0, err
}

func (r *cartRepoImpl) HoldsCategory(ctx context.Context, userID string, categoryID uint, statuses []model.CartStatus) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&model.ProductItem{}).
		Joins("JOIN carts ON carts.id = product_items.cart_id").
		Joins("JOIN products ON products.id = product_items.product_id").
		Where("carts.user_id = ? AND carts.status IN ?", userID, statuses).
		Where("products.category_id = ?", categoryID).
		Count(&count).Error

	return count > 0, err
}

type idQuantity struct {
	ID       uint
	Quantity int
}

func toQuantityMap(rows []idQuantity) map[uint]int {
	out := make(map[uint]int, len(rows))
	for _, row := range rows {
		out[row.ID] = row.Quantity
	}
	return out
}

func (r *cartRepoImpl) ProductQuantities(ctx context.Context, userID string, statuses []model.CartStatus) (map[uint]int, error) {
	var rows []idQuantity
	err := conn(ctx, r.db).Model(&model.ProductItem{}).
		Select("product_items.product_id AS id, SUM(product_items.quantity) AS quantity").
		Joins("JOIN carts ON carts.id = product_items.cart_id").
		Where("carts.user_id = ? AND carts.status IN ?", userID, statuses).
		Group("product_items.product_id").
		Scan(&rows).Error

	if err != nil {
		return nil, err
	}

	return toQuantityMap(rows), nil
}

func (r *cartRepoImpl) CategoryQuantities(ctx context.Context, userID string, statuses []model.CartStatus) (map[uint]int, error) {
	var rows []idQuantity
	err := conn(ctx, r.db).Model(&model.ProductItem{}).
		Select("products.category_id AS id, SUM(product_items.quantity) AS quantity").
		Joins("JOIN carts ON carts.id = product_items.cart_id").
		Joins("JOIN products ON products.id = product_items.product_id").
		Where("carts.user_id = ? AND carts.status IN ?", userID, statuses).
		Group("products.category_id").
		Scan(&rows).Error

	if err != nil {
		return nil, err
	}

	return toQuantityMap(rows), nil
}

func (r *cartRepoImpl) ReservedProductQuantity(ctx context.Context, productIDs, categoryIDs []uint, now time.Time, excludeUserID string) (int, error) {
	if len(productIDs) == 0 && len(categoryIDs) == 0 {
		return 0, nil
	}

	var total int64
	err := conn(ctx, r.db).Model(&model.ProductItem{}).
		Select("COALESCE(SUM(product_items.quantity), 0)").
		Joins("JOIN carts ON carts.id = product_items.cart_id").
		Joins("JOIN products ON products.id = product_items.product_id").
		Scopes(reserved(now), notActiveCartOf(excludeUserID)).
		Where("(product_items.product_id IN ? OR products.category_id IN ?)", productIDs, categoryIDs).
		Scan(&total).Error

	return int(total), err
}

func (r *cartRepoImpl) ReservedDiscountQuantity(ctx context.Context, discountID uint, now time.Time, excludeUserID string) (int, error) {
	var total int64
	err := conn(ctx, r.db).Model(&model.DiscountItem{}).
		Select("COALESCE(SUM(discount_items.quantity), 0)").
		Joins("JOIN carts ON carts.id = discount_items.cart_id").
		Scopes(reserved(now), notActiveCartOf(excludeUserID)).
		Where("discount_items.discount_id = ?", discountID).
		Scan(&total).Error

	return int(total), err
}

func (r *cartRepoImpl) PaidDiscountItems(ctx context.Context, userID string) ([]*model.DiscountItem, error) {
	var items []*model.DiscountItem
	err := conn(ctx, r.db).
		Preload("Product").
		Joins("JOIN carts ON carts.id = discount_items.cart_id").
		Where("carts.user_id = ? AND carts.status = ?", userID, model.CartPaid).
		Find(&items).Error

	if err != nil {
		return nil, err
	}

	return items, nil
}
