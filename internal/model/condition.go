package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ConditionKind tags the closed set of flag and discount variants.
type ConditionKind string

const (
	KindTimeOrStockLimitFlag     ConditionKind = "time_or_stock_limit_flag"
	KindProductFlag              ConditionKind = "product_flag"
	KindCategoryFlag             ConditionKind = "category_flag"
	KindVoucherFlag              ConditionKind = "voucher_flag"
	KindTimeOrStockLimitDiscount ConditionKind = "time_or_stock_limit_discount"
	KindVoucherDiscount          ConditionKind = "voucher_discount"
	KindIncludedProductDiscount  ConditionKind = "included_product_discount"
)

var (
	FlagKinds = []ConditionKind{
		KindTimeOrStockLimitFlag,
		KindProductFlag,
		KindCategoryFlag,
		KindVoucherFlag,
	}
	DiscountKinds = []ConditionKind{
		KindTimeOrStockLimitDiscount,
		KindVoucherDiscount,
		KindIncludedProductDiscount,
	}
)

// AllKinds lists every condition variant.
func AllKinds() []ConditionKind {
	kinds := make([]ConditionKind, 0, len(FlagKinds)+len(DiscountKinds))
	kinds = append(kinds, FlagKinds...)
	return append(kinds, DiscountKinds...)
}

func (k ConditionKind) IsFlag() bool {
	return containsKind(FlagKinds, k)
}

func (k ConditionKind) IsDiscount() bool {
	return containsKind(DiscountKinds, k)
}

func containsKind(kinds []ConditionKind, k ConditionKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// FlagEffect decides how an unmet flag affects the products it covers.
type FlagEffect int

const (
	DisableIfFalse FlagEffect = 1
	EnableIfTrue   FlagEffect = 2
)

// Ceiling bounds consumption by a date range and an absolute count.
// Nil fields are unbounded.
type Ceiling struct {
	StartTime *time.Time
	EndTime   *time.Time
	Limit     *int `gorm:"column:stock_limit"`
}

// Open reports whether now falls inside the date range, ends inclusive.
func (c Ceiling) Open(now time.Time) bool {
	if c.StartTime != nil && now.Before(*c.StartTime) {
		return false
	}
	if c.EndTime != nil && now.After(*c.EndTime) {
		return false
	}
	return true
}

// ConditionSpec is the kind-independent view evaluators work from.
type ConditionSpec struct {
	ID                 uint
	Kind               ConditionKind
	Ceiling            Ceiling
	EnablingProductIDs []uint
	EnablingCategoryID *uint
	VoucherID          *uint

	// Products and categories a flag covers. Empty for discounts.
	ProductIDs  []uint
	CategoryIDs []uint
}

type Flag struct {
	ID          uint          `gorm:"primaryKey"`
	Description string        `gorm:"size:255;not null"`
	Kind        ConditionKind `gorm:"size:40;index;not null"`
	Effect      FlagEffect    `gorm:"not null"`
	Products    []Product     `gorm:"many2many:flag_products"`
	Categories  []Category    `gorm:"many2many:flag_categories"`

	Ceiling            `gorm:"embedded"`
	EnablingProducts   []Product `gorm:"many2many:flag_enabling_products"`
	EnablingCategoryID *uint
	VoucherID          *uint
}

func (f *Flag) BeforeSave(tx *gorm.DB) error {
	if !f.Kind.IsFlag() {
		return IntegrityErrorf("%q is not a flag kind", f.Kind)
	}
	if f.Effect != DisableIfFalse && f.Effect != EnableIfTrue {
		return IntegrityErrorf("unknown flag effect %d", f.Effect)
	}
	switch f.Kind {
	case KindProductFlag:
		if len(f.EnablingProducts) == 0 {
			return integrityError("product flag needs at least one enabling product")
		}
	case KindCategoryFlag:
		if f.EnablingCategoryID == nil {
			return integrityError("category flag needs an enabling category")
		}
	case KindVoucherFlag:
		if f.VoucherID == nil {
			return integrityError("voucher flag needs a voucher")
		}
	}
	return nil
}

// Covers reports whether the flag applies to the product, directly or
// through its category.
func (f *Flag) Covers(p *Product) bool {
	for i := range f.Products {
		if f.Products[i].ID == p.ID {
			return true
		}
	}
	for i := range f.Categories {
		if f.Categories[i].ID == p.CategoryID {
			return true
		}
	}
	return false
}

func (f *Flag) Spec() ConditionSpec {
	spec := ConditionSpec{
		ID:                 f.ID,
		Kind:               f.Kind,
		Ceiling:            f.Ceiling,
		EnablingCategoryID: f.EnablingCategoryID,
		VoucherID:          f.VoucherID,
	}
	for i := range f.EnablingProducts {
		spec.EnablingProductIDs = append(spec.EnablingProductIDs, f.EnablingProducts[i].ID)
	}
	for i := range f.Products {
		spec.ProductIDs = append(spec.ProductIDs, f.Products[i].ID)
	}
	for i := range f.Categories {
		spec.CategoryIDs = append(spec.CategoryIDs, f.Categories[i].ID)
	}
	return spec
}

type Discount struct {
	ID          uint          `gorm:"primaryKey"`
	Description string        `gorm:"size:255;not null"`
	Kind        ConditionKind `gorm:"size:40;index;not null"`

	Ceiling          `gorm:"embedded"`
	EnablingProducts []Product `gorm:"many2many:discount_enabling_products"`
	VoucherID        *uint     `gorm:"uniqueIndex"`

	ProductClauses  []DiscountForProduct
	CategoryClauses []DiscountForCategory
}

func (d *Discount) BeforeSave(tx *gorm.DB) error {
	if !d.Kind.IsDiscount() {
		return IntegrityErrorf("%q is not a discount kind", d.Kind)
	}
	switch d.Kind {
	case KindIncludedProductDiscount:
		if len(d.EnablingProducts) == 0 {
			return integrityError("included product discount needs at least one enabling product")
		}
	case KindVoucherDiscount:
		if d.VoucherID == nil {
			return integrityError("voucher discount needs a voucher")
		}
	}
	return nil
}

func (d *Discount) Spec() ConditionSpec {
	spec := ConditionSpec{
		ID:        d.ID,
		Kind:      d.Kind,
		Ceiling:   d.Ceiling,
		VoucherID: d.VoucherID,
	}
	for i := range d.EnablingProducts {
		spec.EnablingProductIDs = append(spec.EnablingProductIDs, d.EnablingProducts[i].ID)
	}
	return spec
}

var hundred = decimal.NewFromInt(100)

// DiscountForProduct reduces one product by a percentage or to a fixed
// reduction, for at most Quantity units per user.
type DiscountForProduct struct {
	ID         uint `gorm:"primaryKey"`
	DiscountID uint `gorm:"uniqueIndex:idx_discount_product;not null"`
	ProductID  uint `gorm:"uniqueIndex:idx_discount_product;not null"`
	Product    Product
	Percentage decimal.NullDecimal `gorm:"type:decimal(4,1)"`
	Price      decimal.NullDecimal `gorm:"type:decimal(8,2)"`
	Quantity   int                 `gorm:"not null"`
}

func (c *DiscountForProduct) BeforeSave(tx *gorm.DB) error {
	if !c.Percentage.Valid && !c.Price.Valid {
		return integrityError("Discount must have a percentage or a price.")
	}
	if c.Percentage.Valid && c.Price.Valid {
		return integrityError("Discount may only have a percentage or only a price.")
	}
	if c.Percentage.Valid && !validPercentage(c.Percentage.Decimal) {
		return integrityError("discount percentage must be between 0 and 100")
	}
	if c.Price.Valid && c.Price.Decimal.IsNegative() {
		return integrityError("discount price must not be negative")
	}
	if c.Quantity < 0 {
		return integrityError("discount quantity must not be negative")
	}
	return nil
}

// Reduction is the per-unit amount taken off a product at price.
func (c *DiscountForProduct) Reduction(price decimal.Decimal) decimal.Decimal {
	if c.Percentage.Valid {
		return price.Mul(c.Percentage.Decimal).Div(hundred).Round(2)
	}
	return c.Price.Decimal
}

// DiscountForCategory reduces every product of a category by a percentage.
type DiscountForCategory struct {
	ID         uint `gorm:"primaryKey"`
	DiscountID uint `gorm:"uniqueIndex:idx_discount_category;not null"`
	CategoryID uint `gorm:"uniqueIndex:idx_discount_category;not null"`
	Category   Category
	Percentage decimal.Decimal `gorm:"type:decimal(4,1);not null"`
	Quantity   int             `gorm:"not null"`
}

func (c *DiscountForCategory) BeforeSave(tx *gorm.DB) error {
	if !validPercentage(c.Percentage) {
		return integrityError("discount percentage must be between 0 and 100")
	}
	if c.Quantity < 0 {
		return integrityError("discount quantity must not be negative")
	}
	return nil
}

func (c *DiscountForCategory) Reduction(price decimal.Decimal) decimal.Decimal {
	return price.Mul(c.Percentage).Div(hundred).Round(2)
}

func validPercentage(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}
