package model

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RenderType string

const (
	RenderRadio    RenderType = "RADIO"
	RenderQuantity RenderType = "QUANTITY"
)

const (
	DefaultReservation = time.Hour
	VoucherReservation = time.Hour
)

type Category struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:255;not null"`
	Description  string `gorm:"type:text"`
	LimitPerUser *int
	Required     bool       `gorm:"not null;default:false"`
	Order        int        `gorm:"column:display_order;index;not null;default:0"`
	RenderType   RenderType `gorm:"size:16;not null;default:RADIO"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Product struct {
	ID                  uint `gorm:"primaryKey"`
	CategoryID          uint `gorm:"index;not null"`
	Category            Category
	Name                string          `gorm:"size:255;not null"`
	Description         string          `gorm:"type:text"`
	Price               decimal.Decimal `gorm:"type:decimal(8,2);not null"`
	LimitPerUser        *int
	ReservationDuration time.Duration `gorm:"not null"`
	Order               int           `gorm:"column:display_order;index;not null;default:0"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Label renders the product the way invoices and error messages show it.
func (p *Product) Label() string {
	return p.Category.Name + " - " + p.Name
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ReservationDuration == 0 {
		p.ReservationDuration = DefaultReservation
	}
	return nil
}

func (p *Product) BeforeSave(tx *gorm.DB) error {
	if p.Price.IsNegative() {
		return integrityError("product price must not be negative")
	}
	if p.ReservationDuration < 0 {
		return integrityError("reservation duration must not be negative")
	}
	return nil
}

// SortProducts orders products by category order, then product order.
func SortProducts(products []*Product) {
	sort.SliceStable(products, func(i, j int) bool {
		a, b := products[i], products[j]
		if a.Category.Order != b.Category.Order {
			return a.Category.Order < b.Category.Order
		}
		if a.CategoryID != b.CategoryID {
			return a.CategoryID < b.CategoryID
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
}

func SortCategories(categories []*Category) {
	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].Order != categories[j].Order {
			return categories[i].Order < categories[j].Order
		}
		return categories[i].ID < categories[j].ID
	})
}

type Voucher struct {
	ID        uint   `gorm:"primaryKey"`
	Recipient string `gorm:"size:64"`
	Code      string `gorm:"size:16;uniqueIndex;not null"`
	Limit     int    `gorm:"column:use_limit;not null"`
	CreatedAt time.Time
}

// NormaliseCode makes voucher codes case-insensitive.
func NormaliseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (v *Voucher) BeforeSave(tx *gorm.DB) error {
	v.Code = NormaliseCode(v.Code)
	if v.Code == "" {
		return integrityError("voucher code must not be empty")
	}
	if v.Limit < 0 {
		return integrityError("voucher limit must not be negative")
	}
	return nil
}
