package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type CartStatus string

const (
	CartActive   CartStatus = "ACTIVE"
	CartPaid     CartStatus = "PAID"
	CartReleased CartStatus = "RELEASED"
)

// HeldStatuses are the cart statuses whose items still belong to the user.
var HeldStatuses = []CartStatus{CartActive, CartPaid}

type Cart struct {
	ID                  uint          `gorm:"primaryKey"`
	UserID              string        `gorm:"size:64;index;not null"`
	Status              CartStatus    `gorm:"size:16;index;not null"`
	TimeLastUpdated     time.Time     `gorm:"not null"`
	ReservationDuration time.Duration `gorm:"not null"`

	// ReservedUntil mirrors TimeLastUpdated + ReservationDuration so the
	// reserved-cart filter stays a plain comparison in SQL.
	ReservedUntil time.Time `gorm:"index;not null"`

	Revision  int       `gorm:"not null;default:1"`
	Vouchers  []Voucher `gorm:"many2many:cart_vouchers"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Touch restarts the reservation window at now.
func (c *Cart) Touch(now time.Time, d time.Duration) {
	c.TimeLastUpdated = now
	c.ReservationDuration = d
	c.ReservedUntil = now.Add(d)
}

// ReservationLeft is what remains of the current window, never negative.
func (c *Cart) ReservationLeft(now time.Time) time.Duration {
	left := c.ReservationDuration - now.Sub(c.TimeLastUpdated)
	if left < 0 {
		return 0
	}
	return left
}

// IsReserved reports whether the cart holds a claim on limited stock.
func (c *Cart) IsReserved(now time.Time) bool {
	switch c.Status {
	case CartPaid:
		return true
	case CartActive:
		return now.Before(c.ReservedUntil)
	default:
		return false
	}
}

type ProductItem struct {
	ID        uint `gorm:"primaryKey"`
	CartID    uint `gorm:"uniqueIndex:idx_cart_product;not null"`
	ProductID uint `gorm:"uniqueIndex:idx_cart_product;not null"`
	Product   Product
	Quantity  int `gorm:"not null"`
}

// SortItems orders items the way invoices list them.
func SortItems(items []*ProductItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := &items[i].Product, &items[j].Product
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

// DiscountItem is derived from the cart contents and rebuilt on every change.
type DiscountItem struct {
	ID         uint `gorm:"primaryKey"`
	CartID     uint `gorm:"index;not null"`
	ProductID  uint `gorm:"index;not null"`
	Product    Product
	DiscountID uint `gorm:"index;not null"`
	Discount   Discount
	Quantity   int `gorm:"not null"`
}

type InvoiceStatus string

const (
	InvoiceUnpaid   InvoiceStatus = "UNPAID"
	InvoicePaid     InvoiceStatus = "PAID"
	InvoiceRefunded InvoiceStatus = "REFUNDED"
	InvoiceVoid     InvoiceStatus = "VOID"
)

type Invoice struct {
	ID           uint            `gorm:"primaryKey"`
	UserID       string          `gorm:"size:64;index;not null"`
	CartID       *uint           `gorm:"index"`
	Cart         *Cart           `json:"-"`
	CartRevision *int
	Status       InvoiceStatus   `gorm:"size:16;index;not null"`
	Recipient    string          `gorm:"type:text"`
	IssueTime    time.Time       `gorm:"not null"`
	DueTime      time.Time       `gorm:"not null"`
	Value        decimal.Decimal `gorm:"type:decimal(8,2);not null"`
	LineItems    []LineItem
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (i *Invoice) IsUnpaid() bool   { return i.Status == InvoiceUnpaid }
func (i *Invoice) IsPaid() bool     { return i.Status == InvoicePaid }
func (i *Invoice) IsRefunded() bool { return i.Status == InvoiceRefunded }
func (i *Invoice) IsVoid() bool     { return i.Status == InvoiceVoid }

// IsStale reports an unpaid invoice whose cart changed after it was issued.
func (i *Invoice) IsStale(cartRevision int) bool {
	return i.Status == InvoiceUnpaid && i.CartRevision != nil && *i.CartRevision != cartRevision
}

// EffectiveStatus is the status an invoice reports given the current
// revision of its cart. Stale unpaid invoices read as void.
func EffectiveStatus(inv *Invoice, cartRevision int) InvoiceStatus {
	if inv.IsStale(cartRevision) {
		return InvoiceVoid
	}
	return inv.Status
}

type LineItem struct {
	ID          uint            `gorm:"primaryKey"`
	InvoiceID   uint            `gorm:"index;not null"`
	Description string          `gorm:"size:255;not null"`
	Quantity    int             `gorm:"not null"`
	Price       decimal.Decimal `gorm:"type:decimal(8,2);not null"`
	ProductID   *uint
}

func (l *LineItem) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
