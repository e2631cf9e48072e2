package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentKind string

const (
	PaymentManual  PaymentKind = "MANUAL"
	PaymentGateway PaymentKind = "GATEWAY"
	// PaymentCreditNote moves money off its invoice into a credit note.
	// Its amount is negative.
	PaymentCreditNote PaymentKind = "CREDIT_NOTE"
	// PaymentCreditNoteApplication spends a credit note on an invoice.
	PaymentCreditNoteApplication PaymentKind = "CREDIT_NOTE_APPLICATION"
)

type Payment struct {
	ID        uint            `gorm:"primaryKey"`
	InvoiceID uint            `gorm:"index;not null"`
	Kind      PaymentKind     `gorm:"size:32;index;not null"`
	Time      time.Time       `gorm:"not null"`
	Reference string          `gorm:"size:255"`
	Amount    decimal.Decimal `gorm:"type:decimal(8,2);not null"`
	// CreditNoteID is set on applications; unique so a note is spent once.
	CreditNoteID *uint `gorm:"uniqueIndex"`
}

type CreditNoteRefund struct {
	ID           uint      `gorm:"primaryKey"`
	CreditNoteID uint      `gorm:"uniqueIndex;not null"`
	Time         time.Time `gorm:"not null"`
	Reference    string    `gorm:"size:255;not null"`
}

// CreditNote is a credit note payment together with whatever claimed it.
// At most one of Application and Refund is set.
type CreditNote struct {
	Payment
	UserID      string
	Application *Payment
	Refund      *CreditNoteRefund
}

// Value is the positive amount the note is worth.
func (n *CreditNote) Value() decimal.Decimal {
	return n.Amount.Neg()
}

func (n *CreditNote) IsUnclaimed() bool {
	return n.Application == nil && n.Refund == nil
}

func (n *CreditNote) Status() string {
	switch {
	case n.Application != nil:
		return fmt.Sprintf("Applied to invoice %d", n.Application.InvoiceID)
	case n.Refund != nil:
		return "Refunded with reference: " + n.Refund.Reference
	default:
		return "Unclaimed"
	}
}
