package service

import (
	"errors"
	"strings"
)

var (
	ErrCartNotActive      = errors.New("cart is no longer active")
	ErrInvoiceNotPayable  = errors.New("you can only pay for unpaid invoices")
	ErrInvoiceStale       = errors.New("this invoice is void because its cart has changed")
	ErrInvoiceHasPayments = errors.New("invoices with payments must be refunded")
	ErrInvoiceRefunded    = errors.New("this invoice has been refunded")
	ErrInvoiceVoid        = errors.New("this invoice is void")
	ErrCreditNoteClaimed  = errors.New("credit note has already been claimed")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrInvalidPercentage  = errors.New("percentage must be between 0 and 100")
	ErrNotOwner           = errors.New("not allowed to access this resource")

	// errNoChange lets a cart mutation succeed without touching the revision.
	errNoChange = errors.New("no change")
)

type ErrorKind string

const (
	// KindCapacity is raised while changing the cart.
	KindCapacity ErrorKind = "capacity"
	// KindStaleCart is raised when a held cart stops being valid.
	KindStaleCart ErrorKind = "stale_cart"
)

// FieldError attributes one failure to the entity that caused it.
type FieldError struct {
	ProductID   uint   `json:"product_id,omitempty"`
	CategoryID  uint   `json:"category_id,omitempty"`
	DiscountID  uint   `json:"discount_id,omitempty"`
	VoucherCode string `json:"voucher_code,omitempty"`
	Message     string `json:"message"`
}

type ValidationError struct {
	Kind   ErrorKind
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return string(e.Kind) + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) add(f FieldError) {
	e.Fields = append(e.Fields, f)
}

// errOrNil returns e when it carries at least one field.
func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsValidation reports whether err is a ValidationError of kind.
func IsValidation(err error, kind ErrorKind) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == kind
}
