package service

import (
	"context"
	"errors"
	"fmt"
	"regdesk/internal/clock"
	"regdesk/internal/model"
	"regdesk/internal/notify"
	"regdesk/internal/repository"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ManualLine struct {
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

type InvoiceService interface {
	// ForCart returns the invoice for the cart's current revision,
	// generating one from a valid cart if needed.
	ForCart(ctx context.Context, cartID uint) (*model.Invoice, error)
	// ForID reports the invoice with its effective status.
	ForID(ctx context.Context, invoiceID uint) (*model.Invoice, error)
	ForUser(ctx context.Context, userID string) ([]*model.Invoice, error)
	ManualInvoice(ctx context.Context, userID string, dueIn time.Duration, lines []ManualLine) (*model.Invoice, error)
	ValidateAllowedToPay(ctx context.Context, invoiceID uint) error
	Pay(ctx context.Context, invoiceID uint, kind model.PaymentKind, reference string, amount decimal.Decimal) (*model.Invoice, error)
	// RecordPayment books money that has already been taken without
	// checking the invoice first. Money on a settled invoice becomes a
	// credit note.
	RecordPayment(ctx context.Context, invoiceID uint, kind model.PaymentKind, reference string, amount decimal.Decimal) (*model.Invoice, error)
	Void(ctx context.Context, invoiceID uint) (*model.Invoice, error)
	Refund(ctx context.Context, invoiceID uint) (*model.Invoice, error)
	TotalPayments(ctx context.Context, invoiceID uint) (decimal.Decimal, error)
	Payments(ctx context.Context, invoiceID uint) ([]*model.Payment, error)
}

type invoiceServiceImpl struct {
	*ledger
}

func newLedger(
	tx repository.Transactor,
	invoices repository.InvoiceRepository,
	payments repository.PaymentRepository,
	carts repository.CartRepository,
	validator CartValidator,
	notifier notify.Notifier,
	clk clock.Clock,
) *ledger {
	return &ledger{
		tx:        tx,
		invoices:  invoices,
		payments:  payments,
		carts:     carts,
		validator: validator,
		notifier:  notifier,
		clock:     clk,
	}
}

func NewInvoiceService(
	tx repository.Transactor,
	invoices repository.InvoiceRepository,
	payments repository.PaymentRepository,
	carts repository.CartRepository,
	validator CartValidator,
	notifier notify.Notifier,
	clk clock.Clock,
) InvoiceService {
	return &invoiceServiceImpl{
		ledger: newLedger(tx, invoices, payments, carts, validator, notifier, clk),
	}
}

func (s *invoiceServiceImpl) ForCart(ctx context.Context, cartID uint) (*model.Invoice, error) {
	var inv *model.Invoice
	err := s.run(ctx, func(ctx context.Context, out *outbox) error {
		cart, err := s.carts.FindByID(ctx, cartID)
		if err != nil {
			return fmt.Errorf("find cart: %w", err)
		}

		inv, err = s.invoices.FindOpenForCartRevision(ctx, cart.ID, cart.Revision)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find invoice: %w", err)
		}
		if cart.Status != model.CartActive {
			return ErrCartNotActive
		}

		previous, err := s.invoices.ForCart(ctx, cart.ID)
		if err != nil {
			return fmt.Errorf("load cart invoices: %w", err)
		}
		for _, old := range previous {
			if !old.IsStale(cart.Revision) {
				continue
			}
			if err := s.reconcile(ctx, out, old); err != nil {
				return fmt.Errorf("reconcile invoice %d: %w", old.ID, err)
			}
		}

		if err := s.validator.ValidateCart(ctx, cart.ID); err != nil {
			return err
		}

		inv, err = s.generate(ctx, out, cart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// generate freezes the cart into an invoice: a line per product, and a
// negative line per discount.
func (s *invoiceServiceImpl) generate(ctx context.Context, out *outbox, cart *model.Cart) (*model.Invoice, error) {
	items, err := s.carts.Items(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	discountItems, err := s.carts.DiscountItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("load discount items: %w", err)
	}

	now := s.clock.Now()
	due := now
	if cart.ReservedUntil.After(due) {
		due = cart.ReservedUntil
	}

	cartID, revision := cart.ID, cart.Revision
	inv := &model.Invoice{
		UserID:       cart.UserID,
		CartID:       &cartID,
		CartRevision: &revision,
		Recipient:    cart.UserID,
		IssueTime:    now,
		DueTime:      due,
	}

	for _, item := range items {
		productID := item.ProductID
		inv.LineItems = append(inv.LineItems, model.LineItem{
			Description: item.Product.Label(),
			Quantity:    item.Quantity,
			Price:       item.Product.Price,
			ProductID:   &productID,
		})
	}
	for _, item := range discountItems {
		productID := item.ProductID
		inv.LineItems = append(inv.LineItems, model.LineItem{
			Description: item.Discount.Description,
			Quantity:    item.Quantity,
			Price:       discountValue(item).Neg(),
			ProductID:   &productID,
		})
	}

	if err := s.issue(ctx, out, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// discountValue is the per-unit reduction of a discount item, taken from
// the product clause if there is one, else the category clause.
func discountValue(item *model.DiscountItem) decimal.Decimal {
	price := item.Product.Price
	for i := range item.Discount.ProductClauses {
		clause := &item.Discount.ProductClauses[i]
		if clause.ProductID == item.ProductID {
			return clause.Reduction(price)
		}
	}
	for i := range item.Discount.CategoryClauses {
		clause := &item.Discount.CategoryClauses[i]
		if clause.CategoryID == item.Product.CategoryID {
			return clause.Reduction(price)
		}
	}
	return decimal.Zero
}

func (s *invoiceServiceImpl) ForID(ctx context.Context, invoiceID uint) (*model.Invoice, error) {
	inv, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := s.effective(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceServiceImpl) ForUser(ctx context.Context, userID string) ([]*model.Invoice, error) {
	invoices, err := s.invoices.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		if inv.Cart != nil {
			inv.Status = model.EffectiveStatus(inv, inv.Cart.Revision)
		}
	}
	return invoices, nil
}

func (s *invoiceServiceImpl) ManualInvoice(ctx context.Context, userID string, dueIn time.Duration, lines []ManualLine) (*model.Invoice, error) {
	var inv *model.Invoice
	err := s.run(ctx, func(ctx context.Context, out *outbox) error {
		var err error
		inv, err = s.manualInvoice(ctx, out, userID, dueIn, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceServiceImpl) ValidateAllowedToPay(ctx context.Context, invoiceID uint) error {
	inv, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	return s.validateAllowedToPay(ctx, inv)
}

func (s *invoiceServiceImpl) Pay(ctx context.Context, invoiceID uint, kind model.PaymentKind, reference string, amount decimal.Decimal) (*model.Invoice, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var inv *model.Invoice
	err := s.run(ctx, func(ctx context.Context, out *outbox) error {
		var err error
		inv, err = s.invoices.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := s.validateAllowedToPay(ctx, inv); err != nil {
			return err
		}
		return s.addPayment(ctx, out, inv, kind, reference, amount)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceServiceImpl) RecordPayment(ctx context.Context, invoiceID uint, kind model.PaymentKind, reference string, amount decimal.Decimal) (*model.Invoice, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var inv *model.Invoice
	err := s.run(ctx, func(ctx context.Context, out *outbox) error {
		var err error
		inv, err = s.invoices.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}

		stale, err := s.isStale(ctx, inv)
		if err != nil {
			return err
		}
		if stale {
			if err := s.reconcile(ctx, out, inv); err != nil {
				return err
			}
		}
		return s.addPayment(ctx, out, inv, kind, reference, amount)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceServiceImpl) Void(ctx context.Context, invoiceID uint) (*model.Invoice, error) {
	var inv *model.Invoice
	err := s.run(ctx, func(ctx context.Context, out *outbox) error {
		var err error
		inv, err = s.invoices.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		return s.void(ctx, out, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceServiceImpl) Refund(ctx context.Context, invoiceID uint) (*model.Invoice, error) {
	var inv *model.Invoice
	err := s.run(ctx, func(ctx context.Context, out *outbox) error {
		var err error
		inv, err = s.invoices.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		return s.refund(ctx, out, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceServiceImpl) TotalPayments(ctx context.Context, invoiceID uint) (decimal.Decimal, error) {
	total, _, err := s.totalPayments(ctx, invoiceID)
	return total, err
}

func (s *invoiceServiceImpl) Payments(ctx context.Context, invoiceID uint) ([]*model.Payment, error) {
	return s.payments.ForInvoice(ctx, invoiceID)
}
