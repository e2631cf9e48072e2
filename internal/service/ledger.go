package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regdesk/internal/clock"
	"regdesk/internal/model"
	"regdesk/internal/notify"
	"regdesk/internal/repository"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartValidator re-checks a cart before money is taken for it.
type CartValidator interface {
	ValidateCart(ctx context.Context, cartID uint) error
}

type outboxKey struct{}

// outbox holds notifications until the transaction that raised them commits.
type outbox struct {
	events []notify.Event
}

func (o *outbox) add(ev notify.Event) {
	o.events = append(o.events, ev)
}

// ledger moves money between invoices, payments and credit notes.
type ledger struct {
	tx        repository.Transactor
	invoices  repository.InvoiceRepository
	payments  repository.PaymentRepository
	carts     repository.CartRepository
	validator CartValidator
	notifier  notify.Notifier
	clock     clock.Clock
}

// run executes fn in a transaction and sends the notifications it raised
// once the outermost run commits.
func (l *ledger) run(ctx context.Context, fn func(ctx context.Context, out *outbox) error) error {
	if out, ok := ctx.Value(outboxKey{}).(*outbox); ok {
		return l.tx.InTx(ctx, func(ctx context.Context) error {
			return fn(ctx, out)
		})
	}

	out := &outbox{}
	ctx = context.WithValue(ctx, outboxKey{}, out)
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		return fn(ctx, out)
	})
	if err != nil {
		return err
	}

	for _, ev := range out.events {
		if err := l.notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
			log.Printf("[invoice] notify %s for invoice %d: %v", ev.Kind, ev.InvoiceID, err)
		}
	}
	return nil
}

func (l *ledger) cartRevision(ctx context.Context, inv *model.Invoice) (int, error) {
	if inv.CartID == nil {
		return 0, nil
	}
	cart, err := l.carts.FindByID(ctx, *inv.CartID)
	if err != nil {
		return 0, fmt.Errorf("find invoice cart: %w", err)
	}
	return cart.Revision, nil
}

// effective overwrites the in-memory status with the one derived from the
// current cart revision.
func (l *ledger) effective(ctx context.Context, inv *model.Invoice) error {
	if inv.CartID == nil {
		return nil
	}
	revision, err := l.cartRevision(ctx, inv)
	if err != nil {
		return err
	}
	inv.Status = model.EffectiveStatus(inv, revision)
	return nil
}

func (l *ledger) isStale(ctx context.Context, inv *model.Invoice) (bool, error) {
	revision, err := l.cartRevision(ctx, inv)
	if err != nil {
		return false, err
	}
	return inv.IsStale(revision), nil
}

func (l *ledger) totalPayments(ctx context.Context, invoiceID uint) (decimal.Decimal, int, error) {
	payments, err := l.payments.ForInvoice(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("load payments: %w", err)
	}
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total, len(payments), nil
}

func (l *ledger) validateAllowedToPay(ctx context.Context, inv *model.Invoice) error {
	stale, err := l.isStale(ctx, inv)
	if err != nil {
		return err
	}
	if stale {
		return ErrInvoiceStale
	}
	if !inv.IsUnpaid() {
		return ErrInvoiceNotPayable
	}
	if inv.CartID == nil {
		return nil
	}
	return l.validator.ValidateCart(ctx, *inv.CartID)
}

func (l *ledger) setStatus(ctx context.Context, inv *model.Invoice, status model.InvoiceStatus) error {
	if err := l.invoices.UpdateStatus(ctx, inv.ID, status); err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	inv.Status = status
	return nil
}

func (l *ledger) setCartStatus(ctx context.Context, inv *model.Invoice, status model.CartStatus) error {
	if inv.CartID == nil {
		return nil
	}
	if err := l.carts.UpdateStatus(ctx, *inv.CartID, status); err != nil {
		return fmt.Errorf("update cart status: %w", err)
	}
	return nil
}

// updateStatus settles the invoice after money has moved and turns any
// residual into a credit note.
func (l *ledger) updateStatus(ctx context.Context, out *outbox, inv *model.Invoice) error {
	previous := inv.Status
	paid, count, err := l.totalPayments(ctx, inv.ID)
	if err != nil {
		return err
	}
	remainder := inv.Value.Sub(paid)

	switch previous {
	case model.InvoiceUnpaid:
		if !remainder.IsPositive() {
			if err := l.setStatus(ctx, inv, model.InvoicePaid); err != nil {
				return err
			}
			if err := l.setCartStatus(ctx, inv, model.CartPaid); err != nil {
				return err
			}
		} else if paid.IsZero() && count > 0 {
			if err := l.setStatus(ctx, inv, model.InvoiceVoid); err != nil {
				return err
			}
		}
	case model.InvoicePaid:
		if remainder.IsPositive() {
			if err := l.setCartStatus(ctx, inv, model.CartReleased); err != nil {
				return err
			}
			if err := l.setStatus(ctx, inv, model.InvoiceRefunded); err != nil {
				return err
			}
		}
	}

	residual := decimal.Zero
	switch {
	case inv.IsPaid() && remainder.IsNegative():
		residual = remainder.Neg()
	case inv.IsVoid() || inv.IsRefunded():
		residual = paid
	}
	if !residual.IsZero() {
		if _, err := l.generateCreditNote(ctx, inv, residual); err != nil {
			return err
		}
	}

	if inv.Status != previous {
		log.Printf("[invoice] invoice %d %s -> %s", inv.ID, previous, inv.Status)
		out.add(notify.NewEvent(notify.InvoiceUpdated, inv, previous, l.clock.Now()))
	}
	return nil
}

// generateCreditNote moves value off inv into a new credit note.
func (l *ledger) generateCreditNote(ctx context.Context, inv *model.Invoice, value decimal.Decimal) (*model.Payment, error) {
	note := &model.Payment{
		InvoiceID: inv.ID,
		Kind:      model.PaymentCreditNote,
		Time:      l.clock.Now(),
		Reference: "Generated credit note " + uuid.NewString()[:8],
		Amount:    value.Neg(),
	}
	if err := l.payments.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("create credit note: %w", err)
	}
	log.Printf("[invoice] credit note %d of %s from invoice %d", note.ID, value.StringFixed(2), inv.ID)
	return note, nil
}

func (l *ledger) addPayment(ctx context.Context, out *outbox, inv *model.Invoice, kind model.PaymentKind, reference string, amount decimal.Decimal) error {
	payment := &model.Payment{
		InvoiceID: inv.ID,
		Kind:      kind,
		Time:      l.clock.Now(),
		Reference: reference,
		Amount:    amount,
	}
	if err := l.payments.Create(ctx, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return l.updateStatus(ctx, out, inv)
}

// void marks the invoice void, releasing the cart of a paid one.
func (l *ledger) void(ctx context.Context, out *outbox, inv *model.Invoice) error {
	paid, _, err := l.totalPayments(ctx, inv.ID)
	if err != nil {
		return err
	}
	if paid.IsPositive() {
		return ErrInvoiceHasPayments
	}
	if inv.IsRefunded() {
		return ErrInvoiceRefunded
	}
	if inv.IsVoid() {
		return nil
	}

	previous := inv.Status
	if inv.IsPaid() {
		if err := l.setCartStatus(ctx, inv, model.CartReleased); err != nil {
			return err
		}
	}
	if err := l.setStatus(ctx, inv, model.InvoiceVoid); err != nil {
		return err
	}
	out.add(notify.NewEvent(notify.InvoiceUpdated, inv, previous, l.clock.Now()))
	return nil
}

// refund returns everything paid on the invoice as a credit note. An
// invoice without payments is voided instead.
func (l *ledger) refund(ctx context.Context, out *outbox, inv *model.Invoice) error {
	if inv.IsVoid() {
		return ErrInvoiceVoid
	}
	paid, _, err := l.totalPayments(ctx, inv.ID)
	if err != nil {
		return err
	}
	if paid.IsZero() {
		return l.void(ctx, out, inv)
	}
	if _, err := l.generateCreditNote(ctx, inv, paid); err != nil {
		return err
	}
	return l.updateStatus(ctx, out, inv)
}

// reconcile settles an invoice whose cart has moved on: payments are
// refunded, otherwise it is voided.
func (l *ledger) reconcile(ctx context.Context, out *outbox, inv *model.Invoice) error {
	paid, _, err := l.totalPayments(ctx, inv.ID)
	if err != nil {
		return err
	}
	if paid.IsPositive() {
		return l.refund(ctx, out, inv)
	}
	return l.void(ctx, out, inv)
}

func (l *ledger) applyCreditNote(ctx context.Context, out *outbox, note *model.CreditNote, inv *model.Invoice) error {
	if !note.IsUnclaimed() {
		return ErrCreditNoteClaimed
	}
	if err := l.validateAllowedToPay(ctx, inv); err != nil {
		return err
	}

	application := &model.Payment{
		InvoiceID:    inv.ID,
		Kind:         model.PaymentCreditNoteApplication,
		Time:         l.clock.Now(),
		Reference:    fmt.Sprintf("Applied credit note #%d", note.ID),
		Amount:       note.Value(),
		CreditNoteID: &note.ID,
	}
	if err := l.payments.Create(ctx, application); err != nil {
		return fmt.Errorf("apply credit note: %w", err)
	}
	note.Application = application
	return l.updateStatus(ctx, out, inv)
}

// applyCreditNotes spends the user's unclaimed notes on inv when it is the
// only invoice they owe money on.
func (l *ledger) applyCreditNotes(ctx context.Context, out *outbox, inv *model.Invoice) error {
	unpaid, err := l.invoices.CountUnpaid(ctx, inv.UserID)
	if err != nil {
		return fmt.Errorf("count unpaid invoices: %w", err)
	}
	if unpaid > 1 {
		return nil
	}

	notes, err := l.payments.UnclaimedCreditNotes(ctx, inv.UserID)
	if err != nil {
		return fmt.Errorf("load credit notes: %w", err)
	}
	for _, note := range notes {
		err := l.applyCreditNote(ctx, out, note, inv)
		if errors.Is(err, ErrInvoiceNotPayable) {
			break
		}
		var ve *ValidationError
		if errors.As(err, &ve) {
			break
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// issue stores a new invoice, notifies, and settles it as far as the
// user's credit allows.
func (l *ledger) issue(ctx context.Context, out *outbox, inv *model.Invoice) error {
	inv.Status = model.InvoiceUnpaid
	inv.Value = decimal.Zero
	for i := range inv.LineItems {
		inv.Value = inv.Value.Add(inv.LineItems[i].Total())
	}

	if err := l.invoices.Create(ctx, inv); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	log.Printf("[invoice] issued invoice %d for %s value %s", inv.ID, inv.UserID, inv.Value.StringFixed(2))
	out.add(notify.NewEvent(notify.InvoiceCreated, inv, "", l.clock.Now()))

	if err := l.applyCreditNotes(ctx, out, inv); err != nil {
		return err
	}
	if inv.IsUnpaid() {
		// settles zero-value invoices
		return l.updateStatus(ctx, out, inv)
	}
	return nil
}

func (l *ledger) manualInvoice(ctx context.Context, out *outbox, userID string, dueIn time.Duration, lines []ManualLine) (*model.Invoice, error) {
	now := l.clock.Now()
	inv := &model.Invoice{
		UserID:    userID,
		Recipient: userID,
		IssueTime: now,
		DueTime:   now.Add(dueIn),
	}
	for _, line := range lines {
		inv.LineItems = append(inv.LineItems, model.LineItem{
			Description: line.Description,
			Quantity:    1,
			Price:       line.Price,
		})
	}

	if err := l.issue(ctx, out, inv); err != nil {
		return nil, err
	}
	return inv, nil
}
