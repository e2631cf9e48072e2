package service

import (
	"context"
	"fmt"
	"regdesk/internal/clock"
	"regdesk/internal/model"
	"regdesk/internal/notify"
	"regdesk/internal/repository"
	"time"

	"github.com/shopspring/decimal"
)

type CreditNoteService interface {
	ForID(ctx context.Context, noteID uint) (*model.CreditNote, error)
	ForUser(ctx context.Context, userID string) ([]*model.CreditNote, error)
	Unclaimed(ctx context.Context, userID string) ([]*model.CreditNote, error)
	ApplyToInvoice(ctx context.Context, noteID, invoiceID uint) (*model.Invoice, error)
	Refund(ctx context.Context, noteID uint, reference string) (*model.CreditNote, error)
	// CancellationFee bills percentage of the note as a fee and pays the
	// fee from the note.
	CancellationFee(ctx context.Context, noteID uint, percentage decimal.Decimal) (*model.Invoice, error)
}

type creditNoteServiceImpl struct {
	*ledger
	feeDue time.Duration
}

func NewCreditNoteService(
	tx repository.Transactor,
	invoices repository.InvoiceRepository,
	payments repository.PaymentRepository,
	carts repository.CartRepository,
	validator CartValidator,
	notifier notify.Notifier,
	clk clock.Clock,
	feeDue time.Duration,
) CreditNoteService {
	return &creditNoteServiceImpl{
		ledger: newLedger(tx, invoices, payments, carts, validator, notifier, clk),
		feeDue: feeDue,
	}
}

func (s *creditNoteServiceImpl) ForID(ctx context.Context, noteID uint) (*model.CreditNote, error) {
	return s.payments.FindCreditNote(ctx, noteID)
}

func (s *creditNoteServiceImpl) ForUser(ctx context.Context, userID string) ([]*model.CreditNote, error) {
	return s.payments.CreditNotesForUser(ctx, userID)
}

func (s *creditNoteServiceImpl) Unclaimed(ctx context.Context, userID string) ([]*model.CreditNote, error) {
	return s.payments.UnclaimedCreditNotes(ctx, userID)
}

func (s *creditNoteServiceImpl) ApplyToInvoice(ctx context.Context, noteID, invoiceID uint) (*model.Invoice, error) {
	var inv *model.Invoice
	err := s.run(ctx, func(ctx context.Context, out *outbox) error {
		note, err := s.payments.FindCreditNote(ctx, noteID)
		if err != nil {
			return err
		}
		inv, err = s.invoices.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		return s.applyCreditNote(ctx, out, note, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *creditNoteServiceImpl) Refund(ctx context.Context, noteID uint, reference string) (*model.CreditNote, error) {
	var note *model.CreditNote
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		note, err = s.payments.FindCreditNote(ctx, noteID)
		if err != nil {
			return err
		}
		if !note.IsUnclaimed() {
			return ErrCreditNoteClaimed
		}

		refund := &model.CreditNoteRefund{
			CreditNoteID: note.ID,
			Time:         s.clock.Now(),
			Reference:    reference,
		}
		if err := s.payments.CreateRefund(ctx, refund); err != nil {
			return fmt.Errorf("refund credit note: %w", err)
		}
		note.Refund = refund
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (s *creditNoteServiceImpl) CancellationFee(ctx context.Context, noteID uint, percentage decimal.Decimal) (*model.Invoice, error) {
	if percentage.IsNegative() || percentage.GreaterThan(decimal.NewFromInt(100)) {
		return nil, ErrInvalidPercentage
	}

	var inv *model.Invoice
	err := s.run(ctx, func(ctx context.Context, out *outbox) error {
		note, err := s.payments.FindCreditNote(ctx, noteID)
		if err != nil {
			return err
		}
		if !note.IsUnclaimed() {
			return ErrCreditNoteClaimed
		}

		fee := note.Value().Mul(percentage).Div(decimal.NewFromInt(100)).Round(2)
		inv, err = s.manualInvoice(ctx, out, note.UserID, s.feeDue, []ManualLine{
			{Description: "Cancellation fee", Price: fee},
		})
		if err != nil {
			return err
		}
		if inv.IsPaid() {
			return nil
		}

		// issuing may already have spent this note on the fee
		note, err = s.payments.FindCreditNote(ctx, noteID)
		if err != nil {
			return err
		}
		if !note.IsUnclaimed() {
			return nil
		}
		return s.applyCreditNote(ctx, out, note, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}
