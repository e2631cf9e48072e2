package repository

import (
	"context"
	"errors"
	"regdesk/internal/model"

	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	ForInvoice(ctx context.Context, invoiceID uint) ([]*model.Payment, error)
	FindCreditNote(ctx context.Context, noteID uint) (*model.CreditNote, error)
	CreditNotesForUser(ctx context.Context, userID string) ([]*model.CreditNote, error)
	UnclaimedCreditNotes(ctx context.Context, userID string) ([]*model.CreditNote, error)
	CreateRefund(ctx context.Context, refund *model.CreditNoteRefund) error
}

type paymentRepoImpl struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepoImpl{
		db: db,
	}
}

func (r *paymentRepoImpl) Create(ctx context.Context, payment *model.Payment) error {
	err := conn(ctx, r.db).Create(payment).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return model.IntegrityErrorf("credit note has already been applied")
	}
	return err
}

func (r *paymentRepoImpl) ForInvoice(ctx context.Context, invoiceID uint) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := conn(ctx, r.db).
		Where("invoice_id = ?", invoiceID).
		Order("id").
		Find(&payments).Error

	if err != nil {
		return nil, err
	}

	return payments, nil
}

type creditNoteRow struct {
	model.Payment
	UserID string
}

func (r *paymentRepoImpl) creditNotes(ctx context.Context, scope func(db *gorm.DB) *gorm.DB) ([]*model.CreditNote, error) {
	var rows []creditNoteRow
	err := conn(ctx, r.db).Model(&model.Payment{}).
		Select("payments.*, invoices.user_id AS user_id").
		Joins("JOIN invoices ON invoices.id = payments.invoice_id").
		Where("payments.kind = ?", model.PaymentCreditNote).
		Scopes(scope).
		Order("payments.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]uint, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}

	var applications []*model.Payment
	err = conn(ctx, r.db).
		Where("credit_note_id IN ?", ids).
		Find(&applications).Error
	if err != nil {
		return nil, err
	}

	var refunds []*model.CreditNoteRefund
	err = conn(ctx, r.db).
		Where("credit_note_id IN ?", ids).
		Find(&refunds).Error
	if err != nil {
		return nil, err
	}

	appByNote := make(map[uint]*model.Payment, len(applications))
	for _, a := range applications {
		appByNote[*a.CreditNoteID] = a
	}
	refundByNote := make(map[uint]*model.CreditNoteRefund, len(refunds))
	for _, rf := range refunds {
		refundByNote[rf.CreditNoteID] = rf
	}

	notes := make([]*model.CreditNote, len(rows))
	for i := range rows {
		notes[i] = &model.CreditNote{
			Payment:     rows[i].Payment,
			UserID:      rows[i].UserID,
			Application: appByNote[rows[i].ID],
			Refund:      refundByNote[rows[i].ID],
		}
	}
	return notes, nil
}

func (r *paymentRepoImpl) FindCreditNote(ctx context.Context, noteID uint) (*model.CreditNote, error) {
	notes, err := r.creditNotes(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("payments.id = ?", noteID)
	})
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	return notes[0], nil
}

func (r *paymentRepoImpl) CreditNotesForUser(ctx context.Context, userID string) ([]*model.CreditNote, error) {
	return r.creditNotes(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("invoices.user_id = ?", userID)
	})
}

func (r *paymentRepoImpl) UnclaimedCreditNotes(ctx context.Context, userID string) ([]*model.CreditNote, error) {
	notes, err := r.CreditNotesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var unclaimed []*model.CreditNote
	for _, note := range notes {
		if note.IsUnclaimed() {
			unclaimed = append(unclaimed, note)
		}
	}
	return unclaimed, nil
}

func (r *paymentRepoImpl) CreateRefund(ctx context.Context, refund *model.CreditNoteRefund) error {
	err := conn(ctx, r.db).Create(refund).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return model.IntegrityErrorf("credit note has already been refunded")
	}
	return err
}
