package service

import (
	"fmt"
	"regdesk/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// creditNote pays for quantity of p, refunds it and returns the note.
func (e *testEnv) creditNote(userID string, p *model.Product, quantity int) *model.CreditNote {
	e.add(userID, p, quantity)
	inv := e.payInFull(e.invoice(userID))
	_, err := e.invoiceSvc.Refund(e.ctx, inv.ID)
	require.NoError(e.t, err)

	notes := e.unclaimed(userID)
	require.NotEmpty(e.t, notes)
	return notes[len(notes)-1]
}

func (e *testEnv) dinner(userID string) *model.Invoice {
	inv, err := e.invoiceSvc.ManualInvoice(e.ctx, userID, time.Hour, []ManualLine{
		{Description: "Dinner", Price: dec("10")},
	})
	require.NoError(e.t, err)
	return inv
}

func TestApplyToInvoice(t *testing.T) {
	e := newTestEnv(t)
	first := e.dinner("alice")
	second := e.dinner("alice")
	note := e.creditNote("alice", e.prod1, 1)

	got, err := e.noteSvc.ApplyToInvoice(e.ctx, note.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, got.Status)

	_, err = e.noteSvc.ApplyToInvoice(e.ctx, note.ID, second.ID)
	require.ErrorIs(t, err, ErrCreditNoteClaimed)

	note, err = e.noteSvc.ForID(e.ctx, note.ID)
	require.NoError(t, err)
	assert.False(t, note.IsUnclaimed())
	assert.Equal(t, fmt.Sprintf("Applied to invoice %d", first.ID), note.Status())

	_, err = e.noteSvc.Refund(e.ctx, note.ID, "bank transfer")
	require.ErrorIs(t, err, ErrCreditNoteClaimed)
}

func TestApplyToInvoice_PaidInvoiceRejected(t *testing.T) {
	e := newTestEnv(t)
	first := e.dinner("alice")
	e.dinner("alice")
	e.payInFull(first)
	note := e.creditNote("alice", e.prod1, 1)

	_, err := e.noteSvc.ApplyToInvoice(e.ctx, note.ID, first.ID)
	require.ErrorIs(t, err, ErrInvoiceNotPayable)
	assert.Len(t, e.unclaimed("alice"), 1)
}

func TestApplyToInvoice_LargerNoteLeavesCredit(t *testing.T) {
	e := newTestEnv(t)
	first := e.dinner("alice")
	e.dinner("alice")
	note := e.creditNote("alice", e.prod1, 3)

	got, err := e.noteSvc.ApplyToInvoice(e.ctx, note.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, got.Status)

	notes := e.unclaimed("alice")
	require.Len(t, notes, 1)
	requireDecimal(t, "20.00", notes[0].Value())
	assert.Equal(t, first.ID, notes[0].InvoiceID)
}

func TestRefundCreditNote(t *testing.T) {
	e := newTestEnv(t)
	e.dinner("alice")
	e.dinner("alice")
	note := e.creditNote("alice", e.prod1, 1)

	refunded, err := e.noteSvc.Refund(e.ctx, note.ID, "bank transfer")
	require.NoError(t, err)
	assert.Equal(t, "Refunded with reference: bank transfer", refunded.Status())
	assert.Empty(t, e.unclaimed("alice"))

	_, err = e.noteSvc.Refund(e.ctx, note.ID, "again")
	require.ErrorIs(t, err, ErrCreditNoteClaimed)

	notes, err := e.noteSvc.ForUser(e.ctx, "alice")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.NotNil(t, notes[0].Refund)
}

func TestCancellationFee(t *testing.T) {
	e := newTestEnv(t)
	note := e.creditNote("alice", e.prod1, 2)

	fee, err := e.noteSvc.CancellationFee(e.ctx, note.ID, dec("25"))
	require.NoError(t, err)
	requireDecimal(t, "5.00", fee.Value)
	assert.Equal(t, model.InvoicePaid, fee.Status)
	require.Len(t, fee.LineItems, 1)
	assert.Equal(t, "Cancellation fee", fee.LineItems[0].Description)
	assert.Nil(t, fee.CartID)

	note, err = e.noteSvc.ForID(e.ctx, note.ID)
	require.NoError(t, err)
	require.NotNil(t, note.Application)
	assert.Equal(t, fee.ID, note.Application.InvoiceID)

	notes := e.unclaimed("alice")
	require.Len(t, notes, 1)
	requireDecimal(t, "15.00", notes[0].Value())
}

func TestCancellationFee_WithOtherUnpaidInvoices(t *testing.T) {
	e := newTestEnv(t)
	e.dinner("alice")
	note := e.creditNote("alice", e.prod1, 1)

	fee, err := e.noteSvc.CancellationFee(e.ctx, note.ID, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, fee.Status)
	assert.Empty(t, e.unclaimed("alice"))
}

func TestCancellationFee_Rejections(t *testing.T) {
	e := newTestEnv(t)
	note := e.creditNote("alice", e.prod1, 1)

	_, err := e.noteSvc.CancellationFee(e.ctx, note.ID, dec("101"))
	require.ErrorIs(t, err, ErrInvalidPercentage)
	_, err = e.noteSvc.CancellationFee(e.ctx, note.ID, dec("-1"))
	require.ErrorIs(t, err, ErrInvalidPercentage)

	_, err = e.noteSvc.Refund(e.ctx, note.ID, "cash")
	require.NoError(t, err)
	_, err = e.noteSvc.CancellationFee(e.ctx, note.ID, dec("10"))
	require.ErrorIs(t, err, ErrCreditNoteClaimed)
}
