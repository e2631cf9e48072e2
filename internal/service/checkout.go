package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regdesk/internal/client"
	"regdesk/internal/model"
)

type CheckoutService interface {
	// Checkout charges the outstanding balance of the user's invoice
	// through the payment gateway.
	Checkout(ctx context.Context, userID string, invoiceID uint, nonce string) (*model.Invoice, error)
}

type checkoutServiceImpl struct {
	invoices InvoiceService
	gateway  client.PaymentGateway
}

func NewCheckoutService(
	invoices InvoiceService,
	gateway client.PaymentGateway,
) CheckoutService {
	return &checkoutServiceImpl{
		invoices: invoices,
		gateway:  gateway,
	}
}

func (s *checkoutServiceImpl) Checkout(ctx context.Context, userID string, invoiceID uint, nonce string) (*model.Invoice, error) {
	inv, err := s.invoices.ForID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	if inv.UserID != userID {
		return nil, ErrNotOwner
	}
	if err := s.invoices.ValidateAllowedToPay(ctx, invoiceID); err != nil {
		return nil, err
	}

	paid, err := s.invoices.TotalPayments(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	balance := inv.Value.Sub(paid)
	if !balance.IsPositive() {
		return nil, ErrInvoiceNotPayable
	}

	txID, err := s.gateway.Charge(ctx, nonce, balance, fmt.Sprintf("invoice-%d", invoiceID))
	if err != nil {
		return nil, fmt.Errorf("gateway charge: %w", err)
	}
	log.Printf("[checkout] charged %s for invoice %d, transaction %s", balance.StringFixed(2), invoiceID, txID)

	inv, err = s.invoices.Pay(ctx, invoiceID, model.PaymentGateway, txID, balance)
	if err == nil {
		return inv, nil
	}

	if !errors.Is(err, ErrInvoiceNotPayable) && !errors.Is(err, ErrInvoiceStale) {
		// nothing was booked, so hand the money back
		if voidErr := s.gateway.Void(ctx, txID); voidErr != nil {
			log.Printf("[checkout] void transaction %s: %v", txID, voidErr)
		}
		return nil, fmt.Errorf("record gateway payment: %w", err)
	}

	// the invoice changed while the charge was in flight; keep the money
	// as credit
	log.Printf("[checkout] invoice %d no longer payable, booking %s as credit: %v", invoiceID, txID, err)
	return s.invoices.RecordPayment(ctx, invoiceID, model.PaymentGateway, txID, balance)
}
