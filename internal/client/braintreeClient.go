package client

import (
	"context"
	"fmt"
	"regdesk/internal/config"

	"github.com/braintree-go/braintree-go"
	"github.com/shopspring/decimal"
)

// --- INTERFACE ---

type PaymentGateway interface {
	// Charge settles amount against a nonce from the checkout form and
	// returns the gateway transaction id.
	Charge(ctx context.Context, nonce string, amount decimal.Decimal, orderID string) (string, error)

	// Void cancels a transaction that has not settled yet.
	Void(ctx context.Context, transactionID string) error
}

// --- IMPLEMENTATION ---

type braintreeClientImpl struct {
	gateway *braintree.Braintree
}

// NewBraintreeClient initializes the Braintree SDK gateway
func NewBraintreeClient(cfg *config.Braintree) PaymentGateway {
	env := braintree.Sandbox
	if cfg.Environment == "production" {
		env = braintree.Production
	}

	gateway := braintree.New(
		env,
		cfg.MerchantID,
		cfg.PublicKey,
		cfg.PrivateKey,
	)

	return &braintreeClientImpl{
		gateway: gateway,
	}
}

// --- METHODS ---

func (c *braintreeClientImpl) Charge(ctx context.Context, nonce string, amount decimal.Decimal, orderID string) (string, error) {
	// Braintree expects NewDecimal(unscaled, scale): "50.00" -> NewDecimal(5000, 2)
	cents := amount.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
	btAmount := braintree.NewDecimal(cents, 2)

	req := &braintree.TransactionRequest{
		Type:               "sale",
		Amount:             btAmount,
		PaymentMethodNonce: nonce,
		OrderId:            orderID,
		Options: &braintree.TransactionOptions{
			SubmitForSettlement: true, // Captures the funds immediately
		},
	}

	tx, err := c.gateway.Transaction().Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("transaction creation failed: %w", err)
	}

	if tx.Status == braintree.TransactionStatusProcessorDeclined {
		return "", fmt.Errorf("transaction declined by processor: %s", tx.ProcessorResponseText)
	}

	return tx.Id, nil
}

func (c *braintreeClientImpl) Void(ctx context.Context, transactionID string) error {
	_, err := c.gateway.Transaction().Void(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("failed to void transaction: %w", err)
	}
	return nil
}
