package services

import (
	"context"
	"fmt"

	"proxyhub-api/internal/database"
	"proxyhub-api/internal/models"
	"proxyhub-api/pkg/logging"
)

// GatewayClient is the slice of the payment gateway the checkout needs
type GatewayClient interface {
	CreateInvoice(ctx context.Context, amount float64, currency string) (*Invoice, []byte, error)
}

// PaymentStore is the persistence contract for payment rows
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	Settle(ctx context.Context, orderID string, update database.PaymentUpdate) (*models.Payment, bool, error)
}

// PaymentService orchestrates checkout: open a gateway invoice, then
// persist the pending payment row. No row is written when the gateway
// call fails.
type PaymentService struct {
	gateway  GatewayClient
	payments PaymentStore
}

// NewPaymentService creates a payment service
func NewPaymentService(gateway GatewayClient, payments PaymentStore) *PaymentService {
	return &PaymentService{gateway: gateway, payments: payments}
}

// Checkout opens a gateway invoice for the user and returns the raw
// gateway response body.
func (s *PaymentService) Checkout(ctx context.Context, amount float64, currency, username string) ([]byte, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrValidation)
	}

	invoice, rawBody, err := s.gateway.CreateInvoice(ctx, amount, currency)
	if err != nil {
		return nil, err
	}

	status := invoice.Status
	if status == "" {
		status = models.PaymentStatusPending
	}

	payment := &models.Payment{
		OrderID:     invoice.OrderID,
		Username:    username,
		Amount:      invoice.Amount,
		Status:      status,
		PaymentType: "cryptomus",
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		// The gateway invoice exists but we have no row to settle against;
		// the callback for this order will be rejected as unknown.
		logging.Errorf("Failed to persist pending payment - order_id: %s, username: %s, error: %v",
			invoice.OrderID, username, err)
		return nil, fmt.Errorf("failed to persist pending payment: %w", err)
	}

	logging.Infof("Opened checkout - order_id: %s, username: %s, amount: %.2f %s",
		invoice.OrderID, username, amount, currency)
	return rawBody, nil
}
