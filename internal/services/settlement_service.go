package services

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"proxyhub-api/internal/database"
	"proxyhub-api/internal/models"
	"proxyhub-api/pkg/logging"

	"gorm.io/gorm"
)

// CallbackPayload is the gateway webhook body. Amount comes as a string
// or a number depending on the gateway version, hence json.Number.
type CallbackPayload struct {
	OrderID         string      `json:"order_id"`
	Amount          json.Number `json:"amount"`
	Status          string      `json:"status"`
	Network         string      `json:"network"`
	PaymentCurrency string      `json:"payment_currency"`
	Sign            string      `json:"sign"`
}

// SettlementResult reports what a webhook delivery did
type SettlementResult struct {
	Payment  *models.Payment
	Credited bool
}

// SettlementService verifies inbound payment webhooks and applies the
// balance credit exactly once per order.
type SettlementService struct {
	payments PaymentStore
	users    UserStore
	mailer   Mailer
	locker   Locker
	secret   string
}

// NewSettlementService creates a settlement service. mailer may be nil
// when receipt emails are not configured.
func NewSettlementService(payments PaymentStore, users UserStore, mailer Mailer, locker Locker, secret string) *SettlementService {
	return &SettlementService{
		payments: payments,
		users:    users,
		mailer:   mailer,
		locker:   locker,
		secret:   secret,
	}
}

// HandleCallback processes one webhook delivery:
// signature check over the raw bytes, order lookup, conditional settle.
// Signature and unknown-order failures are final rejections; anything
// else is returned so the HTTP layer answers 5xx and the gateway retries.
func (s *SettlementService) HandleCallback(ctx context.Context, rawBody []byte) (*SettlementResult, error) {
	var payload CallbackPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: unparseable callback body", ErrValidation)
	}

	if payload.Sign == "" {
		return nil, ErrMissingSignature
	}
	if err := VerifyCallbackSignature(rawBody, payload.Sign, s.secret); err != nil {
		return nil, err
	}

	if payload.OrderID == "" {
		return nil, fmt.Errorf("%w: callback carries no order_id", ErrValidation)
	}

	// Serialize deliveries for the same order. The conditional settle
	// below is already race-safe; the lock just keeps retries from piling
	// up on one row.
	release, err := s.locker.Acquire(ctx, "settle_lock:"+payload.OrderID, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize settlement: %w", err)
	}
	defer release()

	if _, err := s.payments.GetByOrderID(ctx, payload.OrderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, payload.OrderID)
		}
		return nil, fmt.Errorf("failed to read payment: %w", err)
	}

	amount, err := payload.Amount.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: bad amount %q", ErrValidation, payload.Amount.String())
	}

	payment, credited, err := s.payments.Settle(ctx, payload.OrderID, database.PaymentUpdate{
		Status:        payload.Status,
		Amount:        amount,
		Network:       payload.Network,
		PayerCurrency: payload.PaymentCurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to settle payment %s: %w", payload.OrderID, err)
	}

	if credited {
		logging.Infof("Credited balance - order_id: %s, username: %s, amount: %.2f",
			payment.OrderID, payment.Username, amount)
		s.sendReceipt(payment, amount)
	} else {
		logging.Infof("Settlement no-op - order_id: %s, status: %s", payment.OrderID, payment.Status)
	}

	return &SettlementResult{Payment: payment, Credited: credited}, nil
}

// sendReceipt emails the user asynchronously; a mail failure never fails
// the settlement.
func (s *SettlementService) sendReceipt(payment *models.Payment, amount float64) {
	if s.mailer == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		user, err := s.users.GetByUsername(ctx, payment.Username)
		if err != nil {
			logging.Errorf("Receipt skipped, user lookup failed - username: %s, error: %v", payment.Username, err)
			return
		}
		if err := s.mailer.SendPaymentReceipt(ctx, user.Email, user.Username, amount, payment.PayerCurrency); err != nil {
			logging.Errorf("Failed to send receipt - order_id: %s, error: %v", payment.OrderID, err)
		}
	}()
}

// signMemberPatterns strip the top-level "sign" member from the raw JSON
// callback body. The gateway appends sign last, but a leading position is
// handled too. The payload is a flat object, so a nested "sign" key
// cannot occur.
var (
	signMemberTrailing = regexp.MustCompile(`\s*,\s*"sign"\s*:\s*"[^"]*"`)
	signMemberLeading  = regexp.MustCompile(`"sign"\s*:\s*"[^"]*"\s*,\s*`)
)

// StripSignField removes the sign member from the raw webhook bytes
// without re-serializing the payload. Re-serialization would reorder
// fields or change whitespace and break the digest.
func StripSignField(rawBody []byte) ([]byte, error) {
	stripped := signMemberTrailing.ReplaceAll(rawBody, nil)
	if len(stripped) == len(rawBody) {
		stripped = signMemberLeading.ReplaceAll(rawBody, nil)
	}
	if len(stripped) == len(rawBody) {
		return nil, fmt.Errorf("sign field not found in raw body")
	}
	return stripped, nil
}

// VerifyCallbackSignature recomputes the gateway digest over the raw
// bytes minus the sign field and compares it to the supplied signature.
func VerifyCallbackSignature(rawBody []byte, sign, secret string) error {
	stripped, err := StripSignField(rawBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}

	expected := SignGatewayPayload(stripped, secret)
	if !hmac.Equal([]byte(expected), []byte(sign)) {
		return ErrSignatureMismatch
	}
	return nil
}
