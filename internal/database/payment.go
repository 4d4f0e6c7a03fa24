package database

import (
	"context"

	"proxyhub-api/internal/models"

	"gorm.io/gorm"
)

// PaymentUpdate carries the gateway-reported fields applied to a payment
// row during settlement.
type PaymentUpdate struct {
	Status        string
	Amount        float64
	Network       string
	PayerCurrency string
}

// PaymentRepository provides payment persistence keyed by order_id.
type PaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a payment repository
func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a new payment row
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// GetByOrderID returns the payment for orderID, or gorm.ErrRecordNotFound.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// Settle applies the gateway-reported fields to the payment row and, when
// the status transitions into the settled set for the first time, credits
// the user's balance in the same transaction. Returns whether the balance
// was credited by this call.
//
// The row is locked with SELECT FOR UPDATE so a concurrently re-delivered
// webhook for the same order cannot credit twice.
func (r *PaymentRepository) Settle(ctx context.Context, orderID string, update PaymentUpdate) (*models.Payment, bool, error) {
	var payment models.Payment
	credited := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Set("gorm:query_option", "FOR UPDATE").
			Where("order_id = ?", orderID).
			First(&payment).Error; err != nil {
			return err
		}

		wasSettled := models.IsSettledStatus(payment.Status)

		payment.Status = update.Status
		payment.Amount = update.Amount
		payment.Network = update.Network
		payment.PayerCurrency = update.PayerCurrency

		if err := tx.Save(&payment).Error; err != nil {
			return err
		}

		if models.IsSettledStatus(update.Status) && !wasSettled {
			result := tx.Model(&models.User{}).
				Where("username = ?", payment.Username).
				Update("balance", gorm.Expr("balance + ?", update.Amount))
			if result.Error != nil {
				return result.Error
			}
			credited = true
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return &payment, credited, nil
}
