package models

// Gateway payment statuses. Paid and PaidOver are the settled set: the
// first transition into either one credits the user's balance, exactly once.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusPaidOver = "paid_over"
)

// Payment tracks a checkout transaction from pending to a terminal gateway
// status. OrderID is globally unique and is the idempotency key for
// settlement.
type Payment struct {
	BaseModel

	OrderID  string `json:"order_id" gorm:"size:64;uniqueIndex;not null;column:order_id"`
	Username string `json:"username" gorm:"size:100;not null;index"`

	Amount float64 `json:"amount"`
	Status string  `json:"status" gorm:"size:30;not null;index"`

	Network       string `json:"network" gorm:"size:30"`
	PayerCurrency string `json:"payer_currency" gorm:"size:20"`
	PaymentType   string `json:"payment_type" gorm:"size:30"` // e.g. cryptomus
}

// IsSettledStatus reports whether status belongs to the settled set.
func IsSettledStatus(status string) bool {
	return status == PaymentStatusPaid || status == PaymentStatusPaidOver
}
