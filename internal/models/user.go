package models

// User represents a registered account. Balance is funded by settled
// crypto payments and spent on proxy plan purchases.
type User struct {
	BaseModel

	Username string `json:"username" gorm:"size:100;uniqueIndex;not null"`
	Email    string `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Password string `json:"-" gorm:"size:255;not null"` // bcrypt hash

	// Account balance in USD, credited by the settlement engine only
	Balance float64 `json:"balance" gorm:"default:0"`

	// Referral fields
	RefCode   string `json:"ref_code" gorm:"size:20;uniqueIndex"`
	InvitedBy string `json:"invited_by" gorm:"size:20"`
}
