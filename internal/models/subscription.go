package models

import (
	"time"
)

// Supported proxy service kinds
const (
	ServiceTypeResidential = "residential"
	ServiceTypeISP         = "isp"
)

// Subscription mirrors a user's active upstream proxy plan, one row per
// (user_id, service_type). PlanID is only ever assigned from a successful
// upstream create call; TrafficMB only grows by addition.
type Subscription struct {
	BaseModel

	UserID      uint   `json:"user_id" gorm:"not null;index:idx_user_service,unique"`
	ServiceType string `json:"service_type" gorm:"size:20;not null;index:idx_user_service,unique"` // residential or isp

	ProviderID uint   `json:"provider_id" gorm:"not null;default:1"`
	PlanID     string `json:"plan_id" gorm:"size:100;not null;index"` // opaque upstream identifier

	// Cumulative purchased traffic in MB (caller units are GB, stored x1000)
	TrafficMB int64 `json:"traffic_mb" gorm:"not null"`

	// Expiration reported by the upstream provider
	CurrentPeriodEnd time.Time `json:"current_period_end"`

	// ISP plans are tied to a specific egress IP
	Region   string `json:"region" gorm:"size:50"`
	IPNumber string `json:"ip_number" gorm:"size:45"`
}

// IsValidServiceType reports whether s is a supported service kind.
func IsValidServiceType(s string) bool {
	return s == ServiceTypeResidential || s == ServiceTypeISP
}
