package models

// ReconciliationTask records a purchase where the upstream side effect
// succeeded but the local write failed. These rows are worked off manually
// (or by an operator tool); they must never be dropped silently because
// money and upstream resources were already committed.
type ReconciliationTask struct {
	BaseModel

	TaskID      string `json:"task_id" gorm:"size:36;uniqueIndex;not null"` // UUID
	UserID      uint   `json:"user_id" gorm:"not null;index"`
	ServiceType string `json:"service_type" gorm:"size:20"`
	PlanID      string `json:"plan_id" gorm:"size:100"`
	TrafficMB   int64  `json:"traffic_mb"`
	Reason      string `json:"reason" gorm:"type:text"`
	Resolved    bool   `json:"resolved" gorm:"default:false;index"`
}
