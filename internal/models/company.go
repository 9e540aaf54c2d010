package models

import "time"

// Company is the aggregate root of one shareholder register.
//
// ShareCount is the authoritative total of issued shares; it is mutated
// only by capital increases, share destructions, and splits. The declared
// Count on individual securities is informational.
type Company struct {
	Base
	Name       string     `gorm:"not null" json:"name"`
	ShareCount int64      `gorm:"not null;default:0" json:"share_count"`
	VoteRatio  int64      `json:"vote_ratio"` // votes per share = face value / vote ratio; 0 means 1
	FoundedAt  *time.Time `json:"founded_at,omitempty"`

	// Billing plan key in the plan catalog.
	Plan string `gorm:"not null;default:'startup'" json:"plan"`

	// OperatorEmail receives split notifications. Operations that need an
	// operator fail loudly when it is missing.
	OperatorEmail string `json:"operator_email,omitempty"`

	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"` // ISO 3166-1 alpha-2

	// Relationships
	Securities   []Security    `gorm:"foreignKey:CompanyID" json:"securities,omitempty"`
	Shareholders []Shareholder `gorm:"foreignKey:CompanyID" json:"shareholders,omitempty"`
	OptionPlans  []OptionPlan  `gorm:"foreignKey:CompanyID" json:"option_plans,omitempty"`
}
