package models

import (
	"time"

	"github.com/shopspring/decimal"

	"captable/internal/segments"
)

// OptionPlan is a board-approved option pool over one security, with its
// own number segments and count ceiling.
type OptionPlan struct {
	Base
	CompanyID  string `gorm:"type:uuid;not null;index" json:"company_id"`
	SecurityID string `gorm:"type:uuid;not null;index" json:"security_id"`

	Title string `gorm:"not null" json:"title"`

	// Count is the ceiling of options the plan may grant.
	Count int64 `gorm:"not null" json:"count"`

	ExercisePrice   decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"exercise_price"`
	BoardApprovedAt *time.Time          `json:"board_approved_at,omitempty"`

	NumberSegments segments.List `gorm:"type:json" json:"number_segments"`

	// Relationships
	Company  Company  `gorm:"foreignKey:CompanyID" json:"-"`
	Security Security `gorm:"foreignKey:SecurityID" json:"security,omitempty"`
}

// OptionTransaction is the option-pool analogue of Position, scoped under
// an OptionPlan. Option balances never merge with share balances; options
// are a separate claim layer on top of share ownership.
type OptionTransaction struct {
	Base
	CompanyID    string  `gorm:"type:uuid;not null;index" json:"company_id"`
	OptionPlanID string  `gorm:"type:uuid;not null;index" json:"option_plan_id"`
	BuyerID      *string `gorm:"type:uuid;index" json:"buyer_id,omitempty"`
	SellerID     *string `gorm:"type:uuid;index" json:"seller_id,omitempty"`

	Count    int64     `gorm:"not null" json:"count"`
	BoughtAt time.Time `gorm:"not null;index" json:"bought_at"`

	NumberSegments segments.List `gorm:"type:json" json:"number_segments"`

	// CertificateID shares the per-company uniqueness namespace with
	// Position certificate IDs.
	CertificateID *string `json:"certificate_id,omitempty"`

	VestingMonths *int `json:"vesting_months,omitempty"`

	IsDraft bool `gorm:"not null;default:true" json:"is_draft"`

	Comment string `json:"comment,omitempty"`

	// Relationships
	Buyer      *Shareholder `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	Seller     *Shareholder `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	OptionPlan OptionPlan   `gorm:"foreignKey:OptionPlanID" json:"option_plan,omitempty"`
}
