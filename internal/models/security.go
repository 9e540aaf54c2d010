package models

import (
	"github.com/shopspring/decimal"

	"captable/internal/segments"
)

// SecurityKind represents the class of equity.
type SecurityKind string

const (
	SecurityKindCommon     SecurityKind = "common"
	SecurityKindPreferred  SecurityKind = "preferred"
	SecurityKindRegistered SecurityKind = "registered"
)

// Security is one class of equity of a company.
//
// When TrackNumbers is set, every transaction on the security must name
// the certificate numbers it moves, and NumberSegments holds the set of
// numbers ever issued or reserved for the security. NumberSegments is
// always stored deflated; readers must tolerate unsorted order.
type Security struct {
	Base
	CompanyID string       `gorm:"type:uuid;not null;index" json:"company_id"`
	Kind      SecurityKind `gorm:"not null" json:"kind"`

	// FaceValue is the nominal value per unit; securities without one are
	// excluded from face-value and vote arithmetic.
	FaceValue decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"face_value"`

	// VoteRatio overrides the company ratio when positive.
	VoteRatio int64 `json:"vote_ratio,omitempty"`

	// Count is the declared total. Informational only; Company.ShareCount
	// is authoritative.
	Count int64 `json:"count"`

	TrackNumbers   bool          `gorm:"not null;default:false" json:"track_numbers"`
	NumberSegments segments.List `gorm:"type:json" json:"number_segments"`

	// Relationships
	Company Company `gorm:"foreignKey:CompanyID" json:"-"`
}
