package models

import (
	"time"

	"github.com/shopspring/decimal"

	"captable/internal/segments"
)

// Position is the atomic, append-only unit of share ownership change.
//
// A position with no seller is value-creating (capital increase); one with
// no buyer is value-destroying (return to treasury / destruction); both
// set is a regular transfer. Confirmed positions are never updated or
// deleted; corrections are new offsetting rows. The single exception is
// certificate invalidation, which sets SupersededByID on the original
// issuance.
type Position struct {
	Base
	CompanyID  string  `gorm:"type:uuid;not null;index" json:"company_id"`
	BuyerID    *string `gorm:"type:uuid;index" json:"buyer_id,omitempty"`
	SellerID   *string `gorm:"type:uuid;index" json:"seller_id,omitempty"`
	SecurityID string  `gorm:"type:uuid;not null;index" json:"security_id"`

	Count int64 `gorm:"not null" json:"count"`

	// BoughtAt is the effective date; it may be backdated or future-dated
	// relative to the row's creation time.
	BoughtAt time.Time `gorm:"not null;index" json:"bought_at"`

	Value decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"value"`

	// NumberSegments lists the certificate numbers this transaction moves.
	// Required when the security tracks numbers.
	NumberSegments segments.List `gorm:"type:json" json:"number_segments"`

	// CertificateID marks a printed certificate deposited with the row.
	// Globally unique across positions and option transactions within a
	// company when set.
	CertificateID *string `json:"certificate_id,omitempty"`

	// SupersededByID points at the return row that invalidated this
	// certificate. Kept as a plain foreign key to avoid cyclic object
	// graphs in memory.
	SupersededByID *string `gorm:"type:uuid" json:"superseded_by_id,omitempty"`

	// VestingMonths blocks selling until BoughtAt + VestingMonths months.
	VestingMonths *int `json:"vesting_months,omitempty"`

	IsSplit bool `gorm:"not null;default:false" json:"is_split"`

	// Draft rows are mutable and deletable; confirmed rows are immutable.
	IsDraft bool `gorm:"not null;default:true" json:"is_draft"`

	Comment string `json:"comment,omitempty"`

	// Relationships
	Buyer    *Shareholder `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	Seller   *Shareholder `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	Security Security     `gorm:"foreignKey:SecurityID" json:"security,omitempty"`
}

// IsCapitalIncrease reports whether the position creates value.
func (p *Position) IsCapitalIncrease() bool { return p.SellerID == nil }

// IsDestruction reports whether the position destroys value.
func (p *Position) IsDestruction() bool { return p.BuyerID == nil }

// IsValidCertificate reports whether the row represents a certificate
// still sitting in the depot (deposited and not yet invalidated).
func (p *Position) IsValidCertificate() bool {
	return p.CertificateID != nil && p.SupersededByID == nil
}

// VestingExpired reports whether the vesting window has elapsed at the
// given instant. Rows without vesting are trivially elapsed.
func (p *Position) VestingExpired(now time.Time) bool {
	if p.VestingMonths == nil {
		return true
	}
	return !p.BoughtAt.AddDate(0, *p.VestingMonths, 0).After(now)
}
