package models

import "time"

// LegalType distinguishes natural persons from legal entities.
type LegalType string

const (
	LegalTypeHuman   LegalType = "human"
	LegalTypeCompany LegalType = "company"
)

// Shareholder is one holder entry of a company's register.
//
// Shareholders carry no balance fields; every balance is derived by
// replaying the position history. The earliest-created shareholder of a
// company is the company shareholder (treasury); this is a convention of
// the data, not a flag.
type Shareholder struct {
	Base
	CompanyID string `gorm:"type:uuid;not null;index;uniqueIndex:uq_shareholders_company_number" json:"company_id"`

	// Number is the human-facing identifier, unique per company.
	Number string `gorm:"not null;uniqueIndex:uq_shareholders_company_number" json:"number"`

	Name      string     `json:"name"`
	Email     string     `json:"email,omitempty"`
	LegalType LegalType  `gorm:"not null;default:'human'" json:"legal_type"`
	Birthday  *time.Time `json:"birthday,omitempty"`

	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`

	// OrderCache is a denormalized JSON blob used for list sorting. It is
	// a rebuildable projection, never a source of truth.
	OrderCache string `gorm:"type:json" json:"order_cache,omitempty"`

	// Relationships
	Company Company `gorm:"foreignKey:CompanyID" json:"-"`
}
