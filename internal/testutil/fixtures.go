package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"captable/internal/models"
	"captable/internal/plans"
	"captable/internal/segments"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestCompany creates a company on the enterprise plan together
// with its company shareholder. The company shareholder is created first
// so the earliest-row convention holds in every test.
func CreateTestCompany(t *testing.T, db *gorm.DB) (*models.Company, *models.Shareholder) {
	t.Helper()

	company := &models.Company{
		Name:          fmt.Sprintf("Test Company %d", nextID()),
		Plan:          plans.PlanEnterprise,
		OperatorEmail: "operator@test.com",
		Country:       "CH",
	}
	if err := db.Create(company).Error; err != nil {
		t.Fatalf("failed to create test company: %v", err)
	}

	cs := &models.Shareholder{
		CompanyID: company.ID,
		Number:    "0",
		Name:      company.Name,
		LegalType: models.LegalTypeCompany,
		Country:   company.Country,
	}
	if err := db.Create(cs).Error; err != nil {
		t.Fatalf("failed to create company shareholder: %v", err)
	}

	return company, cs
}

// CreateTestSecurity creates an untracked common security with a face
// value of 1.00.
func CreateTestSecurity(t *testing.T, db *gorm.DB, companyID string) *models.Security {
	t.Helper()

	sec := &models.Security{
		CompanyID: companyID,
		Kind:      models.SecurityKindCommon,
		FaceValue: decimal.NewNullDecimal(decimal.NewFromInt(1)),
	}
	if err := db.Create(sec).Error; err != nil {
		t.Fatalf("failed to create test security: %v", err)
	}
	return sec
}

// CreateTestTrackedSecurity creates a security that tracks certificate
// numbers, seeded with the given corpus.
func CreateTestTrackedSecurity(t *testing.T, db *gorm.DB, companyID string, corpus segments.List) *models.Security {
	t.Helper()

	sec := &models.Security{
		CompanyID:      companyID,
		Kind:           models.SecurityKindRegistered,
		FaceValue:      decimal.NewNullDecimal(decimal.NewFromInt(1)),
		TrackNumbers:   true,
		NumberSegments: segments.Normalize(corpus),
		Count:          int64(segments.Count(corpus)),
	}
	if err := db.Create(sec).Error; err != nil {
		t.Fatalf("failed to create tracked test security: %v", err)
	}
	return sec
}

// CreateTestShareholder creates a register entry with a unique number.
func CreateTestShareholder(t *testing.T, db *gorm.DB, companyID string) *models.Shareholder {
	t.Helper()

	n := nextID()
	sh := &models.Shareholder{
		CompanyID: companyID,
		Number:    fmt.Sprintf("%d", n),
		Name:      fmt.Sprintf("Test Shareholder %d", n),
		Email:     fmt.Sprintf("shareholder%d@test.com", n),
		LegalType: models.LegalTypeHuman,
	}
	if err := db.Create(sh).Error; err != nil {
		t.Fatalf("failed to create test shareholder: %v", err)
	}
	return sh
}

// CreateTestPosition creates a confirmed position between the given
// parties.
func CreateTestPosition(t *testing.T, db *gorm.DB, companyID, securityID string, buyerID, sellerID *string, count int64, boughtAt time.Time) *models.Position {
	t.Helper()

	p := &models.Position{
		CompanyID:  companyID,
		SecurityID: securityID,
		BuyerID:    buyerID,
		SellerID:   sellerID,
		Count:      count,
		BoughtAt:   boughtAt,
		IsDraft:    false,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("failed to create test position: %v", err)
	}
	return p
}

// CreateTestOptionPlan creates an option plan over the given security.
func CreateTestOptionPlan(t *testing.T, db *gorm.DB, companyID, securityID string, count int64, pool segments.List) *models.OptionPlan {
	t.Helper()

	plan := &models.OptionPlan{
		CompanyID:      companyID,
		SecurityID:     securityID,
		Title:          fmt.Sprintf("Test Option Plan %d", nextID()),
		Count:          count,
		NumberSegments: segments.Normalize(pool),
	}
	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("failed to create test option plan: %v", err)
	}
	return plan
}

// CreateTestOptionTransaction creates a confirmed option transaction.
func CreateTestOptionTransaction(t *testing.T, db *gorm.DB, companyID, planID string, buyerID, sellerID *string, count int64, segs segments.List, boughtAt time.Time) *models.OptionTransaction {
	t.Helper()

	tx := &models.OptionTransaction{
		CompanyID:      companyID,
		OptionPlanID:   planID,
		BuyerID:        buyerID,
		SellerID:       sellerID,
		Count:          count,
		BoughtAt:       boughtAt,
		NumberSegments: segs,
		IsDraft:        false,
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test option transaction: %v", err)
	}
	return tx
}
