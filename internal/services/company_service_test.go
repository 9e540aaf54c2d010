package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"captable/internal/models"
	"captable/internal/plans"
	"captable/internal/segments"
	"captable/internal/testutil"
)

func newCompanyTestServices(t *testing.T) (*gorm.DB, CompanyServicer, ShareholderServicer) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	validation := NewValidationService(db, plans.Default())
	shareholders := NewShareholderService(db, validation, newNopStore())
	companies := NewCompanyService(db, shareholders, validation, newNopStore(), time.Minute)
	return db, companies, shareholders
}

func TestCreateCompany(t *testing.T) {
	db, svc, _ := newCompanyTestServices(t)

	company, err := svc.CreateCompany("Acme AG", "CH", "ops@acme.test", "")
	testutil.AssertNoError(t, err)
	if company.Plan != plans.PlanStartup {
		t.Errorf("expected default plan startup, got %s", company.Plan)
	}

	// The company shareholder is created alongside, as the first entry.
	cs, err := svc.CompanyShareholder(company.ID)
	testutil.AssertNoError(t, err)
	if cs.Name != "Acme AG" || cs.LegalType != models.LegalTypeCompany {
		t.Errorf("unexpected company shareholder: %+v", cs)
	}

	var count int64
	if err := db.Model(&models.Shareholder{}).Where("company_id = ?", company.ID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count shareholders: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one register entry, got %d", count)
	}
}

func TestCreateSecurityTrackedDefaults(t *testing.T) {
	db, svc, _ := newCompanyTestServices(t)
	company, _ := testutil.CreateTestCompany(t, db)

	sec, err := svc.CreateSecurity(company.ID, &models.Security{
		Kind:           models.SecurityKindRegistered,
		FaceValue:      decimal.NewNullDecimal(decimal.NewFromInt(1)),
		TrackNumbers:   true,
		NumberSegments: segments.List{segments.Range(1, 100), segments.Single(200)},
	})
	testutil.AssertNoError(t, err)

	// Count defaults to the corpus size when not declared.
	if sec.Count != 101 {
		t.Errorf("expected count 101 from the corpus, got %d", sec.Count)
	}
}

func TestCompanyShareholderIsEarliestEntry(t *testing.T) {
	db, svc, _ := newCompanyTestServices(t)
	company, cs := testutil.CreateTestCompany(t, db)
	testutil.CreateTestShareholder(t, db, company.ID)
	testutil.CreateTestShareholder(t, db, company.ID)

	resolved, err := svc.CompanyShareholder(company.ID)
	testutil.AssertNoError(t, err)
	if resolved.ID != cs.ID {
		t.Errorf("expected the earliest entry %s, got %s", cs.ID, resolved.ID)
	}
}

func TestActiveShareholders(t *testing.T) {
	db, svc, _ := newCompanyTestServices(t)
	company, cs := testutil.CreateTestCompany(t, db)
	sec := testutil.CreateTestSecurity(t, db, company.ID)
	alice := testutil.CreateTestShareholder(t, db, company.ID)
	testutil.CreateTestShareholder(t, db, company.ID) // never holds anything

	testutil.CreateTestPosition(t, db, company.ID, sec.ID, &cs.ID, nil, 1000, day(1))
	testutil.CreateTestPosition(t, db, company.ID, sec.ID, &alice.ID, &cs.ID, 100, day(2))

	active, err := svc.ActiveShareholders(company.ID, nil)
	testutil.AssertNoError(t, err)
	if len(active) != 2 {
		t.Fatalf("expected treasury and alice active, got %d", len(active))
	}

	t.Run("historical query excludes later buyers", func(t *testing.T) {
		at := day(1)
		active, err := svc.ActiveShareholders(company.ID, &at)
		testutil.AssertNoError(t, err)
		if len(active) != 1 || active[0].ID != cs.ID {
			t.Errorf("expected only the treasury at day 1, got %d entries", len(active))
		}
	})

	t.Run("cached result matches replay", func(t *testing.T) {
		again, err := svc.ActiveShareholders(company.ID, nil)
		testutil.AssertNoError(t, err)
		if len(again) != len(active) {
			t.Errorf("expected cache hit to match, got %d vs %d", len(again), len(active))
		}
	})

	t.Run("invalidation forces a replay", func(t *testing.T) {
		svc.InvalidateProjections(context.Background(), company.ID)
		again, err := svc.ActiveShareholders(company.ID, nil)
		testutil.AssertNoError(t, err)
		if len(again) != 2 {
			t.Errorf("expected 2 active after invalidation, got %d", len(again))
		}
	})
}

func TestTotalVotes(t *testing.T) {
	db, svc, _ := newCompanyTestServices(t)
	company, cs := testutil.CreateTestCompany(t, db)
	if err := db.Model(company).Update("vote_ratio", 10).Error; err != nil {
		t.Fatalf("failed to set vote ratio: %v", err)
	}
	sec := testutil.CreateTestSecurity(t, db, company.ID)
	alice := testutil.CreateTestShareholder(t, db, company.ID)
	bob := testutil.CreateTestShareholder(t, db, company.ID)

	testutil.CreateTestPosition(t, db, company.ID, sec.ID, &cs.ID, nil, 1000, day(1))
	testutil.CreateTestPosition(t, db, company.ID, sec.ID, &alice.ID, &cs.ID, 105, day(2))
	testutil.CreateTestPosition(t, db, company.ID, sec.ID, &bob.ID, &cs.ID, 207, day(2))

	// floor(10.5) + floor(20.7) = 30; treasury votes never count.
	total, err := svc.TotalVotes(company.ID, nil)
	testutil.AssertNoError(t, err)
	if total != 30 {
		t.Errorf("expected 30 votes, got %d", total)
	}
}

func TestTotalVotesInOptions(t *testing.T) {
	db, svc, _ := newCompanyTestServices(t)
	company, cs := testutil.CreateTestCompany(t, db)
	if err := db.Model(company).Update("vote_ratio", 10).Error; err != nil {
		t.Fatalf("failed to set vote ratio: %v", err)
	}
	sec := testutil.CreateTestSecurity(t, db, company.ID)
	plan := testutil.CreateTestOptionPlan(t, db, company.ID, sec.ID, 500, nil)
	alice := testutil.CreateTestShareholder(t, db, company.ID)

	testutil.CreateTestOptionTransaction(t, db, company.ID, plan.ID, &alice.ID, &cs.ID, 205, nil, day(1))

	total, err := svc.TotalVotesInOptions(company.ID, nil)
	testutil.AssertNoError(t, err)
	if total != 20 {
		t.Errorf("expected 20 option votes, got %d", total)
	}
}

func TestRebuildOrderCaches(t *testing.T) {
	db, svc, shareholders := newCompanyTestServices(t)
	company, cs := testutil.CreateTestCompany(t, db)
	sec := testutil.CreateTestSecurity(t, db, company.ID)
	alice := testutil.CreateTestShareholder(t, db, company.ID)

	testutil.CreateTestPosition(t, db, company.ID, sec.ID, &cs.ID, nil, 1000, day(1))
	testutil.CreateTestPosition(t, db, company.ID, sec.ID, &alice.ID, &cs.ID, 100, day(2))

	testutil.AssertNoError(t, svc.RebuildOrderCaches(context.Background()))

	reloaded, err := shareholders.GetShareholderByID(alice.ID)
	testutil.AssertNoError(t, err)
	if reloaded.OrderCache == "" {
		t.Error("expected a populated order cache")
	}
}
