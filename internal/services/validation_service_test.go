package services

import (
	"testing"
	"time"

	"captable/internal/models"
	"captable/internal/plans"
	"captable/internal/testutil"
)

func newValidationTestServices(t *testing.T) (testEnv, ValidationServicer) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	validation := NewValidationService(db, plans.Default())
	company, cs := testutil.CreateTestCompany(t, db)
	return testEnv{db: db, company: company, cs: cs}, validation
}

func TestValidatePlan(t *testing.T) {
	env, svc := newValidationTestServices(t)

	t.Run("unknown plan", func(t *testing.T) {
		ok, failures := svc.ValidatePlan(env.company, "platinum")
		if ok || len(failures) != 1 {
			t.Fatalf("expected one failure for an unknown plan, got ok=%v failures=%v", ok, failures)
		}
		testutil.AssertAppError(t, failures[0], "CONFIGURATION")
	})

	t.Run("company at the limit still fits", func(t *testing.T) {
		// Startup allows 20; fill exactly to the limit.
		for i := 1; i < 20; i++ {
			testutil.CreateTestShareholder(t, env.db, env.company.ID)
		}
		ok, failures := svc.ValidatePlan(env.company, plans.PlanStartup)
		if !ok {
			t.Errorf("expected the company to fit at exactly the limit, failures: %v", failures)
		}
	})

	t.Run("company over the limit does not fit", func(t *testing.T) {
		testutil.CreateTestShareholder(t, env.db, env.company.ID)
		ok, failures := svc.ValidatePlan(env.company, plans.PlanStartup)
		if ok {
			t.Fatal("expected the company to exceed the startup plan")
		}
		if len(failures) != 1 {
			t.Fatalf("expected one failure, got %v", failures)
		}
		testutil.AssertAppError(t, failures[0], "PLAN_SHAREHOLDER_LIMIT")
	})
}

func TestCreateGates(t *testing.T) {
	env, svc := newValidationTestServices(t)
	if err := env.db.Model(env.company).Update("plan", plans.PlanStartup).Error; err != nil {
		t.Fatalf("failed to set plan: %v", err)
	}
	env.company.Plan = plans.PlanStartup

	t.Run("security create gate", func(t *testing.T) {
		// Startup allows one security.
		testutil.AssertNoError(t, svc.ValidateSecurityCreate(env.company))
		testutil.CreateTestSecurity(t, env.db, env.company.ID)
		err := svc.ValidateSecurityCreate(env.company)
		testutil.AssertAppError(t, err, "PLAN_SECURITY_CREATE_LIMIT")
	})

	t.Run("unlimited plan never gates", func(t *testing.T) {
		enterprise := *env.company
		enterprise.Plan = plans.PlanEnterprise
		testutil.AssertNoError(t, svc.ValidateSecurityCreate(&enterprise))
		testutil.AssertNoError(t, svc.ValidateShareholderCreate(&enterprise))
	})
}

func TestFeatureGates(t *testing.T) {
	env, svc := newValidationTestServices(t)

	t.Run("enterprise has everything", func(t *testing.T) {
		enabled, err := svc.HasFeatureEnabled(env.company, plans.FeatureOptionPlans)
		testutil.AssertNoError(t, err)
		if !enabled {
			t.Error("expected option plans on enterprise")
		}
	})

	t.Run("startup has nothing", func(t *testing.T) {
		startup := *env.company
		startup.Plan = plans.PlanStartup
		err := svc.RequireFeature(&startup, plans.FeatureSplits)
		testutil.AssertAppError(t, err, "FEATURE_DISABLED")
	})

	t.Run("unknown plan fails closed", func(t *testing.T) {
		broken := *env.company
		broken.Plan = "platinum"
		err := svc.RequireFeature(&broken, plans.FeatureSplits)
		testutil.AssertAppError(t, err, "CONFIGURATION")
	})
}

func TestGafiValidate(t *testing.T) {
	env, svc := newValidationTestServices(t)

	t.Run("non-swiss company is trivially valid", func(t *testing.T) {
		other, _ := testutil.CreateTestCompany(t, env.db)
		if err := env.db.Model(other).Update("country", "DE").Error; err != nil {
			t.Fatalf("failed to set country: %v", err)
		}
		sh := testutil.CreateTestShareholder(t, env.db, other.ID)
		result, err := svc.GafiValidate(sh)
		testutil.AssertNoError(t, err)
		if !result.IsValid {
			t.Errorf("expected valid outside CH, errors: %v", result.Errors)
		}
	})

	t.Run("incomplete swiss entry reports every gap", func(t *testing.T) {
		sh := testutil.CreateTestShareholder(t, env.db, env.company.ID)
		result, err := svc.GafiValidate(sh)
		testutil.AssertNoError(t, err)
		if result.IsValid {
			t.Fatal("expected an incomplete entry to fail")
		}
		// Missing: birthday, street, city, postal code, country.
		if len(result.Errors) != 5 {
			t.Errorf("expected 5 gaps, got %v", result.Errors)
		}
	})

	t.Run("complete swiss entry passes", func(t *testing.T) {
		birthday := time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC)
		sh := &models.Shareholder{
			CompanyID:  env.company.ID,
			Number:     nextNumber(),
			Name:       "Complete Holder",
			LegalType:  models.LegalTypeHuman,
			Birthday:   &birthday,
			Street:     "Bahnhofstrasse 1",
			City:       "Zurich",
			PostalCode: "8001",
			Country:    "CH",
		}
		if err := env.db.Create(sh).Error; err != nil {
			t.Fatalf("failed to create shareholder: %v", err)
		}
		result, err := svc.GafiValidate(sh)
		testutil.AssertNoError(t, err)
		if !result.IsValid {
			t.Errorf("expected valid, errors: %v", result.Errors)
		}
	})

	t.Run("legal entities need no birthday", func(t *testing.T) {
		sh := &models.Shareholder{
			CompanyID:  env.company.ID,
			Number:     nextNumber(),
			Name:       "Holding AG",
			LegalType:  models.LegalTypeCompany,
			Street:     "Bahnhofstrasse 2",
			City:       "Zurich",
			PostalCode: "8001",
			Country:    "CH",
		}
		if err := env.db.Create(sh).Error; err != nil {
			t.Fatalf("failed to create shareholder: %v", err)
		}
		result, err := svc.GafiValidate(sh)
		testutil.AssertNoError(t, err)
		if !result.IsValid {
			t.Errorf("expected valid, errors: %v", result.Errors)
		}
	})
}
