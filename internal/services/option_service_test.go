package services

import (
	"testing"

	"captable/internal/models"
	"captable/internal/plans"
	"captable/internal/segments"
	"captable/internal/testutil"
)

func newOptionTestServices(t *testing.T) (testEnv, OptionServicer) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	validation := NewValidationService(db, plans.Default())
	shareholders := NewShareholderService(db, validation, newNopStore())
	options := NewOptionService(db, shareholders, validation, newNopStore())

	company, cs := testutil.CreateTestCompany(t, db)
	return testEnv{db: db, company: company, cs: cs, shareholders: shareholders}, options
}

func TestCreateOptionPlan(t *testing.T) {
	env, svc := newOptionTestServices(t)
	sec := testutil.CreateTestSecurity(t, env.db, env.company.ID)

	t.Run("feature gate fails closed", func(t *testing.T) {
		if err := env.db.Model(env.company).Update("plan", plans.PlanProfessional).Error; err != nil {
			t.Fatalf("failed to downgrade plan: %v", err)
		}
		_, err := svc.CreateOptionPlan(env.company.ID, &models.OptionPlan{
			SecurityID: sec.ID, Title: "ESOP", Count: 100,
		})
		testutil.AssertAppError(t, err, "FEATURE_DISABLED")
		if err := env.db.Model(env.company).Update("plan", plans.PlanEnterprise).Error; err != nil {
			t.Fatalf("failed to restore plan: %v", err)
		}
	})

	t.Run("creates plan on enterprise", func(t *testing.T) {
		plan, err := svc.CreateOptionPlan(env.company.ID, &models.OptionPlan{
			SecurityID: sec.ID, Title: "ESOP", Count: 100,
		})
		testutil.AssertNoError(t, err)
		if plan.CompanyID != env.company.ID {
			t.Errorf("expected plan bound to company, got %s", plan.CompanyID)
		}
	})

	t.Run("tracked security requires a matching pool", func(t *testing.T) {
		tracked := testutil.CreateTestTrackedSecurity(t, env.db, env.company.ID,
			segments.List{segments.Range(1, 500)})
		_, err := svc.CreateOptionPlan(env.company.ID, &models.OptionPlan{
			SecurityID: tracked.ID, Title: "ESOP", Count: 100,
			NumberSegments: segments.List{segments.Range(1, 50)},
		})
		testutil.AssertAppError(t, err, "INVALID_SEGMENTS")
	})
}

func TestCreateOptionTransactionCeiling(t *testing.T) {
	env, svc := newOptionTestServices(t)
	sec := testutil.CreateTestSecurity(t, env.db, env.company.ID)
	plan := testutil.CreateTestOptionPlan(t, env.db, env.company.ID, sec.ID, 100, nil)
	alice := testutil.CreateTestShareholder(t, env.db, env.company.ID)

	_, err := svc.CreateOptionTransaction(CreateOptionTransactionParams{
		CompanyID: env.company.ID, OptionPlanID: plan.ID,
		BuyerID: &alice.ID, SellerID: &env.cs.ID,
		Count: 80, BoughtAt: day(1),
	})
	testutil.AssertNoError(t, err)

	t.Run("grant over the ceiling is refused", func(t *testing.T) {
		_, err := svc.CreateOptionTransaction(CreateOptionTransactionParams{
			CompanyID: env.company.ID, OptionPlanID: plan.ID,
			BuyerID: &alice.ID, SellerID: &env.cs.ID,
			Count: 30, BoughtAt: day(2),
		})
		testutil.AssertAppError(t, err, "OPTION_PLAN_EXCEEDED")
	})

	t.Run("returns free the pool again", func(t *testing.T) {
		_, err := svc.CreateOptionTransaction(CreateOptionTransactionParams{
			CompanyID: env.company.ID, OptionPlanID: plan.ID,
			BuyerID: &env.cs.ID, SellerID: &alice.ID,
			Count: 30, BoughtAt: day(3),
		})
		testutil.AssertNoError(t, err)

		_, err = svc.CreateOptionTransaction(CreateOptionTransactionParams{
			CompanyID: env.company.ID, OptionPlanID: plan.ID,
			BuyerID: &alice.ID, SellerID: &env.cs.ID,
			Count: 30, BoughtAt: day(4),
		})
		testutil.AssertNoError(t, err)
	})
}

func TestCreateOptionTransactionSegments(t *testing.T) {
	env, svc := newOptionTestServices(t)
	sec := testutil.CreateTestTrackedSecurity(t, env.db, env.company.ID,
		segments.List{segments.Range(1, 2000)})
	plan := testutil.CreateTestOptionPlan(t, env.db, env.company.ID, sec.ID, 1001,
		segments.List{segments.Range(1000, 2000)})
	alice := testutil.CreateTestShareholder(t, env.db, env.company.ID)
	bob := testutil.CreateTestShareholder(t, env.db, env.company.ID)

	t.Run("segments outside the pool are refused", func(t *testing.T) {
		_, err := svc.CreateOptionTransaction(CreateOptionTransactionParams{
			CompanyID: env.company.ID, OptionPlanID: plan.ID,
			BuyerID: &alice.ID, SellerID: &env.cs.ID,
			Count: 10, BoughtAt: day(1),
			NumberSegments: segments.List{segments.Range(500, 509)},
		})
		testutil.AssertAppError(t, err, "INVALID_SEGMENTS")
	})

	t.Run("grant inside the pool passes", func(t *testing.T) {
		_, err := svc.CreateOptionTransaction(CreateOptionTransactionParams{
			CompanyID: env.company.ID, OptionPlanID: plan.ID,
			BuyerID: &alice.ID, SellerID: &env.cs.ID,
			Count: 201, BoughtAt: day(1),
			NumberSegments: segments.List{segments.Range(1000, 1200)},
		})
		testutil.AssertNoError(t, err)
	})

	t.Run("transfer of unheld option numbers is refused", func(t *testing.T) {
		_, err := svc.CreateOptionTransaction(CreateOptionTransactionParams{
			CompanyID: env.company.ID, OptionPlanID: plan.ID,
			BuyerID: &bob.ID, SellerID: &alice.ID,
			Count: 1, BoughtAt: day(2),
			NumberSegments: segments.List{segments.Single(1666)},
		})
		testutil.AssertAppError(t, err, "OWNERSHIP")
	})

	t.Run("transfer of held option numbers passes", func(t *testing.T) {
		_, err := svc.CreateOptionTransaction(CreateOptionTransactionParams{
			CompanyID: env.company.ID, OptionPlanID: plan.ID,
			BuyerID: &bob.ID, SellerID: &alice.ID,
			Count: 50, BoughtAt: day(2),
			NumberSegments: segments.List{segments.Range(1000, 1049)},
		})
		testutil.AssertNoError(t, err)
	})
}

func TestOptionTransactionDraftLifecycle(t *testing.T) {
	env, svc := newOptionTestServices(t)
	sec := testutil.CreateTestSecurity(t, env.db, env.company.ID)
	plan := testutil.CreateTestOptionPlan(t, env.db, env.company.ID, sec.ID, 100, nil)
	alice := testutil.CreateTestShareholder(t, env.db, env.company.ID)

	tx, err := svc.CreateOptionTransaction(CreateOptionTransactionParams{
		CompanyID: env.company.ID, OptionPlanID: plan.ID,
		BuyerID: &alice.ID, SellerID: &env.cs.ID,
		Count: 10, BoughtAt: day(1),
	})
	testutil.AssertNoError(t, err)
	if !tx.IsDraft {
		t.Error("expected a draft transaction")
	}

	confirmed, err := svc.ConfirmOptionTransaction(tx.ID)
	testutil.AssertNoError(t, err)
	if confirmed.IsDraft {
		t.Error("expected a confirmed transaction")
	}

	err = svc.DeleteOptionTransaction(tx.ID)
	testutil.AssertAppError(t, err, "POSITION_IMMUTABLE")
}
