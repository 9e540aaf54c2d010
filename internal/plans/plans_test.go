package plans

import "testing"

func TestDefaultCatalog(t *testing.T) {
	catalog := Default()

	t.Run("known keys resolve", func(t *testing.T) {
		for _, key := range []string{PlanStartup, PlanProfessional, PlanEnterprise} {
			if _, ok := catalog.Get(key); !ok {
				t.Errorf("expected plan %q in the default catalog", key)
			}
		}
	})

	t.Run("unknown key misses", func(t *testing.T) {
		if _, ok := catalog.Get("platinum"); ok {
			t.Error("expected a miss for an unknown plan")
		}
	})

	t.Run("feature ladder", func(t *testing.T) {
		startup, _ := catalog.Get(PlanStartup)
		professional, _ := catalog.Get(PlanProfessional)
		enterprise, _ := catalog.Get(PlanEnterprise)

		if startup.HasFeature(FeatureSplits) {
			t.Error("startup must not have splits")
		}
		if !professional.HasFeature(FeatureSplits) || professional.HasFeature(FeatureOptionPlans) {
			t.Error("professional has splits but not option plans")
		}
		if !enterprise.HasFeature(FeatureOptionPlans) || !enterprise.HasFeature(FeatureGafiChecks) {
			t.Error("enterprise has everything")
		}
	})

	t.Run("zero limits mean unlimited", func(t *testing.T) {
		enterprise, _ := catalog.Get(PlanEnterprise)
		if enterprise.MaxShareholders != 0 || enterprise.MaxSecurities != 0 {
			t.Errorf("expected unlimited enterprise, got %d/%d",
				enterprise.MaxShareholders, enterprise.MaxSecurities)
		}
	})
}
