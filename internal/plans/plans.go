// Package plans holds the billing plan catalog. The catalog is an
// immutable configuration object loaded once at startup and handed to the
// validators; nothing mutates it afterwards.
package plans

// Feature is a gated capability of a billing plan.
type Feature string

const (
	FeatureNumberedShares Feature = "numbered_shares"
	FeatureOptionPlans    Feature = "option_plans"
	FeatureSplits         Feature = "splits"
	FeatureVesting        Feature = "vesting"
	FeatureGafiChecks     Feature = "gafi_checks"
)

// Built-in plan keys.
const (
	PlanStartup      = "startup"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// Plan describes one billing plan. Zero limits mean unlimited.
type Plan struct {
	Key             string
	Name            string
	MaxShareholders int
	MaxSecurities   int
	features        map[Feature]struct{}
}

// HasFeature reports whether the plan enables the given feature.
func (p Plan) HasFeature(f Feature) bool {
	_, ok := p.features[f]
	return ok
}

// Catalog is the read-only set of known plans.
type Catalog struct {
	plans map[string]Plan
}

// Get looks up a plan by key.
func (c *Catalog) Get(key string) (Plan, bool) {
	p, ok := c.plans[key]
	return p, ok
}

// Keys returns the known plan keys.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.plans))
	for k := range c.plans {
		keys = append(keys, k)
	}
	return keys
}

func newPlan(key, name string, maxShareholders, maxSecurities int, feats ...Feature) Plan {
	set := make(map[Feature]struct{}, len(feats))
	for _, f := range feats {
		set[f] = struct{}{}
	}
	return Plan{
		Key:             key,
		Name:            name,
		MaxShareholders: maxShareholders,
		MaxSecurities:   maxSecurities,
		features:        set,
	}
}

// Default returns the built-in plan catalog.
func Default() *Catalog {
	catalog := map[string]Plan{}
	for _, p := range []Plan{
		newPlan(PlanStartup, "Startup", 20, 1),
		newPlan(PlanProfessional, "Professional", 50, 3,
			FeatureNumberedShares, FeatureVesting, FeatureSplits),
		newPlan(PlanEnterprise, "Enterprise", 0, 0,
			FeatureNumberedShares, FeatureVesting, FeatureSplits,
			FeatureOptionPlans, FeatureGafiChecks),
	} {
		catalog[p.Key] = p
	}
	return &Catalog{plans: catalog}
}
