package integration

import (
	"fmt"
	"net/http"
	"testing"
)

func TestSplitFlow(t *testing.T) {
	app := setupApp(t)
	companyID, csID := app.createCompany(t, "Split AG")
	secID := app.createSecurity(t, companyID)
	aliceID := app.createShareholder(t, companyID, "1", "Alice")
	bobID := app.createShareholder(t, companyID, "2", "Bob")

	// 1000 shares: alice 600, bob 400.
	rec := app.request("POST", "/api/v1/companies/"+companyID+"/positions",
		fmt.Sprintf(`{"buyer_id":%q,"security_id":%q,"count":1000,"bought_at":"2024-01-01T12:00:00Z"}`, csID, secID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("mint failed: %d %s", rec.Code, rec.Body.String())
	}
	for holder, count := range map[string]int{aliceID: 600, bobID: 400} {
		rec = app.request("POST", "/api/v1/companies/"+companyID+"/positions",
			fmt.Sprintf(`{"buyer_id":%q,"seller_id":%q,"security_id":%q,"count":%d,"bought_at":"2024-01-02T12:00:00Z"}`, holder, csID, secID, count))
		if rec.Code != http.StatusCreated {
			t.Fatalf("transfer failed: %d %s", rec.Code, rec.Body.String())
		}
	}

	// 7-for-3 split.
	rec = app.request("POST", "/api/v1/companies/"+companyID+"/split",
		fmt.Sprintf(`{"execute_at":"2024-02-01T12:00:00Z","dividend":3,"divisor":7,"security_id":%q}`, secID))
	if rec.Code != http.StatusOK {
		t.Fatalf("split failed: %d %s", rec.Code, rec.Body.String())
	}
	partials := parseJSON(t, rec)["partials"].(map[string]interface{})

	// alice: 600*7/3 = 1400 exactly; bob: 400*7/3 = 933.33.
	if got := app.shareCount(t, aliceID, ""); got != 1400 {
		t.Errorf("expected alice at 1400, got %.0f", got)
	}
	if got := app.shareCount(t, bobID, ""); got != 933 {
		t.Errorf("expected bob at 933, got %.0f", got)
	}
	if _, ok := partials[aliceID]; ok {
		t.Error("expected no remainder for alice")
	}
	if _, ok := partials[bobID]; !ok {
		t.Error("expected a remainder for bob")
	}

	// Company total is the rounded new count: round(1000*7/3) = 2333.
	rec = app.request("GET", "/api/v1/companies/"+companyID, "")
	company := parseJSON(t, rec)["company"].(map[string]interface{})
	if company["share_count"].(float64) != 2333 {
		t.Errorf("expected company at 2333, got %v", company["share_count"])
	}

	// Truncation losses stay in treasury: 2333 - 1400 - 933 = 0.
	if got := app.shareCount(t, csID, ""); got != 0 {
		t.Errorf("expected treasury at 0, got %.0f", got)
	}

	// Balances before the split date are untouched.
	if got := app.shareCount(t, aliceID, "?date=2024-01-15"); got != 600 {
		t.Errorf("expected alice at 600 before the split, got %.0f", got)
	}
}

func TestSplitFlow_FeatureGate(t *testing.T) {
	app := setupApp(t)

	rec := app.request("POST", "/api/v1/companies",
		`{"name":"Gated AG","country":"CH","operator_email":"ops@test.com","plan":"startup"}`)
	companyID := parseJSON(t, rec)["company"].(map[string]interface{})["id"].(string)
	secID := app.createSecurity(t, companyID)

	rec = app.request("POST", "/api/v1/companies/"+companyID+"/split",
		fmt.Sprintf(`{"execute_at":"2024-02-01T12:00:00Z","dividend":1,"divisor":2,"security_id":%q}`, secID))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on startup plan, got %d: %s", rec.Code, rec.Body.String())
	}
	errBody := parseJSON(t, rec)["error"].(map[string]interface{})
	if errBody["code"].(string) != "FEATURE_DISABLED" {
		t.Errorf("expected FEATURE_DISABLED, got %v", errBody["code"])
	}
}
