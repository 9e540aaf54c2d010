package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"captable/internal/cache"
	"captable/internal/handlers"
	"captable/internal/logger"
	"captable/internal/middleware"
	"captable/internal/models"
	"captable/internal/notify"
	"captable/internal/plans"
	"captable/internal/services"
	"captable/internal/validator"
)

const testAPIKey = "test-operator-key"

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB     *gorm.DB
	Router *gin.Engine
}

// dbCounter ensures each test gets a unique in-memory database.
var dbCounter atomic.Int64

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupIsolatedDB creates an isolated in-memory SQLite database for a single test.
func setupIsolatedDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	allModels := []interface{}{
		&models.Company{},
		&models.Security{},
		&models.Shareholder{},
		&models.Position{},
		&models.OptionPlan{},
		&models.OptionTransaction{},
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// setupApp creates a full application stack backed by an isolated in-memory SQLite.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := setupIsolatedDB(t)
	store := cache.NewMemory()
	catalog := plans.Default()

	// Services
	validationService := services.NewValidationService(db, catalog)
	shareholderService := services.NewShareholderService(db, validationService, store)
	companyService := services.NewCompanyService(db, shareholderService, validationService, store, time.Minute)
	positionService := services.NewPositionService(db, shareholderService, validationService, store)
	optionService := services.NewOptionService(db, shareholderService, validationService, store)
	splitService := services.NewSplitService(db, shareholderService, validationService, notify.NewLogNotifier(), store)

	// Handlers
	companyHandler := handlers.NewCompanyHandler(companyService, splitService, validationService)
	shareholderHandler := handlers.NewShareholderHandler(shareholderService, validationService)
	positionHandler := handlers.NewPositionHandler(positionService)
	optionHandler := handlers.NewOptionHandler(optionService)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")
	v1.Use(middleware.OperatorAuthMiddleware(testAPIKey))

	companies := v1.Group("/companies")
	companies.POST("", companyHandler.CreateCompany)
	companies.GET("/:id", companyHandler.GetCompanyByID)
	companies.POST("/:id/securities", companyHandler.CreateSecurity)
	companies.GET("/:id/active-shareholders", companyHandler.GetActiveShareholders)
	companies.GET("/:id/total-votes", companyHandler.GetTotalVotes)
	companies.POST("/:id/split", companyHandler.SplitShares)
	companies.POST("/:id/plan/validate", companyHandler.ValidatePlan)
	companies.POST("/:id/shareholders", shareholderHandler.CreateShareholder)
	companies.GET("/:id/shareholders", shareholderHandler.GetCompanyShareholders)
	companies.POST("/:id/positions", positionHandler.CreatePosition)
	companies.GET("/:id/positions", positionHandler.GetCompanyPositions)
	companies.POST("/:id/option-plans", optionHandler.CreateOptionPlan)
	companies.POST("/:id/option-transactions", optionHandler.CreateOptionTransaction)

	v1.GET("/securities/:id", companyHandler.GetSecurityByID)

	shareholders := v1.Group("/shareholders")
	shareholders.GET("/:id", shareholderHandler.GetShareholderByID)
	shareholders.GET("/:id/balance", shareholderHandler.GetBalance)
	shareholders.GET("/:id/segments", shareholderHandler.GetSegments)
	shareholders.GET("/:id/option-segments", shareholderHandler.GetOptionSegments)
	shareholders.POST("/:id/owns-segments", shareholderHandler.CheckOwnsSegments)
	shareholders.GET("/:id/gafi", shareholderHandler.GafiValidate)

	positions := v1.Group("/positions")
	positions.GET("/:id", positionHandler.GetPositionByID)
	positions.POST("/:id/confirm", positionHandler.ConfirmPosition)
	positions.DELETE("/:id", positionHandler.DeletePosition)
	positions.POST("/:id/invalidate-certificate", positionHandler.InvalidateCertificate)

	optionPlans := v1.Group("/option-plans")
	optionPlans.GET("/:id", optionHandler.GetOptionPlanByID)
	optionTxs := v1.Group("/option-transactions")
	optionTxs.POST("/:id/confirm", optionHandler.ConfirmOptionTransaction)
	optionTxs.DELETE("/:id", optionHandler.DeleteOptionTransaction)

	return &testApp{DB: db, Router: router}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// createCompany creates an enterprise-plan company and returns its ID and
// the company shareholder ID.
func (app *testApp) createCompany(t *testing.T, name string) (companyID, csID string) {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"country":"CH","operator_email":"ops@test.com","plan":"enterprise"}`, name)
	rec := app.request("POST", "/api/v1/companies", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create company failed: %d %s", rec.Code, rec.Body.String())
	}
	company := parseJSON(t, rec)["company"].(map[string]interface{})
	companyID = company["id"].(string)

	rec = app.request("GET", "/api/v1/companies/"+companyID+"/shareholders", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list shareholders failed: %d %s", rec.Code, rec.Body.String())
	}
	data := parseJSON(t, rec)["data"].([]interface{})
	if len(data) != 1 {
		t.Fatalf("expected the company shareholder, got %d entries", len(data))
	}
	csID = data[0].(map[string]interface{})["id"].(string)
	return companyID, csID
}

// createSecurity creates a plain security with face value 1 and returns its ID.
func (app *testApp) createSecurity(t *testing.T, companyID string) string {
	t.Helper()
	rec := app.request("POST", "/api/v1/companies/"+companyID+"/securities",
		`{"kind":"common","face_value":"1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create security failed: %d %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["security"].(map[string]interface{})["id"].(string)
}

// createShareholder creates a register entry and returns its ID.
func (app *testApp) createShareholder(t *testing.T, companyID, number, name string) string {
	t.Helper()
	body := fmt.Sprintf(`{"number":%q,"name":%q}`, number, name)
	rec := app.request("POST", "/api/v1/companies/"+companyID+"/shareholders", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create shareholder failed: %d %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["shareholder"].(map[string]interface{})["id"].(string)
}

// shareCount reads the derived share count of a shareholder.
func (app *testApp) shareCount(t *testing.T, shareholderID, query string) float64 {
	t.Helper()
	rec := app.request("GET", "/api/v1/shareholders/"+shareholderID+"/balance"+query, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("balance failed: %d %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["share_count"].(float64)
}
