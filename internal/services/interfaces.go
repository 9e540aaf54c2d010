package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"captable/internal/models"
	"captable/internal/pagination"
	"captable/internal/plans"
	"captable/internal/segments"
)

// BalanceQuery holds the filters of a share-count derivation. A nil Date
// means no upper bound (all history); an empty SecurityID means all
// securities of the company.
type BalanceQuery struct {
	Date       *time.Time
	SecurityID string

	// OnlySellable excludes bought positions whose certificate sits
	// un-invalidated in the depot.
	OnlySellable bool

	// ExpiredVesting keeps only bought positions whose vesting window has
	// elapsed. Evaluated against real current time, deliberately even
	// when Date is historical.
	ExpiredVesting bool

	// WithoutVesting keeps only bought positions that never had vesting.
	WithoutVesting bool
}

// OwnershipCheck is the result of comparing requested segments against a
// shareholder's current holdings.
type OwnershipCheck struct {
	Owned bool `json:"owned"`
	// Failed lists the requested numbers not currently owned, deflated.
	Failed segments.List `json:"failed"`
	// CurrentlyOwned lists everything the shareholder owns right now.
	CurrentlyOwned segments.List `json:"currently_owned"`
}

// CreateShareholderParams holds the attributes of a new register entry.
type CreateShareholderParams struct {
	Number     string
	Name       string
	Email      string
	LegalType  models.LegalType
	Birthday   *time.Time
	Street     string
	City       string
	PostalCode string
	Country    string
}

// ShareholderServicer covers register entries and every derived balance.
type ShareholderServicer interface {
	CreateShareholder(companyID string, params CreateShareholderParams) (*models.Shareholder, error)
	GetShareholderByID(id string) (*models.Shareholder, error)
	GetCompanyShareholders(companyID string, page pagination.PageRequest) (*pagination.PageResponse[models.Shareholder], error)
	IsCompanyShareholder(sh *models.Shareholder) (bool, error)

	ShareCount(sh *models.Shareholder, q BalanceQuery) (int64, error)
	ShareCountSellable(sh *models.Shareholder, date *time.Time, securityID string) (int64, error)
	OptionsCount(sh *models.Shareholder, date *time.Time, securityID string) (int64, error)

	CurrentSegments(sh *models.Shareholder, securityID string, date *time.Time) (segments.List, error)
	CurrentOptionsSegments(sh *models.Shareholder, securityID, optionPlanID string, date *time.Time) (segments.List, error)
	OwnsSegments(sh *models.Shareholder, requested segments.List, securityID string) (*OwnershipCheck, error)
	OwnsOptionsSegments(sh *models.Shareholder, requested segments.List, securityID string) (*OwnershipCheck, error)

	CumulatedFaceValue(sh *models.Shareholder, securityID string, date *time.Time) (decimal.Decimal, bool, error)
	VoteCount(sh *models.Shareholder, date *time.Time, securityID string) (int64, error)
	VotePercent(sh *models.Shareholder, date *time.Time) (float64, bool, error)
	SharePercent(sh *models.Shareholder, date *time.Time, securityID string) (float64, bool, error)
	ShareValue(sh *models.Shareholder, date *time.Time, securityID string) (decimal.Decimal, bool, error)

	RebuildOrderCache(sh *models.Shareholder) error
}

// CompanyServicer covers the aggregate root and company-wide derivations.
type CompanyServicer interface {
	GetCompanyByID(id string) (*models.Company, error)
	CreateCompany(name, country, operatorEmail, plan string) (*models.Company, error)
	CreateSecurity(companyID string, sec *models.Security) (*models.Security, error)
	GetSecurityByID(id string) (*models.Security, error)

	CompanyShareholder(companyID string) (*models.Shareholder, error)
	ActiveShareholders(companyID string, at *time.Time) ([]models.Shareholder, error)
	TotalVotes(companyID string, date *time.Time) (int64, error)
	TotalVotesInOptions(companyID string, date *time.Time) (int64, error)

	InvalidateProjections(ctx context.Context, companyID string)
	RebuildOrderCaches(ctx context.Context) error
}

// CreatePositionParams holds the attributes of a new draft position.
type CreatePositionParams struct {
	CompanyID      string
	BuyerID        *string
	SellerID       *string
	SecurityID     string
	Count          int64
	BoughtAt       time.Time
	Value          decimal.NullDecimal
	NumberSegments segments.List
	CertificateID  *string
	VestingMonths  *int
	Comment        string
}

// PositionFilter narrows position listings.
type PositionFilter struct {
	SecurityID    string
	ShareholderID string
	FromDate      *time.Time
	ToDate        *time.Time
}

// PositionServicer is the transfer API over the append-only position log.
type PositionServicer interface {
	CreatePosition(params CreatePositionParams) (*models.Position, error)
	ConfirmPosition(id string) (*models.Position, error)
	DeletePosition(id string) error
	InvalidateCertificate(positionID string) (*models.Position, error)
	GetPositionByID(id string) (*models.Position, error)
	GetCompanyPositions(companyID string, page pagination.PageRequest, filter PositionFilter) (*pagination.PageResponse[models.Position], error)
}

// CreateOptionTransactionParams holds the attributes of a new draft
// option transaction.
type CreateOptionTransactionParams struct {
	CompanyID      string
	OptionPlanID   string
	BuyerID        *string
	SellerID       *string
	Count          int64
	BoughtAt       time.Time
	NumberSegments segments.List
	CertificateID  *string
	VestingMonths  *int
	Comment        string
}

// OptionServicer covers option plans and their transaction log.
type OptionServicer interface {
	CreateOptionPlan(companyID string, plan *models.OptionPlan) (*models.OptionPlan, error)
	GetOptionPlanByID(id string) (*models.OptionPlan, error)
	CreateOptionTransaction(params CreateOptionTransactionParams) (*models.OptionTransaction, error)
	ConfirmOptionTransaction(id string) (*models.OptionTransaction, error)
	DeleteOptionTransaction(id string) error
}

// SplitParams describes a share split effecting the ratio Divisor/Dividend.
type SplitParams struct {
	ExecuteAt  time.Time
	Dividend   int64
	Divisor    int64
	SecurityID string
	Comment    string
}

// SplitServicer executes share splits atomically.
type SplitServicer interface {
	// SplitShares rewrites effective ownership for every active
	// shareholder and returns the fractional remainders per shareholder.
	SplitShares(companyID string, params SplitParams) (map[string]float64, error)
}

// GafiResult is the outcome of the read-only AML completeness check. It
// never raises; missing data is reported, not thrown.
type GafiResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// ValidationServicer gates writes against the billing plan and runs the
// GAFI completeness check.
type ValidationServicer interface {
	// ValidatePlan checks whether the company currently fits the named
	// plan (already-over semantics, used for downgrade checks).
	ValidatePlan(company *models.Company, planName string) (bool, []error)

	// ValidateShareholderCreate and ValidateSecurityCreate gate the next
	// create (count+1 semantics). They fail closed.
	ValidateShareholderCreate(company *models.Company) error
	ValidateSecurityCreate(company *models.Company) error

	HasFeatureEnabled(company *models.Company, feature plans.Feature) (bool, error)
	RequireFeature(company *models.Company, feature plans.Feature) error

	GafiValidate(sh *models.Shareholder) (*GafiResult, error)
}
