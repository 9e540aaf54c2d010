package services

import (
	"fmt"

	"gorm.io/gorm"

	apperrors "captable/internal/errors"
	"captable/internal/models"
	"captable/internal/plans"
)

// ValidatorKey names one plan-limit rule. The registry below maps every
// key to its check so downgrade validation can enumerate them.
type ValidatorKey string

const (
	ValidatorShareholderCount     ValidatorKey = "shareholder_count"
	ValidatorSecurityCount        ValidatorKey = "security_count"
	ValidatorShareholderCreateMax ValidatorKey = "shareholder_create_max"
	ValidatorSecurityCreateMax    ValidatorKey = "security_create_max"
)

type validationService struct {
	db      *gorm.DB
	catalog *plans.Catalog

	// validators holds the already-over checks used by ValidatePlan. The
	// create-max checks are not in here: they gate writes, not downgrades.
	validators map[ValidatorKey]func(company *models.Company, plan plans.Plan) error
}

// NewValidationService creates a new ValidationServicer backed by the
// given plan catalog.
func NewValidationService(db *gorm.DB, catalog *plans.Catalog) ValidationServicer {
	s := &validationService{db: db, catalog: catalog}
	s.validators = map[ValidatorKey]func(company *models.Company, plan plans.Plan) error{
		ValidatorShareholderCount: s.validateShareholderCount,
		ValidatorSecurityCount:    s.validateSecurityCount,
	}
	return s
}

// ValidatePlan checks whether the company currently fits the named plan.
// It uses already-over semantics (count > max, not count+1): a company
// sitting exactly at a limit still fits, it just cannot grow.
func (s *validationService) ValidatePlan(company *models.Company, planName string) (bool, []error) {
	plan, ok := s.catalog.Get(planName)
	if !ok {
		return false, []error{apperrors.ErrPlanNotFound}
	}

	var failures []error
	for _, validate := range s.validators {
		if err := validate(company, plan); err != nil {
			failures = append(failures, err)
		}
	}
	return len(failures) == 0, failures
}

func (s *validationService) validateShareholderCount(company *models.Company, plan plans.Plan) error {
	if plan.MaxShareholders == 0 {
		return nil
	}
	count, err := s.shareholderCount(company.ID)
	if err != nil {
		return err
	}
	if count > int64(plan.MaxShareholders) {
		return apperrors.WithDetails(apperrors.ErrPlanShareholderLimit,
			fmt.Sprintf("Plan %s allows %d shareholders, company has %d", plan.Name, plan.MaxShareholders, count),
			map[string]any{"max": plan.MaxShareholders, "count": count})
	}
	return nil
}

func (s *validationService) validateSecurityCount(company *models.Company, plan plans.Plan) error {
	if plan.MaxSecurities == 0 {
		return nil
	}
	count, err := s.securityCount(company.ID)
	if err != nil {
		return err
	}
	if count > int64(plan.MaxSecurities) {
		return apperrors.WithDetails(apperrors.ErrPlanSecurityLimit,
			fmt.Sprintf("Plan %s allows %d securities, company has %d", plan.Name, plan.MaxSecurities, count),
			map[string]any{"max": plan.MaxSecurities, "count": count})
	}
	return nil
}

// ValidateShareholderCreate gates the next register entry, create-max
// semantics: the entry about to be created counts against the limit.
// Unknown plans fail closed.
func (s *validationService) ValidateShareholderCreate(company *models.Company) error {
	plan, ok := s.catalog.Get(company.Plan)
	if !ok {
		return apperrors.ErrPlanNotFound
	}
	if plan.MaxShareholders == 0 {
		return nil
	}
	count, err := s.shareholderCount(company.ID)
	if err != nil {
		return err
	}
	if count+1 > int64(plan.MaxShareholders) {
		return apperrors.WithDetails(apperrors.ErrPlanShareholderCreateLimit,
			fmt.Sprintf("Plan %s allows at most %d shareholders", plan.Name, plan.MaxShareholders),
			map[string]any{"max": plan.MaxShareholders, "count": count})
	}
	return nil
}

// ValidateSecurityCreate gates the next security class, create-max
// semantics.
func (s *validationService) ValidateSecurityCreate(company *models.Company) error {
	plan, ok := s.catalog.Get(company.Plan)
	if !ok {
		return apperrors.ErrPlanNotFound
	}
	if plan.MaxSecurities == 0 {
		return nil
	}
	count, err := s.securityCount(company.ID)
	if err != nil {
		return err
	}
	if count+1 > int64(plan.MaxSecurities) {
		return apperrors.WithDetails(apperrors.ErrPlanSecurityCreateLimit,
			fmt.Sprintf("Plan %s allows at most %d securities", plan.Name, plan.MaxSecurities),
			map[string]any{"max": plan.MaxSecurities, "count": count})
	}
	return nil
}

// HasFeatureEnabled reports whether the company's plan carries a feature.
// An unknown plan is an error, not false.
func (s *validationService) HasFeatureEnabled(company *models.Company, feature plans.Feature) (bool, error) {
	plan, ok := s.catalog.Get(company.Plan)
	if !ok {
		return false, apperrors.ErrPlanNotFound
	}
	return plan.HasFeature(feature), nil
}

// RequireFeature fails closed: disabled and unknown both refuse.
func (s *validationService) RequireFeature(company *models.Company, feature plans.Feature) error {
	enabled, err := s.HasFeatureEnabled(company, feature)
	if err != nil {
		return err
	}
	if !enabled {
		return apperrors.WithDetails(apperrors.ErrFeatureDisabled,
			fmt.Sprintf("Feature %s is not available on plan %s", feature, company.Plan),
			map[string]any{"feature": string(feature), "plan": company.Plan})
	}
	return nil
}

// GafiValidate runs the AML completeness check on one register entry.
// It only applies to Swiss companies; everywhere else the entry is
// trivially valid. Read-only: missing data is reported, never raised.
func (s *validationService) GafiValidate(sh *models.Shareholder) (*GafiResult, error) {
	var company models.Company
	if err := s.db.First(&company, "id = ?", sh.CompanyID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if company.Country != "CH" {
		return &GafiResult{IsValid: true, Errors: []string{}}, nil
	}

	var failures []string
	if sh.Name == "" {
		failures = append(failures, "name is missing")
	}
	if sh.Country == "" {
		failures = append(failures, "country is missing")
	}
	if sh.LegalType == "" {
		failures = append(failures, "legal type is missing")
	}
	if sh.LegalType == models.LegalTypeHuman && sh.Birthday == nil {
		failures = append(failures, "birthday is missing")
	}
	if sh.Street == "" {
		failures = append(failures, "street is missing")
	}
	if sh.City == "" {
		failures = append(failures, "city is missing")
	}
	if sh.PostalCode == "" {
		failures = append(failures, "postal code is missing")
	}

	if failures == nil {
		failures = []string{}
	}
	return &GafiResult{IsValid: len(failures) == 0, Errors: failures}, nil
}

func (s *validationService) shareholderCount(companyID string) (int64, error) {
	var count int64
	if err := s.db.Model(&models.Shareholder{}).
		Where("company_id = ?", companyID).
		Count(&count).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count, nil
}

func (s *validationService) securityCount(companyID string) (int64, error) {
	var count int64
	if err := s.db.Model(&models.Security{}).
		Where("company_id = ?", companyID).
		Count(&count).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count, nil
}
