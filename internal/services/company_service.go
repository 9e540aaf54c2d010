package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"captable/internal/cache"
	apperrors "captable/internal/errors"
	"captable/internal/logger"
	"captable/internal/models"
	"captable/internal/plans"
	"captable/internal/segments"
)

type companyService struct {
	db           *gorm.DB
	shareholders ShareholderServicer
	validation   ValidationServicer
	store        cache.Store
	cacheTTL     time.Duration
}

// NewCompanyService creates a new CompanyServicer.
func NewCompanyService(db *gorm.DB, shareholders ShareholderServicer, validation ValidationServicer, store cache.Store, cacheTTL time.Duration) CompanyServicer {
	return &companyService{
		db:           db,
		shareholders: shareholders,
		validation:   validation,
		store:        store,
		cacheTTL:     cacheTTL,
	}
}

// GetCompanyByID fetches a company.
func (s *companyService) GetCompanyByID(id string) (*models.Company, error) {
	var company models.Company
	if err := s.db.First(&company, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCompanyNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &company, nil
}

// CreateCompany creates a company together with its company shareholder.
// The company shareholder must be the first register entry, so both rows
// go in one transaction.
func (s *companyService) CreateCompany(name, country, operatorEmail, plan string) (*models.Company, error) {
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "company name is required")
	}
	if plan == "" {
		plan = plans.PlanStartup
	}

	company := &models.Company{
		Name:          name,
		Country:       country,
		OperatorEmail: operatorEmail,
		Plan:          plan,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(company).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		cs := &models.Shareholder{
			CompanyID: company.ID,
			Number:    "0",
			Name:      name,
			LegalType: models.LegalTypeCompany,
			Country:   country,
		}
		if err := tx.Create(cs).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return company, nil
}

// CreateSecurity adds a security class, gated by the plan's security
// create limit. Tracked securities get their corpus normalized up front.
func (s *companyService) CreateSecurity(companyID string, sec *models.Security) (*models.Security, error) {
	company, err := s.GetCompanyByID(companyID)
	if err != nil {
		return nil, err
	}
	if err := s.validation.ValidateSecurityCreate(company); err != nil {
		return nil, err
	}
	if sec.TrackNumbers {
		if err := s.validation.RequireFeature(company, plans.FeatureNumberedShares); err != nil {
			return nil, err
		}
		sec.NumberSegments = segments.Normalize(sec.NumberSegments)
		if sec.Count == 0 {
			sec.Count = int64(segments.Count(sec.NumberSegments))
		}
	}

	sec.CompanyID = companyID
	if err := s.db.Create(sec).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return sec, nil
}

// GetSecurityByID fetches one security class.
func (s *companyService) GetSecurityByID(id string) (*models.Security, error) {
	var sec models.Security
	if err := s.db.First(&sec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSecurityNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &sec, nil
}

// CompanyShareholder resolves the treasury entry.
func (s *companyService) CompanyShareholder(companyID string) (*models.Shareholder, error) {
	return companyShareholder(s.db, companyID)
}

// ActiveShareholders returns shareholders with a nonzero share or option
// balance at the given time. The current-time result is served from the
// projection cache; historical queries always replay.
func (s *companyService) ActiveShareholders(companyID string, at *time.Time) ([]models.Shareholder, error) {
	if at == nil {
		if raw, ok := s.store.Get(context.Background(), cacheKeyActiveShareholders+companyID); ok {
			var ids []string
			if err := json.Unmarshal([]byte(raw), &ids); err == nil {
				return s.shareholdersByID(companyID, ids)
			}
			// Corrupt cache entry, fall through to a full replay.
			s.store.Delete(context.Background(), cacheKeyActiveShareholders+companyID)
		}
	}

	var all []models.Shareholder
	if err := s.db.Where("company_id = ?", companyID).
		Order("created_at ASC, id ASC").
		Find(&all).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var active []models.Shareholder
	for i := range all {
		count, err := s.shareholders.ShareCount(&all[i], BalanceQuery{Date: at})
		if err != nil {
			return nil, err
		}
		if count != 0 {
			active = append(active, all[i])
			continue
		}
		options, err := s.shareholders.OptionsCount(&all[i], at, "")
		if err != nil {
			return nil, err
		}
		if options != 0 {
			active = append(active, all[i])
		}
	}

	if at == nil {
		ids := make([]string, len(active))
		for i := range active {
			ids[i] = active[i].ID
		}
		if blob, err := json.Marshal(ids); err == nil {
			s.store.Set(context.Background(), cacheKeyActiveShareholders+companyID, string(blob), s.cacheTTL)
		}
	}

	return active, nil
}

func (s *companyService) shareholdersByID(companyID string, ids []string) ([]models.Shareholder, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var shareholders []models.Shareholder
	if err := s.db.Where("company_id = ? AND id IN ?", companyID, ids).
		Order("created_at ASC, id ASC").
		Find(&shareholders).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return shareholders, nil
}

// TotalVotes sums the votes of all shareholders outside treasury.
func (s *companyService) TotalVotes(companyID string, date *time.Time) (int64, error) {
	cs, err := companyShareholder(s.db, companyID)
	if err != nil {
		return 0, err
	}
	var others []models.Shareholder
	if err := s.db.Where("company_id = ? AND id <> ?", companyID, cs.ID).Find(&others).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var total int64
	for i := range others {
		votes, err := s.shareholders.VoteCount(&others[i], date, "")
		if err != nil {
			return 0, err
		}
		total += votes
	}
	return total, nil
}

// TotalVotesInOptions sums the votes that would exist if every granted
// option were exercised, again outside treasury only.
func (s *companyService) TotalVotesInOptions(companyID string, date *time.Time) (int64, error) {
	cs, err := companyShareholder(s.db, companyID)
	if err != nil {
		return 0, err
	}
	var company models.Company
	if err := s.db.First(&company, "id = ?", companyID).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var secs []models.Security
	if err := s.db.Where("company_id = ?", companyID).Find(&secs).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var others []models.Shareholder
	if err := s.db.Where("company_id = ? AND id <> ?", companyID, cs.ID).Find(&others).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var total int64
	for _, sec := range secs {
		if !sec.FaceValue.Valid {
			continue
		}
		ratio := effectiveVoteRatio(&sec, &company)
		for i := range others {
			count, err := s.shareholders.OptionsCount(&others[i], date, sec.ID)
			if err != nil {
				return 0, err
			}
			if count <= 0 {
				continue
			}
			total += countVotes(count, sec.FaceValue.Decimal, ratio)
		}
	}
	return total, nil
}

// InvalidateProjections drops the advisory caches of a company after a
// balance-affecting write.
func (s *companyService) InvalidateProjections(ctx context.Context, companyID string) {
	s.store.Delete(ctx, cacheKeyActiveShareholders+companyID)
}

// RebuildOrderCaches refreshes the order cache of every shareholder.
// Failures are logged and skipped so one bad row never stalls the sweep.
func (s *companyService) RebuildOrderCaches(ctx context.Context) error {
	var companies []models.Company
	if err := s.db.Find(&companies).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for _, company := range companies {
		var shareholders []models.Shareholder
		if err := s.db.Where("company_id = ?", company.ID).Find(&shareholders).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		for i := range shareholders {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.shareholders.RebuildOrderCache(&shareholders[i]); err != nil {
				logger.Get().Warnw("order cache rebuild failed",
					"company_id", company.ID,
					"shareholder_id", shareholders[i].ID,
					"error", err,
				)
			}
		}
	}
	return nil
}
