package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"captable/internal/cache"
	apperrors "captable/internal/errors"
	"captable/internal/models"
	"captable/internal/plans"
	"captable/internal/segments"
)

type optionService struct {
	db           *gorm.DB
	shareholders ShareholderServicer
	validation   ValidationServicer
	store        cache.Store
}

// NewOptionService creates a new OptionServicer.
func NewOptionService(db *gorm.DB, shareholders ShareholderServicer, validation ValidationServicer, store cache.Store) OptionServicer {
	return &optionService{db: db, shareholders: shareholders, validation: validation, store: store}
}

// CreateOptionPlan registers an option pool against a security. The plan
// feature gate fails closed.
func (s *optionService) CreateOptionPlan(companyID string, plan *models.OptionPlan) (*models.OptionPlan, error) {
	var company models.Company
	if err := s.db.First(&company, "id = ?", companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCompanyNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := s.validation.RequireFeature(&company, plans.FeatureOptionPlans); err != nil {
		return nil, err
	}
	if plan.Count <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "option plan count must be positive")
	}

	var security models.Security
	if err := s.db.First(&security, "id = ?", plan.SecurityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSecurityNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if security.CompanyID != companyID {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "security belongs to another company")
	}

	if security.TrackNumbers {
		plan.NumberSegments = segments.Normalize(plan.NumberSegments)
		if len(plan.NumberSegments) == 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidSegments,
				"security tracks numbers, the plan needs number segments")
		}
		if got := int64(segments.Count(plan.NumberSegments)); got != plan.Count {
			return nil, apperrors.WithDetails(apperrors.ErrInvalidSegments,
				"segment count does not match plan count",
				map[string]any{"count": plan.Count, "segments_count": got})
		}
	}

	plan.CompanyID = companyID
	if err := s.db.Create(plan).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return plan, nil
}

// GetOptionPlanByID fetches an option plan.
func (s *optionService) GetOptionPlanByID(id string) (*models.OptionPlan, error) {
	var plan models.OptionPlan
	if err := s.db.First(&plan, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrOptionPlanNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &plan, nil
}

// CreateOptionTransaction records an option grant, transfer or return as
// a draft row. Grants from treasury are checked against the plan ceiling;
// option numbers must stay inside the plan's segment pool.
func (s *optionService) CreateOptionTransaction(params CreateOptionTransactionParams) (*models.OptionTransaction, error) {
	if params.Count <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "count must be positive")
	}
	if params.BuyerID == nil && params.SellerID == nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "option transaction needs a buyer or a seller")
	}

	plan, err := s.GetOptionPlanByID(params.OptionPlanID)
	if err != nil {
		return nil, err
	}
	if plan.CompanyID != params.CompanyID {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "option plan belongs to another company")
	}

	var security models.Security
	if err := s.db.First(&security, "id = ?", plan.SecurityID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	cs, err := companyShareholder(s.db, params.CompanyID)
	if err != nil {
		return nil, err
	}

	tx := &models.OptionTransaction{
		CompanyID:     params.CompanyID,
		OptionPlanID:  params.OptionPlanID,
		BuyerID:       params.BuyerID,
		SellerID:      params.SellerID,
		Count:         params.Count,
		BoughtAt:      params.BoughtAt,
		CertificateID: params.CertificateID,
		VestingMonths: params.VestingMonths,
		Comment:       params.Comment,
		IsDraft:       true,
	}

	err = s.db.Transaction(func(dbtx *gorm.DB) error {
		// A grant from treasury draws on the pool; transfers between
		// shareholders and returns to treasury never do.
		grantsFromTreasury := params.SellerID != nil && *params.SellerID == cs.ID &&
			params.BuyerID != nil && *params.BuyerID != cs.ID
		if grantsFromTreasury {
			granted, err := s.netGranted(dbtx, plan.ID, cs.ID)
			if err != nil {
				return err
			}
			if granted+params.Count > plan.Count {
				return apperrors.WithDetails(apperrors.ErrOptionPlanExceeded,
					"Option plan ceiling exceeded",
					map[string]any{
						"ceiling":   plan.Count,
						"granted":   granted,
						"requested": params.Count,
					})
			}
		}

		if security.TrackNumbers {
			normalized := segments.Normalize(params.NumberSegments)
			if len(normalized) == 0 {
				return apperrors.WithMessage(apperrors.ErrInvalidSegments,
					"security tracks numbers, number segments are required")
			}
			if got := int64(segments.Count(normalized)); got != params.Count {
				return apperrors.WithDetails(apperrors.ErrInvalidSegments,
					"segment count does not match transaction count",
					map[string]any{"count": params.Count, "segments_count": got})
			}
			if ok, outside := segments.ContainsAll(plan.NumberSegments, normalized); !ok {
				return apperrors.WithDetails(apperrors.ErrInvalidSegments,
					"segments fall outside the option plan pool",
					map[string]any{"outside": segments.HumanReadable(outside)})
			}
			tx.NumberSegments = normalized

			if params.SellerID != nil && *params.SellerID != cs.ID {
				seller, err := s.shareholders.GetShareholderByID(*params.SellerID)
				if err != nil {
					return err
				}
				check, err := s.shareholders.OwnsOptionsSegments(seller, normalized, plan.SecurityID)
				if err != nil {
					return err
				}
				if !check.Owned {
					return apperrors.WithDetails(apperrors.ErrOwnership,
						"Seller does not hold the requested option numbers",
						map[string]any{
							"failed": segments.HumanReadable(check.Failed),
							"owned":  segments.HumanReadable(check.CurrentlyOwned),
						})
				}
			}
		}

		// Options share the certificate namespace with positions.
		if params.CertificateID != nil {
			inUse, err := certificateIDInUse(dbtx, params.CompanyID, *params.CertificateID)
			if err != nil {
				return err
			}
			if inUse {
				return apperrors.WithDetails(apperrors.ErrCertificateIDInUse,
					"Certificate ID is already in use",
					map[string]any{"certificate_id": *params.CertificateID})
			}
		}

		if err := dbtx.Create(tx).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.store.Delete(context.Background(), cacheKeyActiveShareholders+params.CompanyID)
	return tx, nil
}

// ConfirmOptionTransaction flips a draft to confirmed.
func (s *optionService) ConfirmOptionTransaction(id string) (*models.OptionTransaction, error) {
	tx, err := s.getTransaction(id)
	if err != nil {
		return nil, err
	}
	if !tx.IsDraft {
		return tx, nil
	}
	if err := s.db.Model(tx).Update("is_draft", false).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	tx.IsDraft = false
	return tx, nil
}

// DeleteOptionTransaction removes a draft row. Confirmed rows are
// immutable, same as positions.
func (s *optionService) DeleteOptionTransaction(id string) error {
	tx, err := s.getTransaction(id)
	if err != nil {
		return err
	}
	if !tx.IsDraft {
		return apperrors.ErrPositionImmutable
	}
	if err := s.db.Delete(tx).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	s.store.Delete(context.Background(), cacheKeyActiveShareholders+tx.CompanyID)
	return nil
}

func (s *optionService) getTransaction(id string) (*models.OptionTransaction, error) {
	var tx models.OptionTransaction
	if err := s.db.First(&tx, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPositionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &tx, nil
}

// netGranted is the plan's outstanding grant total: options that left
// treasury minus options that came back.
func (s *optionService) netGranted(db *gorm.DB, planID, csID string) (int64, error) {
	var txs []models.OptionTransaction
	if err := db.Where("option_plan_id = ?", planID).Find(&txs).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var granted int64
	for _, tx := range txs {
		if tx.SellerID != nil && *tx.SellerID == csID && tx.BuyerID != nil && *tx.BuyerID != csID {
			granted += tx.Count
		}
		if tx.BuyerID != nil && *tx.BuyerID == csID && tx.SellerID != nil && *tx.SellerID != csID {
			granted -= tx.Count
		}
	}
	return granted, nil
}
