package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"captable/internal/cache"
	apperrors "captable/internal/errors"
	"captable/internal/models"
	"captable/internal/pagination"
	"captable/internal/plans"
	"captable/internal/segments"
)

type positionService struct {
	db           *gorm.DB
	shareholders ShareholderServicer
	validation   ValidationServicer
	store        cache.Store
}

// NewPositionService creates a new PositionServicer.
func NewPositionService(db *gorm.DB, shareholders ShareholderServicer, validation ValidationServicer, store cache.Store) PositionServicer {
	return &positionService{db: db, shareholders: shareholders, validation: validation, store: store}
}

// CreatePosition records a transfer, capital increase or destruction as a
// draft row. All coverage and segment checks run here; once the row is
// confirmed it is immutable, so this is the only gate.
func (s *positionService) CreatePosition(params CreatePositionParams) (*models.Position, error) {
	if params.Count <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "count must be positive")
	}
	if params.BuyerID == nil && params.SellerID == nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "position needs a buyer or a seller")
	}

	var company models.Company
	if err := s.db.First(&company, "id = ?", params.CompanyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCompanyNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var security models.Security
	if err := s.db.First(&security, "id = ?", params.SecurityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSecurityNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if security.CompanyID != params.CompanyID {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "security belongs to another company")
	}

	buyer, err := s.partyShareholder(params.BuyerID, params.CompanyID)
	if err != nil {
		return nil, err
	}
	seller, err := s.partyShareholder(params.SellerID, params.CompanyID)
	if err != nil {
		return nil, err
	}

	if params.VestingMonths != nil {
		if err := s.validation.RequireFeature(&company, plans.FeatureVesting); err != nil {
			return nil, err
		}
	}

	position := &models.Position{
		CompanyID:     params.CompanyID,
		BuyerID:       params.BuyerID,
		SellerID:      params.SellerID,
		SecurityID:    params.SecurityID,
		Count:         params.Count,
		BoughtAt:      params.BoughtAt,
		Value:         params.Value,
		CertificateID: params.CertificateID,
		VestingMonths: params.VestingMonths,
		Comment:       params.Comment,
		IsDraft:       true,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if security.TrackNumbers {
			normalized := segments.Normalize(params.NumberSegments)
			if len(normalized) == 0 {
				return apperrors.WithMessage(apperrors.ErrInvalidSegments,
					"security tracks numbers, number segments are required")
			}
			if got := int64(segments.Count(normalized)); got != params.Count {
				return apperrors.WithDetails(apperrors.ErrInvalidSegments,
					"segment count does not match position count",
					map[string]any{"count": params.Count, "segments_count": got})
			}
			position.NumberSegments = normalized

			if seller != nil {
				check, err := s.shareholders.OwnsSegments(seller, normalized, params.SecurityID)
				if err != nil {
					return err
				}
				if !check.Owned {
					return apperrors.WithDetails(apperrors.ErrOwnership,
						"Seller does not own the requested share numbers",
						map[string]any{
							"failed": segments.HumanReadable(check.Failed),
							"owned":  segments.HumanReadable(check.CurrentlyOwned),
						})
				}
			} else {
				// Capital increase mints fresh numbers: they must be new to
				// the security's corpus.
				if taken, _ := segments.Overlaps(security.NumberSegments, normalized); taken {
					return apperrors.WithMessage(apperrors.ErrInvalidSegments,
						"capital increase segments overlap existing share numbers")
				}
				corpus := segments.Normalize(append(security.NumberSegments, normalized...))
				if err := tx.Model(&security).Update("number_segments", corpus).Error; err != nil {
					return apperrors.Wrap(apperrors.ErrInternalServer, err)
				}
			}
		} else if seller != nil {
			available, err := s.shareholders.ShareCount(seller, BalanceQuery{SecurityID: params.SecurityID})
			if err != nil {
				return err
			}
			if available < params.Count {
				return apperrors.WithDetails(apperrors.ErrOwnership,
					"Seller does not hold enough shares",
					map[string]any{"requested": params.Count, "held": available})
			}
		}

		if params.CertificateID != nil {
			inUse, err := certificateIDInUse(tx, params.CompanyID, *params.CertificateID)
			if err != nil {
				return err
			}
			if inUse {
				return apperrors.WithDetails(apperrors.ErrCertificateIDInUse,
					"Certificate ID is already in use",
					map[string]any{"certificate_id": *params.CertificateID})
			}
		}

		// Capital bookkeeping: the authoritative company share count moves
		// with value-creating and value-destroying rows.
		if position.IsCapitalIncrease() {
			if err := tx.Model(&company).
				Update("share_count", gorm.Expr("share_count + ?", params.Count)).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		if position.IsDestruction() {
			if err := tx.Model(&company).
				Update("share_count", gorm.Expr("share_count - ?", params.Count)).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}

		if err := tx.Create(position).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.store.Delete(context.Background(), cacheKeyActiveShareholders+params.CompanyID)
	s.rebuildParties(buyer, seller)

	return position, nil
}

// ConfirmPosition flips a draft to confirmed, after which the row is
// immutable.
func (s *positionService) ConfirmPosition(id string) (*models.Position, error) {
	position, err := s.GetPositionByID(id)
	if err != nil {
		return nil, err
	}
	if !position.IsDraft {
		return position, nil
	}
	if err := s.db.Model(position).Update("is_draft", false).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	position.IsDraft = false
	return position, nil
}

// DeletePosition removes a draft row and reverses its capital
// bookkeeping. Confirmed rows are refused: corrections are new
// offsetting rows, never deletions.
func (s *positionService) DeletePosition(id string) error {
	position, err := s.GetPositionByID(id)
	if err != nil {
		return err
	}
	if !position.IsDraft {
		return apperrors.ErrPositionImmutable
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if position.IsCapitalIncrease() {
			if err := tx.Model(&models.Company{}).
				Where("id = ?", position.CompanyID).
				Update("share_count", gorm.Expr("share_count - ?", position.Count)).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		if position.IsDestruction() {
			if err := tx.Model(&models.Company{}).
				Where("id = ?", position.CompanyID).
				Update("share_count", gorm.Expr("share_count + ?", position.Count)).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		if err := tx.Delete(position).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.store.Delete(context.Background(), cacheKeyActiveShareholders+position.CompanyID)
	return nil
}

// InvalidateCertificate takes a deposited certificate out of the depot by
// writing a return row (holder to holder) and linking the original to it.
// The return row is born confirmed; there is no draft phase for
// invalidations.
func (s *positionService) InvalidateCertificate(positionID string) (*models.Position, error) {
	original, err := s.GetPositionByID(positionID)
	if err != nil {
		return nil, err
	}
	if !original.IsValidCertificate() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput,
			"position holds no valid certificate")
	}
	if original.BuyerID == nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput,
			"destruction rows carry no certificate to invalidate")
	}

	returnRow := &models.Position{
		CompanyID:      original.CompanyID,
		BuyerID:        original.BuyerID,
		SellerID:       original.BuyerID,
		SecurityID:     original.SecurityID,
		Count:          original.Count,
		BoughtAt:       original.BoughtAt,
		NumberSegments: original.NumberSegments,
		IsDraft:        false,
		Comment:        "certificate invalidation",
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(returnRow).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Model(original).Update("superseded_by_id", returnRow.ID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	original.SupersededByID = &returnRow.ID
	return returnRow, nil
}

// GetPositionByID fetches a position.
func (s *positionService) GetPositionByID(id string) (*models.Position, error) {
	var position models.Position
	if err := s.db.First(&position, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPositionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &position, nil
}

// GetCompanyPositions lists the position log, newest effective date first.
func (s *positionService) GetCompanyPositions(companyID string, page pagination.PageRequest, filter PositionFilter) (*pagination.PageResponse[models.Position], error) {
	page.Defaults()

	query := s.db.Model(&models.Position{}).Where("company_id = ?", companyID)
	if filter.SecurityID != "" {
		query = query.Where("security_id = ?", filter.SecurityID)
	}
	if filter.ShareholderID != "" {
		query = query.Where("buyer_id = ? OR seller_id = ?", filter.ShareholderID, filter.ShareholderID)
	}
	if filter.FromDate != nil {
		query = query.Where("bought_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("bought_at <= ?", *filter.ToDate)
	}

	var totalItems int64
	if err := query.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var positions []models.Position
	if err := query.
		Order("bought_at DESC, created_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&positions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(positions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// partyShareholder resolves an optional transaction party and checks it
// belongs to the company.
func (s *positionService) partyShareholder(id *string, companyID string) (*models.Shareholder, error) {
	if id == nil {
		return nil, nil
	}
	sh, err := s.shareholders.GetShareholderByID(*id)
	if err != nil {
		return nil, err
	}
	if sh.CompanyID != companyID {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "shareholder belongs to another company")
	}
	return sh, nil
}

func (s *positionService) rebuildParties(parties ...*models.Shareholder) {
	for _, sh := range parties {
		if sh == nil {
			continue
		}
		if err := s.shareholders.RebuildOrderCache(sh); err != nil {
			// Advisory projection only, the balance engine stays correct.
			continue
		}
	}
}
