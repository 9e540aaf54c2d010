package services

import (
	"context"
	"errors"
	"math"

	"gorm.io/gorm"

	"captable/internal/cache"
	apperrors "captable/internal/errors"
	"captable/internal/logger"
	"captable/internal/models"
	"captable/internal/notify"
	"captable/internal/plans"
)

type splitService struct {
	db           *gorm.DB
	shareholders ShareholderServicer
	validation   ValidationServicer
	notifier     notify.Notifier
	store        cache.Store
}

// NewSplitService creates a new SplitServicer.
func NewSplitService(db *gorm.DB, shareholders ShareholderServicer, validation ValidationServicer, notifier notify.Notifier, store cache.Store) SplitServicer {
	return &splitService{
		db:           db,
		shareholders: shareholders,
		validation:   validation,
		notifier:     notifier,
		store:        store,
	}
}

// SplitShares executes a Divisor-for-Dividend split. For every holder it
// writes a return row (old count back to treasury) and an issue row (new
// count out of treasury), then rebases the treasury itself against the
// company total. Everything lands in one transaction; a failure anywhere
// leaves the register untouched.
//
// Per-holder fractions are truncated; the company total is rounded. The
// difference stays in treasury, and the fractional remainders are
// reported to the operators.
func (s *splitService) SplitShares(companyID string, params SplitParams) (map[string]float64, error) {
	if params.Dividend <= 0 || params.Divisor <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "dividend and divisor must be positive")
	}
	if params.SecurityID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "security is required")
	}

	var company models.Company
	if err := s.db.First(&company, "id = ?", companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCompanyNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := s.validation.RequireFeature(&company, plans.FeatureSplits); err != nil {
		return nil, err
	}
	// No operator, no one to receive the fractional-share report.
	if company.OperatorEmail == "" {
		return nil, apperrors.WithMessage(apperrors.ErrConfiguration,
			"company has no operator email configured")
	}

	cs, err := companyShareholder(s.db, companyID)
	if err != nil {
		return nil, err
	}

	// Snapshot the holders before any row is written. Discovery order is
	// register order; execution walks it backwards so the treasury, the
	// oldest entry, goes last after every return has landed.
	var all []models.Shareholder
	if err := s.db.Where("company_id = ? AND id <> ?", companyID, cs.ID).
		Order("created_at ASC, id ASC").
		Find(&all).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	type holding struct {
		sh    models.Shareholder
		count int64
	}
	var holders []holding
	for i := range all {
		count, err := s.shareholders.ShareCount(&all[i], BalanceQuery{
			Date:       &params.ExecuteAt,
			SecurityID: params.SecurityID,
		})
		if err != nil {
			return nil, err
		}
		if count > 0 {
			holders = append(holders, holding{sh: all[i], count: count})
		}
	}

	factor := float64(params.Divisor) / float64(params.Dividend)
	partials := make(map[string]float64)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for i := len(holders) - 1; i >= 0; i-- {
			h := holders[i]

			returned := &models.Position{
				CompanyID:  companyID,
				BuyerID:    &cs.ID,
				SellerID:   &h.sh.ID,
				SecurityID: params.SecurityID,
				Count:      h.count,
				BoughtAt:   params.ExecuteAt,
				IsSplit:    true,
				IsDraft:    false,
				Comment:    params.Comment,
			}
			if err := tx.Create(returned).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}

			whole, frac := math.Modf(float64(h.count) * factor)
			issued := &models.Position{
				CompanyID:  companyID,
				BuyerID:    &h.sh.ID,
				SellerID:   &cs.ID,
				SecurityID: params.SecurityID,
				Count:      int64(whole),
				BoughtAt:   params.ExecuteAt,
				IsSplit:    true,
				IsDraft:    false,
				Comment:    params.Comment,
			}
			if err := tx.Create(issued).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			if frac != 0 {
				partials[h.sh.ID] = frac
			}
		}

		// Treasury rebase: destroy the old total, mint the rounded new
		// one. Truncation losses of the holders accumulate here.
		oldTotal := company.ShareCount
		newTotal := int64(math.Round(float64(oldTotal) * factor))

		destroy := &models.Position{
			CompanyID:  companyID,
			SellerID:   &cs.ID,
			SecurityID: params.SecurityID,
			Count:      oldTotal,
			BoughtAt:   params.ExecuteAt,
			IsSplit:    true,
			IsDraft:    false,
			Comment:    params.Comment,
		}
		if err := tx.Create(destroy).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		mint := &models.Position{
			CompanyID:  companyID,
			BuyerID:    &cs.ID,
			SecurityID: params.SecurityID,
			Count:      newTotal,
			BoughtAt:   params.ExecuteAt,
			IsSplit:    true,
			IsDraft:    false,
			Comment:    params.Comment,
		}
		if err := tx.Create(mint).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if err := tx.Model(&company).Update("share_count", newTotal).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.store.Delete(context.Background(), cacheKeyActiveShareholders+companyID)

	// The split is committed; a delivery failure must not undo it.
	report := make([]notify.SplitPartial, 0, len(partials))
	for _, h := range holders {
		frac, ok := partials[h.sh.ID]
		if !ok {
			continue
		}
		report = append(report, notify.SplitPartial{
			ShareholderID: h.sh.ID,
			Number:        h.sh.Number,
			Name:          h.sh.Name,
			Email:         h.sh.Email,
			Remainder:     frac,
		})
	}
	if err := s.notifier.NotifyOperators(&company, report); err != nil {
		logger.Get().Errorw("split notification failed",
			"company_id", companyID, "error", err)
	}

	return partials, nil
}
