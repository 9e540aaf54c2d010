package services

import (
	"errors"

	"gorm.io/gorm"

	apperrors "captable/internal/errors"
	"captable/internal/models"
)

// Cache keys of the advisory projections. The projections are rebuildable;
// every write that can change a balance must invalidate them.
const (
	cacheKeyActiveShareholders = "active_shareholders:"
)

// companyShareholder resolves the treasury entry of a company: by
// convention the earliest-created shareholder row, never a flag.
func companyShareholder(db *gorm.DB, companyID string) (*models.Shareholder, error) {
	var sh models.Shareholder
	err := db.Where("company_id = ?", companyID).
		Order("created_at ASC, id ASC").
		First(&sh).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithMessage(apperrors.ErrConfiguration, "Company has no company shareholder")
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &sh, nil
}

// invalidationRowIDs collects the IDs of certificate-return rows of a
// company: every position some original issuance points at via
// superseded_by_id. Return rows never count as depot inventory.
func invalidationRowIDs(db *gorm.DB, companyID string) (map[string]struct{}, error) {
	var ids []string
	err := db.Model(&models.Position{}).
		Where("company_id = ? AND superseded_by_id IS NOT NULL", companyID).
		Pluck("superseded_by_id", &ids).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// certificateIDInUse checks the per-company certificate namespace, which
// spans both positions and option transactions.
func certificateIDInUse(db *gorm.DB, companyID, certificateID string) (bool, error) {
	var count int64
	if err := db.Model(&models.Position{}).
		Where("company_id = ? AND certificate_id = ?", companyID, certificateID).
		Count(&count).Error; err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return true, nil
	}
	if err := db.Model(&models.OptionTransaction{}).
		Where("company_id = ? AND certificate_id = ?", companyID, certificateID).
		Count(&count).Error; err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count > 0, nil
}
