package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"captable/internal/cache"
	apperrors "captable/internal/errors"
	"captable/internal/logger"
	"captable/internal/models"
	"captable/internal/pagination"
	"captable/internal/segments"
)

// shareholderService derives every balance by replaying the position and
// option transaction history. Nothing here is cached as truth: the order
// cache it maintains is a rebuildable projection for list sorting only.
type shareholderService struct {
	db         *gorm.DB
	validation ValidationServicer
	store      cache.Store
}

// NewShareholderService creates a new ShareholderServicer.
func NewShareholderService(db *gorm.DB, validation ValidationServicer, store cache.Store) ShareholderServicer {
	return &shareholderService{db: db, validation: validation, store: store}
}

// CreateShareholder adds a register entry, gated by the plan's create
// limit.
func (s *shareholderService) CreateShareholder(companyID string, params CreateShareholderParams) (*models.Shareholder, error) {
	if params.Number == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "shareholder number is required")
	}

	var company models.Company
	if err := s.db.First(&company, "id = ?", companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCompanyNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := s.validation.ValidateShareholderCreate(&company); err != nil {
		return nil, err
	}

	var exists int64
	if err := s.db.Model(&models.Shareholder{}).
		Where("company_id = ? AND number = ?", companyID, params.Number).
		Count(&exists).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if exists > 0 {
		return nil, apperrors.WithDetails(apperrors.ErrInvalidInput,
			"Shareholder number is already taken", map[string]any{"number": params.Number})
	}

	sh := &models.Shareholder{
		CompanyID:  companyID,
		Number:     params.Number,
		Name:       params.Name,
		Email:      params.Email,
		LegalType:  params.LegalType,
		Birthday:   params.Birthday,
		Street:     params.Street,
		City:       params.City,
		PostalCode: params.PostalCode,
		Country:    params.Country,
	}
	if sh.LegalType == "" {
		sh.LegalType = models.LegalTypeHuman
	}
	if err := s.db.Create(sh).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	// Post-write hook: projections derived from the shareholder list are
	// now stale.
	s.store.Delete(context.Background(), cacheKeyActiveShareholders+companyID)
	if err := s.RebuildOrderCache(sh); err != nil {
		logger.Get().Warnw("order cache rebuild failed", "shareholder_id", sh.ID, "error", err)
	}

	return sh, nil
}

// GetShareholderByID fetches one register entry.
func (s *shareholderService) GetShareholderByID(id string) (*models.Shareholder, error) {
	var sh models.Shareholder
	if err := s.db.First(&sh, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrShareholderNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &sh, nil
}

// GetCompanyShareholders returns a paginated register ordered by number.
func (s *shareholderService) GetCompanyShareholders(companyID string, page pagination.PageRequest) (*pagination.PageResponse[models.Shareholder], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.Shareholder{}).Where("company_id = ?", companyID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var shareholders []models.Shareholder
	if err := s.db.Where("company_id = ?", companyID).
		Order("number ASC").
		Scopes(pagination.Paginate(page)).
		Find(&shareholders).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(shareholders, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// IsCompanyShareholder reports whether sh is the treasury entry.
func (s *shareholderService) IsCompanyShareholder(sh *models.Shareholder) (bool, error) {
	cs, err := companyShareholder(s.db, sh.CompanyID)
	if err != nil {
		return false, err
	}
	return cs.ID == sh.ID, nil
}

// sidePositions loads one side of the position history for a shareholder,
// bounded by date and security, in effective order.
func (s *shareholderService) sidePositions(shID, column string, date *time.Time, securityID string) ([]models.Position, error) {
	query := s.db.Where(column+" = ?", shID)
	if date != nil {
		query = query.Where("bought_at <= ?", *date)
	}
	if securityID != "" {
		query = query.Where("security_id = ?", securityID)
	}
	var positions []models.Position
	if err := query.Order("bought_at ASC, created_at ASC").Find(&positions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return positions, nil
}

// ShareCount replays the position history under the query's filters.
// Note the default-bound asymmetry with CurrentSegments: a nil Date here
// means all history, not "today".
func (s *shareholderService) ShareCount(sh *models.Shareholder, q BalanceQuery) (int64, error) {
	bought, err := s.sidePositions(sh.ID, "buyer_id", q.Date, q.SecurityID)
	if err != nil {
		return 0, err
	}
	sold, err := s.sidePositions(sh.ID, "seller_id", q.Date, q.SecurityID)
	if err != nil {
		return 0, err
	}

	var depotReturns map[string]struct{}
	if q.OnlySellable {
		depotReturns, err = invalidationRowIDs(s.db, sh.CompanyID)
		if err != nil {
			return 0, err
		}
	}

	now := time.Now()
	var total int64
	for _, p := range bought {
		if q.OnlySellable && p.IsValidCertificate() {
			if _, isReturn := depotReturns[p.ID]; !isReturn {
				continue
			}
		}
		if q.WithoutVesting && p.VestingMonths != nil {
			continue
		}
		// Vesting expiry is judged against real current time, not q.Date.
		if q.ExpiredVesting && !p.VestingExpired(now) {
			continue
		}
		total += p.Count
	}
	for _, p := range sold {
		total -= p.Count
	}

	cs, err := companyShareholder(s.db, sh.CompanyID)
	if err != nil {
		return 0, err
	}
	if cs.ID == sh.ID {
		// Treasury shares backing granted options are spoken for.
		granted, err := s.grantedOptionsCount(sh.CompanyID, cs.ID, q.SecurityID, q.Date)
		if err != nil {
			return 0, err
		}
		total -= granted
	}

	return total, nil
}

// ShareCountSellable is the sellable-count shortcut: the vesting-expiry
// scan is skipped entirely when the shareholder has no vested positions,
// since it cannot change the result.
func (s *shareholderService) ShareCountSellable(sh *models.Shareholder, date *time.Time, securityID string) (int64, error) {
	var vested int64
	if err := s.db.Model(&models.Position{}).
		Where("buyer_id = ? AND vesting_months IS NOT NULL", sh.ID).
		Count(&vested).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	q := BalanceQuery{Date: date, SecurityID: securityID, OnlySellable: true}
	if vested > 0 {
		q.ExpiredVesting = true
	}
	return s.ShareCount(sh, q)
}

// grantedOptionsCount computes the company's granted-but-unreturned
// options for a security: the net option balance held outside treasury.
func (s *shareholderService) grantedOptionsCount(companyID, csID, securityID string, date *time.Time) (int64, error) {
	query := s.db.Model(&models.OptionTransaction{}).
		Joins("JOIN option_plans ON option_plans.id = option_transactions.option_plan_id").
		Where("option_transactions.company_id = ?", companyID)
	if securityID != "" {
		query = query.Where("option_plans.security_id = ?", securityID)
	}
	if date != nil {
		query = query.Where("option_transactions.bought_at <= ?", *date)
	}
	var txs []models.OptionTransaction
	if err := query.Find(&txs).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var granted int64
	for _, tx := range txs {
		if tx.BuyerID != nil && *tx.BuyerID != csID {
			granted += tx.Count
		}
		if tx.SellerID != nil && *tx.SellerID != csID {
			granted -= tx.Count
		}
	}
	return granted, nil
}

// OptionsCount sums the option transaction history.
func (s *shareholderService) OptionsCount(sh *models.Shareholder, date *time.Time, securityID string) (int64, error) {
	bought, err := s.sideOptionTransactions(sh.ID, "buyer_id", date, securityID, "")
	if err != nil {
		return 0, err
	}
	sold, err := s.sideOptionTransactions(sh.ID, "seller_id", date, securityID, "")
	if err != nil {
		return 0, err
	}

	var total int64
	for _, tx := range bought {
		total += tx.Count
	}
	for _, tx := range sold {
		total -= tx.Count
	}
	return total, nil
}

// sideOptionTransactions loads one side of the option history, optionally
// narrowed to one plan; the security filter goes through the plan.
func (s *shareholderService) sideOptionTransactions(shID, column string, date *time.Time, securityID, optionPlanID string) ([]models.OptionTransaction, error) {
	query := s.db.Model(&models.OptionTransaction{}).
		Where("option_transactions."+column+" = ?", shID)
	if securityID != "" {
		query = query.
			Joins("JOIN option_plans ON option_plans.id = option_transactions.option_plan_id").
			Where("option_plans.security_id = ?", securityID)
	}
	if optionPlanID != "" {
		query = query.Where("option_transactions.option_plan_id = ?", optionPlanID)
	}
	if date != nil {
		query = query.Where("option_transactions.bought_at <= ?", *date)
	}
	var txs []models.OptionTransaction
	if err := query.Order("option_transactions.bought_at ASC, option_transactions.created_at ASC").Find(&txs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return txs, nil
}

// CurrentSegments returns the certificate numbers the shareholder owns at
// the given date, which defaults to now. Numbers reserved for outstanding
// options stay included: options are a separate claim layer and never
// remove share ownership.
func (s *shareholderService) CurrentSegments(sh *models.Shareholder, securityID string, date *time.Time) (segments.List, error) {
	at := time.Now()
	if date != nil {
		at = *date
	}

	bought, err := s.sidePositions(sh.ID, "buyer_id", &at, securityID)
	if err != nil {
		return nil, err
	}
	sold, err := s.sidePositions(sh.ID, "seller_id", &at, securityID)
	if err != nil {
		return nil, err
	}

	var boughtNums, soldNums []uint64
	for _, p := range bought {
		boughtNums = append(boughtNums, segments.Inflate(p.NumberSegments)...)
	}
	for _, p := range sold {
		soldNums = append(soldNums, segments.Inflate(p.NumberSegments)...)
	}

	return segments.Deflate(segments.Subtract(boughtNums, soldNums)), nil
}

// CurrentOptionsSegments is the option analogue of CurrentSegments, using
// the counter difference: an option number bought twice and sold once
// nets to owned once, since option numbers pass back and forth without
// being literal certificates.
func (s *shareholderService) CurrentOptionsSegments(sh *models.Shareholder, securityID, optionPlanID string, date *time.Time) (segments.List, error) {
	at := time.Now()
	if date != nil {
		at = *date
	}

	bought, err := s.sideOptionTransactions(sh.ID, "buyer_id", &at, securityID, optionPlanID)
	if err != nil {
		return nil, err
	}
	sold, err := s.sideOptionTransactions(sh.ID, "seller_id", &at, securityID, optionPlanID)
	if err != nil {
		return nil, err
	}

	var boughtNums, soldNums []uint64
	for _, tx := range bought {
		boughtNums = append(boughtNums, segments.Inflate(tx.NumberSegments)...)
	}
	for _, tx := range sold {
		soldNums = append(soldNums, segments.Inflate(tx.NumberSegments)...)
	}

	return segments.Deflate(segments.CounterSubtract(boughtNums, soldNums)), nil
}

// OwnsSegments compares requested certificate numbers against current
// holdings, multiset-aware.
func (s *shareholderService) OwnsSegments(sh *models.Shareholder, requested segments.List, securityID string) (*OwnershipCheck, error) {
	owned, err := s.CurrentSegments(sh, securityID, nil)
	if err != nil {
		return nil, err
	}
	failed := segments.Subtract(segments.Inflate(requested), segments.Inflate(owned))
	return &OwnershipCheck{
		Owned:          len(failed) == 0,
		Failed:         segments.Deflate(failed),
		CurrentlyOwned: owned,
	}, nil
}

// OwnsOptionsSegments is the option analogue. Unlike OwnsSegments it is a
// plain containment check without multiplicity; option segments pass back
// and forth without being literal certificates.
func (s *shareholderService) OwnsOptionsSegments(sh *models.Shareholder, requested segments.List, securityID string) (*OwnershipCheck, error) {
	owned, err := s.CurrentOptionsSegments(sh, securityID, "", nil)
	if err != nil {
		return nil, err
	}
	ok, missing := segments.ContainsAll(owned, requested)
	return &OwnershipCheck{
		Owned:          ok,
		Failed:         missing,
		CurrentlyOwned: owned,
	}, nil
}

// CumulatedFaceValue returns the nominal value of the holdings. The
// second return is false when a specific security has no face value: the
// caller renders "n/a", no error is raised.
func (s *shareholderService) CumulatedFaceValue(sh *models.Shareholder, securityID string, date *time.Time) (decimal.Decimal, bool, error) {
	if securityID != "" {
		sec, err := s.security(securityID)
		if err != nil {
			return decimal.Zero, false, err
		}
		if !sec.FaceValue.Valid {
			return decimal.Zero, false, nil
		}
		count, err := s.ShareCount(sh, BalanceQuery{Date: date, SecurityID: securityID})
		if err != nil {
			return decimal.Zero, false, err
		}
		return decimal.NewFromInt(count).Mul(sec.FaceValue.Decimal), true, nil
	}

	secs, err := s.companySecurities(sh.CompanyID)
	if err != nil {
		return decimal.Zero, false, err
	}
	total := decimal.Zero
	for _, sec := range secs {
		if !sec.FaceValue.Valid {
			continue
		}
		count, err := s.ShareCount(sh, BalanceQuery{Date: date, SecurityID: sec.ID})
		if err != nil {
			return decimal.Zero, false, err
		}
		total = total.Add(decimal.NewFromInt(count).Mul(sec.FaceValue.Decimal))
	}
	return total, true, nil
}

// VoteCount sums floor(count * face value / vote ratio) per security.
// Securities without a face value carry no votes.
func (s *shareholderService) VoteCount(sh *models.Shareholder, date *time.Time, securityID string) (int64, error) {
	var company models.Company
	if err := s.db.First(&company, "id = ?", sh.CompanyID).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var secs []models.Security
	if securityID != "" {
		sec, err := s.security(securityID)
		if err != nil {
			return 0, err
		}
		secs = []models.Security{*sec}
	} else {
		var err error
		secs, err = s.companySecurities(sh.CompanyID)
		if err != nil {
			return 0, err
		}
	}

	var votes int64
	for _, sec := range secs {
		if !sec.FaceValue.Valid {
			continue
		}
		count, err := s.ShareCount(sh, BalanceQuery{Date: date, SecurityID: sec.ID})
		if err != nil {
			return 0, err
		}
		votes += countVotes(count, sec.FaceValue.Decimal, effectiveVoteRatio(&sec, &company))
	}
	return votes, nil
}

// VotePercent is the shareholder's share of all votes held outside
// treasury. The company shareholder has no percentage of itself; a
// company without votes yet has no denominator. Both return ok=false.
func (s *shareholderService) VotePercent(sh *models.Shareholder, date *time.Time) (float64, bool, error) {
	cs, err := companyShareholder(s.db, sh.CompanyID)
	if err != nil {
		return 0, false, err
	}
	if cs.ID == sh.ID {
		return 0, false, nil
	}

	mine, err := s.VoteCount(sh, date, "")
	if err != nil {
		return 0, false, err
	}

	var others []models.Shareholder
	if err := s.db.Where("company_id = ? AND id <> ?", sh.CompanyID, cs.ID).Find(&others).Error; err != nil {
		return 0, false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var total int64
	for i := range others {
		votes, err := s.VoteCount(&others[i], date, "")
		if err != nil {
			return 0, false, err
		}
		total += votes
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(mine) / float64(total) * 100, true, nil
}

// SharePercent is the shareholder's share of the floating capital (all
// shares held outside treasury).
func (s *shareholderService) SharePercent(sh *models.Shareholder, date *time.Time, securityID string) (float64, bool, error) {
	cs, err := companyShareholder(s.db, sh.CompanyID)
	if err != nil {
		return 0, false, err
	}
	if cs.ID == sh.ID {
		return 0, false, nil
	}

	mine, err := s.ShareCount(sh, BalanceQuery{Date: date, SecurityID: securityID})
	if err != nil {
		return 0, false, err
	}

	var others []models.Shareholder
	if err := s.db.Where("company_id = ? AND id <> ?", sh.CompanyID, cs.ID).Find(&others).Error; err != nil {
		return 0, false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var floating int64
	for i := range others {
		count, err := s.ShareCount(&others[i], BalanceQuery{Date: date, SecurityID: securityID})
		if err != nil {
			return 0, false, err
		}
		floating += count
	}
	if floating <= 0 {
		return 0, false, nil
	}
	return float64(mine) / float64(floating) * 100, true, nil
}

// ShareValue prices the holdings with the most recent nonzero-value
// position of the company. ok=false when no priced position exists.
func (s *shareholderService) ShareValue(sh *models.Shareholder, date *time.Time, securityID string) (decimal.Decimal, bool, error) {
	query := s.db.Where("company_id = ? AND value IS NOT NULL", sh.CompanyID)
	if date != nil {
		query = query.Where("bought_at <= ?", *date)
	}
	var priced []models.Position
	if err := query.Order("bought_at DESC, created_at DESC").Find(&priced).Error; err != nil {
		return decimal.Zero, false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	price := decimal.Zero
	found := false
	for _, p := range priced {
		if p.Value.Valid && !p.Value.Decimal.IsZero() {
			price = p.Value.Decimal
			found = true
			break
		}
	}
	if !found {
		return decimal.Zero, false, nil
	}

	count, err := s.ShareCount(sh, BalanceQuery{Date: date, SecurityID: securityID})
	if err != nil {
		return decimal.Zero, false, err
	}
	return decimal.NewFromInt(count).Mul(price), true, nil
}

// RebuildOrderCache refreshes the denormalized sort blob from the
// balance engine. The blob is advisory; stale values only affect list
// ordering, never a computed balance.
func (s *shareholderService) RebuildOrderCache(sh *models.Shareholder) error {
	count, err := s.ShareCount(sh, BalanceQuery{})
	if err != nil {
		return err
	}
	votes, err := s.VoteCount(sh, nil, "")
	if err != nil {
		return err
	}

	blob, err := json.Marshal(map[string]any{
		"share_count": count,
		"vote_count":  votes,
		"rebuilt_at":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := s.db.Model(sh).Update("order_cache", string(blob)).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

func (s *shareholderService) security(id string) (*models.Security, error) {
	var sec models.Security
	if err := s.db.First(&sec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSecurityNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &sec, nil
}

func (s *shareholderService) companySecurities(companyID string) ([]models.Security, error) {
	var secs []models.Security
	if err := s.db.Where("company_id = ?", companyID).Order("created_at ASC").Find(&secs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return secs, nil
}

// countVotes is the vote formula: floor(count * face / ratio).
func countVotes(count int64, face decimal.Decimal, ratio int64) int64 {
	return decimal.NewFromInt(count).
		Mul(face).
		Div(decimal.NewFromInt(ratio)).
		Floor().
		IntPart()
}

// effectiveVoteRatio resolves the ratio, security override first, then
// company, defaulting to 1 when both are unset.
func effectiveVoteRatio(sec *models.Security, company *models.Company) int64 {
	if sec.VoteRatio > 0 {
		return sec.VoteRatio
	}
	if company.VoteRatio > 0 {
		return company.VoteRatio
	}
	return 1
}
