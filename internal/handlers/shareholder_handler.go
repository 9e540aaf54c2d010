package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "captable/internal/errors"
	"captable/internal/models"
	"captable/internal/pagination"
	"captable/internal/segments"
	"captable/internal/services"
)

// ShareholderHandler handles register entries and balance queries.
type ShareholderHandler struct {
	shareholderService services.ShareholderServicer
	validationService  services.ValidationServicer
}

// NewShareholderHandler creates a new ShareholderHandler.
func NewShareholderHandler(shareholderService services.ShareholderServicer, validationService services.ValidationServicer) *ShareholderHandler {
	return &ShareholderHandler{
		shareholderService: shareholderService,
		validationService:  validationService,
	}
}

// CreateShareholderRequest represents the request payload for creating a
// register entry.
type CreateShareholderRequest struct {
	Number     string     `json:"number" binding:"required,min=1,max=50"`
	Name       string     `json:"name" binding:"required,min=1,max=200"`
	Email      string     `json:"email" binding:"omitempty,email"`
	LegalType  string     `json:"legal_type" binding:"omitempty,legal_type"`
	Birthday   *time.Time `json:"birthday"`
	Street     string     `json:"street" binding:"max=200"`
	City       string     `json:"city" binding:"max=100"`
	PostalCode string     `json:"postal_code" binding:"max=20"`
	Country    string     `json:"country" binding:"omitempty,country_code"`
}

// OwnsSegmentsRequest represents the request payload for an ownership check.
type OwnsSegmentsRequest struct {
	SecurityID string        `json:"security_id" binding:"required,uuid"`
	Segments   segments.List `json:"segments" binding:"required"`
	Options    bool          `json:"options"`
}

// balanceQuery reads the shared balance filters from the query string.
func balanceQuery(c *gin.Context) (services.BalanceQuery, error) {
	date, err := queryDate(c, "date")
	if err != nil {
		return services.BalanceQuery{}, err
	}
	return services.BalanceQuery{
		Date:           date,
		SecurityID:     c.Query("security_id"),
		OnlySellable:   c.Query("only_sellable") == "true",
		ExpiredVesting: c.Query("expired_vesting") == "true",
		WithoutVesting: c.Query("without_vesting") == "true",
	}, nil
}

// CreateShareholder adds a register entry to a company.
func (h *ShareholderHandler) CreateShareholder(c *gin.Context) {
	companyID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateShareholderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	sh, err := h.shareholderService.CreateShareholder(companyID, services.CreateShareholderParams{
		Number:     req.Number,
		Name:       req.Name,
		Email:      req.Email,
		LegalType:  models.LegalType(req.LegalType),
		Birthday:   req.Birthday,
		Street:     req.Street,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"shareholder": sh})
}

// GetCompanyShareholders lists the register, paginated.
func (h *ShareholderHandler) GetCompanyShareholders(c *gin.Context) {
	companyID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.shareholderService.GetCompanyShareholders(companyID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetShareholderByID returns one register entry.
func (h *ShareholderHandler) GetShareholderByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	sh, err := h.shareholderService.GetShareholderByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"shareholder": sh})
}

// GetBalance returns every derived balance of a shareholder under the
// query filters. Values without a defined answer come back as null.
func (h *ShareholderHandler) GetBalance(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	sh, err := h.shareholderService.GetShareholderByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	q, err := balanceQuery(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	shareCount, err := h.shareholderService.ShareCount(sh, q)
	if err != nil {
		respondWithError(c, err)
		return
	}
	optionsCount, err := h.shareholderService.OptionsCount(sh, q.Date, q.SecurityID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	voteCount, err := h.shareholderService.VoteCount(sh, q.Date, q.SecurityID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	body := gin.H{
		"share_count":   shareCount,
		"options_count": optionsCount,
		"vote_count":    voteCount,
	}

	if face, ok, err := h.shareholderService.CumulatedFaceValue(sh, q.SecurityID, q.Date); err != nil {
		respondWithError(c, err)
		return
	} else if ok {
		body["cumulated_face_value"] = face
	} else {
		body["cumulated_face_value"] = nil
	}

	if pct, ok, err := h.shareholderService.VotePercent(sh, q.Date); err != nil {
		respondWithError(c, err)
		return
	} else if ok {
		body["vote_percent"] = pct
	} else {
		body["vote_percent"] = nil
	}

	if pct, ok, err := h.shareholderService.SharePercent(sh, q.Date, q.SecurityID); err != nil {
		respondWithError(c, err)
		return
	} else if ok {
		body["share_percent"] = pct
	} else {
		body["share_percent"] = nil
	}

	if value, ok, err := h.shareholderService.ShareValue(sh, q.Date, q.SecurityID); err != nil {
		respondWithError(c, err)
		return
	} else if ok {
		body["share_value"] = value
	} else {
		body["share_value"] = nil
	}

	c.JSON(http.StatusOK, body)
}

// GetSegments returns the certificate numbers a shareholder owns.
func (h *ShareholderHandler) GetSegments(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	sh, err := h.shareholderService.GetShareholderByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	date, err := queryDate(c, "date")
	if err != nil {
		respondWithError(c, err)
		return
	}

	segs, err := h.shareholderService.CurrentSegments(sh, c.Query("security_id"), date)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"segments":       segs,
		"human_readable": segments.HumanReadable(segs),
		"count":          segments.Count(segs),
	})
}

// GetOptionSegments returns the option numbers a shareholder holds.
func (h *ShareholderHandler) GetOptionSegments(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	sh, err := h.shareholderService.GetShareholderByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	date, err := queryDate(c, "date")
	if err != nil {
		respondWithError(c, err)
		return
	}

	segs, err := h.shareholderService.CurrentOptionsSegments(sh, c.Query("security_id"), c.Query("option_plan_id"), date)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"segments":       segs,
		"human_readable": segments.HumanReadable(segs),
		"count":          segments.Count(segs),
	})
}

// CheckOwnsSegments runs an ownership check on requested numbers.
func (h *ShareholderHandler) CheckOwnsSegments(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	sh, err := h.shareholderService.GetShareholderByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req OwnsSegmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var check *services.OwnershipCheck
	if req.Options {
		check, err = h.shareholderService.OwnsOptionsSegments(sh, req.Segments, req.SecurityID)
	} else {
		check, err = h.shareholderService.OwnsSegments(sh, req.Segments, req.SecurityID)
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, check)
}

// GafiValidate runs the AML completeness check on one register entry.
func (h *ShareholderHandler) GafiValidate(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	sh, err := h.shareholderService.GetShareholderByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.validationService.GafiValidate(sh)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
