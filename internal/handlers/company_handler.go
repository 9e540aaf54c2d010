package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "captable/internal/errors"
	"captable/internal/models"
	"captable/internal/segments"
	"captable/internal/services"
)

// CompanyHandler handles company, security and split requests.
type CompanyHandler struct {
	companyService    services.CompanyServicer
	splitService      services.SplitServicer
	validationService services.ValidationServicer
}

// NewCompanyHandler creates a new CompanyHandler.
func NewCompanyHandler(companyService services.CompanyServicer, splitService services.SplitServicer, validationService services.ValidationServicer) *CompanyHandler {
	return &CompanyHandler{
		companyService:    companyService,
		splitService:      splitService,
		validationService: validationService,
	}
}

// CreateCompanyRequest represents the request payload for creating a company.
type CreateCompanyRequest struct {
	Name          string `json:"name" binding:"required,min=1,max=200"`
	Country       string `json:"country" binding:"omitempty,country_code"`
	OperatorEmail string `json:"operator_email" binding:"omitempty,email"`
	Plan          string `json:"plan" binding:"omitempty,plan_key"`
}

// CreateSecurityRequest represents the request payload for creating a security.
type CreateSecurityRequest struct {
	Kind           string        `json:"kind" binding:"required,security_kind"`
	FaceValue      *string       `json:"face_value"`
	VoteRatio      int64         `json:"vote_ratio" binding:"gte=0"`
	Count          int64         `json:"count" binding:"gte=0"`
	TrackNumbers   bool          `json:"track_numbers"`
	NumberSegments segments.List `json:"number_segments"`
}

// SplitRequest represents the request payload for a share split.
type SplitRequest struct {
	ExecuteAt  time.Time `json:"execute_at" binding:"required"`
	Dividend   int64     `json:"dividend" binding:"required,gt=0"`
	Divisor    int64     `json:"divisor" binding:"required,gt=0"`
	SecurityID string    `json:"security_id" binding:"required,uuid"`
	Comment    string    `json:"comment" binding:"max=500"`
}

// ValidatePlanRequest represents the request payload for a downgrade check.
type ValidatePlanRequest struct {
	Plan string `json:"plan" binding:"required,plan_key"`
}

// CreateCompany handles the creation of a new company and its company
// shareholder.
func (h *CompanyHandler) CreateCompany(c *gin.Context) {
	var req CreateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	company, err := h.companyService.CreateCompany(req.Name, req.Country, req.OperatorEmail, req.Plan)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"company": company})
}

// GetCompanyByID returns one company.
func (h *CompanyHandler) GetCompanyByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	company, err := h.companyService.GetCompanyByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"company": company})
}

// CreateSecurity adds a security class to a company.
func (h *CompanyHandler) CreateSecurity(c *gin.Context) {
	companyID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateSecurityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	sec := &models.Security{
		Kind:           models.SecurityKind(req.Kind),
		VoteRatio:      req.VoteRatio,
		Count:          req.Count,
		TrackNumbers:   req.TrackNumbers,
		NumberSegments: req.NumberSegments,
	}
	if req.FaceValue != nil {
		face, err := decimal.NewFromString(*req.FaceValue)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid face_value"))
			return
		}
		sec.FaceValue = decimal.NewNullDecimal(face)
	}

	created, err := h.companyService.CreateSecurity(companyID, sec)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"security": created})
}

// GetSecurityByID returns one security.
func (h *CompanyHandler) GetSecurityByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	sec, err := h.companyService.GetSecurityByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"security": sec})
}

// GetActiveShareholders lists shareholders with a nonzero balance at the
// optional date.
func (h *CompanyHandler) GetActiveShareholders(c *gin.Context) {
	companyID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	at, err := queryDate(c, "date")
	if err != nil {
		respondWithError(c, err)
		return
	}

	active, err := h.companyService.ActiveShareholders(companyID, at)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if active == nil {
		active = []models.Shareholder{}
	}

	c.JSON(http.StatusOK, gin.H{"shareholders": active})
}

// GetTotalVotes returns the company-wide vote totals.
func (h *CompanyHandler) GetTotalVotes(c *gin.Context) {
	companyID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	at, err := queryDate(c, "date")
	if err != nil {
		respondWithError(c, err)
		return
	}

	total, err := h.companyService.TotalVotes(companyID, at)
	if err != nil {
		respondWithError(c, err)
		return
	}
	inOptions, err := h.companyService.TotalVotesInOptions(companyID, at)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_votes":            total,
		"total_votes_in_options": inOptions,
	})
}

// SplitShares executes a share split.
func (h *CompanyHandler) SplitShares(c *gin.Context) {
	companyID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	partials, err := h.splitService.SplitShares(companyID, services.SplitParams{
		ExecuteAt:  req.ExecuteAt,
		Dividend:   req.Dividend,
		Divisor:    req.Divisor,
		SecurityID: req.SecurityID,
		Comment:    req.Comment,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"partials": partials})
}

// ValidatePlan checks whether the company fits the named plan.
func (h *CompanyHandler) ValidatePlan(c *gin.Context) {
	companyID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ValidatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	company, err := h.companyService.GetCompanyByID(companyID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ok, failures := h.validationService.ValidatePlan(company, req.Plan)
	messages := make([]string, 0, len(failures))
	for _, f := range failures {
		messages = append(messages, f.Error())
	}

	c.JSON(http.StatusOK, gin.H{"valid": ok, "errors": messages})
}
