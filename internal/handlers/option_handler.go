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

// OptionHandler handles option plans and their transaction log.
type OptionHandler struct {
	optionService services.OptionServicer
}

// NewOptionHandler creates a new OptionHandler.
func NewOptionHandler(optionService services.OptionServicer) *OptionHandler {
	return &OptionHandler{optionService: optionService}
}

// CreateOptionPlanRequest represents the request payload for creating an
// option plan.
type CreateOptionPlanRequest struct {
	SecurityID      string        `json:"security_id" binding:"required,uuid"`
	Title           string        `json:"title" binding:"required,min=1,max=200"`
	Count           int64         `json:"count" binding:"required,gt=0"`
	ExercisePrice   *string       `json:"exercise_price"`
	BoardApprovedAt *time.Time    `json:"board_approved_at"`
	NumberSegments  segments.List `json:"number_segments"`
}

// CreateOptionTransactionRequest represents the request payload for
// recording an option grant, transfer or return.
type CreateOptionTransactionRequest struct {
	OptionPlanID   string        `json:"option_plan_id" binding:"required,uuid"`
	BuyerID        *string       `json:"buyer_id" binding:"omitempty,uuid"`
	SellerID       *string       `json:"seller_id" binding:"omitempty,uuid"`
	Count          int64         `json:"count" binding:"required,gt=0"`
	BoughtAt       time.Time     `json:"bought_at" binding:"required"`
	NumberSegments segments.List `json:"number_segments"`
	CertificateID  *string       `json:"certificate_id" binding:"omitempty,max=100"`
	VestingMonths  *int          `json:"vesting_months" binding:"omitempty,gt=0"`
	Comment        string        `json:"comment" binding:"max=500"`
}

// CreateOptionPlan registers a new option pool.
func (h *OptionHandler) CreateOptionPlan(c *gin.Context) {
	companyID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateOptionPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	plan := &models.OptionPlan{
		SecurityID:      req.SecurityID,
		Title:           req.Title,
		Count:           req.Count,
		BoardApprovedAt: req.BoardApprovedAt,
		NumberSegments:  req.NumberSegments,
	}
	if req.ExercisePrice != nil {
		price, err := decimal.NewFromString(*req.ExercisePrice)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid exercise_price"))
			return
		}
		plan.ExercisePrice = decimal.NewNullDecimal(price)
	}

	created, err := h.optionService.CreateOptionPlan(companyID, plan)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"option_plan": created})
}

// GetOptionPlanByID returns one option plan.
func (h *OptionHandler) GetOptionPlanByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	plan, err := h.optionService.GetOptionPlanByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"option_plan": plan})
}

// CreateOptionTransaction records a new draft option transaction.
func (h *OptionHandler) CreateOptionTransaction(c *gin.Context) {
	companyID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateOptionTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	tx, err := h.optionService.CreateOptionTransaction(services.CreateOptionTransactionParams{
		CompanyID:      companyID,
		OptionPlanID:   req.OptionPlanID,
		BuyerID:        req.BuyerID,
		SellerID:       req.SellerID,
		Count:          req.Count,
		BoughtAt:       req.BoughtAt,
		NumberSegments: req.NumberSegments,
		CertificateID:  req.CertificateID,
		VestingMonths:  req.VestingMonths,
		Comment:        req.Comment,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"option_transaction": tx})
}

// ConfirmOptionTransaction flips a draft transaction to confirmed.
func (h *OptionHandler) ConfirmOptionTransaction(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	tx, err := h.optionService.ConfirmOptionTransaction(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"option_transaction": tx})
}

// DeleteOptionTransaction removes a draft transaction.
func (h *OptionHandler) DeleteOptionTransaction(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.optionService.DeleteOptionTransaction(id); err != nil {
		respondWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
