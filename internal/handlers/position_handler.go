package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "captable/internal/errors"
	"captable/internal/pagination"
	"captable/internal/segments"
	"captable/internal/services"
)

// PositionHandler handles the transfer API over the position log.
type PositionHandler struct {
	positionService services.PositionServicer
}

// NewPositionHandler creates a new PositionHandler.
func NewPositionHandler(positionService services.PositionServicer) *PositionHandler {
	return &PositionHandler{positionService: positionService}
}

// CreatePositionRequest represents the request payload for recording a
// transfer, capital increase (no seller) or destruction (no buyer).
type CreatePositionRequest struct {
	BuyerID        *string       `json:"buyer_id" binding:"omitempty,uuid"`
	SellerID       *string       `json:"seller_id" binding:"omitempty,uuid"`
	SecurityID     string        `json:"security_id" binding:"required,uuid"`
	Count          int64         `json:"count" binding:"required,gt=0"`
	BoughtAt       time.Time     `json:"bought_at" binding:"required"`
	Value          *string       `json:"value"`
	NumberSegments segments.List `json:"number_segments"`
	CertificateID  *string       `json:"certificate_id" binding:"omitempty,max=100"`
	VestingMonths  *int          `json:"vesting_months" binding:"omitempty,gt=0"`
	Comment        string        `json:"comment" binding:"max=500"`
}

// CreatePosition records a new draft position.
func (h *PositionHandler) CreatePosition(c *gin.Context) {
	companyID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreatePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	params := services.CreatePositionParams{
		CompanyID:      companyID,
		BuyerID:        req.BuyerID,
		SellerID:       req.SellerID,
		SecurityID:     req.SecurityID,
		Count:          req.Count,
		BoughtAt:       req.BoughtAt,
		NumberSegments: req.NumberSegments,
		CertificateID:  req.CertificateID,
		VestingMonths:  req.VestingMonths,
		Comment:        req.Comment,
	}
	if req.Value != nil {
		value, err := decimal.NewFromString(*req.Value)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid value"))
			return
		}
		params.Value = decimal.NewNullDecimal(value)
	}

	position, err := h.positionService.CreatePosition(params)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"position": position})
}

// GetCompanyPositions lists the position log, paginated and filtered.
func (h *PositionHandler) GetCompanyPositions(c *gin.Context) {
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

	fromDate, err := queryDate(c, "from_date")
	if err != nil {
		respondWithError(c, err)
		return
	}
	toDate, err := queryDate(c, "to_date")
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.positionService.GetCompanyPositions(companyID, page, services.PositionFilter{
		SecurityID:    c.Query("security_id"),
		ShareholderID: c.Query("shareholder_id"),
		FromDate:      fromDate,
		ToDate:        toDate,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPositionByID returns one position.
func (h *PositionHandler) GetPositionByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	position, err := h.positionService.GetPositionByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"position": position})
}

// ConfirmPosition flips a draft position to confirmed.
func (h *PositionHandler) ConfirmPosition(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	position, err := h.positionService.ConfirmPosition(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"position": position})
}

// DeletePosition removes a draft position.
func (h *PositionHandler) DeletePosition(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.positionService.DeletePosition(id); err != nil {
		respondWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// InvalidateCertificate takes a deposited certificate out of the depot.
func (h *PositionHandler) InvalidateCertificate(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	returnRow, err := h.positionService.InvalidateCertificate(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"position": returnRow})
}
