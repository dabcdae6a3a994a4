package handler

import (
	"net/http"

	catalogService "course_checkout/internal/domain/catalog/service"
	"course_checkout/internal/domain/coupon/service"
	"course_checkout/internal/pkg/apperr"
	commonHandler "course_checkout/internal/pkg/common"
	"course_checkout/internal/pkg/middleware"
	"course_checkout/pkg/response"

	"github.com/gin-gonic/gin"
)

type CouponHandler struct {
	prices    catalogService.PriceCalculator
	validator service.CouponValidator
}

func NewCouponHandler(prices catalogService.PriceCalculator, validator service.CouponValidator) *CouponHandler {
	return &CouponHandler{prices: prices, validator: validator}
}

type ValidateCouponInput struct {
	CourseID string `json:"course_id" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

// PreviewResult 结算页预览
type PreviewResult struct {
	CourseID       string `json:"course_id"`
	Code           string `json:"code"`
	Currency       string `json:"currency"`
	BaseAmount     int64  `json:"base_amount"`
	DiscountAmount int64  `json:"discount_amount"`
	FinalAmount    int64  `json:"final_amount"`
}

// ValidateCoupon 优惠券预览，不占用名额
// @Summary 校验优惠券并返回报价
// @Tags Coupon
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body ValidateCouponInput true "course and code"
// @Success 200 {object} response.Response{data=PreviewResult}
// @Router /coupons/validate [post]
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	uid, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "User not authenticated")
		return
	}

	var input ValidateCouponInput
	if err := c.ShouldBindJSON(&input); err != nil {
		commonHandler.BindError(c, err)
		return
	}

	ctx := c.Request.Context()
	price, err := h.prices.ComputePrice(ctx, input.CourseID)
	if err != nil {
		commonHandler.HandleError(c, err)
		return
	}

	quote, err := h.validator.Validate(ctx, input.Code, input.CourseID, uid, price.Amount)
	if err != nil {
		if apperr.IsCouponRejection(err) {
			response.Fail(c, apperr.CodeOf(err), apperr.MessageOf(err))
			return
		}
		commonHandler.HandleError(c, err)
		return
	}

	response.Success(c, PreviewResult{
		CourseID:       input.CourseID,
		Code:           quote.Code,
		Currency:       price.Currency,
		BaseAmount:     price.Amount,
		DiscountAmount: quote.DiscountAmount,
		FinalAmount:    quote.FinalPrice,
	})
}
