package service

import (
	"course_checkout/internal/pkg/apperr"
	"course_checkout/pkg/response"
)

var (
	ErrOrderNotFound      = apperr.NotFound(response.ErrOrderNotFound, "order not found")
	ErrOrderNotPayable    = apperr.Conflict(response.ErrOrderNotPayable, "order is no longer payable")
	ErrOrderAlreadyPaid   = apperr.Conflict(response.ErrOrderAlreadyPaid, "order is already paid")
	ErrPaymentReplay      = apperr.Conflict(response.ErrPaymentReplay, "payment id already used by another order")
	ErrSettlementConflict = apperr.Conflict(response.ErrSettlementConflict, "order changed concurrently, check status before retrying")
	ErrSignatureInvalid   = apperr.Security(response.ErrSignatureInvalid, "payment signature verification failed")
	ErrWebhookInvalid     = apperr.Security(response.ErrWebhookInvalid, "webhook signature verification failed")
	ErrPaymentNotFound    = apperr.NotFound(response.ErrPaymentNotFound, "payment record not found")
)

func errGatewayUnavailable(err error) *apperr.Error {
	return apperr.Gateway(response.ErrGatewayUnavailable, "payment gateway unavailable, create a new order", err)
}

func errGatewayTimeout(err error) *apperr.Error {
	return apperr.Gateway(response.ErrGatewayTimeout, "payment gateway did not answer in time, retry this order", err)
}
