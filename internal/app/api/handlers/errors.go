package handlers

import (
	"errors"

	"github.com/fatflowers/payment-engine/internal/app/service/payment"
	"github.com/fatflowers/payment-engine/internal/app/service/reconcile"
	"github.com/fatflowers/payment-engine/internal/app/service/refund"
	"github.com/fatflowers/payment-engine/pkg/logctx"
	"github.com/fatflowers/payment-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errorCode classifies a service error into an envelope code.
func errorCode(err error) response.APIResponseCode {
	switch {
	case errors.Is(err, payment.ErrInvalidRequest),
		errors.Is(err, refund.ErrInvalidAmount),
		errors.Is(err, reconcile.ErrUnsupportedProvider),
		errors.Is(err, reconcile.ErrMissingSignature),
		errors.Is(err, reconcile.ErrInvalidSignature),
		errors.Is(err, reconcile.ErrMalformedPayload):
		return response.APIResponseCodeBadRequest
	case errors.Is(err, payment.ErrOrderForbidden):
		return response.APIResponseCodeUnauthorized
	case errors.Is(err, payment.ErrNotFound),
		errors.Is(err, payment.ErrOrderNotFound),
		errors.Is(err, refund.ErrPaymentNotFound):
		return response.APIResponseCodeNotFound
	case errors.Is(err, payment.ErrConflict):
		return response.APIResponseCodeConflict
	case errors.Is(err, refund.ErrNotRefundable),
		errors.Is(err, refund.ErrUnsupportedProvider):
		return response.APIResponseCodeUnprocessable
	case errors.Is(err, payment.ErrUpstreamUnavailable),
		errors.Is(err, refund.ErrProviderFailed):
		return response.APIResponseCodeUpstream
	default:
		return response.APIResponseCodeError
	}
}

func writeError(c *gin.Context, log *zap.SugaredLogger, err error) {
	code := errorCode(err)
	if code == response.APIResponseCodeError {
		logctx.FromGin(c, log).Errorw("request_failed", "path", c.FullPath(), "err", err)
		c.JSON(code.HTTPStatus(), response.ErrorT[any](code, nil))
		return
	}
	logctx.FromGin(c, log).Infow("request_rejected", "path", c.FullPath(), "code", code, "err", err)
	c.JSON(code.HTTPStatus(), response.ErrorT[any](code, err.Error()))
}

func badRequest(c *gin.Context, err error) {
	code := response.APIResponseCodeBadRequest
	c.JSON(code.HTTPStatus(), response.ErrorT[any](code, err.Error()))
}
