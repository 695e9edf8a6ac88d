package handlers

import (
	"context"
	"net/http"

	"github.com/fatflowers/payment-engine/internal/app/service/reconcile"
	"github.com/fatflowers/payment-engine/pkg/logctx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type WebhookReconciler interface {
	Handle(ctx context.Context, provider string, rawBody []byte, header http.Header) (*reconcile.Result, error)
}

type WebhookAck struct {
	Received bool `json:"received"`
}

// @Summary      Provider webhook
// @Description  Receives a provider webhook. The raw body is verified against the provider signature header (X-Razorpay-Signature or Stripe-Signature) before anything is recorded.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        provider  path  string  true  "Provider"  Enums(razorpay, stripe)
// @Param        payload   body  string  true  "Raw provider payload"
// @Success      200  {object}  handlers.WebhookAck
// @Failure      400  {object}  handlers.RespOK
// @Router       /payments/webhook/{provider} [post]
func ApiProviderWebhook(rec WebhookReconciler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("provider")
		logctx.FromGin(c, log).Infow("webhook_received", "provider", name)

		raw, err := c.GetRawData()
		if err != nil {
			badRequest(c, err)
			return
		}
		res, err := rec.Handle(c.Request.Context(), name, raw, c.Request.Header)
		if err != nil {
			writeError(c, log, err)
			return
		}
		logctx.FromGin(c, log).Infow("webhook_processed", "provider", name, "outcome", res.Outcome)
		c.JSON(http.StatusOK, WebhookAck{Received: true})
	}
}

func RegisterWebhookRoutes(r gin.IRouter, rec WebhookReconciler, log *zap.SugaredLogger) {
	r.POST("/:provider", ApiProviderWebhook(rec, log))
}
