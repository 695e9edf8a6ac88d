package handlers

import (
	"context"
	"net/http"

	"github.com/fatflowers/payment-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PaymentCounter interface {
	Count(ctx context.Context) (int64, error)
}

type HealthStatus struct {
	Status   string `json:"status"`
	Payments int64  `json:"payments"`
}

// @Summary      Health check
// @Description  Returns service status and the number of stored payments
// @Tags         System
// @Produce      json
// @Success      200  {object}  handlers.RespHealth
// @Failure      500  {object}  handlers.RespOK
// @Router       /healthz [get]
func Healthz(counter PaymentCounter, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := counter.Count(c.Request.Context())
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(HealthStatus{Status: "ok", Payments: n}))
	}
}

func RegisterHealthRoutes(r gin.IRouter, counter PaymentCounter, log *zap.SugaredLogger) {
	r.GET("/healthz", Healthz(counter, log))
}
