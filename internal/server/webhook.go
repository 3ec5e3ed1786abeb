package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mesahq/mesa/internal/observability/logger"
)

const maxWebhookBody = 1 << 20

func signatureHeader(provider string) string {
	if provider == "stripe" {
		return "Stripe-Signature"
	}
	return "X-Mesa-Signature"
}

// HandleWebhook ingests one processor delivery. A 200 means the delivery
// is settled and must not be redelivered; signature and payload failures
// return 4xx so a misconfigured sender notices.
func (s *Server) HandleWebhook(c *gin.Context) {
	provider := c.Param("provider")

	if !s.webhookLimiter.Allow(provider + ":" + c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": gin.H{"code": "rate_limited"}})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sig := c.GetHeader(signatureHeader(provider))

	if err := s.webhookSvc.Handle(c.Request.Context(), provider, payload, sig); err != nil {
		s.log.Warn("webhook rejected",
			zap.String("provider", provider),
			zap.Any("headers", logger.MaskHeaders(c.Request.Header)),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
