package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paycore/internal/payment/domain"
)

const maxWebhookBody = 1 << 20

var signatureHeaders = map[domain.GatewayName]string{
	domain.GatewayStripe:   "Stripe-Signature",
	domain.GatewayPaystack: "X-Paystack-Signature",
}

// HandlePaymentWebhook forwards the raw body untouched; signatures are
// computed over the exact bytes the provider sent.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	name := domain.ParseGatewayName(c.Param("gateway"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.paymentSvc.HandleWebhook(c.Request.Context(), name, payload, webhookSignature(c, name))
	if err != nil {
		if errors.Is(err, domain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func webhookSignature(c *gin.Context, name domain.GatewayName) string {
	if header, ok := signatureHeaders[name]; ok {
		return strings.TrimSpace(c.GetHeader(header))
	}
	for _, header := range signatureHeaders {
		if value := strings.TrimSpace(c.GetHeader(header)); value != "" {
			return value
		}
	}
	return ""
}
