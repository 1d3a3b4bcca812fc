package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	obscontext "github.com/smallbiznis/paycore/internal/observability/context"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	paymentservice "github.com/smallbiznis/paycore/internal/payment/service"
)

type createSubscriptionRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	PlanID        string `json:"plan_id" binding:"required"`
	PaymentMethod string `json:"payment_method"`
}

type cancelSubscriptionRequest struct {
	CancelAtPeriodEnd *bool `json:"cancel_at_period_end"`
}

type updateSubscriptionRequest struct {
	Amount       *decimal.Decimal  `json:"amount"`
	BillingCycle string            `json:"billing_cycle"`
	Metadata     map[string]string `json:"metadata"`
}

type processPaymentRequest struct {
	UserID        string          `json:"user_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	PaymentMethod string          `json:"payment_method"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID := withUser(c, req.UserID)
	resp, err := s.paymentSvc.CreateSubscription(
		c.Request.Context(),
		userID,
		strings.TrimSpace(req.PlanID),
		paymentMethod(req.PaymentMethod),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	var req cancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}
	atPeriodEnd := true
	if req.CancelAtPeriodEnd != nil {
		atPeriodEnd = *req.CancelAtPeriodEnd
	}

	resp, err := s.paymentSvc.CancelSubscription(c.Request.Context(), id, atPeriodEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateSubscription(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	var req updateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.UpdateSubscription(c.Request.Context(), id, paymentservice.SubscriptionUpdate{
		Amount:       req.Amount,
		BillingCycle: domain.BillingCycle(strings.ToLower(strings.TrimSpace(req.BillingCycle))),
		Metadata:     req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ProcessPayment(c *gin.Context) {
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID := withUser(c, req.UserID)
	resp, err := s.paymentSvc.ProcessPayment(
		c.Request.Context(),
		userID,
		req.Amount,
		strings.TrimSpace(req.Description),
		paymentMethod(req.PaymentMethod),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RouteGateway(c *gin.Context) {
	var query struct {
		Currency string `form:"currency" binding:"required"`
		Method   string `form:"method"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, newValidationError("currency", "invalid_currency", "currency is required"))
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(query.Currency))
	method := paymentMethod(query.Method)
	best := s.router.Best(currency, method)
	resp := gin.H{
		"currency":   currency,
		"gateway":    best,
		"supporting": s.router.Supporting(currency, method),
	}
	if s.gateways != nil {
		_, err := s.gateways.Get(best)
		resp["configured"] = err == nil
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// withUser tags the request context so request logs carry the user.
func withUser(c *gin.Context, raw string) string {
	userID := strings.TrimSpace(raw)
	c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), userID))
	return userID
}

func subscriptionID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id <= 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid subscription id"))
		return 0, false
	}
	return id, true
}

func paymentMethod(raw string) domain.PaymentMethod {
	return domain.PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
}
