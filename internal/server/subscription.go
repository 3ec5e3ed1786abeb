package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/mesahq/mesa/internal/subscription/domain"
)

type subscriptionView struct {
	ID                 string     `json:"id"`
	Plan               string     `json:"plan"`
	PendingPlan        string     `json:"pending_plan,omitempty"`
	PeriodMonths       int        `json:"period_months"`
	Status             string     `json:"status"`
	Currency           string     `json:"currency"`
	TrialEnd           *time.Time `json:"trial_end,omitempty"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	CancelAt           *time.Time `json:"cancel_at,omitempty"`
	CreditAmount       int64      `json:"credit_amount"`
	RetryCount         int        `json:"retry_count"`
}

func newSubscriptionView(sub *subscriptiondomain.Subscription) subscriptionView {
	view := subscriptionView{
		ID:                 sub.ID.String(),
		Plan:               sub.Plan,
		PeriodMonths:       sub.PeriodMonths,
		Status:             string(sub.Status),
		Currency:           sub.Currency,
		TrialEnd:           sub.TrialEnd,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAt:           sub.CancelAt,
		CreditAmount:       sub.CreditAmount,
		RetryCount:         sub.RetryCount,
	}
	if sub.PendingPlan != nil {
		view.PendingPlan = *sub.PendingPlan
	}
	return view
}

// BillingAccess is the gate the fronting application polls to decide what
// a tenant may do.
func (s *Server) BillingAccess(c *gin.Context) {
	tenantID, ok := s.tenantFrom(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	access, err := s.subSvc.Access(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, access)
}

func (s *Server) GetSubscription(c *gin.Context) {
	tenantID, ok := s.tenantFrom(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	sub, err := s.subSvc.Get(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSubscriptionView(sub))
}

func (s *Server) CancelSubscription(c *gin.Context) {
	tenantID, ok := s.tenantFrom(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	sub, err := s.subSvc.Cancel(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSubscriptionView(sub))
}

func (s *Server) ReactivateSubscription(c *gin.Context) {
	tenantID, ok := s.tenantFrom(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	if err := s.subSvc.Reactivate(c.Request.Context(), tenantID); err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err := s.subSvc.Get(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSubscriptionView(sub))
}

type changePlanRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) ChangePlan(c *gin.Context) {
	tenantID, ok := s.tenantFrom(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Plan == "" {
		AbortWithError(c, newValidationError("plan", "required", "plan is required"))
		return
	}

	result, err := s.subSvc.ChangePlan(c.Request.Context(), tenantID, req.Plan)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
