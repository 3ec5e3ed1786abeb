package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	pmdomain "github.com/mesahq/mesa/internal/paymentmethod/domain"
)

type paymentMethodView struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Provider   string    `json:"provider"`
	Last4      string    `json:"last4"`
	Brand      string    `json:"brand"`
	ExpMonth   int       `json:"exp_month"`
	ExpYear    int       `json:"exp_year"`
	HolderName string    `json:"holder_name,omitempty"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
}

func newPaymentMethodView(m *pmdomain.PaymentMethod) paymentMethodView {
	return paymentMethodView{
		ID:         m.ID.String(),
		Type:       m.Type,
		Provider:   m.Provider,
		Last4:      m.Last4,
		Brand:      m.Brand,
		ExpMonth:   m.ExpMonth,
		ExpYear:    m.ExpYear,
		HolderName: m.HolderName,
		IsDefault:  m.IsDefault,
		CreatedAt:  m.CreatedAt,
	}
}

func (s *Server) ListPaymentMethods(c *gin.Context) {
	tenantID, ok := s.tenantFrom(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	methods, err := s.pmSvc.List(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]paymentMethodView, 0, len(methods))
	for _, m := range methods {
		views = append(views, newPaymentMethodView(m))
	}
	c.JSON(http.StatusOK, gin.H{"payment_methods": views})
}

func (s *Server) AddPaymentMethod(c *gin.Context) {
	tenantID, ok := s.tenantFrom(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req pmdomain.AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	method, err := s.pmSvc.Add(c.Request.Context(), tenantID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newPaymentMethodView(method))
}

func (s *Server) SetDefaultPaymentMethod(c *gin.Context) {
	tenantID, ok := s.tenantFrom(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	methodID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "payment method id is invalid"))
		return
	}

	if err := s.pmSvc.SetDefault(c.Request.Context(), tenantID, methodID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) DeactivatePaymentMethod(c *gin.Context) {
	tenantID, ok := s.tenantFrom(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	methodID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "payment method id is invalid"))
		return
	}

	if err := s.pmSvc.Deactivate(c.Request.Context(), tenantID, methodID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
