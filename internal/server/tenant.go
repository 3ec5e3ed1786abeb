package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	tenantdomain "github.com/mesahq/mesa/internal/tenant/domain"
)

type tenantView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at"`
}

func newTenantView(t *tenantdomain.Tenant) tenantView {
	return tenantView{
		ID:           t.ID.String(),
		Name:         t.Name,
		ContactEmail: t.ContactEmail,
		IsActive:     t.IsActive,
		CreatedAt:    t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// RegisterTenant creates a tenant and its trial subscription in one call.
func (s *Server) RegisterTenant(c *gin.Context) {
	var req tenantdomain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenant, err := s.tenantSvc.Register(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newTenantView(tenant))
}
