package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	tenantdomain "github.com/mesahq/mesa/internal/tenant/domain"
	"github.com/mesahq/mesa/internal/tenantcontext"
	"go.uber.org/zap"
)

// Identity headers set by the fronting application after session
// authentication. The billing core trusts them on its internal network.
const (
	headerUserID       = "X-Mesa-User-Id"
	headerTenantID     = "X-Mesa-Tenant-Id"
	headerRole         = "X-Mesa-Role"
	headerActingTenant = "X-Mesa-Acting-Tenant"
	headerRequestID    = "X-Request-Id"
)

const (
	contextPrincipalKey = "principal"
	contextTenantIDKey  = "tenant_id"
)

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.GetHeader(headerRequestID)),
		)
	}
}

// withPrincipal parses the identity headers and enriches the request
// context for audit logging. It does not reject; route groups decide what
// they require.
func (s *Server) withPrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := tenantdomain.Principal{
			Role: strings.TrimSpace(c.GetHeader(headerRole)),
		}
		if raw := strings.TrimSpace(c.GetHeader(headerUserID)); raw != "" {
			if userID, err := snowflake.ParseString(raw); err == nil {
				principal.UserID = userID
			}
		}
		if raw := strings.TrimSpace(c.GetHeader(headerTenantID)); raw != "" {
			if tenantID, err := snowflake.ParseString(raw); err == nil {
				principal.TenantID = &tenantID
			}
		}
		c.Set(contextPrincipalKey, principal)

		ctx := c.Request.Context()
		if principal.UserID != 0 {
			ctx = tenantcontext.WithActor(ctx, "user", principal.UserID.String())
		}
		ctx = tenantcontext.WithRequestID(ctx, c.GetHeader(headerRequestID))
		ctx = tenantcontext.WithIPAddress(ctx, c.ClientIP())
		ctx = tenantcontext.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// requireTenant resolves the owning tenant and pins it on the request. A
// superuser may act on another tenant through the acting-tenant header;
// every such bypass is written to the audit log before the request runs.
func (s *Server) requireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := s.principalFrom(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()

		if acting := strings.TrimSpace(c.GetHeader(headerActingTenant)); acting != "" {
			if !s.tenantSvc.IsCrossTenantSuperuser(principal) {
				AbortWithError(c, ErrForbidden)
				return
			}
			target, err := snowflake.ParseString(acting)
			if err != nil {
				AbortWithError(c, newValidationError(headerActingTenant, "invalid_tenant_id", "acting tenant id is invalid"))
				return
			}
			if err := s.tenantSvc.RecordScopeBypass(ctx, principal, target); err != nil {
				AbortWithError(c, err)
				return
			}
			s.bindTenant(c, target)
			c.Next()
			return
		}

		tenantID, err := s.tenantSvc.Resolve(ctx, principal)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		s.bindTenant(c, tenantID)
		c.Next()
	}
}

func (s *Server) bindTenant(c *gin.Context, tenantID snowflake.ID) {
	c.Set(contextTenantIDKey, tenantID)
	c.Request = c.Request.WithContext(tenantcontext.WithTenant(c.Request.Context(), tenantID))
}

func (s *Server) principalFrom(c *gin.Context) (tenantdomain.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return tenantdomain.Principal{}, false
	}
	principal, ok := value.(tenantdomain.Principal)
	if !ok || principal.UserID == 0 {
		return tenantdomain.Principal{}, false
	}
	return principal, true
}

func (s *Server) tenantFrom(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextTenantIDKey)
	if !ok {
		return 0, false
	}
	tenantID, ok := value.(snowflake.ID)
	return tenantID, ok && tenantID != 0
}
