package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/mesahq/mesa/internal/audit/domain"
)

type auditLogView struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id,omitempty"`
	ActorType  string         `json:"actor_type"`
	ActorID    string         `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func newAuditLogView(entry *auditdomain.AuditLog) auditLogView {
	view := auditLogView{
		ID:         entry.ID.String(),
		ActorType:  entry.ActorType,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		Metadata:   entry.Metadata,
		CreatedAt:  entry.CreatedAt,
	}
	if entry.TenantID != nil {
		view.TenantID = entry.TenantID.String()
	}
	if entry.ActorID != nil {
		view.ActorID = *entry.ActorID
	}
	if entry.TargetID != nil {
		view.TargetID = *entry.TargetID
	}
	return view
}

// ListAuditLogs exposes the audit trail. Owners see their own tenant;
// superusers may query any tenant by id.
func (s *Server) ListAuditLogs(c *gin.Context) {
	principal, ok := s.principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	filter := auditdomain.ListFilter{
		Action:     c.Query("action"),
		TargetType: c.Query("target_type"),
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))

	if s.tenantSvc.IsCrossTenantSuperuser(principal) {
		if raw := c.Query("tenant_id"); raw != "" {
			tenantID, err := snowflake.ParseString(raw)
			if err != nil {
				AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "tenant id is invalid"))
				return
			}
			filter.TenantID = tenantID
		}
	} else {
		tenantID, err := s.tenantSvc.Resolve(c.Request.Context(), principal)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		filter.TenantID = tenantID
	}

	entries, err := s.auditRepo.List(c.Request.Context(), s.db, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]auditLogView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, newAuditLogView(entry))
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": views})
}
