package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/mesahq/mesa/internal/invoice/domain"
	pmdomain "github.com/mesahq/mesa/internal/paymentmethod/domain"
	"github.com/mesahq/mesa/internal/processor"
	subscriptiondomain "github.com/mesahq/mesa/internal/subscription/domain"
	tenantdomain "github.com/mesahq/mesa/internal/tenant/domain"
	webhookdomain "github.com/mesahq/mesa/internal/webhook/domain"
)

type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *apiError) Error() string { return e.Code }

var (
	ErrUnauthorized = &apiError{Status: http.StatusUnauthorized, Code: "unauthenticated", Message: "authentication required"}
	ErrForbidden    = &apiError{Status: http.StatusForbidden, Code: "forbidden", Message: "not allowed"}
	ErrNotFound     = &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "resource not found"}
)

func invalidRequestError() *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "request body could not be parsed"}
}

func newValidationError(field, code, message string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: code, Field: field, Message: message}
}

// AbortWithError maps domain errors onto HTTP responses. Processor error
// bodies never pass through verbatim; tenants see only the taxonomy code.
func AbortWithError(c *gin.Context, err error) {
	var api *apiError
	if errors.As(err, &api) {
		c.AbortWithStatusJSON(api.Status, gin.H{"error": api})
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"
	message := "internal error"

	switch {
	case errors.Is(err, tenantdomain.ErrUnauthenticated):
		status, code, message = http.StatusUnauthorized, "unauthenticated", "authentication required"
	case errors.Is(err, tenantdomain.ErrNoTenant):
		status, code, message = http.StatusForbidden, "no_tenant", "principal is not attached to a tenant"
	case errors.Is(err, tenantdomain.ErrInactive):
		status, code, message = http.StatusForbidden, "tenant_inactive", "tenant is deactivated"
	case errors.Is(err, tenantdomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, pmdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound):
		status, code, message = http.StatusNotFound, "not_found", "resource not found"
	case errors.Is(err, pmdomain.ErrInvalidState),
		errors.Is(err, subscriptiondomain.ErrInvalidState):
		status, code, message = http.StatusConflict, "invalid_state", "operation not legal for current state"
	case errors.Is(err, subscriptiondomain.ErrInvalidTransition):
		status, code, message = http.StatusConflict, "invalid_transition", "transition not legal for current state"
	case errors.Is(err, subscriptiondomain.ErrChargeFailed):
		status, code, message = http.StatusPaymentRequired, "charge_failed", "payment could not be collected"
	case errors.Is(err, subscriptiondomain.ErrInvalidPlan),
		errors.Is(err, subscriptiondomain.ErrInvalidPeriod),
		errors.Is(err, tenantdomain.ErrInvalidRequest),
		errors.Is(err, pmdomain.ErrInvalidInstrument),
		errors.Is(err, pmdomain.ErrUnknownProvider):
		status, code, message = http.StatusBadRequest, "invalid_request", "request is not valid"
	case errors.Is(err, pmdomain.ErrLocalModeDenied):
		status, code, message = http.StatusForbidden, "local_provider_denied", "local payment methods are disabled"
	case errors.Is(err, webhookdomain.ErrInvalidSignature), errors.Is(err, processor.ErrInvalidSignature):
		status, code, message = http.StatusBadRequest, "invalid_signature", "signature verification failed"
	case errors.Is(err, webhookdomain.ErrInvalidPayload):
		status, code, message = http.StatusBadRequest, "invalid_payload", "payload could not be parsed"
	case errors.Is(err, processor.ErrUnavailable):
		status, code, message = http.StatusBadGateway, "processor_unavailable", "payment processor unavailable"
	}

	c.AbortWithStatusJSON(status, gin.H{"error": &apiError{Status: status, Code: code, Message: message}})
}
