package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/mesahq/mesa/internal/invoice/domain"
)

type invoiceView struct {
	ID          string    `json:"id"`
	Number      string    `json:"number"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Status      string    `json:"status"`
	ChargeRef   string    `json:"charge_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func newInvoiceView(inv *invoicedomain.Invoice) invoiceView {
	view := invoiceView{
		ID:          inv.ID.String(),
		Number:      inv.Number,
		Amount:      inv.Amount,
		Currency:    inv.Currency,
		PeriodStart: inv.PeriodStart,
		PeriodEnd:   inv.PeriodEnd,
		Status:      string(inv.Status),
		CreatedAt:   inv.CreatedAt,
	}
	if inv.ChargeRef != nil {
		view.ChargeRef = *inv.ChargeRef
	}
	return view
}

func (s *Server) ListInvoices(c *gin.Context) {
	tenantID, ok := s.tenantFrom(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	invoices, err := s.invoiceSvc.List(c.Request.Context(), tenantID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]invoiceView, 0, len(invoices))
	for _, inv := range invoices {
		views = append(views, newInvoiceView(inv))
	}
	c.JSON(http.StatusOK, gin.H{"invoices": views})
}

func (s *Server) GetInvoice(c *gin.Context) {
	tenantID, ok := s.tenantFrom(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	invoiceID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invoice id is invalid"))
		return
	}

	invoice, err := s.invoiceSvc.Get(c.Request.Context(), tenantID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newInvoiceView(invoice))
}

func (s *Server) GetInvoiceHTML(c *gin.Context) {
	tenantID, ok := s.tenantFrom(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return
	}

	invoiceID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invoice id is invalid"))
		return
	}

	html, err := s.invoiceSvc.RenderHTML(c.Request.Context(), tenantID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
