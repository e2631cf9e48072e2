package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regdesk/internal/dto"
	"regdesk/internal/middleware"
	"regdesk/internal/model"
	"regdesk/internal/render"
	"regdesk/internal/service"

	"github.com/labstack/echo/v4"
)

type InvoiceHandler struct {
	invoiceService    service.InvoiceService
	creditNoteService service.CreditNoteService
	checkoutService   service.CheckoutService
}

func NewInvoiceHandler(
	invoiceService service.InvoiceService,
	creditNoteService service.CreditNoteService,
	checkoutService service.CheckoutService,
) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService:    invoiceService,
		creditNoteService: creditNoteService,
		checkoutService:   checkoutService,
	}
}

func (h *InvoiceHandler) ListInvoices(c echo.Context) error {
	ctx := c.Request().Context()

	invoices, err := h.invoiceService.ForUser(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}

	out := make([]*dto.InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		resp, err := h.response(ctx, inv)
		if err != nil {
			return err
		}
		out = append(out, resp)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *InvoiceHandler) GetInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	inv, err := h.visibleInvoice(c)
	if err != nil {
		return err
	}

	resp, err := h.response(ctx, inv)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *InvoiceHandler) GetInvoicePDF(c echo.Context) error {
	ctx := c.Request().Context()

	inv, err := h.visibleInvoice(c)
	if err != nil {
		return err
	}

	payments, err := h.invoiceService.Payments(ctx, inv.ID)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := render.InvoicePDF(&buf, inv, payments); err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`inline; filename="invoice-%d.pdf"`, inv.ID))
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

// Checkout charges the outstanding balance with a nonce from the payment form.
func (h *InvoiceHandler) Checkout(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramID(c)
	if err != nil {
		return err
	}

	var req dto.CheckoutRequest
	if err := c.Bind(&req); err != nil || req.Nonce == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	inv, err := h.checkoutService.Checkout(ctx, middleware.UserID(c), id, req.Nonce)
	if err != nil {
		return err
	}

	resp, err := h.response(ctx, inv)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *InvoiceHandler) ListCreditNotes(c echo.Context) error {
	ctx := c.Request().Context()

	notes, err := h.creditNoteService.ForUser(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewCreditNoteResponses(notes))
}

// visibleInvoice loads the :id invoice if the caller owns it or is staff.
func (h *InvoiceHandler) visibleInvoice(c echo.Context) (*model.Invoice, error) {
	id, err := paramID(c)
	if err != nil {
		return nil, err
	}

	inv, err := h.invoiceService.ForID(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if inv.UserID != middleware.UserID(c) && !middleware.IsStaff(c) {
		return nil, service.ErrNotOwner
	}
	return inv, nil
}

func (h *InvoiceHandler) response(ctx context.Context, inv *model.Invoice) (*dto.InvoiceResponse, error) {
	paid, err := h.invoiceService.TotalPayments(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv, paid), nil
}
