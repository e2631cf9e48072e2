package handler

import (
	"net/http"
	"regdesk/internal/dto"
	"regdesk/internal/model"
	"regdesk/internal/service"
	"time"

	"github.com/labstack/echo/v4"
)

// StaffHandler serves the back office. Routes are guarded by RequireStaff.
type StaffHandler struct {
	invoiceService    service.InvoiceService
	creditNoteService service.CreditNoteService
	reportService     service.ReportService
}

func NewStaffHandler(
	invoiceService service.InvoiceService,
	creditNoteService service.CreditNoteService,
	reportService service.ReportService,
) *StaffHandler {
	return &StaffHandler{
		invoiceService:    invoiceService,
		creditNoteService: creditNoteService,
		reportService:     reportService,
	}
}

// RecordPayment books money taken outside the gateway, such as a bank
// transfer.
func (h *StaffHandler) RecordPayment(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramID(c)
	if err != nil {
		return err
	}

	var req dto.PaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	inv, err := h.invoiceService.RecordPayment(ctx, id, model.PaymentManual, req.Reference, req.Amount)
	if err != nil {
		return err
	}
	return h.respondWithInvoice(c, inv)
}

func (h *StaffHandler) Void(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramID(c)
	if err != nil {
		return err
	}

	inv, err := h.invoiceService.Void(ctx, id)
	if err != nil {
		return err
	}
	return h.respondWithInvoice(c, inv)
}

func (h *StaffHandler) Refund(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramID(c)
	if err != nil {
		return err
	}

	inv, err := h.invoiceService.Refund(ctx, id)
	if err != nil {
		return err
	}
	return h.respondWithInvoice(c, inv)
}

func (h *StaffHandler) ManualInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.ManualInvoiceRequest
	if err := c.Bind(&req); err != nil || req.UserID == "" || len(req.Lines) == 0 || req.DueInHours < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	lines := make([]service.ManualLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = service.ManualLine{Description: l.Description, Price: l.Price}
	}

	inv, err := h.invoiceService.ManualInvoice(ctx, req.UserID, time.Duration(req.DueInHours)*time.Hour, lines)
	if err != nil {
		return err
	}

	paid, err := h.invoiceService.TotalPayments(ctx, inv.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, dto.NewInvoiceResponse(inv, paid))
}

func (h *StaffHandler) ApplyCreditNote(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramID(c)
	if err != nil {
		return err
	}

	var req dto.ApplyCreditNoteRequest
	if err := c.Bind(&req); err != nil || req.InvoiceID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	inv, err := h.creditNoteService.ApplyToInvoice(ctx, id, req.InvoiceID)
	if err != nil {
		return err
	}
	return h.respondWithInvoice(c, inv)
}

func (h *StaffHandler) RefundCreditNote(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramID(c)
	if err != nil {
		return err
	}

	var req dto.RefundRequest
	if err := c.Bind(&req); err != nil || req.Reference == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	note, err := h.creditNoteService.Refund(ctx, id, req.Reference)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto.NewCreditNoteResponse(note))
}

// CancellationFee keeps a percentage of the credit note and invoices it.
func (h *StaffHandler) CancellationFee(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramID(c)
	if err != nil {
		return err
	}

	var req dto.CancellationFeeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	inv, err := h.creditNoteService.CancellationFee(ctx, id, req.Percentage)
	if err != nil {
		return err
	}
	return h.respondWithInvoice(c, inv)
}

func (h *StaffHandler) ProductReport(c echo.Context) error {
	ctx := c.Request().Context()

	rows, err := h.reportService.ProductStatus(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *StaffHandler) respondWithInvoice(c echo.Context, inv *model.Invoice) error {
	paid, err := h.invoiceService.TotalPayments(c.Request().Context(), inv.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto.NewInvoiceResponse(inv, paid))
}
