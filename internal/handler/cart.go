package handler

import (
	"net/http"
	"regdesk/internal/dto"
	"regdesk/internal/middleware"
	"regdesk/internal/service"
	"time"

	"github.com/labstack/echo/v4"
)

type CartHandler struct {
	cartService    service.CartService
	invoiceService service.InvoiceService
}

func NewCartHandler(cartService service.CartService, invoiceService service.InvoiceService) *CartHandler {
	return &CartHandler{
		cartService:    cartService,
		invoiceService: invoiceService,
	}
}

func (h *CartHandler) GetCart(c echo.Context) error {
	return h.respondWithCart(c, middleware.UserID(c))
}

// AddItem adds to the quantity already held.
func (h *CartHandler) AddItem(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.QuantityRequest
	if err := c.Bind(&req); err != nil || req.ProductID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	userID := middleware.UserID(c)
	if err := h.cartService.AddToCart(ctx, userID, req.ProductID, req.Quantity); err != nil {
		return err
	}
	return h.respondWithCart(c, userID)
}

// SetItems replaces the quantities of the listed products in one step.
func (h *CartHandler) SetItems(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.SetQuantitiesRequest
	if err := c.Bind(&req); err != nil || len(req.Items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	changes := make([]service.QuantityChange, len(req.Items))
	for i, item := range req.Items {
		changes[i] = service.QuantityChange{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	userID := middleware.UserID(c)
	if err := h.cartService.SetQuantities(ctx, userID, changes); err != nil {
		return err
	}
	return h.respondWithCart(c, userID)
}

func (h *CartHandler) ApplyVoucher(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.VoucherRequest
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	userID := middleware.UserID(c)
	if err := h.cartService.ApplyVoucher(ctx, userID, req.Code); err != nil {
		return err
	}
	return h.respondWithCart(c, userID)
}

func (h *CartHandler) Validate(c echo.Context) error {
	ctx := c.Request().Context()

	cart, err := h.cartService.ForUser(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	if err := h.cartService.ValidateCart(ctx, cart.ID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]bool{"valid": true})
}

// Fix drops whatever the cart can no longer hold.
func (h *CartHandler) Fix(c echo.Context) error {
	ctx := c.Request().Context()

	userID := middleware.UserID(c)
	if err := h.cartService.FixSimpleErrors(ctx, userID); err != nil {
		return err
	}
	return h.respondWithCart(c, userID)
}

func (h *CartHandler) Extend(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.ExtendRequest
	if err := c.Bind(&req); err != nil || req.Minutes <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	userID := middleware.UserID(c)
	if err := h.cartService.ExtendReservation(ctx, userID, time.Duration(req.Minutes)*time.Minute); err != nil {
		return err
	}
	return h.respondWithCart(c, userID)
}

// Invoice returns the invoice for the cart as it stands, issuing one if
// needed.
func (h *CartHandler) Invoice(c echo.Context) error {
	ctx := c.Request().Context()

	cart, err := h.cartService.ForUser(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}

	inv, err := h.invoiceService.ForCart(ctx, cart.ID)
	if err != nil {
		return err
	}

	paid, err := h.invoiceService.TotalPayments(ctx, inv.ID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewInvoiceResponse(inv, paid))
}

func (h *CartHandler) respondWithCart(c echo.Context, userID string) error {
	contents, err := h.cartService.Contents(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto.NewCartResponse(contents))
}
