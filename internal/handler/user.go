package handler

import (
	"net/http"
	"regdesk/internal/dto"
	"regdesk/internal/middleware"
	"regdesk/internal/service"

	"github.com/labstack/echo/v4"
)

type UserHandler struct {
	userService    service.UserService
	productService service.ProductService
}

func NewUserHandler(userService service.UserService, productService service.ProductService) *UserHandler {
	return &UserHandler{
		userService:    userService,
		productService: productService,
	}
}

// GetItems lists what the caller has bought, holds and has released.
// An optional ?category= narrows the summary.
func (h *UserHandler) GetItems(c echo.Context) error {
	ctx := c.Request().Context()

	categoryID, err := queryID(c, "category")
	if err != nil {
		return err
	}

	items, err := h.userService.Items(ctx, middleware.UserID(c), categoryID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewItemsResponse(items))
}

func (h *UserHandler) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()

	categoryID, err := queryID(c, "category")
	if err != nil {
		return err
	}

	products, err := h.productService.AvailableProducts(ctx, middleware.UserID(c), categoryID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewProductResponses(products))
}

func (h *UserHandler) GetCategories(c echo.Context) error {
	ctx := c.Request().Context()

	categories, err := h.productService.AvailableCategories(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewCategoryResponses(categories))
}
