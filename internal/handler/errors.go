package handler

import (
	"errors"
	"log"
	"net/http"
	"regdesk/internal/dto"
	"regdesk/internal/model"
	"regdesk/internal/service"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// NewErrorHandler maps service errors onto HTTP responses. Anything it does
// not recognise is logged and reported as a 500.
func NewErrorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			e.DefaultHTTPErrorHandler(err, c)
			return
		}

		status, body := classify(err)
		if status == http.StatusInternalServerError {
			log.Printf("[http] %s %s failed: %v", c.Request().Method, c.Path(), err)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			log.Printf("[http] write error response: %v", writeErr)
		}
	}
}

func classify(err error) (int, *dto.ErrorResponse) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, &dto.ErrorResponse{
			Message: "cart is not valid",
			Kind:    ve.Kind,
			Fields:  ve.Fields,
		}
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, &dto.ErrorResponse{Message: "not found"}
	case errors.Is(err, service.ErrNotOwner):
		return http.StatusForbidden, &dto.ErrorResponse{Message: service.ErrNotOwner.Error()}
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidPercentage),
		errors.Is(err, model.ErrIntegrity):
		return http.StatusBadRequest, &dto.ErrorResponse{Message: err.Error()}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return http.StatusConflict, &dto.ErrorResponse{Message: "already exists"}
	}

	for _, conflict := range []error{
		service.ErrCartNotActive,
		service.ErrInvoiceNotPayable,
		service.ErrInvoiceStale,
		service.ErrInvoiceHasPayments,
		service.ErrInvoiceRefunded,
		service.ErrInvoiceVoid,
		service.ErrCreditNoteClaimed,
	} {
		if errors.Is(err, conflict) {
			return http.StatusConflict, &dto.ErrorResponse{Message: conflict.Error()}
		}
	}

	return http.StatusInternalServerError, &dto.ErrorResponse{Message: "internal server error"}
}

func paramID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

// queryID reads an optional numeric query parameter.
func queryID(c echo.Context, name string) (*uint, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	v := uint(id)
	return &v, nil
}
