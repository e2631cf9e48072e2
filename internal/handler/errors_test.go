package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regdesk/internal/model"
	"regdesk/internal/service"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "validation", err: &service.ValidationError{Kind: service.KindStaleCart, Fields: []service.FieldError{{Message: "x"}}}, status: http.StatusBadRequest},
		{name: "wrapped not found", err: fmt.Errorf("find invoice: %w", gorm.ErrRecordNotFound), status: http.StatusNotFound},
		{name: "not owner", err: service.ErrNotOwner, status: http.StatusForbidden},
		{name: "amount", err: service.ErrInvalidAmount, status: http.StatusBadRequest},
		{name: "integrity", err: model.IntegrityErrorf("voucher limit must not be negative"), status: http.StatusBadRequest},
		{name: "duplicate", err: gorm.ErrDuplicatedKey, status: http.StatusConflict},
		{name: "stale", err: fmt.Errorf("pay: %w", service.ErrInvoiceStale), status: http.StatusConflict},
		{name: "claimed", err: service.ErrCreditNoteClaimed, status: http.StatusConflict},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestClassify_HidesInternalErrors(t *testing.T) {
	_, body := classify(errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	assert.Equal(t, "internal server error", body.Message)
}

func TestErrorHandler(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(e)
	e.GET("/conflict", func(c echo.Context) error { return service.ErrInvoiceVoid })
	e.GET("/http", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot, "short and stout") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conflict", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"message":"this invoice is void"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/http", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, rec.Body.String(), "short and stout")
}

func TestParamID(t *testing.T) {
	e := echo.New()
	for _, tt := range []struct {
		raw  string
		want uint
		ok   bool
	}{{"7", 7, true}, {"0", 0, false}, {"-1", 0, false}, {"x", 0, false}} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(tt.raw)
		got, err := paramID(c)
		if !tt.ok {
			assert.Error(t, err, tt.raw)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
