package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regdesk/internal/client"
	"regdesk/internal/clock"
	"regdesk/internal/conditions"
	"regdesk/internal/config"
	"regdesk/internal/dto"
	"regdesk/internal/middleware"
	"regdesk/internal/model"
	"regdesk/internal/notify"
	"regdesk/internal/repository"
	"regdesk/internal/service"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuth = config.Auth{JWTSecret: "test-secret", Issuer: "regdesk"}

type fakeGateway struct {
	mu      sync.Mutex
	charges []decimal.Decimal
}

func (g *fakeGateway) Charge(ctx context.Context, nonce string, amount decimal.Decimal, orderID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, amount)
	return fmt.Sprintf("tx-%d", len(g.charges)), nil
}

func (g *fakeGateway) Void(ctx context.Context, transactionID string) error {
	return nil
}

type harness struct {
	t       *testing.T
	srv     *Server
	gateway *fakeGateway
	product *model.Product
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := client.Open(config.Database{
		Driver:       "sqlite",
		URL:          fmt.Sprintf("file:server_%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	require.NoError(t, client.Migrate(db))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	ctx := context.Background()
	clk := clock.Real{}
	catalog := repository.NewCatalogRepository(db)
	carts := repository.NewCartRepository(db)
	invoices := repository.NewInvoiceRepository(db)
	payments := repository.NewPaymentRepository(db)

	engine, err := conditions.NewEngine(repository.NewConditionRepository(db), carts, catalog, clk)
	require.NoError(t, err)

	tx := repository.NewTransactor(db)
	cartSvc := service.NewCartService(tx, carts, catalog, engine, clk)
	invoiceSvc := service.NewInvoiceService(tx, invoices, payments, carts, cartSvc, notify.LogNotifier{}, clk)
	noteSvc := service.NewCreditNoteService(tx, invoices, payments, carts, cartSvc, notify.LogNotifier{}, clk, 24*time.Hour)
	gateway := &fakeGateway{}

	srv := NewServer(testAuth, config.Registration{VoucherAttemptsPerMinute: 3}, Services{
		Cart:       cartSvc,
		Invoice:    invoiceSvc,
		CreditNote: noteSvc,
		Checkout:   service.NewCheckoutService(invoiceSvc, gateway),
		Product:    service.NewProductService(catalog, engine),
		User:       service.NewUserService(carts, catalog),
		Report:     service.NewReportService(repository.NewReportRepository(db), clk),
	})

	category := &model.Category{Name: "Tickets", Order: 1, RenderType: model.RenderQuantity}
	require.NoError(t, catalog.CreateCategory(ctx, category))
	limit := 5
	product := &model.Product{
		CategoryID:   category.ID,
		Name:         "Conference",
		Price:        decimal.NewFromInt(10),
		LimitPerUser: &limit,
	}
	require.NoError(t, catalog.CreateProduct(ctx, product))

	return &harness{t: t, srv: srv, gateway: gateway, product: product}
}

func (h *harness) token(userID string, staff bool) string {
	h.t.Helper()
	tok, err := middleware.IssueToken(testAuth.JWTSecret, testAuth.Issuer, userID, staff, time.Hour)
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (h *harness) invoiceFor(token string, quantity int) *dto.InvoiceResponse {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/cart/items", token, dto.QuantityRequest{ProductID: h.product.ID, Quantity: quantity})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/cart/invoice", token, nil)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[*dto.InvoiceResponse](h.t, rec)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserRoutesRequireToken(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/cart", "/api/products", "/api/invoices/1", "/api/credit-notes"} {
		assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, path, "", nil).Code, path)
	}
}

func TestCart(t *testing.T) {
	h := newHarness(t)
	alice := h.token("alice", false)

	rec := h.do(http.MethodPost, "/api/cart/items", alice, dto.QuantityRequest{ProductID: h.product.ID, Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cart := decode[*dto.CartResponse](t, rec)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, "Tickets - Conference", cart.Items[0].Product)

	rec = h.do(http.MethodPut, "/api/cart/items", alice, dto.SetQuantitiesRequest{
		Items: []dto.QuantityRequest{{ProductID: h.product.ID, Quantity: 1}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cart = decode[*dto.CartResponse](t, rec)
	assert.Equal(t, 1, cart.Items[0].Quantity)

	rec = h.do(http.MethodGet, "/api/cart", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cart.ID, decode[*dto.CartResponse](t, rec).ID)

	rec = h.do(http.MethodPost, "/api/cart/validate", alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/cart/extend", alice, dto.ExtendRequest{Minutes: 90})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[*dto.CartResponse](t, rec).ReservedUntil.After(time.Now().Add(80*time.Minute)))

	rec = h.do(http.MethodGet, "/api/items", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[*dto.ItemsResponse](t, rec)
	require.Len(t, items.Pending, 1)
	assert.Equal(t, 1, items.Pending[0].Quantity)
}

func TestCart_Errors(t *testing.T) {
	h := newHarness(t)
	alice := h.token("alice", false)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{name: "bad body", method: http.MethodPost, path: "/api/cart/items", body: "nope", status: http.StatusBadRequest},
		{name: "unknown product", method: http.MethodPost, path: "/api/cart/items", body: dto.QuantityRequest{ProductID: 999, Quantity: 1}, status: http.StatusNotFound},
		{name: "over limit", method: http.MethodPost, path: "/api/cart/items", body: dto.QuantityRequest{ProductID: h.product.ID, Quantity: 6}, status: http.StatusBadRequest},
		{name: "extend by nothing", method: http.MethodPost, path: "/api/cart/extend", body: dto.ExtendRequest{}, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(tt.method, tt.path, alice, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestApplyVoucher_ReportsFieldsAndIsRateLimited(t *testing.T) {
	h := newHarness(t)
	alice := h.token("alice", false)

	rec := h.do(http.MethodPost, "/api/cart/vouchers", alice, dto.VoucherRequest{Code: "nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[*dto.ErrorResponse](t, rec)
	assert.Equal(t, service.KindCapacity, body.Kind)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "Voucher NOPE does not exist", body.Fields[0].Message)
	assert.Equal(t, "NOPE", body.Fields[0].VoucherCode)

	h.do(http.MethodPost, "/api/cart/vouchers", alice, dto.VoucherRequest{Code: "nope"})
	h.do(http.MethodPost, "/api/cart/vouchers", alice, dto.VoucherRequest{Code: "nope"})
	rec = h.do(http.MethodPost, "/api/cart/vouchers", alice, dto.VoucherRequest{Code: "nope"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	bob := h.token("bob", false)
	rec = h.do(http.MethodPost, "/api/cart/vouchers", bob, dto.VoucherRequest{Code: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvoice_OwnerOrStaff(t *testing.T) {
	h := newHarness(t)
	alice := h.token("alice", false)
	inv := h.invoiceFor(alice, 2)

	assert.Equal(t, model.InvoiceUnpaid, inv.Status)
	assert.True(t, decimal.NewFromInt(20).Equal(inv.Value))
	require.Len(t, inv.LineItems, 1)
	assert.Equal(t, "Tickets - Conference", inv.LineItems[0].Description)

	path := fmt.Sprintf("/api/invoices/%d", inv.ID)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, path, alice, nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, path, h.token("bob", false), nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, path, h.token("sam", true), nil).Code)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/invoices/999", alice, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/invoices/abc", alice, nil).Code)

	rec := h.do(http.MethodGet, path+"/pdf", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, path+"/pdf", h.token("bob", false), nil).Code)

	rec = h.do(http.MethodGet, "/api/invoices", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]*dto.InvoiceResponse](t, rec), 1)
}

func TestCheckout(t *testing.T) {
	h := newHarness(t)
	alice := h.token("alice", false)
	inv := h.invoiceFor(alice, 2)
	path := fmt.Sprintf("/api/invoices/%d/checkout", inv.ID)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, path, alice, dto.CheckoutRequest{}).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, path, h.token("bob", false), dto.CheckoutRequest{Nonce: "fake-nonce"}).Code)

	rec := h.do(http.MethodPost, path, alice, dto.CheckoutRequest{Nonce: "fake-nonce"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decode[*dto.InvoiceResponse](t, rec)
	assert.Equal(t, model.InvoicePaid, paid.Status)
	assert.True(t, decimal.NewFromInt(20).Equal(paid.Paid))
	require.Len(t, h.gateway.charges, 1)
	assert.Equal(t, "20.00", h.gateway.charges[0].StringFixed(2))

	rec = h.do(http.MethodPost, path, alice, dto.CheckoutRequest{Nonce: "fake-nonce"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, h.gateway.charges, 1)
}

func TestStaff(t *testing.T) {
	h := newHarness(t)
	alice := h.token("alice", false)
	sam := h.token("sam", true)
	inv := h.invoiceFor(alice, 2)

	paymentPath := fmt.Sprintf("/api/staff/invoices/%d/payments", inv.ID)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, paymentPath, alice, nil).Code)

	rec := h.do(http.MethodPost, paymentPath, sam, map[string]any{"reference": "bank", "amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, paymentPath, sam, map[string]any{"reference": "bank", "amount": "20.00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.InvoicePaid, decode[*dto.InvoiceResponse](t, rec).Status)

	rec = h.do(http.MethodPost, fmt.Sprintf("/api/staff/invoices/%d/void", inv.ID), sam, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPost, fmt.Sprintf("/api/staff/invoices/%d/refund", inv.ID), sam, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.InvoiceRefunded, decode[*dto.InvoiceResponse](t, rec).Status)

	rec = h.do(http.MethodGet, "/api/credit-notes", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode[[]*dto.CreditNoteResponse](t, rec)
	require.Len(t, notes, 1)
	assert.Equal(t, "Unclaimed", notes[0].Status)
	assert.True(t, decimal.NewFromInt(20).Equal(notes[0].Value))

	feePath := fmt.Sprintf("/api/staff/credit-notes/%d/cancellation-fee", notes[0].ID)
	rec = h.do(http.MethodPost, feePath, sam, map[string]any{"percentage": 150})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, feePath, sam, map[string]any{"percentage": 25})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fee := decode[*dto.InvoiceResponse](t, rec)
	assert.Equal(t, model.InvoicePaid, fee.Status)
	assert.True(t, decimal.NewFromInt(5).Equal(fee.Value))

	rec = h.do(http.MethodPost, fmt.Sprintf("/api/staff/credit-notes/%d/refund", notes[0].ID), sam, dto.RefundRequest{Reference: "bank"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodGet, "/api/staff/reports/products", sam, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]*repository.ProductStatus](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Released)
}

func TestStaff_ManualInvoice(t *testing.T) {
	h := newHarness(t)
	sam := h.token("sam", true)

	rec := h.do(http.MethodPost, "/api/staff/invoices/manual", sam, dto.ManualInvoiceRequest{UserID: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/staff/invoices/manual", sam, dto.ManualInvoiceRequest{
		UserID:     "alice",
		DueInHours: 48,
		Lines:      []dto.ManualLineRequest{{Description: "Dinner", Price: decimal.RequireFromString("12.50")}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decode[*dto.InvoiceResponse](t, rec)
	assert.Equal(t, "alice", inv.UserID)
	assert.Nil(t, inv.CartID)
	assert.True(t, decimal.RequireFromString("12.50").Equal(inv.Value))

	rec = h.do(http.MethodGet, fmt.Sprintf("/api/invoices/%d", inv.ID), h.token("alice", false), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
