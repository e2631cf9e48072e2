package service

import (
	"context"
	"fmt"
	"regdesk/internal/client"
	"regdesk/internal/clock"
	"regdesk/internal/conditions"
	"regdesk/internal/config"
	"regdesk/internal/model"
	"regdesk/internal/notify"
	"regdesk/internal/repository"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var startTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Kind, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Kind
	}
	return out
}

type testEnv struct {
	t   *testing.T
	ctx context.Context
	db  *gorm.DB

	clock      *clock.Fake
	notifier   *recordingNotifier
	catalog    repository.CatalogRepository
	conditions repository.ConditionRepository
	carts      repository.CartRepository
	invoices   repository.InvoiceRepository
	payments   repository.PaymentRepository
	engine     *conditions.Engine

	cartSvc    CartService
	invoiceSvc InvoiceService
	noteSvc    CreditNoteService
	productSvc ProductService
	userSvc    UserService

	cat1, cat2                 *model.Category
	prod1, prod2, prod3, prod4 *model.Product
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := client.Open(config.Database{
		Driver:       "sqlite",
		URL:          fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	require.NoError(t, client.Migrate(db))

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testDB(t)

	e := &testEnv{
		t:          t,
		ctx:        context.Background(),
		db:         db,
		clock:      clock.NewFake(startTime),
		notifier:   &recordingNotifier{},
		catalog:    repository.NewCatalogRepository(db),
		conditions: repository.NewConditionRepository(db),
		carts:      repository.NewCartRepository(db),
		invoices:   repository.NewInvoiceRepository(db),
		payments:   repository.NewPaymentRepository(db),
	}

	engine, err := conditions.NewEngine(e.conditions, e.carts, e.catalog, e.clock)
	require.NoError(t, err)
	e.engine = engine

	tx := repository.NewTransactor(db)
	e.cartSvc = NewCartService(tx, e.carts, e.catalog, engine, e.clock)
	e.invoiceSvc = NewInvoiceService(tx, e.invoices, e.payments, e.carts, e.cartSvc, e.notifier, e.clock)
	e.noteSvc = NewCreditNoteService(tx, e.invoices, e.payments, e.carts, e.cartSvc, e.notifier, e.clock, 24*time.Hour)
	e.productSvc = NewProductService(e.catalog, engine)
	e.userSvc = NewUserService(e.carts, e.catalog)

	limit := 10
	e.cat1 = e.category("Category 1", &limit, 1)
	e.cat2 = e.category("Category 2", nil, 2)

	e.prod1 = e.product(e.cat1, "Product 1", "10.00", &limit, 1)
	e.prod2 = e.product(e.cat1, "Product 2", "10.00", &limit, 2)
	e.prod3 = e.product(e.cat2, "Product 3", "10.00", nil, 1)
	e.prod4 = e.product(e.cat2, "Product 4", "5.00", nil, 2)

	return e
}

func (e *testEnv) category(name string, limit *int, order int) *model.Category {
	c := &model.Category{
		Name:         name,
		LimitPerUser: limit,
		Order:        order,
		RenderType:   model.RenderQuantity,
	}
	require.NoError(e.t, e.catalog.CreateCategory(e.ctx, c))
	return c
}

func (e *testEnv) product(c *model.Category, name, price string, limit *int, order int) *model.Product {
	p := &model.Product{
		CategoryID:          c.ID,
		Name:                name,
		Price:               decimal.RequireFromString(price),
		LimitPerUser:        limit,
		ReservationDuration: time.Hour,
		Order:               order,
	}
	require.NoError(e.t, e.catalog.CreateProduct(e.ctx, p))
	return p
}

func (e *testEnv) voucher(code string, limit int) *model.Voucher {
	v := &model.Voucher{Code: code, Limit: limit}
	require.NoError(e.t, e.catalog.CreateVoucher(e.ctx, v))
	return v
}

// ceiling adds a stock limit flag over products.
func (e *testEnv) ceiling(limit int, products ...*model.Product) *model.Flag {
	f := &model.Flag{
		Description: "Stock limit",
		Kind:        model.KindTimeOrStockLimitFlag,
		Effect:      model.DisableIfFalse,
		Ceiling:     model.Ceiling{Limit: &limit},
	}
	for _, p := range products {
		f.Products = append(f.Products, *p)
	}
	require.NoError(e.t, e.conditions.CreateFlag(e.ctx, f))
	return f
}

func (e *testEnv) productFlag(effect model.FlagEffect, covers *model.Product, enabling ...*model.Product) *model.Flag {
	f := &model.Flag{
		Description: "Product dependency",
		Kind:        model.KindProductFlag,
		Effect:      effect,
		Products:    []model.Product{*covers},
	}
	for _, p := range enabling {
		f.EnablingProducts = append(f.EnablingProducts, *p)
	}
	require.NoError(e.t, e.conditions.CreateFlag(e.ctx, f))
	return f
}

// includedDiscount gives percent off quantity units of target to holders
// of enabler.
func (e *testEnv) includedDiscount(enabler, target *model.Product, percent int64, quantity int) *model.Discount {
	d := &model.Discount{
		Description:      fmt.Sprintf("%d%% off %s", percent, target.Name),
		Kind:             model.KindIncludedProductDiscount,
		EnablingProducts: []model.Product{*enabler},
	}
	require.NoError(e.t, e.conditions.CreateDiscount(e.ctx, d))
	e.productClause(d, target, percent, quantity)
	return d
}

func (e *testEnv) productClause(d *model.Discount, p *model.Product, percent int64, quantity int) {
	require.NoError(e.t, e.conditions.AddProductClause(e.ctx, &model.DiscountForProduct{
		DiscountID: d.ID,
		ProductID:  p.ID,
		Percentage: decimal.NewNullDecimal(decimal.NewFromInt(percent)),
		Quantity:   quantity,
	}))
}

func (e *testEnv) voucherDiscount(v *model.Voucher, c *model.Category, percent int64, quantity int) *model.Discount {
	d := &model.Discount{
		Description: "Voucher " + v.Code,
		Kind:        model.KindVoucherDiscount,
		VoucherID:   &v.ID,
	}
	require.NoError(e.t, e.conditions.CreateDiscount(e.ctx, d))
	require.NoError(e.t, e.conditions.AddCategoryClause(e.ctx, &model.DiscountForCategory{
		DiscountID: d.ID,
		CategoryID: c.ID,
		Percentage: decimal.NewFromInt(percent),
		Quantity:   quantity,
	}))
	return d
}

func (e *testEnv) cart(userID string) *model.Cart {
	cart, err := e.cartSvc.ForUser(e.ctx, userID)
	require.NoError(e.t, err)
	return cart
}

func (e *testEnv) add(userID string, p *model.Product, quantity int) {
	require.NoError(e.t, e.cartSvc.AddToCart(e.ctx, userID, p.ID, quantity))
}

func (e *testEnv) items(userID string) map[uint]int {
	contents, err := e.cartSvc.Contents(e.ctx, userID)
	require.NoError(e.t, err)
	out := make(map[uint]int)
	for _, item := range contents.Items {
		out[item.ProductID] = item.Quantity
	}
	return out
}

func (e *testEnv) discountItems(userID string) []*model.DiscountItem {
	contents, err := e.cartSvc.Contents(e.ctx, userID)
	require.NoError(e.t, err)
	return contents.DiscountItems
}

// invoice generates an invoice for the user's current cart.
func (e *testEnv) invoice(userID string) *model.Invoice {
	cart := e.cart(userID)
	inv, err := e.invoiceSvc.ForCart(e.ctx, cart.ID)
	require.NoError(e.t, err)
	return inv
}

// payInFull pays off whatever the invoice still owes.
func (e *testEnv) payInFull(inv *model.Invoice) *model.Invoice {
	paid, err := e.invoiceSvc.TotalPayments(e.ctx, inv.ID)
	require.NoError(e.t, err)
	out, err := e.invoiceSvc.Pay(e.ctx, inv.ID, model.PaymentManual, "test payment", inv.Value.Sub(paid))
	require.NoError(e.t, err)
	return out
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}
