package server

import (
	"context"
	"net/http"
	"regdesk/internal/config"
	"regdesk/internal/handler"
	"regdesk/internal/middleware"
	"regdesk/internal/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

type Services struct {
	Cart       service.CartService
	Invoice    service.InvoiceService
	CreditNote service.CreditNoteService
	Checkout   service.CheckoutService
	Product    service.ProductService
	User       service.UserService
	Report     service.ReportService
}

type Server struct {
	echo           *echo.Echo
	auth           config.Auth
	voucherLimiter *middleware.RateLimiter

	cartHandler    *handler.CartHandler
	userHandler    *handler.UserHandler
	invoiceHandler *handler.InvoiceHandler
	staffHandler   *handler.StaffHandler
}

func NewServer(auth config.Auth, registration config.Registration, svc Services) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.NewErrorHandler(e)

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.RequestLogger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())

	s := &Server{
		echo:           e,
		auth:           auth,
		voucherLimiter: middleware.NewRateLimiter(registration.VoucherAttemptsPerMinute),
		cartHandler:    handler.NewCartHandler(svc.Cart, svc.Invoice),
		userHandler:    handler.NewUserHandler(svc.User, svc.Product),
		invoiceHandler: handler.NewInvoiceHandler(svc.Invoice, svc.CreditNote, svc.Checkout),
		staffHandler:   handler.NewStaffHandler(svc.Invoice, svc.CreditNote, svc.Report),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	user := api.Group("", middleware.AuthMiddleware(s.auth.JWTSecret, s.auth.Issuer))

	// -------- cart --------
	cart := user.Group("/cart")
	cart.GET("", s.cartHandler.GetCart)
	cart.POST("/items", s.cartHandler.AddItem)
	cart.PUT("/items", s.cartHandler.SetItems)
	cart.POST("/vouchers", s.cartHandler.ApplyVoucher, s.voucherLimiter.Limit())
	cart.POST("/validate", s.cartHandler.Validate)
	cart.POST("/fix", s.cartHandler.Fix)
	cart.POST("/extend", s.cartHandler.Extend)
	cart.POST("/invoice", s.cartHandler.Invoice)

	// -------- catalog --------
	user.GET("/products", s.userHandler.GetProducts)
	user.GET("/categories", s.userHandler.GetCategories)
	user.GET("/items", s.userHandler.GetItems)

	// -------- invoices --------
	user.GET("/invoices", s.invoiceHandler.ListInvoices)
	user.GET("/invoices/:id", s.invoiceHandler.GetInvoice)
	user.GET("/invoices/:id/pdf", s.invoiceHandler.GetInvoicePDF)
	user.POST("/invoices/:id/checkout", s.invoiceHandler.Checkout)
	user.GET("/credit-notes", s.invoiceHandler.ListCreditNotes)

	// -------- staff --------
	staff := user.Group("/staff", middleware.RequireStaff())
	staff.POST("/invoices/manual", s.staffHandler.ManualInvoice)
	staff.POST("/invoices/:id/payments", s.staffHandler.RecordPayment)
	staff.POST("/invoices/:id/void", s.staffHandler.Void)
	staff.POST("/invoices/:id/refund", s.staffHandler.Refund)
	staff.POST("/credit-notes/:id/apply", s.staffHandler.ApplyCreditNote)
	staff.POST("/credit-notes/:id/refund", s.staffHandler.RefundCreditNote)
	staff.POST("/credit-notes/:id/cancellation-fee", s.staffHandler.CancellationFee)
	staff.GET("/reports/products", s.staffHandler.ProductReport)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
