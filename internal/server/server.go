package server

import (
	"context"
	"net/http"

	"checkout-engine/internal/handler"
	appmw "checkout-engine/internal/middleware"
	"checkout-engine/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Services struct {
	Order   service.OrderService
	Coupon  service.CouponService
	Payment service.PaymentService
}

type Options struct {
	Logger    *zap.Logger
	JWTSecret string
	// Gatherer backs GET /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

type Server struct {
	echo            *echo.Echo
	orderHandler    *handler.OrderHandler
	couponHandler   *handler.CouponHandler
	paymentHandler  *handler.PaymentHandler
	callbackHandler *handler.CallbackHandler
	jwtSecret       string
	gatherer        prometheus.Gatherer
}

func NewServer(services Services, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e.Use(middleware.Recover())
	e.Use(appmw.RequestContext(logger))
	e.Use(middleware.CORS())

	s := &Server{
		echo:            e,
		orderHandler:    handler.NewOrderHandler(services.Order, services.Payment),
		couponHandler:   handler.NewCouponHandler(services.Coupon),
		paymentHandler:  handler.NewPaymentHandler(services.Payment),
		callbackHandler: handler.NewCallbackHandler(services.Payment),
		jwtSecret:       opts.JWTSecret,
		gatherer:        gatherer,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// -------- provider callbacks (no auth, always 200) --------
	callbacks := api.Group("/payments/callbacks")
	callbacks.POST("/mpesa", s.callbackHandler.Mpesa)
	callbacks.POST("/airtel", s.callbackHandler.Airtel)

	customer := api.Group("", appmw.AuthMiddleware(s.jwtSecret))

	// -------- checkout --------
	customer.POST("/orders", s.orderHandler.PlaceOrder)
	customer.GET("/orders/:id", s.orderHandler.GetOrder)
	customer.GET("/orders/:id/payment", s.orderHandler.GetOrderPayment)
	customer.POST("/orders/:id/payment", s.orderHandler.CreateOrderPayment)
	customer.POST("/coupons/validate", s.couponHandler.Validate)

	// -------- payments --------
	customer.GET("/payment-options", s.paymentHandler.ListOptions)
	customer.POST("/payments/mobile-money", s.paymentHandler.InitiateMobileMoney)
	customer.POST("/payments/manual", s.paymentHandler.InitiateManual)
	customer.POST("/payments/reconcile", s.paymentHandler.Reconcile)
	customer.GET("/payments/:id", s.paymentHandler.GetPayment)

	admin := customer.Group("/admin", appmw.AdminOnly())
	admin.POST("/payments/:id/confirm", s.paymentHandler.AdminConfirm)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
