package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"
	xrate "golang.org/x/time/rate"

	"github.com/vultisig/trigger-plugin/service"
)

// Metrics is the part of the statsd client the HTTP middleware uses.
type Metrics interface {
	Incr(name string, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
}

type Server struct {
	cfg      ServerConfig
	engine   service.Orders
	orders   service.OrderStore
	sdClient Metrics
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewServer returns a new server.
func NewServer(cfg ServerConfig, engine service.Orders, orders service.OrderStore, sdClient Metrics, logger logrus.FieldLogger) *Server {
	return &Server{
		cfg:      cfg,
		engine:   engine,
		orders:   orders,
		sdClient: sdClient,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Server) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(log.INFO)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("2M")) // set maximum allowed size for a request body to 2M
	e.Use(s.statsdMiddleware)
	e.Use(middleware.CORS())

	rate, burst := s.cfg.RateLimit.Rate, s.cfg.RateLimit.Burst
	if rate <= 0 {
		rate = 5
	}
	if burst <= 0 {
		burst = 30
	}
	limiterStore := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{Rate: xrate.Limit(rate), Burst: burst, ExpiresIn: 5 * time.Minute},
	)
	e.Use(middleware.RateLimiter(limiterStore))

	e.Validator = &RequestValidator{Validator: validator.New()}

	e.GET("/ping", s.Ping)

	grp := e.Group("/orders")
	grp.POST("/validate", s.ValidateOrder)
	grp.POST("/precheck", s.PrecheckOrder)
	grp.POST("/execute", s.ExecuteOrder)
	grp.POST("", s.CreateOrder)
	grp.GET("", s.ListOrders)
	grp.GET("/:orderId", s.GetOrder)
	grp.DELETE("/:orderId", s.CancelOrder)
	grp.GET("/:orderId/executions", s.GetOrderExecutions)

	return e
}

func (s *Server) StartServer() error {
	return s.Router().Start(fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
}

func (s *Server) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "Trigger order server is running")
}
