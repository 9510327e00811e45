package http

import (
	"context"
	"net/http"
	"time"

	httpmw "github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/middleware"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	ExposeCodes      bool
}

type Deps struct {
	Service  service.Service
	Store    Pinger
	Gatherer prometheus.Gatherer
	Validate *validator.Validate
	Logger   *zap.Logger
}

func NewRouter(d Deps, cfg RouterConfig) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestLogger(logger))

	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{
				"Origin", "Content-Type", "Accept",
				"Authorization",
				"X-Requested-With",
			},
			ExposeHeaders:    []string{"Content-Length", "Authorization"},
			AllowCredentials: cfg.AllowCredentials,
			MaxAge:           12 * time.Hour,
		}))
	}

	NewHandler(d.Service, d.Validate, logger, cfg.ExposeCodes).Routes(router)

	router.GET("/health", func(c *gin.Context) {
		if d.Store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.Store.Ping(ctx); err != nil {
				_ = c.Error(err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "time": time.Now().Unix()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
	})

	if d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
