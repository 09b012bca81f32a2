package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/handler"
	"github.com/noah-isme/sma-timetable/internal/middleware"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/service"
	"github.com/noah-isme/sma-timetable/pkg/config"
	"github.com/noah-isme/sma-timetable/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable/pkg/middleware/requestid"
)

// Handlers groups the HTTP handlers mounted by Setup.
type Handlers struct {
	Timetable *handler.TimetableHandler
	Metrics   *handler.MetricsHandler
}

// Setup builds the gin engine with global middleware, ops endpoints and the timetable API.
func Setup(cfg *config.Config, h Handlers, tokens *service.TokenService, metrics *service.MetricsService, logr *zap.Logger) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	probes := []string{metricsPath, "/health", "/ready"}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, probes...))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, probes...))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	if cfg.Metrics.Enabled {
		r.GET(metricsPath, h.Metrics.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)
	audit := func(action string) gin.HandlerFunc { return middleware.Audit(logr, action) }

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokens))
	timetable := api.Group("/timetable")
	{
		timetable.GET("/slots", h.Timetable.Slots)
		timetable.GET("/entries", h.Timetable.ListEntries)

		timetable.POST("/generate", admin, audit("timetable.generate"), h.Timetable.Generate)
		timetable.POST("/confirm", admin, audit("timetable.confirm"), h.Timetable.Confirm)
		timetable.POST("/cancel", admin, audit("timetable.cancel"), h.Timetable.Cancel)
		timetable.POST("/entries", admin, audit("timetable.entry.create"), h.Timetable.CreateEntry)
		timetable.PUT("/entries/:id", admin, audit("timetable.entry.update"), h.Timetable.UpdateEntry)
		timetable.DELETE("/entries/:id", admin, audit("timetable.entry.delete"), h.Timetable.DeleteEntry)

		index := timetable.Group("/index", admin)
		index.POST("/rebuild", audit("timetable.index.rebuild"), h.Timetable.RebuildIndex)
		index.POST("/verify", audit("timetable.index.verify"), h.Timetable.VerifyIndex)
	}

	return r
}
