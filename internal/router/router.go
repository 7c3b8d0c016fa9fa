package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "billscope/docs"
	"billscope/internal/config"
	"billscope/internal/handler"
	"billscope/internal/middleware"
	"billscope/internal/service"
)

// Deps are the collaborators the router mounts.
type Deps struct {
	AuthSvc   service.AuthService
	AnalysisH *handler.AnalysisHandler
	HealthH   *handler.HealthHandler
	CORS      config.CORSConfig
	Metrics   config.MetricsConfig
	Logger    *zap.Logger
}

// Setup configures the Gin engine with all routes and middleware.
func Setup(d Deps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.CORS(d.CORS.AllowedOrigins))
	if d.Metrics.Enabled {
		r.Use(middleware.Metrics())
		path := d.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	// Health checks
	r.GET("/healthz", d.HealthH.Liveness)
	r.GET("/readyz", d.HealthH.Readiness)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(d.AuthSvc))

	analyses := protected.Group("/analyses")
	analyses.POST("", d.AnalysisH.Analyze)
	analyses.GET("", d.AnalysisH.List)
	analyses.GET("/:id", d.AnalysisH.Get)
	analyses.PUT("/:id/feedback", d.AnalysisH.SubmitFeedback)
	analyses.PUT("/:id/interaction", d.AnalysisH.RecordInteraction)
	analyses.DELETE("/:id", d.AnalysisH.Delete)

	return r
}
