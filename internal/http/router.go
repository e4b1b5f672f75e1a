package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/NickKasten/posture/internal/config"
	"github.com/NickKasten/posture/internal/http/handler"
	"github.com/NickKasten/posture/internal/http/middleware"
	"github.com/NickKasten/posture/internal/ratelimit"
)

// RouterParams collects everything the route table needs.
type RouterParams struct {
	Config  config.Config
	Logger  *zap.Logger
	Auth    *middleware.Auth
	Limiter *ratelimit.Limiter
	Connect *handler.ConnectHandler
	Publish *handler.PublishHandler
}

// NewRouter assembles the gin engine and the route table.
func NewRouter(p RouterParams) *gin.Engine {
	if p.Config.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLogger(p.Logger),
		middleware.CORS(p.Config),
		otelgin.Middleware(p.Config.ServiceName),
	)

	router.GET("/healthz", handler.Healthz)

	// The callback arrives from the provider redirect and carries no session,
	// so only the start leg requires a bearer token. Both legs share the
	// IP-keyed window.
	auth := router.Group("/auth", middleware.RateLimit(p.Limiter, p.Config.AuthRateLimit, middleware.ByClientIP))
	{
		auth.GET("/:platform/start", p.Auth.ValidateJWT, p.Connect.Start)
		auth.GET("/:platform/callback", p.Connect.Callback)
	}

	api := router.Group("/api", p.Auth.ValidateJWT)
	{
		api.POST("/publish",
			middleware.RateLimit(p.Limiter, p.Config.PublishRateLimit, middleware.ByUserID),
			p.Publish.Publish,
		)
		api.GET("/connections", p.Publish.Connections)
		api.DELETE("/connections/:platform", p.Publish.Disconnect)
	}

	return router
}
