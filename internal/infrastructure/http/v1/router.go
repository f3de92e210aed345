package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raedjah1/bopmaps-cache/internal/infrastructure/http/v1/handler"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
	"github.com/raedjah1/bopmaps-cache/pkg/telemetry"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware("bopmaps-cache"))
	}

	r.Use(ginZapLogger(l))

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", handler.Healthz)
	v1.GET("/tile/:z/:x/:y", handler.Tile)

	v1.GET("/data", handler.GetData)
	v1.POST("/data", handler.StoreData)
	v1.GET("/data/exists", handler.HasData)

	v1.POST("/prefetch", handler.Prefetch)

	v1.POST("/regions", handler.DownloadRegion)
	v1.GET("/regions", handler.ListRegions)
	v1.GET("/regions/:id", handler.GetRegion)
	v1.DELETE("/regions/:id", handler.DeleteRegion)

	v1.GET("/cache/stats", handler.CacheStats)
	v1.POST("/cache/clear", handler.ClearCache)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("logger", l)

		start := time.Now()

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
