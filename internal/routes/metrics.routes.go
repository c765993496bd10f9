package routes

import (
	"net/http"

	"pulseboard/internal/controllers"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterDashboardRoutes registers the page, the JSON API and telemetry.
// guards run in front of every /api route only; the page shell, assets,
// health and telemetry stay public.
func RegisterDashboardRoutes(r *gin.Engine, dc *controllers.DashboardController, static http.FileSystem, gatherer prometheus.Gatherer, guards ...gin.HandlerFunc) {
	r.GET("/", dc.GetPage)
	r.StaticFS("/static", static)
	r.GET("/healthz", dc.Healthz)

	api := r.Group("/api", guards...)
	{
		api.GET("/series", dc.GetSeries)
		api.GET("/proportion", dc.GetProportion)
		api.GET("/status", dc.GetStatus)
		api.POST("/refresh", dc.PostRefresh)
	}

	r.GET("/internal/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// RegisterAgentRoutes registers the endpoint dashboards poll
func RegisterAgentRoutes(r *gin.Engine, ac *controllers.AgentController) {
	metrics := r.Group("/api/metrics")
	{
		metrics.GET("", ac.GetMetrics)
		metrics.GET("/current", ac.GetCurrent)
		metrics.GET("/summary", ac.GetSummary)
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
