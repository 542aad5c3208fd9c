package dashboard

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, status *Status, reg *prometheus.Registry) {
	router.GET("/healthz", handleHealth(status))
	router.GET("/api/runs/last", handleLastRuns(status))
	router.GET("/api/runs/last/:job", handleLastRun(status))
	router.GET("/api/events", handleSSE(status))

	if reg != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
}

func handleHealth(status *Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": status.Uptime(time.Now()).Round(time.Second).String(),
		})
	}
}

func handleLastRuns(status *Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		last, next := status.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"runs": last,
			"next": next,
		})
	}
}

func handleLastRun(status *Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		rep, ok := status.Last(c.Param("job"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no run recorded for job"})
			return
		}
		c.JSON(http.StatusOK, rep)
	}
}
