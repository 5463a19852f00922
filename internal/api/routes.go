package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/postmaster"
)

// Pinger checks the ticket store connection.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ReportSource exposes the most recent piping run.
type ReportSource interface {
	LastReport() (postmaster.RunReport, bool)
}

// Router serves the operational endpoints of the piping daemon.
type Router struct {
	engine   *gin.Engine
	db       Pinger
	reports  ReportSource
	gatherer prometheus.Gatherer
	version  string
}

func NewRouter(db Pinger, reports ReportSource, gatherer prometheus.Gatherer, version string) *Router {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	return &Router{
		engine:   engine,
		db:       db,
		reports:  reports,
		gatherer: gatherer,
		version:  version,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", r.healthCheck)
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	r.engine.GET("/status", r.lastRun)
}

// Handler returns the HTTP handler with all routes registered.
func (r *Router) Handler() http.Handler {
	return r.engine
}

func (r *Router) healthCheck(c *gin.Context) {
	if r.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := r.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "Database connection failed",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "gotrs-mailpipe",
		"version": r.version,
	})
}

func (r *Router) lastRun(c *gin.Context) {
	if r.reports == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "piping is not running in this process"})
		return
	}
	report, ok := r.reports.LastReport()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no piping run has finished yet"})
		return
	}
	c.JSON(http.StatusOK, report)
}
