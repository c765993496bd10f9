// Package controllers holds the gin handlers for the dashboard and agent servers.
package controllers

import (
	"context"
	"log"
	"net/http"
	"time"

	"pulseboard/internal/models"
	"pulseboard/internal/services"

	"github.com/gin-gonic/gin"
)

// refreshTimeout bounds a manual refresh requested over HTTP
const refreshTimeout = 30 * time.Second

// Refresher is the part of the scheduler the dashboard handlers use
type Refresher interface {
	Refresh(ctx context.Context) error
	Status() models.RefreshStatus
	Buffer() *services.SeriesBuffer
}

// DashboardController serves the chart window and refresh status
type DashboardController struct {
	scheduler   Refresher
	authEnabled bool
}

// NewDashboardController creates the controller
func NewDashboardController(scheduler Refresher, authEnabled bool) *DashboardController {
	return &DashboardController{scheduler: scheduler, authEnabled: authEnabled}
}

// GetPage renders the dashboard
func (dc *DashboardController) GetPage(c *gin.Context) {
	status := dc.scheduler.Status()
	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"Capacity":    status.Capacity,
		"AuthEnabled": dc.authEnabled,
	})
}

// GetSeries returns the current snapshot
func (dc *DashboardController) GetSeries(c *gin.Context) {
	c.JSON(http.StatusOK, dc.scheduler.Buffer().Snapshot())
}

// GetProportion returns the used/free split of the newest disk reading
func (dc *DashboardController) GetProportion(c *gin.Context) {
	disk, ok := dc.scheduler.Buffer().LatestDiskPercent()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no samples yet"})
		return
	}
	c.JSON(http.StatusOK, models.NewProportion(disk))
}

// GetStatus returns the busy flag and last update
func (dc *DashboardController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, dc.scheduler.Status())
}

// PostRefresh runs one refresh cycle immediately
func (dc *DashboardController) PostRefresh(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), refreshTimeout)
	defer cancel()

	if err := dc.scheduler.Refresh(ctx); err != nil {
		log.Printf("[SCHED] Manual refresh from %s failed: %v", c.ClientIP(), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dc.scheduler.Status())
}

// Healthz reports liveness
func (dc *DashboardController) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
