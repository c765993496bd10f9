package controllers

import (
	"net/http"
	"time"

	"pulseboard/internal/models"

	"github.com/gin-gonic/gin"
)

// maxHistoryWindow caps the duration query parameter
const maxHistoryWindow = 24 * time.Hour

// HistorySource is the agent's bounded reading history
type HistorySource interface {
	Records(duration time.Duration) []models.MetricRecord
	Summary(duration time.Duration) models.MetricSummary
}

// CurrentSource returns the latest host reading
type CurrentSource interface {
	Get() (models.HostReading, error)
}

// AgentController serves the metrics endpoint polled by dashboards
type AgentController struct {
	history HistorySource
	current CurrentSource
}

// NewAgentController creates the controller
func NewAgentController(history HistorySource, current CurrentSource) *AgentController {
	return &AgentController{history: history, current: current}
}

// GetMetrics returns the readings of the last duration as a JSON array of records
// Query params: duration=5m|10m|1h|24h (default: 10m)
func (ac *AgentController) GetMetrics(c *gin.Context) {
	duration, ok := windowParam(c, "10m")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ac.history.Records(duration))
}

// GetSummary returns hourly averages and overall avg/max/min
// Query params: duration (default: 24h)
func (ac *AgentController) GetSummary(c *gin.Context) {
	duration, ok := windowParam(c, "24h")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ac.history.Summary(duration))
}

// windowParam parses the duration query parameter, capped at maxHistoryWindow.
// It writes a 400 response and reports false when the value is unusable.
func windowParam(c *gin.Context, fallback string) (time.Duration, bool) {
	duration, err := time.ParseDuration(c.DefaultQuery("duration", fallback))
	if err != nil || duration <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid duration format"})
		return 0, false
	}
	if duration > maxHistoryWindow {
		duration = maxHistoryWindow
	}
	return duration, true
}

// GetCurrent returns a single fresh record
func (ac *AgentController) GetCurrent(c *gin.Context) {
	reading, err := ac.current.Get()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reading.ToRecord())
}
