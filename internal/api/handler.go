package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mr1hm/safety-concierge/internal/emergency"
	"github.com/mr1hm/safety-concierge/internal/history"
	"github.com/mr1hm/safety-concierge/internal/reminder"
	"github.com/mr1hm/safety-concierge/internal/repository"
	"github.com/mr1hm/safety-concierge/internal/stream"
	"github.com/mr1hm/safety-concierge/internal/trigger"
	"github.com/mr1hm/safety-concierge/internal/voice"
)

// Deps are the components the HTTP surface drives. Store and Metrics are
// optional.
type Deps struct {
	Machine     *emergency.Machine
	Recorder    *history.Recorder
	Store       repository.HistoryRepository
	Detector    *voice.Detector
	Reminders   *reminder.Scheduler
	Button      *trigger.HoldButton
	Broadcaster *stream.Broadcaster
	Metrics     http.Handler
}

type Handler struct {
	machine     *emergency.Machine
	recorder    *history.Recorder
	store       repository.HistoryRepository
	detector    *voice.Detector
	reminders   *reminder.Scheduler
	button      *trigger.HoldButton
	broadcaster *stream.Broadcaster
	metrics     http.Handler
	upgrader    websocket.Upgrader
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		machine:     d.Machine,
		recorder:    d.Recorder,
		store:       d.Store,
		detector:    d.Detector,
		reminders:   d.Reminders,
		button:      d.Button,
		broadcaster: d.Broadcaster,
		metrics:     d.Metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // CORS is enforced by the router
		},
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}

	e := r.Group("/api/emergency")
	e.GET("", h.getEmergency)
	e.POST("/trigger", h.triggerEmergency)
	e.POST("/verify", h.verifySafe)
	e.POST("/fail", h.failVerification)
	e.POST("/confirm", h.confirmDanger)
	e.POST("/resolve", h.resolveEmergency)
	e.POST("/monitor", h.monitor)
	e.POST("/unmonitor", h.stopMonitoring)
	e.GET("/history", h.listHistory)
	e.GET("/history/:id", h.getHistory)
	if h.broadcaster != nil {
		e.GET("/stream", h.stream)
	}

	v := r.Group("/api/voice")
	v.GET("", h.getVoice)
	v.POST("/transcript", h.postTranscript)
	v.PUT("/enabled", h.setVoiceEnabled)

	rm := r.Group("/api/reminders")
	rm.GET("", h.listReminders)
	rm.POST("", h.createReminder)
	rm.POST("/:id/complete", h.completeReminder)

	b := r.Group("/api/button")
	b.GET("", h.getButton)
	b.POST("/press", h.pressButton)
	b.POST("/release", h.releaseButton)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// bindOptionalJSON binds a JSON body when one is sent. An empty body leaves
// req untouched.
func bindOptionalJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
