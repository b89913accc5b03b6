package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/safety-concierge/internal/models"
	"github.com/mr1hm/safety-concierge/internal/reminder"
)

func (h *Handler) listReminders(c *gin.Context) {
	var reminders []models.Reminder
	switch c.DefaultQuery("view", "all") {
	case "all":
		reminders = h.reminders.Reminders()
	case "upcoming":
		reminders = h.reminders.Upcoming()
	case "past_due":
		reminders = h.reminders.PastDue()
	default:
		badRequest(c, "invalid view, expected all, upcoming or past_due")
		return
	}
	if reminders == nil {
		reminders = []models.Reminder{}
	}

	resp := gin.H{"reminders": reminders}
	if active, ok := h.reminders.Active(); ok {
		resp["active"] = active
	}
	c.JSON(http.StatusOK, resp)
}

type createReminderRequest struct {
	Type          models.ReminderType `json:"type" binding:"required"`
	Title         string              `json:"title" binding:"required"`
	Description   string              `json:"description"`
	ScheduledTime time.Time           `json:"scheduled_time"`
}

func (h *Handler) createReminder(c *gin.Context) {
	var req createReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ScheduledTime.IsZero() {
		badRequest(c, "type, title and scheduled_time are required")
		return
	}

	r, err := h.reminders.Add(req.Type, req.Title, req.ScheduledTime, req.Description)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusCreated, r)
}

type completeReminderRequest struct {
	Method models.CompletionMethod `json:"method"`
}

func (h *Handler) completeReminder(c *gin.Context) {
	req := completeReminderRequest{Method: models.CompletedByButton}
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Method != models.CompletedByButton && req.Method != models.CompletedByVoice {
		badRequest(c, "invalid completion method")
		return
	}

	r, err := h.reminders.Complete(c.Param("id"), req.Method)
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "reminder not found"})
	case errors.Is(err, reminder.ErrAlreadyCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": "reminder already completed"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to complete reminder"})
	default:
		c.JSON(http.StatusOK, r)
	}
}
