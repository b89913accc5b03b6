package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/safety-concierge/internal/emergency"
	"github.com/mr1hm/safety-concierge/internal/models"
	"github.com/mr1hm/safety-concierge/internal/repository"
)

type snapshotResponse struct {
	Status               models.EmergencyStatus       `json:"status"`
	CurrentEvent         *models.EmergencyEvent       `json:"current_event"`
	TimeRemainingMS      *int64                       `json:"time_remaining_ms"`
	VerificationAttempts []models.VerificationAttempt `json:"verification_attempts"`
}

func toSnapshotResponse(s emergency.Snapshot) snapshotResponse {
	resp := snapshotResponse{
		Status:               s.Status,
		CurrentEvent:         s.Event,
		VerificationAttempts: s.VerificationAttempts,
	}
	if s.TimeRemaining != nil {
		ms := s.TimeRemaining.Milliseconds()
		resp.TimeRemainingMS = &ms
	}
	return resp
}

func (h *Handler) respondSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, toSnapshotResponse(h.machine.Snapshot()))
}

func (h *Handler) getEmergency(c *gin.Context) {
	h.respondSnapshot(c)
}

type triggerRequest struct {
	TriggerType models.TriggerType `json:"trigger_type"`
	Keyword     string             `json:"keyword"`
}

func (h *Handler) triggerEmergency(c *gin.Context) {
	req := triggerRequest{TriggerType: models.TriggerManual}
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if !req.TriggerType.Valid() {
		badRequest(c, "invalid trigger_type")
		return
	}

	h.machine.TriggerEmergency(req.TriggerType, req.Keyword)
	h.respondSnapshot(c)
}

type verificationRequest struct {
	Method models.VerificationMethod `json:"method"`
}

func (h *Handler) bindVerification(c *gin.Context) (models.VerificationMethod, bool) {
	req := verificationRequest{Method: models.VerifyButton}
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return "", false
	}
	if !req.Method.Valid() {
		badRequest(c, "invalid verification method")
		return "", false
	}
	return req.Method, true
}

func (h *Handler) verifySafe(c *gin.Context) {
	method, ok := h.bindVerification(c)
	if !ok {
		return
	}
	h.machine.VerifySafe(method)
	h.respondSnapshot(c)
}

func (h *Handler) failVerification(c *gin.Context) {
	method, ok := h.bindVerification(c)
	if !ok {
		return
	}
	h.machine.RecordFailedVerification(method)
	h.respondSnapshot(c)
}

type confirmRequest struct {
	ConfirmedBy string `json:"confirmed_by"`
}

func (h *Handler) confirmDanger(c *gin.Context) {
	var req confirmRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	h.machine.ConfirmDanger(req.ConfirmedBy)
	h.respondSnapshot(c)
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by" binding:"required"`
}

func (h *Handler) resolveEmergency(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "resolved_by is required")
		return
	}
	h.machine.ResolveEmergency(req.ResolvedBy)
	h.respondSnapshot(c)
}

func (h *Handler) monitor(c *gin.Context) {
	h.machine.Monitor()
	h.respondSnapshot(c)
}

func (h *Handler) stopMonitoring(c *gin.Context) {
	h.machine.StopMonitoring()
	h.respondSnapshot(c)
}

func (h *Handler) listHistory(c *gin.Context) {
	filter := repository.Filter{
		Limit: 50, // Default to 50 events if limit param not supplied
	}

	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}
	if tt := models.TriggerType(c.Query("trigger_type")); tt != "" {
		if !tt.Valid() {
			badRequest(c, "invalid trigger_type")
			return
		}
		filter.TriggerType = &tt
	}
	if st := models.EmergencyStatus(c.Query("status")); st != "" {
		if !st.Valid() {
			badRequest(c, "invalid status")
			return
		}
		filter.Status = &st
	}
	if s := c.Query("since"); s != "" {
		since, err := parseSince(s)
		if err != nil {
			badRequest(c, "invalid since, expected RFC3339 or YYYY-MM-DD")
			return
		}
		filter.Since = &since
	}

	events, err := h.historyEvents(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// historyEvents reads from the store when one is configured and otherwise
// filters the recorder's in-memory copy. Both return newest first.
func (h *Handler) historyEvents(ctx context.Context, filter repository.Filter) ([]models.EmergencyEvent, error) {
	if h.store != nil {
		return h.store.ListEvents(ctx, filter)
	}

	all := h.recorder.Events()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].TriggeredAt.After(all[j].TriggeredAt)
	})

	out := []models.EmergencyEvent{}
	skipped := 0
	for _, e := range all {
		if filter.TriggerType != nil && e.TriggerType != *filter.TriggerType {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && e.TriggeredAt.Before(*filter.Since) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (h *Handler) getHistory(c *gin.Context) {
	id := c.Param("id")

	if e, ok := h.recorder.Event(id); ok {
		c.JSON(http.StatusOK, gin.H{
			"event":    e,
			"timeline": h.recorder.Timeline(id),
		})
		return
	}

	if h.store != nil {
		ctx := c.Request.Context()
		e, err := h.store.GetEvent(ctx, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch event"})
			return
		}
		if e != nil {
			timeline, err := h.store.ListTransitions(ctx, id)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch timeline"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"event": e, "timeline": timeline})
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
}

func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
