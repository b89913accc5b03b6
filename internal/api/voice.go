package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getVoice(c *gin.Context) {
	transcript, heardAt := h.detector.LastTranscript()

	resp := gin.H{
		"enabled":         h.detector.Enabled(),
		"supported":       h.detector.Supported(),
		"keywords":        h.detector.Keywords(),
		"last_transcript": transcript,
	}
	if !heardAt.IsZero() {
		resp["last_heard_at"] = heardAt
	}
	c.JSON(http.StatusOK, resp)
}

type transcriptRequest struct {
	Transcript string `json:"transcript" binding:"required"`
}

func (h *Handler) postTranscript(c *gin.Context) {
	var req transcriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "transcript is required")
		return
	}
	if !h.detector.Enabled() {
		c.JSON(http.StatusConflict, gin.H{"error": "voice detection is disabled"})
		return
	}

	keyword, detected := h.detector.Handle(req.Transcript)
	c.JSON(http.StatusOK, gin.H{
		"detected": detected,
		"keyword":  keyword,
		"status":   h.machine.Status(),
	})
}

type voiceEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) setVoiceEnabled(c *gin.Context) {
	var req voiceEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "enabled is required")
		return
	}

	h.detector.SetEnabled(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": h.detector.Enabled()})
}
