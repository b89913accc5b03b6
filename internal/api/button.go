package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getButton(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"progress": h.button.Progress()})
}

// pressButton starts a hold. The emergency fires once the hold completes
// unless /release arrives first.
func (h *Handler) pressButton(c *gin.Context) {
	h.button.Press()
	c.JSON(http.StatusAccepted, gin.H{"progress": h.button.Progress()})
}

func (h *Handler) releaseButton(c *gin.Context) {
	h.button.Release()
	c.JSON(http.StatusOK, gin.H{
		"progress": h.button.Progress(),
		"status":   h.machine.Status(),
	})
}
