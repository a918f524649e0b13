package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type roomCounter interface {
	RoomCount() int
}

// Healthz reports liveness and the number of active rooms.
func Healthz(rooms roomCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": rooms.RoomCount()})
	}
}
