package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"garden-push-backend/internal/model"
)

type sendNotificationRequest struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body" binding:"required"`
}

// SendNotification handles POST /sendNotification: a manual fan-out that does
// not touch the occupancy ledger.
func (h *Handler) SendNotification(c *gin.Context) {
	var req sendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title e body sono richiesti"})
		return
	}

	result := h.pipeline.Notify(c.Request.Context(), req.Title, req.Body)

	c.JSON(http.StatusOK, gin.H{
		"message": "Notifica inviata con successo",
		"title":   req.Title,
		"body":    req.Body,
		"result":  result,
	})
}

type forceStateRequest struct {
	State     string     `json:"stato" binding:"required"`
	Family    string     `json:"famiglia" binding:"required"`
	Timestamp *time.Time `json:"timestamp"`
}

// ForceStateUpdate handles POST /forceStateUpdate: an administrative state
// transition that bypasses the broker. It resets the dedup slot and runs the
// record-and-notify part of the pipeline.
func (h *Handler) ForceStateUpdate(c *gin.Context) {
	var req forceStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Stato e famiglia sono richiesti"})
		return
	}

	state := model.GardenState(req.State)
	if !state.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Stato non valido: usare 'occupato' o 'libero'"})
		return
	}

	var ts time.Time
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	record, result, err := h.pipeline.ForceState(c.Request.Context(), req.Family, state, ts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stato aggiornato",
		"record":  record,
		"result":  result,
	})
}
