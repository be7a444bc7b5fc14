package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"garden-push-backend/internal/model"
	"garden-push-backend/internal/store"
)

// GetRecords handles GET /prenotazioni: paginated, filtered occupancy history
// plus aggregates over the filtered set.
func (h *Handler) GetRecords(c *gin.Context) {
	q := store.RecordQuery{
		Family:   c.Query("famiglia"),
		SortDesc: c.DefaultQuery("sort", "desc") != "asc",
	}

	if stato := c.Query("stato"); stato != "" {
		state := model.GardenState(stato)
		if !state.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Stato non valido: usare 'occupato' o 'libero'"})
			return
		}
		q.State = state
	}

	var err error
	if q.From, err = parseTimeQuery(c, "dataInizio"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dataInizio non valida: usare RFC3339 o YYYY-MM-DD"})
		return
	}
	if q.To, err = parseTimeQuery(c, "dataFine"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dataFine non valida: usare RFC3339 o YYYY-MM-DD"})
		return
	}

	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.PageSize, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	page, err := h.store.QueryRecords(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetRecordStats handles GET /prenotazioni/stats: per-day rollup of the most
// recent 30 days in the optional range.
func (h *Handler) GetRecordStats(c *gin.Context) {
	var q store.RecordQuery
	var err error
	if q.From, err = parseTimeQuery(c, "dataInizio"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dataInizio non valida: usare RFC3339 o YYYY-MM-DD"})
		return
	}
	if q.To, err = parseTimeQuery(c, "dataFine"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dataFine non valida: usare RFC3339 o YYYY-MM-DD"})
		return
	}

	stats, err := h.store.DailyStats(c.Request.Context(), q, 30)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"days": stats})
}

// parseTimeQuery reads an optional query parameter as RFC3339 or a plain date.
func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, &time.ParseError{Layout: time.RFC3339, Value: raw}
}
