package api

import (
	"garden-push-backend/internal/ingest"
	"garden-push-backend/internal/store"

	"github.com/SherClockHolmes/webpush-go"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	pipeline *ingest.Pipeline
	webpush  *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, pipeline *ingest.Pipeline, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:    s,
		pipeline: pipeline,
		webpush:  webpushOptions,
	}
}
