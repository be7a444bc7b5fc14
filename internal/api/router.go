package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"garden-push-backend/config"
	"garden-push-backend/internal/ingest"
	"garden-push-backend/internal/mw"
	"garden-push-backend/internal/store"
)

// NewRouter creates and configures a new Gin router. Routes keep the paths of
// the legacy push server so existing clients continue to work.
func NewRouter(cfg *config.ServerConfig, s store.Store, pipeline *ingest.Pipeline, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, pipeline, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Read-side caching for the history endpoints only; everything else
	// mutates state or must reflect it immediately.
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	r.GET("/health", handler.Health)
	r.GET("/vapidPublicKey", handler.GetVAPIDPublicKey)

	limited := r.Group("/")
	limited.Use(rateLimiter)
	{
		limited.POST("/subscribe", handler.Subscribe)
		limited.DELETE("/unsubscribe", handler.Unsubscribe)
		limited.GET("/subscriptions", handler.ListSubscriptions)

		limited.POST("/sendNotification", handler.SendNotification)
		limited.POST("/forceStateUpdate", handler.ForceStateUpdate)

		limited.GET("/prenotazioni", handler.GetRecords)
		limited.GET("/prenotazioni/stats", caching, handler.GetRecordStats)
	}

	return r
}
