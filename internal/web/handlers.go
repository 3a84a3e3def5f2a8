package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"circularbot/internal/domain"
	"circularbot/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

type Handler struct {
	store storage.Store
	log   zerolog.Logger
}

func NewHandler(store storage.Store, log zerolog.Logger) *Handler {
	return &Handler{store: store, log: log}
}

func (h *Handler) Home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "circularbot",
		"backend": h.store.Backend(),
		"endpoints": map[string]string{
			"health":        "/health",
			"stats":         "/stats",
			"notifications": "/api/notifications?limit=<n>",
		},
	})
}

func (h *Handler) Health(c *gin.Context) {
	if _, err := h.store.Stats(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"backend": h.store.Backend(),
	})
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("stats query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats query failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) Notifications(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	recs, err := h.store.Recent(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("notification query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notification query failed"})
		return
	}
	if recs == nil {
		recs = []domain.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":         len(recs),
		"notifications": recs,
	})
}
