package handlers

import (
	"net/http"
	"strconv"
	"time"

	"telemetry-server/cache"

	"github.com/gin-gonic/gin"
)

// CacheHandler exposes the cache store for diagnostics.
type CacheHandler struct {
	store      cache.Store
	defaultTTL time.Duration
}

func NewCacheHandler(store cache.Store, defaultTTL time.Duration) *CacheHandler {
	return &CacheHandler{
		store:      store,
		defaultTTL: defaultTTL,
	}
}

// SetCache handles GET|POST /cache/set?key=&value=&ttl=<seconds>
func (h *CacheHandler) SetCache(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}

	ttl := h.defaultTTL
	if raw := c.Query("ttl"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ttl must be a non-negative number of seconds"})
			return
		}
		ttl = time.Duration(secs) * time.Second
	}

	if err := h.store.Set(c.Request.Context(), key, []byte(c.Query("value")), ttl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cache unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"key":    key,
		"ttl":    int(ttl.Seconds()),
	})
}

// GetCache handles GET /cache/get/:key
func (h *CacheHandler) GetCache(c *gin.Context) {
	key := c.Param("key")
	value, ok, err := h.store.Get(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cache unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"key":   key,
		"value": string(value),
	})
}

// GetCacheStats handles GET /cache/stats
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	stater, ok := h.store.(cache.Stater)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Cache backend has no statistics"})
		return
	}
	stats, err := stater.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cache unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"stats":  stats,
	})
}
