package handlers

import (
	"time"

	"github.com/cardealsai/cardeals-backend/database"
	"github.com/cardealsai/cardeals-backend/services"
	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	Cache     *services.CacheService
	StartedAt time.Time
}

func NewHealthHandler(cache *services.CacheService) *HealthHandler {
	return &HealthHandler{Cache: cache, StartedAt: time.Now()}
}

// GetHealth handles GET /health. Degraded (database down) still answers
// 200 with status "degraded" so load balancers keep routing to the
// cache-backed search paths.
func (h *HealthHandler) GetHealth(c *fiber.Ctx) error {
	status := "ok"
	dbStatus := "connected"
	if err := database.HealthCheck(); err != nil {
		status = "degraded"
		dbStatus = "unavailable"
	}

	poolStats := database.GetConnectionStats()

	return c.JSON(fiber.Map{
		"success":    true,
		"status":     status,
		"database":   dbStatus,
		"db_in_use":  poolStats.InUse,
		"db_idle":    poolStats.Idle,
		"cache_size": h.Cache.Size(),
		"uptime":     time.Since(h.StartedAt).Round(time.Second).String(),
	})
}
