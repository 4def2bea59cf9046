package handlers

import (
	"database/sql"

	"github.com/fenilmodi00/ipo-sim-backend/services"
	"github.com/fenilmodi00/ipo-sim-backend/shared"
	"github.com/gofiber/fiber/v2"
)

type PerformanceHandler struct {
	DB      *sql.DB
	Cache   *services.CacheService
	Metrics []*shared.ServiceMetrics
}

func NewPerformanceHandler(db *sql.DB, cache *services.CacheService, metrics ...*shared.ServiceMetrics) *PerformanceHandler {
	return &PerformanceHandler{
		DB:      db,
		Cache:   cache,
		Metrics: metrics,
	}
}

// GetPerformanceMetrics returns a snapshot of every component's counters
func (h *PerformanceHandler) GetPerformanceMetrics(c *fiber.Ctx) error {
	metrics := make(map[string]interface{})

	snapshots := make([]shared.MetricsSnapshot, 0, len(h.Metrics))
	for _, m := range h.Metrics {
		if m != nil {
			snapshots = append(snapshots, m.GetSnapshot())
		}
	}
	metrics["services"] = snapshots

	if h.Cache != nil {
		metrics["cache_stats"] = map[string]interface{}{
			"size": h.Cache.Size(),
			"type": "in-memory",
		}
	}

	if h.DB != nil {
		dbStats := h.DB.Stats()
		metrics["database_stats"] = map[string]interface{}{
			"open_connections":    dbStats.OpenConnections,
			"in_use":              dbStats.InUse,
			"idle":                dbStats.Idle,
			"wait_count":          dbStats.WaitCount,
			"wait_duration_ms":    dbStats.WaitDuration.Milliseconds(),
			"max_idle_closed":     dbStats.MaxIdleClosed,
			"max_lifetime_closed": dbStats.MaxLifetimeClosed,
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    metrics,
	})
}
