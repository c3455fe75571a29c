package health

import (
	"crypto/subtle"
	"encoding/json"
	"strconv"
	"time"

	healthsvc "corkboard-backend/internal/application/health"
	"corkboard-backend/internal/middleware"
	"corkboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const serviceName = "corkboard-api"

// Handlers holds dependencies for health endpoints.
type Handlers struct {
	Rdb            *redis.Client
	DB             healthsvc.DBPinger
	Sessions       healthsvc.SessionCounter
	HealthAdminKey string
}

// Reset clears health stats in Redis. Requires query key=HEALTH_ADMIN_KEY.
func (h *Handlers) Reset(c *fiber.Ctx) error {
	key := c.Query("key")
	if key == "" || h.HealthAdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.HealthAdminKey)) != 1 {
		return response.Error(c, "Unauthorized", fiber.StatusForbidden, nil)
	}
	ctx := c.UserContext()
	keys := []string{middleware.KeyReqTotal, middleware.KeyReqErrors, middleware.KeyResTime, middleware.KeyResCount, middleware.KeyStartTime, middleware.KeyLastReq, middleware.KeyErrorLog}
	if err := h.Rdb.Del(ctx, keys...).Err(); err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	if err := h.Rdb.Set(ctx, middleware.KeyStartTime, strconv.FormatInt(time.Now().UnixMilli(), 10), 0).Err(); err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Stats reset successfully", fiber.Map{"success": true}, nil)
}

// JSON returns health data as JSON: service, status, runtime, traffic, sessions, dependencies.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	result := healthsvc.CollectHealth(c.UserContext(), h.Rdb, h.DB, h.Sessions)
	return c.JSON(fiber.Map{
		"service":      serviceName,
		"status":       result.Status,
		"runtime":      result.Runtime,
		"traffic":      result.Traffic,
		"sessions":     result.Sessions,
		"dependencies": result.Dependencies,
	})
}

// Errors returns the newest error log entries from Redis, at most ?limit
// of them (default and cap ErrorLogSize).
func (h *Handlers) Errors(c *fiber.Ctx) error {
	if h.Rdb == nil {
		return c.JSON([]interface{}{})
	}
	limit := c.QueryInt("limit", middleware.ErrorLogSize)
	if limit <= 0 || limit > middleware.ErrorLogSize {
		limit = middleware.ErrorLogSize
	}
	entries, err := h.Rdb.LRange(c.UserContext(), middleware.KeyErrorLog, 0, int64(limit-1)).Result()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON([]interface{}{})
	}
	errors := make([]map[string]interface{}, 0, len(entries))
	for _, s := range entries {
		var m map[string]interface{}
		if _ = json.Unmarshal([]byte(s), &m); m != nil {
			errors = append(errors, m)
		}
	}
	return c.JSON(errors)
}

// Dashboard returns the HTML health status page.
func (h *Handlers) Dashboard(c *fiber.Ctx) error {
	result := healthsvc.CollectHealth(c.UserContext(), h.Rdb, h.DB, h.Sessions)
	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.SendString(healthsvc.RenderDashboardHTML(result))
}
