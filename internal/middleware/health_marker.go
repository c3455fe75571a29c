package middleware

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis keys for request stats shown on the status page.
const (
	KeyReqTotal  = "health:global:req_total"
	KeyReqErrors = "health:global:req_errors"
	KeyResTime   = "health:global:res_time_total"
	KeyResCount  = "health:global:res_count"
	KeyStartTime = "health:global:start_time"
	KeyLastReq   = "health:global:last_request"
	KeyErrorLog  = "health:global:error_log"
)

// ErrorLogSize caps the error log list.
const ErrorLogSize = 50

type lastRequest struct {
	Time   time.Time `json:"time"`
	IP     string    `json:"ip"`
	Path   string    `json:"path"`
	Method string    `json:"method"`
}

type errorEntry struct {
	Time    time.Time `json:"time"`
	Method  string    `json:"method"`
	Path    string    `json:"path"`
	Status  int       `json:"status"`
	TraceID string    `json:"traceId"`
	Error   string    `json:"error,omitempty"`
}

// HealthMarker records request stats in Redis. The status page itself,
// favicons and CORS preflights are not counted. A nil client disables it.
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rdb == nil || !countable(c) {
			return c.Next()
		}
		ctx := c.UserContext()
		start := time.Now()
		last, _ := json.Marshal(lastRequest{Time: start, IP: c.IP(), Path: c.OriginalURL(), Method: c.Method()})
		pipe := rdb.Pipeline()
		pipe.Set(ctx, KeyLastReq, last, 0)
		pipe.Incr(ctx, KeyReqTotal)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Debug().Err(err).Msg("health marker: counters unavailable")
		}

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		pipe = rdb.TxPipeline()
		pipe.Incr(ctx, KeyResCount)
		pipe.IncrByFloat(ctx, KeyResTime, float64(time.Since(start).Milliseconds()))
		if status >= 500 {
			entry := errorEntry{
				Time: time.Now(), Method: c.Method(), Path: c.OriginalURL(),
				Status: status, TraceID: GetTraceID(c),
			}
			if err != nil {
				entry.Error = err.Error()
			}
			eb, _ := json.Marshal(entry)
			pipe.Incr(ctx, KeyReqErrors)
			pipe.LPush(ctx, KeyErrorLog, eb)
			pipe.LTrim(ctx, KeyErrorLog, 0, ErrorLogSize-1)
		}
		if _, perr := pipe.Exec(ctx); perr != nil {
			log.Debug().Err(perr).Msg("health marker: counters unavailable")
		}
		return err
	}
}

func countable(c *fiber.Ctx) bool {
	path := c.Path()
	if c.Method() == fiber.MethodOptions {
		return false
	}
	return path != "/" && !strings.HasPrefix(path, "/health") && !strings.HasPrefix(path, "/favicon") && path != "/reset"
}
