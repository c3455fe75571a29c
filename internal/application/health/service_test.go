package health

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct{ err error }

func (f fakeDB) PingContext(ctx context.Context) error { return f.err }

type fakeSessions int

func (f fakeSessions) Len() int { return int(f) }

func TestCollectHealth_WithNilRedis(t *testing.T) {
	result := CollectHealth(context.Background(), nil, nil, nil)
	assert.Equal(t, "issue", result.Status)
	assert.Equal(t, "disconnected", result.Dependencies["database"].Status)
	assert.Equal(t, "disconnected", result.Dependencies["redis"].Status)
	assert.Equal(t, "disconnected", result.Dependencies["realtime"].Status)
	assert.Equal(t, 0, result.Traffic.TotalRequests)
	assert.Equal(t, 0, result.Sessions.Live)
}

func TestCollectHealth_WithMiniredis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	result := CollectHealth(ctx, rdb, fakeDB{}, fakeSessions(3))
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "connected", result.Dependencies["redis"].Status)
	assert.Equal(t, "connected", result.Dependencies["database"].Status)
	assert.Equal(t, 3, result.Sessions.Live)
	assert.Equal(t, "100", result.Traffic.SuccessRate)

	require.NoError(t, rdb.Set(ctx, "health:global:req_total", "10", 0).Err())
	require.NoError(t, rdb.Set(ctx, "health:global:req_errors", "2", 0).Err())
	require.NoError(t, rdb.Set(ctx, "health:global:res_time_total", "150.5", 0).Err())
	require.NoError(t, rdb.Set(ctx, "health:global:res_count", "10", 0).Err())
	require.NoError(t, rdb.Set(ctx, "health:global:last_request", `{"method":"GET","path":"/api/v1/clients"}`, 0).Err())

	result2 := CollectHealth(ctx, rdb, nil, nil)
	assert.Equal(t, "issue", result2.Status)
	assert.Equal(t, 10, result2.Traffic.TotalRequests)
	assert.Equal(t, 2, result2.Traffic.FailedCount)
	assert.Equal(t, 8, result2.Traffic.SuccessCount)
	assert.Equal(t, "80.0", result2.Traffic.SuccessRate)
	assert.Equal(t, "15.05", result2.Traffic.AvgResponseTime)
	assert.Equal(t, "GET", result2.Traffic.LastRequest.(map[string]interface{})["method"])
}

func TestCollectHealth_DBError(t *testing.T) {
	result := CollectHealth(context.Background(), nil, fakeDB{err: errors.New("down")}, nil)
	assert.Equal(t, "error", result.Dependencies["database"].Status)
	assert.Nil(t, result.Dependencies["database"].PingMs)
}

func TestRenderDashboardHTML(t *testing.T) {
	ping := int64(4)
	html := RenderDashboardHTML(CollectResult{
		Status:       "ok",
		Traffic:      TrafficInfo{TotalRequests: 12345, SuccessRate: "99.0", AvgResponseTime: "3.10"},
		Sessions:     SessionsInfo{Live: 2},
		Dependencies: map[string]DepStatus{"redis": {Status: "connected", PingMs: &ping}, "database": {Status: "error"}},
	})
	assert.Contains(t, html, "Corkboard API | System Status")
	assert.Contains(t, html, "12,345")
	assert.Contains(t, html, "(4 ms)")
	assert.Less(t, strings.Index(html, ">database<"), strings.Index(html, ">redis<"))
}
