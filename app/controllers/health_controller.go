package controllers

import (
	"net/http"

	"github.com/aihub/ragbot/internal/agent"
	"github.com/aihub/ragbot/internal/metrics"
)

// RootController 根控制器
type RootController struct {
	BaseController
}

func (c *RootController) Index() {
	c.JSONSuccess(map[string]string{"message": "RAG Bot API"})
}

// HealthController 健康检查控制器
type HealthController struct {
	BaseController
	Handler *agent.BotHandler
}

// Health 向量库未就绪时返回 503
func (c *HealthController) Health() {
	store := c.Handler.Store()
	payload := map[string]interface{}{
		"status": "healthy",
		"store":  store.State().String(),
		"table":  store.TableName(),
	}

	if !c.Handler.Ready() {
		payload["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"success": false,
			"data":    payload,
		})
		return
	}

	if rows, err := store.CountRows(); err == nil {
		payload["rows"] = rows
	}
	c.JSONSuccess(payload)
}

// MetricsController 指标控制器
type MetricsController struct {
	BaseController
}

// Metrics 返回Prometheus格式的指标
func (c *MetricsController) Metrics() {
	metrics.Handler().ServeHTTP(c.Ctx.ResponseWriter, c.Ctx.Request)
}
