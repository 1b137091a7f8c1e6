package middleware

import (
	"net/http"
	"time"

	"github.com/aihub/ragbot/internal/logger"
	"github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

const startTimeKey = "requestStartTime"

// RequestStart 记录请求开始时间，注册在 BeforeRouter
func RequestStart(ctx *context.Context) {
	ctx.Input.SetData(startTimeKey, time.Now())
}

// RequestLog 请求结束后记录访问日志，注册在 FinishRouter
func RequestLog(ctx *context.Context) {
	fields := []zap.Field{
		zap.String("method", ctx.Input.Method()),
		zap.String("path", ctx.Input.URL()),
		zap.Int("status", responseStatus(ctx)),
		zap.String("ip", ctx.Input.IP()),
	}
	if start, ok := ctx.Input.GetData(startTimeKey).(time.Time); ok {
		fields = append(fields, zap.Duration("duration", time.Since(start)))
	}
	logger.Debug("request handled", fields...)
}

// BodyLimit 拒绝超过 maxBytes 的请求体
func BodyLimit(maxBytes int64) func(*context.Context) {
	return func(ctx *context.Context) {
		if ctx.Request.ContentLength > maxBytes {
			ctx.Output.SetStatus(http.StatusRequestEntityTooLarge)
			_ = ctx.Output.JSON(map[string]interface{}{
				"success": false,
				"error":   "Request size exceeds maximum allowed limit",
			}, false, false)
			return
		}
		if ctx.Request.Body != nil {
			ctx.Request.Body = http.MaxBytesReader(ctx.ResponseWriter, ctx.Request.Body, maxBytes)
		}
	}
}

func responseStatus(ctx *context.Context) int {
	if ctx.ResponseWriter != nil && ctx.ResponseWriter.Status != 0 {
		return ctx.ResponseWriter.Status
	}
	if ctx.Output.Status != 0 {
		return ctx.Output.Status
	}
	return http.StatusOK
}
