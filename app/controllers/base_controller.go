package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/beego/beego/v2/server/web"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	validate   = validator.New()
	translator = apperrors.NewErrorTranslator()
)

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	_ = c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// JSONAppError 按错误码映射 HTTP 状态并输出错误信封
func (c *BaseController) JSONAppError(err error) {
	appErr := translator.Translate(err)
	if appErr.HTTPCode >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Ctx.Request.URL.Path),
			zap.String("code", string(appErr.Code)),
			zap.Error(err))
	}
	payload := map[string]interface{}{
		"success": false,
		"error":   appErr.Message,
		"code":    appErr.Code,
	}
	if appErr.Details != nil {
		payload["details"] = appErr.Details
	}
	c.JSON(appErr.HTTPCode, payload)
}

// bindJSON 解析请求体并校验，失败时已写出 400 响应
func (c *BaseController) bindJSON(v interface{}) bool {
	body := c.Ctx.Input.RequestBody
	if len(body) == 0 && c.Ctx.Request.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(c.Ctx.Request.Body, 1<<20))
	}

	if err := json.Unmarshal(body, v); err != nil {
		c.JSONError(http.StatusBadRequest, "请求体不是合法的JSON")
		return false
	}
	if err := validate.Struct(v); err != nil {
		c.JSONAppError(err)
		return false
	}
	return true
}
