package controllers

import (
	"errors"
	"net/http"

	"github.com/aihub/ragbot/internal/agent"
	"github.com/aihub/ragbot/internal/ingest"
	"github.com/aihub/ragbot/internal/logger"
	"go.uber.org/zap"
)

// AskRequest 提问请求
type AskRequest struct {
	Question string `json:"question" validate:"required"`
}

// IngestURLRequest 网页入库请求
type IngestURLRequest struct {
	URL string `json:"url" validate:"required"`
}

// AnalyzeRequest 文档分析请求
type AnalyzeRequest struct {
	Documents string `json:"documents" validate:"required"`
}

// RAGController 问答与入库接口，字段在注册路由时注入
type RAGController struct {
	BaseController
	Handler  *agent.BotHandler
	Agent    *agent.Agent
	Pipeline *ingest.Pipeline
}

// Ask 回答问题，失败时同样返回 200 和固定提示
func (c *RAGController) Ask() {
	var req AskRequest
	if !c.bindJSON(&req) {
		return
	}

	answer := c.Handler.HandleQuestion(c.Ctx.Request.Context(), req.Question)
	c.JSONSuccess(map[string]interface{}{
		"question": req.Question,
		"answer":   answer,
	})
}

// IngestURL 下载网页并写入问答表
func (c *RAGController) IngestURL() {
	var req IngestURLRequest
	if !c.bindJSON(&req) {
		return
	}

	result, err := c.Pipeline.IngestURL(c.Ctx.Request.Context(), req.URL)
	if err != nil {
		var downloadErr *ingest.DownloadError
		if errors.As(err, &downloadErr) {
			c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
				"success": false,
				"error":   downloadErr.Reason,
			})
			return
		}
		c.JSONAppError(err)
		return
	}

	// 问答表可能是刚创建的
	if !c.Handler.Ready() && c.Handler.Refresh() {
		logger.Info("question answering enabled after ingestion", zap.String("table", result.Table))
	}
	c.JSONSuccess(result)
}

// IngestFile 接收 multipart 文件并入库
func (c *RAGController) IngestFile() {
	file, header, err := c.GetFile("file")
	if err != nil {
		c.JSONError(http.StatusBadRequest, "缺少上传文件")
		return
	}
	defer file.Close()

	result, err := c.Pipeline.IngestUpload(c.Ctx.Request.Context(), header.Filename, file)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(result)
}

// Analyze 对给定文本做结构化分析
func (c *RAGController) Analyze() {
	var req AnalyzeRequest
	if !c.bindJSON(&req) {
		return
	}

	analysis, err := c.Agent.AnalyzeDocuments(c.Ctx.Request.Context(), req.Documents)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]string{"analysis": analysis})
}

// Tables 列出向量库中的表
func (c *RAGController) Tables() {
	tables, err := c.Handler.Store().ListTables()
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"tables":  tables,
		"current": c.Handler.Store().TableName(),
	})
}
