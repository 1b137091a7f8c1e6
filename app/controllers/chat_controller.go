package controllers

import (
	"github.com/aihub/ragbot/internal/agent"
	"github.com/google/uuid"
)

// ChatRequest 自由对话请求，session_id 为空时创建新会话
type ChatRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
	Message   string `json:"message" validate:"required"`
}

// ChatController 不检索知识库的对话接口
type ChatController struct {
	BaseController
	Agent *agent.ChatAgent
}

// Chat 回答并返回会话ID，后续请求带上该ID即可延续对话
func (c *ChatController) Chat() {
	var req ChatRequest
	if !c.bindJSON(&req) {
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	answer, err := c.Agent.Ask(c.Ctx.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]string{
		"session_id": req.SessionID,
		"answer":     answer,
	})
}
