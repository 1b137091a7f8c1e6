package router

import (
	"github.com/aihub/ragbot/app/controllers"
	"github.com/aihub/ragbot/app/middleware"
	"github.com/aihub/ragbot/internal/agent"
	"github.com/aihub/ragbot/internal/ingest"
	"github.com/beego/beego/v2/server/web"
)

// multipart 表单的额外开销
const formOverhead = 1 << 20

// Deps 路由需要的组件
type Deps struct {
	Handler     *agent.BotHandler
	Agent       *agent.Agent
	Chat        *agent.ChatAgent
	Pipeline    *ingest.Pipeline
	MaxFileSize int64
	CORSOrigins []string
}

// Init registers all routes on the default beego application.
func Init(deps Deps) error {
	web.BConfig.CopyRequestBody = true
	web.BConfig.WebConfig.AutoRender = false
	return Register(web.BeeApp.Handlers, deps)
}

// Register 在给定的路由表上注册全部路由和过滤器
func Register(h *web.ControllerRegister, deps Deps) error {
	// returnOnOutput 为 true 的过滤器写出响应后终止请求
	filters := []struct {
		pos            int
		filter         web.FilterFunc
		returnOnOutput bool
	}{
		{web.BeforeStatic, middleware.BodyLimit(deps.MaxFileSize + formOverhead), true},
		{web.BeforeRouter, middleware.RequestStart, false},
		{web.BeforeRouter, middleware.CORS(deps.CORSOrigins), true},
		{web.FinishRouter, middleware.RequestLog, false},
	}
	for _, f := range filters {
		if err := h.InsertFilter("/*", f.pos, f.filter, web.WithReturnOnOutput(f.returnOnOutput)); err != nil {
			return err
		}
	}

	root := &controllers.RootController{}
	h.Add("/", root, web.WithRouterMethods(root, "get:Index"))

	health := &controllers.HealthController{Handler: deps.Handler}
	h.Add("/health", health, web.WithRouterMethods(health, "get:Health"))

	metrics := &controllers.MetricsController{}
	h.Add("/metrics", metrics, web.WithRouterMethods(metrics, "get:Metrics"))

	rag := &controllers.RAGController{Handler: deps.Handler, Agent: deps.Agent, Pipeline: deps.Pipeline}
	h.Add("/api/rag/ask", rag, web.WithRouterMethods(rag, "post:Ask"))
	h.Add("/api/rag/analyze", rag, web.WithRouterMethods(rag, "post:Analyze"))
	h.Add("/api/rag/tables", rag, web.WithRouterMethods(rag, "get:Tables"))
	h.Add("/api/rag/ingest/url", rag, web.WithRouterMethods(rag, "post:IngestURL"))
	h.Add("/api/rag/ingest/file", rag, web.WithRouterMethods(rag, "post:IngestFile"))

	chat := &controllers.ChatController{Agent: deps.Chat}
	h.Add("/api/chat", chat, web.WithRouterMethods(chat, "post:Chat"))
	return nil
}
