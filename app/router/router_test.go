package router

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/aihub/ragbot/internal/agent"
	"github.com/aihub/ragbot/internal/config"
	"github.com/aihub/ragbot/internal/ingest"
	"github.com/aihub/ragbot/internal/knowledge"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/beego/beego/v2/server/web"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	logger.SetLogger(zap.NewNop())
	web.BConfig.CopyRequestBody = true
	web.BConfig.WebConfig.AutoRender = false
}

// echoRunner 以固定格式回答问题
type echoRunner struct{}

func (echoRunner) Run(_ context.Context, question string) (*agent.State, error) {
	st := agent.NewState(question)
	st.Messages = append(st.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: "answer to " + question,
	})
	return st, nil
}

// countingModel 回复请求中的消息条数
type countingModel struct{}

func (countingModel) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: strconv.Itoa(len(req.Messages))},
	}}}, nil
}

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}
func (constEmbedder) Dimensions() int { return 4 }
func (constEmbedder) Ready() bool     { return true }

type server struct {
	handler *agent.BotHandler
	routes  *web.ControllerRegister
}

func newServer(t *testing.T, withTable bool) *server {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "db")

	if withTable {
		prep := knowledge.NewBoltVectorStore()
		require.NoError(t, prep.Connect(dbPath))
		require.NoError(t, prep.CreateTable(agent.DefaultTableName, knowledge.NewSchema(4)))
		require.NoError(t, prep.Close())
	}

	store := knowledge.NewBoltVectorStore()
	h := agent.NewBotHandler(agent.HandlerConfig{DBPath: dbPath}, store, echoRunner{})
	t.Cleanup(func() { _ = h.Close() })

	if store.State() == knowledge.StateDisconnected {
		require.NoError(t, store.Connect(dbPath))
	}
	cfg := config.IngestConfig{
		TempDir:           filepath.Join(dir, "temp"),
		MaxFileSize:       1 << 20,
		MaxPDFPages:       20,
		AllowedExtensions: []string{".pdf", ".docx", ".txt"},
	}
	pipeline := ingest.NewPipeline(constEmbedder{},
		ingest.Targets{FileStore: store.Fork(), FileTable: "pdf_chunks", PageStore: store.Fork(), PageTable: agent.DefaultTableName},
		cfg, config.ChunkingConfig{Size: 100, Overlap: 10})

	routes := web.NewControllerRegister()
	require.NoError(t, Register(routes, Deps{
		Handler:     h,
		Chat:        agent.NewChatAgent(countingModel{}, nil, config.ChatConfig{}),
		Pipeline:    pipeline,
		MaxFileSize: cfg.MaxFileSize,
		CORSOrigins: []string{"http://localhost:5173"},
	}))
	return &server{handler: h, routes: routes}
}

func (s *server) do(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	s.routes.ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w.Code, body
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth(t *testing.T) {
	code, body := newServer(t, true).do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, agent.DefaultTableName, data["table"])

	code, body = newServer(t, false).do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["data"].(map[string]interface{})["status"])
}

func TestAsk(t *testing.T) {
	s := newServer(t, true)

	code, body := s.do(t, postJSON("/api/rag/ask", `{"question":"What was the margin?"}`))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "answer to What was the margin?", body["data"].(map[string]interface{})["answer"])

	code, body = s.do(t, postJSON("/api/rag/ask", `{}`))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])

	code, _ = s.do(t, postJSON("/api/rag/ask", `not json`))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAsk_DegradedStoreStillAnswers200(t *testing.T) {
	code, body := newServer(t, false).do(t, postJSON("/api/rag/ask", `{"question":"q"}`))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, agent.MessageStoreUnavailable, body["data"].(map[string]interface{})["answer"])
}

func TestIngestURL_InvalidLinkReturnsReason(t *testing.T) {
	code, body := newServer(t, true).do(t, postJSON("/api/rag/ingest/url", `{"url":"not a link"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, knowledge.ReasonInvalidLink, body["error"])
}

func TestIngestFile(t *testing.T) {
	s := newServer(t, true)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "report.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("Revenue grew 12%. Costs fell 3%. Net margin improved."))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/rag/ingest/file", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())

	code, body := s.do(t, req)
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "report.txt", data["doc_name"])
	assert.Equal(t, "pdf_chunks", data["table"])

	code, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/rag/tables", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.ElementsMatch(t, []interface{}{"from_txt", "pdf_chunks"}, body["data"].(map[string]interface{})["tables"])
}

func TestIngestFile_MissingFile(t *testing.T) {
	code, _ := newServer(t, true).do(t, postJSON("/api/rag/ingest/file", `{}`))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCORS(t *testing.T) {
	s := newServer(t, true)

	req := httptest.NewRequest(http.MethodOptions, "/api/rag/ask", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	s.routes.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	s.routes.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBodyLimit(t *testing.T) {
	s := newServer(t, true)
	body := strings.Repeat("x", (1<<20)+formOverhead+1)
	code, body2 := s.do(t, postJSON("/api/rag/ask", body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, false, body2["success"])
}

func TestChat_KeepsSessionHistory(t *testing.T) {
	s := newServer(t, false)

	code, body := s.do(t, postJSON("/api/chat", `{"message":"Monolith or microservices?"}`))
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]interface{})
	sessionID := data["session_id"].(string)
	assert.NotEmpty(t, sessionID)
	assert.Equal(t, "2", data["answer"])

	code, body = s.do(t, postJSON("/api/chat", `{"session_id":"`+sessionID+`","message":"Why?"}`))
	require.Equal(t, http.StatusOK, code)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, sessionID, data["session_id"])
	assert.Equal(t, "4", data["answer"])

	code, _ = s.do(t, postJSON("/api/chat", `{"session_id":"x"}`))
	assert.Equal(t, http.StatusBadRequest, code)
}
