package agent

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aihub/ragbot/internal/config"
	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/aihub/ragbot/internal/knowledge"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/aihub/ragbot/internal/metrics"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultSearchLimit = 3
	maxSteps           = 8
)

// Searcher 按文本检索向量库，knowledge.Retriever 满足该接口
type Searcher interface {
	Search(ctx context.Context, query string, limit int, filter *knowledge.MetadataFilter) ([]knowledge.SearchResult, error)
}

// Agent 检索增强问答智能体：分析问题、选择检索方式、检索、基于证据生成回答
type Agent struct {
	model       ChatModel
	searcher    Searcher
	modelName   string
	temperature float32
	searchLimit int
}

// NewAgent 创建智能体
func NewAgent(model ChatModel, searcher Searcher, cfg config.ChatConfig) *Agent {
	a := &Agent{
		model:       model,
		searcher:    searcher,
		modelName:   cfg.Model,
		temperature: cfg.Temperature,
		searchLimit: cfg.SearchLimit,
	}
	if a.modelName == "" {
		a.modelName = defaultModel
	}
	if a.searchLimit <= 0 {
		a.searchLimit = defaultSearchLimit
	}
	return a
}

// Run 从分析步骤开始驱动状态机直到完成
func (a *Agent) Run(ctx context.Context, question string) (*State, error) {
	st := NewState(question)
	step := StepAnalyzeQuery

	for i := 0; step != StepDone; i++ {
		if i >= maxSteps {
			metrics.AgentRuns.WithLabelValues("error").Inc()
			return st, apperrors.NewSystemError(apperrors.ErrCodeInvalidState,
				fmt.Sprintf("agent run %s exceeded %d steps", st.RunID, maxSteps))
		}

		ev, err := a.perform(ctx, step, st)
		if err != nil {
			metrics.AgentRuns.WithLabelValues("error").Inc()
			logger.Error("agent step failed",
				zap.String("run_id", st.RunID),
				zap.String("step", string(step)),
				zap.Error(err))
			return st, err
		}

		status, nextStep, err := Transition(st.Status, ev)
		if err != nil {
			metrics.AgentRuns.WithLabelValues("error").Inc()
			return st, err
		}
		st.Status = status
		step = nextStep
	}

	outcome := "answered"
	if len(st.SearchResults) == 0 {
		outcome = "no_results"
	}
	metrics.AgentRuns.WithLabelValues(outcome).Inc()

	logger.Info("agent run completed",
		zap.String("run_id", st.RunID),
		zap.String("status", string(st.Status)),
		zap.Int("search_results", len(st.SearchResults)),
		zap.Int("searches", len(st.SearchHistory)))
	return st, nil
}

func (a *Agent) perform(ctx context.Context, step Step, st *State) (Event, error) {
	defer metrics.ObserveDuration(metrics.AgentStepDuration, string(step), time.Now())

	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeTimeout, "agent run cancelled", err)
	}

	switch step {
	case StepAnalyzeQuery:
		return EventQueryAnalyzed, a.analyzeQuery(ctx, st)
	case StepExecuteSearch:
		return EventSearchExecuted, a.executeSearch(ctx, st)
	case StepGenerateResponse:
		return EventResponseGenerated, a.generateResponse(ctx, st)
	default:
		return "", apperrors.NewSystemError(apperrors.ErrCodeInvalidState, "unknown step "+string(step))
	}
}

// analyzeQuery 让模型推理检索策略，推理结果追加到对话
func (a *Agent) analyzeQuery(ctx context.Context, st *State) error {
	messages := append([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: analysisPrompt},
	}, st.Messages...)

	reply, err := a.complete(ctx, openai.ChatCompletionRequest{
		Model:       a.modelName,
		Temperature: a.temperature,
		Messages:    messages,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeAnalysis, "query analysis failed", err)
	}

	st.appendMessage(reply)
	return nil
}

// executeSearch 由模型选择检索工具并直接执行；模型未调用工具时用原始问题做普通检索
func (a *Agent) executeSearch(ctx context.Context, st *State) error {
	query, ok := st.LastUserMessage()
	if !ok {
		return apperrors.NewSystemError(apperrors.ErrCodeInvalidState, "no user question in state")
	}

	reply, err := a.complete(ctx, openai.ChatCompletionRequest{
		Model:       a.modelName,
		Temperature: a.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: toolSelectionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: toolSelectionRequest(query)},
		},
		Tools: searchTools(),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeSearch, "search tool selection failed", err)
	}
	st.appendMessage(reply)

	searched := false
	for _, call := range reply.ToolCalls {
		action, err := DecodeToolCall(call, query)
		if err != nil {
			logger.Warn("ignoring tool call",
				zap.String("run_id", st.RunID),
				zap.String("tool", call.Function.Name),
				zap.Error(err))
			continue
		}

		result, err := a.search(ctx, st, action)
		if err != nil {
			return err
		}
		searched = true
		st.appendMessage(openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    result,
			ToolCallID: call.ID,
		})
	}

	if !searched {
		if _, err := a.search(ctx, st, PlainSearch{Query: query}); err != nil {
			return err
		}
	}

	st.SearchHistory = append(st.SearchHistory, query)
	return nil
}

// search 执行检索，有结果时记入 SearchResults
func (a *Agent) search(ctx context.Context, st *State, action SearchAction) (string, error) {
	filter := action.SearchFilter()
	results, err := a.searcher.Search(ctx, action.SearchQuery(), a.searchLimit, filter)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeSearch, "document search failed", err)
	}

	logger.Debug("search executed",
		zap.String("run_id", st.RunID),
		zap.String("query", action.SearchQuery()),
		zap.Bool("filtered", filter != nil),
		zap.Int("results", len(results)))

	formatted := FormatResults(action.SearchQuery(), filter, results)
	if len(results) > 0 {
		st.SearchResults = append(st.SearchResults, formatted)
	}
	return formatted, nil
}

// generateResponse 仅依据检索结果作答；没有结果时返回固定致歉且不调用模型
func (a *Agent) generateResponse(ctx context.Context, st *State) error {
	if len(st.SearchResults) == 0 {
		st.appendMessage(openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: NoResultsAnswer,
		})
		return nil
	}

	query, ok := st.LastUserMessage()
	if !ok {
		return apperrors.NewSystemError(apperrors.ErrCodeInvalidState, "no user question in state")
	}

	reply, err := a.complete(ctx, openai.ChatCompletionRequest{
		Model:       a.modelName,
		Temperature: a.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: synthesisPrompt},
			{Role: openai.ChatMessageRoleSystem, Content: searchContext(st.SearchResults)},
			{Role: openai.ChatMessageRoleUser, Content: synthesisRequest(query)},
		},
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeSynthesis, "response generation failed", err)
	}

	st.appendMessage(reply)
	return nil
}

// AnalyzeDocuments 对文档做结构化分析：主题、事实、结论
func (a *Agent) AnalyzeDocuments(ctx context.Context, documents string) (string, error) {
	if documents == "" {
		return "", apperrors.NewInvalidInputError("documents", "is empty")
	}

	// go-openai 会省略值为 0 的 temperature
	reply, err := a.complete(ctx, openai.ChatCompletionRequest{
		Model:       a.modelName,
		Temperature: math.SmallestNonzeroFloat32,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: documentAnalysisPrompt},
			{Role: openai.ChatMessageRoleUser, Content: documents},
		},
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeAnalysis, "document analysis failed", err)
	}
	return reply.Content, nil
}

func (a *Agent) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
	return completion(ctx, a.model, req)
}

// completion 返回第一条回复，角色统一为 assistant
func completion(ctx context.Context, model ChatModel, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
	resp, err := model.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, fmt.Errorf("model %s returned no choices", req.Model)
	}

	msg := resp.Choices[0].Message
	msg.Role = openai.ChatMessageRoleAssistant
	return msg, nil
}
