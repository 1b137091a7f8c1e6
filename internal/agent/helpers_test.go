package agent

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/aihub/ragbot/internal/knowledge"
	"github.com/aihub/ragbot/internal/logger"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

func init() {
	logger.SetLogger(zap.NewNop())
}

// scriptedModel 按顺序返回预设回复并记录请求
type scriptedModel struct {
	mu       sync.Mutex
	replies  []func(req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error)
	requests []openai.ChatCompletionRequest
}

func (m *scriptedModel) then(fn func(req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error)) *scriptedModel {
	m.replies = append(m.replies, fn)
	return m
}

func (m *scriptedModel) say(content string) *scriptedModel {
	return m.then(func(openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}, nil
	})
}

func (m *scriptedModel) callTool(id, name, args string) *scriptedModel {
	return m.then(func(openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
		return openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{{
				ID:       id,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: name, Arguments: args},
			}},
		}, nil
	})
}

func (m *scriptedModel) fail(err error) *scriptedModel {
	return m.then(func(openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
		return openai.ChatCompletionMessage{}, err
	})
}

func (m *scriptedModel) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if len(m.replies) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("unexpected model call")
	}
	next := m.replies[0]
	m.replies = m.replies[1:]

	msg, err := next(req)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: msg}}}, nil
}

func (m *scriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// answerFromContext 复述上下文中包含关键词的第一行
func answerFromContext(keyword string) func(req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
	return func(req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
		for _, msg := range req.Messages {
			if !strings.HasPrefix(msg.Content, "Результаты поиска:") {
				continue
			}
			for _, line := range strings.Split(msg.Content, "\n") {
				if strings.Contains(strings.ToLower(line), keyword) && !strings.HasPrefix(line, "По запросу") {
					return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "Ответ: " + strings.TrimSpace(line)}, nil
				}
			}
		}
		return openai.ChatCompletionMessage{}, errors.New("keyword not in context")
	}
}

// fakeSearcher 记录检索请求并返回固定结果
type fakeSearcher struct {
	results []knowledge.SearchResult
	err     error
	queries []string
	filters []*knowledge.MetadataFilter
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int, filter *knowledge.MetadataFilter) ([]knowledge.SearchResult, error) {
	f.queries = append(f.queries, query)
	f.filters = append(f.filters, filter)
	return f.results, f.err
}

// wordEmbedder 词袋哈希向量
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, knowledge.EmbeddingDimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(len(vec))]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (wordEmbedder) Dimensions() int { return knowledge.EmbeddingDimensions }
func (wordEmbedder) Ready() bool     { return true }

// fakeRunner 门面测试用
type fakeRunner struct {
	state    *State
	err      error
	calls    int
	deadline bool
}

func (r *fakeRunner) Run(ctx context.Context, question string) (*State, error) {
	r.calls++
	_, r.deadline = ctx.Deadline()
	if r.err != nil {
		return nil, r.err
	}
	if r.state != nil {
		return r.state, nil
	}
	st := NewState(question)
	st.appendMessage(openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "answer to " + question})
	return st, nil
}
