package agent

import (
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// Status 检索智能体状态
type Status string

const (
	StatusWaitingForQuery Status = "waiting_for_query"
	StatusQueryAnalyzed   Status = "query_analyzed"
	StatusSearchExecuted  Status = "search_executed"
	StatusCompleted       Status = "completed"
)

var statusOrder = map[Status]int{
	StatusWaitingForQuery: 0,
	StatusQueryAnalyzed:   1,
	StatusSearchExecuted:  2,
	StatusCompleted:       3,
}

// State 单次提问的运行状态，不在请求之间共享
type State struct {
	RunID         string                         `json:"run_id"`
	Messages      []openai.ChatCompletionMessage `json:"messages"`
	Status        Status                         `json:"status"`
	SearchResults []string                       `json:"search_results"`
	SearchHistory []string                       `json:"search_history"`
}

// NewState 创建已包含用户问题的初始状态
func NewState(question string) *State {
	return &State{
		RunID: uuid.NewString(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
		Status: StatusWaitingForQuery,
	}
}

// LastUserMessage 最近一条用户消息
func (s *State) LastUserMessage() (string, bool) {
	return s.last(openai.ChatMessageRoleUser)
}

// LastAssistantMessage 最近一条助手消息
func (s *State) LastAssistantMessage() (string, bool) {
	return s.last(openai.ChatMessageRoleAssistant)
}

func (s *State) last(role string) (string, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == role {
			return s.Messages[i].Content, true
		}
	}
	return "", false
}

func (s *State) appendMessage(msg openai.ChatCompletionMessage) {
	s.Messages = append(s.Messages, msg)
}
