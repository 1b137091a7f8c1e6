package agent

import (
	"fmt"

	apperrors "github.com/aihub/ragbot/internal/errors"
)

// Event 步骤完成后产生的事件
type Event string

const (
	EventQueryAnalyzed     Event = "query_analyzed"
	EventSearchExecuted    Event = "search_executed"
	EventResponseGenerated Event = "response_generated"
)

// Step 驱动器下一步要执行的动作
type Step string

const (
	StepAnalyzeQuery     Step = "analyze_query"
	StepExecuteSearch    Step = "execute_search"
	StepGenerateResponse Step = "generate_response"
	StepDone             Step = "done"
)

// transition 状态转换定义
type transition struct {
	On Event
	To Status
}

// 状态转换规则
var transitions = map[Status][]transition{
	StatusWaitingForQuery: {
		{On: EventQueryAnalyzed, To: StatusQueryAnalyzed},
	},
	StatusQueryAnalyzed: {
		{On: EventSearchExecuted, To: StatusSearchExecuted},
		{On: EventResponseGenerated, To: StatusCompleted},
	},
	StatusSearchExecuted: {
		{On: EventResponseGenerated, To: StatusCompleted},
	},
}

// CanTransition 检查事件在当前状态下是否合法
func CanTransition(from Status, ev Event) bool {
	_, err := next(from, ev)
	return err == nil
}

// Transition 纯函数：根据当前状态和事件返回新状态与下一步动作
func Transition(from Status, ev Event) (Status, Step, error) {
	to, err := next(from, ev)
	if err != nil {
		return from, StepDone, err
	}
	return to, stepFor(to), nil
}

// RouteAfterAnalysis 分析完成后的分支：需要检索则执行检索，否则直接生成回答
func RouteAfterAnalysis(status Status) Step {
	if status == StatusQueryAnalyzed {
		return StepExecuteSearch
	}
	return StepGenerateResponse
}

func next(from Status, ev Event) (Status, error) {
	for _, t := range transitions[from] {
		if t.On != ev {
			continue
		}
		if statusOrder[t.To] <= statusOrder[from] {
			break
		}
		return t.To, nil
	}
	return from, apperrors.NewSystemError(apperrors.ErrCodeInvalidState,
		fmt.Sprintf("invalid transition from %s on %s", from, ev))
}

func stepFor(status Status) Step {
	switch status {
	case StatusWaitingForQuery:
		return StepAnalyzeQuery
	case StatusQueryAnalyzed:
		return RouteAfterAnalysis(status)
	case StatusSearchExecuted:
		return StepGenerateResponse
	default:
		return StepDone
	}
}
