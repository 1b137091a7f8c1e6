package agent

import (
	"testing"

	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_ValidPath(t *testing.T) {
	tests := []struct {
		from     Status
		event    Event
		wantTo   Status
		wantStep Step
	}{
		{StatusWaitingForQuery, EventQueryAnalyzed, StatusQueryAnalyzed, StepExecuteSearch},
		{StatusQueryAnalyzed, EventSearchExecuted, StatusSearchExecuted, StepGenerateResponse},
		{StatusSearchExecuted, EventResponseGenerated, StatusCompleted, StepDone},
		{StatusQueryAnalyzed, EventResponseGenerated, StatusCompleted, StepDone},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			to, step, err := Transition(tt.from, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTo, to)
			assert.Equal(t, tt.wantStep, step)
			assert.True(t, CanTransition(tt.from, tt.event))
		})
	}
}

func TestTransition_RejectsInvalidMoves(t *testing.T) {
	tests := []struct {
		from  Status
		event Event
	}{
		{StatusWaitingForQuery, EventSearchExecuted},
		{StatusWaitingForQuery, EventResponseGenerated},
		{StatusSearchExecuted, EventQueryAnalyzed},
		{StatusSearchExecuted, EventSearchExecuted},
		{StatusCompleted, EventQueryAnalyzed},
		{StatusCompleted, EventResponseGenerated},
		{Status("unknown"), EventQueryAnalyzed},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			to, step, err := Transition(tt.from, tt.event)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidState))
			assert.Equal(t, tt.from, to)
			assert.Equal(t, StepDone, step)
			assert.False(t, CanTransition(tt.from, tt.event))
		})
	}
}

func TestTransitionTable_OnlyMovesForward(t *testing.T) {
	for from, rules := range transitions {
		for _, rule := range rules {
			assert.Greater(t, statusOrder[rule.To], statusOrder[from], "%s -> %s", from, rule.To)
		}
	}
}

func TestRouteAfterAnalysis(t *testing.T) {
	assert.Equal(t, StepExecuteSearch, RouteAfterAnalysis(StatusQueryAnalyzed))
	assert.Equal(t, StepGenerateResponse, RouteAfterAnalysis(StatusWaitingForQuery))
	assert.Equal(t, StepGenerateResponse, RouteAfterAnalysis(StatusSearchExecuted))
}
