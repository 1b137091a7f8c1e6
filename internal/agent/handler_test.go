package agent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/aihub/ragbot/internal/knowledge"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPreparedDB(t *testing.T, table string) string {
	t.Helper()
	dir := t.TempDir()
	store := knowledge.NewBoltVectorStore()
	require.NoError(t, store.Connect(dir))
	require.NoError(t, store.CreateTable(table, knowledge.DefaultSchema()))
	require.NoError(t, store.Close())
	return dir
}

func TestBotHandler_MissingPathIsDegraded(t *testing.T) {
	runner := &fakeRunner{}
	h := NewBotHandler(HandlerConfig{DBPath: filepath.Join(t.TempDir(), "absent")}, knowledge.NewBoltVectorStore(), runner)

	assert.False(t, h.Ready())
	assert.Equal(t, MessageStoreUnavailable, h.HandleQuestion(context.Background(), "What was the margin?"))
	assert.Equal(t, 0, runner.calls)

	_, err := h.Ask(context.Background(), "q")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreUnavailable))
}

func TestBotHandler_MissingTableIsDegraded(t *testing.T) {
	dir := newPreparedDB(t, "other")
	store := knowledge.NewBoltVectorStore()
	h := NewBotHandler(HandlerConfig{DBPath: dir}, store, &fakeRunner{})
	defer h.Close()

	assert.False(t, h.Ready())
	assert.Equal(t, MessageStoreUnavailable, h.HandleQuestion(context.Background(), "q"))
}

func TestBotHandler_ReturnsLastAssistantMessage(t *testing.T) {
	dir := newPreparedDB(t, DefaultTableName)
	store := knowledge.NewBoltVectorStore()
	h := NewBotHandler(HandlerConfig{DBPath: dir}, store, &fakeRunner{})
	defer h.Close()

	require.True(t, h.Ready())
	assert.Equal(t, knowledge.StateTableSelected, store.State())
	assert.Equal(t, "answer to hello", h.HandleQuestion(context.Background(), "hello"))
}

func TestBotHandler_AgentErrorBecomesProcessingMessage(t *testing.T) {
	dir := newPreparedDB(t, DefaultTableName)
	runner := &fakeRunner{err: apperrors.Wrap(apperrors.ErrCodeSynthesis, "response generation failed", errors.New("boom"))}
	h := NewBotHandler(HandlerConfig{DBPath: dir}, knowledge.NewBoltVectorStore(), runner)
	defer h.Close()

	assert.Equal(t, MessageProcessingError, h.HandleQuestion(context.Background(), "q"))
}

func TestBotHandler_RunWithoutAssistantMessageIsAnError(t *testing.T) {
	dir := newPreparedDB(t, DefaultTableName)
	runner := &fakeRunner{state: NewState("q")}
	h := NewBotHandler(HandlerConfig{DBPath: dir}, knowledge.NewBoltVectorStore(), runner)
	defer h.Close()

	_, err := h.Ask(context.Background(), "q")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNoAnswer))
	assert.Equal(t, MessageProcessingError, h.HandleQuestion(context.Background(), "q"))
}

func TestBotHandler_NoResultsApologyIsAValidAnswer(t *testing.T) {
	dir := newPreparedDB(t, DefaultTableName)
	st := NewState("q")
	st.appendMessage(openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: NoResultsAnswer})
	h := NewBotHandler(HandlerConfig{DBPath: dir}, knowledge.NewBoltVectorStore(), &fakeRunner{state: st})
	defer h.Close()

	answer, err := h.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, NoResultsAnswer, answer)
}

func TestBotHandler_AppliesTimeoutAndRejectsEmptyQuestion(t *testing.T) {
	dir := newPreparedDB(t, DefaultTableName)
	runner := &fakeRunner{}
	h := NewBotHandler(HandlerConfig{DBPath: dir, Timeout: time.Minute}, knowledge.NewBoltVectorStore(), runner)
	defer h.Close()

	_, err := h.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, runner.deadline)

	_, err = h.Ask(context.Background(), "   ")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	assert.Equal(t, 1, runner.calls)
}

func TestBotHandler_EndToEndEmptyTable(t *testing.T) {
	dir := newPreparedDB(t, DefaultTableName)
	store := knowledge.NewBoltVectorStore()
	model := (&scriptedModel{}).say("analysis").say("no tools")
	a := NewAgent(model, knowledge.NewRetriever(wordEmbedder{}, store), testChatConfig)

	h := NewBotHandler(HandlerConfig{DBPath: dir}, store, a)
	defer h.Close()

	assert.Equal(t, NoResultsAnswer, h.HandleQuestion(context.Background(), "What was the margin?"))
}

func TestBotHandler_RefreshAfterTableCreated(t *testing.T) {
	dir := newPreparedDB(t, "other")
	store := knowledge.NewBoltVectorStore()
	h := NewBotHandler(HandlerConfig{DBPath: dir}, store, &fakeRunner{})
	defer h.Close()
	require.False(t, h.Ready())

	// 入库视图在同一连接上建表
	ingest := store.Fork()
	require.NoError(t, ingest.CreateTable(DefaultTableName, knowledge.DefaultSchema()))

	assert.True(t, h.Refresh())
	assert.True(t, h.Ready())
	assert.Equal(t, "answer to q", h.HandleQuestion(context.Background(), "q"))
}
