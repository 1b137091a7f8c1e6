package cache

import (
	"context"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisChatHistory_LoadSave(t *testing.T) {
	rdb := newFakeRedis()
	history := NewRedisChatHistory(rdb)
	ctx := context.Background()

	messages, err := history.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, messages)

	saved := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "Привет"},
		{Role: openai.ChatMessageRoleAssistant, Content: "Здравствуйте"},
	}
	require.NoError(t, history.Save(ctx, "s1", saved, time.Hour))
	assert.Equal(t, time.Hour, rdb.ttls[chatKeyPrefix+"s1"])

	messages, err = history.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, saved, messages)
}

func TestRedisChatHistory_CorruptedPayload(t *testing.T) {
	rdb := newFakeRedis()
	rdb.data[chatKeyPrefix+"broken"] = []byte("{not json")

	_, err := NewRedisChatHistory(rdb).Load(context.Background(), "broken")
	assert.Error(t, err)
}
