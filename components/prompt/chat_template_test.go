package prompt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runchain/schema"
)

// TestFromMessagesFormat 验证模板列表按顺序渲染并拼接。
func TestFromMessagesFormat(t *testing.T) {
	template := FromMessages(schema.FString,
		schema.SystemMessage("You are acting as a {role}."),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	history := []*schema.Message{
		schema.UserMessage("hi"),
		schema.AssistantMessage("hello"),
	}

	msgs, err := template.Format(context.Background(), map[string]any{
		"role":    "teacher",
		"query":   "what is go?",
		"history": history,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	assert.Equal(t, "You are acting as a teacher.", msgs[0].Content)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, history[0], msgs[1])
	assert.Equal(t, history[1], msgs[2])
	assert.Equal(t, "what is go?", msgs[3].Content)
}

// TestFormatErrorCarriesIndex 验证渲染失败的错误携带模板位置。
func TestFormatErrorCarriesIndex(t *testing.T) {
	template := FromMessages(schema.FString,
		schema.SystemMessage("ok"),
		schema.MessagesPlaceholder("history", false),
	)

	_, err := template.Format(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 1")
}

// TestWithFormatType 验证调用时覆盖模板的格式化类型。
func TestWithFormatType(t *testing.T) {
	template := FromMessages(schema.FString,
		schema.UserMessage("hello {{ name }}"),
	)

	msgs, err := template.Format(context.Background(),
		map[string]any{"name": "world"}, WithFormatType(schema.Jinja2))
	require.NoError(t, err)
	assert.Equal(t, "hello world", msgs[0].Content)
}
