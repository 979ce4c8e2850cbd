package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMessageFormatFString 验证 Python 风格的字符串格式化。
func TestMessageFormatFString(t *testing.T) {
	msg := UserMessage("what is {topic}?")

	out, err := msg.Format(context.Background(), map[string]any{"topic": "go"}, FString)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "what is go?", out[0].Content)
	assert.Equal(t, User, out[0].Role)
}

// TestMessageFormatGoTemplate 验证 text/template 格式化，缺键报错。
func TestMessageFormatGoTemplate(t *testing.T) {
	msg := SystemMessage("You are acting as a {{.role}}.")

	out, err := msg.Format(context.Background(), map[string]any{"role": "teacher"}, GoTemplate)
	require.NoError(t, err)
	assert.Equal(t, "You are acting as a teacher.", out[0].Content)

	_, err = msg.Format(context.Background(), map[string]any{}, GoTemplate)
	assert.Error(t, err)
}

// TestMessageFormatJinja2 验证 jinja2 格式化。
func TestMessageFormatJinja2(t *testing.T) {
	msg := UserMessage("hello {{ name }}")

	out, err := msg.Format(context.Background(), map[string]any{"name": "world"}, Jinja2)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out[0].Content)
}

// TestMessagesPlaceholder 验证占位符展开历史消息。
func TestMessagesPlaceholder(t *testing.T) {
	history := []*Message{
		UserMessage("hi"),
		AssistantMessage("hello, how can I help you?"),
	}

	p := MessagesPlaceholder("history", false)

	out, err := p.Format(context.Background(), map[string]any{"history": history}, FString)
	require.NoError(t, err)
	assert.Equal(t, history, out)
}

// TestMessagesPlaceholderOptional 验证可选占位符缺参时展开为空。
func TestMessagesPlaceholderOptional(t *testing.T) {
	p := MessagesPlaceholder("history", true)

	out, err := p.Format(context.Background(), map[string]any{}, FString)
	require.NoError(t, err)
	assert.Empty(t, out)

	// 非可选占位符缺参报错
	p = MessagesPlaceholder("history", false)
	_, err = p.Format(context.Background(), map[string]any{}, FString)
	assert.Error(t, err)
}

// TestConcatMessages 验证消息块合并：内容拼接、元信息取值规则。
func TestConcatMessages(t *testing.T) {
	msgs := []*Message{
		{Role: Assistant, Content: "Hel"},
		{Role: Assistant, Content: "lo "},
		{Role: Assistant, Content: "world", ResponseMeta: &ResponseMeta{
			FinishReason: "stop",
			Usage:        &TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}},
	}

	got, err := ConcatMessages(msgs)
	require.NoError(t, err)

	assert.Equal(t, "Hello world", got.Content)
	assert.Equal(t, Assistant, got.Role)
	assert.Equal(t, "stop", got.ResponseMeta.FinishReason)
	assert.Equal(t, 15, got.ResponseMeta.Usage.TotalTokens)
}

// TestConcatMessagesRoleConflict 验证角色不一致时报错。
func TestConcatMessagesRoleConflict(t *testing.T) {
	_, err := ConcatMessages([]*Message{
		{Role: Assistant, Content: "a"},
		{Role: User, Content: "b"},
	})
	assert.ErrorContains(t, err, "different roles")
}

// TestConcatMessageStream 验证消息流的终端合并操作。
func TestConcatMessageStream(t *testing.T) {
	sr := StreamReaderFromArray([]*Message{
		{Role: Assistant, Content: "foo"},
		{Role: Assistant, Content: "bar"},
	})

	got, err := ConcatMessageStream(sr)
	require.NoError(t, err)
	assert.Equal(t, "foobar", got.Content)
}
