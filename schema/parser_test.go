package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parsedBody struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TestMessageJSONParser 验证整条消息内容的 JSON 解析。
func TestMessageJSONParser(t *testing.T) {
	parser := NewMessageJSONParser[*parsedBody](nil)

	got, err := parser.Parse(context.Background(), AssistantMessage(`{"id": 1, "name": "alice"}`))
	require.NoError(t, err)

	assert.Equal(t, &parsedBody{ID: 1, Name: "alice"}, got)
}

// TestMessageJSONParserKeyPath 验证按嵌套路径取字段解析。
func TestMessageJSONParserKeyPath(t *testing.T) {
	parser := NewMessageJSONParser[parsedBody](&MessageJSONParseConfig{
		ParseKeyPath: "data.user",
	})

	msg := AssistantMessage(`{"data": {"user": {"id": 2, "name": "bob"}}}`)

	got, err := parser.Parse(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, parsedBody{ID: 2, Name: "bob"}, got)
}

// TestMessageJSONParserBadInput 验证非法输入的错误路径。
func TestMessageJSONParserBadInput(t *testing.T) {
	parser := NewMessageJSONParser[parsedBody](nil)

	_, err := parser.Parse(context.Background(), nil)
	assert.ErrorContains(t, err, "message is nil")

	_, err = parser.Parse(context.Background(), AssistantMessage("not json"))
	assert.Error(t, err)

	parser = NewMessageJSONParser[parsedBody](&MessageJSONParseConfig{ParseKeyPath: "missing"})
	_, err = parser.Parse(context.Background(), AssistantMessage(`{"id": 1}`))
	assert.Error(t, err)
}
