package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// MessageParser 消息解析器接口，把一条完整消息解析为指定类型。
// 通常作为管道的终端步骤使用：上游的流式输出先被合并为一条消息，
// 再由解析器一次性解析。
type MessageParser[T any] interface {
	Parse(ctx context.Context, m *Message) (T, error)
}

// MessageJSONParseConfig JSON 消息解析配置。
type MessageJSONParseConfig struct {
	// ParseKeyPath 取内容中的嵌套字段解析，如 "data.items"。
	// 为空时解析整个内容。
	ParseKeyPath string `json:"parse_key_path,omitempty"`
}

// NewMessageJSONParser 创建 JSON 消息解析器。
//
// 使用示例：
//
//	parser := schema.NewMessageJSONParser[MyStruct](&schema.MessageJSONParseConfig{
//		ParseKeyPath: "data",
//	})
//	parsed, err := parser.Parse(ctx, msg)
func NewMessageJSONParser[T any](config *MessageJSONParseConfig) MessageParser[T] {
	if config == nil {
		config = &MessageJSONParseConfig{}
	}

	return &MessageJSONParser[T]{
		ParseKeyPath: config.ParseKeyPath,
	}
}

// MessageJSONParser JSON 消息解析器，将消息内容反序列化为 T。
type MessageJSONParser[T any] struct {
	ParseKeyPath string
}

// Parse 解析消息内容。
func (p *MessageJSONParser[T]) Parse(_ context.Context, m *Message) (parsed T, err error) {
	if m == nil {
		return parsed, fmt.Errorf("parse message fail: message is nil")
	}

	data := m.Content

	if p.ParseKeyPath != "" {
		path := strings.Split(p.ParseKeyPath, ".")

		keys := make([]any, 0, len(path))
		for _, k := range path {
			keys = append(keys, k)
		}

		node, err := sonic.GetFromString(data, keys...)
		if err != nil {
			return parsed, fmt.Errorf("get key path %q fail: %w", p.ParseKeyPath, err)
		}

		data, err = node.Raw()
		if err != nil {
			return parsed, fmt.Errorf("get key path %q raw value fail: %w", p.ParseKeyPath, err)
		}
	}

	if err = sonic.UnmarshalString(data, &parsed); err != nil {
		return parsed, fmt.Errorf("unmarshal message content fail: %w", err)
	}

	return parsed, nil
}
