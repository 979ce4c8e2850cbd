package schema

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"text/template"

	"github.com/nikolalohinski/gonja"
	"github.com/nikolalohinski/gonja/config"
	"github.com/nikolalohinski/gonja/nodes"
	"github.com/nikolalohinski/gonja/parser"
	"github.com/slongfield/pyfmt"

	"runchain/internal"
)

func init() {
	internal.RegisterStreamChunkConcatFunc(ConcatMessages)
}

// FormatType 消息模板的格式化类型。
type FormatType uint8

const (
	// FString Python 风格的字符串格式化 (PEP-3101)。
	// 由 pyfmt 库实现。
	FString FormatType = 0
	// GoTemplate Go 标准库的 text/template 格式化。
	GoTemplate FormatType = 1
	// Jinja2 Jinja2 模板格式化。
	// 由 gonja 库实现。
	Jinja2 FormatType = 2
)

// RoleType 消息角色类型。
type RoleType string

const (
	// Assistant 助手角色，表示消息由聊天模型返回。
	Assistant RoleType = "assistant"
	// User 用户角色，表示消息来自用户输入。
	User RoleType = "user"
	// System 系统角色，表示消息为系统消息。
	System RoleType = "system"
	// Tool 工具角色，表示消息为工具调用输出。
	Tool RoleType = "tool"
)

// TokenUsage 一次模型调用的 token 用量。
type TokenUsage struct {
	// PromptTokens 输入消耗的 token 数。
	PromptTokens int `json:"prompt_tokens"`
	// CompletionTokens 输出消耗的 token 数。
	CompletionTokens int `json:"completion_tokens"`
	// TotalTokens 总消耗 token 数。
	TotalTokens int `json:"total_tokens"`
}

// ResponseMeta 模型响应的元信息。
type ResponseMeta struct {
	// FinishReason 生成结束的原因，如 stop、length、tool_calls。
	FinishReason string `json:"finish_reason,omitempty"`
	// Usage token 用量，流式模式下通常只在最后一个块携带。
	Usage *TokenUsage `json:"usage,omitempty"`
}

// Message 聊天消息。
// 既是完整消息，也是流式模式下的增量块，可由 ConcatMessages 合并。
type Message struct {
	// Role 消息角色。
	Role RoleType `json:"role"`
	// Content 消息文本内容。
	Content string `json:"content"`

	// Name 消息作者名称，部分模型用于区分同角色的多个参与者。
	Name string `json:"name,omitempty"`
	// ToolCallID 工具消息对应的调用 ID。
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ResponseMeta 模型响应元信息，仅 Assistant 消息携带。
	ResponseMeta *ResponseMeta `json:"response_meta,omitempty"`

	// Extra 额外信息存储。
	Extra map[string]any `json:"extra,omitempty"`
}

var _ MessagesTemplate = &Message{}
var _ MessagesTemplate = MessagesPlaceholder("", false)

// MessagesTemplate 消息模板接口，将模板渲染为消息列表。
//
// 使用示例：
//
//	chatTemplate := prompt.FromMessages(schema.FString,
//		schema.SystemMessage("you are a {role}"),
//		schema.MessagesPlaceholder("history", false), // 使用 params 中的 "history" 值
//	)
//	msgs, err := chatTemplate.Format(ctx, params)
type MessagesTemplate interface {
	Format(ctx context.Context, vs map[string]any, formatType FormatType) ([]*Message, error)
}

// messagesPlaceholder 消息占位符实现。
type messagesPlaceholder struct {
	key      string
	optional bool
}

// MessagesPlaceholder 创建消息占位符。
// 渲染时直接取参数中 key 对应的消息列表，常用于注入会话历史。
// optional 为 true 时缺失的 key 渲染为空列表而非错误。
func MessagesPlaceholder(key string, optional bool) MessagesTemplate {
	return &messagesPlaceholder{
		key:      key,
		optional: optional,
	}
}

// Format 返回参数中 key 对应的消息列表。
func (p *messagesPlaceholder) Format(_ context.Context, vs map[string]any, _ FormatType) ([]*Message, error) {
	v, ok := vs[p.key]
	if !ok {
		if p.optional {
			return []*Message{}, nil
		}

		return nil, fmt.Errorf("message placeholder format: %s not found", p.key)
	}

	msgs, ok := v.([]*Message)
	if !ok {
		return nil, fmt.Errorf("only messages can be used to format message placeholder, key: %v, actual type: %v",
			p.key, reflect.TypeOf(v))
	}

	return msgs, nil
}

// formatContent 按格式化类型渲染内容字符串。
func formatContent(content string, vs map[string]any, formatType FormatType) (string, error) {
	switch formatType {
	case FString:
		return pyfmt.Fmt(content, vs)
	case GoTemplate:
		parsedTmpl, err := template.New("template").
			Option("missingkey=error").
			Parse(content)
		if err != nil {
			return "", err
		}
		sb := new(strings.Builder)
		err = parsedTmpl.Execute(sb, vs)
		if err != nil {
			return "", err
		}
		return sb.String(), nil
	case Jinja2:
		env, err := getJinjaEnv()
		if err != nil {
			return "", err
		}
		tpl, err := env.FromString(content)
		if err != nil {
			return "", err
		}
		out, err := tpl.Execute(vs)
		if err != nil {
			return "", err
		}
		return out, nil
	default:
		return "", fmt.Errorf("unknown format type: %v", formatType)
	}
}

// Format 按指定格式类型渲染消息内容并返回新消息。
// 原消息不被修改。
//
// 使用示例：
//
//	msg := schema.UserMessage("hello, {name}")
//	msgs, err := msg.Format(ctx, map[string]any{"name": "runchain"}, schema.FString)
//	// msgs[0].Content == "hello, runchain"
func (m *Message) Format(_ context.Context, vs map[string]any, formatType FormatType) ([]*Message, error) {
	c, err := formatContent(m.Content, vs, formatType)
	if err != nil {
		return nil, err
	}

	copied := *m
	copied.Content = c

	return []*Message{&copied}, nil
}

// String 返回 "role: content" 形式的可读表示。
func (m *Message) String() string {
	return fmt.Sprintf("%s: %s", m.Role, m.Content)
}

// SystemMessage 创建系统消息。
func SystemMessage(content string) *Message {
	return &Message{
		Role:    System,
		Content: content,
	}
}

// UserMessage 创建用户消息。
func UserMessage(content string) *Message {
	return &Message{
		Role:    User,
		Content: content,
	}
}

// AssistantMessage 创建助手消息。
func AssistantMessage(content string) *Message {
	return &Message{
		Role:    Assistant,
		Content: content,
	}
}

// ToolMessage 创建工具消息。
func ToolMessage(content string, toolCallID string) *Message {
	return &Message{
		Role:       Tool,
		Content:    content,
		ToolCallID: toolCallID,
	}
}

// ConcatMessages 将流式消息块合并为一条完整消息。
// 各块的角色、名称和工具调用 ID 必须一致；内容按顺序拼接；
// 响应元信息取最后一个有效值，token 用量取最大值。
//
// 这是 *Message 类型注册到流块合并注册表中的合并函数，
// Invoke 模式消费流式模型输出时由框架自动调用。
func ConcatMessages(msgs []*Message) (*Message, error) {
	var (
		contents   []string
		contentLen int
		ret        = Message{}
	)

	for idx, msg := range msgs {
		if msg == nil {
			return nil, fmt.Errorf("unexpected nil chunk in message stream, index: %d", idx)
		}

		if msg.Role != "" {
			if ret.Role == "" {
				ret.Role = msg.Role
			} else if ret.Role != msg.Role {
				return nil, fmt.Errorf("cannot concat messages with "+
					"different roles: '%s' '%s'", ret.Role, msg.Role)
			}
		}

		if msg.Name != "" {
			if ret.Name == "" {
				ret.Name = msg.Name
			} else if ret.Name != msg.Name {
				return nil, fmt.Errorf("cannot concat messages with"+
					" different names: '%s' '%s'", ret.Name, msg.Name)
			}
		}

		if msg.ToolCallID != "" {
			if ret.ToolCallID == "" {
				ret.ToolCallID = msg.ToolCallID
			} else if ret.ToolCallID != msg.ToolCallID {
				return nil, fmt.Errorf("cannot concat messages with"+
					" different toolCallIDs: '%s' '%s'", ret.ToolCallID, msg.ToolCallID)
			}
		}

		if msg.Content != "" {
			contents = append(contents, msg.Content)
			contentLen += len(msg.Content)
		}

		if len(msg.Extra) > 0 {
			if ret.Extra == nil {
				ret.Extra = make(map[string]any, len(msg.Extra))
			}
			for k, v := range msg.Extra {
				ret.Extra[k] = v
			}
		}

		if msg.ResponseMeta != nil {
			if ret.ResponseMeta == nil {
				ret.ResponseMeta = &ResponseMeta{}
			}

			// FinishReason 保留最后一个有效值
			if msg.ResponseMeta.FinishReason != "" {
				ret.ResponseMeta.FinishReason = msg.ResponseMeta.FinishReason
			}

			if msg.ResponseMeta.Usage != nil {
				if ret.ResponseMeta.Usage == nil {
					ret.ResponseMeta.Usage = &TokenUsage{}
				}

				if msg.ResponseMeta.Usage.PromptTokens > ret.ResponseMeta.Usage.PromptTokens {
					ret.ResponseMeta.Usage.PromptTokens = msg.ResponseMeta.Usage.PromptTokens
				}
				if msg.ResponseMeta.Usage.CompletionTokens > ret.ResponseMeta.Usage.CompletionTokens {
					ret.ResponseMeta.Usage.CompletionTokens = msg.ResponseMeta.Usage.CompletionTokens
				}
				if msg.ResponseMeta.Usage.TotalTokens > ret.ResponseMeta.Usage.TotalTokens {
					ret.ResponseMeta.Usage.TotalTokens = msg.ResponseMeta.Usage.TotalTokens
				}
			}
		}
	}

	if len(contents) > 0 {
		var sb strings.Builder
		sb.Grow(contentLen)
		for _, c := range contents {
			sb.WriteString(c)
		}

		ret.Content = sb.String()
	}

	return &ret, nil
}

// ConcatMessageStream 读完整条消息流并合并为一条完整消息。
// 这是消费流式模型输出的终端操作：读取过程中遇到错误立即返回，
// 返回前流一定被关闭。
func ConcatMessageStream(s *StreamReader[*Message]) (*Message, error) {
	defer s.Close()

	var msgs []*Message

	for {
		msg, err := s.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}

			return nil, err
		}

		msgs = append(msgs, msg)
	}

	return ConcatMessages(msgs)
}

const (
	jinjaInclude = "include"
	jinjaExtends = "extends"
	jinjaImport  = "import"
	jinjaFrom    = "from"
)

var (
	jinjaEnvOnce sync.Once
	jinjaEnv     *gonja.Environment
	envInitErr   error
)

// getJinjaEnv 获取受限的 jinja 渲染环境。
// 禁用 include、extends、import、from，模板不允许读取外部文件。
func getJinjaEnv() (*gonja.Environment, error) {
	jinjaEnvOnce.Do(func() {
		jinjaEnv = gonja.NewEnvironment(config.DefaultConfig, gonja.DefaultLoader)

		disable := func(keyword string) error {
			if !jinjaEnv.Statements.Exists(keyword) {
				return nil
			}
			return jinjaEnv.Statements.Replace(keyword,
				func(parser *parser.Parser, args *parser.Parser) (nodes.Statement, error) {
					return nil, fmt.Errorf("keyword[%s] has been disabled", keyword)
				})
		}

		for _, keyword := range []string{jinjaInclude, jinjaExtends, jinjaImport, jinjaFrom} {
			if err := disable(keyword); err != nil {
				envInitErr = fmt.Errorf("init jinja env fail: %w", err)
				return
			}
		}
	})

	return jinjaEnv, envInitErr
}
