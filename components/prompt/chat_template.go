package prompt

import (
	"context"

	"github.com/pkg/errors"

	"runchain/schema"
)

// ChatTemplate 聊天模板契约。
// 把模板参数渲染为可直接交给聊天模型的消息列表。
type ChatTemplate interface {
	Format(ctx context.Context, vs map[string]any, opts ...Option) ([]*schema.Message, error)
}

// DefaultChatTemplate 默认的聊天模板实现。
// 按顺序渲染一组消息模板并拼接结果。
type DefaultChatTemplate struct {
	templates  []schema.MessagesTemplate
	formatType schema.FormatType
}

var _ ChatTemplate = (*DefaultChatTemplate)(nil)

// FromMessages 基于消息模板列表创建聊天模板。
//
// 使用示例：
//
//	template := prompt.FromMessages(schema.FString,
//		schema.SystemMessage("You are acting as a {role}."),
//		schema.MessagesPlaceholder("history", true),
//		schema.UserMessage("{query}"),
//	)
//	msgs, err := template.Format(ctx, map[string]any{"role": "teacher", "query": "what is go?"})
func FromMessages(formatType schema.FormatType, templates ...schema.MessagesTemplate) *DefaultChatTemplate {
	return &DefaultChatTemplate{
		templates:  templates,
		formatType: formatType,
	}
}

// Format 渲染全部消息模板。
// 渲染失败时错误携带出错模板的位置。
func (t *DefaultChatTemplate) Format(ctx context.Context, vs map[string]any, opts ...Option) ([]*schema.Message, error) {
	o := getOptions(t.formatType, opts...)

	result := make([]*schema.Message, 0, len(t.templates))
	for i, tpl := range t.templates {
		msgs, err := tpl.Format(ctx, vs, o.FormatType)
		if err != nil {
			return nil, errors.Wrapf(err, "format template at index %d", i)
		}

		result = append(result, msgs...)
	}

	return result, nil
}
