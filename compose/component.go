package compose

import (
	"context"
	"reflect"

	"runchain/components/model"
	"runchain/components/prompt"
	"runchain/internal/generic"
	"runchain/schema"
)

// 组件类别标识，用于回调通知和错误信息。
const (
	ComponentOfLambda       = "Lambda"
	ComponentOfPassthrough  = "Passthrough"
	ComponentOfChatTemplate = "ChatTemplate"
	ComponentOfChatModel    = "ChatModel"
	ComponentOfParser       = "Parser"
	ComponentOfSequence     = "Sequence"
	ComponentOfParallel     = "Parallel"
)

// toChatTemplateRunnable 把聊天模板提升为可编排步骤。
// 输入为模板参数，输出为渲染后的消息列表。
func toChatTemplateRunnable(ct prompt.ChatTemplate) *composableRunnable {
	i := func(ctx context.Context, input map[string]any, opts ...prompt.Option) ([]*schema.Message, error) {
		return ct.Format(ctx, input, opts...)
	}

	r := runnableLambda[map[string]any, []*schema.Message, prompt.Option](i, nil, nil, nil)
	r.name = componentName(ct)
	r.component = ComponentOfChatTemplate

	return r
}

// toChatModelRunnable 把聊天模型提升为可编排步骤。
// Invoke 走 Generate，Stream 走模型自身的流式生成。
func toChatModelRunnable(cm model.BaseChatModel) *composableRunnable {
	i := func(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
		return cm.Generate(ctx, input, opts...)
	}

	s := func(ctx context.Context, input []*schema.Message,
		opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
		return cm.Stream(ctx, input, opts...)
	}

	r := runnableLambda[[]*schema.Message, *schema.Message, model.Option](i, s, nil, nil)
	r.name = componentName(cm)
	r.component = ComponentOfChatModel

	return r
}

// toParserRunnable 把消息解析器提升为可编排步骤。
// 输入为单条消息，输出为解析出的结构化值。
func toParserRunnable[T any](p schema.MessageParser[T]) *composableRunnable {
	i := func(ctx context.Context, input *schema.Message, _ ...unreachableOption) (T, error) {
		return p.Parse(ctx, input)
	}

	r := runnableLambda[*schema.Message, T, unreachableOption](i, nil, nil, nil)
	r.name = componentName(p)
	r.component = ComponentOfParser

	return r
}

// componentName 从组件实例推断步骤名称。
func componentName(instance any) string {
	if instance == nil {
		return ""
	}

	return generic.ParseTypeName(reflect.ValueOf(instance))
}
