package compose

import (
	"runchain/callbacks"
	"runchain/components/model"
	"runchain/components/prompt"
)

// Option 编排执行选项。
// 同一组选项作用于本次执行的所有步骤，各步骤只取用自己能识别的部分。
type Option struct {
	options  []any
	handlers []callbacks.Handler
}

// WithCallbacks 为本次执行挂载回调处理器。
// 处理器在每个步骤（含并行分支）执行前后和出错时被通知。
func WithCallbacks(handlers ...callbacks.Handler) Option {
	return Option{handlers: handlers}
}

// WithChatModelOption 指定传递给聊天模型步骤的选项。
func WithChatModelOption(opts ...model.Option) Option {
	return Option{options: toAnyList(opts)}
}

// WithPromptOption 指定传递给聊天模板步骤的选项。
func WithPromptOption(opts ...prompt.Option) Option {
	return Option{options: toAnyList(opts)}
}

// WithLambdaOption 指定传递给 Lambda 步骤的选项。
// 选项类型需与 Lambda 声明的选项类型一致，否则会被忽略。
func WithLambdaOption(opts ...any) Option {
	return Option{options: opts}
}

// flattenOptions 把调用选项展开为步骤可消费的选项列表。
func flattenOptions(opts []Option) []any {
	var ret []any
	for _, opt := range opts {
		ret = append(ret, opt.options...)
	}
	return ret
}

// handlersOf 收集调用选项中挂载的全部回调处理器。
func handlersOf(opts []Option) []callbacks.Handler {
	var ret []callbacks.Handler
	for _, opt := range opts {
		ret = append(ret, opt.handlers...)
	}
	return ret
}

// convertOption 从混合选项列表中筛出目标类型的选项。
// 属于其他组件的选项被跳过，不报错。
func convertOption[TOption any](opts ...any) []TOption {
	if len(opts) == 0 {
		return nil
	}

	ret := make([]TOption, 0, len(opts))
	for _, o := range opts {
		if to, ok := o.(TOption); ok {
			ret = append(ret, to)
		}
	}

	return ret
}

func toAnyList[T any](in []T) []any {
	ret := make([]any, len(in))
	for i := range in {
		ret[i] = in[i]
	}
	return ret
}
