package compose

import (
	"context"
	"fmt"
	"reflect"

	"runchain/internal/generic"
	"runchain/schema"
)

// Invoke 同步执行函数：单值输入 => 单值输出。
type Invoke[I, O, TOption any] func(ctx context.Context, input I, opts ...TOption) (output O, err error)

// Stream 流式输出函数：单值输入 => 流式输出。
type Stream[I, O, TOption any] func(ctx context.Context,
	input I, opts ...TOption) (output *schema.StreamReader[O], err error)

// Collect 聚合函数：流式输入 => 单值输出。
type Collect[I, O, TOption any] func(ctx context.Context,
	input *schema.StreamReader[I], opts ...TOption) (output O, err error)

// Transform 流转换函数：流式输入 => 流式输出。
type Transform[I, O, TOption any] func(ctx context.Context,
	input *schema.StreamReader[I], opts ...TOption) (output *schema.StreamReader[O], err error)

// InvokeWOOpt 无选项版本的 Invoke。
type InvokeWOOpt[I, O any] func(ctx context.Context, input I) (output O, err error)

// StreamWOOpt 无选项版本的 Stream。
type StreamWOOpt[I, O any] func(ctx context.Context,
	input I) (output *schema.StreamReader[O], err error)

// CollectWOOpt 无选项版本的 Collect。
type CollectWOOpt[I, O any] func(ctx context.Context,
	input *schema.StreamReader[I]) (output O, err error)

// TransformWOOpt 无选项版本的 Transform。
type TransformWOOpt[I, O any] func(ctx context.Context,
	input *schema.StreamReader[I]) (output *schema.StreamReader[O], err error)

// Lambda 把用户函数包装为可编排的步骤。
// 四种执行模式实现其一即可，其余由框架自动适配。
//
// 使用示例：
//
//	lambda := compose.InvokableLambda(func(ctx context.Context, input string) (string, error) {
//		return strings.ToUpper(input), nil
//	})
type Lambda struct {
	executor *composableRunnable
}

// lambdaOpts 创建 Lambda 时的配置。
type lambdaOpts struct {
	// componentImplType 步骤名称标识，为空时从函数名推断
	componentImplType string
}

// LambdaOpt 创建 Lambda 时的选项函数。
type LambdaOpt func(o *lambdaOpts)

// WithLambdaType 指定 Lambda 的名称标识，用于错误定位和日志。
func WithLambdaType(t string) LambdaOpt {
	return func(o *lambdaOpts) {
		o.componentImplType = t
	}
}

// unreachableOption 无选项 Lambda 的占位选项类型。
// 外部无法构造该类型的值，保证无选项函数不会收到选项。
type unreachableOption struct{}

// InvokableLambda 由同步函数创建 Lambda。
func InvokableLambda[I, O any](i InvokeWOOpt[I, O], opts ...LambdaOpt) *Lambda {
	f := func(ctx context.Context, input I, _ ...unreachableOption) (output O, err error) {
		return i(ctx, input)
	}

	return anyLambda(f, nil, nil, nil, inferLambdaName(i, opts)...)
}

// InvokableLambdaWithOption 由带选项的同步函数创建 Lambda。
func InvokableLambdaWithOption[I, O, TOption any](i Invoke[I, O, TOption], opts ...LambdaOpt) *Lambda {
	return anyLambda(i, nil, nil, nil, inferLambdaName(i, opts)...)
}

// StreamableLambda 由流式输出函数创建 Lambda。
func StreamableLambda[I, O any](s StreamWOOpt[I, O], opts ...LambdaOpt) *Lambda {
	f := func(ctx context.Context, input I, _ ...unreachableOption) (*schema.StreamReader[O], error) {
		return s(ctx, input)
	}

	return anyLambda(nil, f, nil, nil, inferLambdaName(s, opts)...)
}

// StreamableLambdaWithOption 由带选项的流式输出函数创建 Lambda。
func StreamableLambdaWithOption[I, O, TOption any](s Stream[I, O, TOption], opts ...LambdaOpt) *Lambda {
	return anyLambda(nil, s, nil, nil, inferLambdaName(s, opts)...)
}

// CollectableLambda 由聚合函数创建 Lambda。
func CollectableLambda[I, O any](c CollectWOOpt[I, O], opts ...LambdaOpt) *Lambda {
	f := func(ctx context.Context, input *schema.StreamReader[I], _ ...unreachableOption) (output O, err error) {
		return c(ctx, input)
	}

	return anyLambda(nil, nil, f, nil, inferLambdaName(c, opts)...)
}

// CollectableLambdaWithOption 由带选项的聚合函数创建 Lambda。
func CollectableLambdaWithOption[I, O, TOption any](c Collect[I, O, TOption], opts ...LambdaOpt) *Lambda {
	return anyLambda(nil, nil, c, nil, inferLambdaName(c, opts)...)
}

// TransformableLambda 由流转换函数创建 Lambda。
func TransformableLambda[I, O any](t TransformWOOpt[I, O], opts ...LambdaOpt) *Lambda {
	f := func(ctx context.Context, input *schema.StreamReader[I],
		_ ...unreachableOption) (*schema.StreamReader[O], error) {
		return t(ctx, input)
	}

	return anyLambda(nil, nil, nil, f, inferLambdaName(t, opts)...)
}

// TransformableLambdaWithOption 由带选项的流转换函数创建 Lambda。
func TransformableLambdaWithOption[I, O, TOption any](t Transform[I, O, TOption], opts ...LambdaOpt) *Lambda {
	return anyLambda(nil, nil, nil, t, inferLambdaName(t, opts)...)
}

// AnyLambda 由四种模式函数的任意非空组合创建 Lambda。
// 同时提供多种模式时按调用方式选用，不做适配转换。
func AnyLambda[I, O, TOption any](i Invoke[I, O, TOption], s Stream[I, O, TOption],
	c Collect[I, O, TOption], t Transform[I, O, TOption], opts ...LambdaOpt) (*Lambda, error) {
	if i == nil && s == nil && c == nil && t == nil {
		return nil, fmt.Errorf("needs to have at least one of four lambda types: invoke/stream/collect/transform, got none")
	}

	return anyLambda(i, s, c, t, opts...), nil
}

func anyLambda[I, O, TOption any](i Invoke[I, O, TOption], s Stream[I, O, TOption],
	c Collect[I, O, TOption], t Transform[I, O, TOption], opts ...LambdaOpt) *Lambda {
	opt := getLambdaOpt(opts...)

	executor := runnableLambda(i, s, c, t)
	executor.name = opt.componentImplType
	executor.component = ComponentOfLambda

	return &Lambda{executor: executor}
}

func getLambdaOpt(opts ...LambdaOpt) *lambdaOpts {
	opt := &lambdaOpts{}
	for _, optFn := range opts {
		optFn(opt)
	}
	return opt
}

// inferLambdaName 未显式指定名称时从用户函数的函数名推断。
// 推断结果排在用户选项之前，保证显式指定的名称优先生效。
func inferLambdaName(fn any, opts []LambdaOpt) []LambdaOpt {
	name := generic.ParseTypeName(reflect.ValueOf(fn))
	if name == "" {
		return opts
	}

	return append([]LambdaOpt{WithLambdaType(name)}, opts...)
}

// ToList 创建把单个值转换为单元素切片的 Lambda。
// 常用于衔接输出单值、输入切片的相邻步骤，
// 如聊天模型输出单条消息而下游需要消息列表。
func ToList[I any](opts ...LambdaOpt) *Lambda {
	i := func(ctx context.Context, input I, _ ...unreachableOption) ([]I, error) {
		return []I{input}, nil
	}

	t := func(ctx context.Context, input *schema.StreamReader[I],
		_ ...unreachableOption) (*schema.StreamReader[[]I], error) {
		return schema.StreamReaderWithConvert(input, func(v I) ([]I, error) {
			return []I{v}, nil
		}), nil
	}

	return anyLambda(i, nil, nil, t, opts...)
}
