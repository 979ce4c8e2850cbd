package compose

import (
	"context"
	"fmt"
	"reflect"

	"runchain/internal/generic"
	"runchain/schema"
)

// Runnable 可执行对象接口，定义四种数据流模式：
//
//   - Invoke：单值输入 => 单值输出
//   - Stream：单值输入 => 流式输出
//   - Collect：流式输入 => 单值输出
//   - Transform：流式输入 => 流式输出
//
// Sequence 和 Parallel 编译后得到 Runnable。步骤只需实现其中一种
// 模式，其余模式由框架自动适配：缺少流式能力时把单值包装为单块流，
// 缺少单值能力时把流合并为单值后再调用。
type Runnable[I, O any] interface {
	Invoke(ctx context.Context, input I, opts ...Option) (output O, err error)
	Stream(ctx context.Context, input I, opts ...Option) (output *schema.StreamReader[O], err error)
	Collect(ctx context.Context, input *schema.StreamReader[I], opts ...Option) (output O, err error)
	Transform(ctx context.Context, input *schema.StreamReader[I], opts ...Option) (output *schema.StreamReader[O], err error)
}

// invoke 类型擦除后的同步执行函数。
type invoke func(ctx context.Context, input any, opts ...any) (output any, err error)

// transform 类型擦除后的流式转换函数。
type transform func(ctx context.Context, input streamReader, opts ...any) (output streamReader, err error)

// composableRunnable 类型擦除后的可执行步骤。
// Sequence 和 Parallel 内部以它为统一单元组装异构类型的步骤，
// 类型信息保留在字段中供编译期校验。
type composableRunnable struct {
	i invoke
	t transform

	inputType  reflect.Type
	outputType reflect.Type
	optionType reflect.Type

	// name 步骤名称，用于错误定位和回调标识
	name string
	// component 组件类别，如 Lambda、ChatModel、Passthrough
	component string

	isPassthrough bool
}

// runnableLambda 由四种模式中的任意非空子集创建类型擦除步骤。
func runnableLambda[I, O, TOption any](i Invoke[I, O, TOption], s Stream[I, O, TOption],
	c Collect[I, O, TOption], t Transform[I, O, TOption]) *composableRunnable {
	return newRunnablePacker(i, s, c, t).toComposableRunnable()
}

// runnablePacker 四种数据流模式的完整实现集合。
// 构造时将缺失的模式用已有模式适配补齐。
type runnablePacker[I, O, TOption any] struct {
	i Invoke[I, O, TOption]
	s Stream[I, O, TOption]
	c Collect[I, O, TOption]
	t Transform[I, O, TOption]
}

// wrapRunnableCtx 在每种模式执行前用 ctxWrapper 预处理 ctx。
func (rp *runnablePacker[I, O, TOption]) wrapRunnableCtx(ctxWrapper func(ctx context.Context, opts ...TOption) context.Context) {
	i, s, c, t := rp.i, rp.s, rp.c, rp.t

	rp.i = func(ctx context.Context, input I, opts ...TOption) (O, error) {
		return i(ctxWrapper(ctx, opts...), input, opts...)
	}
	rp.s = func(ctx context.Context, input I, opts ...TOption) (*schema.StreamReader[O], error) {
		return s(ctxWrapper(ctx, opts...), input, opts...)
	}
	rp.c = func(ctx context.Context, input *schema.StreamReader[I], opts ...TOption) (O, error) {
		return c(ctxWrapper(ctx, opts...), input, opts...)
	}
	rp.t = func(ctx context.Context, input *schema.StreamReader[I], opts ...TOption) (*schema.StreamReader[O], error) {
		return t(ctxWrapper(ctx, opts...), input, opts...)
	}
}

func (rp *runnablePacker[I, O, TOption]) toComposableRunnable() *composableRunnable {
	inputType := generic.TypeOf[I]()
	outputType := generic.TypeOf[O]()
	optionType := generic.TypeOf[TOption]()

	cr := &composableRunnable{
		inputType:  inputType,
		outputType: outputType,
		optionType: optionType,
	}

	cr.i = func(ctx context.Context, input any, opts ...any) (any, error) {
		in, ok := input.(I)
		if !ok {
			// any 类型携带的 nil 会丢失原始类型信息而断言失败，
			// 目标类型是接口时补上显式的 nil 值
			if input == nil && inputType.Kind() == reflect.Interface {
				var i I
				in = i
			} else {
				return nil, newUnexpectedInputTypeErr(inputType, reflect.TypeOf(input))
			}
		}

		return rp.Invoke(ctx, in, convertOption[TOption](opts...)...)
	}

	cr.t = func(ctx context.Context, input streamReader, opts ...any) (streamReader, error) {
		in, ok := unpackStreamReader[I](input)
		if !ok {
			return nil, newUnexpectedInputTypeErr(reflect.PointerTo(inputType), input.getChunkType())
		}

		out, err := rp.Transform(ctx, in, convertOption[TOption](opts...)...)
		if err != nil {
			return nil, err
		}

		return packStreamReader(out), nil
	}

	return cr
}

// Invoke 单值输入 => 单值输出。
func (rp *runnablePacker[I, O, TOption]) Invoke(ctx context.Context,
	input I, opts ...TOption) (O, error) {
	return rp.i(ctx, input, opts...)
}

// Stream 单值输入 => 流式输出。
func (rp *runnablePacker[I, O, TOption]) Stream(ctx context.Context,
	input I, opts ...TOption) (*schema.StreamReader[O], error) {
	return rp.s(ctx, input, opts...)
}

// Collect 流式输入 => 单值输出。
func (rp *runnablePacker[I, O, TOption]) Collect(ctx context.Context,
	input *schema.StreamReader[I], opts ...TOption) (O, error) {
	return rp.c(ctx, input, opts...)
}

// Transform 流式输入 => 流式输出。
func (rp *runnablePacker[I, O, TOption]) Transform(ctx context.Context,
	input *schema.StreamReader[I], opts ...TOption) (*schema.StreamReader[O], error) {
	return rp.t(ctx, input, opts...)
}

// defaultImplConcatStreamReader 把流合并为单值，失败时附带说明。
func defaultImplConcatStreamReader[T any](sr *schema.StreamReader[T]) (T, error) {
	c, err := concatStreamReader(sr)
	if err != nil {
		var t T
		return t, fmt.Errorf("concat stream reader fail: %w", err)
	}

	return c, nil
}

// invokeByStream 用流式接口适配同步执行。
func invokeByStream[I, O, TOption any](s Stream[I, O, TOption]) Invoke[I, O, TOption] {
	return func(ctx context.Context, input I, opts ...TOption) (output O, err error) {
		sr, err := s(ctx, input, opts...)
		if err != nil {
			return output, err
		}

		return defaultImplConcatStreamReader(sr)
	}
}

// invokeByCollect 用聚合接口适配同步执行。
func invokeByCollect[I, O, TOption any](c Collect[I, O, TOption]) Invoke[I, O, TOption] {
	return func(ctx context.Context, input I, opts ...TOption) (output O, err error) {
		return c(ctx, schema.StreamReaderFromArray([]I{input}), opts...)
	}
}

// invokeByTransform 用转换接口适配同步执行。
func invokeByTransform[I, O, TOption any](t Transform[I, O, TOption]) Invoke[I, O, TOption] {
	return func(ctx context.Context, input I, opts ...TOption) (output O, err error) {
		srOutput, err := t(ctx, schema.StreamReaderFromArray([]I{input}), opts...)
		if err != nil {
			return output, err
		}

		return defaultImplConcatStreamReader(srOutput)
	}
}

// streamByTransform 用转换接口适配流式执行。
func streamByTransform[I, O, TOption any](t Transform[I, O, TOption]) Stream[I, O, TOption] {
	return func(ctx context.Context, input I, opts ...TOption) (*schema.StreamReader[O], error) {
		return t(ctx, schema.StreamReaderFromArray([]I{input}), opts...)
	}
}

// streamByInvoke 用同步接口适配流式执行，输出为单块流。
func streamByInvoke[I, O, TOption any](i Invoke[I, O, TOption]) Stream[I, O, TOption] {
	return func(ctx context.Context, input I, opts ...TOption) (*schema.StreamReader[O], error) {
		out, err := i(ctx, input, opts...)
		if err != nil {
			return nil, err
		}

		return schema.StreamReaderFromArray([]O{out}), nil
	}
}

// streamByCollect 用聚合接口适配流式执行。
func streamByCollect[I, O, TOption any](c Collect[I, O, TOption]) Stream[I, O, TOption] {
	return func(ctx context.Context, input I, opts ...TOption) (*schema.StreamReader[O], error) {
		out, err := c(ctx, schema.StreamReaderFromArray([]I{input}), opts...)
		if err != nil {
			return nil, err
		}

		return schema.StreamReaderFromArray([]O{out}), nil
	}
}

// collectByTransform 用转换接口适配聚合执行。
func collectByTransform[I, O, TOption any](t Transform[I, O, TOption]) Collect[I, O, TOption] {
	return func(ctx context.Context, input *schema.StreamReader[I], opts ...TOption) (output O, err error) {
		srOutput, err := t(ctx, input, opts...)
		if err != nil {
			return output, err
		}

		return defaultImplConcatStreamReader(srOutput)
	}
}

// collectByInvoke 用同步接口适配聚合执行，入口先吸收整条输入流。
func collectByInvoke[I, O, TOption any](i Invoke[I, O, TOption]) Collect[I, O, TOption] {
	return func(ctx context.Context, input *schema.StreamReader[I], opts ...TOption) (output O, err error) {
		in, err := defaultImplConcatStreamReader(input)
		if err != nil {
			return output, err
		}

		return i(ctx, in, opts...)
	}
}

// collectByStream 用流式接口适配聚合执行。
func collectByStream[I, O, TOption any](s Stream[I, O, TOption]) Collect[I, O, TOption] {
	return func(ctx context.Context, input *schema.StreamReader[I], opts ...TOption) (output O, err error) {
		in, err := defaultImplConcatStreamReader(input)
		if err != nil {
			return output, err
		}

		srOutput, err := s(ctx, in, opts...)
		if err != nil {
			return output, err
		}

		return defaultImplConcatStreamReader(srOutput)
	}
}

// transformByStream 用流式接口适配转换执行。
func transformByStream[I, O, TOption any](s Stream[I, O, TOption]) Transform[I, O, TOption] {
	return func(ctx context.Context, input *schema.StreamReader[I],
		opts ...TOption) (*schema.StreamReader[O], error) {
		in, err := defaultImplConcatStreamReader(input)
		if err != nil {
			return nil, err
		}

		return s(ctx, in, opts...)
	}
}

// transformByCollect 用聚合接口适配转换执行。
func transformByCollect[I, O, TOption any](c Collect[I, O, TOption]) Transform[I, O, TOption] {
	return func(ctx context.Context, input *schema.StreamReader[I],
		opts ...TOption) (*schema.StreamReader[O], error) {
		out, err := c(ctx, input, opts...)
		if err != nil {
			return nil, err
		}

		return schema.StreamReaderFromArray([]O{out}), nil
	}
}

// transformByInvoke 用同步接口适配转换执行。
// 入口吸收整条输入流合并为单值，输出为单块流。
func transformByInvoke[I, O, TOption any](i Invoke[I, O, TOption]) Transform[I, O, TOption] {
	return func(ctx context.Context, input *schema.StreamReader[I],
		opts ...TOption) (*schema.StreamReader[O], error) {
		in, err := defaultImplConcatStreamReader(input)
		if err != nil {
			return nil, err
		}

		out, err := i(ctx, in, opts...)
		if err != nil {
			return nil, err
		}

		return schema.StreamReaderFromArray([]O{out}), nil
	}
}

// newRunnablePacker 由任意非空的模式子集构造完整的四模式实现。
// 补齐顺序优先选择语义损耗最小的适配路径。
func newRunnablePacker[I, O, TOption any](i Invoke[I, O, TOption], s Stream[I, O, TOption],
	c Collect[I, O, TOption], t Transform[I, O, TOption]) *runnablePacker[I, O, TOption] {

	r := &runnablePacker[I, O, TOption]{}

	if i != nil {
		r.i = i
	} else if s != nil {
		r.i = invokeByStream(s)
	} else if c != nil {
		r.i = invokeByCollect(c)
	} else {
		r.i = invokeByTransform(t)
	}

	if s != nil {
		r.s = s
	} else if t != nil {
		r.s = streamByTransform(t)
	} else if i != nil {
		r.s = streamByInvoke(i)
	} else {
		r.s = streamByCollect(c)
	}

	if c != nil {
		r.c = c
	} else if t != nil {
		r.c = collectByTransform(t)
	} else if i != nil {
		r.c = collectByInvoke(i)
	} else {
		r.c = collectByStream(s)
	}

	if t != nil {
		r.t = t
	} else if s != nil {
		r.t = transformByStream(s)
	} else if c != nil {
		r.t = transformByCollect(c)
	} else {
		r.t = transformByInvoke(i)
	}

	return r
}

// toGenericRunnable 把类型擦除的可执行对象还原为带类型的 Runnable。
// 调用选项中的回调处理器经 ctxWrapper 挂载，组件选项展开后下发给各步骤。
func toGenericRunnable[I, O any](cr *composableRunnable,
	ctxWrapper func(ctx context.Context, opts ...Option) context.Context) *runnablePacker[I, O, Option] {
	i := func(ctx context.Context, input I, opts ...Option) (output O, err error) {
		out, err := cr.i(ctx, input, flattenOptions(opts)...)
		if err != nil {
			return output, err
		}

		to, ok := out.(O)
		if !ok {
			if out == nil && generic.TypeOf[O]().Kind() == reflect.Interface {
				var o O
				to = o
			} else {
				return output, newUnexpectedInputTypeErr(generic.TypeOf[O](), reflect.TypeOf(out))
			}
		}

		return to, nil
	}

	t := func(ctx context.Context, input *schema.StreamReader[I],
		opts ...Option) (*schema.StreamReader[O], error) {
		out, err := cr.t(ctx, packStreamReader(input), flattenOptions(opts)...)
		if err != nil {
			return nil, err
		}

		output, ok := unpackStreamReader[O](out)
		if !ok {
			return nil, newUnexpectedInputTypeErr(generic.TypeOf[O](), out.getChunkType())
		}

		return output, nil
	}

	r := newRunnablePacker(i, nil, nil, t)
	r.wrapRunnableCtx(ctxWrapper)

	return r
}

// composablePassthrough 创建透传步骤，输入原样送出。
func composablePassthrough() *composableRunnable {
	r := &composableRunnable{
		isPassthrough: true,
		name:          "Passthrough",
		component:     ComponentOfPassthrough,
	}

	r.i = func(ctx context.Context, input any, opts ...any) (any, error) {
		return input, nil
	}

	r.t = func(ctx context.Context, input streamReader, opts ...any) (streamReader, error) {
		return input, nil
	}

	return r
}
