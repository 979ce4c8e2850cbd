package compose

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"

	"runchain/callbacks"
	"runchain/components/model"
	"runchain/components/prompt"
	"runchain/internal/generic"
	"runchain/internal/safe"
	"runchain/schema"
)

// Sequence 顺序链构建器，把一组步骤按追加顺序串联执行。
// 上一步的输出作为下一步的输入，任一步失败立即终止并返回
// 携带步骤定位信息的 StepError。
//
// 构建过程中的错误会被暂存，链式调用不中断，Compile 时统一返回。
//
// 使用示例：
//
//	seq := compose.NewSequence[map[string]any, *schema.Message]().
//		AppendChatTemplate(template).
//		AppendChatModel(chatModel)
//
//	r, err := seq.Compile()
//	if err != nil {
//		return err
//	}
//
//	out, err := r.Invoke(ctx, map[string]any{"query": "hello"})
type Sequence[I, O any] struct {
	err error

	stepList []*composableRunnable
}

// NewSequence 创建空的顺序链构建器。
// I 为链的输入类型，O 为链的输出类型。
func NewSequence[I, O any]() *Sequence[I, O] {
	return &Sequence[I, O]{}
}

// AnySequence 类型擦除后的顺序链，供嵌套拼接使用。
type AnySequence interface {
	steps() []*composableRunnable
	buildError() error
}

func (s *Sequence[I, O]) steps() []*composableRunnable {
	return s.stepList
}

func (s *Sequence[I, O]) buildError() error {
	return s.err
}

func (s *Sequence[I, O]) reportErr(err error) *Sequence[I, O] {
	if s.err == nil {
		s.err = err
	}
	return s
}

func (s *Sequence[I, O]) append(r *composableRunnable) *Sequence[I, O] {
	if s.err != nil {
		return s
	}

	s.stepList = append(s.stepList, r)
	return s
}

// Append 追加一个 Lambda 步骤。
func (s *Sequence[I, O]) Append(lambda *Lambda) *Sequence[I, O] {
	if s.err != nil {
		return s
	}

	if lambda == nil || lambda.executor == nil {
		return s.reportErr(fmt.Errorf("append lambda fail: lambda is nil"))
	}

	return s.append(lambda.executor)
}

// AppendChatTemplate 追加一个聊天模板步骤。
// 步骤输入为模板参数 map，输出为渲染后的消息列表。
func (s *Sequence[I, O]) AppendChatTemplate(ct prompt.ChatTemplate) *Sequence[I, O] {
	if s.err != nil {
		return s
	}

	if ct == nil {
		return s.reportErr(fmt.Errorf("append chat template fail: template is nil"))
	}

	return s.append(toChatTemplateRunnable(ct))
}

// AppendChatModel 追加一个聊天模型步骤。
// 步骤输入为消息列表，输出为单条回复消息。
func (s *Sequence[I, O]) AppendChatModel(cm model.BaseChatModel) *Sequence[I, O] {
	if s.err != nil {
		return s
	}

	if cm == nil {
		return s.reportErr(fmt.Errorf("append chat model fail: model is nil"))
	}

	return s.append(toChatModelRunnable(cm))
}

// AppendParser 追加一个消息解析步骤。
// 步骤输入为单条消息，输出为解析出的结构化值。
func AppendParser[I, O, T any](s *Sequence[I, O], p schema.MessageParser[T]) *Sequence[I, O] {
	if s.err != nil {
		return s
	}

	if p == nil {
		return s.reportErr(fmt.Errorf("append parser fail: parser is nil"))
	}

	return s.append(toParserRunnable(p))
}

// AppendPassthrough 追加一个透传步骤，输入原样送出。
func (s *Sequence[I, O]) AppendPassthrough() *Sequence[I, O] {
	return s.append(composablePassthrough())
}

// AppendParallel 追加一个并行步骤。
// 并行步骤的各分支共享同一份输入，输出为按分支键组织的 map。
func (s *Sequence[I, O]) AppendParallel(p *Parallel) *Sequence[I, O] {
	if s.err != nil {
		return s
	}

	cr, err := buildParallel(p)
	if err != nil {
		return s.reportErr(err)
	}

	return s.append(cr)
}

// AppendSequence 拼接另一条顺序链。
// 子链的步骤被展开后逐个并入当前链，不产生嵌套层级，
// 因此错误定位的下标始终基于展开后的扁平顺序。
func (s *Sequence[I, O]) AppendSequence(sub AnySequence) *Sequence[I, O] {
	if s.err != nil {
		return s
	}

	if sub == nil {
		return s.reportErr(fmt.Errorf("append sequence fail: sequence is nil"))
	}

	if err := sub.buildError(); err != nil {
		return s.reportErr(fmt.Errorf("append sequence fail: %w", err))
	}

	s.stepList = append(s.stepList, sub.steps()...)
	return s
}

// Compile 校验并生成可执行对象。
// 要求至少两个步骤，且相邻步骤的输出输入类型兼容、
// 链的端点类型与 I、O 匹配。
func (s *Sequence[I, O]) Compile() (Runnable[I, O], error) {
	if s.err != nil {
		return nil, s.err
	}

	cr, err := buildSequence(s.stepList)
	if err != nil {
		return nil, err
	}

	inputType := generic.TypeOf[I]()
	outputType := generic.TypeOf[O]()

	if !assignableType(inputType, cr.inputType) {
		return nil, fmt.Errorf("sequence input type mismatch: sequence declares %v, first step expects %v",
			inputType, cr.inputType)
	}

	if !assignableType(cr.outputType, outputType) {
		return nil, fmt.Errorf("sequence output type mismatch: last step produces %v, sequence declares %v",
			cr.outputType, outputType)
	}

	return toGenericRunnable[I, O](cr, attachHandlers), nil
}

// attachHandlers 把调用选项中的回调处理器挂载到 ctx。
func attachHandlers(ctx context.Context, opts ...Option) context.Context {
	return callbacks.AppendHandlers(ctx, handlersOf(opts)...)
}

// buildSequence 把步骤列表组装为类型擦除的顺序执行体。
func buildSequence(steps []*composableRunnable) (*composableRunnable, error) {
	if len(steps) < 2 {
		return nil, fmt.Errorf("sequence requires at least 2 steps, got %d", len(steps))
	}

	for k := 1; k < len(steps); k++ {
		prev, cur := steps[k-1], steps[k]
		if !assignableType(prev.outputType, cur.inputType) {
			return nil, fmt.Errorf("type mismatch between step %d and step %d: %v cannot flow into %v",
				k-1, k, prev.outputType, cur.inputType)
		}
	}

	run := &sequenceRun{steps: steps}

	return &composableRunnable{
		i:          run.invoke,
		t:          run.transform,
		inputType:  steps[0].inputType,
		outputType: steps[len(steps)-1].outputType,
		name:       "Sequence",
		component:  ComponentOfSequence,
	}, nil
}

// assignableType 判断 from 类型的值能否作为 to 类型的输入。
// nil 表示透传等不声明类型的步骤，视为兼容；
// from 是接口类型时延迟到运行时断言。
func assignableType(from, to reflect.Type) bool {
	if from == nil || to == nil {
		return true
	}

	if from == to {
		return true
	}

	if to.Kind() == reflect.Interface {
		return from.Implements(to)
	}

	return from.Kind() == reflect.Interface
}

// sequenceRun 顺序链的执行体。
type sequenceRun struct {
	steps []*composableRunnable
}

// invoke 逐步同步执行，失败立即终止。
func (sr *sequenceRun) invoke(ctx context.Context, input any, opts ...any) (any, error) {
	for idx, step := range sr.steps {
		out, err := runStepInvoke(ctx, step, idx, input, opts)
		if err != nil {
			return nil, err
		}

		input = out
	}

	return input, nil
}

// runStepInvoke 执行单个步骤并通知回调。
// 步骤返回的错误和 panic 都被包装为携带定位信息的 StepError。
func runStepInvoke(ctx context.Context, step *composableRunnable, idx int,
	input any, opts []any) (output any, err error) {
	info := callbacks.NewRunInfo(step.name, step.component)
	ctx = callbacks.OnStart(ctx, info, input)

	defer func() {
		if pe := recover(); pe != nil {
			err = wrapStepError(step.name, idx, safe.NewPanicErr(pe, debug.Stack()))
			callbacks.OnError(ctx, info, err)
		}
	}()

	output, err = step.i(ctx, input, opts...)
	if err != nil {
		err = wrapStepError(step.name, idx, err)
		callbacks.OnError(ctx, info, err)
		return nil, err
	}

	callbacks.OnEnd(ctx, info, output)

	return output, nil
}

// transform 逐步串接各步骤的流式转换。
// 同步阶段的失败立即终止；流式阶段产生的错误由 mapError
// 归因到对应步骤后沿流下传，由下游消费时呈现。
func (sr *sequenceRun) transform(ctx context.Context, input streamReader, opts ...any) (streamReader, error) {
	for idx, step := range sr.steps {
		out, err := runStepTransform(ctx, step, input, opts)
		if err != nil {
			input.close()
			return nil, wrapStepError(step.name, idx, err)
		}

		input = out.mapError(func(e error) error {
			return wrapStepError(step.name, idx, e)
		})
	}

	return input, nil
}

func runStepTransform(ctx context.Context, step *composableRunnable,
	input streamReader, opts []any) (output streamReader, err error) {
	defer func() {
		if pe := recover(); pe != nil {
			err = safe.NewPanicErr(pe, debug.Stack())
		}
	}()

	return step.t(ctx, input, opts...)
}
