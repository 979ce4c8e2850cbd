package compose

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"runchain/callbacks"
	"runchain/components/model"
	"runchain/components/prompt"
	"runchain/internal/generic"
	"runchain/internal/safe"
	"runchain/schema"
)

// Parallel 并行构建器，把一组带键名的分支组织为并发执行的步骤。
// 所有分支接收同一份输入，输出为 map[string]any，键为分支键名。
//
// 流式执行时默认把各分支的输出块包装为单键 map 交错下传；
// 调用 CombineOutputStreams 后改为聚合模式，整条输出流只产生
// 一个汇总了全部分支终值的 map。
//
// 使用示例：
//
//	p := compose.NewParallel().
//		AddLambda("upper", upperLambda).
//		AddLambda("lower", lowerLambda)
//
//	r, err := compose.CompileParallel[string](p)
//	if err != nil {
//		return err
//	}
//
//	out, err := r.Invoke(ctx, "Hello") // map[string]any{"upper": ..., "lower": ...}
type Parallel struct {
	err error

	branches []*parallelBranch
	combine  bool
}

type parallelBranch struct {
	key string
	r   *composableRunnable
}

// NewParallel 创建空的并行构建器。
func NewParallel() *Parallel {
	return &Parallel{}
}

func (p *Parallel) reportErr(err error) *Parallel {
	if p.err == nil {
		p.err = err
	}
	return p
}

func (p *Parallel) addBranch(key string, r *composableRunnable) *Parallel {
	if p.err != nil {
		return p
	}

	if key == "" {
		return p.reportErr(fmt.Errorf("add parallel branch fail: key is empty"))
	}

	for _, b := range p.branches {
		if b.key == key {
			return p.reportErr(fmt.Errorf("add parallel branch fail: duplicate key %q", key))
		}
	}

	p.branches = append(p.branches, &parallelBranch{key: key, r: r})
	return p
}

// AddLambda 添加一个 Lambda 分支。
func (p *Parallel) AddLambda(key string, lambda *Lambda) *Parallel {
	if p.err != nil {
		return p
	}

	if lambda == nil || lambda.executor == nil {
		return p.reportErr(fmt.Errorf("add parallel branch %q fail: lambda is nil", key))
	}

	return p.addBranch(key, lambda.executor)
}

// AddChatTemplate 添加一个聊天模板分支。
func (p *Parallel) AddChatTemplate(key string, ct prompt.ChatTemplate) *Parallel {
	if p.err != nil {
		return p
	}

	if ct == nil {
		return p.reportErr(fmt.Errorf("add parallel branch %q fail: template is nil", key))
	}

	return p.addBranch(key, toChatTemplateRunnable(ct))
}

// AddChatModel 添加一个聊天模型分支。
func (p *Parallel) AddChatModel(key string, cm model.BaseChatModel) *Parallel {
	if p.err != nil {
		return p
	}

	if cm == nil {
		return p.reportErr(fmt.Errorf("add parallel branch %q fail: model is nil", key))
	}

	return p.addBranch(key, toChatModelRunnable(cm))
}

// AddSequence 添加一条顺序链作为分支，子链作为整体执行。
func (p *Parallel) AddSequence(key string, sub AnySequence) *Parallel {
	if p.err != nil {
		return p
	}

	if sub == nil {
		return p.reportErr(fmt.Errorf("add parallel branch %q fail: sequence is nil", key))
	}

	if err := sub.buildError(); err != nil {
		return p.reportErr(fmt.Errorf("add parallel branch %q fail: %w", key, err))
	}

	cr, err := buildSequence(sub.steps())
	if err != nil {
		return p.reportErr(fmt.Errorf("add parallel branch %q fail: %w", key, err))
	}

	return p.addBranch(key, cr)
}

// AddPassthrough 添加一个透传分支，把输入原样放入输出 map。
func (p *Parallel) AddPassthrough(key string) *Parallel {
	return p.addBranch(key, composablePassthrough())
}

// CombineOutputStreams 切换为聚合流模式。
// 流式执行时不再逐块下传各分支的输出，而是在全部分支结束后
// 产生一个汇总 map：每个键对应该分支最后一次输出的值。
func (p *Parallel) CombineOutputStreams() *Parallel {
	p.combine = true
	return p
}

// CompileParallel 校验并生成可执行对象。
// I 为输入类型，需与所有分支的输入类型兼容；输出固定为 map[string]any。
func CompileParallel[I any](p *Parallel) (Runnable[I, map[string]any], error) {
	if p == nil {
		return nil, fmt.Errorf("compile parallel fail: parallel is nil")
	}

	cr, err := buildParallel(p)
	if err != nil {
		return nil, err
	}

	inputType := generic.TypeOf[I]()
	for _, b := range p.branches {
		if !assignableType(inputType, b.r.inputType) {
			return nil, fmt.Errorf("parallel input type mismatch: branch %q expects %v, got %v",
				b.key, b.r.inputType, inputType)
		}
	}

	return toGenericRunnable[I, map[string]any](cr, attachHandlers), nil
}

// buildParallel 把并行分支组装为类型擦除的执行体。
func buildParallel(p *Parallel) (*composableRunnable, error) {
	if p == nil {
		return nil, fmt.Errorf("build parallel fail: parallel is nil")
	}

	if p.err != nil {
		return nil, p.err
	}

	if len(p.branches) == 0 {
		return nil, fmt.Errorf("parallel requires at least 1 branch, got none")
	}

	run := &parallelRun{
		branches: p.branches,
		combine:  p.combine,
	}

	return &composableRunnable{
		i:          run.invoke,
		t:          run.transform,
		inputType:  commonBranchInputType(p.branches),
		outputType: generic.TypeOf[map[string]any](),
		name:       "Parallel",
		component:  ComponentOfParallel,
	}, nil
}

// commonBranchInputType 推断并行步骤的输入类型。
// 所有分支声明同一类型时采用该类型，否则留空交给运行时断言。
func commonBranchInputType(branches []*parallelBranch) reflect.Type {
	var typ reflect.Type
	for _, b := range branches {
		if b.r.inputType == nil {
			continue
		}

		if typ == nil {
			typ = b.r.inputType
			continue
		}

		if typ != b.r.inputType {
			return nil
		}
	}

	return typ
}

// parallelRun 并行步骤的执行体。
type parallelRun struct {
	branches []*parallelBranch
	combine  bool
}

// invoke 并发执行全部分支，汇总为按键组织的 map。
// 任一分支失败立即返回该分支的 StepError，其余分支经 ctx 取消；
// 多个分支同时失败时返回最先出错的那个。
func (pr *parallelRun) invoke(ctx context.Context, input any, opts ...any) (any, error) {
	g, gctx := errgroup.WithContext(ctx)

	results := make([]any, len(pr.branches))

	for idx, b := range pr.branches {
		idx, b := idx, b
		g.Go(func() (err error) {
			defer func() {
				if pe := recover(); pe != nil {
					err = wrapBranchError(b.r.name, b.key, safe.NewPanicErr(pe, debug.Stack()))
				}
			}()

			info := callbacks.NewRunInfo(b.r.name, b.r.component)
			nctx := callbacks.OnStart(gctx, info, input)

			out, err := b.r.i(nctx, input, opts...)
			if err != nil {
				err = wrapBranchError(b.r.name, b.key, err)
				callbacks.OnError(nctx, info, err)
				return err
			}

			callbacks.OnEnd(nctx, info, out)
			results[idx] = out

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(pr.branches))
	for i, b := range pr.branches {
		out[b.key] = results[i]
	}

	return out, nil
}

// transform 流式执行全部分支。
// 输入流复制为分支数量份，各分支的输出流打上分支键后合并；
// 聚合模式下再折叠为单个汇总 map。
func (pr *parallelRun) transform(ctx context.Context, input streamReader, opts ...any) (streamReader, error) {
	inputs := input.copy(len(pr.branches))

	outs := make([]streamReader, 0, len(pr.branches))

	for idx, b := range pr.branches {
		idx, b := idx, b
		out, err := runStepTransform(ctx, b.r, inputs[idx], opts)
		if err != nil {
			for i := idx; i < len(inputs); i++ {
				inputs[i].close()
			}
			for _, o := range outs {
				o.close()
			}

			return nil, wrapBranchError(b.r.name, b.key, err)
		}

		out = out.mapError(func(e error) error {
			return wrapBranchError(b.r.name, b.key, e)
		})

		outs = append(outs, out.withKey(b.key))
	}

	merged := outs[0]
	if len(outs) > 1 {
		merged = outs[0].merge(outs[1:])
	}

	if !pr.combine {
		return merged, nil
	}

	sr, ok := unpackStreamReader[map[string]any](merged)
	if !ok {
		merged.close()
		return nil, fmt.Errorf("combine parallel output fail: unexpected chunk type %v", merged.getChunkType())
	}

	return packStreamReader(foldKeyedStream(sr)), nil
}

// foldKeyedStream 把按键组织的流折叠为单个汇总 map。
// 每个键保留最后到达的值，源流正常结束后恰好产生一个数据块；
// 中途出错时转发错误并终止。
// 折叠协程在第一次 Send 前就要长时间阻塞在源流读取上，
// 因此需要监听接收端的关闭信号，接收端关闭后立即关闭源流，
// 把取消传导回各分支的生产者。
func foldKeyedStream(sr *schema.StreamReader[map[string]any]) *schema.StreamReader[map[string]any] {
	out, w := schema.Pipe[map[string]any](1)

	done := make(chan struct{})
	go func() {
		select {
		case <-w.Closed():
			sr.Close()
		case <-done:
		}
	}()

	go func() {
		defer func() {
			if pe := recover(); pe != nil {
				_ = w.Send(nil, safe.NewPanicErr(pe, debug.Stack()))
			}

			close(done)
			w.Close()
			sr.Close()
		}()

		snapshot := make(map[string]any)

		for {
			m, err := sr.Recv()
			if err == io.EOF {
				break
			}

			if err != nil {
				_ = w.Send(nil, err)
				return
			}

			for k, v := range m {
				snapshot[k] = v
			}
		}

		_ = w.Send(snapshot, nil)
	}()

	return out
}
