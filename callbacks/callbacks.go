package callbacks

import (
	"context"

	"github.com/google/uuid"
)

// RunInfo 一次步骤执行的标识信息。
type RunInfo struct {
	// RunID 本次执行的唯一 ID。
	RunID string
	// Name 步骤名称，通常是组件实现类型或函数名。
	Name string
	// Component 组件类别，如 Lambda、ChatModel、Sequence。
	Component string
}

// NewRunInfo 创建带新 RunID 的执行标识。
func NewRunInfo(name, component string) *RunInfo {
	return &RunInfo{
		RunID:     uuid.NewString(),
		Name:      name,
		Component: component,
	}
}

// Handler 步骤执行回调处理器。
// 编排引擎在每个步骤执行前后和出错时依次通知所有处理器；
// 处理器返回的 ctx 会传递给后续处理器和步骤本身。
type Handler interface {
	OnStart(ctx context.Context, info *RunInfo, input any) context.Context
	OnEnd(ctx context.Context, info *RunInfo, output any) context.Context
	OnError(ctx context.Context, info *RunInfo, err error) context.Context
}

type handlersKey struct{}

// AppendHandlers 向 ctx 追加回调处理器。
// 已有处理器保持不变，新处理器排在其后。
func AppendHandlers(ctx context.Context, handlers ...Handler) context.Context {
	if len(handlers) == 0 {
		return ctx
	}

	exist := List(ctx)

	merged := make([]Handler, 0, len(exist)+len(handlers))
	merged = append(merged, exist...)
	merged = append(merged, handlers...)

	return context.WithValue(ctx, handlersKey{}, merged)
}

// List 返回 ctx 中携带的全部回调处理器。
func List(ctx context.Context) []Handler {
	hs, _ := ctx.Value(handlersKey{}).([]Handler)
	return hs
}

// OnStart 通知所有处理器步骤开始执行。
func OnStart(ctx context.Context, info *RunInfo, input any) context.Context {
	for _, h := range List(ctx) {
		ctx = h.OnStart(ctx, info, input)
	}
	return ctx
}

// OnEnd 通知所有处理器步骤执行成功。
func OnEnd(ctx context.Context, info *RunInfo, output any) context.Context {
	for _, h := range List(ctx) {
		ctx = h.OnEnd(ctx, info, output)
	}
	return ctx
}

// OnError 通知所有处理器步骤执行失败。
func OnError(ctx context.Context, info *RunInfo, err error) context.Context {
	for _, h := range List(ctx) {
		ctx = h.OnError(ctx, info, err)
	}
	return ctx
}
