package compose

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runchain/callbacks"
)

// recordingHandler 记录回调通知顺序的测试处理器。
type recordingHandler struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHandler) record(kind string, info *callbacks.RunInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, kind+":"+info.Name)
}

func (h *recordingHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input any) context.Context {
	h.record("start", info)
	return ctx
}

func (h *recordingHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output any) context.Context {
	h.record("end", info)
	return ctx
}

func (h *recordingHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	h.record("error", info)
	return ctx
}

// TestWithCallbacks 验证回调处理器按步骤执行顺序收到通知。
func TestWithCallbacks(t *testing.T) {
	r, err := NewSequence[string, string]().
		Append(upperLambda()).
		Append(exclaimLambda()).
		Compile()
	require.NoError(t, err)

	h := &recordingHandler{}

	out, err := r.Invoke(context.Background(), "hi", WithCallbacks(h))
	require.NoError(t, err)
	assert.Equal(t, "HI!", out)

	assert.Equal(t, []string{
		"start:Upper", "end:Upper",
		"start:Exclaim", "end:Exclaim",
	}, h.events)
}

// TestCallbacksOnError 验证失败步骤触发 OnError 且后续步骤无通知。
func TestCallbacksOnError(t *testing.T) {
	r, err := NewSequence[string, string]().
		Append(upperLambda()).
		Append(InvokableLambda(func(_ context.Context, input string) (string, error) {
			return "", errors.New("boom")
		}, WithLambdaType("Bad"))).
		Append(exclaimLambda()).
		Compile()
	require.NoError(t, err)

	h := &recordingHandler{}

	_, err = r.Invoke(context.Background(), "hi", WithCallbacks(h))
	require.Error(t, err)

	assert.Equal(t, []string{
		"start:Upper", "end:Upper",
		"start:Bad", "error:Bad",
	}, h.events)
}

type suffixOption struct {
	suffix string
}

// TestLambdaOptionRouting 验证选项只到达能识别它的步骤。
func TestLambdaOptionRouting(t *testing.T) {
	decorated := InvokableLambdaWithOption(
		func(_ context.Context, input string, opts ...suffixOption) (string, error) {
			for _, o := range opts {
				input += o.suffix
			}
			return input, nil
		}, WithLambdaType("Decorator"))

	r, err := NewSequence[string, string]().
		Append(upperLambda()).
		Append(decorated).
		Compile()
	require.NoError(t, err)

	out, err := r.Invoke(context.Background(), "hi",
		WithLambdaOption(suffixOption{suffix: "-a"}, suffixOption{suffix: "-b"}))
	require.NoError(t, err)

	// upper 步骤不识别 suffixOption，选项只作用于 decorated 步骤
	assert.Equal(t, "HI-a-b", out)
}

// TestConvertOption 验证混合选项按类型筛选。
func TestConvertOption(t *testing.T) {
	opts := []any{suffixOption{suffix: "x"}, "other", suffixOption{suffix: "y"}}

	got := convertOption[suffixOption](opts...)
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].suffix)
	assert.Equal(t, "y", got[1].suffix)

	assert.Nil(t, convertOption[int]())
}

// TestParallelCallbacks 验证并行分支各自触发回调。
func TestParallelCallbacks(t *testing.T) {
	p := NewParallel().
		AddLambda("u", InvokableLambda(func(_ context.Context, input string) (string, error) {
			return strings.ToUpper(input), nil
		}, WithLambdaType("Upper"))).
		AddLambda("l", InvokableLambda(func(_ context.Context, input string) (string, error) {
			return strings.ToLower(input), nil
		}, WithLambdaType("Lower")))

	r, err := CompileParallel[string](p)
	require.NoError(t, err)

	h := &recordingHandler{}

	_, err = r.Invoke(context.Background(), "Hi", WithCallbacks(h))
	require.NoError(t, err)

	// 分支并发执行，只校验事件集合
	assert.ElementsMatch(t, []string{
		"start:Upper", "end:Upper",
		"start:Lower", "end:Lower",
	}, h.events)
}
