package compose

import (
	"context"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runchain/schema"
)

func compileDouble(t *testing.T, step *Lambda) Runnable[string, string] {
	t.Helper()

	r, err := NewSequence[string, string]().
		AppendPassthrough().
		Append(step).
		Compile()
	require.NoError(t, err)

	return r
}

func drainStream[T any](t *testing.T, sr *schema.StreamReader[T]) []T {
	t.Helper()
	defer sr.Close()

	var ret []T
	for {
		chunk, err := sr.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		ret = append(ret, chunk)
	}

	return ret
}

// TestInvokableLambdaAllModes 验证仅实现同步模式的步骤在四种模式下可用。
func TestInvokableLambdaAllModes(t *testing.T) {
	r := compileDouble(t, InvokableLambda(func(_ context.Context, input string) (string, error) {
		return strings.ToUpper(input), nil
	}))

	ctx := context.Background()

	out, err := r.Invoke(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "HI", out)

	sr, err := r.Stream(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"HI"}, drainStream(t, sr))

	// 流式输入在步骤入口被合并为单值
	out, err = r.Collect(ctx, schema.StreamReaderFromArray([]string{"h", "i"}))
	require.NoError(t, err)
	assert.Equal(t, "HI", out)

	sr2, err := r.Transform(ctx, schema.StreamReaderFromArray([]string{"h", "i"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"HI"}, drainStream(t, sr2))
}

// TestStreamableLambdaAllModes 验证仅实现流式输出的步骤在同步模式下可用。
func TestStreamableLambdaAllModes(t *testing.T) {
	r := compileDouble(t, StreamableLambda(func(_ context.Context, input string) (*schema.StreamReader[string], error) {
		chunks := strings.Split(input, "")
		return schema.StreamReaderFromArray(chunks), nil
	}))

	ctx := context.Background()

	// 流式输出被合并为单值返回
	out, err := r.Invoke(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", out)

	sr, err := r.Stream(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, drainStream(t, sr))
}

// TestCollectableLambdaAllModes 验证仅实现聚合模式的步骤在其他模式下可用。
func TestCollectableLambdaAllModes(t *testing.T) {
	r := compileDouble(t, CollectableLambda(func(_ context.Context, input *schema.StreamReader[string]) (string, error) {
		defer input.Close()

		n := 0
		for {
			_, err := input.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", err
			}
			n++
		}

		return strconv.Itoa(n), nil
	}))

	ctx := context.Background()

	// 单值输入被包装为单块流
	out, err := r.Invoke(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "1", out)

	out, err = r.Collect(ctx, schema.StreamReaderFromArray([]string{"a", "b", "c"}))
	require.NoError(t, err)
	assert.Equal(t, "3", out)
}

// TestTransformableLambdaAllModes 验证仅实现流转换的步骤在四种模式下可用。
func TestTransformableLambdaAllModes(t *testing.T) {
	r := compileDouble(t, TransformableLambda(func(_ context.Context,
		input *schema.StreamReader[string]) (*schema.StreamReader[string], error) {
		return schema.StreamReaderWithConvert(input, func(s string) (string, error) {
			return s + s, nil
		}), nil
	}))

	ctx := context.Background()

	out, err := r.Invoke(ctx, "ab")
	require.NoError(t, err)
	assert.Equal(t, "abab", out)

	sr, err := r.Transform(ctx, schema.StreamReaderFromArray([]string{"x", "y"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"xx", "yy"}, drainStream(t, sr))
}

// TestAnyLambda 验证多模式组合与全空校验。
func TestAnyLambda(t *testing.T) {
	_, err := AnyLambda[string, string, unreachableOption](nil, nil, nil, nil)
	assert.Error(t, err)

	lambda, err := AnyLambda(
		func(_ context.Context, input string, _ ...unreachableOption) (string, error) {
			return "invoke:" + input, nil
		},
		func(_ context.Context, input string, _ ...unreachableOption) (*schema.StreamReader[string], error) {
			return schema.StreamReaderFromArray([]string{"stream:", input}), nil
		},
		nil, nil,
	)
	require.NoError(t, err)

	r := compileDouble(t, lambda)

	// 同步路径使用 invoke 实现，流式路径使用 stream 实现
	out, err := r.Invoke(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "invoke:x", out)

	sr, err := r.Stream(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"stream:", "x"}, drainStream(t, sr))
}

// TestToList 验证单值转列表的辅助 Lambda。
func TestToList(t *testing.T) {
	toMsg := InvokableLambda(func(_ context.Context, input string) (*schema.Message, error) {
		return schema.AssistantMessage(input), nil
	})

	r, err := NewSequence[string, []*schema.Message]().
		Append(toMsg).
		Append(ToList[*schema.Message]()).
		Compile()
	require.NoError(t, err)

	out, err := r.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "hi", out[0].Content)
}

// TestLambdaNameInference 验证匿名函数不产生名称，显式指定优先。
func TestLambdaNameInference(t *testing.T) {
	anonymous := InvokableLambda(func(_ context.Context, input string) (string, error) {
		return input, nil
	})
	assert.Equal(t, "", anonymous.executor.name)

	named := InvokableLambda(func(_ context.Context, input string) (string, error) {
		return input, nil
	}, WithLambdaType("Custom"))
	assert.Equal(t, "Custom", named.executor.name)
}
