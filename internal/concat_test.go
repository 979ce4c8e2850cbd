package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcatStrings 验证字符串块按顺序拼接。
func TestConcatStrings(t *testing.T) {
	got, err := ConcatItems([]string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

// TestConcatNumbersUseLast 验证数值类型取最后一个块。
func TestConcatNumbersUseLast(t *testing.T) {
	got, err := ConcatItems([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	f, err := ConcatItems([]float64{1.5, 2.5})
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)
}

// TestConcatMapsRecursive 验证 map 合并时相同 key 递归合并。
func TestConcatMapsRecursive(t *testing.T) {
	got, err := ConcatItems([]map[string]string{
		{"a": "hello ", "b": "x"},
		{"a": "world"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"a": "hello world", "b": "x"}, got)
}

// TestConcatRegisteredFunc 验证自定义类型经注册函数合并。
func TestConcatRegisteredFunc(t *testing.T) {
	type delta struct {
		Text string
		Done bool
	}

	RegisterStreamChunkConcatFunc(func(items []delta) (delta, error) {
		var ret delta
		for _, item := range items {
			ret.Text += item.Text
			ret.Done = item.Done
		}
		return ret, nil
	})

	got, err := ConcatItems([]delta{
		{Text: "he"},
		{Text: "llo", Done: true},
	})
	require.NoError(t, err)
	assert.Equal(t, delta{Text: "hello", Done: true}, got)
}

// TestConcatUnregisteredSingleNonZero 验证未注册类型只允许一个非零值。
func TestConcatUnregisteredSingleNonZero(t *testing.T) {
	type plain struct {
		V int
	}

	got, err := ConcatItems([]plain{{}, {V: 7}, {}})
	require.NoError(t, err)
	assert.Equal(t, plain{V: 7}, got)

	_, err = ConcatItems([]plain{{V: 1}, {V: 2}})
	assert.ErrorContains(t, err, "cannot concat multiple non-zero value")
}
