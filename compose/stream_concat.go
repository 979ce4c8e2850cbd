package compose

import (
	"errors"
	"io"

	"runchain/internal"
	"runchain/schema"
)

// RegisterStreamChunkConcatFunc 注册类型 T 的流块合并函数。
//
// 流式输出转换为单值时（如用 Invoke 调用流式步骤、流在同步步骤
// 入口被吸收），框架需要把多个流块合并为一个结果。字符串等基础
// 类型有默认合并逻辑，自定义结构体需要在此注册合并策略。
//
// 应在进程初始化阶段调用，非并发安全。
//
// 示例：
//
//	type delta struct {
//		Text string
//		Done bool
//	}
//
//	compose.RegisterStreamChunkConcatFunc(func(items []delta) (delta, error) {
//		var ret delta
//		for _, item := range items {
//			ret.Text += item.Text
//			ret.Done = item.Done
//		}
//		return ret, nil
//	})
func RegisterStreamChunkConcatFunc[T any](fn func([]T) (T, error)) {
	internal.RegisterStreamChunkConcatFunc(fn)
}

// emptyStreamConcatErr 区分"流为空"与"流读取失败"。
var emptyStreamConcatErr = errors.New("stream reader is empty, concat failed")

// concatStreamReader 把流中的全部数据块合并为单个值。
// 读取过程中遇到错误立即返回；空流报错，单块直接返回，
// 多块交给按类型注册的合并函数处理。
func concatStreamReader[T any](sr *schema.StreamReader[T]) (T, error) {
	defer sr.Close()

	var items []T

	for {
		chunk, err := sr.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}

			var t T
			return t, newStreamReadError(err)
		}

		items = append(items, chunk)
	}

	if len(items) == 0 {
		var t T
		return t, emptyStreamConcatErr
	}

	if len(items) == 1 {
		return items[0], nil
	}

	res, err := internal.ConcatItems(items)
	if err != nil {
		var t T
		return t, err
	}

	return res, nil
}
