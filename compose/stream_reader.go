package compose

import (
	"io"
	"reflect"
	"runtime/debug"

	"runchain/internal/generic"
	"runchain/internal/safe"
	"runchain/schema"
)

// streamReader 类型擦除后的流读取器接口。
// 把具体的 *schema.StreamReader[T] 统一成可在步骤间传递的形态，
// 支撑异构类型的流式编排。
type streamReader interface {
	copy(n int) []streamReader
	getType() reflect.Type
	getChunkType() reflect.Type
	withKey(key string) streamReader
	merge(srs []streamReader) streamReader
	mapError(f func(error) error) streamReader
	toAnyStreamReader() *schema.StreamReader[any]
	close()
}

// streamReaderPacker 把 *schema.StreamReader[T] 包装为 streamReader 接口。
type streamReaderPacker[T any] struct {
	sr *schema.StreamReader[T]
}

func (srp streamReaderPacker[T]) copy(n int) []streamReader {
	ret := make([]streamReader, n)
	srs := srp.sr.Copy(n)

	for i := 0; i < n; i++ {
		ret[i] = streamReaderPacker[T]{srs[i]}
	}

	return ret
}

func (srp streamReaderPacker[T]) getType() reflect.Type {
	return reflect.TypeOf(srp.sr)
}

func (srp streamReaderPacker[T]) getChunkType() reflect.Type {
	return generic.TypeOf[T]()
}

// withKey 把流中每个数据块包装为单键 map，用于并行分支的键值化输出。
func (srp streamReaderPacker[T]) withKey(key string) streamReader {
	cvt := func(v T) (map[string]any, error) {
		return map[string]any{key: v}, nil
	}

	ret := schema.StreamReaderWithConvert[T, map[string]any](srp.sr, cvt)

	return packStreamReader(ret)
}

func (srp streamReaderPacker[T]) toStreamReaders(srs []streamReader) []*schema.StreamReader[T] {
	ret := make([]*schema.StreamReader[T], len(srs)+1)
	ret[0] = srp.sr
	for i := 1; i < len(ret); i++ {
		sr, ok := unpackStreamReader[T](srs[i-1])
		if !ok {
			return nil
		}

		ret[i] = sr
	}

	return ret
}

func (srp streamReaderPacker[T]) merge(srs []streamReader) streamReader {
	return packStreamReader(schema.MergeStreamReaders(srp.toStreamReaders(srs)))
}

// mapError 把流中出现的错误经 f 改写后继续传递，数据块原样透传。
// 用于把流式执行期的错误归因到产生它的步骤。
func (srp streamReaderPacker[T]) mapError(f func(error) error) streamReader {
	sr := srp.sr
	nsr, nsw := schema.Pipe[T](5)

	go func() {
		defer func() {
			if pe := recover(); pe != nil {
				var chunk T
				_ = nsw.Send(chunk, f(safe.NewPanicErr(pe, debug.Stack())))
			}

			nsw.Close()
			sr.Close()
		}()

		for {
			chunk, err := sr.Recv()
			if err == io.EOF {
				break
			}

			if err != nil {
				err = f(err)
			}

			if closed := nsw.Send(chunk, err); closed {
				break
			}
		}
	}()

	return packStreamReader(nsr)
}

func (srp streamReaderPacker[T]) toAnyStreamReader() *schema.StreamReader[any] {
	return schema.StreamReaderWithConvert(srp.sr, func(t T) (any, error) {
		return t, nil
	})
}

func (srp streamReaderPacker[T]) close() {
	srp.sr.Close()
}

func packStreamReader[T any](sr *schema.StreamReader[T]) streamReader {
	return streamReaderPacker[T]{sr}
}

// unpackStreamReader 从 streamReader 接口中还原出 *schema.StreamReader[T]。
// 目标类型是接口时经由 any 流转换，其余类型不匹配时返回 false。
func unpackStreamReader[T any](isr streamReader) (*schema.StreamReader[T], bool) {
	c, ok := isr.(streamReaderPacker[T])
	if ok {
		return c.sr, true
	}

	typ := generic.TypeOf[T]()
	if typ.Kind() == reflect.Interface {
		return schema.StreamReaderWithConvert(isr.toAnyStreamReader(), func(t any) (T, error) {
			return t.(T), nil
		}), true
	}

	return nil, false
}
