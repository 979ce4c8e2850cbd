package schema

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPipe 验证基础流的发送接收与正常结束。
func TestPipe(t *testing.T) {
	sr, sw := Pipe[string](2)

	go func() {
		defer sw.Close()
		for i := 0; i < 5; i++ {
			closed := sw.Send(fmt.Sprintf("chunk-%d", i), nil)
			assert.False(t, closed)
		}
	}()

	defer sr.Close()

	var got []string
	for {
		chunk, err := sr.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk)
	}

	assert.Equal(t, []string{"chunk-0", "chunk-1", "chunk-2", "chunk-3", "chunk-4"}, got)
}

// TestPipeSendError 验证数据项上携带的错误原样到达接收端。
func TestPipeSendError(t *testing.T) {
	sr, sw := Pipe[int](1)

	wantErr := errors.New("produce fail")

	go func() {
		defer sw.Close()
		sw.Send(1, nil)
		sw.Send(0, wantErr)
	}()

	defer sr.Close()

	chunk, err := sr.Recv()
	require.NoError(t, err)
	assert.Equal(t, 1, chunk)

	_, err = sr.Recv()
	assert.Equal(t, wantErr, err)
}

// TestPipeCloseRecv 验证接收端关闭后发送端能感知并停止生产。
func TestPipeCloseRecv(t *testing.T) {
	sr, sw := Pipe[int](0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sw.Close()
		for i := 0; ; i++ {
			if closed := sw.Send(i, nil); closed {
				return
			}
		}
	}()

	chunk, err := sr.Recv()
	require.NoError(t, err)
	assert.Equal(t, 0, chunk)

	sr.Close()
	<-done
}

// TestWriterClosedSignal 验证发送端能通过 Closed 信号感知接收端关闭。
func TestWriterClosedSignal(t *testing.T) {
	sr, sw := Pipe[int](0)

	select {
	case <-sw.Closed():
		t.Fatal("closed signal fired before reader close")
	default:
	}

	sr.Close()

	select {
	case <-sw.Closed():
	default:
		t.Fatal("closed signal not fired after reader close")
	}
}

// TestStreamReaderFromArray 验证数组读取器按顺序读取并以 EOF 结束。
func TestStreamReaderFromArray(t *testing.T) {
	sr := StreamReaderFromArray([]int{1, 2, 3})
	defer sr.Close()

	for i := 1; i <= 3; i++ {
		chunk, err := sr.Recv()
		require.NoError(t, err)
		assert.Equal(t, i, chunk)
	}

	_, err := sr.Recv()
	assert.Equal(t, io.EOF, err)
}

// TestMergeStreamReaders 验证多流合并后数据不丢不重。
func TestMergeStreamReaders(t *testing.T) {
	var srs []*StreamReader[int]
	for i := 0; i < 7; i++ {
		base := i * 10
		sr, sw := Pipe[int](1)
		go func() {
			defer sw.Close()
			for j := 0; j < 3; j++ {
				sw.Send(base+j, nil)
			}
		}()
		srs = append(srs, sr)
	}

	merged := MergeStreamReaders(srs)
	defer merged.Close()

	got := make(map[int]bool)
	for {
		chunk, err := merged.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got[chunk] = true
	}

	assert.Len(t, got, 21)
	for i := 0; i < 7; i++ {
		for j := 0; j < 3; j++ {
			assert.True(t, got[i*10+j])
		}
	}
}

// TestMergeArrayReaders 验证纯数组读取器的合并不走 select 路径。
func TestMergeArrayReaders(t *testing.T) {
	merged := MergeStreamReaders([]*StreamReader[string]{
		StreamReaderFromArray([]string{"a", "b"}),
		StreamReaderFromArray([]string{"c"}),
	})
	defer merged.Close()

	var got []string
	for {
		chunk, err := merged.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk)
	}

	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)
}

// TestStreamReaderWithConvert 验证类型转换与 ErrNoValue 跳过语义。
func TestStreamReaderWithConvert(t *testing.T) {
	sr := StreamReaderFromArray([]int{1, 2, 3, 4})

	converted := StreamReaderWithConvert(sr, func(i int) (string, error) {
		if i%2 == 0 {
			return "", ErrNoValue
		}
		return fmt.Sprintf("val_%d", i), nil
	})
	defer converted.Close()

	var got []string
	for {
		chunk, err := converted.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk)
	}

	assert.Equal(t, []string{"val_1", "val_3"}, got)
}

// TestStreamReaderCopy 验证复制后各副本独立读到完整数据。
func TestStreamReaderCopy(t *testing.T) {
	sr, sw := Pipe[int](2)

	go func() {
		defer sw.Close()
		for i := 0; i < 10; i++ {
			sw.Send(i, nil)
		}
	}()

	const n = 3
	copies := sr.Copy(n)

	var wg sync.WaitGroup
	wg.Add(n)

	results := make([][]int, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			defer copies[i].Close()
			for {
				chunk, err := copies[i].Recv()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				results[i] = append(results[i], chunk)
			}
		}()
	}

	wg.Wait()

	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	for i := 0; i < n; i++ {
		assert.Equal(t, want, results[i])
	}
}

// TestStreamReaderCopyArray 验证数组读取器复制后各自维护读取位置。
func TestStreamReaderCopyArray(t *testing.T) {
	sr := StreamReaderFromArray([]int{1, 2, 3})

	first, err := sr.Recv()
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	copies := sr.Copy(2)
	for _, cp := range copies {
		chunk, err := cp.Recv()
		require.NoError(t, err)
		assert.Equal(t, 2, chunk)
	}
}

// TestCopySingle 验证 n 小于 2 时复制退化为原读取器。
func TestCopySingle(t *testing.T) {
	sr, sw := Pipe[int](1)
	sw.Send(42, nil)
	sw.Close()

	copies := sr.Copy(1)
	require.Len(t, copies, 1)
	assert.Same(t, sr, copies[0])

	chunk, err := copies[0].Recv()
	require.NoError(t, err)
	assert.Equal(t, 42, chunk)
}
