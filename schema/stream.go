package schema

import (
	"errors"
	"io"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"runchain/internal/safe"
)

// Pipe 创建指定缓冲容量的流，返回读取端和写入端。
// 一个发送者对应一个接收者；发送端写完调用 sw.Close()，
// 接收端读到 io.EOF 表示流正常结束。
//
// 示例:
//
//	sr, sw := schema.Pipe[string](3)
//	go func() {
//	        defer sw.Close()
//	        for i := 0; i < 10; i++ {
//	                sw.Send(fmt.Sprintf("chunk-%d", i), nil)
//	        }
//	}()
//
//	defer sr.Close()
//	for {
//	        chunk, err := sr.Recv()
//	        if errors.Is(err, io.EOF) {
//	                break
//	        }
//	        fmt.Println(chunk)
//	}
func Pipe[T any](cap int) (*StreamReader[T], *StreamWriter[T]) {
	stm := newStream[T](cap)
	return stm.asReader(), &StreamWriter[T]{stm: stm}
}

// StreamReaderFromArray 从给定切片创建流读取器。
// 元素按切片顺序逐个读出，读完返回 io.EOF。
func StreamReaderFromArray[T any](arr []T) *StreamReader[T] {
	return &StreamReader[T]{ar: &arrayReader[T]{arr: arr}, typ: readerTypeArray}
}

// MergeStreamReaders 合并多个流读取器为一个。
// 各源流的数据按到达顺序交错输出，单个源流内部保持有序；
// 所有源流结束后合并流返回 io.EOF。
func MergeStreamReaders[T any](srs []*StreamReader[T]) *StreamReader[T] {
	if len(srs) < 1 {
		return nil
	}

	if len(srs) < 2 {
		return srs[0]
	}

	var arr []T
	var ss []*stream[T]

	for _, sr := range srs {
		switch sr.typ {
		case readerTypeStream:
			ss = append(ss, sr.st)
		case readerTypeArray:
			arr = append(arr, sr.ar.arr[sr.ar.index:]...)
		case readerTypeMultiStream:
			ss = append(ss, sr.msr.nonClosedStreams()...)
		case readerTypeWithConvert:
			ss = append(ss, sr.srw.toStream())
		case readerTypeChild:
			ss = append(ss, sr.csr.toStream())
		default:
			panic("impossible reader type")
		}
	}

	// 全部是数组读取器时无需真正的 select
	if len(ss) == 0 {
		return &StreamReader[T]{
			typ: readerTypeArray,
			ar: &arrayReader[T]{
				arr:   arr,
				index: 0,
			},
		}
	}

	if len(arr) != 0 {
		ss = append(ss, arrToStream(arr))
	}

	return &StreamReader[T]{
		typ: readerTypeMultiStream,
		msr: newMultiStreamReader(ss),
	}
}

// StreamReaderWithConvert 把流读取器转换为另一种元素类型的流读取器。
// 转换函数返回 ErrNoValue 时该数据项被丢弃，流继续。
//
// 示例：
//
//	intReader := schema.StreamReaderFromArray([]int{1, 2, 3})
//	strReader := schema.StreamReaderWithConvert(intReader, func(i int) (string, error) {
//		return fmt.Sprintf("val_%d", i), nil
//	})
//	defer strReader.Close()
func StreamReaderWithConvert[T, D any](sr *StreamReader[T], convert func(T) (D, error)) *StreamReader[D] {
	c := func(a any) (D, error) {
		return convert(a.(T))
	}

	return newStreamReaderWithConvert(sr, c)
}

// reader 单一类型流读取器的内部接口。
type reader[T any] interface {
	recv() (T, error)
	close()
}

// iStreamReader 类型擦除后的流读取器接口，支持异构数据传递。
type iStreamReader interface {
	recvAny() (any, error)
	Close()
}

// StreamReader 流数据接收器。
// 由 Pipe 等构造函数创建，使用后必须调用 Close 释放上游资源。
type StreamReader[T any] struct {
	typ readerType

	st *stream[T]

	ar *arrayReader[T]

	msr *multiStreamReader[T]

	srw *streamReaderWithConvert[T]

	csr *childStreamReader[T]
}

// StreamWriter 流数据发送器。
type StreamWriter[T any] struct {
	stm *stream[T]
}

// Recv 从流中接收一个数据项。
// 流正常结束返回 io.EOF；数据项可能携带上游写入的错误。
func (sr *StreamReader[T]) Recv() (T, error) {
	switch sr.typ {
	case readerTypeStream:
		return sr.st.recv()
	case readerTypeArray:
		return sr.ar.recv()
	case readerTypeMultiStream:
		return sr.msr.recv()
	case readerTypeWithConvert:
		return sr.srw.recv()
	case readerTypeChild:
		return sr.csr.recv()
	default:
		panic("impossible reader type")
	}
}

// Close 关闭流读取器并通知上游停止发送。
// 只应调用一次；不再读取时务必关闭，否则发送端可能永久阻塞。
func (sr *StreamReader[T]) Close() {
	switch sr.typ {
	case readerTypeStream:
		sr.st.closeRecv()
	case readerTypeArray:
		// 数组读取器没有需要释放的资源
	case readerTypeMultiStream:
		sr.msr.close()
	case readerTypeWithConvert:
		sr.srw.close()
	case readerTypeChild:
		sr.csr.close()
	default:
		panic("impossible reader type")
	}
}

// Copy 复制流读取器，让 n 个消费者独立读取同一数据源。
// 复制后原读取器不可再使用；所有副本关闭后才会关闭数据源。
func (sr *StreamReader[T]) Copy(n int) []*StreamReader[T] {
	if n < 2 {
		return []*StreamReader[T]{sr}
	}

	if sr.typ == readerTypeArray {
		ret := make([]*StreamReader[T], n)
		for i, ar := range sr.ar.copy(n) {
			ret[i] = &StreamReader[T]{typ: readerTypeArray, ar: ar}
		}
		return ret
	}

	return copyStreamReaders[T](sr, n)
}

func (sr *StreamReader[T]) recvAny() (any, error) {
	return sr.Recv()
}

// toStream 把任意变体的读取器折算为底层流对象。
func (sr *StreamReader[T]) toStream() *stream[T] {
	switch sr.typ {
	case readerTypeStream:
		return sr.st
	case readerTypeArray:
		return sr.ar.toStream()
	case readerTypeMultiStream:
		return sr.msr.toStream()
	case readerTypeWithConvert:
		return sr.srw.toStream()
	case readerTypeChild:
		return sr.csr.toStream()
	default:
		panic("impossible reader type")
	}
}

// Send 向流中发送一个数据项。
// 返回 true 表示接收端已关闭，发送方应停止生产。
func (sw *StreamWriter[T]) Send(chunk T, err error) (closed bool) {
	return sw.stm.send(chunk, err)
}

// Close 关闭流的发送端，接收端随后会读到 io.EOF。
// 发送完所有数据后务必调用。
func (sw *StreamWriter[T]) Close() {
	sw.stm.closeSend()
}

// Closed 返回接收端的关闭信号。
// 发送协程若会在 Send 之外长时间阻塞（例如等待其他流的数据），
// 应同时监听该信号，接收端关闭后立即停止生产并释放上游资源。
func (sw *StreamWriter[T]) Closed() <-chan struct{} {
	return sw.stm.closed
}

// ErrNoValue 供 StreamReaderWithConvert 的转换函数丢弃数据项使用。
// 除此之外不要返回该错误。
var ErrNoValue = errors.New("no value")

// ErrRecvAfterClosed 表示在读取器关闭后又调用了 Recv。
// 正常使用不应出现，出现说明调用方代码有误。
var ErrRecvAfterClosed = errors.New("recv after stream reader closed")

// readerType 流读取器的内部变体。
type readerType int

const (
	readerTypeStream readerType = iota
	readerTypeArray
	readerTypeMultiStream
	readerTypeWithConvert
	readerTypeChild
)

// stream 基于 channel 的底层流，1 个发送者对 1 个接收者。
// closeSend 通知接收者数据发完，closeRecv 通知发送者停止生产。
type stream[T any] struct {
	items chan streamItem[T]

	closed chan struct{}

	closeRecvOnce sync.Once
}

// streamItem 流中的数据项，携带数据块或错误。
type streamItem[T any] struct {
	chunk T
	err   error
}

func newStream[T any](cap int) *stream[T] {
	return &stream[T]{
		items:  make(chan streamItem[T], cap),
		closed: make(chan struct{}),
	}
}

func (s *stream[T]) asReader() *StreamReader[T] {
	return &StreamReader[T]{typ: readerTypeStream, st: s}
}

// recv 接收一个数据项，发送端关闭后返回 io.EOF。
func (s *stream[T]) recv() (chunk T, err error) {
	item, ok := <-s.items

	if !ok {
		item.err = io.EOF
	}

	return item.chunk, item.err
}

// send 发送一个数据项，接收端已关闭时返回 true。
func (s *stream[T]) send(chunk T, err error) (closed bool) {
	select {
	case <-s.closed:
		return true
	default:
	}

	item := streamItem[T]{chunk, err}

	select {
	case <-s.closed:
		return true
	case s.items <- item:
		return false
	}
}

func (s *stream[T]) closeSend() {
	close(s.items)
}

func (s *stream[T]) closeRecv() {
	s.closeRecvOnce.Do(func() {
		close(s.closed)
	})
}

// arrayReader 基于切片的读取器，按位置顺序读取。
type arrayReader[T any] struct {
	arr   []T
	index int
}

func (ar *arrayReader[T]) recv() (T, error) {
	if ar.index < len(ar.arr) {
		ret := ar.arr[ar.index]
		ar.index++

		return ret, nil
	}

	var t T
	return t, io.EOF
}

// copy 创建 n 个副本，共享底层切片但各自维护读取位置。
func (ar *arrayReader[T]) copy(n int) []*arrayReader[T] {
	ret := make([]*arrayReader[T], n)

	for i := 0; i < n; i++ {
		ret[i] = &arrayReader[T]{
			arr:   ar.arr,
			index: ar.index,
		}
	}

	return ret
}

func (ar *arrayReader[T]) toStream() *stream[T] {
	return arrToStream(ar.arr[ar.index:])
}

// multiStreamReader 同时从多个底层流读取数据。
type multiStreamReader[T any] struct {
	sts        []*stream[T]
	itemsCases []reflect.SelectCase
	nonClosed  []int
}

// newMultiStreamReader 创建多流读取器。
// 流数量超过 maxSelectNum 时退化为 reflect.Select。
func newMultiStreamReader[T any](sts []*stream[T]) *multiStreamReader[T] {
	var itemsCases []reflect.SelectCase
	if len(sts) > maxSelectNum {
		itemsCases = make([]reflect.SelectCase, len(sts))
		for i, st := range sts {
			itemsCases[i] = reflect.SelectCase{
				Dir:  reflect.SelectRecv,
				Chan: reflect.ValueOf(st.items),
			}
		}
	}

	nonClosed := make([]int, len(sts))
	for i := range sts {
		nonClosed[i] = i
	}

	return &multiStreamReader[T]{
		sts:        sts,
		itemsCases: itemsCases,
		nonClosed:  nonClosed,
	}
}

// recv 从任意一个未结束的源流接收数据。
// 某个源流结束时将其移出候选；全部结束后返回 io.EOF。
func (msr *multiStreamReader[T]) recv() (T, error) {
	for len(msr.nonClosed) > 0 {
		var chosen int
		var ok bool
		if len(msr.nonClosed) > maxSelectNum {
			var recv reflect.Value
			chosen, recv, ok = reflect.Select(msr.itemsCases)
			if ok {
				item := recv.Interface().(streamItem[T])
				return item.chunk, item.err
			}
			msr.itemsCases[chosen].Chan = reflect.Value{}
		} else {
			var item *streamItem[T]
			chosen, item, ok = receiveN(msr.nonClosed, msr.sts)
			if ok {
				return item.chunk, item.err
			}
		}

		for i := range msr.nonClosed {
			if msr.nonClosed[i] == chosen {
				msr.nonClosed = append(msr.nonClosed[:i], msr.nonClosed[i+1:]...)
				break
			}
		}
	}

	var t T
	return t, io.EOF
}

func (msr *multiStreamReader[T]) nonClosedStreams() []*stream[T] {
	ret := make([]*stream[T], len(msr.nonClosed))

	for i, idx := range msr.nonClosed {
		ret[i] = msr.sts[idx]
	}

	return ret
}

func (msr *multiStreamReader[T]) close() {
	for _, s := range msr.sts {
		s.closeRecv()
	}
}

func (msr *multiStreamReader[T]) toStream() *stream[T] {
	return toStream[T, *multiStreamReader[T]](msr)
}

// streamReaderWithConvert 带类型转换的流读取器。
type streamReaderWithConvert[T any] struct {
	sr      iStreamReader
	convert func(any) (T, error)
}

func newStreamReaderWithConvert[T any](origin iStreamReader, convert func(any) (T, error)) *StreamReader[T] {
	srw := &streamReaderWithConvert[T]{
		sr:      origin,
		convert: convert,
	}

	return &StreamReader[T]{
		typ: readerTypeWithConvert,
		srw: srw,
	}
}

// recv 接收并转换数据项，转换函数返回 ErrNoValue 时跳过该项。
func (srw *streamReaderWithConvert[T]) recv() (T, error) {
	for {
		out, err := srw.sr.recvAny()

		if err != nil {
			var t T
			return t, err
		}

		t, err := srw.convert(out)
		if err == nil {
			return t, nil
		}

		if !errors.Is(err, ErrNoValue) {
			return t, err
		}
	}
}

func (srw *streamReaderWithConvert[T]) close() {
	srw.sr.Close()
}

func (srw *streamReaderWithConvert[T]) toStream() *stream[T] {
	return toStream[T, *streamReaderWithConvert[T]](srw)
}

// parentStreamReader 管理一份数据源向多个子读取器的分发。
type parentStreamReader[T any] struct {
	sr *StreamReader[T]

	// subStreamList 每个子读取器当前指向的链表节点
	subStreamList []*cpStreamElement[T]

	closedNum uint32
}

// childStreamReader 子读取器，从父读取器按各自进度读取。
type childStreamReader[T any] struct {
	parent *parentStreamReader[T]
	index  int
}

// cpStreamElement 分发链表中的节点。
// once 保证数据源的每个数据项只被读取一次，之后节点内容只读，
// 各子读取器可以并发读取同一节点。
type cpStreamElement[T any] struct {
	once sync.Once
	next *cpStreamElement[T]
	item streamItem[T]
}

// peek 读取指定子读取器的下一个数据项。
// 同一子读取器不可并发调用，不同子读取器之间并发安全。
func (p *parentStreamReader[T]) peek(idx int) (t T, err error) {
	elem := p.subStreamList[idx]
	if elem == nil {
		return t, ErrRecvAfterClosed
	}

	elem.once.Do(func() {
		t, err = p.sr.Recv()
		elem.item = streamItem[T]{chunk: t, err: err}
		if err != io.EOF {
			elem.next = &cpStreamElement[T]{}
			p.subStreamList[idx] = elem.next
		}
	})

	t = elem.item.chunk
	err = elem.item.err
	if err != io.EOF {
		p.subStreamList[idx] = elem.next
	}

	return t, err
}

// close 关闭指定的子读取器，全部子读取器关闭后关闭数据源。
func (p *parentStreamReader[T]) close(idx int) {
	if p.subStreamList[idx] == nil {
		return // 重复关闭
	}
	p.subStreamList[idx] = nil

	curClosedNum := atomic.AddUint32(&p.closedNum, 1)

	if int(curClosedNum) == len(p.subStreamList) {
		p.sr.Close()
	}
}

func (csr *childStreamReader[T]) recv() (T, error) {
	return csr.parent.peek(csr.index)
}

func (csr *childStreamReader[T]) toStream() *stream[T] {
	return toStream[T, *childStreamReader[T]](csr)
}

func (csr *childStreamReader[T]) close() {
	csr.parent.close(csr.index)
}

// copyStreamReaders 基于单个数据源创建 n 个独立的子读取器。
func copyStreamReaders[T any](sr *StreamReader[T], n int) []*StreamReader[T] {
	cpsr := &parentStreamReader[T]{
		sr:            sr,
		subStreamList: make([]*cpStreamElement[T], n),
	}

	// 所有子读取器从同一个空尾节点出发，读到哪里链表长到哪里
	elem := &cpStreamElement[T]{}

	for i := range cpsr.subStreamList {
		cpsr.subStreamList[i] = elem
	}

	ret := make([]*StreamReader[T], n)
	for i := range ret {
		ret[i] = &StreamReader[T]{
			csr: &childStreamReader[T]{
				parent: cpsr,
				index:  i,
			},
			typ: readerTypeChild,
		}
	}

	return ret
}

// toStream 把读取器泵入一个新的底层流。
// 后台协程持续搬运数据，panic 转换为错误写入流，退出时清理资源。
func toStream[T any, Reader reader[T]](r Reader) *stream[T] {
	ret := newStream[T](5)

	go func() {
		defer func() {
			panicErr := recover()
			if panicErr != nil {
				e := safe.NewPanicErr(panicErr, debug.Stack())

				var chunk T
				_ = ret.send(chunk, e)
			}

			ret.closeSend()
			r.close()
		}()

		for {
			out, err := r.recv()
			if err == io.EOF {
				break
			}

			closed := ret.send(out, err)
			if closed {
				break
			}
		}
	}()

	return ret
}

// arrToStream 将切片一次性灌入流并关闭发送端。
func arrToStream[T any](arr []T) *stream[T] {
	s := newStream[T](len(arr))
	for i := range arr {
		s.send(arr[i], nil)
	}
	s.closeSend()

	return s
}
