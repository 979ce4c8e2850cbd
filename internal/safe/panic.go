package safe

import "fmt"

// panicErr 包装 panic 信息和捕获时的堆栈。
type panicErr struct {
	info  any
	stack []byte
}

func (p *panicErr) Error() string {
	return fmt.Sprintf("panic error: %v, \nstack: %s", p.info, string(p.stack))
}

// NewPanicErr 将 recover() 的结果和堆栈包装为 error。
// 用于后台协程中把 panic 转换为可沿流传播的错误。
func NewPanicErr(info any, stack []byte) error {
	return &panicErr{
		info:  info,
		stack: stack,
	}
}
