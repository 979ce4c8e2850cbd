package compose

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
)

// StepError 标识编排执行中某个步骤的失败。
//
// 携带出错步骤的名称和位置：顺序链中的步骤用下标定位，
// 并行分支用键名定位。原始错误通过 Unwrap 获取，
// errors.Is / errors.As 可穿透到根因。
type StepError struct {
	stepName string

	// index 顺序链中出错步骤的下标；并行分支时为 -1。
	index int
	// key 并行分支的键名；顺序链步骤时为空。
	key string

	cause error
	stack []byte
}

// wrapStepError 把顺序链第 idx 步的失败包装为 StepError。
// err 已经是 StepError 时原样返回，保证最内层步骤的定位信息不被覆盖。
func wrapStepError(stepName string, idx int, err error) error {
	var se *StepError
	if errors.As(err, &se) {
		return err
	}

	return &StepError{
		stepName: stepName,
		index:    idx,
		key:      "",
		cause:    err,
		stack:    debug.Stack(),
	}
}

// wrapBranchError 把并行分支 key 的失败包装为 StepError。
// 与 wrapStepError 一样具有幂等性。
func wrapBranchError(stepName, key string, err error) error {
	var se *StepError
	if errors.As(err, &se) {
		return err
	}

	return &StepError{
		stepName: stepName,
		index:    -1,
		key:      key,
		cause:    err,
		stack:    debug.Stack(),
	}
}

func (e *StepError) Error() string {
	if e.key != "" {
		return fmt.Sprintf("step %q (branch key %q) failed: %v", e.stepName, e.key, e.cause)
	}

	return fmt.Sprintf("step %q (index %d) failed: %v", e.stepName, e.index, e.cause)
}

func (e *StepError) Unwrap() error {
	return e.cause
}

// StepName 返回出错步骤的名称，可能为空（如匿名 Lambda）。
func (e *StepError) StepName() string {
	return e.stepName
}

// Index 返回出错步骤在顺序链中的下标。
// 出错位置是并行分支时返回 false。
func (e *StepError) Index() (int, bool) {
	if e.index < 0 {
		return 0, false
	}
	return e.index, true
}

// BranchKey 返回出错并行分支的键名。
// 出错位置是顺序链步骤时返回 false。
func (e *StepError) BranchKey() (string, bool) {
	if e.key == "" {
		return "", false
	}
	return e.key, true
}

// Stack 返回包装时捕获的调用堆栈，用于诊断。
func (e *StepError) Stack() []byte {
	return e.stack
}

// newStreamReadError 包装流读取过程中出现的错误。
func newStreamReadError(err error) error {
	return fmt.Errorf("failed to read from stream: %w", err)
}

// newUnexpectedInputTypeErr 表示运行时传入的数据类型与步骤声明不符。
func newUnexpectedInputTypeErr(expected, got reflect.Type) error {
	return fmt.Errorf("unexpected input type, expected: %v, got: %v", expected, got)
}
