package internal

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"runchain/internal/generic"
)

// concatFuncs 按类型注册的流块合并函数表。
// 字符串拼接；数值、布尔和时间取最后一个块。
var concatFuncs = map[reflect.Type]any{
	generic.TypeOf[string]():        concatStrings,
	generic.TypeOf[int8]():          useLast[int8],
	generic.TypeOf[int16]():         useLast[int16],
	generic.TypeOf[int32]():         useLast[int32],
	generic.TypeOf[int64]():         useLast[int64],
	generic.TypeOf[int]():           useLast[int],
	generic.TypeOf[uint8]():         useLast[uint8],
	generic.TypeOf[uint16]():        useLast[uint16],
	generic.TypeOf[uint32]():        useLast[uint32],
	generic.TypeOf[uint64]():        useLast[uint64],
	generic.TypeOf[uint]():          useLast[uint],
	generic.TypeOf[bool]():          useLast[bool],
	generic.TypeOf[float32]():       useLast[float32],
	generic.TypeOf[float64]():       useLast[float64],
	generic.TypeOf[time.Time]():     useLast[time.Time],
	generic.TypeOf[time.Duration](): useLast[time.Duration],
}

// concatStrings 拼接字符串切片。
func concatStrings(ss []string) (string, error) {
	var n int
	for _, s := range ss {
		n += len(s)
	}

	var b strings.Builder
	b.Grow(n)
	for _, s := range ss {
		if _, err := b.WriteString(s); err != nil {
			return "", err
		}
	}

	return b.String(), nil
}

// useLast 返回切片的最后一个元素。
func useLast[T any](s []T) (T, error) {
	return s[len(s)-1], nil
}

// RegisterStreamChunkConcatFunc 注册类型 T 的流块合并函数。
// 应在进程初始化阶段调用，非并发安全。
func RegisterStreamChunkConcatFunc[T any](fn func([]T) (T, error)) {
	concatFuncs[generic.TypeOf[T]()] = fn
}

// GetConcatFunc 获取指定类型的合并函数，未注册时返回 nil。
// 返回值以 reflect.Value 形式工作，供类型擦除后的调用方使用。
func GetConcatFunc(typ reflect.Type) func(reflect.Value) (reflect.Value, error) {
	if fn, ok := concatFuncs[typ]; ok {
		return func(a reflect.Value) (reflect.Value, error) {
			rvs := reflect.ValueOf(fn).Call([]reflect.Value{a})
			var err error
			if !rvs[1].IsNil() {
				err = rvs[1].Interface().(error)
			}
			return rvs[0], err
		}
	}

	return nil
}

// ConcatItems 将多个元素合并为单个元素。
//
// map 类型：相同 key 的值递归合并；其他类型：使用注册的合并函数，
// 未注册时仅允许一个非零值元素。调用方需保证 len(items) > 1。
func ConcatItems[T any](items []T) (T, error) {
	typ := generic.TypeOf[T]()
	v := reflect.ValueOf(items)

	var cv reflect.Value
	var err error

	if typ.Kind() == reflect.Map {
		cv, err = concatMaps(v)
	} else {
		cv, err = concatSliceValue(v)
	}

	if err != nil {
		var t T
		return t, err
	}

	return cv.Interface().(T), nil
}

// concatMaps 合并多个 map。
// 先把相同 key 的值收集到一起，再按元素类型递归合并。
func concatMaps(ms reflect.Value) (reflect.Value, error) {
	typ := ms.Type().Elem()

	rms := reflect.MakeMap(reflect.MapOf(typ.Key(), generic.TypeOf[[]any]()))
	ret := reflect.MakeMap(typ)

	n := ms.Len()
	for i := 0; i < n; i++ {
		m := ms.Index(i)

		for _, key := range m.MapKeys() {
			vals := rms.MapIndex(key)
			if !vals.IsValid() {
				var s []any
				vals = reflect.ValueOf(s)
			}

			vals = reflect.Append(vals, m.MapIndex(key))
			rms.SetMapIndex(key, vals)
		}
	}

	for _, key := range rms.MapKeys() {
		anyVals := rms.MapIndex(key).Interface().([]any)
		if len(anyVals) == 1 {
			ele := anyVals[0]
			if ele == nil {
				// SetMapIndex 遇到无效值会删除 key，这里显式写入零值
				ret.SetMapIndex(key, reflect.Zero(typ.Elem()))
				continue
			}

			ret.SetMapIndex(key, reflect.ValueOf(ele))
			continue
		}

		v, err := toSliceValue(anyVals)
		if err != nil {
			return reflect.Value{}, err
		}

		var cv reflect.Value

		if v.Type().Elem().Kind() == reflect.Map {
			cv, err = concatMaps(v)
		} else {
			cv, err = concatSliceValue(v)
		}

		if err != nil {
			return reflect.Value{}, err
		}

		ret.SetMapIndex(key, cv)
	}

	return ret, nil
}

// concatSliceValue 合并切片元素为单个值。
func concatSliceValue(val reflect.Value) (reflect.Value, error) {
	elmType := val.Type().Elem()

	if val.Len() == 1 {
		return val.Index(0), nil
	}

	if f := GetConcatFunc(elmType); f != nil {
		return f(val)
	}

	// 未注册合并函数时只允许一个非零值元素
	var filtered reflect.Value
	for i := 0; i < val.Len(); i++ {
		oneVal := val.Index(i)
		if !oneVal.IsZero() {
			if filtered.IsValid() {
				return reflect.Value{}, fmt.Errorf("cannot concat multiple non-zero value of type %s", elmType)
			}

			filtered = oneVal
		}
	}

	if !filtered.IsValid() {
		return reflect.Zero(elmType), nil
	}

	return filtered, nil
}

// toSliceValue 将 []any 还原为元素实际类型的切片。
// 要求所有元素类型一致。
func toSliceValue(vs []any) (reflect.Value, error) {
	if len(vs) == 0 {
		return reflect.Value{}, fmt.Errorf("cannot make slice from empty value list")
	}

	typ := reflect.TypeOf(vs[0])

	ret := reflect.MakeSlice(reflect.SliceOf(typ), len(vs), len(vs))

	for i, v := range vs {
		vt := reflect.TypeOf(v)
		if vt != typ {
			return reflect.Value{}, fmt.Errorf("cannot make slice, element type not same: %v, %v", typ, vt)
		}

		ret.Index(i).Set(reflect.ValueOf(v))
	}

	return ret, nil
}
