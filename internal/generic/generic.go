package generic

import "reflect"

// TypeOf 返回 T 的 reflect.Type。
// 不同于 reflect.TypeOf，对接口类型返回接口本身而非 nil。
//
// 示例:
//
//	TypeOf[int]()    // int
//	TypeOf[*int]()   // *int
//	TypeOf[error]()  // error（接口类型）
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// PtrOf 返回传入值的指针。
// 用于配置结构体中需要区分"未设置"和"零值"的可选字段。
func PtrOf[T any](v T) *T {
	return &v
}

// CopyMap 创建 map 的浅副本。
// 新 map 与原 map 相互独立，增删键不会相互影响。
func CopyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
