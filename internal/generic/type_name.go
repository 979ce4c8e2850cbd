package generic

import (
	"reflect"
	"regexp"
	"runtime"
	"strings"
)

var (
	regOfAnonymousFunc = regexp.MustCompile(`^func[0-9]+`)
	regOfNumber        = regexp.MustCompile(`^\d+$`)
)

// ParseTypeName 返回值的类型名称。
// 指针类型自动解引用；函数类型取函数名，匿名函数返回空字符串。
//
// 示例:
//
//	ParseTypeName(reflect.ValueOf(&User{}))        // "User"
//	ParseTypeName(reflect.ValueOf(user.GetUser))   // "GetUser"
//	ParseTypeName(reflect.ValueOf(func(){}))       // ""
func ParseTypeName(val reflect.Value) string {
	typ := val.Type()

	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}

	if typ.Kind() == reflect.Func {
		funcName := runtime.FuncForPC(val.Pointer()).Name()
		idx := strings.LastIndex(funcName, ".")
		if idx < 0 {
			return funcName
		}

		name := funcName[idx+1:]

		// 匿名函数和编译器生成的序号没有可读性，不作为名称
		if regOfAnonymousFunc.MatchString(name) {
			return ""
		}

		if regOfNumber.MatchString(name) {
			return ""
		}

		return name
	}

	return typ.Name()
}
