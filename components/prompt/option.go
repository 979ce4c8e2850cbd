package prompt

import "runchain/schema"

// options 模板渲染选项。
type options struct {
	// FormatType 渲染时使用的格式化类型，覆盖模板的默认值。
	FormatType schema.FormatType
}

// Option 模板渲染选项。
type Option func(*options)

// WithFormatType 覆盖本次渲染使用的格式化类型。
func WithFormatType(formatType schema.FormatType) Option {
	return func(o *options) {
		o.FormatType = formatType
	}
}

func getOptions(defaultFormatType schema.FormatType, opts ...Option) *options {
	o := &options{
		FormatType: defaultFormatType,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}
