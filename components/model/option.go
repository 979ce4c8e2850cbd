package model

// Options 聊天模型调用的通用选项。
type Options struct {
	// Model 模型名称，覆盖实现的默认模型。
	Model *string
	// Temperature 采样温度。
	Temperature *float32
	// MaxTokens 输出 token 上限。
	MaxTokens *int
	// Stop 停止序列。
	Stop []string
}

// Option 聊天模型调用选项。
type Option func(*Options)

// WithModel 指定模型名称。
func WithModel(name string) Option {
	return func(o *Options) {
		o.Model = &name
	}
}

// WithTemperature 指定采样温度。
func WithTemperature(t float32) Option {
	return func(o *Options) {
		o.Temperature = &t
	}
}

// WithMaxTokens 指定输出 token 上限。
func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = &n
	}
}

// WithStop 指定停止序列。
func WithStop(stop []string) Option {
	return func(o *Options) {
		o.Stop = stop
	}
}

// GetCommonOptions 在 base 基础上应用调用选项并返回。
// base 为 nil 时从零值开始。模型实现据此读取通用选项。
func GetCommonOptions(base *Options, opts ...Option) *Options {
	if base == nil {
		base = &Options{}
	}

	for _, opt := range opts {
		opt(base)
	}

	return base
}
