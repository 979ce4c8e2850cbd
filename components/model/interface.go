package model

import (
	"context"

	"runchain/schema"
)

// BaseChatModel 聊天模型的基础能力契约。
// 编排引擎只依赖这两个操作，具体供应商实现不在本仓库范围内。
type BaseChatModel interface {
	// Generate 一次性生成完整回复。
	Generate(ctx context.Context, input []*schema.Message, opts ...Option) (*schema.Message, error)
	// Stream 以增量块的形式流式生成回复。
	// 返回的流由调用方负责关闭。
	Stream(ctx context.Context, input []*schema.Message, opts ...Option) (*schema.StreamReader[*schema.Message], error)
}
