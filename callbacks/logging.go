package callbacks

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LoggingHandler 基于 logrus 的回调处理器，按步骤输出结构化日志。
type LoggingHandler struct {
	log *logrus.Logger
}

var _ Handler = (*LoggingHandler)(nil)

// NewLoggingHandler 创建日志回调处理器。
// logger 为 nil 时使用 logrus 标准 logger。
func NewLoggingHandler(logger *logrus.Logger) *LoggingHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &LoggingHandler{log: logger}
}

func (h *LoggingHandler) fields(info *RunInfo) logrus.Fields {
	return logrus.Fields{
		"run_id":    info.RunID,
		"name":      info.Name,
		"component": info.Component,
	}
}

func (h *LoggingHandler) OnStart(ctx context.Context, info *RunInfo, input any) context.Context {
	h.log.WithFields(h.fields(info)).Debug("step start")
	return ctx
}

func (h *LoggingHandler) OnEnd(ctx context.Context, info *RunInfo, output any) context.Context {
	h.log.WithFields(h.fields(info)).Debug("step end")
	return ctx
}

func (h *LoggingHandler) OnError(ctx context.Context, info *RunInfo, err error) context.Context {
	h.log.WithFields(h.fields(info)).WithError(err).Error("step error")
	return ctx
}
