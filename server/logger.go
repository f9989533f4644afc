package server

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger 日志写入本地滚动文件，console 为 true 时同时输出到 stderr。
// 返回的 logger 由调用方持有并注入到各组件。
func NewLogger(filePath string, console bool) (*zap.SugaredLogger, error) {
	// 10MB 每文件，保留 3 个备份，最多 7 天
	lj := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   false,
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
	encoder := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(lj), zapcore.DebugLevel)}
	if console {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapcore.InfoLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return logger.Sugar(), nil
}
