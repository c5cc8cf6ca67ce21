package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options 控制日志输出；OutputPaths 为空时写 stdout。
type Options struct {
	Level       string
	Debug       bool
	OutputPaths []string
}

// NewWithOptions 构建 console 格式的 zap logger；Debug 打开调用方位置与开发模式输出。
func NewWithOptions(opts Options) (*zap.Logger, error) {
	cfg := newConfig(opts)
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

func newConfig(opts Options) zap.Config {
	var cfg zap.Config
	if opts.Debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = true
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableCaller = true
		cfg.DisableStacktrace = true
		cfg.Sampling = nil
	}
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stdout"}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))
	return cfg
}

// ParseLevel 把配置里的级别字符串转成 zap 级别，无法识别时回落到 info。
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
