package flog

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config 日志配置
type Config struct {
	// Level debug/info/warn/error
	Level string `koanf:"level" json:"level" yaml:"level"`
	// Format json 或 console
	Format string `koanf:"format" json:"format" yaml:"format"`
	// Output stdout、stderr 或文件路径
	Output string `koanf:"output" json:"output" yaml:"output"`
	// Rotation 仅对文件输出生效
	Rotation RotationConfig `koanf:"rotation" json:"rotation" yaml:"rotation"`
}

// RotationConfig 日志文件轮转设置
type RotationConfig struct {
	MaxSize    int  `koanf:"max_size" json:"max_size" yaml:"max_size"`       // 单个文件最大尺寸(MB)
	MaxBackups int  `koanf:"max_backups" json:"max_backups" yaml:"max_backups"` // 最多保留文件个数
	MaxAge     int  `koanf:"max_age" json:"max_age" yaml:"max_age"`          // 保留天数
	Compress   bool `koanf:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig 默认输出到标准输出
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: FormatConsole,
		Output: "stdout",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// New 根据配置创建 zap.Logger
func New(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	writer, err := newWriter(cfg)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), writer, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func newEncoder(format string) zapcore.Encoder {
	ec := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "module",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == FormatJSON {
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(ec)
}

func newWriter(cfg Config) (zapcore.WriteSyncer, error) {
	switch cfg.Output {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	}), nil
}
