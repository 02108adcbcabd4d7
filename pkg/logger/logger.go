package logger

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pricewatch/conf"
)

// 未初始化时使用 Nop logger，测试中无需额外配置
var (
	log   = zap.NewNop()
	sugar = log.Sugar()
)

// Field 日志字段
type Field = zap.Field

// Pair 构造一个 key/value 日志字段
func Pair(key string, value any) Field {
	return zap.Any(key, value)
}

// Err 构造 error 字段
func Err(err error) Field {
	return zap.Error(err)
}

// InitLogger 按配置初始化全局 logger：文件按大小切割，可选同时输出到控制台
func InitLogger(cfg *conf.LogConfig, appName string) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = "2006-01-02 15:04:05.000"
	}
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeFormat)
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var cores []zapcore.Core
	if cfg.FileName != "" {
		_ = os.MkdirAll(filepath.Dir(cfg.FileName), 0o755)
		writer := &lumberjack.Logger{
			Filename:   cfg.FileName,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  cfg.LocalTime,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(writer), level))
	}
	if cfg.Console || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), level))
	}

	log = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("app", appName))
	sugar = log.Sugar()
}

// Sync 刷新缓冲区，进程退出前调用
func Sync() {
	_ = log.Sync()
}

func Debug(msg string, fields ...Field) {
	log.Debug(msg, fields...)
}

func Info(msg string, fields ...Field) {
	log.Info(msg, fields...)
}

func Warn(msg string, fields ...Field) {
	log.Warn(msg, fields...)
}

func Error(msg string, fields ...Field) {
	log.Error(msg, fields...)
}

func Fatal(msg string, fields ...Field) {
	log.Fatal(msg, fields...)
}

func Debugf(format string, args ...any) {
	sugar.Debugf(format, args...)
}

func Infof(format string, args ...any) {
	sugar.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	sugar.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	sugar.Errorf(format, args...)
}

func Fatalf(format string, args ...any) {
	sugar.Fatalf(format, args...)
}
