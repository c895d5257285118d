package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SetupLogging 为子命令创建 zap logger：控制台输出到 stderr，同时写入本次运行的日志文件。
// dir 为空时使用 ~/.corep/logs。返回 logger、日志文件路径与关闭函数。
func SetupLogging(subcommand, level, dir string) (*zap.Logger, string, func(), error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, "", nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig()),
		zapcore.Lock(os.Stderr),
		lvl,
	)

	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return zap.New(console), "", func() {}, err
		}
		dir = filepath.Join(homeDir, ".corep", "logs")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return zap.New(console), "", func() {}, err
	}

	timestamp := time.Now().Format("20060102-150405")
	logPath := filepath.Join(dir, fmt.Sprintf("corep-%s-%s.log", subcommand, timestamp))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zap.New(console), "", func() {}, err
	}

	// 文件中始终记录 debug 级别，便于事后排查
	file := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(logFile),
		zapcore.DebugLevel,
	)

	logger := zap.New(zapcore.NewTee(console, file)).With(zap.String("command", subcommand))
	logger.Debug("log file", zap.String("path", logPath))

	cleanup := func() {
		_ = logger.Sync()
		_ = logFile.Close()
	}
	return logger, logPath, cleanup, nil
}

// consoleEncoderConfig 返回精简的控制台编码配置，省略时间与调用位置。
func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	cfg.CallerKey = ""
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}
