// Package logger builds the zap logger shared by every binary.
package logger

import (
	"os"

	"github.com/richardliu001/reliability-core/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// New builds a logger that tees to stdout and, if cfg.FilePath is set, to a
// lumberjack-rotated file, so every worker binary's logs survive process
// restarts without growing unbounded on disk.
func New(cfg config.LoggerConfig) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(orDefault(cfg.Level, "info"))
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), level),
	}
	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefaultInt(cfg.MaxSizeMB, 100),
			MaxBackups: orDefaultInt(cfg.MaxBackups, 5),
			MaxAge:     orDefaultInt(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()).Sugar(), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
