package logger

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the application logger writing to writer.
// format is "json" (default) or "console"; level is a zap level name.
func New(writer io.Writer, level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	// Keep key names consistent across formats.
	encCfg.TimeKey = "timestamp"
	encCfg.LevelKey = "level"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch format {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(writer), lvl)
	return zap.New(core), nil
}
