// logging.go - structured logging setup, replacing the teacher's bare
// fmt.Printf calls (video_compositor.go) with a leveled zap logger
// backed by a rotating file writer, following ausocean/av's
// observability stack.

package main

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newZapLogger(writer io.Writer) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(writer),
		zap.InfoLevel,
	)
	return zap.New(core).Sugar()
}
