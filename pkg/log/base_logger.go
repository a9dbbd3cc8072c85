package log

import (
	"context"
	stdlog "log"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/datawire/dlib/dlog"
)

// MakeBaseLogger configures the process-wide logrus logger and returns a context that logs
// through it. When logFile is non-empty the output is rotated with lumberjack; anything the
// standard library logs is redirected to the same place.
func MakeBaseLogger(ctx context.Context, logLevel, logFile string) context.Context {
	logrusLogger := logrus.StandardLogger()
	logrusLogger.SetFormatter(NewFormatter("2006-01-02 15:04:05.0000"))

	if logFile != "" {
		stdlog.SetOutput(logrusLogger.Writer())
		logrusLogger.SetOutput(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10,   // megabytes
			MaxBackups: 3,    // in the same directory
			MaxAge:     60,   // days
			LocalTime:  true, // rotated logfiles use local time names
		})
	}

	SetLogrusLevel(logrusLogger, logLevel, false)

	logger := dlog.WrapLogrus(logrusLogger)
	dlog.SetFallbackLogger(logger)
	ctx = dlog.WithLogger(ctx, logger)
	return WithLevelSetter(ctx, logrusLogger)
}
