package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	ginlog "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	logrus "github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

// Setup initializes Logrus with a rotating file and returns the writer so the
// access log can share it. An empty file or "-" sends logs to stdout only.
func Setup(file, level string) io.Writer {
	var out io.Writer = os.Stdout
	if file != "" && file != "-" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			logrus.WithError(err).Warn("Could not create log directory, logging to stdout")
		} else {
			rotator := &lumberjack.Logger{
				Filename:   file,
				MaxSize:    10, // megabytes
				MaxBackups: 7,
				MaxAge:     7, // days
				Compress:   true,
			}
			out = io.MultiWriter(os.Stdout, rotator)
		}
	}

	logrus.SetOutput(out)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
		logrus.WithField("level", level).Warn("Unknown LOG_LEVEL, using info")
	}
	logrus.SetLevel(lvl)
	return out
}

// GormLogger routes GORM's SQL logging through Logrus. Slow queries are
// reported as warnings; statements are only logged at debug level.
func GormLogger() gormlogger.Interface {
	level := gormlogger.Warn
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		level = gormlogger.Info
	}
	return gormlogger.New(logrus.StandardLogger(), gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// RequestIDHeader carries the request correlation ID.
const RequestIDHeader = "X-Request-ID"

// AccessLog is the per request access log. Health checks and metric scrapes
// are not logged.
func AccessLog(out io.Writer) gin.HandlerFunc {
	return ginlog.SetLogger(
		ginlog.WithWriter(out),
		ginlog.WithUTC(true),
		ginlog.WithSkipPath([]string{"/health", "/metrics"}),
		ginlog.WithLogger(func(c *gin.Context, l zerolog.Logger) zerolog.Logger {
			if id := c.Writer.Header().Get(RequestIDHeader); id != "" {
				return l.With().Str("request_id", id).Logger()
			}
			return l
		}),
	)
}
