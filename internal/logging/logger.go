package logging

import (
	"strings"
	"time"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const sentryFlushTimeout = 2 * time.Second

// Options configure NewLogger. SentryDSN is optional; when set, error-level
// entries are shipped to Sentry with lower levels kept as breadcrumbs.
type Options struct {
	Level       string
	SentryDSN   string
	Environment string
	Release     string
}

// NewLogger returns a zap logger configured for structured production logging
// and a flush function to call before exit.
func NewLogger(opts Options) (*zap.Logger, func(), error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))

	logger, err := cfg.Build()
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(opts.SentryDSN) == "" {
		return logger, func() { _ = logger.Sync() }, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         opts.SentryDSN,
		Environment: opts.Environment,
		Release:     opts.Release,
	})
	if err != nil {
		return nil, nil, err
	}
	core, err := zapsentry.NewCore(zapsentry.Configuration{
		Level:             zapcore.ErrorLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   zapcore.InfoLevel,
		Tags:              map[string]string{"component": "happijack-api"},
	}, zapsentry.NewSentryClientFromClient(client))
	if err != nil {
		return nil, nil, err
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)
	flush := func() {
		_ = logger.Sync()
		client.Flush(sentryFlushTimeout)
	}
	return logger, flush, nil
}

// ParseLevel maps a config string to a zap level. Unknown values mean info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
