// Package logging provides the process logger and request-scoped entries.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Service     string
	Environment string
	Level       string
	// File enables size-based rotation through lumberjack. Logs also go to
	// stderr.
	File string
}

var base = logrus.New()

type requestIDKey struct{}

// Init configures the process logger. JSON output is used outside
// development so log shippers can parse fields.
func Init(opt Options) *logrus.Logger {
	level, err := logrus.ParseLevel(strings.ToLower(opt.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if opt.Environment == "production" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stderr
	if opt.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opt.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	base.SetOutput(out)

	base.ReplaceHooks(make(logrus.LevelHooks))
	if opt.Service != "" {
		base.AddHook(serviceHook(opt.Service))
	}
	return base
}

// L returns the process logger.
func L() *logrus.Logger { return base }

// WithRequestID stores the request id for FromContext.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// RequestID extracts the request id from ctx, or "" if none was set.
func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

// FromContext returns an entry tagged with the request id when one is known.
func FromContext(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(base)
	if ctx == nil {
		return entry
	}
	if rid := RequestID(ctx); rid != "" {
		entry = entry.WithField("request_id", rid)
	}
	return entry
}

// Op is shorthand for FromContext(ctx).WithField("operation", operation).
func Op(ctx context.Context, operation string) *logrus.Entry {
	return FromContext(ctx).WithField("operation", operation)
}

type serviceHook string

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = string(h)
	}
	return nil
}
