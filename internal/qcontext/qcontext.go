// Package qcontext attaches structured loggers to a context.Context, the
// way the registry's context package threads a request-scoped logger
// through handler chains.
package qcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

type loggerKey struct{}

var background = logrus.NewEntry(logrus.StandardLogger())

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithFields returns a copy of ctx whose logger has the given fields merged
// in, inheriting from any logger already attached to ctx.
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return WithLogger(ctx, GetLogger(ctx).WithFields(fields))
}

// GetLogger returns the logger attached to ctx, or a background logger if
// none was attached.
func GetLogger(ctx context.Context) *logrus.Entry {
	if l, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		return l
	}
	return background
}
