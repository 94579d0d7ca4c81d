// Package corectx provides the "core context" referenced throughout the
// storage substrate: a context.Context carrying cancellation plus an
// attached structured logger, following zerolog's own Ctx/WithContext
// pattern rather than a bespoke context type.
package corectx

import (
	"context"

	"github.com/facebook/sapling-sub046/pkg/log"
	"github.com/rs/zerolog"
)

// New returns a background context with logger attached, suitable as the
// root context for a repo's operations.
func New(logger zerolog.Logger) context.Context {
	return logger.WithContext(context.Background())
}

// WithLogger returns a copy of ctx with logger attached for retrieval via
// Logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// Logger returns the logger attached to ctx, or the global logger if none
// was attached.
func Logger(ctx context.Context) zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled && l == zerolog.DefaultContextLogger {
		return log.Logger
	}
	return *l
}

// Done reports whether ctx has been cancelled, without blocking.
func Done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
