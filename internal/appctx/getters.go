package appctx

import (
	"context"

	"github.com/rs/zerolog"
)

// GetString returns the string value stored under key, or an error if it is
// absent or of the wrong type.
func GetString(ctx context.Context, key CTXKey) (string, error) {
	v := ctx.Value(key)
	if v == nil {
		return "", ErrNotInContext
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrValueWrongType
	}
	return s, nil
}

// GetBool returns the bool value stored under key, defaulting to false if absent.
func GetBool(ctx context.Context, key CTXKey) bool {
	v, ok := ctx.Value(key).(bool)
	return ok && v
}

// GetInt returns the int value stored under key, and whether it was present.
func GetInt(ctx context.Context, key CTXKey) (int, bool) {
	v, ok := ctx.Value(key).(int)
	return v, ok
}

// GetLogger returns the *zerolog.Logger attached to ctx under LoggerCTXKey,
// falling back to zerolog.Ctx(ctx): a logger attached with
// zerolog.Logger.WithContext, or zerolog's disabled logger if none was
// attached.
func GetLogger(ctx context.Context) *zerolog.Logger {
	if l, ok := ctx.Value(LoggerCTXKey).(*zerolog.Logger); ok && l != nil {
		return l
	}
	l := zerolog.Ctx(ctx)
	return l
}

// WithLogger returns a copy of ctx with logger attached under LoggerCTXKey,
// mirroring zerolog's own WithContext so both lookup paths agree.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	ctx = logger.WithContext(ctx)
	return context.WithValue(ctx, LoggerCTXKey, logger)
}
