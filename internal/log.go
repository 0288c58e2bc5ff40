package internal

import (
	"context"
	"fmt"
	"log"
	"os"
)

// Prefix creates a consistent `[i/n] "bucket" - ` prefix for logging progress
// while a command works through a batch of buckets. Bucket names longer than
// 30 runes are cut to 30 runes followed by "...".
//
// i and n are the zero-based ordinal and expected count.
func Prefix(i, n int, bucket string) string {
	return fmt.Sprintf(`[%d/%d] "%s" - `, i, n, truncateRight(bucket, 30, "..."))
}

// truncateRight shortens text to at most length runes, appending suffix when
// truncation actually happened.
func truncateRight(text string, length int, suffix string) string {
	r := []rune(text)
	if len(r) <= length {
		return text
	}
	return string(r[:length]) + suffix
}

type prefixKey struct{}
type loggerKey struct{}

// WithPrefixLogger creates a new logger using the given prefix, then attaches both the logger and prefix to context.
func WithPrefixLogger(ctx context.Context, prefix string) context.Context {
	logger := log.New(os.Stderr, prefix, 0)
	return context.WithValue(context.WithValue(ctx, prefixKey{}, prefix), loggerKey{}, logger)
}

// MustPrefix returns the prefix string attached to the given context.
func MustPrefix(ctx context.Context) string {
	return ctx.Value(prefixKey{}).(string)
}

// MustLogger returns the logger attached to the given context.
func MustLogger(ctx context.Context) *log.Logger {
	return ctx.Value(loggerKey{}).(*log.Logger)
}
