package results

import (
	"context"
	"log/slog"
)

// SlogObserver implements Observer using Go's structured logging (log/slog).
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	observer := results.NewSlogObserver(logger, slog.LevelInfo)
//	store := results.NewResultStore(results.WithObserver(observer))
type SlogObserver struct {
	logger   *slog.Logger
	minLevel slog.Level
}

// NewSlogObserver creates an observer that logs to the given slog.Logger.
// Only events at or above minLevel will be logged.
func NewSlogObserver(logger *slog.Logger, minLevel slog.Level) *SlogObserver {
	return &SlogObserver{
		logger:   logger,
		minLevel: minLevel,
	}
}

func (o *SlogObserver) OnRead(ctx context.Context, event *ReadEvent) {
	if event.Error != nil {
		if o.minLevel <= slog.LevelWarn {
			o.logger.WarnContext(ctx, "result read failed",
				slog.String("key", event.Key),
				slog.Bool("split", event.Split),
				slog.Duration("duration", event.Duration),
				slog.String("error", event.Error.Error()),
			)
		}
		return
	}
	if o.minLevel <= slog.LevelDebug {
		o.logger.DebugContext(ctx, "result read",
			slog.String("key", event.Key),
			slog.Bool("split", event.Split),
			slog.Duration("duration", event.Duration),
		)
	}
}

func (o *SlogObserver) OnWrite(ctx context.Context, event *WriteEvent) {
	if event.Error != nil {
		if o.minLevel <= slog.LevelError {
			o.logger.ErrorContext(ctx, "result write failed",
				slog.String("key", event.Key),
				slog.Bool("split", event.Split),
				slog.Duration("duration", event.Duration),
				slog.String("error", event.Error.Error()),
			)
		}
		return
	}
	if o.minLevel <= slog.LevelInfo {
		o.logger.InfoContext(ctx, "result written",
			slog.String("key", event.Key),
			slog.Bool("split", event.Split),
			slog.Int("bytes", event.Bytes),
			slog.Duration("duration", event.Duration),
		)
	}
}

func (o *SlogObserver) OnExists(ctx context.Context, event *ExistsEvent) {
	if o.minLevel <= slog.LevelDebug {
		o.logger.DebugContext(ctx, "result exists check",
			slog.String("key", event.Key),
			slog.Bool("exists", event.Exists),
			slog.Duration("latency", event.Latency),
		)
	}
}

func (o *SlogObserver) OnLockWait(ctx context.Context, event *LockWaitEvent) {
	if event.Error != nil || !event.Released {
		if o.minLevel <= slog.LevelWarn {
			attrs := []any{
				slog.String("key", event.Key),
				slog.Bool("released", event.Released),
				slog.Duration("waited", event.Waited),
			}
			if event.Error != nil {
				attrs = append(attrs, slog.String("error", event.Error.Error()))
			}
			o.logger.WarnContext(ctx, "lock wait did not complete", attrs...)
		}
		return
	}
	if o.minLevel <= slog.LevelDebug {
		o.logger.DebugContext(ctx, "lock wait",
			slog.String("key", event.Key),
			slog.Duration("waited", event.Waited),
		)
	}
}

func (o *SlogObserver) OnReferenceCache(ctx context.Context, event *ReferenceCacheEvent) {
	if o.minLevel <= slog.LevelDebug {
		o.logger.DebugContext(ctx, "reference resolve",
			slog.String("storage_key", event.StorageKey),
			slog.Bool("hit", event.Hit),
			slog.Bool("ignore_cache", event.IgnoreCache),
		)
	}
}
