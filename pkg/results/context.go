package results

import "context"

type contextKey string

const (
	runContextKey contextKey = "run_context"
	holderKey     contextKey = "holder"
)

// RunContext is the ambient state of the flow or task run in progress.
type RunContext struct {
	// Store is the run's result store
	Store *ResultStore

	// Defaults resolves default storage for stores and references created
	// during the run. Nil falls back to Store's defaults.
	Defaults *Defaults
}

// WithRunContext attaches rc to ctx.
func WithRunContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey, rc)
}

// RunContextFrom returns the run context attached to ctx.
func RunContextFrom(ctx context.Context) (*RunContext, bool) {
	rc, ok := ctx.Value(runContextKey).(*RunContext)
	return rc, ok && rc != nil
}

// CurrentStore returns the store of the run in progress, or a fresh store
// with default configuration when ctx carries no run.
func CurrentStore(ctx context.Context) *ResultStore {
	if rc, ok := RunContextFrom(ctx); ok && rc.Store != nil {
		return rc.Store
	}
	return NewResultStore(WithDefaults(defaultsFromContext(ctx)))
}

// defaultsFromContext returns the run's Defaults, or a resolver built from
// environment settings when ctx carries none.
func defaultsFromContext(ctx context.Context) *Defaults {
	if rc, ok := RunContextFrom(ctx); ok {
		if rc.Defaults != nil {
			return rc.Defaults
		}
		if rc.Store != nil && rc.Store.defaults != nil {
			return rc.Store.defaults
		}
	}
	return EnvironmentDefaults()
}

// WithHolder makes holder the lock holder for store calls made with ctx
// that don't name one.
func WithHolder(ctx context.Context, holder string) context.Context {
	return context.WithValue(ctx, holderKey, holder)
}

// HolderFrom returns the holder attached with WithHolder.
func HolderFrom(ctx context.Context) (string, bool) {
	h, ok := ctx.Value(holderKey).(string)
	return h, ok && h != ""
}

// resolveHolder picks the explicit holder, then ctx's, then DefaultHolder.
func resolveHolder(ctx context.Context, holder string) string {
	if holder != "" {
		return holder
	}
	if h, ok := HolderFrom(ctx); ok {
		return h
	}
	return DefaultHolder()
}
