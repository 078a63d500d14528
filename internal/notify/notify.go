// Package notify delivers run notifications to the downstream processing
// pipeline. The production implementation is a WebSocket producer that sends
// one text message per run, carrying the absolute run-file path.
package notify

import "context"

// Notifier is the single-method observer the detection engine calls once per
// emitted run. Implementations are injected at construction; the engine
// never constructs its own transport.
type Notifier interface {
	// Notify delivers one run notification. A non-nil error means the run
	// was not delivered; callers decide whether that is fatal.
	Notify(ctx context.Context, path string) error
}

// Func adapts a plain function to the Notifier interface. Used in tests and
// for simple in-process consumers.
type Func func(ctx context.Context, path string) error

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, path string) error {
	return f(ctx, path)
}
