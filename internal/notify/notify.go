// Package notify defines the fire-and-forget sink for human-readable
// success/failure events emitted by the adjustment coordinator and the
// lifecycle controller.
package notify

// Sink receives user-facing event text. Implementations must not block
// and must not return control-flow information; callers never branch on a
// notification.
type Sink interface {
	Successf(format string, args ...any)
	Failuref(format string, args ...any)
}

// Discard is a Sink that drops everything. Used by tests and by the MCP
// server, where tool results already carry the outcome.
var Discard Sink = discard{}

type discard struct{}

func (discard) Successf(string, ...any) {}
func (discard) Failuref(string, ...any) {}
