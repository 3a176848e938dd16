// Package sink forwards engine projection events to outside observers.
package sink

import "log/slog"

// EmitFunc receives one projection event. Implementations are called with
// the engine lock held and must return promptly.
type EmitFunc func(name string, data any)

// Fanout returns an EmitFunc that calls each non-nil fn in order.
func Fanout(fns ...EmitFunc) EmitFunc {
	var live []EmitFunc
	for _, fn := range fns {
		if fn != nil {
			live = append(live, fn)
		}
	}
	return func(name string, data any) {
		for _, fn := range live {
			func() {
				defer func() {
					if r := recover(); r != nil {
						slog.Error("projection sink panic", "event", name, "panic", r)
					}
				}()
				fn(name, data)
			}()
		}
	}
}
