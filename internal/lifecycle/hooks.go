package lifecycle

import "context"

// Hook is one named unit of shutdown work. Hooks run concurrently and
// receive the shutdown deadline through ctx.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}
