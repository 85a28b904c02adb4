package perception

import (
	"context"
	"fmt"
	"runtime/debug"
)

// PanicError wraps a panic raised by a perception pipeline.
type PanicError struct {
	Value      interface{}
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("perception panic: %v", e.Value)
}

// perceiveSafely runs the pipeline and turns a panic into a *PanicError.
func perceiveSafely(ctx context.Context, p Pipeline, tick Tick) (percept Percept, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, StackTrace: string(debug.Stack())}
		}
	}()
	return p.Perceive(ctx, tick)
}
