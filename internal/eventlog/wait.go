package eventlog

import (
	"context"
	"time"
)

// WaitForAppend blocks until the next Append commits, the timeout elapses or
// ctx ends. It reports whether an append woke it. A non-positive timeout
// waits on ctx alone.
func (l *Log) WaitForAppend(ctx context.Context, timeout time.Duration) bool {
	l.mu.Lock()
	ch := l.notify
	l.mu.Unlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}
