package jobs

import (
	"context"
	"time"
)

// Every calls fn on each tick of interval until ctx is done. A non-positive interval disables it.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 || fn == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
