package email

import (
	"context"
	"time"
)

// newEmailContext keeps parent's values but not its cancellation, so a send
// outlives the request that triggered it. stop still aborts the send.
func newEmailContext(parent, stop context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	if stop == nil {
		return ctx, cancel
	}
	unregister := context.AfterFunc(stop, cancel)
	return ctx, func() {
		unregister()
		cancel()
	}
}
