package publish

import (
	"context"
	"time"
)

// SetSleep replaces the wait used for delays and retries
func SetSleep(c *Cargo, sleep func(ctx context.Context, d time.Duration) error) {
	c.sleep = sleep
}
