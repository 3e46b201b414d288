package offline

import (
	"context"
	"log"
	"time"
)

// Pinger reports whether the server can be reached.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WatchConnectivity pings the server every interval and signals on the
// returned channel each time a ping succeeds after a failed one. The channel
// is closed once ctx is done.
func WatchConnectivity(ctx context.Context, pinger Pinger, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	online := make(chan struct{}, 1)

	go func() {
		defer close(online)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		reachable := true
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := pinger.Ping(pingCtx)
			cancel()
			switch {
			case err != nil && reachable:
				log.Printf("[sync] server unreachable: %v", err)
				reachable = false
			case err == nil && !reachable:
				log.Println("[sync] server reachable again")
				reachable = true
				select {
				case online <- struct{}{}:
				default:
				}
			}
		}
	}()
	return online
}
