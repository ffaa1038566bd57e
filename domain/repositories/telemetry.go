package repositories

import (
	"context"
	"time"
)

// NetworkSample is one observation of network conditions. Known is false
// when telemetry is unavailable; that is a capability absence, not an
// error.
type NetworkSample struct {
	DownlinkMbps float64
	RTT          time.Duration
	Known        bool
}

// NetworkTelemetry samples network conditions for the quality controller,
// either on demand or via change notifications.
type NetworkTelemetry interface {
	Sample(ctx context.Context) (NetworkSample, error)
	// Updates yields change notifications. May return nil when the
	// implementation only supports polling.
	Updates() <-chan NetworkSample
}
