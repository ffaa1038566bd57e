package quality

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hanifka/lentera/domain/repositories"
)

// HTTPProber estimates round-trip time with lightweight HEAD requests
// against a probe endpoint. Downlink throughput is not measured here; the
// host may push richer samples through Observe when it has them.
type HTTPProber struct {
	endpoint string
	client   *http.Client
	downlink float64
}

// NewHTTPProber creates a prober. downlinkMbps is the assumed downlink
// when only RTT can be measured; pass 0 to report telemetry as unknown.
func NewHTTPProber(endpoint string, downlinkMbps float64) *HTTPProber {
	return &HTTPProber{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 3 * time.Second},
		downlink: downlinkMbps,
	}
}

// Sample measures one RTT observation.
func (p *HTTPProber) Sample(ctx context.Context) (repositories.NetworkSample, error) {
	if p.endpoint == "" {
		return repositories.NetworkSample{}, fmt.Errorf("no probe endpoint configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.endpoint, nil)
	if err != nil {
		return repositories.NetworkSample{}, fmt.Errorf("failed to build probe request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return repositories.NetworkSample{}, fmt.Errorf("probe request failed: %w", err)
	}
	resp.Body.Close()
	rtt := time.Since(start)

	if p.downlink <= 0 {
		return repositories.NetworkSample{}, fmt.Errorf("downlink estimate not configured")
	}
	return repositories.NetworkSample{
		DownlinkMbps: p.downlink,
		RTT:          rtt,
		Known:        true,
	}, nil
}

// Updates returns nil; the prober is poll-only.
func (p *HTTPProber) Updates() <-chan repositories.NetworkSample {
	return nil
}
