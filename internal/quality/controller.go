package quality

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hanifka/lentera/domain/entities"
	"github.com/hanifka/lentera/domain/repositories"
)

// Profile is one outbound cadence setting. Frame rate and compression only
// ever change as a pair.
type Profile struct {
	FrameRate   float64
	Compression float64
}

// Fixed tier lookup.
var tierProfiles = map[entities.NetworkTier]Profile{
	entities.TierPoor:     {FrameRate: 0.5, Compression: 0.4},
	entities.TierModerate: {FrameRate: 1.5, Compression: 0.5},
	entities.TierGood:     {FrameRate: 2.5, Compression: 0.65},
}

// DefaultManualProfile is the fallback cadence when telemetry is
// unavailable.
var DefaultManualProfile = Profile{FrameRate: 1.0, Compression: 0.5}

// Classify maps one telemetry sample to a tier by fixed thresholds.
func Classify(sample repositories.NetworkSample) entities.NetworkTier {
	if !sample.Known {
		return entities.TierUnknown
	}
	switch {
	case sample.DownlinkMbps < 1.5 || sample.RTT > 500*time.Millisecond:
		return entities.TierPoor
	case sample.DownlinkMbps < 5 || sample.RTT > 150*time.Millisecond:
		return entities.TierModerate
	default:
		return entities.TierGood
	}
}

// Controller is the closed control loop mapping network telemetry to the
// outbound frame rate and compression level. It owns the QualityState;
// capture and encoding only read it.
type Controller struct {
	telemetry repositories.NetworkTelemetry
	manual    Profile
	onChange  func(entities.QualityState)
	logger    *zap.Logger

	mu    sync.Mutex
	state entities.QualityState
}

// NewController creates a controller starting at the manual fallback
// cadence with tier unknown. onChange, when non-nil, fires on every
// effective cadence change so capture can restart its sampling interval
// without dropping the connection.
func NewController(telemetry repositories.NetworkTelemetry, manual Profile, logger *zap.Logger, onChange func(entities.QualityState)) *Controller {
	if manual.FrameRate <= 0 {
		manual = DefaultManualProfile
	}
	return &Controller{
		telemetry: telemetry,
		manual:    manual,
		onChange:  onChange,
		logger:    logger,
		state: entities.QualityState{
			FrameRate:   manual.FrameRate,
			Compression: manual.Compression,
			Tier:        entities.TierUnknown,
		},
	}
}

// State returns the current outbound cadence.
func (c *Controller) State() entities.QualityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Interval returns the still-frame sampling interval for the current
// cadence.
func (c *Controller) Interval() time.Duration {
	state := c.State()
	if state.FrameRate <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / state.FrameRate)
}

// Observe folds one telemetry sample into the state.
func (c *Controller) Observe(sample repositories.NetworkSample) {
	tier := Classify(sample)

	c.mu.Lock()
	if tier == c.state.Tier {
		c.mu.Unlock()
		return
	}
	profile, ok := tierProfiles[tier]
	if !ok {
		profile = c.manual
	}
	c.state = entities.QualityState{
		FrameRate:   profile.FrameRate,
		Compression: profile.Compression,
		Tier:        tier,
	}
	state := c.state
	c.mu.Unlock()

	c.logger.Info("Outbound quality tier changed",
		zap.String("tier", string(state.Tier)),
		zap.Float64("frameRate", state.FrameRate),
		zap.Float64("compression", state.Compression))

	if c.onChange != nil {
		c.onChange(state)
	}
}

// Poll samples telemetry once on demand. Unavailable telemetry downgrades
// to the manual cadence; it is not an error condition.
func (c *Controller) Poll(ctx context.Context) {
	if c.telemetry == nil {
		c.Observe(repositories.NetworkSample{})
		return
	}
	sample, err := c.telemetry.Sample(ctx)
	if err != nil {
		c.logger.Debug("Network telemetry unavailable, using manual cadence", zap.Error(err))
		c.Observe(repositories.NetworkSample{})
		return
	}
	c.Observe(sample)
}

// Run consumes change notifications and polls on the given interval until
// the context is done.
func (c *Controller) Run(ctx context.Context, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var updates <-chan repositories.NetworkSample
	if c.telemetry != nil {
		updates = c.telemetry.Updates()
	}

	c.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			c.Observe(sample)
		case <-ticker.C:
			c.Poll(ctx)
		}
	}
}
