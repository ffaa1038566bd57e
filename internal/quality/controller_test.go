package quality

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hanifka/lentera/domain/entities"
	"github.com/hanifka/lentera/domain/repositories"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		downlink float64
		rtt      time.Duration
		known    bool
		want     entities.NetworkTier
	}{
		{"slow downlink", 1.0, 100 * time.Millisecond, true, entities.TierPoor},
		{"high rtt", 10, 600 * time.Millisecond, true, entities.TierPoor},
		{"moderate downlink", 3.0, 50 * time.Millisecond, true, entities.TierModerate},
		{"moderate rtt", 10, 200 * time.Millisecond, true, entities.TierModerate},
		{"good", 10, 50 * time.Millisecond, true, entities.TierGood},
		{"unknown", 0, 0, false, entities.TierUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sample := repositories.NetworkSample{
				DownlinkMbps: tt.downlink,
				RTT:          tt.rtt,
				Known:        tt.known,
			}
			if got := Classify(sample); got != tt.want {
				t.Errorf("Classify(%v, %v) = %s, want %s", tt.downlink, tt.rtt, got, tt.want)
			}
		})
	}
}

func TestObserveAppliesProfilePairs(t *testing.T) {
	c := NewController(nil, DefaultManualProfile, zap.NewNop(), nil)

	c.Observe(repositories.NetworkSample{DownlinkMbps: 1.0, RTT: 100 * time.Millisecond, Known: true})
	state := c.State()
	if state.Tier != entities.TierPoor || state.FrameRate != 0.5 || state.Compression != 0.4 {
		t.Errorf("expected poor profile (0.5, 0.4), got %+v", state)
	}

	c.Observe(repositories.NetworkSample{DownlinkMbps: 10, RTT: 50 * time.Millisecond, Known: true})
	state = c.State()
	if state.Tier != entities.TierGood || state.FrameRate != 2.5 || state.Compression != 0.65 {
		t.Errorf("expected good profile (2.5, 0.65), got %+v", state)
	}
}

func TestUnknownFallsBackToManual(t *testing.T) {
	manual := Profile{FrameRate: 0.8, Compression: 0.45}
	c := NewController(nil, manual, zap.NewNop(), nil)

	// Move off the initial unknown tier first.
	c.Observe(repositories.NetworkSample{DownlinkMbps: 10, RTT: 10 * time.Millisecond, Known: true})
	c.Observe(repositories.NetworkSample{})

	state := c.State()
	if state.Tier != entities.TierUnknown {
		t.Errorf("expected unknown tier, got %s", state.Tier)
	}
	if state.FrameRate != manual.FrameRate || state.Compression != manual.Compression {
		t.Errorf("expected manual fallback %+v, got %+v", manual, state)
	}
}

func TestOnChangeFiresOnlyOnTierChange(t *testing.T) {
	var changes []entities.NetworkTier
	c := NewController(nil, DefaultManualProfile, zap.NewNop(), func(s entities.QualityState) {
		changes = append(changes, s.Tier)
	})

	good := repositories.NetworkSample{DownlinkMbps: 10, RTT: 20 * time.Millisecond, Known: true}
	c.Observe(good)
	c.Observe(good)
	c.Observe(repositories.NetworkSample{DownlinkMbps: 2, RTT: 20 * time.Millisecond, Known: true})

	if len(changes) != 2 {
		t.Fatalf("expected 2 change notifications, got %d", len(changes))
	}
	if changes[0] != entities.TierGood || changes[1] != entities.TierModerate {
		t.Errorf("unexpected change sequence %v", changes)
	}
}

func TestInterval(t *testing.T) {
	c := NewController(nil, DefaultManualProfile, zap.NewNop(), nil)
	c.Observe(repositories.NetworkSample{DownlinkMbps: 10, RTT: 20 * time.Millisecond, Known: true})

	if got := c.Interval(); got != 400*time.Millisecond {
		t.Errorf("expected 400ms interval at 2.5fps, got %v", got)
	}
}
