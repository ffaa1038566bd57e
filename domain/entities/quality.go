package entities

// NetworkTier is a discrete network-quality bucket driving outbound cadence.
type NetworkTier string

const (
	TierGood     NetworkTier = "good"
	TierModerate NetworkTier = "moderate"
	TierPoor     NetworkTier = "poor"
	TierUnknown  NetworkTier = "unknown"
)

// QualityState is the current outbound media cadence. FrameRate and
// Compression only ever change together, derived from the tier by a fixed
// lookup.
type QualityState struct {
	FrameRate   float64     `json:"frame_rate"`  // still frames per second
	Compression float64     `json:"compression"` // 0..1 JPEG quality factor
	Tier        NetworkTier `json:"tier"`
}
