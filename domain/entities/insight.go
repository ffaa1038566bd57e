package entities

import "time"

// InsightKind classifies a domain cue detected in agent speech.
type InsightKind string

const (
	InsightTopic    InsightKind = "topic"
	InsightKeyPoint InsightKind = "key_point"
	InsightGesture  InsightKind = "gesture"
	InsightBlur     InsightKind = "blur"
)

// InsightSignal is a detected domain cue. A newer signal of the same kind
// supersedes the previous one; its decay timer is independent of the
// message lifecycle.
type InsightSignal struct {
	Kind       InsightKind `json:"kind"`
	Content    string      `json:"content,omitempty"`
	DetectedAt time.Time   `json:"detected_at"`
}
