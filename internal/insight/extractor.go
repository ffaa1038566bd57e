package insight

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hanifka/lentera/domain/entities"
)

const (
	// DefaultHighlightTTL keeps the scanner highlight alive after a topic,
	// key-point, or gesture match.
	DefaultHighlightTTL = 5 * time.Second
	// DefaultBlurTTL governs the image-quality warning.
	DefaultBlurTTL = 6 * time.Second
)

// Detector is one pattern matcher in the ordered detector list. Capturing
// detectors extract the clause following a labelled marker; boolean
// detectors only set flags.
type Detector struct {
	Kind    entities.InsightKind
	Pattern *regexp.Regexp
	Capture bool
}

// DefaultDetectors returns the built-in detector list. Detection over
// free-form agent text is heuristic by nature; the list is replaceable
// without touching the dispatch loop.
func DefaultDetectors() []Detector {
	return []Detector{
		{
			Kind:    entities.InsightTopic,
			Pattern: regexp.MustCompile(`(?i)(?:topic|subject|knowledge point|we(?:'| a)re looking at)[:：]?\s*([^.!?。！？\n]+)`),
			Capture: true,
		},
		{
			Kind:    entities.InsightKeyPoint,
			Pattern: regexp.MustCompile(`(?i)(?:key point|key step|critical step|the important (?:part|thing) is)[:：]?\s*([^.!?。！？\n]+)`),
			Capture: true,
		},
		{
			Kind:    entities.InsightGesture,
			Pattern: regexp.MustCompile(`(?i)point(?:ing)? (?:at|to)|with your finger|use your pen|tap on`),
		},
		{
			Kind:    entities.InsightBlur,
			Pattern: regexp.MustCompile(`(?i)blurry|out of focus|too far|can'?t see (?:it|that|the)|move (?:the )?camera|adjust (?:the |your )?camera`),
		},
	}
}

// Snapshot is the current extractor state published to observers. Stored
// values outlive their flags: expiry clears a flag, never the value.
type Snapshot struct {
	Topic       string                   `json:"topic,omitempty"`
	KeyPoint    string                   `json:"key_point,omitempty"`
	Highlight   bool                     `json:"highlight"`
	BlurWarning bool                     `json:"blur_warning"`
	Signals     []entities.InsightSignal `json:"signals,omitempty"`
}

// Extractor scans agent text for domain cues with debounced, auto-expiring
// flags.
type Extractor struct {
	detectors    []Detector
	highlightTTL time.Duration
	blurTTL      time.Duration
	onChange     func(Snapshot)
	logger       *zap.Logger

	mu             sync.Mutex
	topic          string
	keyPoint       string
	highlight      bool
	blurWarning    bool
	highlightTimer *time.Timer
	blurTimer      *time.Timer
	signals        map[entities.InsightKind]entities.InsightSignal
}

// NewExtractor creates an extractor with the default detector list and
// timer durations.
func NewExtractor(logger *zap.Logger, onChange func(Snapshot)) *Extractor {
	return NewExtractorWith(DefaultDetectors(), DefaultHighlightTTL, DefaultBlurTTL, logger, onChange)
}

// NewExtractorWith creates an extractor with an explicit detector list and
// timer durations.
func NewExtractorWith(detectors []Detector, highlightTTL, blurTTL time.Duration, logger *zap.Logger, onChange func(Snapshot)) *Extractor {
	return &Extractor{
		detectors:    detectors,
		highlightTTL: highlightTTL,
		blurTTL:      blurTTL,
		onChange:     onChange,
		logger:       logger,
		signals:      make(map[entities.InsightKind]entities.InsightSignal),
	}
}

// Scan runs every detector over the full current text of the last agent
// message. The full text is used rather than the latest delta because
// earlier partial text may not have matched yet.
func (e *Extractor) Scan(text string) {
	if text == "" {
		return
	}

	e.mu.Lock()
	changed := false
	for _, d := range e.detectors {
		if d.Capture {
			m := d.Pattern.FindStringSubmatch(text)
			if len(m) < 2 {
				continue
			}
			value := strings.TrimSpace(m[1])
			if value == "" {
				continue
			}
			if e.applyCaptureLocked(d.Kind, value) {
				changed = true
			}
			continue
		}
		if d.Pattern.MatchString(text) {
			if e.applyFlagLocked(d.Kind) {
				changed = true
			}
		}
	}
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	if changed && e.onChange != nil {
		e.onChange(snapshot)
	}
}

// applyCaptureLocked stores a captured value. Every non-empty match
// refreshes the signal and re-arms the highlight, even when the value is
// unchanged, so a cue the agent keeps repeating stays lit. Observers are
// only notified when the value or the flag actually changed.
func (e *Extractor) applyCaptureLocked(kind entities.InsightKind, value string) bool {
	changed := false
	switch kind {
	case entities.InsightTopic:
		if value != e.topic {
			e.topic = value
			changed = true
		}
	case entities.InsightKeyPoint:
		if value != e.keyPoint {
			e.keyPoint = value
			changed = true
		}
	default:
		return false
	}
	e.signals[kind] = entities.InsightSignal{Kind: kind, Content: value, DetectedAt: time.Now()}
	wasOff := !e.highlight
	e.armHighlightLocked()
	return changed || wasOff
}

func (e *Extractor) applyFlagLocked(kind entities.InsightKind) bool {
	switch kind {
	case entities.InsightGesture:
		e.signals[kind] = entities.InsightSignal{Kind: kind, DetectedAt: time.Now()}
		wasOff := !e.highlight
		e.armHighlightLocked()
		return wasOff
	case entities.InsightBlur:
		e.signals[kind] = entities.InsightSignal{Kind: kind, DetectedAt: time.Now()}
		wasOff := !e.blurWarning
		e.armBlurLocked()
		return wasOff
	}
	return false
}

// armHighlightLocked cancel-and-resets the shared highlight timer.
func (e *Extractor) armHighlightLocked() {
	e.highlight = true
	if e.highlightTimer != nil {
		e.highlightTimer.Stop()
	}
	e.highlightTimer = time.AfterFunc(e.highlightTTL, e.expireHighlight)
}

// armBlurLocked cancel-and-resets the blur timer rather than stacking a
// second one.
func (e *Extractor) armBlurLocked() {
	e.blurWarning = true
	if e.blurTimer != nil {
		e.blurTimer.Stop()
	}
	e.blurTimer = time.AfterFunc(e.blurTTL, e.expireBlur)
}

func (e *Extractor) expireHighlight() {
	e.mu.Lock()
	e.highlight = false
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	if e.onChange != nil {
		e.onChange(snapshot)
	}
}

func (e *Extractor) expireBlur() {
	e.mu.Lock()
	e.blurWarning = false
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	if e.onChange != nil {
		e.onChange(snapshot)
	}
}

func (e *Extractor) snapshotLocked() Snapshot {
	s := Snapshot{
		Topic:       e.topic,
		KeyPoint:    e.keyPoint,
		Highlight:   e.highlight,
		BlurWarning: e.blurWarning,
	}
	for _, sig := range e.signals {
		s.Signals = append(s.Signals, sig)
	}
	return s
}

// Snapshot returns the current extractor state.
func (e *Extractor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Stop cancels the pending timers. Stored values stay readable.
func (e *Extractor) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.highlightTimer != nil {
		e.highlightTimer.Stop()
	}
	if e.blurTimer != nil {
		e.blurTimer.Stop()
	}
}
