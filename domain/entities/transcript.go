package entities

import "sync"

// Transcript merges a stream of partial and final text deltas, interleaved
// across roles, into an ordered message log. Each role's deltas are assumed
// ordered among themselves.
type Transcript struct {
	mu       sync.Mutex
	messages []ChatMessage
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append merges one (role, delta, final) tuple into the log. If the last
// message in the log belongs to the same role and is still open, the delta
// is appended in place and the completion flag taken from the incoming
// tuple. Otherwise a new message is started, unless the delta is empty.
// Replaying a finalization twice never duplicates text because a completed
// message is never the append target again.
func (t *Transcript) Append(role Role, delta string, final bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.messages); n > 0 {
		last := &t.messages[n-1]
		if last.Role == role && !last.IsComplete {
			last.Text += delta
			last.IsComplete = final
			return
		}
	}

	if delta == "" {
		return
	}
	t.messages = append(t.messages, NewChatMessage(role, delta, final))
}

// FinalizeOpen marks the open message of the given role complete, if the
// log currently ends with one. Used for turn-complete markers that arrive
// without a final-flagged delta.
func (t *Transcript) FinalizeOpen(role Role) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.messages); n > 0 {
		last := &t.messages[n-1]
		if last.Role == role && !last.IsComplete {
			last.IsComplete = true
		}
	}
}

// LastText returns the full current text of the most recent message for
// the given role, or the empty string when the role has not spoken yet.
func (t *Transcript) LastText(role Role) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Role == role {
			return t.messages[i].Text
		}
	}
	return ""
}

// Messages returns a snapshot copy of the message log.
func (t *Transcript) Messages() []ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages in the log.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}
