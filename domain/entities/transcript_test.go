package entities

import "testing"

type delta struct {
	role  Role
	text  string
	final bool
}

func replay(deltas []delta) *Transcript {
	t := NewTranscript()
	for _, d := range deltas {
		t.Append(d.role, d.text, d.final)
	}
	return t
}

func TestAppendMergesIntoOpenMessage(t *testing.T) {
	tr := NewTranscript()
	tr.Append(RoleAgent, "Let's look ", false)
	tr.Append(RoleAgent, "at fractions.", true)

	msgs := tr.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 merged message, got %d", len(msgs))
	}
	if msgs[0].Text != "Let's look at fractions." {
		t.Errorf("unexpected merged text %q", msgs[0].Text)
	}
	if !msgs[0].IsComplete {
		t.Error("expected message finalized")
	}
}

func TestCompletedMessageNeverAppendTarget(t *testing.T) {
	tr := NewTranscript()
	tr.Append(RoleAgent, "Done.", true)
	tr.Append(RoleAgent, "Next thought.", false)

	msgs := tr.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "Done." {
		t.Errorf("completed message mutated: %q", msgs[0].Text)
	}
}

func TestInterleavedRoles(t *testing.T) {
	tr := replay([]delta{
		{RoleUser, "What is ", false},
		{RoleAgent, "Hmm", false},
		{RoleUser, "a prime?", true},
		{RoleAgent, ", good question.", true},
	})

	msgs := tr.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages for interrupted merges, got %d", len(msgs))
	}
	// An interleaving delta closes the merge window for the other role
	// only when it lands between two deltas of the same role.
	if msgs[0].Text != "What is " || msgs[2].Text != "a prime?" {
		t.Errorf("unexpected user fragments: %q / %q", msgs[0].Text, msgs[2].Text)
	}
}

func TestEmptyDeltaDoesNotStartMessage(t *testing.T) {
	tr := NewTranscript()
	tr.Append(RoleUser, "", false)
	tr.Append(RoleUser, "", true)

	if tr.Len() != 0 {
		t.Errorf("expected no messages from empty deltas, got %d", tr.Len())
	}

	// Empty delta into an open message only carries the completion flag.
	tr.Append(RoleAgent, "Answer", false)
	tr.Append(RoleAgent, "", true)
	msgs := tr.Messages()
	if len(msgs) != 1 || !msgs[0].IsComplete || msgs[0].Text != "Answer" {
		t.Errorf("expected finalized open message, got %+v", msgs)
	}
}

func TestReplayIdempotence(t *testing.T) {
	sequence := []delta{
		{RoleUser, "Show me ", false},
		{RoleUser, "the steps", true},
		{RoleAgent, "First, ", false},
		{RoleAgent, "divide both sides.", true},
		{RoleAgent, "", true}, // finalization replayed
		{RoleUser, "Thanks", true},
	}

	a := replay(sequence).Messages()
	b := replay(sequence).Messages()

	if len(a) != len(b) {
		t.Fatalf("replay diverged: %d vs %d messages", len(a), len(b))
	}
	for i := range a {
		if a[i].Role != b[i].Role || a[i].Text != b[i].Text || a[i].IsComplete != b[i].IsComplete {
			t.Errorf("message %d diverged: %+v vs %+v", i, a[i], b[i])
		}
	}
	// The replayed finalization is discarded rather than doubling the
	// completed message.
	if len(a) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(a))
	}
	if a[1].Text != "First, divide both sides." {
		t.Errorf("unexpected agent message %q", a[1].Text)
	}
}

func TestFinalizeOpen(t *testing.T) {
	tr := NewTranscript()
	tr.Append(RoleAgent, "trailing partial", false)
	tr.FinalizeOpen(RoleAgent)
	tr.FinalizeOpen(RoleAgent) // idempotent

	msgs := tr.Messages()
	if len(msgs) != 1 || !msgs[0].IsComplete {
		t.Errorf("expected single finalized message, got %+v", msgs)
	}
}

func TestLastText(t *testing.T) {
	tr := replay([]delta{
		{RoleAgent, "one", true},
		{RoleUser, "question", true},
		{RoleAgent, "two", false},
	})

	if got := tr.LastText(RoleAgent); got != "two" {
		t.Errorf("expected last agent text %q, got %q", "two", got)
	}
	if got := tr.LastText(RoleUser); got != "question" {
		t.Errorf("expected last user text %q, got %q", "question", got)
	}
}
