package intent

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		utterance string
		want      Label
	}{
		{"Hello there", Greeting},
		{"hi, how are you doing", Wellbeing},
		{"thanks a lot", Thanks},
		{"okay bye", Farewell},
		{"what time is it", Time},
		{"is it going to rain tomorrow", Weather},
		{"can you help me", Help},
		{"the mitochondria is the powerhouse", Unknown},
		{"thank you so much!", Thanks},
		{"What's the weather like today?", Weather},
		{"你好", Greeting},
		{"what are they building", Unknown},
		{"I missed the train", Unknown},
		{"this is a whiteboard", Unknown},
		{"the ladder is tall", Unknown},
		{"", Unknown},
	}

	for _, tc := range cases {
		if got := Classify(tc.utterance).Intent; got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.utterance, got, tc.want)
		}
	}
}

func TestReplyIsDeterministic(t *testing.T) {
	r := NewResponder()
	r.now = func() time.Time { return time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC) }

	first, err := r.Reply("what time is it")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := r.Reply("what time is it")
	if first != second {
		t.Fatalf("expected identical replies, got %q and %q", first, second)
	}
	if !strings.Contains(first, "3:30 PM") {
		t.Fatalf("expected formatted time, got %q", first)
	}
}

func TestReplyEchoesUnknown(t *testing.T) {
	reply, err := NewResponder().Reply("  quantum chromodynamics  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "quantum chromodynamics") {
		t.Fatalf("expected echo of the utterance, got %q", reply)
	}
}

func TestReplyRejectsEmpty(t *testing.T) {
	if _, err := NewResponder().Reply("   "); !errors.Is(err, ErrEmptyUtterance) {
		t.Fatalf("expected ErrEmptyUtterance, got %v", err)
	}
}
