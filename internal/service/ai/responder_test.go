package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeCompleter struct {
	reply   string
	err     error
	panic   bool
	calls   int
	prompts []string
	tokens  []int
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, opts ...Option) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.tokens = append(f.tokens, applyOptions(150, opts).maxTokens)
	if f.panic {
		panic("sdk bug")
	}
	return f.reply, f.err
}

type fakeFallback struct {
	reply string
	err   error
	calls int
}

func (f *fakeFallback) Reply(string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestNextTransitions(t *testing.T) {
	cases := []struct {
		from state
		o    outcome
		want state
	}{
		{stateAttemptPrimary, outcomeSucceeded, statePrimarySuccess},
		{stateAttemptPrimary, outcomeFailed, stateAttemptFallback},
		{stateAttemptPrimary, outcomeUnavailable, stateAttemptFallback},
		{stateAttemptFallback, outcomeSucceeded, stateFallbackSuccess},
		{stateAttemptFallback, outcomeFailed, stateFallbackFailure},
		{stateAttemptFallback, outcomeUnavailable, stateFallbackFailure},
		{statePrimarySuccess, outcomeFailed, statePrimarySuccess},
		{stateFallbackFailure, outcomeSucceeded, stateFallbackFailure},
	}
	for _, tc := range cases {
		if got := next(tc.from, tc.o); got != tc.want {
			t.Errorf("next(%d, %d) = %d, want %d", tc.from, tc.o, got, tc.want)
		}
	}
}

func TestRespondPaths(t *testing.T) {
	cases := []struct {
		name          string
		primary       *fakeCompleter
		fallback      *fakeFallback
		want          string
		wantPath      Path
		fallbackCalls int
	}{
		{
			name:     "primary success is trimmed",
			primary:  &fakeCompleter{reply: "  Paris is the capital of France.\n"},
			fallback: &fakeFallback{reply: "unused"},
			want:     "Paris is the capital of France.",
			wantPath: PathPrimary,
		},
		{
			name:          "no credentials falls back",
			primary:       &fakeCompleter{err: completionErr(KindNoCredentials, errors.New("no creds"))},
			fallback:      &fakeFallback{reply: "local answer"},
			want:          "local answer",
			wantPath:      PathFallback,
			fallbackCalls: 1,
		},
		{
			name:          "empty primary reply falls back",
			primary:       &fakeCompleter{reply: "   "},
			fallback:      &fakeFallback{reply: "local answer"},
			want:          "local answer",
			wantPath:      PathFallback,
			fallbackCalls: 1,
		},
		{
			name:          "primary panic falls back",
			primary:       &fakeCompleter{panic: true},
			fallback:      &fakeFallback{reply: "local answer"},
			want:          "local answer",
			wantPath:      PathFallback,
			fallbackCalls: 1,
		},
		{
			name:          "both fail yields apology",
			primary:       &fakeCompleter{err: errors.New("boom")},
			fallback:      &fakeFallback{err: errors.New("also boom")},
			want:          Apology,
			wantPath:      PathApology,
			fallbackCalls: 1,
		},
		{
			name:          "fallback empty yields apology",
			primary:       &fakeCompleter{err: errors.New("boom")},
			fallback:      &fakeFallback{reply: ""},
			want:          Apology,
			wantPath:      PathApology,
			fallbackCalls: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResponder(tc.primary, tc.fallback, nil)
			got, path := r.RespondWithPath(context.Background(), "What is the capital of France?")
			if got != tc.want || path != tc.wantPath {
				t.Fatalf("got (%q, %s), want (%q, %s)", got, path, tc.want, tc.wantPath)
			}
			if tc.primary.calls != 1 {
				t.Fatalf("primary called %d times, want 1", tc.primary.calls)
			}
			if tc.fallback.calls != tc.fallbackCalls {
				t.Fatalf("fallback called %d times, want %d", tc.fallback.calls, tc.fallbackCalls)
			}
		})
	}
}

func TestRespondWithoutPrimary(t *testing.T) {
	fallback := &fakeFallback{reply: "offline"}
	r := NewResponder(nil, fallback, nil)
	if r.HasPrimary() {
		t.Fatalf("expected no primary")
	}
	if got := r.Respond(context.Background(), "hi"); got != "offline" {
		t.Fatalf("got %q", got)
	}

	if got := NewResponder(nil, nil, nil).Respond(context.Background(), "hi"); got != Apology {
		t.Fatalf("expected apology, got %q", got)
	}
}

func TestPrimaryRetriedOnEveryRequest(t *testing.T) {
	primary := &fakeCompleter{err: completionErr(KindTransient, errors.New("throttled"))}
	r := NewResponder(primary, &fakeFallback{reply: "local"}, nil)

	for i := 0; i < 3; i++ {
		r.Respond(context.Background(), "hello")
	}
	if primary.calls != 3 {
		t.Fatalf("expected primary attempted on each request, got %d calls", primary.calls)
	}
}

func TestPromptCarriesTranscript(t *testing.T) {
	primary := &fakeCompleter{reply: "ok"}
	NewResponder(primary, nil, nil).Respond(context.Background(), "What is 2+2?")

	prompt := primary.prompts[0]
	if !strings.HasPrefix(prompt, "You are a helpful AI assistant.") {
		t.Fatalf("unexpected prompt prefix: %q", prompt)
	}
	if !strings.Contains(prompt, "User: What is 2+2?\n\nAssistant:") {
		t.Fatalf("transcript missing from prompt: %q", prompt)
	}
}

func TestProbe(t *testing.T) {
	if Probe(context.Background(), nil, nil) {
		t.Fatalf("nil completer must fail probe")
	}

	failing := &fakeCompleter{err: errors.New("denied")}
	if Probe(context.Background(), failing, nil) {
		t.Fatalf("failing completer must fail probe")
	}

	working := &fakeCompleter{reply: "hi"}
	if !Probe(context.Background(), working, nil) {
		t.Fatalf("working completer must pass probe")
	}
	if working.prompts[0] != "test" || working.tokens[0] != 10 {
		t.Fatalf("unexpected probe call: prompt=%q tokens=%d", working.prompts[0], working.tokens[0])
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(completionErr(KindAccessDenied, errors.New("x"))) != KindAccessDenied {
		t.Fatalf("expected access_denied")
	}
	wrapped := errors.Join(errors.New("outer"), completionErr(KindTransient, errors.New("x")))
	if KindOf(wrapped) != KindTransient {
		t.Fatalf("expected transient through wrapping")
	}
	if KindOf(errors.New("plain")) != KindOther {
		t.Fatalf("expected other for unclassified error")
	}
}
