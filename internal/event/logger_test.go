package event_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/microai-dao/truststack/internal/event"
	"github.com/microai-dao/truststack/internal/signer"
)

var ctx = context.Background()

func newLogger(t *testing.T) *event.Logger {
	t.Helper()
	s, err := signer.New("unit-test-signing-key")
	if err != nil {
		t.Fatal(err)
	}
	return event.NewLogger(s, event.NewMemoryStore(), zap.NewNop())
}

func logSample(t *testing.T, l *event.Logger) *event.TrustEvent {
	t.Helper()
	epi := 0.85
	e, err := l.LogEvent(ctx, "microai-dao", "CEO-AI", "strategic_proposal",
		[]byte("Propose investment in healthcare AI sector"),
		[]byte("Investment approved: $500,000"),
		"v1.0.0",
		&event.Options{
			EPIScore:    &epi,
			Model:       "gpt-4",
			ToolsCalled: []string{"epi_calculator", "market_analyzer"},
			Evaluations: []event.Evaluation{
				l.CreateEvaluation("epi-validator", "Ethics", "pass", 0.92),
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestLogEvent_signatureValidImmediately(t *testing.T) {
	l := newLogger(t)
	e := logSample(t, l)

	if e.EventID == "" || e.Timestamp == "" {
		t.Fatal("event missing id or timestamp")
	}
	if !l.VerifyEvent(e) {
		t.Error("VerifyEvent() = false for a freshly logged event")
	}
}

func TestVerifyEvent_mutationInvalidates(t *testing.T) {
	l := newLogger(t)

	mutations := map[string]func(*event.TrustEvent){
		"tenant_id":   func(e *event.TrustEvent) { e.TenantID = "other-dao" },
		"agent_id":    func(e *event.TrustEvent) { e.AgentID = "CFO-AI" },
		"action_type": func(e *event.TrustEvent) { e.ActionType = "payment" },
		"model":       func(e *event.TrustEvent) { e.Model = "gpt-3.5" },
		"input_hash":  func(e *event.TrustEvent) { e.InputHash = e.OutputHash },
		"epi_score":   func(e *event.TrustEvent) { v := 0.99; e.EPIScore = &v },
		"tools":       func(e *event.TrustEvent) { e.ToolsCalled = append(e.ToolsCalled, "extra") },
		"timestamp":   func(e *event.TrustEvent) { e.Timestamp = "2020-01-01T00:00:00Z" },
	}

	for name, mutate := range mutations {
		e := logSample(t, l)
		mutate(e)
		if l.VerifyEvent(e) {
			t.Errorf("VerifyEvent() = true after mutating %s", name)
		}
	}
}

func TestVerifyEvent_unsignedRejected(t *testing.T) {
	l := newLogger(t)
	e := logSample(t, l)
	e.Signature = ""

	if l.VerifyEvent(e) {
		t.Error("VerifyEvent() accepted an unsigned event")
	}
	if l.VerifyEvent(nil) {
		t.Error("VerifyEvent() accepted nil")
	}
}

func TestVerifyEvent_wrongKey(t *testing.T) {
	l := newLogger(t)
	e := logSample(t, l)

	other, _ := signer.New("a-different-key")
	if event.Verify(other, e) {
		t.Error("event verified under a different signing key")
	}
}

func TestGetEvent_pointLookup(t *testing.T) {
	l := newLogger(t)
	e := logSample(t, l)

	got, err := l.GetEvent(ctx, e.EventID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EventID != e.EventID || got.Signature != e.Signature {
		t.Errorf("GetEvent returned a different event: %+v", got)
	}

	if _, err := l.GetEvent(ctx, "no-such-id"); !errors.Is(err, event.ErrNotFound) {
		t.Errorf("GetEvent(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestEventsByDate(t *testing.T) {
	l := newLogger(t)
	e := logSample(t, l)
	logSample(t, l)

	events, err := l.EventsByDate(ctx, e.Date())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventID != e.EventID {
		t.Error("append order not preserved")
	}

	none, err := l.EventsByDate(ctx, "1999-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("expected empty day, got %d events", len(none))
	}
}

func TestEventsByAgent_limit(t *testing.T) {
	l := newLogger(t)
	for i := 0; i < 5; i++ {
		logSample(t, l)
	}
	if _, err := l.LogEvent(ctx, "microai-dao", "CFO-AI", "payment",
		[]byte("in"), []byte("out"), "v1.0.0", nil); err != nil {
		t.Fatal(err)
	}

	events, err := l.EventsByAgent(ctx, "CEO-AI", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Errorf("expected 3 events with limit=3, got %d", len(events))
	}
	for _, e := range events {
		if e.AgentID != "CEO-AI" {
			t.Errorf("got event for agent %s", e.AgentID)
		}
	}
}

func TestDailyHashes_combinedLeafHash(t *testing.T) {
	l := newLogger(t)
	e := logSample(t, l)

	hashes, err := l.DailyHashes(ctx, e.Date())
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 1 {
		t.Fatalf("expected 1 daily hash, got %d", len(hashes))
	}
	want := signer.Hash([]byte(e.InputHash + e.OutputHash))
	if hashes[0] != want {
		t.Errorf("daily hash: got %s, want sha256(input_hash++output_hash)", hashes[0])
	}
}

func TestCreateEvaluation_signed(t *testing.T) {
	l := newLogger(t)
	ev := l.CreateEvaluation("pii-scanner", "PII", "pass", 0.97)

	if ev.Signature == "" || ev.SignedAt == "" {
		t.Error("evaluation missing signature or signed_at")
	}
	if ev.Evaluator != "pii-scanner" || ev.Category != "PII" {
		t.Errorf("unexpected evaluation: %+v", ev)
	}
}
