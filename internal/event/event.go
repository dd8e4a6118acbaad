// Package event implements the tamper-evident event log of the trust stack.
//
// Every decision made by a governance agent is recorded as a TrustEvent:
// the raw input and output payloads are hashed (never stored), the full
// record is signed with the process HMAC key, and the event is appended to
// a date-partitioned append-only store. Events are immutable once signed;
// changing any field invalidates the signature.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/microai-dao/truststack/internal/signer"
)

// Evaluation is a single signed result from a policy evaluator
// (PII scanner, safety check, bias probe, ...).
type Evaluation struct {
	Evaluator  string  `json:"evaluator"`
	Category   string  `json:"category"`
	Result     string  `json:"result"` // pass, fail, redacted
	Confidence float64 `json:"confidence"`
	SignedAt   string  `json:"signed_at"`
	Signature  string  `json:"signature"`
}

// TrustEvent is one tamper-evident log entry. The Signature covers the
// canonical encoding of every other field.
type TrustEvent struct {
	EventID       string       `json:"event_id"`
	Timestamp     string       `json:"timestamp"` // UTC, RFC 3339
	TenantID      string       `json:"tenant_id"`
	AgentID       string       `json:"agent_id"`    // CEO-AI, CFO-AI, EXECAI, ...
	ActionType    string       `json:"action_type"` // proposal, payment, vote, decision
	Model         string       `json:"model,omitempty"`
	InputHash     string       `json:"input_hash"`
	OutputHash    string       `json:"output_hash"`
	PolicyVersion string       `json:"policy_version"`
	EPIScore      *float64     `json:"epi_score"`
	ToolsCalled   []string     `json:"tools_called"`
	Redactions    []string     `json:"redactions"`
	Evaluations   []Evaluation `json:"evaluations"`
	Signature     string       `json:"signature"`
}

// Date returns the UTC calendar date (YYYY-MM-DD) the event belongs to.
// Events are partitioned by this value.
func (e *TrustEvent) Date() string {
	if len(e.Timestamp) < 10 {
		return ""
	}
	return e.Timestamp[:10]
}

// SigningPayload returns the canonical bytes the signature is computed over:
// the RFC 8785 encoding of the event with the signature field removed.
func (e *TrustEvent) SigningPayload() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("event: marshal: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("event: remarshal: %w", err)
	}
	delete(fields, "signature")
	return signer.Canonical(fields)
}

// Verify recomputes the event's signing payload from its own fields and
// checks the signature in constant time. A malformed event is reported as
// invalid, never accepted.
func Verify(s *signer.Signer, e *TrustEvent) bool {
	if e == nil || e.Signature == "" {
		return false
	}
	payload, err := e.SigningPayload()
	if err != nil {
		return false
	}
	return s.Verify(payload, e.Signature)
}

// now returns the current UTC timestamp in the event wire format.
func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
