package verify_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/microai-dao/truststack/internal/attest"
	"github.com/microai-dao/truststack/internal/event"
	"github.com/microai-dao/truststack/internal/merkle"
	"github.com/microai-dao/truststack/internal/signer"
	"github.com/microai-dao/truststack/internal/verify"
)

var ctx = context.Background()

// chainFixture is a full day of the trust stack: logged events, the day's
// tree, a proof for the first event, and an attestation over the root.
type chainFixture struct {
	event *event.TrustEvent
	proof *merkle.Proof
	att   *attest.Attestation
}

func buildChain(t *testing.T, s *signer.Signer, logRoot string) *chainFixture {
	t.Helper()

	logger := event.NewLogger(s, event.NewMemoryStore(), zap.NewNop())
	epi := 0.85
	first, err := logger.LogEvent(ctx, "microai-dao", "CEO-AI", "strategic_proposal",
		[]byte("input"), []byte("output"), "v1.0.0", &event.Options{EPIScore: &epi})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := logger.LogEvent(ctx, "microai-dao", "CFO-AI", "payment",
			[]byte{byte(i)}, []byte("ok"), "v1.0.0", nil); err != nil {
			t.Fatal(err)
		}
	}

	hashes, err := logger.DailyHashes(ctx, first.Date())
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 5 {
		t.Fatalf("expected 5 daily hashes, got %d", len(hashes))
	}

	tree, err := merkle.New(hashes)
	if err != nil {
		t.Fatal(err)
	}
	proof, err := tree.Proof(hashes[0])
	if err != nil {
		t.Fatal(err)
	}

	if logRoot == "" {
		logRoot = tree.Root()
	}

	gen, err := attest.NewGenerator(s, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	card, err := gen.NewModelCard("CEO-AI", "1.0.0", "d", "u", "l", "t", nil)
	if err != nil {
		t.Fatal(err)
	}
	sbom, err := gen.NewSBOM(nil, "SPDX")
	if err != nil {
		t.Fatal(err)
	}
	att, err := gen.GenerateAttestation("v1.0.0", card, sbom,
		gen.CompileEvalSummary(100, 100, 95, nil, "2026-08-01"),
		logRoot, "policy-v1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	return &chainFixture{event: first, proof: proof, att: att}
}

func TestVerifyCompleteChain_valid(t *testing.T) {
	s := newSigner(t)
	v := verify.NewProofVerifier(s)
	fx := buildChain(t, s, "")

	r := v.VerifyCompleteChain(fx.event, fx.proof, fx.att)
	if !r.Verified || r.Status != verify.StatusValid {
		t.Fatalf("chain verification failed: %s %v", r.Message, r.Details)
	}
}

func TestVerifyCompleteChain_eventStage(t *testing.T) {
	s := newSigner(t)
	v := verify.NewProofVerifier(s)
	fx := buildChain(t, s, "")
	fx.event.TenantID = "tampered"

	r := v.VerifyCompleteChain(fx.event, fx.proof, fx.att)
	if r.Verified {
		t.Fatal("chain verified with a tampered event")
	}
	if r.Details["failed_stage"] != "event_signature" {
		t.Errorf("failed stage: got %v, want event_signature", r.Details["failed_stage"])
	}
}

func TestVerifyCompleteChain_proofStage(t *testing.T) {
	s := newSigner(t)
	v := verify.NewProofVerifier(s)
	fx := buildChain(t, s, "")
	fx.proof.Siblings[0] = merkle.HashPair("x", "y")

	r := v.VerifyCompleteChain(fx.event, fx.proof, fx.att)
	if r.Verified {
		t.Fatal("chain verified with a tampered proof")
	}
	if r.Details["failed_stage"] != "merkle_proof" {
		t.Errorf("failed stage: got %v, want merkle_proof", r.Details["failed_stage"])
	}
}

func TestVerifyCompleteChain_rootMismatch(t *testing.T) {
	s := newSigner(t)
	v := verify.NewProofVerifier(s)
	// Attestation legitimately signed, but over the wrong day's root: its
	// own signature validates while the chain does not.
	fx := buildChain(t, s, merkle.EmptyDayRoot)

	if att := v.VerifyAttestation(fx.att); !att.Verified {
		t.Fatal("attestation signature should validate independently")
	}

	r := v.VerifyCompleteChain(fx.event, fx.proof, fx.att)
	if r.Verified {
		t.Fatal("chain verified despite root mismatch")
	}
	if r.Details["failed_stage"] != "chain_integrity" {
		t.Errorf("failed stage: got %v, want chain_integrity", r.Details["failed_stage"])
	}
}

func TestVerifyAttestation_noSignatures(t *testing.T) {
	s := newSigner(t)
	v := verify.NewProofVerifier(s)
	fx := buildChain(t, s, "")
	fx.att.Signatures = nil

	r := v.VerifyAttestation(fx.att)
	if r.Verified || r.Status != verify.StatusInvalid {
		t.Errorf("unsigned attestation: %+v", r)
	}
}

func TestVerifyEventSignature(t *testing.T) {
	s := newSigner(t)
	v := verify.NewProofVerifier(s)
	fx := buildChain(t, s, "")

	if r := v.VerifyEventSignature(fx.event); !r.Verified {
		t.Errorf("valid event rejected: %s", r.Message)
	}

	fx.event.ActionType = "payment"
	if r := v.VerifyEventSignature(fx.event); r.Verified {
		t.Error("tampered event accepted")
	}
}

func TestVerifyEPICompliance(t *testing.T) {
	s := newSigner(t)
	v := verify.NewProofVerifier(s)
	fx := buildChain(t, s, "")

	if r := v.VerifyEPICompliance(fx.event, 0.7); !r.Verified {
		t.Errorf("0.85 score rejected at 0.7 threshold: %s", r.Message)
	}
	if r := v.VerifyEPICompliance(fx.event, 0.9); r.Verified {
		t.Error("0.85 score accepted at 0.9 threshold")
	}

	// Absent score is UNKNOWN, not a failure.
	fx.event.EPIScore = nil
	r := v.VerifyEPICompliance(fx.event, 0.7)
	if r.Status != verify.StatusUnknown {
		t.Errorf("status: got %s, want unknown", r.Status)
	}
	if r.Verified {
		t.Error("event without score reported as verified")
	}
}
