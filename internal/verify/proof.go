package verify

import (
	"fmt"

	"github.com/microai-dao/truststack/internal/attest"
	"github.com/microai-dao/truststack/internal/event"
	"github.com/microai-dao/truststack/internal/merkle"
	"github.com/microai-dao/truststack/internal/signer"
)

// ProofVerifier composes the single-purpose checks and the full trust
// chain: event signature → Merkle inclusion → attestation root. It holds no
// state beyond the signing key and is safe for concurrent use.
type ProofVerifier struct {
	signer *signer.Signer
}

// NewProofVerifier wires a ProofVerifier on the shared signing key.
func NewProofVerifier(s *signer.Signer) *ProofVerifier {
	return &ProofVerifier{signer: s}
}

// VerifyEventSignature checks a trust event's signature.
func (v *ProofVerifier) VerifyEventSignature(e *event.TrustEvent) *Result {
	if e == nil {
		return invalid("no event provided", nil)
	}
	if event.Verify(v.signer, e) {
		return valid("event signature is valid", map[string]any{
			"event_id":  e.EventID,
			"agent_id":  e.AgentID,
			"timestamp": e.Timestamp,
			"signature": truncate(e.Signature),
		})
	}
	return invalid("event signature is invalid", map[string]any{
		"event_id": e.EventID,
		"reason":   "signature mismatch",
	})
}

// VerifyMerkleProof checks a Merkle inclusion proof against its own root.
func (v *ProofVerifier) VerifyMerkleProof(p *merkle.Proof) *Result {
	if p == nil {
		return invalid("no proof provided", nil)
	}
	if merkle.VerifyProof(p) {
		return valid("merkle proof is valid", map[string]any{
			"leaf_hash":    truncate(p.LeafHash),
			"root":         truncate(p.Root),
			"proof_length": len(p.Siblings),
		})
	}
	return invalid("merkle proof is invalid", map[string]any{
		"leaf_hash": truncate(p.LeafHash),
		"reason":    "proof does not reproduce root",
	})
}

// VerifyAttestation checks an attestation's primary signature.
func (v *ProofVerifier) VerifyAttestation(a *attest.Attestation) *Result {
	if a == nil {
		return invalid("no attestation provided", nil)
	}
	if len(a.Signatures) == 0 {
		return invalid("attestation has no signatures", map[string]any{
			"release_id": a.ReleaseID,
		})
	}
	if attest.Verify(v.signer, a, a.Signatures[0]) {
		return valid("attestation is valid", map[string]any{
			"release_id":            a.ReleaseID,
			"release_date":          a.ReleaseDate,
			"policy_version":        a.PolicyVersion,
			"total_signatures":      len(a.Signatures),
			"compliance_frameworks": a.ComplianceFrameworks,
		})
	}
	return invalid("attestation signature is invalid", map[string]any{
		"release_id": a.ReleaseID,
		"reason":     "primary signature mismatch",
	})
}

// VerifyCompleteChain verifies event signature, Merkle inclusion,
// attestation signature, and finally that the proof's root equals the
// attestation's log root. It short-circuits at the first failing stage and
// reports which stage failed.
func (v *ProofVerifier) VerifyCompleteChain(e *event.TrustEvent, p *merkle.Proof, a *attest.Attestation) *Result {
	details := map[string]any{}

	eventResult := v.VerifyEventSignature(e)
	details["event"] = eventResult.Details
	if !eventResult.Verified {
		details["failed_stage"] = "event_signature"
		return invalid("event signature verification failed", details)
	}

	proofResult := v.VerifyMerkleProof(p)
	details["merkle_proof"] = proofResult.Details
	if !proofResult.Verified {
		details["failed_stage"] = "merkle_proof"
		return invalid("merkle proof verification failed", details)
	}

	attResult := v.VerifyAttestation(a)
	details["attestation"] = attResult.Details
	if !attResult.Verified {
		details["failed_stage"] = "attestation"
		return invalid("attestation verification failed", details)
	}

	rootsMatch := signer.Equal(p.Root, a.LogRoot)
	details["chain_integrity"] = map[string]any{
		"merkle_root":      truncate(p.Root),
		"attestation_root": truncate(a.LogRoot),
		"match":            rootsMatch,
	}
	if !rootsMatch {
		details["failed_stage"] = "chain_integrity"
		return invalid("chain integrity check failed: merkle root mismatch", details)
	}

	details["event_id"] = e.EventID
	details["agent_id"] = e.AgentID
	details["release_id"] = a.ReleaseID
	return valid("complete verification chain is valid", details)
}

// VerifyEPICompliance checks an event's recorded score against a threshold.
// An event without a score is UNKNOWN, not a failure.
func (v *ProofVerifier) VerifyEPICompliance(e *event.TrustEvent, threshold float64) *Result {
	if threshold <= 0 {
		threshold = DefaultEPIThreshold
	}
	if e == nil {
		return invalid("no event provided", nil)
	}
	if e.EPIScore == nil {
		return unknown("event has no epi score", map[string]any{
			"event_id": e.EventID,
		})
	}

	score := *e.EPIScore
	if score >= threshold {
		return valid(
			fmt.Sprintf("event meets epi threshold (%.3f >= %.3f)", score, threshold),
			map[string]any{
				"event_id":  e.EventID,
				"agent_id":  e.AgentID,
				"epi_score": score,
				"threshold": threshold,
				"margin":    score - threshold,
			})
	}
	return invalid(
		fmt.Sprintf("event below epi threshold (%.3f < %.3f)", score, threshold),
		map[string]any{
			"event_id":  e.EventID,
			"agent_id":  e.AgentID,
			"epi_score": score,
			"threshold": threshold,
			"deficit":   threshold - score,
		})
}
