package verify

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/microai-dao/truststack/internal/signer"
)

// DefaultEPIThreshold is the minimum recomputed score for a decision to be
// considered compliant.
const DefaultEPIThreshold = 0.7

// phi is the golden-ratio conjugate used by the balance penalty.
var phi = (math.Sqrt(5) - 1) / 2

// epiTolerance bounds the allowed float drift between a claimed score and
// its recomputation.
const epiTolerance = 0.001

// trustFloor clamps the violation trust product to zero once it becomes
// negligible.
const trustFloor = 1e-6

// Decision is a claimed agent decision submitted for independent
// verification. It is constructed by the agent process and consumed
// read-only here.
type Decision struct {
	DecisionID    string    `json:"decision_id"`
	AgentID       string    `json:"agent_id"`
	ActionType    string    `json:"action_type"`
	Timestamp     string    `json:"timestamp"`
	ProfitScore   float64   `json:"profit_score"`
	EthicsScore   float64   `json:"ethics_score"`
	Violations    []float64 `json:"violations"` // severities in [0,1)
	EPIScore      float64   `json:"epi_score"`  // claimed
	Reasoning     string    `json:"reasoning"`
	Signature     string    `json:"signature"`
	ReasoningHash string    `json:"reasoning_hash"`
}

// DecisionResult reports the three verification checks and an aggregate
// confidence.
type DecisionResult struct {
	IsValid        bool           `json:"is_valid"`
	SignatureValid bool           `json:"signature_valid"`
	EPIValid       bool           `json:"epi_valid"`
	ReasoningValid bool           `json:"reasoning_valid"`
	Confidence     float64        `json:"confidence"`
	Details        map[string]any `json:"details"`
	Timestamp      time.Time      `json:"timestamp"`
}

// BatchResult aggregates a batch verification run.
type BatchResult struct {
	Total         int               `json:"total"`
	Valid         int               `json:"valid"`
	Invalid       int               `json:"invalid"`
	ValidityRate  float64           `json:"validity_rate"`
	AvgConfidence float64           `json:"avg_confidence"`
	Results       []*DecisionResult `json:"results"`
}

// HarmonicMean is the profit/ethics harmonic mean; zero when either input
// is zero. Symmetric in its arguments.
func HarmonicMean(profit, ethics float64) float64 {
	if profit == 0 || ethics == 0 {
		return 0
	}
	return 2 * profit * ethics / (profit + ethics)
}

// BalancePenalty discounts imbalanced profit/ethics pairs by the golden
// ratio of their gap, clamped at zero.
func BalancePenalty(profit, ethics float64) float64 {
	penalty := 1 - phi*math.Abs(profit-ethics)
	if penalty < 0 {
		return 0
	}
	return penalty
}

// TrustFactor is the product of (1 - severity) over all violations,
// clamped to zero once it falls below 1e-6. No violations yield 1.
func TrustFactor(violations []float64) float64 {
	trust := 1.0
	for _, v := range violations {
		trust *= 1 - v
		if trust < trustFloor {
			return 0
		}
	}
	return trust
}

// EPIScore recomputes the ethical-profitability score from its components.
func EPIScore(profit, ethics float64, violations []float64) float64 {
	return HarmonicMean(profit, ethics) * BalancePenalty(profit, ethics) * TrustFactor(violations)
}

// SignatureMessage is the exact byte layout an agent signs for a decision.
func SignatureMessage(d *Decision) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		d.DecisionID, d.AgentID, d.Timestamp,
		strconv.FormatFloat(d.EPIScore, 'g', -1, 64),
	)
}

// DecisionVerifier independently recomputes claimed decision scores and
// validates decision signatures and reasoning hashes.
type DecisionVerifier struct {
	signer    *signer.Signer
	threshold float64
}

// NewDecisionVerifier wires a DecisionVerifier. A non-positive threshold
// falls back to DefaultEPIThreshold.
func NewDecisionVerifier(s *signer.Signer, threshold float64) *DecisionVerifier {
	if threshold <= 0 {
		threshold = DefaultEPIThreshold
	}
	return &DecisionVerifier{signer: s, threshold: threshold}
}

// Threshold returns the configured minimum score.
func (v *DecisionVerifier) Threshold() float64 {
	return v.threshold
}

// VerifyDecision runs the three checks without a full reasoning text; the
// reasoning check passes iff a reasoning hash is present at all.
func (v *DecisionVerifier) VerifyDecision(d *Decision) *DecisionResult {
	return v.verify(d, nil)
}

// VerifyDecisionWithReasoning additionally checks that the SHA-256 of the
// provided full reasoning text matches the decision's reasoning hash.
func (v *DecisionVerifier) VerifyDecisionWithReasoning(d *Decision, fullReasoning string) *DecisionResult {
	return v.verify(d, &fullReasoning)
}

func (v *DecisionVerifier) verify(d *Decision, fullReasoning *string) *DecisionResult {
	details := map[string]any{}

	// 1. Signature: proves the agent authorised this decision.
	signatureValid := v.signer.Verify([]byte(SignatureMessage(d)), d.Signature)
	details["signature_check"] = map[string]any{
		"valid":     signatureValid,
		"agent_id":  d.AgentID,
		"timestamp": d.Timestamp,
	}

	// 2. Score: recompute from components and compare against the claim
	// and the threshold.
	calculated := EPIScore(d.ProfitScore, d.EthicsScore, d.Violations)
	scoreMatches := math.Abs(calculated-d.EPIScore) < epiTolerance
	meetsThreshold := calculated >= v.threshold
	epiValid := scoreMatches && meetsThreshold
	details["epi_check"] = map[string]any{
		"valid":           epiValid,
		"claimed_epi":     d.EPIScore,
		"calculated_epi":  calculated,
		"threshold":       v.threshold,
		"meets_threshold": meetsThreshold,
	}

	// 3. Reasoning integrity.
	reasoningValid := v.verifyReasoning(d, fullReasoning)
	details["reasoning_check"] = map[string]any{
		"valid":          reasoningValid,
		"hash_match":     reasoningValid,
		"reasoning_hash": d.ReasoningHash,
	}

	return &DecisionResult{
		IsValid:        signatureValid && epiValid && reasoningValid,
		SignatureValid: signatureValid,
		EPIValid:       epiValid,
		ReasoningValid: reasoningValid,
		Confidence:     v.confidence(signatureValid, epiValid, reasoningValid, calculated),
		Details:        details,
		Timestamp:      time.Now().UTC(),
	}
}

func (v *DecisionVerifier) verifyReasoning(d *Decision, fullReasoning *string) bool {
	if fullReasoning == nil {
		return d.ReasoningHash != ""
	}
	return signer.Equal(signer.Hash([]byte(*fullReasoning)), d.ReasoningHash)
}

// confidence is checks-passed/3, boosted by up to 0.1 proportionally to how
// far the recomputed score clears the threshold, capped at 1.
func (v *DecisionVerifier) confidence(signatureValid, epiValid, reasoningValid bool, calculated float64) float64 {
	passed := 0
	for _, ok := range []bool{signatureValid, epiValid, reasoningValid} {
		if ok {
			passed++
		}
	}
	confidence := float64(passed) / 3

	if calculated > v.threshold+0.1 {
		confidence += math.Min(0.1, (calculated-v.threshold)*0.5)
	}
	return math.Min(1.0, confidence)
}

// VerifyBatch verifies many decisions and aggregates the outcome. A failing
// decision never aborts the batch.
func (v *DecisionVerifier) VerifyBatch(decisions []*Decision) *BatchResult {
	batch := &BatchResult{Total: len(decisions)}
	var confidenceSum float64

	for _, d := range decisions {
		r := v.VerifyDecision(d)
		batch.Results = append(batch.Results, r)
		confidenceSum += r.Confidence
		if r.IsValid {
			batch.Valid++
		} else {
			batch.Invalid++
		}
	}

	if batch.Total > 0 {
		batch.ValidityRate = float64(batch.Valid) / float64(batch.Total)
		batch.AvgConfidence = confidenceSum / float64(batch.Total)
	}
	return batch
}
