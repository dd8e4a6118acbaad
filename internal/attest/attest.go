// Package attest assembles signed attestation bundles for releases: model
// card hash, SBOM hash, evaluation summary, the day's event-log Merkle root,
// and policy version, co-signable by guardians.
package attest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/microai-dao/truststack/internal/signer"
)

// ErrNoSigner is returned when a Generator is constructed without a signer.
// Attestations must never fall back to a built-in key.
var ErrNoSigner = errors.New("attest: generator requires a configured signer")

// ModelCard documents a model release. Hash covers the canonical encoding
// of every other field.
type ModelCard struct {
	Name               string             `json:"name"`
	Version            string             `json:"version"`
	Description        string             `json:"description"`
	IntendedUse        string             `json:"intended_use"`
	Limitations        string             `json:"limitations"`
	TrainingData       string             `json:"training_data"`
	PerformanceMetrics map[string]float64 `json:"performance_metrics"`
	CreatedAt          string             `json:"created_at"`
	Hash               string             `json:"hash,omitempty"`
}

// Component is one entry of a software bill of materials.
type Component struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	License string `json:"license"`
}

// SBOM is a hashed software bill of materials.
type SBOM struct {
	Format     string      `json:"format"` // SPDX or CycloneDX
	Version    string      `json:"version"`
	Components []Component `json:"components"`
	CreatedAt  string      `json:"created_at"`
	Hash       string      `json:"hash,omitempty"`
}

// EvalSummary aggregates evaluation statistics for a release.
type EvalSummary struct {
	CoveragePct float64            `json:"coverage_pct"`
	PassRate    float64            `json:"pass_rate"`
	LastRedTeam string             `json:"last_red_team"`
	Categories  map[string]float64 `json:"categories"`
}

// CategoryResult is the raw per-category input to CompileEvalSummary.
type CategoryResult struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
}

// Attestation is a release attestation bundle. Signatures[0] is the primary
// signature over the canonical encoding of all other fields; later entries
// are guardian co-signatures over the same payload under different keys.
type Attestation struct {
	ReleaseID            string         `json:"release_id"`
	ReleaseDate          string         `json:"release_date"`
	ModelCard            string         `json:"model_card"` // hash
	SBOM                 string         `json:"sbom"`       // hash
	EvalSummary          EvalSummary    `json:"eval_summary"`
	LogRoot              string         `json:"log_root"` // day's Merkle root
	PolicyVersion        string         `json:"policy_version"`
	ComplianceFrameworks []string       `json:"compliance_frameworks"`
	Signatures           []string       `json:"signatures"`
	Metadata             map[string]any `json:"metadata"`
}

/// SigningPayload returns the canonical bytes the signatures cover: the
// attestation with the signatures field removed.
func (a *Attestation) SigningPayload() ([]byte, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("attest: marshal: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("attest: remarshal: %w", err)
	}
	delete(fields, "signatures")
	return signer.Canonical(fields)
}

// Verify checks expectedSig against the attestation's signing payload under
// the given key, in constant time.
func Verify(s *signer.Signer, a *Attestation, expectedSig string) bool {
	if a == nil || expectedSig == "" {
		return false
	}
	payload, err := a.SigningPayload()
	if err != nil {
		return false
	}
	return s.Verify(payload, expectedSig)
}

// Generator builds and signs attestation bundles.
type Generator struct {
	signer *signer.Signer
	logger *zap.Logger
}

// NewGenerator wires a Generator. An explicit signer is mandatory.
func NewGenerator(s *signer.Signer, logger *zap.Logger) (*Generator, error) {
	if s == nil {
		return nil, ErrNoSigner
	}
	return &Generator{signer: s, logger: logger}, nil
}

// NewModelCard builds and hashes a model card.
func (g *Generator) NewModelCard(name, version, description, intendedUse, limitations, trainingData string, metrics map[string]float64) (*ModelCard, error) {
	card := &ModelCard{
		Name:               name,
		Version:            version,
		Description:        description,
		IntendedUse:        intendedUse,
		Limitations:        limitations,
		TrainingData:       trainingData,
		PerformanceMetrics: metrics,
		CreatedAt:          nowUTC(),
	}
	hash, err := signer.CanonicalHash(card)
	if err != nil {
		return nil, err
	}
	card.Hash = hash
	return card, nil
}

// NewSBOM builds and hashes a software bill of materials. format is SPDX
// or CycloneDX; the spec version follows the format.
func (g *Generator) NewSBOM(components []Component, format string) (*SBOM, error) {
	version := "1.4"
	if format == "SPDX" {
		version = "2.3"
	}
	sbom := &SBOM{
		Format:     format,
		Version:    version,
		Components: components,
		CreatedAt:  nowUTC(),
	}
	hash, err := signer.CanonicalHash(sbom)
	if err != nil {
		return nil, err
	}
	sbom.Hash = hash
	return sbom, nil
}

// CompileEvalSummary derives coverage and pass-rate percentages from raw
// counts. Zero denominators yield zero rather than an error.
func (g *Generator) CompileEvalSummary(totalRequests, evaluatedRequests, passedRequests int, categoryResults map[string]CategoryResult, lastRedTeamDate string) EvalSummary {
	var coverage, passRate float64
	if totalRequests > 0 {
		coverage = float64(evaluatedRequests) / float64(totalRequests) * 100
	}
	if evaluatedRequests > 0 {
		passRate = float64(passedRequests) / float64(evaluatedRequests) * 100
	}

	categories := make(map[string]float64, len(categoryResults))
	for name, r := range categoryResults {
		var rate float64
		if r.Total > 0 {
			rate = float64(r.Passed) / float64(r.Total) * 100
		}
		categories[name] = rate
	}

	return EvalSummary{
		CoveragePct: round2(coverage),
		PassRate:    round2(passRate),
		LastRedTeam: lastRedTeamDate,
		Categories:  categories,
	}
}

// GenerateAttestation stamps the release date, signs the bundle's canonical
// payload, and returns the attestation with the primary signature attached.
func (g *Generator) GenerateAttestation(releaseID string, card *ModelCard, sbom *SBOM, summary EvalSummary, logRoot, policyVersion string, frameworks []string, metadata map[string]any) (*Attestation, error) {
	if frameworks == nil {
		frameworks = []string{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	a := &Attestation{
		ReleaseID:            releaseID,
		ReleaseDate:          nowUTC(),
		ModelCard:            card.Hash,
		SBOM:                 sbom.Hash,
		EvalSummary:          summary,
		LogRoot:              logRoot,
		PolicyVersion:        policyVersion,
		ComplianceFrameworks: frameworks,
		Metadata:             metadata,
	}

	payload, err := a.SigningPayload()
	if err != nil {
		return nil, err
	}
	a.Signatures = []string{g.signer.Sign(payload)}

	g.logger.Info("attestation generated",
		zap.String("release_id", releaseID),
		zap.String("log_root", logRoot),
		zap.String("policy_version", policyVersion),
	)
	return a, nil
}

// AddGuardianSignature appends a co-signature computed over the same
// canonical payload under the guardian's key. The guardian key is validated
// with the same placeholder policy as the primary key.
func (g *Generator) AddGuardianSignature(a *Attestation, guardianKey string) error {
	guardian, err := signer.New(guardianKey)
	if err != nil {
		return err
	}
	payload, err := a.SigningPayload()
	if err != nil {
		return err
	}
	a.Signatures = append(a.Signatures, guardian.Sign(payload))
	return nil
}

// VerifyAttestation checks expectedSig against the bundle under the
// generator's key.
func (g *Generator) VerifyAttestation(a *Attestation, expectedSig string) bool {
	return Verify(g.signer, a, expectedSig)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
