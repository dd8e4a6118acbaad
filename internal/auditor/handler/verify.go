package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/microai-dao/truststack/internal/attest"
	"github.com/microai-dao/truststack/internal/event"
	"github.com/microai-dao/truststack/internal/merkle"
	"github.com/microai-dao/truststack/internal/verify"
)

// VerifyHandler exposes the verification endpoints. Every endpoint returns a
// structured result with HTTP 200; a failed check is a negative result, not
// an HTTP error. Only malformed request bodies produce 400.
type VerifyHandler struct {
	proofs    *verify.ProofVerifier
	decisions *verify.DecisionVerifier
	logger    *zap.Logger
}

// NewVerifyHandler creates a new VerifyHandler.
func NewVerifyHandler(proofs *verify.ProofVerifier, decisions *verify.DecisionVerifier, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{proofs: proofs, decisions: decisions, logger: logger}
}

// Register mounts the verification routes on the given router group.
func (h *VerifyHandler) Register(rg *gin.RouterGroup) {
	v := rg.Group("/verify")
	{
		v.POST("/event", h.Event)
		v.POST("/proof", h.Proof)
		v.POST("/attestation", h.Attestation)
		v.POST("/chain", h.Chain)
		v.POST("/decision", h.Decision)
		v.POST("/decisions", h.Decisions)
		v.POST("/epi", h.EPI)
	}
}

// ChainRequest is the body of POST /verify/chain.
type ChainRequest struct {
	Event       *event.TrustEvent   `json:"event" binding:"required"`
	Proof       *merkle.Proof       `json:"proof" binding:"required"`
	Attestation *attest.Attestation `json:"attestation" binding:"required"`
}

// DecisionRequest is the body of POST /verify/decision.
type DecisionRequest struct {
	Decision      *verify.Decision `json:"decision" binding:"required"`
	FullReasoning *string          `json:"full_reasoning"`
}

// EPIRequest is the body of POST /verify/epi. A zero threshold means the
// verifier's configured threshold.
type EPIRequest struct {
	Event     *event.TrustEvent `json:"event" binding:"required"`
	Threshold float64           `json:"threshold"`
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, &verify.Result{
		Status:  verify.StatusError,
		Message: msg,
	})
}

// Event handles POST /verify/event — checks a trust event's HMAC signature.
func (h *VerifyHandler) Event(c *gin.Context) {
	var e event.TrustEvent
	if err := c.ShouldBindJSON(&e); err != nil {
		badRequest(c, "malformed trust event payload")
		return
	}

	r := h.proofs.VerifyEventSignature(&e)
	RecordVerification("event", string(r.Status))
	c.JSON(http.StatusOK, r)
}

// Proof handles POST /verify/proof — replays a Merkle inclusion proof.
func (h *VerifyHandler) Proof(c *gin.Context) {
	var p merkle.Proof
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, "malformed merkle proof payload")
		return
	}

	r := h.proofs.VerifyMerkleProof(&p)
	RecordVerification("proof", string(r.Status))
	c.JSON(http.StatusOK, r)
}

// Attestation handles POST /verify/attestation — checks an attestation's
// primary signature.
func (h *VerifyHandler) Attestation(c *gin.Context) {
	var a attest.Attestation
	if err := c.ShouldBindJSON(&a); err != nil {
		badRequest(c, "malformed attestation payload")
		return
	}

	r := h.proofs.VerifyAttestation(&a)
	RecordVerification("attestation", string(r.Status))
	c.JSON(http.StatusOK, r)
}

// Chain handles POST /verify/chain — runs the full event, proof, attestation,
// chain-integrity verification.
func (h *VerifyHandler) Chain(c *gin.Context) {
	var req ChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "chain request needs event, proof, and attestation")
		return
	}

	r := h.proofs.VerifyCompleteChain(req.Event, req.Proof, req.Attestation)
	RecordVerification("chain", string(r.Status))
	c.JSON(http.StatusOK, r)
}

// Decision handles POST /verify/decision — recomputes a decision's EPI score
// and checks its signature, optionally against disclosed full reasoning.
func (h *VerifyHandler) Decision(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed decision payload")
		return
	}

	var r *verify.DecisionResult
	if req.FullReasoning != nil {
		r = h.decisions.VerifyDecisionWithReasoning(req.Decision, *req.FullReasoning)
	} else {
		r = h.decisions.VerifyDecision(req.Decision)
	}
	RecordVerification("decision", decisionStatus(r.IsValid))
	c.JSON(http.StatusOK, r)
}

// Decisions handles POST /verify/decisions — verifies a batch of decisions
// and returns aggregate counts alongside per-decision results.
func (h *VerifyHandler) Decisions(c *gin.Context) {
	var ds []*verify.Decision
	if err := c.ShouldBindJSON(&ds); err != nil {
		badRequest(c, "malformed decision batch payload")
		return
	}

	r := h.decisions.VerifyBatch(ds)
	RecordVerification("batch", decisionStatus(r.Invalid == 0))
	c.JSON(http.StatusOK, r)
}

// EPI handles POST /verify/epi — checks a trust event's recorded EPI score
// against a threshold.
func (h *VerifyHandler) EPI(c *gin.Context) {
	var req EPIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed epi request payload")
		return
	}

	threshold := req.Threshold
	if threshold <= 0 {
		threshold = h.decisions.Threshold()
	}

	r := h.proofs.VerifyEPICompliance(req.Event, threshold)
	RecordVerification("epi", string(r.Status))
	c.JSON(http.StatusOK, r)
}

func decisionStatus(valid bool) string {
	if valid {
		return string(verify.StatusValid)
	}
	return string(verify.StatusInvalid)
}
