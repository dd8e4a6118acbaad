// Package verify implements the auditor-facing verifiers of the trust
// stack: independent recomputation of claimed decision scores, and the
// event → Merkle inclusion → attestation trust chain.
//
// Verification never fails by panic or error propagation: every check
// returns a structured Result, so batch verification of many claims never
// aborts early. Integrity failures are reported as invalid results, not
// raised as errors.
package verify

// Status classifies a verification outcome.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusUnknown Status = "unknown"
	StatusError   Status = "error"
)

// Result is the outcome of a single verification operation.
type Result struct {
	Status   Status         `json:"status"`
	Verified bool           `json:"verified"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details"`
}

func valid(message string, details map[string]any) *Result {
	return &Result{Status: StatusValid, Verified: true, Message: message, Details: details}
}

func invalid(message string, details map[string]any) *Result {
	return &Result{Status: StatusInvalid, Verified: false, Message: message, Details: details}
}

func unknown(message string, details map[string]any) *Result {
	return &Result{Status: StatusUnknown, Verified: false, Message: message, Details: details}
}

// truncate shortens a hash for inclusion in human-readable details.
func truncate(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16] + "..."
}
