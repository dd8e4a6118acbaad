package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/microai-dao/truststack/internal/attest"
	"github.com/microai-dao/truststack/internal/event"
	"github.com/microai-dao/truststack/internal/merkle"
	"github.com/microai-dao/truststack/internal/signer"
	"github.com/microai-dao/truststack/internal/verify"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var signingKey string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "truststack",
	Short: "Offline auditor CLI for the trust stack",
	Long: `truststack verifies trust events, Merkle inclusion proofs, attestations,
and agent decisions offline, from JSON files exported by the audit log.

All verification needs the HMAC signing key; set it via TRUST_SIGNING_KEY
or --key. The key is never printed or written anywhere.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()
		if signingKey == "" {
			signingKey = viper.GetString("trust.signing_key")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&signingKey, "key", "", "HMAC signing key (default $TRUST_SIGNING_KEY)")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(merkleRootCmd)
	rootCmd.AddCommand(attestCmd)
	rootCmd.AddCommand(versionCmd)
}

func newSigner() (*signer.Signer, error) {
	s, err := signer.New(signingKey)
	if err != nil {
		return nil, fmt.Errorf("signing key (set TRUST_SIGNING_KEY or --key): %w", err)
	}
	return s, nil
}

// readJSON decodes one JSON file into v.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %q: %w", path, err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitOnInvalid makes a failed verification a non-zero exit so the CLI can
// gate CI pipelines and cron audits.
func exitOnInvalid(verified bool) error {
	if !verified {
		os.Exit(1)
	}
	return nil
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify events, proofs, attestations, and decisions from JSON files",
}

var verifyEventCmd = &cobra.Command{
	Use:   "event <event.json>",
	Short: "Check a trust event's HMAC signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSigner()
		if err != nil {
			return err
		}
		var e event.TrustEvent
		if err := readJSON(args[0], &e); err != nil {
			return err
		}

		r := verify.NewProofVerifier(s).VerifyEventSignature(&e)
		if err := printJSON(r); err != nil {
			return err
		}
		return exitOnInvalid(r.Verified)
	},
}

var verifyProofCmd = &cobra.Command{
	Use:   "proof <proof.json>",
	Short: "Replay a Merkle inclusion proof",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSigner()
		if err != nil {
			return err
		}
		var p merkle.Proof
		if err := readJSON(args[0], &p); err != nil {
			return err
		}

		r := verify.NewProofVerifier(s).VerifyMerkleProof(&p)
		if err := printJSON(r); err != nil {
			return err
		}
		return exitOnInvalid(r.Verified)
	},
}

var verifyChainCmd = &cobra.Command{
	Use:   "chain <event.json> <proof.json> <attestation.json>",
	Short: "Run the full event → proof → attestation chain verification",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSigner()
		if err != nil {
			return err
		}

		var e event.TrustEvent
		var p merkle.Proof
		var a attest.Attestation
		if err := readJSON(args[0], &e); err != nil {
			return err
		}
		if err := readJSON(args[1], &p); err != nil {
			return err
		}
		if err := readJSON(args[2], &a); err != nil {
			return err
		}

		r := verify.NewProofVerifier(s).VerifyCompleteChain(&e, &p, &a)
		if err := printJSON(r); err != nil {
			return err
		}
		return exitOnInvalid(r.Verified)
	},
}

var (
	decisionThreshold float64
	decisionReasoning string
)

var verifyDecisionCmd = &cobra.Command{
	Use:   "decision <decision.json | decisions.json>",
	Short: "Recompute and check claimed EPI scores for one or more decisions",
	Long: `decision verifies an agent decision (or a JSON array of decisions):
the signature, the claimed EPI score against an independent recomputation,
and, with --reasoning, the disclosed reasoning against its hash.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSigner()
		if err != nil {
			return err
		}
		v := verify.NewDecisionVerifier(s, decisionThreshold)

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %q: %w", args[0], err)
		}

		// A leading '[' means a batch.
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "[") {
			var ds []*verify.Decision
			if err := json.Unmarshal(data, &ds); err != nil {
				return fmt.Errorf("parse %q: %w", args[0], err)
			}
			r := v.VerifyBatch(ds)
			if err := printJSON(r); err != nil {
				return err
			}
			return exitOnInvalid(r.Invalid == 0)
		}

		var d verify.Decision
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("parse %q: %w", args[0], err)
		}

		var r *verify.DecisionResult
		if decisionReasoning != "" {
			reasoning, err := os.ReadFile(decisionReasoning)
			if err != nil {
				return fmt.Errorf("read reasoning %q: %w", decisionReasoning, err)
			}
			r = v.VerifyDecisionWithReasoning(&d, string(reasoning))
		} else {
			r = v.VerifyDecision(&d)
		}
		if err := printJSON(r); err != nil {
			return err
		}
		return exitOnInvalid(r.IsValid)
	},
}

func init() {
	verifyDecisionCmd.Flags().Float64Var(&decisionThreshold, "threshold", 0, "EPI threshold (default 0.7)")
	verifyDecisionCmd.Flags().StringVar(&decisionReasoning, "reasoning", "", "File with the full disclosed reasoning to check against reasoning_hash")

	verifyCmd.AddCommand(verifyEventCmd)
	verifyCmd.AddCommand(verifyProofCmd)
	verifyCmd.AddCommand(verifyChainCmd)
	verifyCmd.AddCommand(verifyDecisionCmd)
}

// ── root ─────────────────────────────────────────────────────────────────────

var (
	rootDate    string
	rootPrepare bool
	rootChain   string
)

var merkleRootCmd = &cobra.Command{
	Use:   "root <hashes.txt>",
	Short: "Compute the Merkle root over a file of event hashes",
	Long: `root reads one hex event hash per line and prints the Merkle root.
An empty file yields the sentinel empty-day root rather than an error.

With --prepare-anchor it prints a pending anchor record and the 32-byte
transaction payload for the on-chain anchoring collaborator.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %q: %w", args[0], err)
		}
		defer f.Close()

		var hashes []string
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				hashes = append(hashes, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read %q: %w", args[0], err)
		}

		root := merkle.EmptyDayRoot
		if len(hashes) > 0 {
			tree, err := merkle.New(hashes)
			if err != nil {
				return err
			}
			root = tree.Root()
		}

		if !rootPrepare {
			fmt.Println(root)
			return nil
		}

		record := &merkle.AnchorRecord{
			Date:       rootDate,
			MerkleRoot: root,
			Chain:      rootChain,
			Status:     merkle.AnchorStatusPending,
		}
		callData, err := record.CallData()
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"record":    record,
			"call_data": callData,
		})
	},
}

func init() {
	merkleRootCmd.Flags().StringVar(&rootDate, "date", "", "UTC date of the hashes (YYYY-MM-DD)")
	merkleRootCmd.Flags().BoolVar(&rootPrepare, "prepare-anchor", false, "Emit a pending anchor record with on-chain call data")
	merkleRootCmd.Flags().StringVar(&rootChain, "chain", "ethereum-sepolia", "Target chain name for the anchor record")
}

// ── attest ───────────────────────────────────────────────────────────────────

var (
	attestCard    string
	attestSBOM    string
	attestSummary string
	attestRoot    string
	attestRelease string
	attestPolicy  string
	attestOut     string
)

var attestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Generate a signed transparency attestation",
	Long: `attest bundles a model card, an SBOM, an evaluation summary, and a
daily log root into a signed attestation, written as JSON to --out
(stdout when omitted).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSigner()
		if err != nil {
			return err
		}
		gen, err := attest.NewGenerator(s, zap.NewNop())
		if err != nil {
			return err
		}

		var card attest.ModelCard
		if err := readJSON(attestCard, &card); err != nil {
			return err
		}
		var sbom attest.SBOM
		if err := readJSON(attestSBOM, &sbom); err != nil {
			return err
		}
		var summary attest.EvalSummary
		if err := readJSON(attestSummary, &summary); err != nil {
			return err
		}

		// Files exported without a content hash get one computed here, over
		// the same canonical encoding the generator uses.
		if card.Hash == "" {
			if card.Hash, err = signer.CanonicalHash(&card); err != nil {
				return err
			}
		}
		if sbom.Hash == "" {
			if sbom.Hash, err = signer.CanonicalHash(&sbom); err != nil {
				return err
			}
		}

		a, err := gen.GenerateAttestation(attestRelease, &card, &sbom, summary, attestRoot, attestPolicy, nil, nil)
		if err != nil {
			return err
		}

		if attestOut == "" {
			return printJSON(a)
		}
		data, err := json.MarshalIndent(a, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(attestOut, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write %q: %w", attestOut, err)
		}
		fmt.Printf("✓ Attestation written: %s (release %s)\n", attestOut, a.ReleaseID)
		return nil
	},
}

func init() {
	attestCmd.Flags().StringVar(&attestCard, "model-card", "", "Model card JSON file")
	attestCmd.Flags().StringVar(&attestSBOM, "sbom", "", "SBOM JSON file")
	attestCmd.Flags().StringVar(&attestSummary, "eval-summary", "", "Evaluation summary JSON file")
	attestCmd.Flags().StringVar(&attestRoot, "log-root", "", "Daily Merkle log root (hex)")
	attestCmd.Flags().StringVar(&attestRelease, "release", "", "Release identifier")
	attestCmd.Flags().StringVar(&attestPolicy, "policy", "", "Policy version the release was evaluated under")
	attestCmd.Flags().StringVar(&attestOut, "out", "", "Output file (stdout when omitted)")

	_ = attestCmd.MarkFlagRequired("model-card")
	_ = attestCmd.MarkFlagRequired("sbom")
	_ = attestCmd.MarkFlagRequired("eval-summary")
	_ = attestCmd.MarkFlagRequired("log-root")
	_ = attestCmd.MarkFlagRequired("release")
	_ = attestCmd.MarkFlagRequired("policy")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the truststack CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("truststack %s\n", version)
	},
}
