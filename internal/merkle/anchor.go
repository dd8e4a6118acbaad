package merkle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// EmptyDayRoot is the sentinel root for a calendar day with zero events:
// sha256("empty"). Every day has a defined root, so an auditor can
// distinguish "nothing happened" from "the log is missing".
var EmptyDayRoot = func() string {
	sum := sha256.Sum256([]byte("empty"))
	return hex.EncodeToString(sum[:])
}()

// AnchorStatusPending marks an anchor record that has not yet been
// submitted by the on-chain anchoring collaborator.
const AnchorStatusPending = "pending"

// AnchorRecord is the pending record handed to the external anchoring
// collaborator. TxHash stays nil until the collaborator fills it in after
// submission; this package never talks to a chain itself.
type AnchorRecord struct {
	Date       string  `json:"date"`
	MerkleRoot string  `json:"merkle_root"`
	Chain      string  `json:"chain"`
	Status     string  `json:"status"`
	TxHash     *string `json:"tx_hash"`
}

// RootHash returns the Merkle root as a chain-native 32-byte hash,
// validating that the root is well-formed hex of the right length.
func (r *AnchorRecord) RootHash() (common.Hash, error) {
	b, err := hexutil.Decode("0x" + r.MerkleRoot)
	if err != nil {
		return common.Hash{}, fmt.Errorf("anchor root is not valid hex: %w", err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("anchor root is %d bytes, want %d", len(b), common.HashLength)
	}
	return common.BytesToHash(b), nil
}

// CallData returns the 32-byte transaction payload the anchoring
// collaborator submits on-chain.
func (r *AnchorRecord) CallData() (hexutil.Bytes, error) {
	h, err := r.RootHash()
	if err != nil {
		return nil, err
	}
	return hexutil.Bytes(h.Bytes()), nil
}

// DailyAnchor produces one Merkle root per calendar day and prepares
// pending anchor records for external submission.
type DailyAnchor struct {
	chain  string
	cache  RootCache
	logger *zap.Logger
}

// NewDailyAnchor creates a DailyAnchor targeting the named chain
// (e.g. "ethereum-sepolia").
func NewDailyAnchor(chain string, cache RootCache, logger *zap.Logger) *DailyAnchor {
	if cache == nil {
		cache = NewMemoryRootCache()
	}
	return &DailyAnchor{chain: chain, cache: cache, logger: logger}
}

// GenerateDailyRoot builds the Merkle root over a day's event hashes and
// caches it by date. An empty day yields EmptyDayRoot rather than an error.
func (a *DailyAnchor) GenerateDailyRoot(ctx context.Context, date string, eventHashes []string) (string, error) {
	var root string
	if len(eventHashes) == 0 {
		root = EmptyDayRoot
	} else {
		tree, err := New(eventHashes)
		if err != nil {
			return "", err
		}
		root = tree.Root()
	}

	if err := a.cache.Set(ctx, date, root); err != nil {
		return "", err
	}

	a.logger.Info("daily merkle root generated",
		zap.String("date", date),
		zap.String("root", root),
		zap.Int("events", len(eventHashes)),
	)
	return root, nil
}

// RootForDate returns the cached root for a date, or ErrRootNotCached.
func (a *DailyAnchor) RootForDate(ctx context.Context, date string) (string, error) {
	return a.cache.Get(ctx, date)
}

// PrepareAnchorTransaction returns a pending anchor record for the external
// on-chain-anchoring collaborator to submit and complete.
func (a *DailyAnchor) PrepareAnchorTransaction(date, root string) *AnchorRecord {
	return &AnchorRecord{
		Date:       date,
		MerkleRoot: root,
		Chain:      a.chain,
		Status:     AnchorStatusPending,
		TxHash:     nil,
	}
}
