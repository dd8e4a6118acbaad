// Package merkle builds binary hash trees over a day's event hashes and
// produces and verifies inclusion proofs for compact on-chain anchoring.
//
// Two wire-format rules are load-bearing and must not change, because
// existing proofs were generated under them:
//
//   - HashPair concatenates the two lowercase hex strings and hashes the
//     ASCII bytes of the concatenation, not the decoded digests.
//   - When a level has an odd node count, the last node is paired with
//     itself rather than promoted. Some Merkle implementations promote the
//     lone node unchanged; this one keeps the duplication for compatibility
//     with proofs already in circulation.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrNoLeaves is returned when constructing a tree from an empty leaf list.
var ErrNoLeaves = errors.New("merkle: cannot build tree from empty leaf list")

// ErrLeafNotFound is returned by Proof for a hash that is not a leaf.
var ErrLeafNotFound = errors.New("merkle: leaf not in tree")

// Proof is an inclusion proof: replaying HashPair over Siblings/Path from
// LeafHash reproduces Root iff the leaf is included. Siblings are ordered
// bottom-up; Path[i] is true when the i-th sibling sits to the right.
type Proof struct {
	LeafHash string   `json:"leaf_hash"`
	Siblings []string `json:"siblings"`
	Root     string   `json:"root"`
	Path     []bool   `json:"path"`
}

// Tree is an immutable binary hash tree. Construction and all methods are
// read-only after New returns, so a Tree is safe for concurrent use.
type Tree struct {
	leaves []string
	levels [][]string // bottom (leaves) to top (root)
}

// New builds a tree over the given leaf hashes.
func New(leafHashes []string) (*Tree, error) {
	if len(leafHashes) == 0 {
		return nil, ErrNoLeaves
	}

	leaves := make([]string, len(leafHashes))
	copy(leaves, leafHashes)

	levels := [][]string{leaves}
	for len(levels[len(levels)-1]) > 1 {
		current := levels[len(levels)-1]
		next := make([]string, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			left := current[i]
			right := left // odd count: pair the last node with itself
			if i+1 < len(current) {
				right = current[i+1]
			}
			next = append(next, HashPair(left, right))
		}
		levels = append(levels, next)
	}

	return &Tree{leaves: leaves, levels: levels}, nil
}

// HashPair hashes two nodes: sha256 over the concatenation of the two hex
// strings. Preserved exactly for cross-implementation proof compatibility.
func HashPair(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}

// Root returns the tree's root hash.
func (t *Tree) Root() string {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof generates the inclusion proof for a leaf hash. For duplicate leaves
// the proof targets the first occurrence.
func (t *Tree) Proof(leafHash string) (*Proof, error) {
	index := -1
	for i, leaf := range t.leaves {
		if leaf == leafHash {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, ErrLeafNotFound
	}

	var (
		siblings []string
		path     []bool
	)
	for _, level := range t.levels[:len(t.levels)-1] {
		var siblingIndex int
		if index%2 == 0 {
			siblingIndex = index + 1
			path = append(path, true) // sibling on the right
		} else {
			siblingIndex = index - 1
			path = append(path, false) // sibling on the left
		}

		if siblingIndex < len(level) {
			siblings = append(siblings, level[siblingIndex])
		} else {
			// Odd-count duplication: the sibling is the node itself.
			siblings = append(siblings, level[index])
		}
		index /= 2
	}

	return &Proof{
		LeafHash: leafHash,
		Siblings: siblings,
		Root:     t.Root(),
		Path:     path,
	}, nil
}

// VerifyProof folds HashPair over the proof and compares the result to the
// claimed root.
func VerifyProof(p *Proof) bool {
	if p == nil || len(p.Siblings) != len(p.Path) {
		return false
	}
	current := p.LeafHash
	for i, sibling := range p.Siblings {
		if p.Path[i] {
			current = HashPair(current, sibling)
		} else {
			current = HashPair(sibling, current)
		}
	}
	return current == p.Root
}

// Info describes the tree shape. Diagnostic only.
type Info struct {
	LeafCount int    `json:"leaf_count"`
	Height    int    `json:"tree_height"`
	Root      string `json:"root"`
	Levels    []int  `json:"levels"`
}

// Info returns leaf count, height, and per-level node counts.
func (t *Tree) Info() Info {
	levels := make([]int, len(t.levels))
	for i, level := range t.levels {
		levels[i] = len(level)
	}
	return Info{
		LeafCount: len(t.leaves),
		Height:    len(t.levels),
		Root:      t.Root(),
		Levels:    levels,
	}
}
