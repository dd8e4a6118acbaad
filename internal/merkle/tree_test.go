package merkle_test

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/microai-dao/truststack/internal/merkle"
)

func leafHashes(n int) []string {
	hashes := make([]string, n)
	for i := range hashes {
		sum := sha256.Sum256([]byte(fmt.Sprintf("event_%d", i)))
		hashes[i] = hex.EncodeToString(sum[:])
	}
	return hashes
}

func TestNew_emptyLeaves(t *testing.T) {
	if _, err := merkle.New(nil); !errors.Is(err, merkle.ErrNoLeaves) {
		t.Errorf("New(nil) error = %v, want ErrNoLeaves", err)
	}
}

func TestNew_singleLeaf(t *testing.T) {
	leaves := leafHashes(1)
	tree, err := merkle.New(leaves)
	if err != nil {
		t.Fatal(err)
	}
	if tree.Root() != leaves[0] {
		t.Errorf("single-leaf root: got %s, want the leaf itself", tree.Root())
	}
}

func TestHashPair_hexConcat(t *testing.T) {
	// HashPair hashes the ASCII concatenation of the hex strings, not the
	// decoded bytes. sha256("ab") is the fixed vector for left="a", right="b".
	got := merkle.HashPair("a", "b")
	want := "fb8e20fc2e4c3f248c60c39bd652f3c1347298bb977b8b4d5903b85055620603"
	if got != want {
		t.Errorf("HashPair(\"a\",\"b\") = %s, want %s", got, want)
	}
}

func TestProof_everyLeafVerifies(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 10} {
		leaves := leafHashes(n)
		tree, err := merkle.New(leaves)
		if err != nil {
			t.Fatal(err)
		}
		for i, leaf := range leaves {
			proof, err := tree.Proof(leaf)
			if err != nil {
				t.Fatalf("n=%d leaf %d: %v", n, i, err)
			}
			if !merkle.VerifyProof(proof) {
				t.Errorf("n=%d leaf %d: proof did not verify", n, i)
			}
			if proof.Root != tree.Root() {
				t.Errorf("n=%d leaf %d: proof root mismatch", n, i)
			}
		}
	}
}

func TestProof_absentLeaf(t *testing.T) {
	tree, _ := merkle.New(leafHashes(4))
	if _, err := tree.Proof("deadbeef"); !errors.Is(err, merkle.ErrLeafNotFound) {
		t.Errorf("Proof(absent) error = %v, want ErrLeafNotFound", err)
	}
}

func TestVerifyProof_tamperedSibling(t *testing.T) {
	tree, _ := merkle.New(leafHashes(5))
	leaves := leafHashes(5)
	proof, err := tree.Proof(leaves[2])
	if err != nil {
		t.Fatal(err)
	}

	proof.Siblings[0] = merkle.HashPair("x", "y")
	if merkle.VerifyProof(proof) {
		t.Error("tampered proof verified")
	}
}

func TestVerifyProof_malformed(t *testing.T) {
	if merkle.VerifyProof(nil) {
		t.Error("nil proof verified")
	}
	if merkle.VerifyProof(&merkle.Proof{LeafHash: "a", Siblings: []string{"b"}, Path: nil, Root: "c"}) {
		t.Error("length-mismatched proof verified")
	}
}

func TestOddLeafCount_duplicatesLastNode(t *testing.T) {
	// A 3-leaf tree must equal the tree where leaf 3 is duplicated to make 4.
	leaves := leafHashes(3)
	tree3, err := merkle.New(leaves)
	if err != nil {
		t.Fatal(err)
	}
	tree4, err := merkle.New(append(append([]string{}, leaves...), leaves[2]))
	if err != nil {
		t.Fatal(err)
	}
	if tree3.Root() != tree4.Root() {
		t.Errorf("3-leaf root %s != duplicated 4-leaf root %s", tree3.Root(), tree4.Root())
	}
}

func TestInfo_fiveLeaves(t *testing.T) {
	tree, _ := merkle.New(leafHashes(5))
	info := tree.Info()

	if info.LeafCount != 5 {
		t.Errorf("leaf count: got %d, want 5", info.LeafCount)
	}
	// ceil(log2(5)) + 1 levels: 5 -> 3 -> 2 -> 1.
	if info.Height != 4 {
		t.Errorf("height: got %d, want 4", info.Height)
	}
	wantLevels := []int{5, 3, 2, 1}
	if len(info.Levels) != len(wantLevels) {
		t.Fatalf("levels: got %v, want %v", info.Levels, wantLevels)
	}
	for i, n := range wantLevels {
		if info.Levels[i] != n {
			t.Errorf("level %d: got %d, want %d", i, info.Levels[i], n)
		}
	}
	if info.Root != tree.Root() {
		t.Error("info root mismatch")
	}
}
