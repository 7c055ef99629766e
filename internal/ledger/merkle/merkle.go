// Package merkle commits to an ordered list of message digests.
//
// Tree shape:
//
//   - leaf     = keccak256(keccak256(digest))
//   - node     = keccak256(min(a, b) || max(a, b))
//   - odd node = carried up unchanged to the next level
//
// Leaves keep their input order. Sorting each pair before hashing means a
// verifier needs only the sibling hashes, not their side, which is the form
// EVM Merkle proof verifiers accept. The carry-up rule is fixed: proofs made
// under another odd-level rule do not verify against these roots.
//
// Trees are rebuilt from scratch for every request. That is linear in the
// chain length and fine for ticket chains, which are short lived; very long
// chains would need an incremental structure.
package merkle

import (
	"errors"

	"ticket_ledger/internal/cryptographic/hash"
)

var (
	ErrEmptyTree    = errors.New("cannot build a tree without leaves")
	ErrLeafNotFound = errors.New("leaf not found in tree")
)

type (
	// Tree is an immutable snapshot. levels[0] holds the leaf hashes and the
	// last level holds only the root.
	Tree struct {
		digests []hash.Hash
		levels  [][]hash.Hash
	}
)

func LeafHash(digest hash.Hash) hash.Hash {
	inner := hash.Keccak256(digest[:])
	return hash.Keccak256(inner[:])
}

func HashPair(a, b hash.Hash) hash.Hash {
	if b.Less(a) {
		a, b = b, a
	}
	return hash.Keccak256(a[:], b[:])
}

// Build hashes the digests, in order, into a tree.
func Build(digests []hash.Hash) (*Tree, error) {
	if len(digests) == 0 {
		return nil, ErrEmptyTree
	}

	leaves := make([]hash.Hash, len(digests))
	for i, d := range digests {
		leaves[i] = LeafHash(d)
	}

	levels := [][]hash.Hash{leaves}
	for level := leaves; len(level) > 1; {
		next := make([]hash.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, HashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{
		digests: append([]hash.Hash(nil), digests...),
		levels:  levels,
	}, nil
}

func (t *Tree) Root() hash.Hash {
	return t.levels[len(t.levels)-1][0]
}

func (t *Tree) Size() int {
	return len(t.digests)
}

func (t *Tree) Digests() []hash.Hash {
	return append([]hash.Hash(nil), t.digests...)
}

// Index returns the leaf position of the first occurrence of digest.
func (t *Tree) Index(digest hash.Hash) (int, bool) {
	for i, d := range t.digests {
		if d == digest {
			return i, true
		}
	}
	return 0, false
}

// Prove returns the sibling hashes from the leaf of digest up to the root.
// Levels where the node is carried up contribute nothing.
func (t *Tree) Prove(digest hash.Hash) ([]hash.Hash, error) {
	idx, ok := t.Index(digest)
	if !ok {
		return nil, ErrLeafNotFound
	}

	proof := make([]hash.Hash, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		idx /= 2
	}
	return proof, nil
}

// Verify recomputes the root from digest and proof and compares it with
// root. A mismatch is a normal false, never an error.
func Verify(root, digest hash.Hash, proof []hash.Hash) bool {
	computed := LeafHash(digest)
	for _, sibling := range proof {
		computed = HashPair(computed, sibling)
	}
	return computed == root
}
