package merkle

import (
	"github.com/pkg/errors"

	"github.com/i5heu/ouroboros-fileproof/pkg/contentAddress"
	"github.com/i5heu/ouroboros-fileproof/pkg/types"
)

// Prove returns the sibling path of a leaf, leaf level first.
// Levels where the node was carried up contribute no entry, so the proof can
// be shorter than the tree height.
func (t *Tree) Prove(leafIndex int) (types.Proof, error) {
	if leafIndex < 0 || leafIndex >= t.LeafCount() {
		return nil, errors.Wrapf(types.ErrPieceIndexOutOfRange,
			"leaf %d of %d", leafIndex, t.LeafCount())
	}

	proof := make(types.Proof, 0, t.Height())
	position := leafIndex
	for _, level := range t.levels[:len(t.levels)-1] {
		switch {
		case position%2 == 1:
			proof = append(proof, types.ProofEntry{Sibling: level[position-1], Position: types.Left})
		case position+1 < len(level):
			proof = append(proof, types.ProofEntry{Sibling: level[position+1], Position: types.Right})
		}
		position /= 2
	}

	return proof, nil
}

// Verify recomputes the root from the leaf and the proof. It only relies on
// the side markers in the proof, never on a built tree.
func Verify(leaf types.Hash, leafIndex int, proof types.Proof, root types.Hash) bool {
	if leafIndex < 0 {
		return false
	}

	current := leaf
	for _, entry := range proof {
		switch entry.Position {
		case types.Right:
			current = contentAddress.SumNode(current, entry.Sibling)
		case types.Left:
			current = contentAddress.SumNode(entry.Sibling, current)
		default:
			return false
		}
	}

	return current == root
}

// ReconstructProof puts the side markers back on a proof that travelled as
// plain hashes. Sides follow from the leaf position and the width of every
// level, which is why the leaf count is needed: a node in the last slot of an
// odd level was carried up and has no sibling there.
func ReconstructProof(leafIndex, leafCount int, siblings []types.Hash) (types.Proof, error) {
	if leafCount <= 0 {
		return nil, errors.Wrap(types.ErrEmptyInput, "reconstruct proof without leaves")
	}
	if leafIndex < 0 || leafIndex >= leafCount {
		return nil, errors.Wrapf(types.ErrPieceIndexOutOfRange, "leaf %d of %d", leafIndex, leafCount)
	}

	proof := make(types.Proof, 0, len(siblings))
	position, width := leafIndex, leafCount
	for ; width > 1; position, width = position/2, (width+1)/2 {
		var side types.Side
		switch {
		case position%2 == 1:
			side = types.Left
		case position+1 < width:
			side = types.Right
		default:
			continue
		}

		if len(proof) == len(siblings) {
			return nil, errors.Errorf("proof has %d siblings, leaf %d of %d needs more", len(siblings), leafIndex, leafCount)
		}
		proof = append(proof, types.ProofEntry{Sibling: siblings[len(proof)], Position: side})
	}

	if len(proof) != len(siblings) {
		return nil, errors.Errorf("proof has %d siblings, leaf %d of %d needs %d", len(siblings), leafIndex, leafCount, len(proof))
	}
	return proof, nil
}

// VerifySiblings is Verify for side-less proofs.
func VerifySiblings(leaf types.Hash, leafIndex, leafCount int, siblings []types.Hash, root types.Hash) bool {
	proof, err := ReconstructProof(leafIndex, leafCount, siblings)
	if err != nil {
		return false
	}
	return Verify(leaf, leafIndex, proof, root)
}
