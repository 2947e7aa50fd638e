package fileproof

import (
	"github.com/i5heu/ouroboros-fileproof/pkg/contentAddress"
	"github.com/i5heu/ouroboros-fileproof/pkg/merkle"
	"github.com/i5heu/ouroboros-fileproof/pkg/types"
)

// VerifyProof reports whether proof links its content hash to merkleRoot at
// pieceIndex. It needs nothing but the proof and the trusted root.
func VerifyProof(merkleRoot string, pieceIndex int64, proof ProofResponse) bool {
	leaf, err := contentAddress.ParseIdentifier(proof.ContentHash)
	if err != nil {
		return false
	}
	return verifyLeaf(merkleRoot, pieceIndex, leaf, proof)
}

// VerifyPiece additionally checks that piece hashes to the proven content hash.
func VerifyPiece(merkleRoot string, pieceIndex int64, piece []byte, proof ProofResponse) bool {
	leaf, err := contentAddress.ParseIdentifier(proof.ContentHash)
	if err != nil {
		return false
	}
	if contentAddress.Sum(piece) != leaf {
		return false
	}
	return verifyLeaf(merkleRoot, pieceIndex, leaf, proof)
}

func verifyLeaf(merkleRoot string, pieceIndex int64, leaf types.Hash, proof ProofResponse) bool {
	root, err := contentAddress.ParseIdentifier(merkleRoot)
	if err != nil {
		return false
	}
	if pieceIndex < 0 || pieceIndex >= int64(proof.Pieces) {
		return false
	}

	siblings := make([]types.Hash, len(proof.Proof))
	for i, s := range proof.Proof {
		siblings[i], err = contentAddress.ParseIdentifier(s)
		if err != nil {
			return false
		}
	}

	return merkle.VerifySiblings(leaf, int(pieceIndex), int(proof.Pieces), siblings, root)
}
