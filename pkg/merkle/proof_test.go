package merkle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-fileproof/pkg/contentAddress"
	"github.com/i5heu/ouroboros-fileproof/pkg/types"
)

func TestProve_RoundTrip(t *testing.T) {
	for n := 1; n <= 70; n++ {
		leaves := testLeaves(n)
		tree, err := Build(leaves)
		require.NoError(t, err)

		for i := 0; i < n; i++ {
			proof, err := tree.Prove(i)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(proof), tree.Height())
			assert.True(t, Verify(leaves[i], i, proof, tree.Root()), "n=%d i=%d", n, i)
		}
	}
}

func TestProve_OutOfRange(t *testing.T) {
	tree, err := Build(testLeaves(5))
	require.NoError(t, err)

	for _, idx := range []int{-1, 5, 100} {
		proof, err := tree.Prove(idx)
		assert.Nil(t, proof)
		assert.True(t, errors.Is(err, types.ErrPieceIndexOutOfRange), "index %d", idx)
	}
}

func TestVerify_TamperDetection(t *testing.T) {
	leaves := testLeaves(13)
	tree, err := Build(leaves)
	require.NoError(t, err)
	root := tree.Root()

	for i := range leaves {
		proof, err := tree.Prove(i)
		require.NoError(t, err)

		// every bit of every sibling
		for e := range proof {
			for bit := 0; bit < types.HashSize*8; bit++ {
				tampered := append(types.Proof{}, proof...)
				tampered[e].Sibling[bit/8] ^= 1 << (bit % 8)
				assert.False(t, Verify(leaves[i], i, tampered, root), "leaf %d entry %d bit %d", i, e, bit)
			}
		}

		// wrong leaf
		assert.False(t, Verify(leaves[(i+1)%len(leaves)], i, proof, root))

		// flipped sides
		if len(proof) > 0 {
			swapped := append(types.Proof{}, proof...)
			swapped[0].Position = 1 - swapped[0].Position
			assert.False(t, Verify(leaves[i], i, swapped, root))
		}

		// dropped entry
		if len(proof) > 0 {
			assert.False(t, Verify(leaves[i], i, proof[:len(proof)-1], root))
		}
	}
}

func TestVerify_RejectsBadInput(t *testing.T) {
	leaves := testLeaves(4)
	tree, err := Build(leaves)
	require.NoError(t, err)
	proof, err := tree.Prove(1)
	require.NoError(t, err)

	assert.False(t, Verify(leaves[1], -1, proof, tree.Root()))

	bad := append(types.Proof{}, proof...)
	bad[0].Position = types.Side(7)
	assert.False(t, Verify(leaves[1], 1, bad, tree.Root()))
}

func TestReconstructProof_MatchesProve(t *testing.T) {
	for n := 1; n <= 70; n++ {
		leaves := testLeaves(n)
		tree, err := Build(leaves)
		require.NoError(t, err)

		for i := 0; i < n; i++ {
			proof, err := tree.Prove(i)
			require.NoError(t, err)

			rebuilt, err := ReconstructProof(i, n, proof.Siblings())
			require.NoError(t, err)
			assert.Equal(t, proof, rebuilt, "n=%d i=%d", n, i)

			assert.True(t, VerifySiblings(leaves[i], i, n, proof.Siblings(), tree.Root()))
		}
	}
}

func TestReconstructProof_WrongLength(t *testing.T) {
	leaves := testLeaves(6)
	tree, err := Build(leaves)
	require.NoError(t, err)

	proof, err := tree.Prove(3)
	require.NoError(t, err)
	siblings := proof.Siblings()
	require.NotEmpty(t, siblings)

	_, err = ReconstructProof(3, 6, siblings[:len(siblings)-1])
	assert.Error(t, err)
	assert.False(t, VerifySiblings(leaves[3], 3, 6, siblings[:len(siblings)-1], tree.Root()))

	longer := append(append([]types.Hash{}, siblings...), contentAddress.Sum([]byte("extra")))
	_, err = ReconstructProof(3, 6, longer)
	assert.Error(t, err)
	assert.False(t, VerifySiblings(leaves[3], 3, 6, longer, tree.Root()))

	_, err = ReconstructProof(6, 6, siblings)
	assert.True(t, errors.Is(err, types.ErrPieceIndexOutOfRange))
	_, err = ReconstructProof(0, 0, nil)
	assert.True(t, errors.Is(err, types.ErrEmptyInput))
}

func TestVerifySiblings_CarryLevel(t *testing.T) {
	h := testLeaves(3)
	tree, err := Build(h)
	require.NoError(t, err)

	// leaf 2 only pairs at the top level, from the right
	assert.True(t, VerifySiblings(h[2], 2, 3, []types.Hash{contentAddress.SumNode(h[0], h[1])}, tree.Root()))

	// the same sibling is useless with a leaf count that leaves no carry
	assert.False(t, VerifySiblings(h[2], 2, 4, []types.Hash{contentAddress.SumNode(h[0], h[1])}, tree.Root()))
}
