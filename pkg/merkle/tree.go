// Package merkle builds binary hash trees over ordered chunk hashes and
// creates and checks inclusion proofs for single chunks.
//
// Pairs are hashed left to right as SHA-256(left || right). When a level has
// an odd number of nodes the last one is carried up unchanged: it is neither
// duplicated nor hashed with itself. A tree over one leaf has that leaf as its
// root.
package merkle

import (
	"github.com/pkg/errors"

	"github.com/i5heu/ouroboros-fileproof/pkg/contentAddress"
	"github.com/i5heu/ouroboros-fileproof/pkg/types"
	"github.com/i5heu/ouroboros-fileproof/pkg/workerPool"
)

// Levels smaller than this are hashed inline even when a pool is given.
const minParallelPairs = 64

// Tree keeps only the levels. levels[0] are the leaves in chunk order and the
// last level holds the root alone.
type Tree struct {
	levels [][]types.Hash
}

// Build hashes all levels sequentially.
func Build(leaves []types.Hash) (*Tree, error) {
	return build(leaves, hashLevel)
}

// BuildWithPool hashes the pairs of large levels on the worker pool. The
// resulting tree is identical to the one returned by Build.
func BuildWithPool(leaves []types.Hash, wp *workerPool.WorkerPool) (*Tree, error) {
	if wp == nil {
		return Build(leaves)
	}
	return build(leaves, func(level []types.Hash) []types.Hash {
		return hashLevelOnPool(level, wp)
	})
}

func build(leaves []types.Hash, nextLevel func([]types.Hash) []types.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, errors.Wrap(types.ErrEmptyInput, "build merkle tree without leaves")
	}

	base := make([]types.Hash, len(leaves))
	copy(base, leaves)

	levels := [][]types.Hash{base}
	for current := base; len(current) > 1; {
		parent := nextLevel(current)
		if want := (len(current) + 1) / 2; len(parent) != want {
			return nil, errors.Wrapf(types.ErrInvariantViolation,
				"level %d has %d nodes, want %d", len(levels), len(parent), want)
		}

		levels = append(levels, parent)
		current = parent
	}

	return &Tree{levels: levels}, nil
}

func hashLevel(level []types.Hash) []types.Hash {
	parent := make([]types.Hash, 0, (len(level)+1)/2)
	for i := 0; i+1 < len(level); i += 2 {
		parent = append(parent, contentAddress.SumNode(level[i], level[i+1]))
	}
	if len(level)%2 == 1 {
		parent = append(parent, level[len(level)-1])
	}
	return parent
}

func hashLevelOnPool(level []types.Hash, wp *workerPool.WorkerPool) []types.Hash {
	pairs := len(level) / 2
	if pairs < minParallelPairs {
		return hashLevel(level)
	}

	room := wp.CreateRoom(pairs)
	for i := 0; i < pairs; i++ {
		left, right := level[2*i], level[2*i+1]
		room.NewTaskWaitForFreeSlot(i, func() interface{} {
			return contentAddress.SumNode(left, right)
		})
	}

	parent := make([]types.Hash, 0, (len(level)+1)/2)
	for _, result := range room.Collect() {
		parent = append(parent, result.(types.Hash))
	}
	if len(level)%2 == 1 {
		parent = append(parent, level[len(level)-1])
	}
	return parent
}

func (t *Tree) Root() types.Hash {
	return t.levels[len(t.levels)-1][0]
}

func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Height is the number of levels above the leaves, 0 for a single leaf.
func (t *Tree) Height() int {
	return len(t.levels) - 1
}

func (t *Tree) Leaf(index int) (types.Hash, error) {
	if index < 0 || index >= t.LeafCount() {
		return types.Hash{}, errors.Wrapf(types.ErrPieceIndexOutOfRange,
			"leaf %d of %d", index, t.LeafCount())
	}
	return t.levels[0][index], nil
}

// Levels returns a copy of all levels, leaves first.
func (t *Tree) Levels() [][]types.Hash {
	levels := make([][]types.Hash, len(t.levels))
	for i, level := range t.levels {
		levels[i] = make([]types.Hash, len(level))
		copy(levels[i], level)
	}
	return levels
}

// Size approximates the memory held by the tree in bytes.
func (t *Tree) Size() int64 {
	var nodes int64
	for _, level := range t.levels {
		nodes += int64(len(level))
	}
	return nodes * types.HashSize
}
