package bulkorder

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Proof is the inclusion path of one leaf. Siblings[k] is the neighbour at
// level k, counted from the leaves.
type Proof struct {
	Index    int           `json:"index"`
	Leaf     common.Hash   `json:"leaf"`
	Siblings []common.Hash `json:"proof"`
	Root     common.Hash   `json:"root"`
}

func (t *Tree) checkIndex(i int) error {
	if i < 0 || i >= t.Size() {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, t.Size())
	}
	return nil
}

// GetLeaf returns the leaf hash at slot i.
func (t *Tree) GetLeaf(i int) (common.Hash, error) {
	if err := t.checkIndex(i); err != nil {
		return common.Hash{}, err
	}
	return t.layers[0][i], nil
}

// GetProof returns the leaf at slot i and its siblings from the leaf level
// up to just below the root. Which side a sibling sits on is given by the
// bits of i.
func (t *Tree) GetProof(i int) (*Proof, error) {
	if err := t.checkIndex(i); err != nil {
		return nil, err
	}
	siblings := make([]common.Hash, t.height)
	for level := 0; level < t.height; level++ {
		siblings[level] = t.layers[level][(i>>level)^1]
	}
	return &Proof{
		Index:    i,
		Leaf:     t.layers[0][i],
		Siblings: siblings,
		Root:     t.Root(),
	}, nil
}

// ComputeRoot folds siblings into leaf the way the on-chain verifier does:
// at level k the running node is the left child when bit k of index is 0.
func ComputeRoot(leaf common.Hash, siblings []common.Hash, index uint64) common.Hash {
	node := leaf
	for level, sibling := range siblings {
		if (index>>uint(level))&1 == 0 {
			node = hashPair(node, sibling)
		} else {
			node = hashPair(sibling, node)
		}
	}
	return node
}

// VerifyProof reports whether leaf sits at index under root.
func VerifyProof(root, leaf common.Hash, siblings []common.Hash, index uint64) bool {
	if len(siblings) < 64 && index>>uint(len(siblings)) != 0 {
		return false
	}
	return ComputeRoot(leaf, siblings, index) == root
}

// Verify checks the proof against its own root.
func (p *Proof) Verify() bool {
	return p.Index >= 0 && VerifyProof(p.Root, p.Leaf, p.Siblings, uint64(p.Index))
}
