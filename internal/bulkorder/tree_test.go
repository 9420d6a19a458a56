package bulkorder

import (
	"math/big"
	"testing"

	"github.com/GoPolymarket/bulkgate/internal/eip712"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrders(n int) []OrderComponents {
	offerer := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	token := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	orders := make([]OrderComponents, n)
	for i := range orders {
		orders[i] = OrderComponents{
			Offerer: offerer,
			Offer: []OfferItem{{
				ItemType:             ItemERC721,
				Token:                token,
				IdentifierOrCriteria: big.NewInt(int64(100 + i)),
				StartAmount:          big.NewInt(1),
				EndAmount:            big.NewInt(1),
			}},
			Consideration: []ConsiderationItem{{
				ItemType:    ItemNative,
				StartAmount: big.NewInt(1e18),
				EndAmount:   big.NewInt(1e18),
				Recipient:   offerer,
			}},
			OrderType: OrderFullOpen,
			StartTime: big.NewInt(0),
			EndTime:   big.NewInt(1893456000),
			Salt:      big.NewInt(int64(i + 1)),
			Counter:   big.NewInt(0),
		}
	}
	return orders
}

func orderLeaves(t *testing.T, orders []OrderComponents) []common.Hash {
	t.Helper()
	out := make([]common.Hash, len(orders))
	for i := range orders {
		h, err := orders[i].Hash()
		require.NoError(t, err)
		out[i] = h
	}
	return out
}

func defaultOrderLeaf(t *testing.T) common.Hash {
	t.Helper()
	def, err := eip712.SynthesizeDefault(Registry, OrderComponentsType)
	require.NoError(t, err)
	h, err := Registry.HashStruct(OrderComponentsType, def.(map[string]any))
	require.NoError(t, err)
	return h
}

func TestAutoHeight(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 1}, {1, 1}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {8, 3}, {9, 4}, {1 << 24, 24},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AutoHeight(tt.n), "n=%d", tt.n)
	}
}

func TestBuildTreeEmpty(t *testing.T) {
	tree, err := NewBulkOrderTree(nil)
	require.NoError(t, err)

	d := defaultOrderLeaf(t)
	assert.Equal(t, 1, tree.Height())
	assert.Equal(t, []common.Hash{d, d}, tree.Leaves())
	assert.Equal(t, d, tree.DefaultLeaf())
	assert.Equal(t, crypto.Keccak256Hash(d[:], d[:]), tree.Root())
	assert.Equal(t, 0, tree.LeafCount())
}

func TestBuildTreeThreeLeaves(t *testing.T) {
	orders := testOrders(3)
	tree, err := NewBulkOrderTree(orders)
	require.NoError(t, err)

	leaves := orderLeaves(t, orders)
	assert.Equal(t, 2, tree.Height())
	assert.Equal(t, 4, tree.Size())
	assert.Equal(t, append(leaves, defaultOrderLeaf(t)), tree.Leaves())

	want := hashPair(hashPair(leaves[0], leaves[1]), hashPair(leaves[2], tree.DefaultLeaf()))
	assert.Equal(t, want, tree.Root())

	proof, err := tree.GetProof(0)
	require.NoError(t, err)
	assert.Len(t, proof.Siblings, 2)
}

func TestBuildTreeStartIndex(t *testing.T) {
	orders := testOrders(1)
	tree, err := NewBulkOrderTree(orders, WithStartIndex(2), WithHeight(2))
	require.NoError(t, err)

	d := tree.DefaultLeaf()
	leaf := orderLeaves(t, orders)[0]
	assert.Equal(t, []common.Hash{d, d, leaf, d}, tree.Leaves())

	got, err := tree.GetLeaf(2)
	require.NoError(t, err)
	assert.Equal(t, leaf, got)
	assert.Equal(t, 3, tree.LeafCount())

	// Auto height counts the skipped slots.
	auto, err := NewBulkOrderTree(testOrders(3), WithStartIndex(2))
	require.NoError(t, err)
	assert.Equal(t, 3, auto.Height())
}

func TestBuildTreeRejectsBadOptions(t *testing.T) {
	_, err := NewBulkOrderTree(testOrders(3), WithHeight(1))
	assert.ErrorIs(t, err, ErrCapacity)

	_, err = NewBulkOrderTree(testOrders(1), WithStartIndex(2), WithHeight(1))
	assert.ErrorIs(t, err, ErrCapacity)

	_, err = NewBulkOrderTree(nil, WithHeight(MaxHeight+1))
	assert.ErrorIs(t, err, ErrCapacity)

	_, err = NewBulkOrderTree(nil, WithHeight(-1))
	assert.ErrorIs(t, err, ErrInvalidHeight)

	_, err = NewBulkOrderTree(nil, WithStartIndex(-1))
	assert.ErrorIs(t, err, ErrInvalidStartIndex)

	_, err = NewBulkOrderTree(nil, WithStartIndex(1<<MaxHeight+1))
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestBuildTreeRejectsBadLeaves(t *testing.T) {
	leaves := []map[string]any{{"offerer": "not an address"}}
	_, err := BuildTree(Registry, OrderComponentsType, BulkOrderType, leaves)
	assert.ErrorIs(t, err, eip712.ErrInvalidValue)

	_, err = BuildTree(Registry, "Missing", BulkOrderType, nil)
	assert.ErrorIs(t, err, eip712.ErrUnknownType)
}

func TestBuildTreeIsIdempotent(t *testing.T) {
	orders := testOrders(5)
	a, err := NewBulkOrderTree(orders)
	require.NoError(t, err)
	b, err := NewBulkOrderTree(orders)
	require.NoError(t, err)

	assert.Equal(t, a.Root(), b.Root())
	assert.Equal(t, a.Leaves(), b.Leaves())
	for i := 0; i < a.Size(); i++ {
		pa, err := a.GetProof(i)
		require.NoError(t, err)
		pb, err := b.GetProof(i)
		require.NoError(t, err)
		assert.Equal(t, pa, pb)
	}
}

func TestBuildTreeHeightKeepsLeafPositions(t *testing.T) {
	orders := testOrders(3)
	small, err := NewBulkOrderTree(orders)
	require.NoError(t, err)
	large, err := NewBulkOrderTree(orders, WithHeight(small.Height()+1))
	require.NoError(t, err)

	d := small.DefaultLeaf()
	emptySubtree := hashPair(hashPair(d, d), hashPair(d, d))
	assert.Equal(t, hashPair(small.Root(), emptySubtree), large.Root())

	for i := 0; i < small.Size(); i++ {
		ps, err := small.GetProof(i)
		require.NoError(t, err)
		pl, err := large.GetProof(i)
		require.NoError(t, err)

		assert.Equal(t, ps.Leaf, pl.Leaf)
		assert.Equal(t, ps.Siblings, pl.Siblings[:small.Height()])
		assert.True(t, pl.Verify())
	}
}

func TestBuildTreeCustomSchema(t *testing.T) {
	reg := eip712.MustRegistry(eip712.Types{
		"Item": {{Name: "value", Type: "uint256"}},
		"Tree": {{Name: "tree", Type: "Item[2][2][2][2][2][2][2]"}},
	})
	leaves := make([]map[string]any, 5)
	for i := range leaves {
		leaves[i] = map[string]any{"value": big.NewInt(int64(i + 1))}
	}

	tree, err := BuildTree(reg, "Item", "Tree", leaves)
	require.NoError(t, err)
	assert.Equal(t, 3, tree.Height())
	assert.Equal(t, "Tree(Item[2][2][2] tree)Item(uint256 value)", tree.TypeString())
	assert.Equal(t, crypto.Keccak256Hash([]byte(tree.TypeString())), tree.TypeHash())

	zero, err := reg.HashStruct("Item", map[string]any{"value": 0})
	require.NoError(t, err)
	assert.Equal(t, zero, tree.DefaultLeaf())
}

func TestDataToSign(t *testing.T) {
	orders := testOrders(1)
	flat, err := NewBulkOrderTree(orders)
	require.NoError(t, err)

	data := flat.DataToSign()
	require.Len(t, data, 2)
	assert.Equal(t, orders[0].Message(), data[0])
	assert.Equal(t, flat.DefaultNode(), data[1])

	deep, err := NewBulkOrderTree(testOrders(5))
	require.NoError(t, err)
	data = deep.DataToSign()
	require.Len(t, data, 2)
	for _, half := range data {
		quarters := half.([]any)
		require.Len(t, quarters, 2)
		for _, q := range quarters {
			require.Len(t, q.([]any), 2)
		}
	}
	assert.Len(t, deep.CompleteElements(), 8)
}

func TestBulkOrderHash(t *testing.T) {
	for _, n := range []int{0, 1, 3, 8} {
		tree, err := NewBulkOrderTree(testOrders(n))
		require.NoError(t, err)

		h, err := tree.BulkOrderHash()
		require.NoError(t, err)
		root := tree.Root()
		typeHash, err := BulkOrderTypeHash(tree.Height())
		require.NoError(t, err)
		assert.Equal(t, crypto.Keccak256Hash(typeHash[:], root[:]), h, "n=%d", n)
		assert.Equal(t, h, tree.RootHash())
	}
}

func TestOrderComponentsMessageZeroesNilIntegers(t *testing.T) {
	var order OrderComponents
	h, err := order.Hash()
	require.NoError(t, err)
	assert.Equal(t, defaultOrderLeaf(t), h)
}
