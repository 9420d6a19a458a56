// Package bulkorder builds the Merkle trees that let one EIP-712 signature
// authorize a batch of Seaport orders.
package bulkorder

import (
	"math/big"

	"github.com/GoPolymarket/bulkgate/internal/eip712"
	"github.com/ethereum/go-ethereum/common"
)

const (
	OrderComponentsType = "OrderComponents"
	BulkOrderType       = "BulkOrder"

	// treeField is the single member of the BulkOrder wrapper.
	treeField = "tree"
)

// OrderTypes mirrors the on-chain struct layout. Field order is part of the
// type hash and must not change.
var OrderTypes = eip712.Types{
	OrderComponentsType: {
		{Name: "offerer", Type: "address"},
		{Name: "zone", Type: "address"},
		{Name: "offer", Type: "OfferItem[]"},
		{Name: "consideration", Type: "ConsiderationItem[]"},
		{Name: "orderType", Type: "uint8"},
		{Name: "startTime", Type: "uint256"},
		{Name: "endTime", Type: "uint256"},
		{Name: "zoneHash", Type: "bytes32"},
		{Name: "salt", Type: "uint256"},
		{Name: "conduitKey", Type: "bytes32"},
		{Name: "counter", Type: "uint256"},
	},
	"OfferItem": {
		{Name: "itemType", Type: "uint8"},
		{Name: "token", Type: "address"},
		{Name: "identifierOrCriteria", Type: "uint256"},
		{Name: "startAmount", Type: "uint256"},
		{Name: "endAmount", Type: "uint256"},
	},
	"ConsiderationItem": {
		{Name: "itemType", Type: "uint8"},
		{Name: "token", Type: "address"},
		{Name: "identifierOrCriteria", Type: "uint256"},
		{Name: "startAmount", Type: "uint256"},
		{Name: "endAmount", Type: "uint256"},
		{Name: "recipient", Type: "address"},
	},
}

// Registry is the parsed form of OrderTypes.
var Registry = eip712.MustRegistry(OrderTypes)

type ItemType uint8

const (
	ItemNative ItemType = iota
	ItemERC20
	ItemERC721
	ItemERC1155
	ItemERC721WithCriteria
	ItemERC1155WithCriteria
)

type OrderType uint8

const (
	OrderFullOpen OrderType = iota
	OrderPartialOpen
	OrderFullRestricted
	OrderPartialRestricted
	OrderContract
)

type OfferItem struct {
	ItemType             ItemType
	Token                common.Address
	IdentifierOrCriteria *big.Int
	StartAmount          *big.Int
	EndAmount            *big.Int
}

type ConsiderationItem struct {
	ItemType             ItemType
	Token                common.Address
	IdentifierOrCriteria *big.Int
	StartAmount          *big.Int
	EndAmount            *big.Int
	Recipient            common.Address
}

// OrderComponents is the signed form of a Seaport order.
type OrderComponents struct {
	Offerer       common.Address
	Zone          common.Address
	Offer         []OfferItem
	Consideration []ConsiderationItem
	OrderType     OrderType
	StartTime     *big.Int
	EndTime       *big.Int
	ZoneHash      common.Hash
	Salt          *big.Int
	ConduitKey    common.Hash
	Counter       *big.Int
}

// Message renders the order as a typed-data value. Nil integers encode as
// zero.
func (o *OrderComponents) Message() map[string]any {
	offer := make([]any, len(o.Offer))
	for i, item := range o.Offer {
		offer[i] = map[string]any{
			"itemType":             uint8(item.ItemType),
			"token":                item.Token,
			"identifierOrCriteria": orZero(item.IdentifierOrCriteria),
			"startAmount":          orZero(item.StartAmount),
			"endAmount":            orZero(item.EndAmount),
		}
	}
	consideration := make([]any, len(o.Consideration))
	for i, item := range o.Consideration {
		consideration[i] = map[string]any{
			"itemType":             uint8(item.ItemType),
			"token":                item.Token,
			"identifierOrCriteria": orZero(item.IdentifierOrCriteria),
			"startAmount":          orZero(item.StartAmount),
			"endAmount":            orZero(item.EndAmount),
			"recipient":            item.Recipient,
		}
	}
	return map[string]any{
		"offerer":       o.Offerer,
		"zone":          o.Zone,
		"offer":         offer,
		"consideration": consideration,
		"orderType":     uint8(o.OrderType),
		"startTime":     orZero(o.StartTime),
		"endTime":       orZero(o.EndTime),
		"zoneHash":      o.ZoneHash,
		"salt":          orZero(o.Salt),
		"conduitKey":    o.ConduitKey,
		"counter":       orZero(o.Counter),
	}
}

// Hash returns the order's struct hash, which is also its leaf in a bulk
// order tree.
func (o *OrderComponents) Hash() (common.Hash, error) {
	return Registry.HashStruct(OrderComponentsType, o.Message())
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
