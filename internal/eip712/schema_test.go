package eip712

import (
	"testing"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderTypes = Types{
	"OrderComponents": {
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

const (
	orderComponentsStruct   = "OrderComponents(address offerer,address zone,OfferItem[] offer,ConsiderationItem[] consideration,uint8 orderType,uint256 startTime,uint256 endTime,bytes32 zoneHash,uint256 salt,bytes32 conduitKey,uint256 counter)"
	considerationItemStruct = "ConsiderationItem(uint8 itemType,address token,uint256 identifierOrCriteria,uint256 startAmount,uint256 endAmount,address recipient)"
	offerItemStruct         = "OfferItem(uint8 itemType,address token,uint256 identifierOrCriteria,uint256 startAmount,uint256 endAmount)"

	orderComponentsTypeString = orderComponentsStruct + considerationItemStruct + offerItemStruct
)

func TestResolve(t *testing.T) {
	reg := MustRegistry(orderTypes)

	tests := []struct {
		typ    string
		kind   Kind
		size   int
		length int
		str    string
	}{
		{typ: "uint8", kind: KindUint, size: 8, str: "uint8"},
		{typ: "uint", kind: KindUint, size: 256, str: "uint256"},
		{typ: "int128", kind: KindInt, size: 128, str: "int128"},
		{typ: "address", kind: KindAddress, str: "address"},
		{typ: "bool", kind: KindBool, str: "bool"},
		{typ: "string", kind: KindString, str: "string"},
		{typ: "bytes", kind: KindBytes, str: "bytes"},
		{typ: "bytes4", kind: KindFixedBytes, size: 4, str: "bytes4"},
		{typ: "OfferItem", kind: KindStruct, str: "OfferItem"},
		{typ: "OfferItem[]", kind: KindArray, length: -1, str: "OfferItem[]"},
		{typ: "OrderComponents[2][2]", kind: KindArray, length: 2, str: "OrderComponents[2][2]"},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			ref, err := reg.Resolve(tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ref.Kind)
			assert.Equal(t, tt.str, ref.String())
			if tt.kind == KindArray {
				assert.Equal(t, tt.length, ref.Length)
			} else {
				assert.Equal(t, tt.size, ref.Size)
			}
		})
	}

	nested, err := reg.Resolve("OrderComponents[3][2]")
	require.NoError(t, err)
	assert.Equal(t, 2, nested.Length)
	assert.Equal(t, 3, nested.Elem.Length)
	assert.Equal(t, "OrderComponents", nested.Elem.Elem.Name)
}

func TestResolveRejectsUnknownTypes(t *testing.T) {
	reg := MustRegistry(orderTypes)

	for _, typ := range []string{"Nope", "uint7", "uint264", "bytes0", "bytes33", "int08", "OfferItem[0]", "OfferItem[x]", "[2]"} {
		_, err := reg.Resolve(typ)
		assert.ErrorIs(t, err, ErrUnknownType, typ)
	}
}

func TestNewRegistryUnknownReference(t *testing.T) {
	_, err := NewRegistry(Types{
		"Wrapper": {{Name: "inner", Type: "Missing[2]"}},
	})
	require.ErrorIs(t, err, ErrUnknownType)
	assert.Contains(t, err.Error(), "Missing")

	_, err = NewRegistry(Types{
		"Dup": {{Name: "a", Type: "uint256"}, {Name: "a", Type: "bool"}},
	})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEncodeType(t *testing.T) {
	reg := MustRegistry(orderTypes)

	typeString, err := reg.EncodeType("OrderComponents")
	require.NoError(t, err)
	assert.Equal(t, orderComponentsTypeString, typeString)

	offer, err := reg.EncodeType("OfferItem")
	require.NoError(t, err)
	assert.Equal(t, "OfferItem(uint8 itemType,address token,uint256 identifierOrCriteria,uint256 startAmount,uint256 endAmount)", offer)

	_, err = reg.EncodeType("BulkOrder")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEncodeTypeMatchesGethTypedData(t *testing.T) {
	reg := MustRegistry(orderTypes)
	typed := apitypes.TypedData{Types: toGethTypes(orderTypes)}

	for name := range orderTypes {
		ours, err := reg.EncodeType(name)
		require.NoError(t, err)
		assert.Equal(t, string(typed.EncodeType(name)), ours, name)
	}
}

func TestWithRedefinesOneType(t *testing.T) {
	reg := MustRegistry(orderTypes)

	wrapped, err := reg.With("BulkOrder", []Field{{Name: "tree", Type: "OrderComponents[2][2]"}})
	require.NoError(t, err)
	assert.True(t, wrapped.Has("BulkOrder"))
	assert.False(t, reg.Has("BulkOrder"))

	typeString, err := wrapped.EncodeType("BulkOrder")
	require.NoError(t, err)
	// OrderComponents is now a dependency and sorts after the item types.
	assert.Equal(t, "BulkOrder(OrderComponents[2][2] tree)"+considerationItemStruct+offerItemStruct+orderComponentsStruct, typeString)
}

func toGethTypes(types Types) apitypes.Types {
	out := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
	}
	for name, fields := range types {
		for _, f := range fields {
			out[name] = append(out[name], apitypes.Type{Name: f.Name, Type: f.Type})
		}
	}
	return out
}
