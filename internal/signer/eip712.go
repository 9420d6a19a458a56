package signer

import (
	"math/big"

	"github.com/GoPolymarket/bulkgate/internal/bulkorder"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Seaport 1.6 domain
const (
	SeaportDomainName    = "Seaport"
	SeaportDomainVersion = "1.6"

	// Same address on every chain Seaport is deployed to.
	SeaportContractAddress = "0x0000000000000068F116a894984e2DB1123eB395"
)

var (
	// EIP712DomainTypeHash is the keccak256 hash of
	// "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	EIP712DomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	domainFields = []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	}
)

type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// SeaportDomain returns the Seaport domain on chainID. An empty contract
// address selects the canonical deployment.
func SeaportDomain(chainID int64, verifyingContract string) Domain {
	if verifyingContract == "" {
		verifyingContract = SeaportContractAddress
	}
	return Domain{
		Name:              SeaportDomainName,
		Version:           SeaportDomainVersion,
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.HexToAddress(verifyingContract),
	}
}

// Separator computes
// keccak256(abi.encode(EIP712DomainTypeHash, keccak256(name), keccak256(version), chainId, verifyingContract))
func (d Domain) Separator() common.Hash {
	// All fields are 32 bytes
	data := make([]byte, 32*5)
	copy(data[0:32], EIP712DomainTypeHash.Bytes())
	copy(data[32:64], crypto.Keccak256([]byte(d.Name)))
	copy(data[64:96], crypto.Keccak256([]byte(d.Version)))
	if d.ChainID != nil {
		copy(data[96:128], math.U256Bytes(new(big.Int).Set(d.ChainID)))
	}
	copy(data[128+12:160], d.VerifyingContract.Bytes())
	return crypto.Keccak256Hash(data)
}

func (d Domain) TypedDataDomain() apitypes.TypedDataDomain {
	chainID := new(big.Int)
	if d.ChainID != nil {
		chainID.Set(d.ChainID)
	}
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(chainID),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

// Digest returns keccak256("\x19\x01" ‖ domainSeparator ‖ hash).
func Digest(domainSeparator, hash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator[:], hash[:])
}

// TypedData renders the tree's wrapper as an eth_signTypedData_v4 payload
// so an external wallet can sign the same digest.
func TypedData(domain Domain, tree *bulkorder.Tree) (apitypes.TypedData, error) {
	reg := tree.Registry()
	message, err := reg.Normalize(tree.WrapperType(), tree.Message())
	if err != nil {
		return apitypes.TypedData{}, err
	}

	out := apitypes.Types{"EIP712Domain": domainFields}
	for name, fields := range reg.Types() {
		for _, f := range fields {
			out[name] = append(out[name], apitypes.Type{Name: f.Name, Type: f.Type})
		}
	}
	return apitypes.TypedData{
		Types:       out,
		PrimaryType: tree.WrapperType(),
		Domain:      domain.TypedDataDomain(),
		Message:     message.(map[string]any),
	}, nil
}
