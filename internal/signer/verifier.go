package signer

import (
	"errors"
	"fmt"

	"github.com/GoPolymarket/bulkgate/internal/bulkorder"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrSignatureMismatch = errors.New("signer: signature mismatch")

// RecoverSigner returns the address that signed digest. Both the 65-byte
// and the EIP-2098 64-byte forms are accepted.
func RecoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	sig, err := bulkorder.NormalizeSignature(signature)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: recovery failed: %v", bulkorder.ErrMalformedSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// BulkOrderDigest rebuilds the signed digest from one leaf and its packed
// signature the way the exchange does: the root is folded from the proof
// and index, and the type hash is chosen by the proof length.
func BulkOrderDigest(domainSeparator, leaf common.Hash, packed []byte) (common.Hash, *bulkorder.BulkSignature, error) {
	bs, err := bulkorder.DecodeBulkSignature(packed)
	if err != nil {
		return common.Hash{}, nil, err
	}
	typeHash, err := bulkorder.BulkOrderTypeHash(len(bs.Proof))
	if err != nil {
		return common.Hash{}, nil, err
	}
	root := bulkorder.ComputeRoot(leaf, bs.Proof, uint64(bs.Index))
	hash := crypto.Keccak256Hash(typeHash[:], root[:])
	return Digest(domainSeparator, hash), bs, nil
}

// RecoverBulkOrderSigner returns the signer of a packed bulk signature for
// the order whose struct hash is leaf.
func RecoverBulkOrderSigner(domainSeparator, leaf common.Hash, packed []byte) (common.Address, error) {
	digest, bs, err := BulkOrderDigest(domainSeparator, leaf, packed)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverSigner(digest, bs.Signature)
}

// RecoverOrderSigner accepts either a plain signature over the order itself
// or a packed bulk signature, telling them apart by length.
func RecoverOrderSigner(domainSeparator, orderHash common.Hash, signature []byte) (common.Address, error) {
	if bulkorder.IsBulkSignature(signature) {
		return RecoverBulkOrderSigner(domainSeparator, orderHash, signature)
	}
	return RecoverSigner(Digest(domainSeparator, orderHash), signature)
}

// VerifyBulkOrderSignature checks that expected signed the bulk order
// containing leaf.
func VerifyBulkOrderSignature(domainSeparator, leaf common.Hash, packed []byte, expected common.Address) error {
	recovered, err := RecoverBulkOrderSigner(domainSeparator, leaf, packed)
	if err != nil {
		return err
	}
	if recovered != expected {
		return fmt.Errorf("%w: recovered %s, expected %s", ErrSignatureMismatch, recovered.Hex(), expected.Hex())
	}
	return nil
}
