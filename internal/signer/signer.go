package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/GoPolymarket/bulkgate/internal/bulkorder"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type Signer struct {
	key             *ecdsa.PrivateKey
	address         common.Address
	domain          Domain
	domainSeparator common.Hash
}

// ErrInvalidKey is returned by NewSigner for a missing or unparsable key.
var ErrInvalidKey = errors.New("signer: invalid private key")

// NewSigner creates a bulk order signer with a pre-calculated domain separator
func NewSigner(privateKeyHex string, domain Domain) (*Signer, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("%w: private key is required", ErrInvalidKey)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	publicKey := key.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}

	return &Signer{
		key:             key,
		address:         crypto.PubkeyToAddress(*publicKeyECDSA),
		domain:          domain,
		domainSeparator: domain.Separator(),
	}, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) Domain() Domain {
	return s.domain
}

func (s *Signer) DomainSeparator() common.Hash {
	return s.domainSeparator
}

// SignedBulkOrder is one signature over the root of a tree.
type SignedBulkOrder struct {
	Root          common.Hash
	Height        int
	BulkOrderHash common.Hash
	Digest        common.Hash
	// Signature is 65 bytes with V as 27/28, or 64 bytes in EIP-2098 form.
	Signature []byte

	tree *bulkorder.Tree
}

// SignBulkOrder signs the digest of the tree's bulk order hash. With compact
// set the signature is returned in its 64-byte form.
func (s *Signer) SignBulkOrder(tree *bulkorder.Tree, compact bool) (*SignedBulkOrder, error) {
	hash, err := tree.BulkOrderHash()
	if err != nil {
		return nil, err
	}
	digest := Digest(s.domainSeparator, hash)

	signature, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return nil, err
	}
	if compact {
		signature, err = bulkorder.CompactSignature(signature)
		if err != nil {
			return nil, err
		}
	} else if signature[64] < 27 {
		// crypto.Sign returns V as 0/1, wallets and the exchange expect 27/28.
		signature[64] += 27
	}

	return &SignedBulkOrder{
		Root:          tree.Root(),
		Height:        tree.Height(),
		BulkOrderHash: hash,
		Digest:        digest,
		Signature:     signature,
		tree:          tree,
	}, nil
}

// AttachSignature pairs a tree with a signature produced elsewhere, such as
// an external wallet. The signature is not checked here.
func AttachSignature(domainSeparator common.Hash, tree *bulkorder.Tree, signature []byte) (*SignedBulkOrder, error) {
	if _, err := bulkorder.NormalizeSignature(signature); err != nil {
		return nil, err
	}
	hash, err := tree.BulkOrderHash()
	if err != nil {
		return nil, err
	}
	return &SignedBulkOrder{
		Root:          tree.Root(),
		Height:        tree.Height(),
		BulkOrderHash: hash,
		Digest:        Digest(domainSeparator, hash),
		Signature:     append([]byte(nil), signature...),
		tree:          tree,
	}, nil
}

// EncodedProof returns the signature blob submitted with the order in slot
// i: signature ‖ uint24 i ‖ proof.
func (o *SignedBulkOrder) EncodedProof(i int) ([]byte, error) {
	proof, err := o.tree.GetProof(i)
	if err != nil {
		return nil, err
	}
	return bulkorder.EncodeBulkSignature(o.Signature, i, proof.Siblings)
}
