package bulkorder

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// indexLength is the width of the big-endian leaf index that follows
	// the signature.
	indexLength = 3

	compactSignatureLength = 64
	fullSignatureLength    = 65

	MinBulkSignatureLength = compactSignatureLength + indexLength + common.HashLength
	MaxBulkSignatureLength = fullSignatureLength + indexLength + MaxHeight*common.HashLength
)

// BulkSignature is the unpacked form of the signature blob submitted with
// one order of a bulk order.
type BulkSignature struct {
	Signature []byte
	Index     int
	Proof     []common.Hash
}

// EncodeBulkSignature packs sig ‖ uint24 index ‖ proof. sig is either 64
// (EIP-2098) or 65 bytes.
func EncodeBulkSignature(sig []byte, index int, proof []common.Hash) ([]byte, error) {
	if len(sig) != compactSignatureLength && len(sig) != fullSignatureLength {
		return nil, fmt.Errorf("%w: signature is %d bytes", ErrMalformedSignature, len(sig))
	}
	if len(proof) == 0 || len(proof) > MaxHeight {
		return nil, fmt.Errorf("%w: proof has %d elements", ErrMalformedSignature, len(proof))
	}
	if index < 0 || index >= 1<<len(proof) {
		return nil, fmt.Errorf("%w: %d for height %d", ErrIndexOutOfRange, index, len(proof))
	}

	out := make([]byte, 0, len(sig)+indexLength+len(proof)*common.HashLength)
	out = append(out, sig...)
	out = append(out, byte(index>>16), byte(index>>8), byte(index))
	for _, p := range proof {
		out = append(out, p[:]...)
	}
	return out, nil
}

// DecodeBulkSignature unpacks a blob produced by EncodeBulkSignature. The
// signature length is inferred from the remainder of the length modulo 32,
// so valid blobs satisfy 98 < len < 837 and (len-67) % 32 < 2.
func DecodeBulkSignature(data []byte) (*BulkSignature, error) {
	if !IsBulkSignature(data) {
		return nil, fmt.Errorf("%w: %d bytes is not a bulk signature length", ErrMalformedSignature, len(data))
	}
	sigLen := compactSignatureLength + (len(data)-compactSignatureLength-indexLength)%common.HashLength
	key := data[sigLen : sigLen+indexLength]
	rest := data[sigLen+indexLength:]

	proof := make([]common.Hash, len(rest)/common.HashLength)
	for i := range proof {
		proof[i] = common.BytesToHash(rest[i*common.HashLength : (i+1)*common.HashLength])
	}
	return &BulkSignature{
		Signature: append([]byte(nil), data[:sigLen]...),
		Index:     int(key[0])<<16 | int(key[1])<<8 | int(key[2]),
		Proof:     proof,
	}, nil
}

// IsBulkSignature reports whether a signature blob has a bulk order length.
func IsBulkSignature(data []byte) bool {
	n := len(data)
	return n >= MinBulkSignatureLength && n <= MaxBulkSignatureLength &&
		(n-compactSignatureLength-indexLength)%common.HashLength < 2
}

// CompactSignature converts a 65-byte [R ‖ S ‖ V] signature to the EIP-2098
// form, which stores the y parity in the top bit of S. V may be 0/1 or
// 27/28.
func CompactSignature(sig []byte) ([]byte, error) {
	if len(sig) != fullSignatureLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, fullSignatureLength, len(sig))
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return nil, fmt.Errorf("%w: recovery id %d", ErrMalformedSignature, sig[64])
	}
	if sig[32]&0x80 != 0 {
		return nil, fmt.Errorf("%w: s is not in the lower half order", ErrMalformedSignature)
	}
	out := append([]byte(nil), sig[:compactSignatureLength]...)
	out[32] |= v << 7
	return out, nil
}

// ExpandSignature converts an EIP-2098 signature to [R ‖ S ‖ V] with V as a
// 0/1 recovery id.
func ExpandSignature(sig []byte) ([]byte, error) {
	if len(sig) != compactSignatureLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, compactSignatureLength, len(sig))
	}
	out := make([]byte, fullSignatureLength)
	copy(out, sig)
	out[64] = sig[32] >> 7
	out[32] &= 0x7f
	return out, nil
}

// NormalizeSignature returns a 65-byte signature with a 0/1 recovery id
// from either supported form.
func NormalizeSignature(sig []byte) ([]byte, error) {
	switch len(sig) {
	case compactSignatureLength:
		return ExpandSignature(sig)
	case fullSignatureLength:
		out := append([]byte(nil), sig...)
		if out[64] >= 27 {
			out[64] -= 27
		}
		if out[64] > 1 {
			return nil, fmt.Errorf("%w: recovery id %d", ErrMalformedSignature, sig[64])
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: signature is %d bytes", ErrMalformedSignature, len(sig))
}
