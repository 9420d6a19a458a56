package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/GoPolymarket/bulkgate/internal/bulkorder"
	"github.com/GoPolymarket/bulkgate/internal/config"
	"github.com/GoPolymarket/bulkgate/internal/model"
	"github.com/GoPolymarket/bulkgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/bulkgate/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContracts struct {
	valid bool
	err   error
	calls int
}

func (s *stubContracts) IsValidSignature(ctx context.Context, contract common.Address, digest common.Hash, signature []byte) (bool, error) {
	s.calls++
	return s.valid, s.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Chain.ChainID = 1
	cfg.Tree.MaxHeight = 10
	cfg.Tree.MaxOrders = 64
	return cfg
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func newTestService(t *testing.T, withSigner bool, contracts ContractSigVerifier) (*BulkOrderService, common.Address) {
	cfg := testConfig()
	key, addr := newKey(t)
	var s *signer.Signer
	if withSigner {
		var err error
		s, err = signer.NewSigner(hexutil.Encode(crypto.FromECDSA(key)), signer.SeaportDomain(cfg.Chain.ChainID, ""))
		require.NoError(t, err)
	}
	return NewBulkOrderService(cfg, NewMemoryBatchStore(), s, contracts), addr
}

func testOrderInputs(offerer common.Address, n int) []model.OrderInput {
	orders := make([]model.OrderInput, n)
	for i := range orders {
		orders[i] = model.OrderInput{
			Offerer: offerer.Hex(),
			Offer: []model.OfferItemInput{{
				ItemType:             uint8(bulkorder.ItemERC721),
				Token:                "0x5FbDB2315678afecb367f032d93F642f64180aa3",
				IdentifierOrCriteria: model.NewAmount(big.NewInt(int64(i))),
				StartAmount:          model.NewAmount(big.NewInt(1)),
				EndAmount:            model.NewAmount(big.NewInt(1)),
			}},
			Consideration: []model.ConsiderationItemInput{{
				StartAmount: model.NewAmount(big.NewInt(1e17)),
				EndAmount:   model.NewAmount(big.NewInt(1e17)),
				Recipient:   offerer.Hex(),
			}},
			EndTime: model.NewAmount(big.NewInt(1893456000)),
			Salt:    model.NewAmount(big.NewInt(int64(500 + i))),
		}
	}
	return orders
}

func errType(t *testing.T, err error) apperrors.ErrorType {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.Type
}

func orderHash(t *testing.T, in model.OrderInput) common.Hash {
	order, err := in.ToComponents()
	require.NoError(t, err)
	h, err := order.Hash()
	require.NoError(t, err)
	return h
}

func walletSign(t *testing.T, key *ecdsa.PrivateKey, digest string) string {
	sig, err := crypto.Sign(common.HexToHash(digest).Bytes(), key)
	require.NoError(t, err)
	sig[64] += 27
	return hexutil.Encode(sig)
}

func TestBuildBatch_Unsigned(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	_, offerer := newKey(t)
	ctx := context.Background()

	resp, err := svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(offerer, 3), StartIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, model.BatchPending, resp.Batch.Status)
	assert.Equal(t, 2, resp.Batch.Height)
	assert.Len(t, resp.Leaves, 4)
	assert.NotNil(t, resp.TypedData)
	assert.NotEmpty(t, resp.Batch.Digest)

	got, err := svc.GetBatch(ctx, resp.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.Batch.Root, got.Batch.Root)
	assert.Equal(t, resp.Leaves, got.Leaves)

	proof, err := svc.GetProof(ctx, resp.Batch.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, proof.Signature)
	assert.Equal(t, orderHash(t, resp.Batch.Orders[0]).Hex(), proof.Leaf)
	assert.Len(t, proof.Proof, 2)

	_, err = svc.GetProof(ctx, resp.Batch.ID, 4)
	assert.Equal(t, apperrors.ErrCapacity, errType(t, err))
	_, err = svc.GetBatch(ctx, "missing")
	assert.Equal(t, apperrors.ErrNotFound, errType(t, err))
}

func TestBuildBatch_GatewaySigned(t *testing.T) {
	svc, gateway := newTestService(t, true, nil)
	ctx := context.Background()
	orders := testOrderInputs(gateway, 5)

	resp, err := svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: orders, Sign: true})
	require.NoError(t, err)
	require.True(t, resp.Batch.Signed())
	assert.Equal(t, gateway.Hex(), resp.Batch.Signer)
	assert.Equal(t, 3, resp.Batch.Height)
	assert.Nil(t, resp.TypedData)

	for i, o := range orders {
		proof, err := svc.GetProof(ctx, resp.Batch.ID, i)
		require.NoError(t, err)
		packed, err := hexutil.Decode(proof.Signature)
		require.NoError(t, err)

		recovered, err := signer.RecoverOrderSigner(svc.DomainSeparator(), orderHash(t, o), packed)
		require.NoError(t, err)
		assert.Equal(t, gateway, recovered, "slot %d", i)

		v, err := svc.VerifyOrder(ctx, &model.VerifyRequest{Order: o, Signature: proof.Signature})
		require.NoError(t, err)
		assert.True(t, v.Valid)
		assert.True(t, v.Bulk)
		assert.Equal(t, "ecdsa", v.Method)
		require.NotNil(t, v.Index)
		assert.Equal(t, i, *v.Index)
		assert.Equal(t, 3, v.Height)
	}
}

func TestBuildBatch_Rejects(t *testing.T) {
	svc, gateway := newTestService(t, true, nil)
	ctx := context.Background()
	_, other := newKey(t)

	_, err := svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(gateway, 65)})
	assert.Equal(t, apperrors.ErrCapacity, errType(t, err))

	_, err = svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(gateway, 1), Height: 11})
	assert.Equal(t, apperrors.ErrCapacity, errType(t, err))

	_, err = svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(gateway, 5), Height: 2})
	assert.Equal(t, apperrors.ErrCapacity, errType(t, err))

	// start index pushes the tree past the configured height
	_, err = svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(gateway, 1), StartIndex: 1024})
	assert.Equal(t, apperrors.ErrCapacity, errType(t, err))

	mixed := append(testOrderInputs(gateway, 1), testOrderInputs(other, 1)...)
	_, err = svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: mixed})
	assert.Equal(t, apperrors.ErrInvalidRequest, errType(t, err))

	_, err = svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(other, 2), Sign: true})
	assert.Equal(t, apperrors.ErrInvalidRequest, errType(t, err))

	bad := testOrderInputs(gateway, 1)
	bad[0].Consideration[0].Recipient = "0x1234"
	_, err = svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: bad})
	assert.Equal(t, apperrors.ErrInput, errType(t, err))

	unsigned, _ := newTestService(t, false, nil)
	_, err = unsigned.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(gateway, 1), Sign: true})
	assert.Equal(t, apperrors.ErrInvalidRequest, errType(t, err))
}

func TestBuildBatch_StartIndexCountsAgainstLimits(t *testing.T) {
	svc, offerer := newTestService(t, false, nil)
	ctx := context.Background()

	// 63 padding slots plus one order fill the 64 allowed.
	resp, err := svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(offerer, 1), StartIndex: 63})
	require.NoError(t, err)
	assert.Equal(t, 6, resp.Batch.Height)

	_, err = svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(offerer, 1), StartIndex: 64})
	assert.Equal(t, apperrors.ErrCapacity, errType(t, err))

	// Rejected up front, without hashing a 2^24 slot tree.
	start := time.Now()
	_, err = svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(offerer, 1), StartIndex: 1<<24 - 1})
	assert.Equal(t, apperrors.ErrCapacity, errType(t, err))
	assert.Less(t, time.Since(start), time.Second)

	_, err = svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(offerer, 1), StartIndex: -1})
	assert.Equal(t, apperrors.ErrInput, errType(t, err))
}

func TestAttachSignature(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	ctx := context.Background()
	key, wallet := newKey(t)
	otherKey, _ := newKey(t)

	resp, err := svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(wallet, 3)})
	require.NoError(t, err)
	id := resp.Batch.ID

	_, err = svc.AttachSignature(ctx, id, &model.AttachSignatureRequest{
		Signer:    wallet.Hex(),
		Signature: walletSign(t, otherKey, resp.Batch.Digest),
	})
	assert.Equal(t, apperrors.ErrSignatureInvalid, errType(t, err))

	_, err = svc.AttachSignature(ctx, id, &model.AttachSignatureRequest{Signer: wallet.Hex(), Signature: "0x1234"})
	assert.Equal(t, apperrors.ErrInput, errType(t, err))

	_, err = svc.AttachSignature(ctx, id, &model.AttachSignatureRequest{
		Signer:    crypto.PubkeyToAddress(otherKey.PublicKey).Hex(),
		Signature: walletSign(t, otherKey, resp.Batch.Digest),
	})
	assert.Equal(t, apperrors.ErrInvalidRequest, errType(t, err))

	sig := walletSign(t, key, resp.Batch.Digest)
	signed, err := svc.AttachSignature(ctx, id, &model.AttachSignatureRequest{Signer: wallet.Hex(), Signature: sig})
	require.NoError(t, err)
	assert.Equal(t, model.BatchSigned, signed.Batch.Status)
	assert.NotNil(t, signed.Batch.SignedAt)

	_, err = svc.AttachSignature(ctx, id, &model.AttachSignatureRequest{Signer: wallet.Hex(), Signature: sig})
	assert.Equal(t, apperrors.ErrConflict, errType(t, err))

	proof, err := svc.GetProof(ctx, id, 2)
	require.NoError(t, err)
	v, err := svc.VerifyOrder(ctx, &model.VerifyRequest{Order: resp.Batch.Orders[2], Signature: proof.Signature})
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, wallet.Hex(), v.Recovered)
}

func TestAttachSignature_CompactWallet(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	ctx := context.Background()
	key, wallet := newKey(t)

	resp, err := svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(wallet, 2)})
	require.NoError(t, err)

	full, err := crypto.Sign(common.HexToHash(resp.Batch.Digest).Bytes(), key)
	require.NoError(t, err)
	compact, err := bulkorder.CompactSignature(full)
	require.NoError(t, err)

	_, err = svc.AttachSignature(ctx, resp.Batch.ID, &model.AttachSignatureRequest{
		Signer:    wallet.Hex(),
		Signature: hexutil.Encode(compact),
	})
	require.NoError(t, err)

	proof, err := svc.GetProof(ctx, resp.Batch.ID, 1)
	require.NoError(t, err)
	packed, err := hexutil.Decode(proof.Signature)
	require.NoError(t, err)
	assert.Len(t, packed, 64+3+32)
}

func TestAttachSignature_ContractOfferer(t *testing.T) {
	contracts := &stubContracts{valid: true}
	svc, _ := newTestService(t, false, contracts)
	ctx := context.Background()
	safe := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	ownerKey, _ := newKey(t)

	resp, err := svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(safe, 2)})
	require.NoError(t, err)

	signed, err := svc.AttachSignature(ctx, resp.Batch.ID, &model.AttachSignatureRequest{
		Signer:    safe.Hex(),
		Signature: walletSign(t, ownerKey, resp.Batch.Digest),
	})
	require.NoError(t, err)
	assert.Equal(t, safe.Hex(), signed.Batch.Signer)
	assert.Equal(t, 1, contracts.calls)

	rejecting := &stubContracts{valid: false}
	svc, _ = newTestService(t, false, rejecting)
	resp, err = svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(safe, 2)})
	require.NoError(t, err)
	_, err = svc.AttachSignature(ctx, resp.Batch.ID, &model.AttachSignatureRequest{
		Signer:    safe.Hex(),
		Signature: walletSign(t, ownerKey, resp.Batch.Digest),
	})
	assert.Equal(t, apperrors.ErrSignatureInvalid, errType(t, err))

	failing := &stubContracts{err: errors.New("connection refused")}
	svc, _ = newTestService(t, false, failing)
	resp, err = svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(safe, 2)})
	require.NoError(t, err)
	_, err = svc.AttachSignature(ctx, resp.Batch.ID, &model.AttachSignatureRequest{
		Signer:    safe.Hex(),
		Signature: walletSign(t, ownerKey, resp.Batch.Digest),
	})
	assert.Equal(t, apperrors.ErrUpstream, errType(t, err))
}

func TestVerifyOrder_PlainSignature(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	ctx := context.Background()
	key, wallet := newKey(t)
	order := testOrderInputs(wallet, 1)[0]

	digest := signer.Digest(svc.DomainSeparator(), orderHash(t, order))
	sig := walletSign(t, key, digest.Hex())

	v, err := svc.VerifyOrder(ctx, &model.VerifyRequest{Order: order, Signature: sig})
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.False(t, v.Bulk)
	assert.Nil(t, v.Index)

	_, other := newKey(t)
	v, err = svc.VerifyOrder(ctx, &model.VerifyRequest{Order: order, Signature: sig, Signer: other.Hex()})
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, wallet.Hex(), v.Recovered)

	_, err = svc.VerifyOrder(ctx, &model.VerifyRequest{Order: order, Signature: "0xdeadbeef"})
	assert.Equal(t, apperrors.ErrInput, errType(t, err))

	contracts := &stubContracts{valid: true}
	withContracts, _ := newTestService(t, false, contracts)
	v, err = withContracts.VerifyOrder(ctx, &model.VerifyRequest{Order: order, Signature: "0xdeadbeef"})
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "eip1271", v.Method)
}

func TestTypeHashesAndDirectory(t *testing.T) {
	svc, _ := newTestService(t, false, nil)

	resp, err := svc.TypeHashes(3)
	require.NoError(t, err)
	require.Len(t, resp.Hashes, 3)
	for i, e := range resp.Hashes {
		assert.Equal(t, i+1, e.Height)
		want, err := bulkorder.BulkOrderTypeHash(i + 1)
		require.NoError(t, err)
		assert.Equal(t, want.Hex(), e.TypeHash)
	}

	dir, err := svc.DirectoryCode(2)
	require.NoError(t, err)
	code, err := hexutil.Decode(dir.Code)
	require.NoError(t, err)
	assert.Len(t, code, 1+2*32)
	assert.Equal(t, byte(0xfe), code[0])
	assert.Equal(t, crypto.Keccak256Hash(code).Hex(), dir.CodeHash)

	_, err = svc.TypeHashes(0)
	assert.Equal(t, apperrors.ErrInput, errType(t, err))
	_, err = svc.DirectoryCode(25)
	assert.Equal(t, apperrors.ErrCapacity, errType(t, err))
	_, err = svc.TypeHashes(25)
	assert.Equal(t, apperrors.ErrCapacity, errType(t, err))
}

type fixedCounter struct {
	value *big.Int
	err   error
}

func (f fixedCounter) GetCounter(ctx context.Context, offerer common.Address) (*big.Int, error) {
	return f.value, f.err
}

func TestBuildBatch_Counters(t *testing.T) {
	svc, _ := newTestService(t, false, nil)
	svc.WithCounters(fixedCounter{value: big.NewInt(3)})
	ctx := context.Background()
	_, offerer := newKey(t)

	orders := testOrderInputs(offerer, 2)
	orders[1].Counter = model.NewAmount(big.NewInt(3))
	resp, err := svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: orders})
	require.NoError(t, err)
	assert.Equal(t, "3", resp.Batch.Orders[0].Counter.String())
	assert.False(t, orders[0].Counter.IsSet(), "request must not be mutated")

	// the filled counter is part of the stored batch, so the tree rebuilds
	got, err := svc.GetBatch(ctx, resp.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.Batch.Root, got.Batch.Root)

	stale := testOrderInputs(offerer, 1)
	stale[0].Counter = model.NewAmount(big.NewInt(2))
	_, err = svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: stale})
	assert.Equal(t, apperrors.ErrInput, errType(t, err))

	svc.WithCounters(fixedCounter{err: errors.New("rpc down")})
	_, err = svc.BuildBatch(ctx, &model.CreateBatchRequest{Orders: testOrderInputs(offerer, 1)})
	assert.Equal(t, apperrors.ErrUpstream, errType(t, err))
}
