package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/GoPolymarket/bulkgate/internal/bulkorder"
	"github.com/GoPolymarket/bulkgate/internal/config"
	"github.com/GoPolymarket/bulkgate/internal/model"
	"github.com/GoPolymarket/bulkgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/bulkgate/internal/pkg/logger"
	"github.com/GoPolymarket/bulkgate/internal/pkg/metrics"
	"github.com/GoPolymarket/bulkgate/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

const (
	methodECDSA   = "ecdsa"
	methodEIP1271 = "eip1271"
)

// BulkOrderService builds bulk order trees, signs or accepts signatures over
// them and hands out per-order proofs.
type BulkOrderService struct {
	repo            BatchRepo
	domain          signer.Domain
	domainSeparator common.Hash
	signer          *signer.Signer
	contracts       ContractSigVerifier
	counters        CounterSource
	compact         bool
	maxHeight       int
	maxOrders       int
	now             func() time.Time
}

// NewBulkOrderService wires the service. s and contracts are optional: without
// a signer batches must be signed by the caller, without a contract verifier
// only ECDSA signatures are accepted.
func NewBulkOrderService(cfg *config.Config, repo BatchRepo, s *signer.Signer, contracts ContractSigVerifier) *BulkOrderService {
	domain := signer.SeaportDomain(cfg.Chain.ChainID, cfg.Chain.SeaportAddress)
	maxHeight := cfg.Tree.MaxHeight
	if maxHeight <= 0 || maxHeight > bulkorder.MaxHeight {
		maxHeight = bulkorder.MaxHeight
	}
	maxOrders := cfg.Tree.MaxOrders
	if maxOrders <= 0 || maxOrders > 1<<maxHeight {
		maxOrders = 1 << maxHeight
	}
	return &BulkOrderService{
		repo:            repo,
		domain:          domain,
		domainSeparator: domain.Separator(),
		signer:          s,
		contracts:       contracts,
		compact:         cfg.Signer.Compact,
		maxHeight:       maxHeight,
		maxOrders:       maxOrders,
		now:             time.Now,
	}
}

// CounterSource reads an offerer's current Seaport counter.
type CounterSource interface {
	GetCounter(ctx context.Context, offerer common.Address) (*big.Int, error)
}

// WithCounters makes BuildBatch fill unset order counters and reject stale
// ones.
func (s *BulkOrderService) WithCounters(src CounterSource) *BulkOrderService {
	s.counters = src
	return s
}

func (s *BulkOrderService) Domain() signer.Domain {
	return s.domain
}

func (s *BulkOrderService) DomainSeparator() common.Hash {
	return s.domainSeparator
}

// BuildBatch hashes the orders into a tree and stores the batch. With
// req.Sign the gateway key signs it right away; otherwise the response
// carries typed data for the offerer's wallet.
func (s *BulkOrderService) BuildBatch(ctx context.Context, req *model.CreateBatchRequest) (*model.BatchResponse, error) {
	if len(req.Orders) == 0 {
		return nil, apperrors.NewInvalidRequest("at least one order is required")
	}
	if len(req.Orders) > s.maxOrders {
		return nil, apperrors.New(apperrors.ErrCapacity,
			fmt.Sprintf("%d orders exceed the limit of %d", len(req.Orders), s.maxOrders), nil)
	}
	if req.Height > s.maxHeight {
		return nil, apperrors.New(apperrors.ErrCapacity,
			fmt.Sprintf("height %d exceeds the limit of %d", req.Height, s.maxHeight), nil)
	}
	if req.StartIndex < 0 {
		return nil, apperrors.New(apperrors.ErrInput, "start_index must not be negative", nil)
	}
	// Leading padding occupies slots too; maxOrders never exceeds 1<<maxHeight.
	if req.StartIndex > s.maxOrders-len(req.Orders) {
		return nil, apperrors.New(apperrors.ErrCapacity,
			fmt.Sprintf("start_index %d plus %d orders exceed the limit of %d slots", req.StartIndex, len(req.Orders), s.maxOrders), nil)
	}

	batch := &model.Batch{
		ID:         uuid.NewString(),
		ChainID:    s.domain.ChainID.Int64(),
		Seaport:    s.domain.VerifyingContract.Hex(),
		Orders:     append([]model.OrderInput(nil), req.Orders...),
		StartIndex: req.StartIndex,
		Height:     req.Height,
		Status:     model.BatchPending,
		CreatedAt:  s.now().UTC(),
	}

	offerer, err := commonOfferer(req.Orders)
	if err != nil {
		return nil, err
	}
	if err := s.applyCounter(ctx, offerer, batch.Orders); err != nil {
		return nil, err
	}

	start := time.Now()
	tree, err := s.buildTree(batch)
	metrics.TreeBuildSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TreesBuilt.WithLabelValues("error").Inc()
		return nil, err
	}
	if tree.Height() > s.maxHeight {
		metrics.TreesBuilt.WithLabelValues("rejected").Inc()
		return nil, apperrors.New(apperrors.ErrCapacity,
			fmt.Sprintf("tree of height %d exceeds the limit of %d", tree.Height(), s.maxHeight), nil)
	}
	metrics.TreesBuilt.WithLabelValues("ok").Inc()
	metrics.TreeHeight.Observe(float64(tree.Height()))

	// Pin the height so the tree rebuilds identically on read.
	batch.Height = tree.Height()
	hash, err := tree.BulkOrderHash()
	if err != nil {
		return nil, apperrors.FromEngine(err)
	}
	batch.Root = tree.Root().Hex()
	batch.BulkOrderHash = hash.Hex()
	batch.Digest = signer.Digest(s.domainSeparator, hash).Hex()

	if req.Sign {
		if s.signer == nil {
			return nil, apperrors.NewInvalidRequest("server-side signing is not configured")
		}
		if s.signer.Address() != offerer {
			return nil, apperrors.NewInvalidRequest(
				fmt.Sprintf("orders are offered by %s but the gateway signs as %s", offerer.Hex(), s.signer.Address().Hex()))
		}
		signed, err := s.signer.SignBulkOrder(tree, s.compact)
		if err != nil {
			metrics.Signatures.WithLabelValues("gateway", "error").Inc()
			return nil, apperrors.New(apperrors.ErrInternal, "failed to sign bulk order", err)
		}
		metrics.Signatures.WithLabelValues("gateway", "ok").Inc()
		s.markSigned(batch, s.signer.Address(), signed.Signature)
	}

	if err := s.repo.Save(ctx, batch); err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to store batch", err)
	}
	logger.FromContext(ctx).Info("batch created",
		"batch_id", batch.ID,
		"orders", len(batch.Orders),
		"height", batch.Height,
		"start_index", batch.StartIndex,
		"status", batch.Status,
	)
	return s.response(batch, tree)
}

// GetBatch loads a batch and rebuilds its tree.
func (s *BulkOrderService) GetBatch(ctx context.Context, id string) (*model.BatchResponse, error) {
	batch, tree, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.response(batch, tree)
}

// GetProof returns the inclusion proof for slot index. Once the batch is
// signed the packed signature for that slot is included.
func (s *BulkOrderService) GetProof(ctx context.Context, id string, index int) (*model.ProofResponse, error) {
	batch, tree, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	proof, err := tree.GetProof(index)
	if err != nil {
		return nil, apperrors.FromEngine(err)
	}
	resp := &model.ProofResponse{
		BatchID: batch.ID,
		Index:   index,
		Leaf:    proof.Leaf.Hex(),
		Proof:   hashesToHex(proof.Siblings),
		Root:    proof.Root.Hex(),
	}
	if batch.Signed() {
		sig, err := hexutil.Decode(batch.Signature)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrInternal, "stored signature is corrupt", err)
		}
		packed, err := bulkorder.EncodeBulkSignature(sig, index, proof.Siblings)
		if err != nil {
			return nil, apperrors.FromEngine(err)
		}
		resp.Signature = hexutil.Encode(packed)
	}
	metrics.ProofsServed.Inc()
	return resp, nil
}

// AttachSignature stores a signature produced by the offerer's wallet. The
// signature must recover to the claimed signer, or be accepted by it through
// EIP-1271 when a contract verifier is configured.
func (s *BulkOrderService) AttachSignature(ctx context.Context, id string, req *model.AttachSignatureRequest) (*model.BatchResponse, error) {
	if !common.IsHexAddress(req.Signer) {
		return nil, apperrors.NewInvalidRequest("signer must be an address")
	}
	claimed := common.HexToAddress(req.Signer)
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInput, "signature must be 0x-prefixed hex", err)
	}

	batch, tree, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch.Signed() {
		return nil, apperrors.New(apperrors.ErrConflict, "batch is already signed", nil)
	}
	offerer, err := commonOfferer(batch.Orders)
	if err != nil {
		return nil, err
	}
	if offerer != claimed {
		return nil, apperrors.NewInvalidRequest(
			fmt.Sprintf("signer %s is not the offerer %s", claimed.Hex(), offerer.Hex()))
	}

	signed, err := signer.AttachSignature(s.domainSeparator, tree, sig)
	if err != nil {
		metrics.Signatures.WithLabelValues("external", "malformed").Inc()
		return nil, apperrors.FromEngine(err)
	}

	method := methodECDSA
	recovered, recErr := signer.RecoverSigner(signed.Digest, sig)
	if recErr != nil || recovered != claimed {
		if s.contracts == nil {
			metrics.Signatures.WithLabelValues("external", "rejected").Inc()
			return nil, apperrors.FromEngine(mismatch(recovered, claimed, recErr))
		}
		ok, err := s.contracts.IsValidSignature(ctx, claimed, signed.Digest, sig)
		if err != nil {
			metrics.Signatures.WithLabelValues("external", "error").Inc()
			return nil, apperrors.New(apperrors.ErrUpstream, "contract signature check failed", err)
		}
		if !ok {
			metrics.Signatures.WithLabelValues("external", "rejected").Inc()
			return nil, apperrors.FromEngine(mismatch(recovered, claimed, recErr))
		}
		method = methodEIP1271
	}
	metrics.Signatures.WithLabelValues("external", "ok").Inc()

	s.markSigned(batch, claimed, signed.Signature)
	if err := s.repo.Save(ctx, batch); err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to store batch", err)
	}
	logger.FromContext(ctx).Info("batch signed",
		"batch_id", batch.ID,
		"signer", claimed.Hex(),
		"method", method,
	)
	return s.response(batch, tree)
}

// VerifyOrder checks a signature the way Seaport would for a single order:
// a plain signature over the order digest or a packed bulk signature, with
// an EIP-1271 fallback for contract offerers.
func (s *BulkOrderService) VerifyOrder(ctx context.Context, req *model.VerifyRequest) (*model.VerifyResponse, error) {
	order, err := req.Order.ToComponents()
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInput, err.Error(), err)
	}
	orderHash, err := order.Hash()
	if err != nil {
		return nil, apperrors.FromEngine(err)
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInput, "signature must be 0x-prefixed hex", err)
	}
	expected := order.Offerer
	if req.Signer != "" {
		if !common.IsHexAddress(req.Signer) {
			return nil, apperrors.NewInvalidRequest("signer must be an address")
		}
		expected = common.HexToAddress(req.Signer)
	}

	resp := &model.VerifyResponse{
		Method:    methodECDSA,
		Bulk:      bulkorder.IsBulkSignature(sig),
		OrderHash: orderHash.Hex(),
	}
	if resp.Bulk {
		bs, err := bulkorder.DecodeBulkSignature(sig)
		if err != nil {
			return nil, apperrors.FromEngine(err)
		}
		resp.Index = &bs.Index
		resp.Height = len(bs.Proof)
	}

	recovered, recErr := signer.RecoverOrderSigner(s.domainSeparator, orderHash, sig)
	switch {
	case recErr == nil:
		resp.Recovered = recovered.Hex()
		resp.Valid = recovered == expected
	case s.contracts == nil:
		// Contract signatures may be any bytes, plain ECDSA may not.
		return nil, apperrors.FromEngine(recErr)
	}
	if !resp.Valid && s.contracts != nil {
		// Contracts see the order digest and the full submitted signature.
		ok, err := s.contracts.IsValidSignature(ctx, expected, signer.Digest(s.domainSeparator, orderHash), sig)
		if err != nil {
			metrics.Verifications.WithLabelValues(methodEIP1271, "error").Inc()
			return nil, apperrors.New(apperrors.ErrUpstream, "contract signature check failed", err)
		}
		if ok {
			resp.Method = methodEIP1271
			resp.Valid = true
		}
	}
	metrics.Verifications.WithLabelValues(resp.Method, strconv.FormatBool(resp.Valid)).Inc()
	return resp, nil
}

// TypeHashes lists the BulkOrder type hashes for heights 1 through max.
func (s *BulkOrderService) TypeHashes(max int) (*model.TypeHashesResponse, error) {
	hashes, err := bulkorder.BulkOrderTypeHashes(max)
	if err != nil {
		return nil, apperrors.FromEngine(err)
	}
	resp := &model.TypeHashesResponse{Hashes: make([]model.TypeHashEntry, len(hashes))}
	for i, h := range hashes {
		resp.Hashes[i] = model.TypeHashEntry{Height: i + 1, TypeHash: h.Hex()}
	}
	return resp, nil
}

// DirectoryCode returns the type hash directory a verifier contract can
// deploy and read with EXTCODECOPY.
func (s *BulkOrderService) DirectoryCode(max int) (*model.DirectoryResponse, error) {
	hashes, err := bulkorder.BulkOrderTypeHashes(max)
	if err != nil {
		return nil, apperrors.FromEngine(err)
	}
	code := bulkorder.DirectoryCode(hashes)
	return &model.DirectoryResponse{
		MaxHeight: max,
		Code:      hexutil.Encode(code),
		CodeHash:  crypto.Keccak256Hash(code).Hex(),
	}, nil
}

func (s *BulkOrderService) load(ctx context.Context, id string) (*model.Batch, *bulkorder.Tree, error) {
	batch, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrBatchNotFound) {
			return nil, nil, apperrors.NewNotFound(fmt.Sprintf("batch %s not found", id))
		}
		return nil, nil, apperrors.New(apperrors.ErrInternal, "failed to load batch", err)
	}
	tree, err := s.buildTree(batch)
	if err != nil {
		return nil, nil, err
	}
	if tree.Root().Hex() != batch.Root {
		return nil, nil, apperrors.New(apperrors.ErrInvariantViolation,
			fmt.Sprintf("batch %s rebuilt to root %s, stored %s", id, tree.Root().Hex(), batch.Root), nil)
	}
	return batch, tree, nil
}

func (s *BulkOrderService) buildTree(batch *model.Batch) (*bulkorder.Tree, error) {
	orders := make([]bulkorder.OrderComponents, len(batch.Orders))
	for i := range batch.Orders {
		order, err := batch.Orders[i].ToComponents()
		if err != nil {
			return nil, apperrors.New(apperrors.ErrInput, fmt.Sprintf("orders[%d]: %v", i, err), err)
		}
		orders[i] = *order
	}
	opts := []bulkorder.BuildOption{bulkorder.WithStartIndex(batch.StartIndex)}
	if batch.Height > 0 {
		opts = append(opts, bulkorder.WithHeight(batch.Height))
	}
	tree, err := bulkorder.NewBulkOrderTree(orders, opts...)
	if err != nil {
		return nil, apperrors.FromEngine(err)
	}
	return tree, nil
}

func (s *BulkOrderService) applyCounter(ctx context.Context, offerer common.Address, orders []model.OrderInput) error {
	if s.counters == nil {
		return nil
	}
	counter, err := s.counters.GetCounter(ctx, offerer)
	if err != nil {
		return apperrors.New(apperrors.ErrUpstream, "failed to read offerer counter", err)
	}
	for i := range orders {
		if !orders[i].Counter.IsSet() {
			orders[i].Counter = model.NewAmount(counter)
			continue
		}
		if orders[i].Counter.Int().Cmp(counter) != 0 {
			return apperrors.New(apperrors.ErrInput,
				fmt.Sprintf("orders[%d]: counter %s is stale, offerer is at %s", i, orders[i].Counter, counter), nil)
		}
	}
	return nil
}

func (s *BulkOrderService) markSigned(batch *model.Batch, by common.Address, sig []byte) {
	now := s.now().UTC()
	batch.Status = model.BatchSigned
	batch.Signer = by.Hex()
	batch.Signature = hexutil.Encode(sig)
	batch.SignedAt = &now
}

func (s *BulkOrderService) response(batch *model.Batch, tree *bulkorder.Tree) (*model.BatchResponse, error) {
	resp := &model.BatchResponse{
		Batch:      batch,
		TypeString: tree.TypeString(),
		TypeHash:   tree.TypeHash().Hex(),
		Leaves:     hashesToHex(tree.Leaves()),
	}
	if !batch.Signed() {
		td, err := signer.TypedData(s.domain, tree)
		if err != nil {
			return nil, apperrors.FromEngine(err)
		}
		resp.TypedData = td
	}
	return resp, nil
}

// commonOfferer returns the offerer shared by every order. One signature
// covers the whole tree, so mixed offerers cannot be signed.
func commonOfferer(orders []model.OrderInput) (common.Address, error) {
	var offerer common.Address
	for i, o := range orders {
		if !common.IsHexAddress(o.Offerer) {
			return common.Address{}, apperrors.NewInvalidRequest(fmt.Sprintf("orders[%d]: invalid offerer %q", i, o.Offerer))
		}
		addr := common.HexToAddress(o.Offerer)
		if i == 0 {
			offerer = addr
			continue
		}
		if addr != offerer {
			return common.Address{}, apperrors.NewInvalidRequest(
				fmt.Sprintf("orders[%d]: offerer %s differs from %s", i, addr.Hex(), offerer.Hex()))
		}
	}
	return offerer, nil
}

func mismatch(recovered, expected common.Address, recErr error) error {
	if recErr != nil {
		return recErr
	}
	return fmt.Errorf("%w: recovered %s, expected %s", signer.ErrSignatureMismatch, recovered.Hex(), expected.Hex())
}

func hashesToHex(hashes []common.Hash) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.Hex()
	}
	return out
}
