package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/bulkgate/internal/pkg/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// isValidSignature(bytes32,bytes) selector, returned on success.
var eip1271MagicValue = []byte{0x16, 0x26, 0xba, 0x7e}

const isValidSignatureABI = `[{"constant":true,"inputs":[{"name":"_hash","type":"bytes32"},{"name":"_signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"magicValue","type":"bytes4"}],"payable":false,"stateMutability":"view","type":"function"}]`

// Expired verdicts are swept once the cache grows past this many entries.
const verdictSweepSize = 4096

// ContractSigVerifier checks signatures of contract offerers. Seaport hands
// such offerers the order digest and the signature exactly as submitted,
// bulk proof included.
type ContractSigVerifier interface {
	IsValidSignature(ctx context.Context, contract common.Address, digest common.Hash, signature []byte) (bool, error)
}

// EIP1271Verifier asks the offerer contract itself. Verdicts are cached per
// (contract, digest, signature) for ttl; RPC failures are never cached.
type EIP1271Verifier struct {
	rpcURL   string
	abi      abi.ABI
	mu       sync.Mutex
	caller   ethereum.ContractCaller
	verdicts map[verdictKey]verdict
	ttl      time.Duration
	timeout  time.Duration
	retries  int
	backoff  time.Duration
}

type verdictKey struct {
	contract  common.Address
	digest    common.Hash
	signature common.Hash
}

type verdict struct {
	valid   bool
	expires time.Time
}

func NewEIP1271Verifier(rpcURL string, ttl time.Duration, timeout time.Duration, retries int) (*EIP1271Verifier, error) {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	parsed, err := abi.JSON(strings.NewReader(isValidSignatureABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse abi: %w", err)
	}
	return &EIP1271Verifier{
		rpcURL:   strings.TrimSpace(rpcURL),
		abi:      parsed,
		verdicts: make(map[verdictKey]verdict),
		ttl:      ttl,
		timeout:  timeout,
		retries:  retries,
		backoff:  200 * time.Millisecond,
	}, nil
}

// WithCaller replaces the RPC client, mostly for tests.
func (v *EIP1271Verifier) WithCaller(c ethereum.ContractCaller) *EIP1271Verifier {
	v.mu.Lock()
	v.caller = c
	v.mu.Unlock()
	return v
}

func (v *EIP1271Verifier) IsValidSignature(ctx context.Context, contract common.Address, digest common.Hash, signature []byte) (bool, error) {
	key := verdictKey{contract: contract, digest: digest, signature: crypto.Keccak256Hash(signature)}
	if valid, ok := v.lookup(key); ok {
		return valid, nil
	}

	data, err := v.abi.Pack("isValidSignature", [32]byte(digest), signature)
	if err != nil {
		return false, fmt.Errorf("failed to pack call data: %w", err)
	}
	msg := ethereum.CallMsg{To: &contract, Data: data}

	var lastErr error
	for attempt := 0; ; attempt++ {
		output, err := v.call(ctx, msg)
		if err == nil {
			// Anything but the magic value is a rejection.
			valid := len(output) >= 4 && bytes.Equal(output[:4], eip1271MagicValue)
			v.remember(key, valid)
			return valid, nil
		}
		lastErr = err
		logger.Debug("isValidSignature call failed", "contract", contract.Hex(), "attempt", attempt, "error", err)
		if !shouldRetry(ctx, attempt, v.retries, v.backoff) {
			return false, lastErr
		}
	}
}

func (v *EIP1271Verifier) call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	caller, err := v.getCaller(ctx)
	if err != nil {
		return nil, err
	}
	output, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("rpc call failed: %w", err)
	}
	return output, nil
}

func (v *EIP1271Verifier) getCaller(ctx context.Context) (ethereum.ContractCaller, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.caller != nil {
		return v.caller, nil
	}
	if v.rpcURL == "" {
		return nil, fmt.Errorf("rpc url not configured")
	}
	client, err := ethclient.DialContext(ctx, v.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rpc: %w", err)
	}
	v.caller = client
	return v.caller, nil
}

func (v *EIP1271Verifier) lookup(key verdictKey) (bool, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.verdicts[key]
	if !ok {
		return false, false
	}
	if time.Now().After(entry.expires) {
		delete(v.verdicts, key)
		return false, false
	}
	return entry.valid, true
}

func (v *EIP1271Verifier) remember(key verdictKey, valid bool) {
	now := time.Now()
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.verdicts) >= verdictSweepSize {
		for k, e := range v.verdicts {
			if now.After(e.expires) {
				delete(v.verdicts, k)
			}
		}
	}
	v.verdicts[key] = verdict{valid: valid, expires: now.Add(v.ttl)}
}

// shouldRetry waits out a linear backoff unless attempts are exhausted or
// ctx is done.
func shouldRetry(ctx context.Context, attempt, max int, backoff time.Duration) bool {
	if attempt >= max {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Duration(attempt+1) * backoff):
		return true
	}
}
