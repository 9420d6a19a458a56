package manager

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/bulkgate/internal/pkg/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const getCounterABI = `[{"inputs":[{"internalType":"address","name":"offerer","type":"address"}],"name":"getCounter","outputs":[{"internalType":"uint256","name":"counter","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// CounterManager caches Seaport counters. An order is only fillable while
// its counter equals getCounter(offerer); incrementCounter() cancels every
// order signed under the old value.
type CounterManager struct {
	caller  ethereum.ContractCaller
	seaport common.Address
	abi     abi.ABI
	ttl     time.Duration

	mu       sync.RWMutex
	counters map[common.Address]cachedCounter
}

type cachedCounter struct {
	value   *big.Int
	fetched time.Time
}

func NewCounterManager(rpcURL string, seaport common.Address, ttl time.Duration) (*CounterManager, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to eth client: %w", err)
	}
	return NewCounterManagerWithCaller(client, seaport, ttl)
}

func NewCounterManagerWithCaller(caller ethereum.ContractCaller, seaport common.Address, ttl time.Duration) (*CounterManager, error) {
	parsed, err := abi.JSON(strings.NewReader(getCounterABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse abi: %w", err)
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CounterManager{
		caller:   caller,
		seaport:  seaport,
		abi:      parsed,
		ttl:      ttl,
		counters: make(map[common.Address]cachedCounter),
	}, nil
}

// GetCounter returns the offerer's current counter, from cache when fresh.
func (m *CounterManager) GetCounter(ctx context.Context, offerer common.Address) (*big.Int, error) {
	m.mu.RLock()
	cached, ok := m.counters[offerer]
	m.mu.RUnlock()
	if ok && time.Since(cached.fetched) < m.ttl {
		return new(big.Int).Set(cached.value), nil
	}
	return m.SyncCounter(ctx, offerer)
}

// SyncCounter reads the counter from the Seaport contract.
func (m *CounterManager) SyncCounter(ctx context.Context, offerer common.Address) (*big.Int, error) {
	data, err := m.abi.Pack("getCounter", offerer)
	if err != nil {
		return nil, err
	}
	res, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &m.seaport, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getCounter call failed: %w", err)
	}
	out, err := m.abi.Unpack("getCounter", res)
	if err != nil {
		return nil, fmt.Errorf("decode getCounter: %w", err)
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode getCounter: unexpected %T", out[0])
	}

	m.mu.Lock()
	m.counters[offerer] = cachedCounter{value: value, fetched: time.Now()}
	m.mu.Unlock()
	logger.Debug("synced seaport counter", "offerer", offerer.Hex(), "counter", value.String())
	return new(big.Int).Set(value), nil
}

// Invalidate drops the cached counter so the next read hits the chain.
func (m *CounterManager) Invalidate(offerer common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counters, offerer)
}
