package liquidator

import (
	"context"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

func testLog() Log {
	l := zerolog.New(io.Discard)
	return &l
}

// fakeClient is an in-memory ChainClient with scriptable simulation
// behavior and persistent deployment state across registry builds.
type fakeClient struct {
	mu sync.Mutex

	deployer common.Address

	simulateFn  func(calls []Call) ([]byte, error)
	multicallFn func(reads []Call) ([][]byte, error)

	simulations  [][]Call
	submitted    [][]Call
	impersonated []common.Address

	receipts    map[common.Hash]*types.Receipt
	hasCode     map[common.Address]bool
	deployCount int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		deployer: common.HexToAddress("0xdddd00000000000000000000000000000000dddd"),
		receipts: make(map[common.Hash]*types.Receipt),
		hasCode:  make(map[common.Address]bool),
	}
}

func (f *fakeClient) SimulateCall(_ context.Context, _ common.Address, calls []Call) ([]byte, error) {
	f.mu.Lock()
	f.simulations = append(f.simulations, calls)
	f.mu.Unlock()
	if f.simulateFn != nil {
		return f.simulateFn(calls)
	}
	return nil, nil
}

func (f *fakeClient) SubmitTransaction(_ context.Context, calls []Call) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, calls)
	return common.BigToHash(big.NewInt(int64(len(f.submitted)))), nil
}

func (f *fakeClient) WaitForReceipt(_ context.Context, txHash common.Hash, _ time.Duration) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash, GasUsed: 500_000}, nil
}

func (f *fakeClient) MulticallRead(_ context.Context, reads []Call) ([][]byte, error) {
	if f.multicallFn != nil {
		return f.multicallFn(reads)
	}
	out := make([][]byte, len(reads))
	for i := range reads {
		out[i] = make([]byte, 32)
	}
	return out, nil
}

func (f *fakeClient) DeployContract(_ context.Context, initCode []byte, salt common.Hash) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deployCount++
	addr := crypto.CreateAddress2(f.deployer, salt, crypto.Keccak256(initCode))
	f.hasCode[addr] = true
	return addr, nil
}

func (f *fakeClient) HasCode(_ context.Context, addr common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasCode[addr], nil
}

func (f *fakeClient) ImpersonatedSubmit(_ context.Context, from common.Address, _ Call) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.impersonated = append(f.impersonated, from)
	return common.BigToHash(big.NewInt(int64(1000 + len(f.impersonated)))), nil
}

type fakeOracle struct {
	calls []Call
}

func (o *fakeOracle) BuildUpdateCalls(context.Context, *CreditAccount, bool) ([]Call, error) {
	return o.calls, nil
}

type fakePathFinder struct {
	path *ClosePath
	err  error
}

func (p *fakePathFinder) FindBestClosePath(context.Context, *CreditAccount, *CreditManagerProfile, int64) (*ClosePath, error) {
	return p.path, p.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
	alerts []Event
}

func (n *fakeNotifier) Notify(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *fakeNotifier) Alert(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, event)
}

func (n *fakeNotifier) all() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append(append([]Event{}, n.events...), n.alerts...)
}

type fakeStore struct {
	mu      sync.Mutex
	records []*OptimisticRecord
}

func (s *fakeStore) SaveOutcome(_ context.Context, rec *OptimisticRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func testAccount(hf int64, version int) *CreditAccount {
	return &CreditAccount{
		Address:       common.HexToAddress("0xaaaa00000000000000000000000000000000aaaa"),
		Borrower:      common.HexToAddress("0xb0b0000000000000000000000000000000000b0b"),
		CreditManager: common.HexToAddress("0xc1c1000000000000000000000000000000000c1c"),
		CreditFacade:  common.HexToAddress("0xfafa000000000000000000000000000000000afa"),
		Underlying:    common.HexToAddress("0x1111000000000000000000000000000000001111"),
		Debt:          big.NewInt(1_000_000),
		HealthFactor:  hf,
		FacadeVersion: version,
		Success:       true,
	}
}

func testProfile(curator, network, symbol string, routerVersion int) *CreditManagerProfile {
	return &CreditManagerProfile{
		Address:             common.HexToAddress("0xc1c1000000000000000000000000000000000c1c"),
		Name:                symbol + " v3",
		Network:             network,
		Curator:             curator,
		Version:             routerVersion,
		Underlying:          common.HexToAddress("0x1111000000000000000000000000000000001111"),
		UnderlyingSymbol:    symbol,
		Router:              common.HexToAddress("0x2222000000000000000000000000000000002222"),
		RouterVersion:       routerVersion,
		CreditFacade:        common.HexToAddress("0xfafa000000000000000000000000000000000afa"),
		LiquidationDiscount: 9600,
		FeeLiquidation:      150,
	}
}

func testArtifacts() map[string][]byte {
	return map[string][]byte{
		"Aave":   {0x60, 0x80, 0x60, 0x40, 0x01},
		"GHO":    {0x60, 0x80, 0x60, 0x40, 0x02},
		"Silo":   {0x60, 0x80, 0x60, 0x40, 0x03},
		"Morpho": {0x60, 0x80, 0x60, 0x40, 0x04},
	}
}
