package liquidator

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func builderFixture(t *testing.T, client *fakeClient, oracle *fakeOracle, finder *fakePathFinder, opts PreviewBuilderOptions) (*PreviewBuilder, *Registry) {
	t.Helper()
	r := NewRegistry(testLog(), client, testRegistryConfig(client), nil)
	if opts.Wallet == (common.Address{}) {
		opts.Wallet = common.HexToAddress("0xeeee00000000000000000000000000000000eeee")
	}
	return NewPreviewBuilder(testLog(), client, oracle, finder, r, opts), r
}

func packOptimal(t *testing.T, repayable bool) []byte {
	t.Helper()
	out, err := partialLiquidatorABI.Methods["getOptimalLiquidation"].Outputs.Pack(
		common.HexToAddress("0x3333000000000000000000000000000000003333"),
		big.NewInt(50_000), big.NewInt(48_000), big.NewInt(52_000), repayable)
	assert.NoError(t, err)
	return out
}

func TestPreviewFullPrependsPriceUpdates(t *testing.T) {
	client := newFakeClient()
	oracle := &fakeOracle{calls: []Call{
		{Target: common.HexToAddress("0x4444000000000000000000000000000000004444"), CallData: []byte{0x01}},
		{Target: common.HexToAddress("0x4444000000000000000000000000000000004444"), CallData: []byte{0x02}},
	}}
	finder := &fakePathFinder{path: &ClosePath{
		Amount:    big.NewInt(100),
		MinAmount: big.NewInt(95),
		Calls:     []Call{{Target: common.HexToAddress("0x2222000000000000000000000000000000002222"), CallData: []byte{0xaa}}},
	}}
	builder, _ := builderFixture(t, client, oracle, finder, PreviewBuilderOptions{})

	acc := testAccount(9500, 310)
	preview, err := builder.Preview(context.Background(), acc, testProfile("Chaos Labs", "ethereum", "WETH", 300), StrategyFull)
	assert.NoError(t, err)
	assert.Len(t, preview.Calls, 3)
	assert.Equal(t, 2, preview.PriceUpdateCount)
	// Oracle updates lead, the facade liquidation call closes the plan.
	assert.Equal(t, oracle.calls[0], preview.Calls[0])
	assert.Equal(t, acc.CreditFacade, preview.Calls[2].Target)
	assert.Equal(t, big.NewInt(100), preview.Amount)
	assert.Equal(t, big.NewInt(95), preview.MinAmount)
}

func TestPreviewFullNoViablePath(t *testing.T) {
	client := newFakeClient()
	builder, _ := builderFixture(t, client, &fakeOracle{}, &fakePathFinder{path: nil}, PreviewBuilderOptions{})

	_, err := builder.Preview(context.Background(), testAccount(9500, 310), testProfile("Chaos Labs", "ethereum", "WETH", 300), StrategyFull)
	assert.ErrorIs(t, err, ErrNoViablePath)
}

func TestPreviewPartial(t *testing.T) {
	client := newFakeClient()
	client.simulateFn = func(calls []Call) ([]byte, error) {
		return packOptimal(t, true), nil
	}
	builder, registry := builderFixture(t, client, &fakeOracle{}, &fakePathFinder{}, PreviewBuilderOptions{SlippageBps: 100})

	profile := testProfile("Chaos Labs", "ethereum", "WETH", 300)
	assert.NoError(t, registry.Build(context.Background(), []*CreditManagerProfile{profile}))
	inst := registry.Resolve(profile.Address)
	assert.NotNil(t, inst)

	acc := testAccount(9500, 310)
	preview, err := builder.Preview(context.Background(), acc, profile, StrategyPartial)
	assert.NoError(t, err)
	assert.Len(t, preview.Calls, 1)
	assert.Equal(t, inst.Address, preview.Calls[0].Target)
	assert.Equal(t, big.NewInt(50_000), preview.OptimalAmount)
	assert.Equal(t, big.NewInt(52_000), preview.FlashLoanAmount)
	assert.Equal(t, big.NewInt(48_000), preview.RepaidAmount)
	assert.Equal(t, ApplySlippage(big.NewInt(50_000), 100), preview.MinAmount)
	assert.Equal(t, 0, preview.PriceUpdateCount)
}

func TestPreviewPartialNotRepayable(t *testing.T) {
	client := newFakeClient()
	client.simulateFn = func(calls []Call) ([]byte, error) {
		return packOptimal(t, false), nil
	}
	builder, registry := builderFixture(t, client, &fakeOracle{}, &fakePathFinder{}, PreviewBuilderOptions{})

	profile := testProfile("Chaos Labs", "ethereum", "WETH", 300)
	assert.NoError(t, registry.Build(context.Background(), []*CreditManagerProfile{profile}))

	_, err := builder.Preview(context.Background(), testAccount(9500, 310), profile, StrategyPartial)
	assert.ErrorIs(t, err, ErrNoViablePath)
}

func TestPreviewPartialWithoutLiquidator(t *testing.T) {
	client := newFakeClient()
	builder, _ := builderFixture(t, client, &fakeOracle{}, &fakePathFinder{}, PreviewBuilderOptions{})

	_, err := builder.Preview(context.Background(), testAccount(9500, 310), testProfile("Chaos Labs", "ethereum", "WETH", 300), StrategyPartial)
	assert.ErrorIs(t, err, ErrNoPartialLiquidator)
}

func TestPreviewDeleverageUsesBotBoundary(t *testing.T) {
	client := newFakeClient()
	oracle := &fakeOracle{calls: []Call{{Target: common.HexToAddress("0x4444000000000000000000000000000000004444"), CallData: []byte{0x01}}}}
	builder, _ := builderFixture(t, client, oracle, &fakePathFinder{}, PreviewBuilderOptions{BotMinHealthFactor: 9800})

	// Healthy relative to the bot boundary even though the operator
	// threshold would pass it.
	_, err := builder.Preview(context.Background(), testAccount(9900, 310), nil, StrategyDeleverage)
	assert.ErrorIs(t, err, ErrAccountNotLiquidatable)

	acc := testAccount(9500, 310)
	preview, err := builder.Preview(context.Background(), acc, nil, StrategyDeleverage)
	assert.NoError(t, err)
	assert.Len(t, preview.Calls, 1)
	assert.Equal(t, acc.CreditFacade, preview.Calls[0].Target)
	assert.Equal(t, 1, preview.PriceUpdateCount)
}

func TestPreviewBatch(t *testing.T) {
	client := newFakeClient()
	accA := testAccount(9500, 310)
	accB := testAccount(9400, 310)
	accB.Address = common.HexToAddress("0xbbbb00000000000000000000000000000000bbbb")
	accC := testAccount(9300, 310)
	accC.Address = common.HexToAddress("0xcccc00000000000000000000000000000000cccc")

	estimateID := partialLiquidatorABI.Methods["estimateBatchLiquidation"].ID
	client.simulateFn = func(calls []Call) ([]byte, error) {
		if len(calls) == 1 && bytes.Equal(calls[0].CallData[:4], estimateID) {
			return partialLiquidatorABI.Methods["estimateBatchLiquidation"].Outputs.Pack(
				[]common.Address{accA.Address, accC.Address},
				[][]byte{{0x01}, {0x02}},
			)
		}
		return nil, nil
	}

	builder, registry := builderFixture(t, client, &fakeOracle{}, &fakePathFinder{}, PreviewBuilderOptions{})
	profile := testProfile("Chaos Labs", "ethereum", "WETH", 300)
	assert.NoError(t, registry.Build(context.Background(), []*CreditManagerProfile{profile}))
	inst := registry.Resolve(profile.Address)

	preview, err := builder.PreviewBatch(context.Background(), inst, []*CreditAccount{accA, accB, accC})
	assert.NoError(t, err)
	assert.Len(t, preview.Accounts, 2)
	assert.Equal(t, accA.Address, preview.Accounts[0].Address)
	assert.Equal(t, accC.Address, preview.Accounts[1].Address)
	assert.Equal(t, inst.Address, preview.Calls[len(preview.Calls)-1].Target)
}
