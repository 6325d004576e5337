package liquidator

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Minimal ABI surface of the protocol contracts the engine talks to. Only
// the methods the call plans use are declared.
var (
	creditFacadeABI = mustABI(`[
		{"type":"function","name":"liquidateCreditAccount","stateMutability":"nonpayable","inputs":[
			{"name":"creditAccount","type":"address"},
			{"name":"to","type":"address"},
			{"name":"calls","type":"tuple[]","components":[
				{"name":"target","type":"address"},
				{"name":"callData","type":"bytes"}]}],"outputs":[]},
		{"type":"function","name":"botMulticall","stateMutability":"nonpayable","inputs":[
			{"name":"creditAccount","type":"address"},
			{"name":"calls","type":"tuple[]","components":[
				{"name":"target","type":"address"},
				{"name":"callData","type":"bytes"}]}],"outputs":[]},
		{"type":"function","name":"multicall","stateMutability":"nonpayable","inputs":[
			{"name":"creditAccount","type":"address"},
			{"name":"calls","type":"tuple[]","components":[
				{"name":"target","type":"address"},
				{"name":"callData","type":"bytes"}]}],"outputs":[]},
		{"type":"function","name":"setBotPermissions","stateMutability":"nonpayable","inputs":[
			{"name":"creditAccount","type":"address"},
			{"name":"bot","type":"address"},
			{"name":"permissions","type":"uint192"}],"outputs":[]}
	]`)

	partialLiquidatorABI = mustABI(`[
		{"type":"function","name":"partialLiquidateAndConvert","stateMutability":"nonpayable","inputs":[
			{"name":"creditManager","type":"address"},
			{"name":"creditAccount","type":"address"},
			{"name":"assetOut","type":"address"},
			{"name":"amountOut","type":"uint256"},
			{"name":"flashLoanAmount","type":"uint256"},
			{"name":"convertToUnderlying","type":"bool"},
			{"name":"priceUpdates","type":"tuple[]","components":[
				{"name":"target","type":"address"},
				{"name":"callData","type":"bytes"}]}],"outputs":[]},
		{"type":"function","name":"getOptimalLiquidation","stateMutability":"view","inputs":[
			{"name":"creditAccount","type":"address"},
			{"name":"hfOptimal","type":"uint256"}],"outputs":[
			{"name":"tokenOut","type":"address"},
			{"name":"optimalAmount","type":"uint256"},
			{"name":"repaidAmount","type":"uint256"},
			{"name":"flashLoanAmount","type":"uint256"},
			{"name":"isOptimalRepayable","type":"bool"}]},
		{"type":"function","name":"estimateBatchLiquidation","stateMutability":"view","inputs":[
			{"name":"accounts","type":"address[]"}],"outputs":[
			{"name":"liquidatable","type":"address[]"},
			{"name":"callData","type":"bytes[]"}]},
		{"type":"function","name":"liquidateBatch","stateMutability":"nonpayable","inputs":[
			{"name":"facades","type":"address[]"},
			{"name":"accounts","type":"address[]"},
			{"name":"callData","type":"bytes[]"}],"outputs":[]},
		{"type":"function","name":"router","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"botList","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"isCreditManagerAdded","stateMutability":"view","inputs":[{"name":"creditManager","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"setRouter","stateMutability":"nonpayable","inputs":[{"name":"newRouter","type":"address"}],"outputs":[]},
		{"type":"function","name":"setBotList","stateMutability":"nonpayable","inputs":[{"name":"newBotList","type":"address"}],"outputs":[]},
		{"type":"function","name":"addCreditManager","stateMutability":"nonpayable","inputs":[{"name":"creditManager","type":"address"}],"outputs":[]}
	]`)
)

// LiquidateEventTopic identifies successful per-account liquidations in
// receipt logs; the liquidated account is the first indexed argument.
var LiquidateEventTopic = crypto.Keccak256Hash(
	[]byte("LiquidateCreditAccount(address,address,address,uint256)"),
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

func packCall(target common.Address, parsed abi.ABI, method string, args ...interface{}) (Call, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return Call{}, errors.Wrapf(err, "pack %s", method)
	}
	return Call{Target: target, CallData: data}, nil
}

// EncodeLiquidateCall builds the full-liquidation facade call wrapping the
// path finder's inner calls.
func EncodeLiquidateCall(facade, account, to common.Address, calls []Call) (Call, error) {
	return packCall(facade, creditFacadeABI, "liquidateCreditAccount", account, to, calls)
}

// EncodeBotMulticall routes the deleverage multicall through the facade on
// behalf of a bot with pre-granted permissions.
func EncodeBotMulticall(facade, account common.Address, calls []Call) (Call, error) {
	return packCall(facade, creditFacadeABI, "botMulticall", account, calls)
}

// EncodeSetBotPermissions builds the pre-flight permission grant, itself
// wrapped in the facade multicall entry point.
func EncodeSetBotPermissions(facade, account, bot common.Address, permissions *big.Int) (Call, error) {
	inner, err := packCall(facade, creditFacadeABI, "setBotPermissions", account, bot, permissions)
	if err != nil {
		return Call{}, err
	}
	return packCall(facade, creditFacadeABI, "multicall", account, []Call{inner})
}

func EncodePartialLiquidate(liquidator, creditManager, account, assetOut common.Address, amountOut, flashLoanAmount *big.Int, priceUpdates []Call) (Call, error) {
	return packCall(liquidator, partialLiquidatorABI, "partialLiquidateAndConvert",
		creditManager, account, assetOut, amountOut, flashLoanAmount, true, priceUpdates)
}

func EncodeGetOptimalLiquidation(liquidator, account common.Address, hfOptimal *big.Int) (Call, error) {
	return packCall(liquidator, partialLiquidatorABI, "getOptimalLiquidation", account, hfOptimal)
}

// OptimalLiquidation is the decoded answer of getOptimalLiquidation.
type OptimalLiquidation struct {
	TokenOut           common.Address
	OptimalAmount      *big.Int
	RepaidAmount       *big.Int
	FlashLoanAmount    *big.Int
	IsOptimalRepayable bool
}

func DecodeOptimalLiquidation(data []byte) (*OptimalLiquidation, error) {
	out := new(OptimalLiquidation)
	if err := partialLiquidatorABI.UnpackIntoInterface(out, "getOptimalLiquidation", data); err != nil {
		return nil, errors.Wrap(err, "decode getOptimalLiquidation")
	}
	return out, nil
}

func EncodeEstimateBatch(liquidator common.Address, accounts []common.Address) (Call, error) {
	return packCall(liquidator, partialLiquidatorABI, "estimateBatchLiquidation", accounts)
}

// BatchEstimate is the decoded answer of estimateBatchLiquidation.
type BatchEstimate struct {
	Liquidatable []common.Address
	CallData     [][]byte
}

func DecodeBatchEstimate(data []byte) (*BatchEstimate, error) {
	out := new(BatchEstimate)
	if err := partialLiquidatorABI.UnpackIntoInterface(out, "estimateBatchLiquidation", data); err != nil {
		return nil, errors.Wrap(err, "decode estimateBatchLiquidation")
	}
	return out, nil
}

func EncodeLiquidateBatch(liquidator common.Address, facades, accounts []common.Address, callData [][]byte) (Call, error) {
	return packCall(liquidator, partialLiquidatorABI, "liquidateBatch", facades, accounts, callData)
}

func EncodeRouterRead(liquidator common.Address) (Call, error) {
	return packCall(liquidator, partialLiquidatorABI, "router")
}

func EncodeBotListRead(liquidator common.Address) (Call, error) {
	return packCall(liquidator, partialLiquidatorABI, "botList")
}

func EncodeSetRouter(liquidator, router common.Address) (Call, error) {
	return packCall(liquidator, partialLiquidatorABI, "setRouter", router)
}

func EncodeSetBotList(liquidator, botList common.Address) (Call, error) {
	return packCall(liquidator, partialLiquidatorABI, "setBotList", botList)
}

func EncodeAddCreditManager(liquidator, creditManager common.Address) (Call, error) {
	return packCall(liquidator, partialLiquidatorABI, "addCreditManager", creditManager)
}

func EncodeIsCreditManagerAdded(liquidator, creditManager common.Address) (Call, error) {
	return packCall(liquidator, partialLiquidatorABI, "isCreditManagerAdded", creditManager)
}

// DecodeAddressResult unpacks a single-address read result.
func DecodeAddressResult(data []byte) (common.Address, error) {
	if len(data) < 32 {
		return common.Address{}, errors.Errorf("short address result: %d bytes", len(data))
	}
	return common.BytesToAddress(data[12:32]), nil
}

// DecodeBoolResult unpacks a single-bool read result.
func DecodeBoolResult(data []byte) (bool, error) {
	if len(data) < 32 {
		return false, errors.Errorf("short bool result: %d bytes", len(data))
	}
	return data[31] != 0, nil
}
