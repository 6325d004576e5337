// Package chain implements the transport boundary of the liquidation engine
// on top of go-ethereum.
package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/solventlabs/liquidator"
)

// multicall3 aggregate((address,bytes)[]) is used to bind a multi-call plan
// into one eth_call or one transaction.
var multicallABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(`[
		{"type":"function","name":"aggregate","stateMutability":"payable","inputs":[
			{"name":"calls","type":"tuple[]","components":[
				{"name":"target","type":"address"},
				{"name":"callData","type":"bytes"}]}],"outputs":[
			{"name":"blockNumber","type":"uint256"},
			{"name":"returnData","type":"bytes[]"}]}
	]`))
	if err != nil {
		panic(err)
	}
	return parsed
}()

type Options struct {
	// Multicall is the Multicall3 deployment on the target network.
	Multicall common.Address
	// Deployer is a deterministic-deployment proxy: sending salt||initCode
	// to it performs a CREATE2 from a fixed sender.
	Deployer    common.Address
	MaxGasPrice *big.Int
	// PollInterval controls receipt polling.
	PollInterval time.Duration
}

// Client is an ethclient-backed implementation of liquidator.ChainClient.
// Transaction submission is serialized internally: one wallet, one nonce
// sequence.
type Client struct {
	eth  *ethclient.Client
	rpc  *rpc.Client
	opts Options

	key            *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	eip1559Support bool

	nonceMu sync.Mutex
	log     liquidator.Log
}

func New(ctx context.Context, log liquidator.Log, rawURL string, key *ecdsa.PrivateKey, opts Options) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "dial rpc")
	}
	eth := ethclient.NewClient(rpcClient)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch chain id")
	}

	var supportsEIP1559 bool
	if _, err := eth.SuggestGasTipCap(ctx); err == nil {
		supportsEIP1559 = true
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}

	return &Client{
		eth:            eth,
		rpc:            rpcClient,
		opts:           opts,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		chainID:        chainID,
		eip1559Support: supportsEIP1559,
		log:            log,
	}, nil
}

// From is the liquidator wallet address.
func (c *Client) From() common.Address {
	return c.from
}

// bind collapses a call plan into one (to, data) pair, wrapping through
// multicall when the plan has more than one element.
func (c *Client) bind(calls []liquidator.Call) (common.Address, []byte, error) {
	switch len(calls) {
	case 0:
		return common.Address{}, nil, errors.New("empty call plan")
	case 1:
		return calls[0].Target, calls[0].CallData, nil
	default:
		data, err := multicallABI.Pack("aggregate", calls)
		if err != nil {
			return common.Address{}, nil, errors.Wrap(err, "pack aggregate")
		}
		return c.opts.Multicall, data, nil
	}
}

func (c *Client) SimulateCall(ctx context.Context, from common.Address, calls []liquidator.Call) ([]byte, error) {
	to, data, err := c.bind(calls)
	if err != nil {
		return nil, err
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, asRevert(err)
	}
	return out, nil
}

// asRevert converts an eth_call error carrying revert data into a typed
// *liquidator.RevertError; transport failures pass through unchanged.
func asRevert(err error) error {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if raw, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(raw); decodeErr == nil {
				return &liquidator.RevertError{Data: data, Reason: dataErr.Error()}
			}
		}
		return &liquidator.RevertError{Reason: dataErr.Error()}
	}
	return err
}

func (c *Client) SubmitTransaction(ctx context.Context, calls []liquidator.Call) (common.Hash, error) {
	to, data, err := c.bind(calls)
	if err != nil {
		return common.Hash{}, err
	}
	return c.send(ctx, to, data)
}

func (c *Client) send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "fetch nonce")
	}
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, asRevert(err)
	}
	gas = gas * 12 / 10

	var tx *types.Transaction
	if c.eip1559Support {
		tip, err := c.eth.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, errors.Wrap(err, "suggest tip")
		}
		feeCap := c.opts.MaxGasPrice
		if feeCap == nil {
			head, err := c.eth.HeaderByNumber(ctx, nil)
			if err != nil {
				return common.Hash{}, errors.Wrap(err, "fetch head")
			}
			feeCap = new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		}
		if feeCap.Cmp(tip) < 0 {
			tip = feeCap
		}
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   c.chainID,
			Nonce:     nonce,
			GasFeeCap: feeCap,
			GasTipCap: tip,
			Gas:       gas,
			To:        &to,
			Data:      data,
		})
	} else {
		gasPrice, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, errors.Wrap(err, "suggest gas price")
		}
		if c.opts.MaxGasPrice != nil && c.opts.MaxGasPrice.Cmp(gasPrice) < 0 {
			gasPrice = c.opts.MaxGasPrice
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Data:     data,
		})
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "sign transaction")
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrap(err, "send transaction")
	}
	return signed.Hash(), nil
}

func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrap(err, "fetch receipt")
		}
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(liquidator.ErrReceiptTimeout, "tx %s after %s", txHash.Hex(), timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) MulticallRead(ctx context.Context, reads []liquidator.Call) ([][]byte, error) {
	out := make([][]byte, len(reads))
	for i, read := range reads {
		to := read.Target
		res, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: read.CallData}, nil)
		if err != nil {
			return nil, asRevert(err)
		}
		out[i] = res
	}
	return out, nil
}

// DeployContract performs a CREATE2 deployment through the deterministic
// deployment proxy: the payload is salt||initCode and the resulting address
// depends only on (proxy, salt, initCode).
func (c *Client) DeployContract(ctx context.Context, initCode []byte, salt common.Hash) (common.Address, error) {
	payload := make([]byte, 0, len(salt)+len(initCode))
	payload = append(payload, salt.Bytes()...)
	payload = append(payload, initCode...)

	txHash, err := c.send(ctx, c.opts.Deployer, payload)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "deploy")
	}
	receipt, err := c.WaitForReceipt(ctx, txHash, liquidator.DefaultReceiptTimeout)
	if err != nil {
		return common.Address{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Address{}, errors.Errorf("deployment tx %s reverted", txHash.Hex())
	}

	addr := crypto.CreateAddress2(c.opts.Deployer, salt, crypto.Keccak256(initCode))
	deployed, err := c.HasCode(ctx, addr)
	if err != nil {
		return common.Address{}, err
	}
	if !deployed {
		return common.Address{}, errors.Errorf("no code at predicted address %s after deployment", addr.Hex())
	}
	return addr, nil
}

func (c *Client) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, errors.Wrap(err, "fetch code")
	}
	return len(code) > 0, nil
}

// ImpersonatedSubmit sends a call as an arbitrary sender. Only anvil-style
// forks expose the impersonation methods; on a live node the RPC call fails
// and the error propagates.
func (c *Client) ImpersonatedSubmit(ctx context.Context, from common.Address, call liquidator.Call) (common.Hash, error) {
	if err := c.rpc.CallContext(ctx, nil, "anvil_impersonateAccount", from); err != nil {
		return common.Hash{}, errors.Wrap(err, "impersonate account")
	}
	defer func() {
		if err := c.rpc.CallContext(context.Background(), nil, "anvil_stopImpersonatingAccount", from); err != nil {
			c.log.Warn().Err(err).Str("account", from.Hex()).Msg("failed to stop impersonating")
		}
	}()

	var txHash common.Hash
	arg := map[string]interface{}{
		"from": from,
		"to":   call.Target,
		"data": hexutil.Bytes(call.CallData),
	}
	if err := c.rpc.CallContext(ctx, &txHash, "eth_sendTransaction", arg); err != nil {
		return common.Hash{}, errors.Wrap(err, "send impersonated transaction")
	}
	return txHash, nil
}

var _ liquidator.ChainClient = (*Client)(nil)
