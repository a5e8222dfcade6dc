package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/nmorales94/swapflow/internal/errors"
	"github.com/nmorales94/swapflow/internal/id"
	"github.com/nmorales94/swapflow/internal/model"
)

const erc20MinimalABI = `[
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const wrappedNativeABI = `[
	{"name":"deposit","type":"function","stateMutability":"payable","inputs":[],"outputs":[]},
	{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]}
]`

var (
	erc20ABI   = mustABI(erc20MinimalABI)
	wrappedABI = mustABI(wrappedNativeABI)

	// maxApproval is the conventional unlimited ERC-20 allowance.
	maxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse embedded abi: %v", err))
	}
	return parsed
}

// TxSigner signs raw EVM transactions for broadcast.
type TxSigner interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}

// EVMClient implements EVMBackend over JSON-RPC. Connections are dialed
// lazily per chain and reused for the life of the client.
type EVMClient struct {
	Signer TxSigner
	// RPCURL resolves the endpoint for a chain, honoring any user override.
	RPCURL func(chainID int64) (string, error)

	GasMultiplier float64
	WaitTimeout   time.Duration
	PollInterval  time.Duration

	mu      sync.Mutex
	clients map[int64]*ethclient.Client
}

func NewEVMClient(signer TxSigner, rpcURL func(chainID int64) (string, error)) *EVMClient {
	return &EVMClient{
		Signer:        signer,
		RPCURL:        rpcURL,
		GasMultiplier: 1.2,
		WaitTimeout:   2 * time.Minute,
		PollInterval:  2 * time.Second,
	}
}

func (c *EVMClient) client(ctx context.Context, chainID int64) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.clients[chainID]; ok {
		return cached, nil
	}
	url, err := c.RPCURL(chainID)
	if err != nil {
		return nil, err
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	if c.clients == nil {
		c.clients = make(map[int64]*ethclient.Client)
	}
	c.clients[chainID] = client
	return client, nil
}

func (c *EVMClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, client := range c.clients {
		client.Close()
	}
	c.clients = nil
}

func (c *EVMClient) Allowance(ctx context.Context, chainID int64, token, owner, spender string) (*big.Int, error) {
	client, err := c.client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	data, err := erc20ABI.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode allowance call", err)
	}
	target := common.HexToAddress(token)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read allowance", err)
	}
	values, err := erc20ABI.Unpack("allowance", out)
	if err != nil || len(values) == 0 {
		return nil, clierr.New(clierr.CodeUnavailable, "decode allowance result")
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "decode allowance result")
	}
	return amount, nil
}

// Send simulates, prices, signs, and broadcasts the transaction, returning
// its hash without waiting for inclusion.
func (c *EVMClient) Send(ctx context.Context, tx model.TxRequest) (string, error) {
	client, err := c.client(ctx, tx.ChainID)
	if err != nil {
		return "", err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if chainID.Int64() != tx.ChainID {
		return "", clierr.New(clierr.CodePlan, fmt.Sprintf("rpc chain mismatch: expected %d, got %d", tx.ChainID, chainID.Int64()))
	}

	target := common.HexToAddress(tx.To)
	data, err := decodeHex(tx.Data)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "decode calldata", err)
	}
	value := big.NewInt(0)
	if strings.TrimSpace(tx.Value) != "" {
		parsed, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok {
			return "", clierr.New(clierr.CodeUsage, "invalid transaction value")
		}
		value = parsed
	}
	msg := ethereum.CallMsg{From: c.Signer.Address(), To: &target, Value: value, Data: data}

	if _, err := client.CallContract(ctx, msg, nil); err != nil {
		return "", clierr.Wrap(clierr.CodeSim, "simulate transaction (eth_call)", err)
	}

	gasLimit, err := c.resolveGasLimit(ctx, client, msg, tx.GasLimit)
	if err != nil {
		return "", err
	}
	tipCap, feeCap, err := c.resolveFeeCaps(ctx, client, tx.GasPrice)
	if err != nil {
		return "", err
	}

	nonce, err := client.PendingNonceAt(ctx, c.Signer.Address())
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	raw := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      data,
	})
	signed, err := c.Signer.SignTx(chainID, raw)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	return signed.Hash().Hex(), nil
}

func (c *EVMClient) resolveGasLimit(ctx context.Context, client *ethclient.Client, msg ethereum.CallMsg, hint string) (uint64, error) {
	if strings.TrimSpace(hint) != "" {
		parsed, ok := new(big.Int).SetString(strings.TrimSpace(hint), 10)
		if ok && parsed.IsUint64() && parsed.Uint64() > 0 {
			return parsed.Uint64(), nil
		}
	}
	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeSim, "estimate gas", err)
	}
	multiplier := c.GasMultiplier
	if multiplier <= 1 {
		multiplier = 1.2
	}
	return uint64(float64(gasLimit) * multiplier), nil
}

func (c *EVMClient) resolveTipCap(ctx context.Context, client *ethclient.Client) *big.Int {
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	return tipCap
}

// resolveFeeCaps derives EIP-1559 caps from the chain head. When the head or
// its base fee is unreadable, the provider's legacy gas price hint becomes
// the flat cap.
func (c *EVMClient) resolveFeeCaps(ctx context.Context, client *ethclient.Client, hint string) (tipCap, feeCap *big.Int, err error) {
	tipCap = c.resolveTipCap(ctx, client)
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		if tip, cap, ok := feeCapsFromHint(hint); ok {
			return tip, cap, nil
		}
		return nil, nil, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		if tip, cap, ok := feeCapsFromHint(hint); ok {
			return tip, cap, nil
		}
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap = new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return tipCap, feeCap, nil
}

// feeCapsFromHint converts a legacy gas price hint into flat caps. The tip
// equals the cap; the node charges the lower effective price.
func feeCapsFromHint(hint string) (tipCap, feeCap *big.Int, ok bool) {
	price, parsed := new(big.Int).SetString(strings.TrimSpace(hint), 10)
	if !parsed || price.Sign() <= 0 {
		return nil, nil, false
	}
	return new(big.Int).Set(price), price, true
}

// WaitReceipt polls for the receipt until the transaction mines or the wait
// window closes. Transient RPC errors are retried until the timeout.
func (c *EVMClient) WaitReceipt(ctx context.Context, chainID int64, hash string) (bool, error) {
	client, err := c.client(ctx, chainID)
	if err != nil {
		return false, err
	}
	timeout := c.WaitTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	interval := c.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	txHash := common.HexToHash(hash)
	for {
		receipt, err := client.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			return receipt.Status != types.ReceiptStatusSuccessful, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() != nil {
			return false, clierr.Wrap(clierr.CodeTimeout, "timed out waiting for receipt", waitCtx.Err())
		}
		select {
		case <-waitCtx.Done():
			return false, clierr.Wrap(clierr.CodeTimeout, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// ApprovalTx builds an unlimited ERC-20 approve for the given spender.
func ApprovalTx(chainID int64, token, spender string) (model.TxRequest, error) {
	data, err := erc20ABI.Pack("approve", common.HexToAddress(spender), maxApproval)
	if err != nil {
		return model.TxRequest{}, clierr.Wrap(clierr.CodeInternal, "encode approve call", err)
	}
	return model.TxRequest{
		To:      token,
		Data:    "0x" + common.Bytes2Hex(data),
		Value:   "0",
		ChainID: chainID,
	}, nil
}

// WrapTx builds the deposit or withdraw call against the wrapped-native
// contract. Deposits carry the amount as transaction value.
func WrapTx(payload model.WrapPayload, amountBase string) (model.TxRequest, error) {
	amount, ok := new(big.Int).SetString(amountBase, 10)
	if !ok || amount.Sign() <= 0 {
		return model.TxRequest{}, clierr.New(clierr.CodeUsage, "invalid wrap amount")
	}
	switch payload.Direction {
	case model.PathWrap:
		data, err := wrappedABI.Pack("deposit")
		if err != nil {
			return model.TxRequest{}, clierr.Wrap(clierr.CodeInternal, "encode deposit call", err)
		}
		return model.TxRequest{
			To:      payload.WrappedContract,
			Data:    "0x" + common.Bytes2Hex(data),
			Value:   amount.String(),
			ChainID: payload.ChainID,
		}, nil
	case model.PathUnwrap:
		data, err := wrappedABI.Pack("withdraw", amount)
		if err != nil {
			return model.TxRequest{}, clierr.Wrap(clierr.CodeInternal, "encode withdraw call", err)
		}
		return model.TxRequest{
			To:      payload.WrappedContract,
			Data:    "0x" + common.Bytes2Hex(data),
			Value:   "0",
			ChainID: payload.ChainID,
		}, nil
	default:
		return model.TxRequest{}, clierr.New(clierr.CodeInternal, fmt.Sprintf("unknown wrap direction %q", payload.Direction))
	}
}

// evmChainID extracts the numeric chain id from an eip155 CAIP-2 identifier.
func evmChainID(caip2 string) (int64, error) {
	chain, err := id.ParseChain(caip2)
	if err != nil {
		return 0, err
	}
	if !chain.IsEVM() {
		return 0, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("%s is not an EVM chain", caip2))
	}
	return chain.EVMChainID, nil
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
