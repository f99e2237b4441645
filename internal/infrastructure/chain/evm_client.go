package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
	"github.com/detradefund/stack-mon-prime/internal/pkg/retry"
)

// Minimal ABIs for the read-only views the adapters rely on.
const (
	erc20ABIJSON = `[
		{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`
	vaultABIJSON = `[
		{"inputs":[{"name":"shares","type":"uint256"}],"name":"convertToAssets","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`
	poolABIJSON = `[
		{"inputs":[{"name":"i","type":"uint256"}],"name":"coins","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"name":"i","type":"uint256"}],"name":"balances","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`
	rewardABIJSON = `[
		{"inputs":[{"name":"account","type":"address"}],"name":"earned","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`
	multiRewardABIJSON = `[
		{"inputs":[{"name":"account","type":"address"},{"name":"rewardToken","type":"address"}],"name":"earned","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`
)

var (
	parseABIsOnce  sync.Once
	parsedERC20    abi.ABI
	parsedVault    abi.ABI
	parsedPool     abi.ABI
	parsedReward   abi.ABI
	parsedMultiRwd abi.ABI
	balanceOfID    []byte
)

func initParsedABIs() {
	parseABIsOnce.Do(func() {
		mustParse := func(raw string) abi.ABI {
			parsed, err := abi.JSON(strings.NewReader(raw))
			if err != nil {
				panic(fmt.Sprintf("failed to parse ABI: %v", err))
			}
			return parsed
		}
		parsedERC20 = mustParse(erc20ABIJSON)
		parsedVault = mustParse(vaultABIJSON)
		parsedPool = mustParse(poolABIJSON)
		parsedReward = mustParse(rewardABIJSON)
		parsedMultiRwd = mustParse(multiRewardABIJSON)

		balanceOfMethod, ok := parsedERC20.Methods["balanceOf"]
		if !ok {
			panic("balanceOf method not found in parsed ERC20 ABI")
		}
		balanceOfID = balanceOfMethod.ID
	})
}

// EVMClient implements port.ChainClient for EVM-compatible networks.
// All calls are rate limited and retried a bounded number of times
// with a fixed delay.
type EVMClient struct {
	ethClient   *ethclient.Client
	network     entity.Network
	callTimeout time.Duration
	retryCfg    retry.Config
	limiter     *rate.Limiter
}

// NewEVMClient dials the network's RPC endpoint and returns a client.
func NewEVMClient(network entity.Network, rpcCfg config.RpcClientConfig) (*EVMClient, error) {
	initParsedABIs()

	dialCtx, cancel := context.WithTimeout(context.Background(), time.Duration(rpcCfg.DialTimeoutMs)*time.Millisecond)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, network.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC for network %s: %w", network.Name, err)
	}

	return &EVMClient{
		ethClient:   client,
		network:     network,
		callTimeout: time.Duration(rpcCfg.CallTimeoutMs) * time.Millisecond,
		retryCfg: retry.Config{
			MaxAttempts: rpcCfg.MaxRetries,
			Delay:       time.Duration(rpcCfg.RetryDelayMs) * time.Millisecond,
		},
		limiter: rate.NewLimiter(rate.Limit(rpcCfg.RateLimit), rpcCfg.BurstLimit),
	}, nil
}

// Definition returns the network definition for this client.
func (c *EVMClient) Definition() entity.Network {
	return c.network
}

func (c *EVMClient) call(ctx context.Context, parsed abi.ABI, contract, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	to := common.HexToAddress(contract)

	var raw []byte
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		if err := c.limiter.Wait(callCtx); err != nil {
			return err
		}
		res, callErr := c.ethClient.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
		if callErr != nil {
			return callErr
		}
		raw = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s on %s (%s): %w", method, contract, c.network.Name, err)
	}

	unpacked, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result from %s: %w", method, contract, err)
	}
	return unpacked, nil
}

func (c *EVMClient) callUint(ctx context.Context, parsed abi.ABI, contract, method string, args ...interface{}) (*big.Int, error) {
	unpacked, err := c.call(ctx, parsed, contract, method, args...)
	if err != nil {
		return nil, err
	}
	if len(unpacked) == 0 {
		return nil, fmt.Errorf("%s on %s returned no data", method, contract)
	}
	v, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s on %s: unexpected result type %T", method, contract, unpacked[0])
	}
	return v, nil
}

// TokenBalance reads balanceOf(owner) on an ERC-20 contract.
func (c *EVMClient) TokenBalance(ctx context.Context, tokenAddress, owner string) (*big.Int, error) {
	return c.callUint(ctx, parsedERC20, tokenAddress, "balanceOf", common.HexToAddress(owner))
}

// TotalSupply reads totalSupply() on an ERC-20 contract.
func (c *EVMClient) TotalSupply(ctx context.Context, tokenAddress string) (*big.Int, error) {
	return c.callUint(ctx, parsedERC20, tokenAddress, "totalSupply")
}

// ConvertToAssets reads the ERC-4626 share-to-assets view.
func (c *EVMClient) ConvertToAssets(ctx context.Context, vaultAddress string, shares *big.Int) (*big.Int, error) {
	return c.callUint(ctx, parsedVault, vaultAddress, "convertToAssets", shares)
}

// PoolCoin reads coins(i) on a Curve-style pool.
func (c *EVMClient) PoolCoin(ctx context.Context, poolAddress string, i int64) (string, error) {
	unpacked, err := c.call(ctx, parsedPool, poolAddress, "coins", big.NewInt(i))
	if err != nil {
		return "", err
	}
	addr, ok := unpacked[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("coins(%d) on %s: unexpected result type %T", i, poolAddress, unpacked[0])
	}
	return addr.Hex(), nil
}

// PoolBalance reads balances(i) on a Curve-style pool.
func (c *EVMClient) PoolBalance(ctx context.Context, poolAddress string, i int64) (*big.Int, error) {
	return c.callUint(ctx, parsedPool, poolAddress, "balances", big.NewInt(i))
}

// Earned reads earned(account) on a staking rewards contract.
func (c *EVMClient) Earned(ctx context.Context, rewardsAddress, account string) (*big.Int, error) {
	return c.callUint(ctx, parsedReward, rewardsAddress, "earned", common.HexToAddress(account))
}

// EarnedToken reads earned(account, rewardToken) on multi-asset
// reward pools.
func (c *EVMClient) EarnedToken(ctx context.Context, rewardsAddress, account, rewardToken string) (*big.Int, error) {
	return c.callUint(ctx, parsedMultiRwd, rewardsAddress, "earned",
		common.HexToAddress(account), common.HexToAddress(rewardToken))
}

// BatchBalances fetches native and token balances in one JSON-RPC
// batch. Per-item failures are reported on the item, not the batch.
func (c *EVMClient) BatchBalances(ctx context.Context, requests []port.BalanceRequestItem) ([]port.BalanceResultItem, error) {
	if len(requests) == 0 {
		return []port.BalanceResultItem{}, nil
	}

	batchElems := make([]rpc.BatchElem, len(requests))
	results := make([]port.BalanceResultItem, len(requests))

	for i, reqItem := range requests {
		results[i] = port.BalanceResultItem{
			RequestID:     reqItem.ID,
			WalletAddress: reqItem.WalletAddress,
			TokenAddress:  reqItem.TokenAddress,
			TokenSymbol:   reqItem.TokenSymbol,
			Decimals:      reqItem.TokenDecimals,
			IsNative:      reqItem.Type == port.NativeBalanceRequest,
		}

		switch reqItem.Type {
		case port.NativeBalanceRequest:
			batchElems[i] = rpc.BatchElem{
				Method: "eth_getBalance",
				Args:   []interface{}{common.HexToAddress(reqItem.WalletAddress), "latest"},
				Result: new(*hexutil.Big),
			}
		case port.TokenBalanceRequest:
			paddedOwner := common.LeftPadBytes(common.HexToAddress(reqItem.WalletAddress).Bytes(), 32)
			callData := append(balanceOfID, paddedOwner...)
			callArgs := map[string]interface{}{
				"to":   common.HexToAddress(reqItem.TokenAddress),
				"data": hexutil.Bytes(callData),
			}
			batchElems[i] = rpc.BatchElem{
				Method: "eth_call",
				Args:   []interface{}{callArgs, "latest"},
				Result: new(hexutil.Bytes),
			}
		default:
			results[i].Error = fmt.Errorf("unknown balance request type: %v for %s", reqItem.Type, reqItem.TokenSymbol)
		}
	}

	rawRPCClient := c.ethClient.Client()
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		if err := c.limiter.Wait(callCtx); err != nil {
			return err
		}
		return rawRPCClient.BatchCallContext(callCtx, batchElems)
	})
	if err != nil {
		return results, fmt.Errorf("RPC batch call failed on %s: %w", c.network.Name, err)
	}

	for i, elem := range batchElems {
		if results[i].Error != nil {
			continue
		}
		if elem.Error != nil {
			results[i].Error = fmt.Errorf("failed to fetch %s for wallet %s: %w",
				requests[i].TokenSymbol, requests[i].WalletAddress, elem.Error)
			continue
		}

		switch requests[i].Type {
		case port.NativeBalanceRequest:
			if result, ok := elem.Result.(**hexutil.Big); ok && result != nil && *result != nil {
				results[i].Balance = (*big.Int)(*result)
			} else {
				results[i].Error = fmt.Errorf("failed to decode native balance for %s", requests[i].TokenSymbol)
			}
		case port.TokenBalanceRequest:
			raw, ok := elem.Result.(*hexutil.Bytes)
			if !ok || raw == nil {
				results[i].Error = fmt.Errorf("failed to decode token balance for %s", requests[i].TokenSymbol)
				continue
			}
			if len(*raw) == 0 {
				results[i].Balance = big.NewInt(0)
				continue
			}
			unpacked, unpackErr := parsedERC20.Unpack("balanceOf", *raw)
			if unpackErr != nil {
				results[i].Error = fmt.Errorf("failed to unpack balanceOf result for %s: %w", requests[i].TokenSymbol, unpackErr)
				continue
			}
			if len(unpacked) == 0 {
				results[i].Error = fmt.Errorf("balanceOf unpack returned no data for %s", requests[i].TokenSymbol)
				continue
			}
			balance, ok := unpacked[0].(*big.Int)
			if !ok {
				results[i].Error = fmt.Errorf("unexpected balanceOf result type %T for %s", unpacked[0], requests[i].TokenSymbol)
				continue
			}
			results[i].Balance = balance
		}
	}
	return results, nil
}
