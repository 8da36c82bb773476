package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Caller is the narrow read surface of the chain client the binding needs.
// *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var (
	balancesSelector         = crypto.Keccak256([]byte("balances(address)"))[:4]
	agentBalancesSelector    = crypto.Keccak256([]byte("agentBalances(address,address)"))[:4]
	agentSpentSelector       = crypto.Keccak256([]byte("agentSpent(address,address)"))[:4]
	agentConfigsSelector     = crypto.Keccak256([]byte("agentConfigs(address)"))[:4]
	allowedRoutesSelector    = crypto.Keccak256([]byte("getAllowedRoutes(address)"))[:4]
	defaultRouteIDSelector   = crypto.Keccak256([]byte("defaultRouteId()"))[:4]
	routesSelector           = crypto.Keccak256([]byte("routes(bytes32)"))[:4]
	erc20BalanceOfSelector   = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	executeSwapSelector      = crypto.Keccak256([]byte("executeSwap(address,bytes32,bool,uint256,uint256)"))[:4]
	requestExecutionSelector = crypto.Keccak256([]byte("requestExecution(uint256,bool)"))[:4]
)

// AgentConfig mirrors the vault's per-agent configuration struct.
// AllowedRoutes comes from a dedicated getter because the Solidity public
// getter omits dynamic arrays.
type AgentConfig struct {
	Enabled             bool
	ENSNode             [32]byte
	MaxNotionalPerTrade *big.Int
	AllowedRoutes       [][32]byte
}

// RouteConfig mirrors the vault's route struct.
type RouteConfig struct {
	Token0  common.Address
	Token1  common.Address
	Fee     uint32
	Pool    common.Address
	Enabled bool
}

// Binding wraps the vault contract with typed read accessors and calldata
// packers. It performs no retries; callers own retry policy.
type Binding struct {
	caller Caller
	vault  common.Address
}

func NewBinding(caller Caller, vault common.Address) *Binding {
	return &Binding{caller: caller, vault: vault}
}

func (b *Binding) Address() common.Address { return b.vault }

func (b *Binding) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := b.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty call result")
	}
	return out, nil
}

func packAddress(selector []byte, addrs ...common.Address) []byte {
	data := make([]byte, 0, 4+32*len(addrs))
	data = append(data, selector...)
	for _, a := range addrs {
		data = append(data, common.LeftPadBytes(a.Bytes(), 32)...)
	}
	return data
}

func word(out []byte, i int) ([]byte, error) {
	start := i * 32
	end := start + 32
	if end > len(out) {
		return nil, fmt.Errorf("result too short: want word %d, have %d bytes", i, len(out))
	}
	return out[start:end], nil
}

func wordUint256(out []byte, i int) (*big.Int, error) {
	w, err := word(out, i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w), nil
}

// UserBalance reads balances(user): the user's main vault balance in wei.
func (b *Binding) UserBalance(ctx context.Context, user common.Address) (*big.Int, error) {
	out, err := b.call(ctx, b.vault, packAddress(balancesSelector, user))
	if err != nil {
		return nil, fmt.Errorf("balances(%s): %w", user.Hex(), err)
	}
	return wordUint256(out, 0)
}

// AgentSubBalance reads agentBalances(user, agent): the agent's sub-allocation.
func (b *Binding) AgentSubBalance(ctx context.Context, user, agent common.Address) (*big.Int, error) {
	out, err := b.call(ctx, b.vault, packAddress(agentBalancesSelector, user, agent))
	if err != nil {
		return nil, fmt.Errorf("agentBalances(%s,%s): %w", user.Hex(), agent.Hex(), err)
	}
	return wordUint256(out, 0)
}

// AgentSpent reads agentSpent(user, agent): cumulative amount spent by the agent.
func (b *Binding) AgentSpent(ctx context.Context, user, agent common.Address) (*big.Int, error) {
	out, err := b.call(ctx, b.vault, packAddress(agentSpentSelector, user, agent))
	if err != nil {
		return nil, fmt.Errorf("agentSpent(%s,%s): %w", user.Hex(), agent.Hex(), err)
	}
	return wordUint256(out, 0)
}

// AgentConfig reads agentConfigs(agent). The getter returns
// (bool enabled, bytes32 ensNode, uint256 maxNotionalPerTrade).
func (b *Binding) AgentConfig(ctx context.Context, agent common.Address) (AgentConfig, error) {
	out, err := b.call(ctx, b.vault, packAddress(agentConfigsSelector, agent))
	if err != nil {
		return AgentConfig{}, fmt.Errorf("agentConfigs(%s): %w", agent.Hex(), err)
	}
	if len(out) < 3*32 {
		return AgentConfig{}, fmt.Errorf("agentConfigs(%s): short result (%d bytes)", agent.Hex(), len(out))
	}

	var cfg AgentConfig
	enabled, _ := wordUint256(out, 0)
	cfg.Enabled = enabled.Sign() != 0
	ens, _ := word(out, 1)
	copy(cfg.ENSNode[:], ens)
	cfg.MaxNotionalPerTrade, _ = wordUint256(out, 2)
	return cfg, nil
}

// AllowedRoutes reads getAllowedRoutes(agent), a dynamic bytes32[].
func (b *Binding) AllowedRoutes(ctx context.Context, agent common.Address) ([][32]byte, error) {
	out, err := b.call(ctx, b.vault, packAddress(allowedRoutesSelector, agent))
	if err != nil {
		return nil, fmt.Errorf("getAllowedRoutes(%s): %w", agent.Hex(), err)
	}
	// ABI: offset | length | elements...
	offsetBig, err := wordUint256(out, 0)
	if err != nil {
		return nil, err
	}
	if !offsetBig.IsInt64() {
		return nil, fmt.Errorf("getAllowedRoutes: bad offset")
	}
	offset := int(offsetBig.Int64())
	if offset < 0 || offset+32 > len(out) {
		return nil, fmt.Errorf("getAllowedRoutes: offset %d out of range", offset)
	}
	n := int(new(big.Int).SetBytes(out[offset : offset+32]).Int64())
	if n < 0 || offset+32+n*32 > len(out) {
		return nil, fmt.Errorf("getAllowedRoutes: bad length %d", n)
	}

	routes := make([][32]byte, 0, n)
	for i := 0; i < n; i++ {
		var id [32]byte
		start := offset + 32 + i*32
		copy(id[:], out[start:start+32])
		routes = append(routes, id)
	}
	return routes, nil
}

// DefaultRouteID reads defaultRouteId().
func (b *Binding) DefaultRouteID(ctx context.Context) ([32]byte, error) {
	var id [32]byte
	out, err := b.call(ctx, b.vault, append([]byte(nil), defaultRouteIDSelector...))
	if err != nil {
		return id, fmt.Errorf("defaultRouteId(): %w", err)
	}
	w, err := word(out, 0)
	if err != nil {
		return id, err
	}
	copy(id[:], w)
	return id, nil
}

// Route reads routes(id): (address token0, address token1, uint24 fee,
// address pool, bool enabled).
func (b *Binding) Route(ctx context.Context, id [32]byte) (RouteConfig, error) {
	data := make([]byte, 0, 4+32)
	data = append(data, routesSelector...)
	data = append(data, id[:]...)

	out, err := b.call(ctx, b.vault, data)
	if err != nil {
		return RouteConfig{}, fmt.Errorf("routes(%x): %w", id, err)
	}
	if len(out) < 5*32 {
		return RouteConfig{}, fmt.Errorf("routes(%x): short result (%d bytes)", id, len(out))
	}

	var rc RouteConfig
	w0, _ := word(out, 0)
	rc.Token0 = common.BytesToAddress(w0)
	w1, _ := word(out, 1)
	rc.Token1 = common.BytesToAddress(w1)
	fee, _ := wordUint256(out, 2)
	rc.Fee = uint32(fee.Uint64())
	w3, _ := word(out, 3)
	rc.Pool = common.BytesToAddress(w3)
	enabled, _ := wordUint256(out, 4)
	rc.Enabled = enabled.Sign() != 0
	return rc, nil
}

// ERC20BalanceOf reads token.balanceOf(owner) for the vault's held-balance check.
func (b *Binding) ERC20BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := b.call(ctx, token, packAddress(erc20BalanceOfSelector, owner))
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s): %w", owner.Hex(), err)
	}
	return wordUint256(out, 0)
}

// ExecuteSwapCalldata packs executeSwap(user, routeId, zeroForOne, amountIn, minAmountOut).
func ExecuteSwapCalldata(user common.Address, routeID [32]byte, zeroForOne bool, amountIn, minAmountOut *big.Int) []byte {
	data := make([]byte, 0, 4+5*32)
	data = append(data, executeSwapSelector...)
	data = append(data, common.LeftPadBytes(user.Bytes(), 32)...)
	data = append(data, routeID[:]...)
	data = append(data, boolWord(zeroForOne)...)
	data = append(data, common.LeftPadBytes(amountIn.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(minAmountOut.Bytes(), 32)...)
	return data
}

// RequestExecutionCalldata packs requestExecution(amountIn, zeroForOne), the
// lower-privilege approval-request entry point.
func RequestExecutionCalldata(amountIn *big.Int, zeroForOne bool) []byte {
	data := make([]byte, 0, 4+2*32)
	data = append(data, requestExecutionSelector...)
	data = append(data, common.LeftPadBytes(amountIn.Bytes(), 32)...)
	data = append(data, boolWord(zeroForOne)...)
	return data
}

func boolWord(v bool) []byte {
	w := make([]byte, 32)
	if v {
		w[31] = 1
	}
	return w
}
