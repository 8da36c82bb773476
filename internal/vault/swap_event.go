package vault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// AgentSwapExecuted(address indexed agent, address indexed user, bytes32
// ensNode, bytes32 routeId, address pool, bool zeroForOne, uint256 amountIn,
// uint256 amountOut)
var swapExecutedTopic = crypto.Keccak256Hash([]byte(
	"AgentSwapExecuted(address,address,bytes32,bytes32,address,bool,uint256,uint256)",
))

// SwapExecutedEvent is the decoded payload of the vault's swap event.
type SwapExecutedEvent struct {
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint

	Agent common.Address
	User  common.Address

	ENSNode    [32]byte
	RouteID    [32]byte
	Pool       common.Address
	ZeroForOne bool
	AmountIn   *big.Int
	AmountOut  *big.Int
}

// DecodeSwapExecutedLog decodes a raw AgentSwapExecuted log.
func DecodeSwapExecutedLog(vLog types.Log) (*SwapExecutedEvent, error) {
	// topics:
	// 0: event sig
	// 1: agent (address indexed)
	// 2: user (address indexed)
	if len(vLog.Topics) < 3 {
		return nil, fmt.Errorf("unexpected topics len=%d", len(vLog.Topics))
	}
	if vLog.Topics[0] != swapExecutedTopic {
		return nil, fmt.Errorf("not an AgentSwapExecuted log")
	}
	if len(vLog.Data) < 32*6 {
		return nil, fmt.Errorf("unexpected data len=%d", len(vLog.Data))
	}

	readU256 := func(w int) *big.Int {
		start := w * 32
		return new(big.Int).SetBytes(vLog.Data[start : start+32])
	}

	ev := &SwapExecutedEvent{
		TxHash:      vLog.TxHash,
		BlockNumber: vLog.BlockNumber,
		LogIndex:    vLog.Index,

		Agent: common.BytesToAddress(vLog.Topics[1].Bytes()),
		User:  common.BytesToAddress(vLog.Topics[2].Bytes()),

		Pool:       common.BytesToAddress(vLog.Data[2*32 : 3*32]),
		ZeroForOne: readU256(3).Sign() != 0,
		AmountIn:   readU256(4),
		AmountOut:  readU256(5),
	}
	copy(ev.ENSNode[:], vLog.Data[0:32])
	copy(ev.RouteID[:], vLog.Data[32:64])
	return ev, nil
}

// FindSwapExecuted scans a receipt for the vault's swap event. A nil return
// with nil error means the event was not present (soft degradation: the trade
// can still be a success without parsed amounts).
func FindSwapExecuted(receipt *types.Receipt, vault common.Address) (*SwapExecutedEvent, error) {
	if receipt == nil {
		return nil, fmt.Errorf("receipt required")
	}
	for _, lg := range receipt.Logs {
		if lg == nil || len(lg.Topics) == 0 {
			continue
		}
		if lg.Address != vault || lg.Topics[0] != swapExecutedTopic {
			continue
		}
		return DecodeSwapExecutedLog(*lg)
	}
	return nil, nil
}
