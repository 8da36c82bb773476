package trader

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/adjust481/safe-agent-v4/internal/strategy"
	"github.com/adjust481/safe-agent-v4/internal/vault"
)

// Backend is the transaction surface of the chain client.
// *ethclient.Client satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ErrSignerMismatch is a startup configuration error: the signing key does
// not belong to the configured agent address.
var ErrSignerMismatch = errors.New("signer address does not match agent address")

const (
	swapGasLimit    = 500_000
	requestGasLimit = 200_000

	defaultConfirmTimeout = 90 * time.Second
	receiptPollInterval   = 500 * time.Millisecond

	// Synthetic dry-run fill: 0.5% slippage on the input amount.
	dryRunSlippageBps = 50
)

// Config tunes the execution controller.
type Config struct {
	ChainID *big.Int
	Vault   common.Address
	User    common.Address

	ConfirmTimeout time.Duration

	// RequestApproval switches the controller from direct executeSwap calls
	// to the lower-privilege requestExecution path, after which the loop must
	// stop and await manual approval.
	RequestApproval bool
}

// Result classifies one execution attempt. Executed is false for HOLD no-ops
// and approval requests; Requested marks a submitted approval request, which
// is terminal for the current run.
type Result struct {
	Executed  bool
	Requested bool
	Success   bool

	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64

	// Event is the parsed swap event; nil on soft degradation (successful
	// trade whose receipt carried no decodable event) and in dry-run.
	Event *vault.SwapExecutedEvent

	// AmountIn/AmountOut are the effective amounts for PnL bookkeeping:
	// parsed event amounts when available, synthetic amounts in dry-run.
	AmountIn  *big.Int
	AmountOut *big.Int

	Err string
}

// Failed covers every unsuccessful attempt that reached the chain boundary:
// reverted swaps, reverted approval requests, and transport errors.
func (r Result) Failed() bool { return r.Err != "" }

// Trader signs and submits vault transactions for a single agent identity.
type Trader struct {
	backend Backend
	key     *ecdsa.PrivateKey
	agent   common.Address
	cfg     Config
	signer  types.Signer
}

// New builds a Trader and fails fast when the key does not belong to the
// configured agent.
func New(backend Backend, key *ecdsa.PrivateKey, agent common.Address, cfg Config) (*Trader, error) {
	signerAddr := crypto.PubkeyToAddress(key.PublicKey)
	if signerAddr != agent {
		return nil, fmt.Errorf("%w: key=%s agent=%s", ErrSignerMismatch, signerAddr.Hex(), agent.Hex())
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id required")
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	return &Trader{
		backend: backend,
		key:     key,
		agent:   agent,
		cfg:     cfg,
		signer:  types.LatestSignerForChainID(cfg.ChainID),
	}, nil
}

// Execute carries out an approved intent. HOLD returns an immediate no-op.
// Dry-run simulates a fill without touching the chain. Live mode submits,
// waits for confirmation with a bounded timeout, and classifies the receipt;
// a revert or transport failure becomes a failed Result, never an error that
// escapes this boundary.
func (t *Trader) Execute(ctx context.Context, intent strategy.Intent, snap *vault.Snapshot, dryRun bool) Result {
	if !intent.IsSwap() {
		return Result{}
	}

	if dryRun {
		return t.simulate(intent)
	}
	if t.cfg.RequestApproval {
		return t.requestExecution(ctx, intent)
	}
	return t.executeSwap(ctx, intent, snap)
}

func (t *Trader) simulate(intent strategy.Intent) Result {
	amountIn := new(big.Int).Set(intent.AmountIn)
	amountOut := new(big.Int).Mul(amountIn, big.NewInt(10000-dryRunSlippageBps))
	amountOut.Quo(amountOut, big.NewInt(10000))

	if t.cfg.RequestApproval {
		log.Printf("[info] dry-run: would request execution of %s wei", amountIn)
		return Result{Requested: true, Success: true, AmountIn: amountIn, AmountOut: amountOut}
	}

	log.Printf("[info] dry-run: simulated swap in=%s out=%s", amountIn, amountOut)
	return Result{Executed: true, Success: true, AmountIn: amountIn, AmountOut: amountOut}
}

func (t *Trader) executeSwap(ctx context.Context, intent strategy.Intent, snap *vault.Snapshot) Result {
	data := vault.ExecuteSwapCalldata(t.cfg.User, snap.DefaultRouteID, intent.ZeroForOne, intent.AmountIn, intent.MinAmountOut)

	receipt, txHash, err := t.submit(ctx, data, swapGasLimit)
	if err != nil {
		return Result{Executed: true, TxHash: txHash, Err: err.Error()}
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return Result{
			Executed:    true,
			TxHash:      txHash,
			BlockNumber: receipt.BlockNumber.Uint64(),
			GasUsed:     receipt.GasUsed,
			Err:         "transaction reverted",
		}
	}

	res := Result{
		Executed:    true,
		Success:     true,
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}

	ev, err := vault.FindSwapExecuted(receipt, t.cfg.Vault)
	if err != nil || ev == nil {
		// Soft degradation: the trade succeeded even if the event is missing
		// or malformed.
		log.Printf("[warn] swap confirmed but event not parsed (tx=%s): %v", txHash.Hex(), err)
		return res
	}

	res.Event = ev
	res.AmountIn = ev.AmountIn
	res.AmountOut = ev.AmountOut
	return res
}

func (t *Trader) requestExecution(ctx context.Context, intent strategy.Intent) Result {
	data := vault.RequestExecutionCalldata(intent.AmountIn, intent.ZeroForOne)

	receipt, txHash, err := t.submit(ctx, data, requestGasLimit)
	if err != nil {
		return Result{TxHash: txHash, Err: err.Error()}
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return Result{
			TxHash:      txHash,
			BlockNumber: receipt.BlockNumber.Uint64(),
			GasUsed:     receipt.GasUsed,
			Err:         "request transaction reverted",
		}
	}

	log.Printf("[info] execution requested (tx=%s gas=%d), awaiting owner approval", txHash.Hex(), receipt.GasUsed)
	return Result{
		Requested:   true,
		Success:     true,
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}
}

func (t *Trader) submit(ctx context.Context, data []byte, gasLimit uint64) (*types.Receipt, common.Hash, error) {
	nonce, err := t.backend.PendingNonceAt(ctx, t.agent)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("fetch gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &t.cfg.Vault,
		Data:     data,
	})
	signed, err := types.SignTx(tx, t.signer, t.key)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, signed.Hash(), fmt.Errorf("send transaction: %w", err)
	}
	log.Printf("[info] transaction sent: %s", signed.Hash().Hex())

	receipt, err := t.waitForReceipt(ctx, signed.Hash())
	if err != nil {
		return nil, signed.Hash(), err
	}
	return receipt, signed.Hash(), nil
}

// waitForReceipt polls until the transaction confirms or the bounded timeout
// elapses; a timeout is a failure, not an indefinite hang.
func (t *Trader) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, t.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.backend.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("confirmation wait for %s: %w", txHash.Hex(), waitCtx.Err())
		case <-ticker.C:
		}
	}
}
