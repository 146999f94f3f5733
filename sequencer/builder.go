package sequencer

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc"
	"github.com/ethereum/go-ethereum/consensus/misc/eip1559"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/RGafiyatullin/redstone-sequencer/chain"
)

// PayloadBuilder is a block under construction. It owns the state view on
// top of the parent block and accumulates executed transactions, receipts,
// gas and fees until the consensus layer collects it.
type PayloadBuilder struct {
	args        *BuildPayloadArgs
	chain       *chain.Chain
	chainConfig *params.ChainConfig
	signer      types.Signer

	state   *state.StateDB
	evm     *vm.EVM
	gasPool *core.GasPool

	parent    *types.Header
	header    *types.Header
	txs       []*types.Transaction
	receipts  []*types.Receipt
	totalFees *uint256.Int
}

// newPayloadBuilder prepares the header for the next block, opens the parent
// state and runs the pre-block system calls. An unknown parent, a
// non-increasing timestamp or an unopenable parent state aborts the build
// before it exists; the system calls report no error and are not checked.
func newPayloadBuilder(ch *chain.Chain, args *BuildPayloadArgs, extraData []byte) (*PayloadBuilder, error) {
	parent := ch.GetHeaderByHash(args.Parent)
	if parent == nil {
		return nil, fmt.Errorf("%w: parent %s", chain.ErrUnknownBlockHash, args.Parent)
	}
	if parent.Time >= args.Timestamp {
		return nil, fmt.Errorf("invalid timestamp, parent %d given %d", parent.Time, args.Timestamp)
	}
	chainConfig := ch.Config()

	header := &types.Header{
		ParentHash: args.Parent,
		Number:     new(big.Int).Add(parent.Number, common.Big1),
		GasLimit:   parent.GasLimit,
		Time:       args.Timestamp,
		Coinbase:   args.FeeRecipient,
		MixDigest:  args.Random,
		Difficulty: common.Big0,
		Extra:      extraData,
	}
	if args.GasLimit != nil {
		header.GasLimit = *args.GasLimit
	}
	if chainConfig.IsLondon(header.Number) {
		header.BaseFee = eip1559.CalcBaseFee(chainConfig, parent, header.Time)
	}
	if chainConfig.IsShanghai(header.Number, header.Time) && args.Withdrawals == nil {
		// The body withdrawals list must exist once Shanghai (Canyon) is live.
		args.Withdrawals = types.Withdrawals{}
	}
	if chainConfig.IsCancun(header.Number, header.Time) {
		var excessBlobGas uint64
		if chainConfig.IsCancun(parent.Number, parent.Time) {
			excessBlobGas = eip4844.CalcExcessBlobGas(chainConfig, parent, header.Time)
		}
		header.BlobGasUsed = new(uint64)
		header.ExcessBlobGas = &excessBlobGas
		header.ParentBeaconRoot = args.BeaconRoot
	}

	statedb, err := ch.StateAt(parent.Root)
	if err != nil {
		return nil, fmt.Errorf("open state at parent %s: %w", args.Parent, err)
	}
	coinbase := args.FeeRecipient
	evm := vm.NewEVM(core.NewEVMBlockContext(header, ch.BlockChain(), &coinbase, chainConfig, statedb), statedb, chainConfig, vm.Config{})

	if header.ParentBeaconRoot != nil {
		core.ProcessBeaconBlockRoot(*header.ParentBeaconRoot, evm)
	}
	misc.EnsureCreate2Deployer(chainConfig, header.Time, statedb)

	return &PayloadBuilder{
		args:        args,
		chain:       ch,
		chainConfig: chainConfig,
		signer:      types.MakeSigner(chainConfig, header.Number, header.Time),
		state:       statedb,
		evm:         evm,
		gasPool:     new(core.GasPool).AddGas(header.GasLimit),
		parent:      parent,
		header:      header,
		totalFees:   new(uint256.Int),
	}, nil
}

// ProcessTransaction executes one transaction on top of the accumulated
// state. A transaction the EVM rejects as invalid is skipped: the state is
// reverted, nothing is appended and (nil, nil) is returned. Any other
// execution failure aborts the call but leaves the payload intact and
// sealable. skipFees excludes consensus-forced transactions from the miner
// fee total.
func (b *PayloadBuilder) ProcessTransaction(tx *types.Transaction, skipFees bool) (*types.Receipt, error) {
	if tx.Type() == types.BlobTxType {
		return nil, ErrBlobTxRejected
	}
	if _, err := types.Sender(b.signer, tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	b.state.SetTxContext(tx.Hash(), len(b.txs))

	var (
		snap    = b.state.Snapshot()
		gasLeft = b.gasPool.Gas()
		gasUsed = b.header.GasUsed
	)
	receipt, err := core.ApplyTransaction(b.evm, b.gasPool, b.state, b.header, tx, &b.header.GasUsed)
	if err != nil {
		b.state.RevertToSnapshot(snap)
		b.gasPool.SetGas(gasLeft)
		b.header.GasUsed = gasUsed
		if isTxValidationError(err) {
			log.Trace("Skipping invalid transaction", "hash", tx.Hash(), "err", err)
			builderTxSkipped.Mark(1)
			return nil, nil
		}
		return nil, fmt.Errorf("execute %s: %w", tx.Hash(), err)
	}

	if !skipFees {
		if tip, err := tx.EffectiveGasTip(b.header.BaseFee); err == nil {
			fee := new(uint256.Int).Mul(uint256.MustFromBig(tip), uint256.NewInt(receipt.GasUsed))
			b.totalFees.Add(b.totalFees, fee)
		}
	}

	b.txs = append(b.txs, tx)
	b.receipts = append(b.receipts, receipt)
	builderTxIncluded.Mark(1)
	return receipt, nil
}

// TxCount returns the number of transactions included so far.
func (b *PayloadBuilder) TxCount() int { return len(b.txs) }

// CumulativeGasUsed returns the gas consumed by the included transactions.
func (b *PayloadBuilder) CumulativeGasUsed() uint64 { return b.header.GasUsed }

// Receipt returns the live (tx, receipt) pair for hash, if this builder has
// executed it.
func (b *PayloadBuilder) Receipt(hash common.Hash) (*types.Transaction, *types.Receipt) {
	for i, tx := range b.txs {
		if tx.Hash() == hash {
			return tx, b.receipts[i]
		}
	}
	return nil, nil
}

// Seal finishes the block: withdrawals are committed and the state,
// transaction, receipt and withdrawals roots computed through the consensus
// engine's assembly step.
func (b *PayloadBuilder) Seal() (*BuiltPayload, error) {
	defer metricsSealCost(time.Now())

	body := types.Body{Transactions: b.txs, Withdrawals: b.args.Withdrawals}
	block, err := b.chain.Engine().FinalizeAndAssemble(b.chain.BlockChain(), b.header, b.state, &body, b.receipts)
	if err != nil {
		return nil, fmt.Errorf("assemble block: %w", err)
	}
	log.Info("Sealed payload", "id", b.args.Id(), "number", block.NumberU64(), "hash", block.Hash(),
		"txs", len(b.txs), "gas", block.GasUsed(), "fees", b.totalFees)
	return &BuiltPayload{
		ID:         b.args.Id(),
		Block:      block,
		Fees:       b.totalFees.ToBig(),
		Attributes: b.args,
	}, nil
}

// isTxValidationError reports whether the execution failure concerns only
// the transaction itself. Such transactions are dropped from the build;
// everything else indicates a broken environment and propagates.
func isTxValidationError(err error) bool {
	for _, known := range []error{
		core.ErrNonceTooLow,
		core.ErrNonceTooHigh,
		core.ErrNonceMax,
		core.ErrGasLimitReached,
		core.ErrInsufficientFundsForTransfer,
		core.ErrInsufficientFunds,
		core.ErrIntrinsicGas,
		core.ErrTxTypeNotSupported,
		core.ErrTipAboveFeeCap,
		core.ErrTipVeryHigh,
		core.ErrFeeCapVeryHigh,
		core.ErrFeeCapTooLow,
		core.ErrSenderNoEOA,
		core.ErrMaxInitCodeSizeExceeded,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}
