package sequencer

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/RGafiyatullin/redstone-sequencer/chain"
)

// Engine is the fork-choice and payload-lifecycle state machine. It owns the
// transaction pool, the nonce table and the map of in-progress builds, all
// guarded by a single reader-writer lock: every mutating operation holds the
// write lock for its full duration, so pool and builder invariants hold
// across collaborator calls.
type Engine struct {
	mu sync.RWMutex

	chain     *chain.Chain
	signer    types.Signer
	extraData []byte

	nonces   *Nonces
	pool     *TxPool
	payloads map[engine.PayloadID]*PayloadBuilder
}

func New(ch *chain.Chain, extraData []byte) *Engine {
	signer := types.LatestSigner(ch.Config())
	return &Engine{
		chain:     ch,
		signer:    signer,
		extraData: extraData,
		nonces:    NewNonces(),
		pool:      NewTxPool(signer),
		payloads:  make(map[engine.PayloadID]*PayloadBuilder),
	}
}

func (e *Engine) Chain() *chain.Chain { return e.chain }

// ForkchoiceUpdated advances the canonical chain to the declared head, marks
// the finalized and safe blocks, and, when attributes are present, starts a
// new payload build seeded with the consensus-supplied transactions.
func (e *Engine) ForkchoiceUpdated(update engine.ForkchoiceStateV1, attrs *engine.PayloadAttributes) (engine.ForkChoiceResponse, error) {
	defer metricsForkchoiceCost(time.Now())

	if update.HeadBlockHash == (common.Hash{}) {
		log.Warn("Forkchoice requested update to zero hash")
		return invalidForkchoiceResponse(ErrZeroHeadBlockHash.Error()), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	head, already, err := e.chain.MakeCanonical(update.HeadBlockHash)
	if err != nil {
		return engine.ForkChoiceResponse{}, err
	}
	if already {
		log.Debug("Forkchoice head already canonical", "head", update.HeadBlockHash)
	} else {
		log.Debug("Forkchoice head committed", "head", update.HeadBlockHash, "number", head.Number)
	}
	if _, err := e.chain.MarkFinalized(update.FinalizedBlockHash); err != nil {
		return engine.ForkChoiceResponse{}, err
	}
	if _, err := e.chain.MarkSafe(update.SafeBlockHash); err != nil {
		return engine.ForkChoiceResponse{}, err
	}

	var payloadID *engine.PayloadID
	if attrs != nil {
		id, err := e.startPayload(update.HeadBlockHash, attrs)
		if err != nil {
			return engine.ForkChoiceResponse{}, err
		}
		payloadID = &id
	}

	headHash := update.HeadBlockHash
	return engine.ForkChoiceResponse{
		PayloadStatus: engine.PayloadStatusV1{Status: engine.VALID, LatestValidHash: &headHash},
		PayloadID:     payloadID,
	}, nil
}

// startPayload derives the deterministic payload id, initializes a builder
// on top of the new head and force-includes the consensus-supplied
// transactions without fee accounting.
func (e *Engine) startPayload(parent common.Hash, attrs *engine.PayloadAttributes) (engine.PayloadID, error) {
	args, err := newBuildPayloadArgs(parent, attrs)
	if err != nil {
		return engine.PayloadID{}, err
	}
	id := args.Id()

	builder, err := newPayloadBuilder(e.chain, args, e.extraData)
	if err != nil {
		return engine.PayloadID{}, invalidParams(err)
	}
	for _, tx := range args.Transactions {
		if _, err := builder.ProcessTransaction(tx, true); err != nil {
			return engine.PayloadID{}, invalidParams(fmt.Errorf("forced transaction %s: %w", tx.Hash(), err))
		}
	}
	e.payloads[id] = builder
	builderActiveGauge.Update(int64(len(e.payloads)))
	log.Info("Started payload build", "id", id, "parent", parent, "forced_txs", len(args.Transactions))
	return id, nil
}

// NewPayload reconstructs an externally produced block from its wire form
// and hands it to the blockchain for exhaustive validation and insertion.
func (e *Engine) NewPayload(payload engine.ExecutableData, versionedHashes []common.Hash, beaconRoot common.Hash) (engine.PayloadStatusV1, error) {
	defer metricsNewPayloadCost(time.Now())

	block, err := engine.ExecutableDataToBlock(payload, versionedHashes, &beaconRoot, nil, e.chain.Config())
	if err != nil {
		return engine.PayloadStatusV1{}, invalidParams(err)
	}
	log.Info("New payload", "hash", block.Hash(), "parent", block.ParentHash(), "number", block.NumberU64(), "state_root", block.Root())

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.chain.InsertBlock(block); err != nil {
		return engine.PayloadStatusV1{}, invalidParams(err)
	}
	hash := block.Hash()
	return engine.PayloadStatusV1{Status: engine.VALID, LatestValidHash: &hash}, nil
}

// GetPayload removes the named build from the map, seals it and returns the
// V3 envelope.
func (e *Engine) GetPayload(id engine.PayloadID) (*engine.ExecutionPayloadEnvelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	builder, ok := e.payloads[id]
	if !ok {
		return nil, invalidParams(fmt.Errorf("%w: %v", ErrUnknownPayload, id))
	}
	delete(e.payloads, id)
	builderActiveGauge.Update(int64(len(e.payloads)))

	payload, err := builder.Seal()
	if err != nil {
		return nil, invalidParams(err)
	}
	cancun := e.chain.Config().IsCancun(payload.Block.Number(), payload.Attributes.Timestamp)
	envelope := payload.EnvelopeV3(cancun)
	log.Info("Delivered payload", "id", id, "hash", payload.Block.Hash(), "parent", payload.Block.ParentHash(), "value", payload.Fees)
	return envelope, nil
}

// SendRawTransaction decodes a user transaction into the pool and, when
// exactly one build is in progress, drains every globally ready transaction
// into it. With zero or several builds active the drain target would be
// ambiguous, so the transactions stay queued.
func (e *Engine) SendRawTransaction(input []byte) (common.Hash, error) {
	defer metricsSendRawTxCost(time.Now())

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(input); err != nil {
		return common.Hash{}, invalidParams(err)
	}
	from, err := types.Sender(e.signer, tx)
	if err != nil {
		return common.Hash{}, invalidParams(fmt.Errorf("%w: %v", ErrBadSignature, err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	err = e.nonces.Ensure(from, func(addr common.Address) (uint64, error) {
		statedb, err := e.chain.LatestState()
		if err != nil {
			return 0, err
		}
		return statedb.GetNonce(addr), nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	if err := e.pool.Add(e.nonces, tx); err != nil {
		return common.Hash{}, invalidParams(err)
	}
	log.Debug("Added transaction into pool", "hash", tx.Hash(),
		"scheduled_count", e.pool.ScheduledCount(), "pending_count", e.pool.PendingCount())

	e.drainScheduled()
	return tx.Hash(), nil
}

func (e *Engine) drainScheduled() {
	if len(e.payloads) != 1 {
		log.Warn("Could not select a payload builder", "payloads", len(e.payloads))
		return
	}
	for id, builder := range e.payloads {
		for tx := range e.pool.ScheduledDrain() {
			receipt, err := builder.ProcessTransaction(tx, false)
			switch {
			case err != nil:
				log.Warn("Error processing transaction", "payload", id, "hash", tx.Hash(), "err", err)
			case receipt == nil:
				log.Debug("Transaction skipped by EVM", "payload", id, "hash", tx.Hash())
			default:
				log.Debug("Transaction processed", "payload", id, "hash", tx.Hash(), "gas", receipt.GasUsed)
			}
		}
	}
}

// BalanceAt reads an account balance at the requested block.
func (e *Engine) BalanceAt(addr common.Address, blockNrOrHash rpc.BlockNumberOrHash) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	statedb, err := e.chain.StateByNumberOrHash(blockNrOrHash)
	if err != nil {
		return nil, err
	}
	return statedb.GetBalance(addr).ToBig(), nil
}

// TransactionCount prefers the pool's optimistic view of the sender's next
// nonce and falls back to the latest state.
func (e *Engine) TransactionCount(addr common.Address) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if nonce, ok := e.nonces.Get(addr); ok {
		return nonce, nil
	}
	statedb, err := e.chain.LatestState()
	if err != nil {
		return 0, err
	}
	return statedb.GetNonce(addr), nil
}

// PendingReceipt searches the live builders for a not-yet-mined transaction.
func (e *Engine) PendingReceipt(hash common.Hash) (*types.Transaction, *types.Receipt) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, builder := range e.payloads {
		if tx, receipt := builder.Receipt(hash); tx != nil {
			return tx, receipt
		}
	}
	return nil, nil
}

// ActivePayloads reports the number of builds in progress.
func (e *Engine) ActivePayloads() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.payloads)
}

func invalidForkchoiceResponse(reason string) engine.ForkChoiceResponse {
	return engine.ForkChoiceResponse{
		PayloadStatus: engine.PayloadStatusV1{Status: engine.INVALID, ValidationError: &reason},
	}
}
