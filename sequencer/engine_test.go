package sequencer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genesisForkchoice(e *Engine) engine.ForkchoiceStateV1 {
	head := e.Chain().CurrentHeader().Hash()
	return engine.ForkchoiceStateV1{
		HeadBlockHash:      head,
		SafeBlockHash:      head,
		FinalizedBlockHash: head,
	}
}

func testAttributes(t *testing.T, forced ...*types.Transaction) *engine.PayloadAttributes {
	t.Helper()
	gasLimit := uint64(30_000_000)
	beaconRoot := common.HexToHash("0xbb")
	encoded := make([][]byte, len(forced))
	for i, tx := range forced {
		encoded[i] = mustMarshalBinary(t, tx)
	}
	return &engine.PayloadAttributes{
		Timestamp:             testGenesisTime + 2,
		Random:                common.HexToHash("0xaa"),
		SuggestedFeeRecipient: testCoinbase,
		Withdrawals:           []*types.Withdrawal{},
		BeaconRoot:            &beaconRoot,
		Transactions:          encoded,
		GasLimit:              &gasLimit,
	}
}

func TestForkchoiceZeroHead(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.ForkchoiceUpdated(engine.ForkchoiceStateV1{}, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.INVALID, res.PayloadStatus.Status)
	require.NotNil(t, res.PayloadStatus.ValidationError)
	assert.Contains(t, *res.PayloadStatus.ValidationError, "head-block-hash is zero")
	assert.Nil(t, res.PayloadID)
}

func TestForkchoiceUnknownHead(t *testing.T) {
	e := newTestEngine(t)

	update := genesisForkchoice(e)
	update.HeadBlockHash = common.HexToHash("0xdeadbeef")
	_, err := e.ForkchoiceUpdated(update, nil)
	require.Error(t, err)
}

func TestForkchoiceWithoutAttributes(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.ForkchoiceUpdated(genesisForkchoice(e), nil)
	require.NoError(t, err)
	assert.Equal(t, engine.VALID, res.PayloadStatus.Status)
	require.NotNil(t, res.PayloadStatus.LatestValidHash)
	assert.Equal(t, e.Chain().CurrentHeader().Hash(), *res.PayloadStatus.LatestValidHash)
	assert.Nil(t, res.PayloadID)
	assert.Equal(t, 0, e.ActivePayloads())
}

func TestForkchoiceDeterministicPayloadId(t *testing.T) {
	e := newTestEngine(t)

	res1, err := e.ForkchoiceUpdated(genesisForkchoice(e), testAttributes(t))
	require.NoError(t, err)
	res2, err := e.ForkchoiceUpdated(genesisForkchoice(e), testAttributes(t))
	require.NoError(t, err)
	require.NotNil(t, res1.PayloadID)
	require.NotNil(t, res2.PayloadID)
	assert.Equal(t, *res1.PayloadID, *res2.PayloadID)
	// The rebuild replaced the builder under the same id.
	assert.Equal(t, 1, e.ActivePayloads())
}

func TestGetPayloadUnknownId(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.GetPayload(engine.PayloadID{1, 2, 3})
	require.Error(t, err)
}

func TestSendRawTransactionAmbiguousTarget(t *testing.T) {
	e := newTestEngine(t)

	// No active build: the transaction is accepted but stays scheduled.
	tx := signTransfer(t, testKey, 0, testAddr2, big.NewInt(1))
	hash, err := e.SendRawTransaction(mustMarshalBinary(t, tx))
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), hash)
	assert.Equal(t, 1, e.pool.ScheduledCount())
}

func TestSendRawTransactionGarbage(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.SendRawTransaction([]byte{0x01, 0x02})
	require.Error(t, err)
}

// The full lifecycle: fork-choice with a forced deposit, a user transaction
// over the public API, collection of the sealed payload and re-insertion of
// the node's own block.
func TestBuildRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	genesisHash := e.Chain().CurrentHeader().Hash()

	deposit := depositTx(common.HexToHash("0x22"), common.HexToAddress("0xdead"), testAddr)
	attrs := testAttributes(t, deposit)

	res, err := e.ForkchoiceUpdated(genesisForkchoice(e), attrs)
	require.NoError(t, err)
	require.NotNil(t, res.PayloadID)
	assert.Equal(t, engine.VALID, res.PayloadStatus.Status)

	user := signTransfer(t, testKey, 0, testAddr2, big.NewInt(1))
	hash, err := e.SendRawTransaction(mustMarshalBinary(t, user))
	require.NoError(t, err)
	assert.Equal(t, user.Hash(), hash)

	// The drained transaction is already visible through its receipt.
	pendingTx, pendingReceipt := e.PendingReceipt(user.Hash())
	require.NotNil(t, pendingTx)
	require.NotNil(t, pendingReceipt)

	envelope, err := e.GetPayload(*res.PayloadID)
	require.NoError(t, err)
	payload := envelope.ExecutionPayload

	require.Len(t, payload.Transactions, 2)
	assert.Equal(t, mustMarshalBinary(t, deposit), payload.Transactions[0])
	assert.Equal(t, mustMarshalBinary(t, user), payload.Transactions[1])
	assert.Equal(t, e.Chain().GetBlockByHash(genesisHash).NumberU64()+1, payload.Number)
	assert.Equal(t, genesisHash, payload.ParentHash)
	assert.NotEqual(t, common.Hash{}, payload.BlockHash)
	require.NotNil(t, envelope.ParentBeaconBlockRoot)
	assert.Equal(t, *attrs.BeaconRoot, *envelope.ParentBeaconBlockRoot)

	// Only the user transaction pays the builder.
	wantValue := new(big.Int).SetUint64(params.TxGas * params.GWei)
	assert.Equal(t, wantValue, envelope.BlockValue)

	// The builder is consumed.
	_, err = e.GetPayload(*res.PayloadID)
	require.Error(t, err)

	// The node accepts the block it just produced.
	status, err := e.NewPayload(*payload, []common.Hash{}, *attrs.BeaconRoot)
	require.NoError(t, err)
	assert.Equal(t, engine.VALID, status.Status)
	require.NotNil(t, status.LatestValidHash)
	assert.Equal(t, payload.BlockHash, *status.LatestValidHash)

	// And the next fork-choice update makes it canonical.
	update := engine.ForkchoiceStateV1{
		HeadBlockHash:      payload.BlockHash,
		SafeBlockHash:      genesisHash,
		FinalizedBlockHash: genesisHash,
	}
	res, err = e.ForkchoiceUpdated(update, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.VALID, res.PayloadStatus.Status)
	assert.Equal(t, payload.BlockHash, e.Chain().CurrentHeader().Hash())
}

func TestTransactionCountOptimisticView(t *testing.T) {
	e := newTestEngine(t)

	nonce, err := e.TransactionCount(testAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nonce)

	_, err = e.SendRawTransaction(mustMarshalBinary(t, signTransfer(t, testKey, 0, testAddr2, big.NewInt(1))))
	require.NoError(t, err)

	// The pool's view advances ahead of the chain.
	nonce, err = e.TransactionCount(testAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)
}
