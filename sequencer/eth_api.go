package sequencer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// EthAPI exposes the user-facing eth namespace. Reads go through the
// blockchain and the engine's shared state; writes enter the pool.
type EthAPI struct {
	eng *Engine
}

func NewEthAPI(eng *Engine) *EthAPI {
	return &EthAPI{eng: eng}
}

func (api *EthAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.eng.Chain().Config().ChainID)
}

func (api *EthAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.eng.Chain().CurrentHeader().Number.Uint64())
}

func (api *EthAPI) GetBalance(address common.Address, blockNrOrHash rpc.BlockNumberOrHash) (*hexutil.Big, error) {
	balance, err := api.eng.BalanceAt(address, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(balance), nil
}

// GetTransactionCount reports the pool's optimistic next nonce for senders
// the sequencer has seen, falling back to the latest state.
func (api *EthAPI) GetTransactionCount(address common.Address, blockNrOrHash rpc.BlockNumberOrHash) (*hexutil.Uint64, error) {
	nonce, err := api.eng.TransactionCount(address)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Uint64)(&nonce), nil
}

func (api *EthAPI) GetBlockByHash(hash common.Hash, fullTx bool) (map[string]interface{}, error) {
	block := api.eng.Chain().GetBlockByHash(hash)
	if block == nil {
		return nil, nil
	}
	return rpcMarshalBlock(block, fullTx, api.eng.Chain().Config()), nil
}

func (api *EthAPI) GetBlockByNumber(number rpc.BlockNumber, fullTx bool) (map[string]interface{}, error) {
	header := api.eng.Chain().HeaderByNumberOrTag(number)
	if header == nil {
		return nil, nil
	}
	block := api.eng.Chain().GetBlockByHash(header.Hash())
	if block == nil {
		return nil, nil
	}
	return rpcMarshalBlock(block, fullTx, api.eng.Chain().Config()), nil
}

func (api *EthAPI) SendRawTransaction(input hexutil.Bytes) (common.Hash, error) {
	return api.eng.SendRawTransaction(input)
}

// GetTransactionReceipt searches mined transactions first and then the live
// payload builders, so a receipt is visible as soon as the sequencer has
// executed the transaction.
func (api *EthAPI) GetTransactionReceipt(hash common.Hash) (map[string]interface{}, error) {
	ch := api.eng.Chain()
	if receipt, header := ch.ReadReceipt(hash); receipt != nil {
		tx, _, _, index := ch.ReadTransaction(hash)
		return rpcMarshalReceipt(receipt, tx, header, index, ch.Config()), nil
	}
	if tx, receipt := api.eng.PendingReceipt(hash); tx != nil {
		return rpcMarshalReceipt(receipt, tx, nil, uint64(receipt.TransactionIndex), ch.Config()), nil
	}
	return nil, nil
}

// EstimateGas is a stub: the sequencer does not speculate about execution.
func (api *EthAPI) EstimateGas(args map[string]interface{}, blockNrOrHash *rpc.BlockNumberOrHash) hexutil.Uint64 {
	return 0
}

type feeHistoryResult struct {
	OldestBlock  *hexutil.Big     `json:"oldestBlock"`
	Reward       [][]*hexutil.Big `json:"reward,omitempty"`
	BaseFee      []*hexutil.Big   `json:"baseFeePerGas,omitempty"`
	GasUsedRatio []float64        `json:"gasUsedRatio"`
}

// FeeHistory is a stub: fee history is not tracked.
func (api *EthAPI) FeeHistory(blockCount hexutil.Uint64, lastBlock rpc.BlockNumber, rewardPercentiles []float64) *feeHistoryResult {
	return &feeHistoryResult{OldestBlock: (*hexutil.Big)(common.Big0)}
}
