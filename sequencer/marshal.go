package sequencer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
)

// JSON shaping for the eth namespace. go-ethereum keeps its versions of
// these helpers in internal/ethapi, which cannot be imported across module
// boundaries, so the subset this node serves is expressed here.

func rpcMarshalBlock(block *types.Block, fullTx bool, config *params.ChainConfig) map[string]interface{} {
	head := block.Header()
	fields := map[string]interface{}{
		"number":           (*hexutil.Big)(head.Number),
		"hash":             block.Hash(),
		"parentHash":       head.ParentHash,
		"nonce":            head.Nonce,
		"mixHash":          head.MixDigest,
		"sha3Uncles":       head.UncleHash,
		"logsBloom":        head.Bloom,
		"stateRoot":        head.Root,
		"miner":            head.Coinbase,
		"difficulty":       (*hexutil.Big)(head.Difficulty),
		"totalDifficulty":  (*hexutil.Big)(common.Big0),
		"extraData":        hexutil.Bytes(head.Extra),
		"size":             hexutil.Uint64(block.Size()),
		"gasLimit":         hexutil.Uint64(head.GasLimit),
		"gasUsed":          hexutil.Uint64(head.GasUsed),
		"timestamp":        hexutil.Uint64(head.Time),
		"transactionsRoot": head.TxHash,
		"receiptsRoot":     head.ReceiptHash,
		"uncles":           []common.Hash{},
	}
	if head.BaseFee != nil {
		fields["baseFeePerGas"] = (*hexutil.Big)(head.BaseFee)
	}
	if head.WithdrawalsHash != nil {
		fields["withdrawalsRoot"] = head.WithdrawalsHash
		fields["withdrawals"] = block.Withdrawals()
	}
	if head.BlobGasUsed != nil {
		fields["blobGasUsed"] = hexutil.Uint64(*head.BlobGasUsed)
	}
	if head.ExcessBlobGas != nil {
		fields["excessBlobGas"] = hexutil.Uint64(*head.ExcessBlobGas)
	}
	if head.ParentBeaconRoot != nil {
		fields["parentBeaconBlockRoot"] = head.ParentBeaconRoot
	}
	if fullTx {
		txs := make([]interface{}, len(block.Transactions()))
		for i, tx := range block.Transactions() {
			txs[i] = newRPCTransaction(tx, block.Hash(), block.NumberU64(), uint64(i), head.BaseFee, config)
		}
		fields["transactions"] = txs
	} else {
		hashes := make([]common.Hash, len(block.Transactions()))
		for i, tx := range block.Transactions() {
			hashes[i] = tx.Hash()
		}
		fields["transactions"] = hashes
	}
	return fields
}

func newRPCTransaction(tx *types.Transaction, blockHash common.Hash, blockNumber, index uint64, baseFee *big.Int, config *params.ChainConfig) map[string]interface{} {
	signer := types.LatestSigner(config)
	from, _ := types.Sender(signer, tx)
	v, r, s := tx.RawSignatureValues()

	result := map[string]interface{}{
		"hash":     tx.Hash(),
		"type":     hexutil.Uint64(tx.Type()),
		"from":     from,
		"to":       tx.To(),
		"gas":      hexutil.Uint64(tx.Gas()),
		"value":    (*hexutil.Big)(tx.Value()),
		"input":    hexutil.Bytes(tx.Data()),
		"nonce":    hexutil.Uint64(tx.Nonce()),
		"v":        (*hexutil.Big)(v),
		"r":        (*hexutil.Big)(r),
		"s":        (*hexutil.Big)(s),
		"gasPrice": (*hexutil.Big)(tx.GasPrice()),
	}
	if blockHash != (common.Hash{}) {
		result["blockHash"] = blockHash
		result["blockNumber"] = hexutil.Uint64(blockNumber)
		result["transactionIndex"] = hexutil.Uint64(index)
	}
	switch tx.Type() {
	case types.DynamicFeeTxType:
		result["chainId"] = (*hexutil.Big)(tx.ChainId())
		result["maxFeePerGas"] = (*hexutil.Big)(tx.GasFeeCap())
		result["maxPriorityFeePerGas"] = (*hexutil.Big)(tx.GasTipCap())
		if baseFee != nil {
			result["gasPrice"] = (*hexutil.Big)(tx.EffectiveGasTipValue(baseFee).Add(tx.EffectiveGasTipValue(baseFee), baseFee))
		}
	case types.AccessListTxType:
		result["chainId"] = (*hexutil.Big)(tx.ChainId())
		al := tx.AccessList()
		result["accessList"] = &al
	case types.DepositTxType:
		result["sourceHash"] = tx.SourceHash()
		result["mint"] = (*hexutil.Big)(tx.Mint())
	}
	return result
}

func rpcMarshalReceipt(receipt *types.Receipt, tx *types.Transaction, header *types.Header, index uint64, config *params.ChainConfig) map[string]interface{} {
	signer := types.LatestSigner(config)
	from, _ := types.Sender(signer, tx)

	fields := map[string]interface{}{
		"transactionHash":   tx.Hash(),
		"transactionIndex":  hexutil.Uint64(index),
		"from":              from,
		"to":                tx.To(),
		"gasUsed":           hexutil.Uint64(receipt.GasUsed),
		"cumulativeGasUsed": hexutil.Uint64(receipt.CumulativeGasUsed),
		"contractAddress":   nil,
		"logs":              receipt.Logs,
		"logsBloom":         receipt.Bloom,
		"type":              hexutil.Uint64(receipt.Type),
		"status":            hexutil.Uint64(receipt.Status),
	}
	if header != nil {
		fields["blockHash"] = receipt.BlockHash
		fields["blockNumber"] = hexutil.Uint64(header.Number.Uint64())
		fields["effectiveGasPrice"] = (*hexutil.Big)(effectiveGasPrice(tx, header.BaseFee))
	}
	if receipt.Logs == nil {
		fields["logs"] = []*types.Log{}
	}
	if tx.To() == nil {
		fields["contractAddress"] = crypto.CreateAddress(from, tx.Nonce())
	}
	if receipt.DepositNonce != nil {
		fields["depositNonce"] = hexutil.Uint64(*receipt.DepositNonce)
	}
	if receipt.DepositReceiptVersion != nil {
		fields["depositReceiptVersion"] = hexutil.Uint64(*receipt.DepositReceiptVersion)
	}
	return fields
}

func effectiveGasPrice(tx *types.Transaction, baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return tx.GasPrice()
	}
	tip := tx.EffectiveGasTipValue(baseFee)
	return tip.Add(tip, baseFee)
}
