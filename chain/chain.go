package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus"
	"github.com/ethereum/go-ethereum/consensus/beacon"
	"github.com/ethereum/go-ethereum/consensus/ethash"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrUnknownBlockHash is returned when a fork-choice or state lookup names
	// a block this node has never seen.
	ErrUnknownBlockHash = errors.New("unknown block hash")
)

// Chain wraps the go-ethereum blockchain with the narrow surface the
// sequencer core consumes: canonicalization, finality marks, exhaustive block
// insertion and state/block/receipt lookups.
type Chain struct {
	db ethdb.Database
	bc *core.BlockChain
}

// New opens the blockchain on top of an initialized database. The stored
// genesis must match the supplied chain spec; a mismatch is fatal.
func New(db ethdb.Database, genesis *core.Genesis) (*Chain, error) {
	if stored := rawdb.ReadCanonicalHash(db, 0); stored != (common.Hash{}) {
		if want := genesis.ToBlock().Hash(); stored != want {
			return nil, fmt.Errorf("%w: database has %s, chain spec wants %s", ErrGenesisMismatch, stored, want)
		}
	}
	engine := beacon.New(ethash.NewFaker())
	bc, err := core.NewBlockChain(db, nil, genesis, nil, engine, vm.Config{}, nil)
	if err != nil {
		return nil, err
	}
	log.Info("Blockchain opened", "genesis", bc.Genesis().Hash(), "head", bc.CurrentBlock().Number)
	return &Chain{db: db, bc: bc}, nil
}

func (c *Chain) Close() {
	c.bc.Stop()
}

// BlockChain exposes the underlying chain for EVM context construction.
func (c *Chain) BlockChain() *core.BlockChain { return c.bc }

func (c *Chain) Config() *params.ChainConfig { return c.bc.Config() }

func (c *Chain) Engine() consensus.Engine { return c.bc.Engine() }

// MakeCanonical promotes the block with the given hash to chain head. The
// boolean reports whether the block already was the canonical head.
func (c *Chain) MakeCanonical(hash common.Hash) (*types.Header, bool, error) {
	block := c.bc.GetBlockByHash(hash)
	if block == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownBlockHash, hash)
	}
	if c.bc.CurrentBlock().Hash() == hash {
		return block.Header(), true, nil
	}
	if _, err := c.bc.SetCanonical(block); err != nil {
		return nil, false, err
	}
	return block.Header(), false, nil
}

// MarkFinalized looks up the named block and records it as finalized.
func (c *Chain) MarkFinalized(hash common.Hash) (*types.Header, error) {
	header := c.bc.GetHeaderByHash(hash)
	if header == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlockHash, hash)
	}
	c.bc.SetFinalized(header)
	return header, nil
}

// MarkSafe looks up the named block and records it as safe.
func (c *Chain) MarkSafe(hash common.Hash) (*types.Header, error) {
	header := c.bc.GetHeaderByHash(hash)
	if header == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlockHash, hash)
	}
	c.bc.SetSafe(header)
	return header, nil
}

// InsertBlock validates the externally produced block exhaustively and adds
// it to the tree without moving the head; the head moves on the next
// fork-choice update.
func (c *Chain) InsertBlock(block *types.Block) error {
	_, err := c.bc.InsertBlockWithoutSetHead(block, false)
	return err
}

func (c *Chain) CurrentHeader() *types.Header { return c.bc.CurrentBlock() }

func (c *Chain) GetHeaderByHash(hash common.Hash) *types.Header {
	return c.bc.GetHeaderByHash(hash)
}

func (c *Chain) GetBlockByHash(hash common.Hash) *types.Block {
	return c.bc.GetBlockByHash(hash)
}

func (c *Chain) GetBlockByNumber(number uint64) *types.Block {
	return c.bc.GetBlockByNumber(number)
}

// HeaderByNumberOrTag resolves an RPC block number, including the
// latest/safe/finalized/pending tags, against the canonical pointers.
func (c *Chain) HeaderByNumberOrTag(number rpc.BlockNumber) *types.Header {
	switch number {
	case rpc.PendingBlockNumber, rpc.LatestBlockNumber:
		return c.bc.CurrentBlock()
	case rpc.SafeBlockNumber:
		return c.bc.CurrentSafeBlock()
	case rpc.FinalizedBlockNumber:
		return c.bc.CurrentFinalBlock()
	case rpc.EarliestBlockNumber:
		return c.bc.GetHeaderByNumber(0)
	default:
		return c.bc.GetHeaderByNumber(uint64(number))
	}
}

// LatestState returns the mutable-snapshot view of the canonical head state.
func (c *Chain) LatestState() (*state.StateDB, error) {
	return c.bc.StateAt(c.bc.CurrentBlock().Root)
}

// StateAt opens the state committed by the block with the given root.
func (c *Chain) StateAt(root common.Hash) (*state.StateDB, error) {
	return c.bc.StateAt(root)
}

// StateByNumberOrHash resolves a state snapshot for the Eth-API read path.
func (c *Chain) StateByNumberOrHash(blockNrOrHash rpc.BlockNumberOrHash) (*state.StateDB, error) {
	var header *types.Header
	if hash, ok := blockNrOrHash.Hash(); ok {
		header = c.bc.GetHeaderByHash(hash)
	} else if number, ok := blockNrOrHash.Number(); ok {
		header = c.HeaderByNumberOrTag(number)
	} else {
		header = c.bc.CurrentBlock()
	}
	if header == nil {
		return nil, ErrUnknownBlockHash
	}
	return c.bc.StateAt(header.Root)
}

// ReadTransaction returns a mined transaction with its inclusion metadata.
func (c *Chain) ReadTransaction(hash common.Hash) (*types.Transaction, common.Hash, uint64, uint64) {
	return rawdb.ReadTransaction(c.db, hash)
}

// ReadReceipt returns the receipt of a mined transaction together with the
// block it was included in, with derived fields populated.
func (c *Chain) ReadReceipt(hash common.Hash) (*types.Receipt, *types.Header) {
	tx, blockHash, blockNumber, index := rawdb.ReadTransaction(c.db, hash)
	if tx == nil {
		return nil, nil
	}
	header := c.bc.GetHeaderByHash(blockHash)
	if header == nil {
		return nil, nil
	}
	receipts := rawdb.ReadReceipts(c.db, blockHash, blockNumber, header.Time, c.bc.Config())
	if uint64(len(receipts)) <= index {
		return nil, nil
	}
	return receipts[index], header
}
