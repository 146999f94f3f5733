package sequencer

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// BuildPayloadArgs contains the parameters for building a payload, derived
// from the fork-choice state and the consensus-supplied payload attributes.
type BuildPayloadArgs struct {
	Parent       common.Hash       // The parent block to build payload on top
	Timestamp    uint64            // The provided timestamp of generated payload
	FeeRecipient common.Address    // The provided recipient address for collecting transaction fee
	Random       common.Hash       // The provided randomness value
	Withdrawals  types.Withdrawals // The provided withdrawals
	BeaconRoot   *common.Hash      // The provided beaconRoot (Cancun)

	NoTxPool     bool                 // The consensus no-tx-pool flag; it enters the id only and does not stop pool draining
	Transactions []*types.Transaction // Txs forced into the block via the engine API
	GasLimit     *uint64              // Override gas limit of the block to build
}

// newBuildPayloadArgs decodes consensus payload attributes into builder
// arguments. Any undecodable forced transaction fails the whole derivation.
func newBuildPayloadArgs(parent common.Hash, attrs *engine.PayloadAttributes) (*BuildPayloadArgs, error) {
	txs := make([]*types.Transaction, 0, len(attrs.Transactions))
	for i, encoded := range attrs.Transactions {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(encoded); err != nil {
			return nil, invalidParamsf("transaction %d: %v", i, err)
		}
		txs = append(txs, tx)
	}
	return &BuildPayloadArgs{
		Parent:       parent,
		Timestamp:    attrs.Timestamp,
		FeeRecipient: attrs.SuggestedFeeRecipient,
		Random:       attrs.Random,
		Withdrawals:  attrs.Withdrawals,
		BeaconRoot:   attrs.BeaconRoot,
		NoTxPool:     attrs.NoTxPool,
		Transactions: txs,
		GasLimit:     attrs.GasLimit,
	}, nil
}

// Id computes an 8-byte identifier by hashing the components of the payload
// arguments. The derivation is a pure function of its inputs, so the same
// fork-choice update always names the same build.
func (args *BuildPayloadArgs) Id() engine.PayloadID {
	hasher := sha256.New()
	hasher.Write(args.Parent[:])
	binary.Write(hasher, binary.BigEndian, args.Timestamp)
	hasher.Write(args.Random[:])
	hasher.Write(args.FeeRecipient[:])
	if args.Withdrawals != nil {
		rlp.Encode(hasher, args.Withdrawals)
	}
	if args.BeaconRoot != nil {
		hasher.Write(args.BeaconRoot[:])
	}
	if args.NoTxPool || len(args.Transactions) > 0 {
		binary.Write(hasher, binary.BigEndian, args.NoTxPool)
		binary.Write(hasher, binary.BigEndian, uint64(len(args.Transactions)))
		for _, tx := range args.Transactions {
			h := tx.Hash()
			hasher.Write(h[:])
		}
	}
	if args.GasLimit != nil {
		binary.Write(hasher, binary.BigEndian, *args.GasLimit)
	}
	var out engine.PayloadID
	copy(out[:], hasher.Sum(nil)[:8])
	return out
}
