package sequencer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BuiltPayload is the immutable result of a sealed build: the block, the
// miner fees it earned and the attributes it originated from.
type BuiltPayload struct {
	ID         engine.PayloadID
	Block      *types.Block
	Fees       *big.Int
	Sidecars   []*types.BlobTxSidecar
	Attributes *BuildPayloadArgs
}

// EnvelopeV3 produces the getPayload response for the consensus layer. The
// parent beacon block root is echoed from the attributes when Cancun is
// active and zero otherwise.
func (p *BuiltPayload) EnvelopeV3(cancunActive bool) *engine.ExecutionPayloadEnvelope {
	envelope := engine.BlockToExecutableData(p.Block, p.Fees, p.Sidecars, nil)
	envelope.Override = false
	beaconRoot := common.Hash{}
	if cancunActive && p.Attributes.BeaconRoot != nil {
		beaconRoot = *p.Attributes.BeaconRoot
	}
	envelope.ParentBeaconBlockRoot = &beaconRoot
	return envelope
}
