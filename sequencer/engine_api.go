package sequencer

import (
	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
)

// EngineAPI exposes the authenticated engine namespace consumed by the
// consensus-layer driver.
type EngineAPI struct {
	eng *Engine
}

func NewEngineAPI(eng *Engine) *EngineAPI {
	return &EngineAPI{eng: eng}
}

func (api *EngineAPI) ForkchoiceUpdatedV3(update engine.ForkchoiceStateV1, attrs *engine.PayloadAttributes) (engine.ForkChoiceResponse, error) {
	return api.eng.ForkchoiceUpdated(update, attrs)
}

func (api *EngineAPI) NewPayloadV3(payload engine.ExecutableData, versionedHashes []common.Hash, beaconRoot common.Hash) (engine.PayloadStatusV1, error) {
	return api.eng.NewPayload(payload, versionedHashes, beaconRoot)
}

func (api *EngineAPI) GetPayloadV3(payloadID engine.PayloadID) (*engine.ExecutionPayloadEnvelope, error) {
	return api.eng.GetPayload(payloadID)
}
