package sequencer

import (
	"time"

	"github.com/ethereum/go-ethereum/metrics"
)

// metrics
var (
	// Pool cardinalities
	poolScheduledGauge = metrics.NewRegisteredGauge("sequencer/txpool/scheduled", nil)
	poolPendingGauge   = metrics.NewRegisteredGauge("sequencer/txpool/pending", nil)

	// Pool traffic
	poolAcceptedMeter = metrics.NewRegisteredMeter("sequencer/txpool/accepted", nil)
	poolRejectedMeter = metrics.NewRegisteredMeter("sequencer/txpool/rejected", nil)

	// Builder traffic
	builderActiveGauge = metrics.NewRegisteredGauge("sequencer/payload/active", nil)
	builderTxIncluded  = metrics.NewRegisteredMeter("sequencer/payload/tx/included", nil)
	builderTxSkipped   = metrics.NewRegisteredMeter("sequencer/payload/tx/skipped", nil)
	builderSealTimer   = metrics.NewRegisteredTimer("sequencer/payload/seal", nil)
	forkchoiceTimer    = metrics.NewRegisteredTimer("sequencer/forkchoice", nil)
	newPayloadTimer    = metrics.NewRegisteredTimer("sequencer/newpayload", nil)
	sendRawTxTimer     = metrics.NewRegisteredTimer("sequencer/sendrawtx", nil)
)

func metricsPoolSize(scheduled, pending int) {
	poolScheduledGauge.Update(int64(scheduled))
	poolPendingGauge.Update(int64(pending))
}

func metricsSealCost(start time.Time) {
	builderSealTimer.Update(time.Since(start))
}

func metricsForkchoiceCost(start time.Time) {
	forkchoiceTimer.Update(time.Since(start))
}

func metricsNewPayloadCost(start time.Time) {
	newPayloadTimer.Update(time.Since(start))
}

func metricsSendRawTxCost(start time.Time) {
	sendRawTxTimer.Update(time.Since(start))
}
