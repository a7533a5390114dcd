package pipeline

import (
	"go.chromium.org/luci/common/tsmon/distribution"
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"
	"go.chromium.org/luci/common/tsmon/types"
)

var (
	submittedCounter = metric.NewCounter(
		"batchpipe/intake/submitted",
		"Count of batches offered to the pipeline",
		nil,
		field.String("type"),   // notify | append | history-sync | other
		field.String("result"), // accepted | not_mounted | invalid | queue_full | defect
	)

	pendingGauge = metric.NewInt(
		"batchpipe/intake/pending",
		"Number of batches waiting in the intake queue",
		nil,
	)

	inFlightGauge = metric.NewInt(
		"batchpipe/dispatcher/in_flight",
		"Number of batches currently occupying a dispatch slot",
		nil,
	)

	defectCounter = metric.NewCounter(
		"batchpipe/dispatcher/defects",
		"Count of errors that escaped the dispatcher's failure isolation",
		nil,
	)

	attemptCounter = metric.NewCounter(
		"batchpipe/invoker/attempts",
		"Count of handler calls, including retries",
		nil,
		field.String("result"), // success | failure
	)

	outcomeCounter = metric.NewCounter(
		"batchpipe/invoker/outcomes",
		"Count of terminal batch outcomes",
		nil,
		field.String("result"), // success | failure | cancel
	)

	durationMS = metric.NewCumulativeDistribution(
		"batchpipe/invoker/duration",
		"Time from first handler call to terminal outcome",
		&types.MetricMetadata{Units: types.Milliseconds},
		distribution.DefaultBucketer,
		field.String("result"), // success | failure | cancel
	)
)
