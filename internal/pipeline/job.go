package pipeline

import (
	"time"

	"popgrid/pkg/domain"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// JobArgs is the payload of one aggregation run job submitted to River. The
// canonical params key doubles as the job's uniqueness key, so concurrent
// requests for the same combination set share a single job.
type JobArgs struct {
	// ParamsKey is the canonical string form of Params; it is the only field
	// River considers for uniqueness.
	ParamsKey string `json:"paramsKey" river:"unique"`
	// Params are the normalized run parameters the worker should execute.
	Params domain.RunParams `json:"params"`

	// maxAttempts configures how many times River retries the job.
	maxAttempts int
	// uniqueJobPeriod is the lookback window during which a job with the same
	// params key is considered a duplicate across the listed states.
	uniqueJobPeriod time.Duration
}

// Kind returns the River job kind used to register and dispatch the run worker.
func (args JobArgs) Kind() string { return "AggregationRunJob" }

// InsertOpts returns the River options controlling retries and uniqueness:
// at most one job per params key in any state within the lookback window.
func (args JobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: args.maxAttempts,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: args.uniqueJobPeriod,
			ByState: []rivertype.JobState{
				rivertype.JobStateAvailable,
				rivertype.JobStateCompleted,
				rivertype.JobStatePending,
				rivertype.JobStateRunning,
				rivertype.JobStateRetryable,
				rivertype.JobStateScheduled,
			},
		},
	}
}
