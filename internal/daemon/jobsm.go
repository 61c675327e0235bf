package daemon

import "github.com/dgbowl/tomato/internal/tomato"

// jobTransitions encodes the job status machine from spec §4.1:
// q -> qw -> r -> {c, cd, ce}; r -> rd -> cd; q -> cd.
var jobTransitions = map[tomato.JobStatus]map[tomato.JobStatus]bool{
	tomato.JobQueued: {
		tomato.JobQueuedMatched: true,
		tomato.JobCancelled:     true,
	},
	tomato.JobQueuedMatched: {
		tomato.JobRunning:   true,
		tomato.JobCancelled: true,
	},
	tomato.JobRunning: {
		tomato.JobCompleted:       true,
		tomato.JobCompletedErrors: true,
		tomato.JobRunDeleteReq:    true,
	},
	tomato.JobRunDeleteReq: {
		tomato.JobCancelled: true,
	},
}

// validJobTransition reports whether moving a job from `from` to `to` is
// legal. Setting a job to its current status is always legal (no-op
// writes of other fields must not be rejected just because status is
// repeated in params).
func validJobTransition(from, to tomato.JobStatus) bool {
	if from == to {
		return true
	}
	allowed, ok := jobTransitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}
