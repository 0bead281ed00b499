package transcribe

// OutcomeStatus is the terminal (or handed-off) disposition of one
// submission.
type OutcomeStatus string

const (
	// StatusCompleted carries transcribed text.
	StatusCompleted OutcomeStatus = "completed"
	// StatusDeferred means the service accepted the audio as a background
	// job; the caller owns polling it to a terminal outcome.
	StatusDeferred OutcomeStatus = "deferred"
	// StatusFailed is terminal: retries exhausted or the server rejected
	// the request outright.
	StatusFailed OutcomeStatus = "failed"
	// StatusPollTimeout means the polling attempt budget ran out without a
	// terminal job state. The job may still complete server-side; this is
	// reported as "check back later", never retried as a submission failure.
	StatusPollTimeout OutcomeStatus = "poll_timeout"
)

// Outcome is the result of a submission or of polling a deferred job.
type Outcome struct {
	Status OutcomeStatus
	Text   string
	JobID  string
	Err    error
}

func (o Outcome) Terminal() bool {
	return o.Status != StatusDeferred
}
