package entity

type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

type FailureKind string

const (
	FailureMalformed  FailureKind = "malformed"
	FailureProcessing FailureKind = "processing"
)

// Outcome is the result of handling one delivery. The consumer maps it to
// ack or nack; nothing else about the pipeline leaks to the broker.
type Outcome struct {
	Status   OutcomeStatus
	Reason   string
	Decision *Decision
	Kind     FailureKind
	Err      error
}

func Succeeded(d Decision) Outcome {
	return Outcome{Status: OutcomeSucceeded, Decision: &d}
}

func Skipped(reason string) Outcome {
	return Outcome{Status: OutcomeSkipped, Reason: reason}
}

func Failed(kind FailureKind, err error) Outcome {
	o := Outcome{Status: OutcomeFailed, Kind: kind, Err: err}
	if err != nil {
		o.Reason = err.Error()
	}
	return o
}
