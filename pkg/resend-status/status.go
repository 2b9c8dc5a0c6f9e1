package resendstatus

import (
	"fmt"
	"strconv"
)

// HeaderName is the response header the status is reported in.
const HeaderName = "Resend-Status"

type State string

const (
	// There was no stored response for the dependent request.
	StateNoPrior State = "no-prior"

	// The stored response was fresh according to the policy.
	StateFresh State = "fresh"

	// The stored response was stale according to the policy.
	StateStale State = "stale"
)

type Action string

const (
	// The stored response (if any) was used as is.
	ActionReuse Action = "reuse"

	// The dependent request was sent again.
	ActionResend Action = "resend"

	// The request should have been sent again, but was not.
	ActionSkip Action = "skip"
)

type SkipReason string

const (
	// The dependent request is already being sent higher up in the chain.
	SkipReasonCycle SkipReason = "cycle"

	// The evaluation is not a real send, e.g. a preview.
	SkipReasonPurpose SkipReason = "purpose"

	// There is nothing to send the request with.
	SkipReasonNoTransport SkipReason = "no-transport"
)

// Status describes how a dependent request's response was obtained.
type Status struct {
	State      State
	Action     Action
	SkipReason SkipReason
	// Whether a response was available after the action.
	HasResponse bool
	// Age in seconds of the response used.
	Age float64
}

// New returns a status starting in the given state with the reuse action.
func New(state State) Status {
	return Status{State: state, Action: ActionReuse}
}

func (s *Status) Resend() {
	s.Action = ActionResend
}

func (s *Status) Skip(reason SkipReason) {
	s.Action = ActionSkip
	s.SkipReason = reason
}

// Response records the response finally used, with its age in seconds.
func (s *Status) Response(age float64) {
	s.HasResponse = true
	s.Age = age
}

func (s Status) String() string {
	status := fmt.Sprintf("Cookie-Chain; %s; %s", s.State, s.Action)
	if s.Action == ActionSkip && s.SkipReason != "" {
		status = fmt.Sprintf("%s=%s", status, s.SkipReason)
	}
	if s.HasResponse {
		status = status + "; age=" + strconv.FormatFloat(s.Age, 'f', -1, 64)
	} else {
		status = status + "; no-response"
	}
	return status
}
