package engine

import "github.com/omitech/livetalk/internal/signal"

// OutgoingStatus is the lifecycle of a call this participant initiated toward
// a specific named target.
type OutgoingStatus int

const (
	OutgoingCalling OutgoingStatus = iota
	OutgoingAccepted
	OutgoingRejected
	OutgoingTimedOut
)

func (s OutgoingStatus) String() string {
	switch s {
	case OutgoingCalling:
		return "calling"
	case OutgoingAccepted:
		return "accepted"
	case OutgoingRejected:
		return "rejected"
	case OutgoingTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// RejectReason distinguishes why an outgoing call ended without connecting.
// The cleanup path is identical for all of them.
type RejectReason int

const (
	ReasonNone RejectReason = iota
	ReasonDeclined
	ReasonNotFound
	ReasonBusy
)

func (r RejectReason) String() string {
	switch r {
	case ReasonDeclined:
		return "declined"
	case ReasonNotFound:
		return "not found"
	case ReasonBusy:
		return "busy"
	default:
		return ""
	}
}

// OutgoingCall tracks one directed call attempt. TargetID is learned from the
// dispatch acknowledgement; until then only the phone number is known.
type OutgoingCall struct {
	TargetID    string
	TargetPhone string
	TargetName  string
	CallType    signal.CallType
	Status      OutgoingStatus
	Reason      RejectReason
}

func (o *OutgoingCall) terminal() bool {
	return o.Status == OutgoingRejected || o.Status == OutgoingTimedOut
}
