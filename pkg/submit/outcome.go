package submit

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind tags the variant of an Outcome.
type Kind int

const (
	Committed Kind = iota
	ProposalRejected
	OrderingRejected
	ValidationRejected
	TimedOut
	InvalidRequest
	OrderingTransportError
	EventTransportError
)

var kindNames = map[Kind]string{
	Committed:              "Committed",
	ProposalRejected:       "ProposalRejected",
	OrderingRejected:       "OrderingRejected",
	ValidationRejected:     "ValidationRejected",
	TimedOut:               "TimedOut",
	InvalidRequest:         "InvalidRequest",
	OrderingTransportError: "OrderingTransportError",
	EventTransportError:    "EventTransportError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrProposalRejected     = errors.New("proposal rejected")
	ErrOrderingRejected     = errors.New("ordering rejected")
	ErrValidationRejected   = errors.New("validation rejected")
	ErrTimedOut             = errors.New("timed out waiting for commit")
	ErrOrderingTransport    = errors.New("ordering transport error")
	ErrEventTransport       = errors.New("event transport error")
	ErrEndorsementTransport = errors.New("endorsement transport error")
)

var kindErrors = map[Kind]error{
	ProposalRejected:       ErrProposalRejected,
	OrderingRejected:       ErrOrderingRejected,
	ValidationRejected:     ErrValidationRejected,
	TimedOut:               ErrTimedOut,
	InvalidRequest:         ErrInvalidRequest,
	OrderingTransportError: ErrOrderingTransport,
	EventTransportError:    ErrEventTransport,
}

// Outcome is the single result of one submission attempt.
//
// Code carries the ordering status for OrderingRejected and the validation
// code for ValidationRejected. TimedOut is indeterminate: the transaction may
// still have committed, and the caller must check the ledger before retrying.
type Outcome struct {
	Kind     Kind
	TxID     string
	Reason   string
	Code     string
	State    State
	Timeline Timeline
}

// Err returns nil for Committed and a sentinel-wrapping error otherwise.
func (o Outcome) Err() error {
	if o.Kind == Committed {
		return nil
	}
	sentinel, ok := kindErrors[o.Kind]
	if !ok {
		return errors.Errorf("unknown outcome %s", o.Kind)
	}
	if o.Reason == "" {
		return sentinel
	}
	return errors.WithMessage(sentinel, o.Reason)
}

// Indeterminate reports whether the final ledger state is unknown.
func (o Outcome) Indeterminate() bool {
	return o.Kind == TimedOut
}

func (o Outcome) String() string {
	switch o.Kind {
	case Committed:
		return fmt.Sprintf("Committed(%s)", o.TxID)
	case ValidationRejected, OrderingRejected:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Code)
	case TimedOut:
		return "TimedOut"
	default:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
	}
}
