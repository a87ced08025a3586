package submit

import (
	"context"
	"fmt"
	"time"

	"github.com/osdi23p228/fabric-protos-go/common"
	"github.com/osdi23p228/fabric-protos-go/orderer"
	"github.com/osdi23p228/fabric-protos-go/peer"
	"github.com/osdi23p228/fabric/protoutil"
)

// IdentityContext signs on behalf of the client and mints transaction ids.
type IdentityContext interface {
	Sign(msg []byte) ([]byte, error)
	Serialize() ([]byte, error)
	NewTransactionID() (TransactionID, error)
}

// Endorser simulates and signs a proposal on one peer.
type Endorser interface {
	Address() string
	ProcessProposal(ctx context.Context, sp *peer.SignedProposal) (*peer.ProposalResponse, error)
}

// Orderer sends one envelope to the ordering service and returns its acknowledgment.
type Orderer interface {
	Broadcast(ctx context.Context, env *common.Envelope) (*orderer.BroadcastResponse, error)
}

// EventSource opens commit-event subscriptions filtered to one transaction.
// Subscribe must only return after the peer acknowledged the subscription.
type EventSource interface {
	Subscribe(ctx context.Context, txID string) (Subscription, error)
}

// Subscription delivers the commit event of one transaction. Events is closed
// when the stream ends. Close unregisters the filter and disconnects.
type Subscription interface {
	Events() <-chan CommitEvent
	Close() error
}

// TransactionID identifies a single submission attempt. It is never reused:
// a new attempt must mint a new one.
type TransactionID struct {
	id      string
	nonce   []byte
	creator []byte
}

// NewTransactionID derives the id from the nonce and the serialized creator
// the same way peers do.
func NewTransactionID(nonce, creator []byte) TransactionID {
	return TransactionID{
		id:      protoutil.ComputeTxID(nonce, creator),
		nonce:   nonce,
		creator: creator,
	}
}

func (t TransactionID) String() string  { return t.id }
func (t TransactionID) Nonce() []byte   { return t.nonce }
func (t TransactionID) Creator() []byte { return t.creator }
func (t TransactionID) IsZero() bool    { return t.id == "" }

// Request is what a caller asks to be invoked.
type Request struct {
	Channel   string            `json:"chainId"`
	Chaincode string            `json:"chaincodeId"`
	Version   string            `json:"version"`
	Fcn       string            `json:"fcn"`
	Args      []interface{}     `json:"args"`
	Targets   []string          `json:"targets"`
	Transient map[string]string `json:"transientMap"`
}

// ProposalResponse is the answer of one endorsing peer. Err is set when the
// peer could not be reached or returned nothing.
type ProposalResponse struct {
	Endorser string
	Response *peer.ProposalResponse
	Err      error
}

// Status returns the chaincode response status, or 0 if there is none.
func (r ProposalResponse) Status() int32 {
	if r.Response == nil || r.Response.Response == nil {
		return 0
	}
	return r.Response.Response.Status
}

// Good reports whether the peer endorsed with status 200.
func (r ProposalResponse) Good() bool {
	return r.Problem() == ""
}

// Problem describes why the response is not good, or returns "".
func (r ProposalResponse) Problem() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("endorser %s: %v", r.Endorser, r.Err)
	case r.Response == nil || r.Response.Response == nil:
		return fmt.Sprintf("endorser %s: empty response", r.Endorser)
	case r.Response.Response.Status != int32(common.Status_SUCCESS):
		return fmt.Sprintf("endorser %s: status %d, message %q", r.Endorser, r.Response.Response.Status, r.Response.Response.Message)
	case r.Response.Endorsement == nil:
		return fmt.Sprintf("endorser %s: missing endorsement", r.Endorser)
	}
	return ""
}

// CommitEvent reports the validation verdict for a transaction found in a block.
type CommitEvent struct {
	TxID           string
	ValidationCode peer.TxValidationCode
	BlockNumber    uint64
}

// Valid reports whether the transaction was committed.
func (e CommitEvent) Valid() bool {
	return e.ValidationCode == peer.TxValidationCode_VALID
}

// OrderingAck is the ordering service's answer to a broadcast.
type OrderingAck struct {
	Status common.Status
	Info   string
}

func (a OrderingAck) Success() bool {
	return a.Status == common.Status_SUCCESS
}

// Timeline keeps the moments one attempt went through each phase.
type Timeline struct {
	Proposed     time.Time
	Endorsed     time.Time
	Subscribed   time.Time
	Broadcast    time.Time
	Acknowledged time.Time
	Observed     time.Time
}

func (t Timeline) EndorseLatency() time.Duration {
	return since(t.Proposed, t.Endorsed)
}

func (t Timeline) OrderLatency() time.Duration {
	return since(t.Broadcast, t.Acknowledged)
}

func (t Timeline) CommitLatency() time.Duration {
	return since(t.Broadcast, t.Observed)
}

func (t Timeline) TotalLatency() time.Duration {
	return since(t.Proposed, t.Observed)
}

func since(from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from)
}
