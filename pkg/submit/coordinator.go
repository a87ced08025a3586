package submit

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Coordinator drives one transaction from proposal to a final Outcome.
type Coordinator struct {
	session SessionContext
}

// NewCoordinator checks the session and fills in defaults for the policy,
// commit timeout, clock and logger.
func NewCoordinator(session SessionContext) (*Coordinator, error) {
	if err := session.validate(); err != nil {
		return nil, err
	}
	return &Coordinator{session: session.withDefaults()}, nil
}

// Session returns the session the coordinator was built with.
func (c *Coordinator) Session() SessionContext {
	return c.session
}

type attempt struct {
	session  SessionContext
	logger   log.FieldLogger
	txID     string
	state    stateMachine
	timeline Timeline
}

func (a *attempt) advance(to State) {
	if err := a.state.advance(to); err != nil {
		a.logger.Error(err)
		return
	}
	a.logger.Debugf("Transaction entered state %s", to)
}

func (a *attempt) finish(kind Kind, reason, code string) Outcome {
	o := Outcome{
		Kind:     kind,
		TxID:     a.txID,
		Reason:   reason,
		Code:     code,
		State:    a.state.current,
		Timeline: a.timeline,
	}
	a.session.Metrics.observe(o)

	entry := a.logger.WithField("outcome", kind.String())
	switch kind {
	case Committed:
		entry.Info("The transaction has been committed")
	case TimedOut:
		entry.Warnf("The final state of the transaction is unknown: %s", reason)
	default:
		entry.Errorf("The transaction failed: %s", reason)
	}
	return o
}

// Submit proposes, endorses, orders and waits for the commit of req. It
// returns only once a terminal state is reached, and always returns exactly
// one Outcome; failures are reported in it, never raised.
//
// The commit subscription is acknowledged before the envelope is broadcast,
// and the envelope is only broadcast after the endorsement policy accepted
// the responses. Nothing is retried: a failed attempt needs a new Submit,
// which mints a new transaction id.
func (c *Coordinator) Submit(ctx context.Context, req Request) Outcome {
	clk := c.session.Clock
	a := &attempt{session: c.session, logger: c.session.Logger}

	proposal, err := BuildProposal(c.session, req)
	if err != nil {
		return a.finish(InvalidRequest, err.Error(), "")
	}
	a.txID = proposal.TxID.String()
	a.logger = c.session.Logger.WithField("txid", a.txID)
	a.advance(Proposed)
	a.timeline.Proposed = clk.Now()

	responses := CollectEndorsements(ctx, proposal)
	a.timeline.Endorsed = clk.Now()
	for _, r := range responses {
		if !r.Good() {
			a.logger.Warnf("Error processing proposal: %s", r.Problem())
		}
	}

	accepted, err := c.session.Policy.Evaluate(responses)
	if err != nil {
		a.advance(Rejected)
		return a.finish(ProposalRejected, err.Error(), "")
	}
	a.logger.Debugf("Transaction proposal was good under policy %s with %d endorsements", c.session.Policy, len(accepted))
	if c.session.CheckRWSet {
		logTXRWSet(a.logger, accepted)
	}

	endorsed, err := Integrate(proposal, accepted)
	if err != nil {
		a.advance(Rejected)
		return a.finish(ProposalRejected, err.Error(), "")
	}
	envelope, err := endorsed.Seal(c.session.Identity)
	if err != nil {
		a.advance(Rejected)
		return a.finish(ProposalRejected, err.Error(), "")
	}
	a.advance(Endorsed)

	waiter, err := Listen(ctx, c.session, proposal.TxID)
	if err != nil {
		a.advance(Rejected)
		return a.finish(EventTransportError, err.Error(), "")
	}
	a.timeline.Subscribed = waiter.SubscribedAt()

	a.advance(Submitted)
	a.timeline.Broadcast = clk.Now()
	ack, err := Broadcast(ctx, c.session.Orderer, envelope)
	a.timeline.Acknowledged = clk.Now()
	if err != nil {
		c.discard(waiter)
		a.advance(Rejected)
		return a.finish(OrderingTransportError, err.Error(), "")
	}
	if !ack.Success() {
		c.discard(waiter)
		a.advance(Rejected)
		reason := "Failed to order the transaction. Error code: " + ack.Status.String()
		if ack.Info != "" {
			reason += ", info: " + ack.Info
		}
		return a.finish(OrderingRejected, reason, ack.Status.String())
	}
	a.logger.Debug("Successfully sent transaction to the orderer")

	a.advance(AwaitingCommit)
	result := waiter.Wait()
	if result.Event != nil {
		a.timeline.Observed = result.At
	}

	switch {
	case result.TimedOut:
		a.advance(TimedOutState)
		return a.finish(TimedOut, "no commit event within "+c.session.CommitTimeout.String(), "")
	case result.Event == nil:
		a.advance(TimedOutState)
		return a.finish(TimedOut, result.Err.Error(), "")
	case !result.Event.Valid():
		a.advance(Rejected)
		code := result.Event.ValidationCode.String()
		return a.finish(ValidationRejected, "The transaction was invalid, code = "+code, code)
	}

	a.advance(CommittedState)
	return a.finish(Committed, "", "")
}

// discard tears the pending subscription down and waits for the waiter to
// resolve, so the attempt never returns with a live subscription.
func (c *Coordinator) discard(w *CommitWaiter) {
	w.Abort()
	w.Wait()
}
