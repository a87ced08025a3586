package submit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var errEventStreamClosed = errors.New("event stream closed before the commit event arrived")

// CommitResult is how a CommitWaiter resolved. Exactly one of Event,
// TimedOut and Aborted describes it; Err explains a lost stream or abort.
type CommitResult struct {
	Event    *CommitEvent
	TimedOut bool
	Aborted  bool
	Err      error
	At       time.Time
}

// CommitWaiter waits for the commit event of one transaction. It resolves
// exactly once, and tears its subscription down when it does.
type CommitWaiter struct {
	txID         string
	sub          Subscription
	timer        *clock.Timer
	clock        clock.Clock
	logger       log.FieldLogger
	subscribedAt time.Time

	abort     chan struct{}
	abortOnce sync.Once
	done      chan struct{}
	result    CommitResult
}

// Listen subscribes to commit events for txID and arms the commit deadline.
// It returns after the subscription was acknowledged, so a broadcast issued
// afterwards cannot commit unobserved.
func Listen(ctx context.Context, session SessionContext, txID TransactionID) (*CommitWaiter, error) {
	session = session.withDefaults()

	sub, err := session.Events.Subscribe(ctx, txID.String())
	if err != nil {
		return nil, errors.WithMessage(ErrEventTransport, err.Error())
	}

	w := &CommitWaiter{
		txID:         txID.String(),
		sub:          sub,
		timer:        session.Clock.Timer(session.CommitTimeout),
		clock:        session.Clock,
		logger:       session.Logger.WithField("txid", txID.String()),
		subscribedAt: session.Clock.Now(),
		abort:        make(chan struct{}),
		done:         make(chan struct{}),
	}
	go w.run(ctx)

	return w, nil
}

// SubscribedAt is when the subscription was acknowledged.
func (w *CommitWaiter) SubscribedAt() time.Time {
	return w.subscribedAt
}

// Done is closed once the waiter resolved and released its subscription.
func (w *CommitWaiter) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the waiter resolved.
func (w *CommitWaiter) Wait() CommitResult {
	<-w.done
	return w.result
}

// Abort resolves a pending waiter as aborted. It is a no-op once resolved.
func (w *CommitWaiter) Abort() {
	w.abortOnce.Do(func() { close(w.abort) })
}

func (w *CommitWaiter) run(ctx context.Context) {
	w.result = w.await(ctx)
	w.result.At = w.clock.Now()
	w.teardown()
	close(w.done)
}

func (w *CommitWaiter) await(ctx context.Context) CommitResult {
	events := w.sub.Events()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return CommitResult{Err: errEventStreamClosed}
			}
			if event.TxID != w.txID {
				w.logger.Debugf("Ignore commit event of transaction %s", event.TxID)
				continue
			}
			return CommitResult{Event: &event}
		case <-w.timer.C:
			return CommitResult{TimedOut: true}
		case <-w.abort:
			return CommitResult{Aborted: true, Err: errors.New("commit wait aborted")}
		case <-ctx.Done():
			return CommitResult{Aborted: true, Err: ctx.Err()}
		}
	}
}

func (w *CommitWaiter) teardown() {
	w.timer.Stop()
	if err := w.sub.Close(); err != nil {
		w.logger.Warnf("Fail to close commit subscription: %v", err)
	}
}
