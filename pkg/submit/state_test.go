package submit

import (
	"testing"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(Unproposed, Proposed))
	assert.True(t, CanTransition(Proposed, Rejected))
	assert.True(t, CanTransition(AwaitingCommit, TimedOutState))
	assert.False(t, CanTransition(Proposed, Submitted), "endorsement cannot be skipped")
	assert.False(t, CanTransition(Submitted, Proposed))
	assert.False(t, CanTransition(Endorsed, TimedOutState))

	for _, s := range []State{CommittedState, Rejected, TimedOutState} {
		assert.True(t, s.Terminal(), s.String())
	}
	for _, s := range []State{Unproposed, Proposed, Endorsed, Submitted, AwaitingCommit} {
		assert.False(t, s.Terminal(), s.String())
	}
}

func TestStateMachineNeverRevisits(t *testing.T) {
	m := &stateMachine{}
	for _, to := range []State{Proposed, Endorsed, Submitted, AwaitingCommit, CommittedState} {
		require.NoError(t, m.advance(to))
	}
	assert.Equal(t, []State{Unproposed, Proposed, Endorsed, Submitted, AwaitingCommit}, m.history)

	err := m.advance(AwaitingCommit)
	assert.EqualError(t, err, "illegal submission state transition COMMITTED -> AWAITING_COMMIT")
	assert.Equal(t, CommittedState, m.current)
	assert.Len(t, m.history, 5)
}

func TestAttemptLogsIllegalTransition(t *testing.T) {
	logger, hook := test.NewNullLogger()
	a := &attempt{logger: logger}

	assert.NotPanics(t, func() { a.advance(CommittedState) })
	assert.Equal(t, Unproposed, a.state.current)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, log.ErrorLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "UNPROPOSED -> COMMITTED")
}

func TestOutcomeErr(t *testing.T) {
	assert.NoError(t, Outcome{Kind: Committed}.Err())

	err := Outcome{Kind: ValidationRejected, Reason: "The transaction was invalid, code = MVCC_READ_CONFLICT"}.Err()
	assert.True(t, errors.Is(err, ErrValidationRejected))
	assert.EqualError(t, err, "The transaction was invalid, code = MVCC_READ_CONFLICT: validation rejected")

	assert.Equal(t, ErrTimedOut, Outcome{Kind: TimedOut}.Err())
	assert.Equal(t, "Kind(42)", Kind(42).String())
	assert.Equal(t, "TIMED_OUT", TimedOutState.String())
}
