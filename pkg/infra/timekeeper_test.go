package infra

import (
	"strings"
	"testing"
	"time"

	"github.com/osdi23p228/txcommit/pkg/submit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2022, 12, 18, 0, 0, 0, 0, time.UTC)

func committedAfter(txID string, total time.Duration) submit.Outcome {
	return submit.Outcome{
		Kind: submit.Committed,
		TxID: txID,
		Timeline: submit.Timeline{
			Proposed:     epoch,
			Endorsed:     epoch.Add(total / 4),
			Broadcast:    epoch.Add(total / 2),
			Acknowledged: epoch.Add(total / 2),
			Observed:     epoch.Add(total),
		},
	}
}

func TestTimeKeepersPercentiles(t *testing.T) {
	tks := NewTimeKeepers(5)
	tks.keep(0, committedAfter("tx0", 400*time.Millisecond))
	tks.keep(1, committedAfter("tx1", 100*time.Millisecond))
	tks.keep(2, committedAfter("tx2", 300*time.Millisecond))
	tks.keep(3, committedAfter("tx3", 200*time.Millisecond))
	tks.keep(4, submit.Outcome{Kind: submit.TimedOut, TxID: "tx4", Timeline: submit.Timeline{Proposed: epoch}})

	assert.InDelta(t, 0.1, tks.getCommitLatencyOfPercentile(0), 1e-9)
	assert.InDelta(t, 0.3, tks.getCommitLatencyOfPercentile(50), 1e-9)
	assert.InDelta(t, 0.4, tks.getCommitLatencyOfPercentile(100), 1e-9)
	assert.InDelta(t, 0.25, tks.getAverageTotalLatency(), 1e-9)
	assert.InDelta(t, 0.0625, tks.getAverageEndorseLatency(), 1e-9)
	assert.InDelta(t, 0.125, tks.getAverageOrderCommitLatency(), 1e-9)

	assert.Equal(t, 4, tks.count(submit.Committed))
	assert.Equal(t, 1, tks.count(submit.TimedOut))
}

func TestTimeKeepersEmpty(t *testing.T) {
	tks := NewTimeKeepers(3)
	assert.Zero(t, tks.getCommitLatencyOfPercentile(50))
	assert.Zero(t, tks.getAverageTotalLatency())
	assert.Zero(t, tks.count(submit.Committed))
}

func TestTimeKeeperLogLines(t *testing.T) {
	tks := NewTimeKeepers(2)

	lines := tks.keep(0, committedAfter("tx0", time.Second))
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Proposed"))
	assert.Contains(t, lines[3], "Observed")
	assert.True(t, strings.HasSuffix(lines[3], "tx0 VALID"))

	invalid := committedAfter("tx1", time.Second)
	invalid.Kind = submit.ValidationRejected
	invalid.Code = "MVCC_READ_CONFLICT"
	lines = tks.keep(1, invalid)
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], "tx1 MVCC_READ_CONFLICT"))

	lines = tks.keep(1, submit.Outcome{Kind: submit.ProposalRejected, TxID: "tx1", Timeline: submit.Timeline{Proposed: epoch}})
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], "tx1 ProposalRejected"))
}

func TestTimeKeepersReport(t *testing.T) {
	tks := NewTimeKeepers(4)
	tks.keep(0, committedAfter("tx0", time.Second))
	tks.keep(1, committedAfter("tx1", time.Second))
	tks.keep(2, committedAfter("tx2", time.Second))
	tks.keep(3, submit.Outcome{Kind: submit.OrderingRejected, TxID: "tx3", Code: "BAD_REQUEST"})

	report := strings.Join(tks.report(2*time.Second), "\n")
	assert.Contains(t, report, "ALL Transactions: 4")
	assert.Contains(t, report, "VALID Transactions: 3")
	assert.Contains(t, report, "ABORTED Transactions: 1")
	assert.Contains(t, report, "  OrderingRejected: 1")
	assert.Contains(t, report, "TPS: 2.000")
	assert.Contains(t, report, "Effective TPS: 1.500")
	assert.Contains(t, report, "Abort Rate: 25.000%")
	assert.Contains(t, report, "Commit Latency [50%]: 1.000s")
}
