package infra

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/osdi23p228/txcommit/pkg/submit"
)

// TimeKeepers records the outcome of every transaction of a bench run.
type TimeKeepers struct {
	mu                  sync.Mutex
	transactions        []*TimeKeeper
	commitLatencySorted []time.Duration
}

type TimeKeeper struct {
	TxID     string
	Kind     submit.Kind
	Code     string
	Timeline submit.Timeline

	done bool
}

func NewTimeKeepers(txNum int) *TimeKeepers {
	tks := &TimeKeepers{
		transactions: make([]*TimeKeeper, txNum),
	}
	for i := range tks.transactions {
		tks.transactions[i] = &TimeKeeper{}
	}
	return tks
}

// keep stores the outcome of transaction id and returns its log lines:
//
//	Proposed: timestamp id txid
//	Endorsed: timestamp id txid
//	Broadcast: timestamp id txid
//	Observed: timestamp id txid [VALID/MVCC_READ_CONFLICT/...]
//	Failed: timestamp id txid kind
func (tks *TimeKeepers) keep(id int, o submit.Outcome) []string {
	tks.mu.Lock()
	tk := tks.transactions[id]
	tk.TxID = o.TxID
	tk.Kind = o.Kind
	tk.Code = o.Code
	tk.Timeline = o.Timeline
	tk.done = true
	tks.commitLatencySorted = nil
	tks.mu.Unlock()

	var lines []string
	stamp := func(label string, t time.Time, extra string) {
		if t.IsZero() {
			return
		}
		line := fmt.Sprintf("%-10s %d %4d %s", label, t.UnixNano(), id, o.TxID)
		if extra != "" {
			line += " " + extra
		}
		lines = append(lines, line)
	}

	t := o.Timeline
	stamp("Proposed", t.Proposed, "")
	stamp("Endorsed", t.Endorsed, "")
	stamp("Broadcast", t.Broadcast, "")
	switch {
	case !t.Observed.IsZero():
		code := o.Code
		if code == "" {
			code = "VALID"
		}
		stamp("Observed", t.Observed, code)
	default:
		lines = append(lines, fmt.Sprintf("%-10s %d %4d %s %s", "Failed", time.Now().UnixNano(), id, o.TxID, o.Kind))
	}
	return lines
}

// count returns how many transactions ended with kind.
func (tks *TimeKeepers) count(kind submit.Kind) int {
	tks.mu.Lock()
	defer tks.mu.Unlock()

	n := 0
	for _, tk := range tks.transactions {
		if tk.done && tk.Kind == kind {
			n++
		}
	}
	return n
}

func (tks *TimeKeepers) getAverageTotalLatency() float64 {
	return tks.getAverageLatency(submit.Timeline.TotalLatency)
}

func (tks *TimeKeepers) getAverageEndorseLatency() float64 {
	return tks.getAverageLatency(submit.Timeline.EndorseLatency)
}

func (tks *TimeKeepers) getAverageOrderCommitLatency() float64 {
	return tks.getAverageLatency(submit.Timeline.CommitLatency)
}

// getAverageLatency averages over committed transactions only, in seconds.
func (tks *TimeKeepers) getAverageLatency(latency func(submit.Timeline) time.Duration) float64 {
	tks.mu.Lock()
	defer tks.mu.Unlock()

	var sum time.Duration
	n := 0
	for _, tk := range tks.transactions {
		if !tk.done || tk.Kind != submit.Committed {
			continue
		}
		sum += latency(tk.Timeline)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum.Seconds() / float64(n)
}

// getCommitLatencyOfPercentile returns the p-th percentile of the total
// latency of committed transactions, in seconds.
func (tks *TimeKeepers) getCommitLatencyOfPercentile(p int) float64 {
	tks.mu.Lock()
	defer tks.mu.Unlock()

	if tks.commitLatencySorted == nil {
		tks.sortCommitLatency()
	}
	n := len(tks.commitLatencySorted)
	if n == 0 {
		return 0
	}

	index := int(float64(p) / 100.0 * float64(n))
	if index < 0 {
		index = 0
	} else if index >= n {
		index = n - 1
	}

	return tks.commitLatencySorted[index].Seconds()
}

func (tks *TimeKeepers) sortCommitLatency() {
	tks.commitLatencySorted = make([]time.Duration, 0, len(tks.transactions))
	for _, tk := range tks.transactions {
		if tk.done && tk.Kind == submit.Committed {
			tks.commitLatencySorted = append(tks.commitLatencySorted, tk.Timeline.TotalLatency())
		}
	}
	sort.Slice(
		tks.commitLatencySorted,
		func(i, j int) bool {
			return tks.commitLatencySorted[i] < tks.commitLatencySorted[j]
		},
	)
}

// report renders the summary of a run that took duration.
func (tks *TimeKeepers) report(duration time.Duration) []string {
	total := len(tks.transactions)
	valid := tks.count(submit.Committed)
	aborted := total - valid
	seconds := duration.Seconds()

	var lines []string
	lines = append(lines,
		fmt.Sprintf("ALL Transactions: %d", total),
		fmt.Sprintf("VALID Transactions: %d", valid),
		fmt.Sprintf("ABORTED Transactions: %d", aborted),
	)
	for _, kind := range []submit.Kind{
		submit.ProposalRejected,
		submit.OrderingRejected,
		submit.ValidationRejected,
		submit.TimedOut,
		submit.InvalidRequest,
		submit.OrderingTransportError,
		submit.EventTransportError,
	} {
		if n := tks.count(kind); n > 0 {
			lines = append(lines, fmt.Sprintf("  %s: %d", kind, n))
		}
	}

	lines = append(lines, fmt.Sprintf("Duration: %.3fs", seconds))
	if seconds > 0 && total > 0 {
		lines = append(lines,
			fmt.Sprintf("TPS: %.3f", float64(total)/seconds),
			fmt.Sprintf("Effective TPS: %.3f", float64(valid)/seconds),
			fmt.Sprintf("Abort Rate: %.3f%%", float64(aborted)/float64(total)*100),
		)
	}
	lines = append(lines,
		fmt.Sprintf("Average Commit Latency: %.3fs", tks.getAverageTotalLatency()),
		fmt.Sprintf("Average Endorse Latency: %.3fs", tks.getAverageEndorseLatency()),
		fmt.Sprintf("Average Order&Commit Latency: %.3fs", tks.getAverageOrderCommitLatency()),
	)

	percentiles := []int{50, 55, 60, 65, 70, 75, 80, 85, 90, 91, 92, 93, 94, 95, 96, 97, 98, 99, 100}
	for _, i := range percentiles {
		lines = append(lines, fmt.Sprintf("Commit Latency [%d%%]: %.3fs", i, tks.getCommitLatencyOfPercentile(i)))
	}

	lines = append(lines, "id    endorse(ms) integrate(ms) order&commit(ms)")
	tks.mu.Lock()
	for i, tk := range tks.transactions {
		t := tk.Timeline
		lines = append(lines, fmt.Sprintf("%-5d %11.2f %13.2f %16.2f",
			i,
			milliseconds(t.EndorseLatency()),
			milliseconds(sinceOrZero(t.Endorsed, t.Broadcast)),
			milliseconds(t.CommitLatency()),
		))
	}
	tks.mu.Unlock()

	return lines
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func sinceOrZero(from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from)
}
