package infra

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/osdi23p228/txcommit/pkg/submit"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	calls    int32
	inflight int32
	peak     int32
}

func (f *fakeSubmitter) Submit(ctx context.Context, req submit.Request) submit.Outcome {
	n := atomic.AddInt32(&f.calls, 1)
	cur := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)

	f.mu.Lock()
	if cur > f.peak {
		f.peak = cur
	}
	f.mu.Unlock()
	time.Sleep(5 * time.Millisecond)

	txID := "tx" + string(rune('a'+n%26))
	if n%4 == 0 {
		return submit.Outcome{Kind: submit.ValidationRejected, TxID: txID, Code: "MVCC_READ_CONFLICT"}
	}
	return committedAfter(txID, 10*time.Millisecond)
}

func benchConfig(t *testing.T) *Config {
	dir := t.TempDir()
	return &Config{
		TxNum:       8,
		Concurrency: 2,
		Burst:       2,
		LogPath:     filepath.Join(dir, "log.transactions"),
		ReportPath:  filepath.Join(dir, "report.txt"),
	}
}

func TestProcess(t *testing.T) {
	c := benchConfig(t)
	s := &fakeSubmitter{}
	logger, _ := test.NewNullLogger()

	progress, err := Process(context.Background(), c, s, submit.Request{Fcn: "CreateAsset"}, logger)
	require.NoError(t, err)

	assert.EqualValues(t, 8, s.calls)
	assert.LessOrEqual(t, s.peak, int32(2))
	assert.EqualValues(t, 8, progress.Finished())
	assert.EqualValues(t, 6, progress.Committed())

	report, err := os.ReadFile(c.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(report), "ALL Transactions: 8")
	assert.Contains(t, string(report), "VALID Transactions: 6")
	assert.Contains(t, string(report), "  ValidationRejected: 2")

	log, err := os.ReadFile(c.LogPath)
	require.NoError(t, err)
	assert.Equal(t, 6, strings.Count(string(log), "Observed"))
	assert.Equal(t, 2, strings.Count(string(log), "Failed"))
}

func TestProcessRateLimited(t *testing.T) {
	c := benchConfig(t)
	c.TxNum = 4
	c.Rate = 20
	c.Burst = 1
	logger, _ := test.NewNullLogger()

	start := time.Now()
	_, err := Process(context.Background(), c, &fakeSubmitter{}, submit.Request{}, logger)
	require.NoError(t, err)

	// 4 tokens at 20/s with a burst of 1 take at least 150ms
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}

func TestProcessCancelled(t *testing.T) {
	c := benchConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger, _ := test.NewNullLogger()

	_, err := Process(ctx, c, &fakeSubmitter{}, submit.Request{}, logger)
	assert.Error(t, err)
	_, statErr := os.Stat(c.ReportPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestProcessUnwritableLog(t *testing.T) {
	c := benchConfig(t)
	c.LogPath = filepath.Join(t.TempDir(), "missing", "log.transactions")
	logger, _ := test.NewNullLogger()

	_, err := Process(context.Background(), c, &fakeSubmitter{}, submit.Request{}, logger)
	assert.Error(t, err)
}
