package infra

import (
	"bufio"
	"context"
	"math"
	"os"
	"sync"
	"time"

	"github.com/osdi23p228/txcommit/pkg/submit"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	CH_MAX_CAPACITY = 1e4
)

// Submitter runs one submission attempt.
type Submitter interface {
	Submit(ctx context.Context, req submit.Request) submit.Outcome
}

// Process submits req TxNum times with at most Concurrency attempts in
// flight, throttled to Rate transactions per second. Every attempt mints a
// fresh transaction id. The per-transaction log goes to LogPath and the
// summary to ReportPath.
func Process(ctx context.Context, c *Config, s Submitter, req submit.Request, logger *log.Logger) (*Progress, error) {
	logFile, err := os.Create(c.LogPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create log file %s", c.LogPath)
	}
	defer logFile.Close()

	keepers := NewTimeKeepers(c.TxNum)
	progress := &Progress{}
	limiter := newLimiter(c)

	logCh := make(chan string, CH_MAX_CAPACITY)
	printWG := &sync.WaitGroup{}
	printWG.Add(1)
	go writeLog(logFile, logCh, printWG)

	ids := make(chan int)
	go func() {
		defer close(ids)
		for i := 0; i < c.TxNum; i++ {
			select {
			case ids <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Infof("Start sending %d transactions with concurrency %d", c.TxNum, c.Concurrency)
	startTime := time.Now()

	workers := &sync.WaitGroup{}
	for w := 0; w < c.Concurrency; w++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for id := range ids {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				outcome := s.Submit(ctx, req)
				for _, line := range keepers.keep(id, outcome) {
					logCh <- line
				}
				if n := progress.add(outcome.Kind == submit.Committed); n%100 == 0 {
					logger.Infof("%d transactions finished", n)
				}
			}
		}()
	}
	workers.Wait()
	duration := time.Since(startTime)

	close(logCh)
	printWG.Wait()

	if err := ctx.Err(); err != nil {
		return progress, errors.Wrap(err, "bench interrupted")
	}
	logger.Infof("Finish processing transactions")

	if err := writeReport(c.ReportPath, keepers.report(duration)); err != nil {
		return progress, err
	}
	return progress, nil
}

func newLimiter(c *Config) *rate.Limiter {
	if c.Rate == 0 {
		return rate.NewLimiter(rate.Inf, math.MaxInt32)
	}
	return rate.NewLimiter(rate.Limit(c.Rate), c.Burst)
}

func writeLog(f *os.File, logCh <-chan string, printWG *sync.WaitGroup) {
	defer printWG.Done()

	w := bufio.NewWriter(f)
	defer w.Flush()
	for s := range logCh {
		w.WriteString(s + "\n")
	}
}

func writeReport(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create report file %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.WriteString(line + "\n")
	}
	return errors.Wrapf(w.Flush(), "failed to write report file %s", path)
}
