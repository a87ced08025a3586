package infra

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// NewRegistry returns a registry carrying the process and runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// MetricsServer serves /metrics while a bench runs.
type MetricsServer struct {
	server *http.Server
	logger *log.Logger
}

func ServeMetrics(address string, gatherer prometheus.Gatherer, logger *log.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s := &MetricsServer{
		server: &http.Server{Addr: address, Handler: mux},
		logger: logger,
	}
	go func() {
		logger.Infof("Serving metrics on %s", address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Metrics server stopped: %v", err)
		}
	}()
	return s
}

func (s *MetricsServer) Close(ctx context.Context) {
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Debugf("Fail to shut down metrics server: %v", err)
	}
}

// Progress counts finished and committed transactions of a running bench.
type Progress struct {
	finished  int32
	committed int32
}

func (p *Progress) add(committed bool) int32 {
	if committed {
		atomic.AddInt32(&p.committed, 1)
	}
	return atomic.AddInt32(&p.finished, 1)
}

func (p *Progress) Finished() int32 {
	return atomic.LoadInt32(&p.finished)
}

func (p *Progress) Committed() int32 {
	return atomic.LoadInt32(&p.committed)
}
