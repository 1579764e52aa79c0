package statscollector

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Port range the process-wide stats server is drawn from when no
// explicit port is configured.
const (
	minPort = 10593
	maxPort = 11593
)

// Server exposes the ingestion protocol over HTTP, routed with
// gorilla/mux: one route per verb. It never holds a reference back to
// the Controller — callers read accumulated stats from the Collector it
// wraps, which is a plain sink.
type Server struct {
	collector *Collector
	logger    *zap.Logger

	listener net.Listener
	http     *http.Server
	started  atomic.Bool
	gatherer prometheus.Gatherer

	wg sync.WaitGroup
}

// NewServer builds a Server around collector. It does not listen until
// Start is called.
func NewServer(collector *Collector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{collector: collector, logger: logger}
}

// MountMetrics arranges for Start to additionally serve gatherer (e.g.
// a controller.Controller's Registry) at /metrics. Must be called
// before Start; a no-op call with a nil gatherer clears any previously
// mounted one.
func (s *Server) MountMetrics(gatherer prometheus.Gatherer) {
	s.gatherer = gatherer
}

// Start begins listening and serving the ingestion protocol. If port is
// 0, a port is drawn uniformly from [minPort, maxPort). Start is
// idempotent: calling it again on an already-started Server is a no-op,
// since the server is started lazily and then runs for the rest of the
// process's lifetime.
func (s *Server) Start(port int) error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	if port == 0 {
		port = minPort + rand.Intn(maxPort-minPort)
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		s.started.Store(false)
		return fmt.Errorf("stats server listen: %w", err)
	}
	s.listener = ln

	router := mux.NewRouter()
	router.HandleFunc("/add_time", s.handleAddTime).Methods(http.MethodPost)
	router.HandleFunc("/add_reduce", s.handleAddReduce).Methods(http.MethodPost)
	router.HandleFunc("/add_mapper_time", s.handleAddMapperTime).Methods(http.MethodPost)
	router.HandleFunc("/add_reducer_time", s.handleAddReducerTime).Methods(http.MethodPost)
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	s.http = &http.Server{Handler: router}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("stats server stopped unexpectedly", zap.Error(err))
		}
	}()
	s.logger.Info("stats server started", zap.Int("port", s.Port()))
	return nil
}

// Stop shuts the server down. Safe to call on a Server that was never
// started.
func (s *Server) Stop(ctx context.Context) error {
	if !s.started.Load() || s.http == nil {
		return nil
	}
	err := s.http.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// Port returns the listener's bound port, or 0 if not started.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

type addTimeRequest struct {
	Stratum   string `json:"stratum"`
	RecordKey string `json:"recordKey"`
	Micros    int64  `json:"micros"`
}

func (s *Server) handleAddTime(w http.ResponseWriter, r *http.Request) {
	var req addTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.collector.AddTime(req.Stratum, req.RecordKey, req.Micros); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type addReduceRequest struct {
	Strata    []string  `json:"strata"`
	Values    []float64 `json:"values"`
	Variances []float64 `json:"variances"`
}

func (s *Server) handleAddReduce(w http.ResponseWriter, r *http.Request) {
	var req addReduceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_ = s.collector.AddReduce(req.Strata, req.Values, req.Variances)
	w.WriteHeader(http.StatusOK)
}

type taskTimeRequest struct {
	StartMs    int64 `json:"startMs"`
	DurationMs int64 `json:"durationMs"`
}

func (s *Server) handleAddMapperTime(w http.ResponseWriter, r *http.Request) {
	var req taskTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.collector.AddMapperTime(req.StartMs, req.DurationMs)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAddReducerTime(w http.ResponseWriter, r *http.Request) {
	var req taskTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.collector.AddReducerTime(req.StartMs, req.DurationMs)
	w.WriteHeader(http.StatusOK)
}
