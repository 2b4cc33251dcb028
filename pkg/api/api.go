// Package api serves the current aircraft snapshot, health and metrics over
// HTTP.
package api

import (
	"context"
	"flag"
	"net"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PR-CYBR/adsb-ingest/pkg/health"
	"github.com/PR-CYBR/adsb-ingest/pkg/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Config struct {
	ListenAddress string `yaml:"listen_address"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.ListenAddress, "server.listen-address", ":8080", "Address the HTTP server listens on, empty disables it")
}

func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return errors.Wrap(err, "invalid server listen address")
	}
	return nil
}

// Provider is what the handler reads from, usually a *bridge.Bridge.
type Provider interface {
	Snapshot() *model.Report
	Health() health.Report
}

// NewHandler routes /aircraft.json, /healthz, /readyz and /metrics.
func NewHandler(logger log.Logger, p Provider, g prometheus.Gatherer) http.Handler {
	h := &handler{logger: logger, provider: p}
	r := mux.NewRouter()
	r.HandleFunc("/aircraft.json", h.aircraft).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	if g != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

type handler struct {
	logger   log.Logger
	provider Provider
}

func (h *handler) aircraft(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.provider.Snapshot())
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.provider.Health())
}

func (h *handler) readyz(w http.ResponseWriter, _ *http.Request) {
	rd := h.provider.Health().Readiness()
	status := http.StatusOK
	if rd.Status != health.OK {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, rd)
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		level.Error(h.logger).Log("msg", "failed to encode response", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(b); err != nil {
		level.Debug(h.logger).Log("msg", "failed to write response", "err", err)
	}
}

type Server struct {
	logger log.Logger
	srv    *http.Server
	done   chan struct{}
}

// NewServer starts serving handler on addr.
func NewServer(logger log.Logger, addr string, handler http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", addr)
	}
	s := &Server{
		logger: log.With(logger, "component", "api"),
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			level.Error(s.logger).Log("msg", "http server failed", "err", err)
		}
	}()
	level.Info(s.logger).Log("msg", "http server listening", "addr", ln.Addr().String())
	return s, nil
}

func (s *Server) Stop(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
