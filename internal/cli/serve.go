package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dataflow/pkg/buildinfo"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/evaluator"
	"github.com/matzehuels/dataflow/pkg/metrics"
	"github.com/matzehuels/dataflow/pkg/network"
	"github.com/matzehuels/dataflow/pkg/render/netgraph"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve <pipeline>",
		Short: "Evaluate a pipeline continuously behind an HTTP server",
		Long: `Build the network described by a pipeline file and keep it evaluated.
Every invalidation triggers a new pass. The server exposes:

  GET  /healthz                       liveness
  GET  /version                       build information
  GET  /network                       processors and connections as JSON
  GET  /network.dot, /network.svg     the network drawing
  POST /evaluate                      run one pass and return its result
  POST /processors/{id}/invalidate    mark a processor invalid
  GET  /metrics                       Prometheus metrics`,
		Example: `  dataflow serve pipeline.toml --addr :9090`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context(), args[0], addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")

	return cmd
}

func (c *CLI) serve(ctx context.Context, path, addr string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}
	svc, err := newServices(cfg, c.Logger)
	if err != nil {
		return err
	}
	defer svc.close()

	net, err := svc.loadNetwork(path)
	if err != nil {
		return err
	}
	ev, err := svc.evaluator(net)
	if err != nil {
		return err
	}
	defer ev.Close()
	ev.Watch()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newInspector(net, ev, svc.metrics, c.Logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		c.Logger.Info("serving", "addr", addr, "processors", net.ProcessorCount())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	c.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// inspector serves the state of one evaluated network over HTTP.
type inspector struct {
	net     *network.Network
	ev      *evaluator.Evaluator
	metrics *metrics.Registry
	logger  *log.Logger
}

func newInspector(net *network.Network, ev *evaluator.Evaluator, m *metrics.Registry, logger *log.Logger) *inspector {
	return &inspector{net: net, ev: ev, metrics: m, logger: logger}
}

func (s *inspector) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, buildinfo.Get())
	})
	r.Get("/network", s.getNetwork)
	r.Get("/network.dot", s.getDOT)
	r.Get("/network.svg", s.getSVG)
	r.Post("/evaluate", s.postEvaluate)
	r.Post("/processors/{id}/invalidate", s.postInvalidate)
	r.Get("/metrics", s.getMetrics)
	return r
}

// instrument records every request by its route pattern.
func (s *inspector) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(r.Method, route, code, time.Since(start))
	})
}

// processorJSON is the wire form of one processor.
type processorJSON struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	State    string  `json:"state"`
	InFlight bool    `json:"in_flight,omitempty"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}

type connectionJSON struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

type networkJSON struct {
	Version     uint64           `json:"version"`
	Processors  []processorJSON  `json:"processors"`
	Connections []connectionJSON `json:"connections"`
}

func (s *inspector) getNetwork(w http.ResponseWriter, r *http.Request) {
	out := networkJSON{Version: s.net.Version(), Processors: []processorJSON{}, Connections: []connectionJSON{}}
	for _, row := range stateRows(s.net, s.ev.InFlight()) {
		p := processorJSON{
			ID:       row.id,
			Type:     row.kind,
			State:    row.state.String(),
			InFlight: row.inFlight,
			Progress: row.progress,
		}
		if row.err != nil {
			p.Error = row.err.Error()
		}
		out.Processors = append(out.Processors, p)
	}
	for _, c := range s.net.Connections() {
		out.Connections = append(out.Connections, connectionJSON{
			From: c.Out.Node().ID() + "." + c.Out.Identifier(),
			To:   c.In.Node().ID() + "." + c.In.Identifier(),
			Kind: c.Out.Kind().String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *inspector) dot() string {
	return netgraph.ToDOT(s.net, netgraph.Options{Detailed: true, InFlight: s.ev.InFlight()})
}

func (s *inspector) getDOT(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.Write([]byte(s.dot()))
}

func (s *inspector) getSVG(w http.ResponseWriter, r *http.Request) {
	svg, err := netgraph.RenderSVG(r.Context(), s.dot())
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write(svg)
}

type resultJSON struct {
	Processed  int      `json:"processed"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	Dispatched int      `json:"dispatched"`
	DurationMS float64  `json:"duration_ms"`
	Errors     []string `json:"errors,omitempty"`
}

func (s *inspector) postEvaluate(w http.ResponseWriter, r *http.Request) {
	res, err := s.ev.Evaluate(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := resultJSON{
		Processed:  res.Processed,
		Failed:     res.Failed,
		Skipped:    res.Skipped,
		Dispatched: res.Dispatched,
		DurationMS: float64(res.Duration.Microseconds()) / 1000,
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *inspector) postInvalidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.net.Invalidate(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Debug("invalidated", "processor", id)
	w.WriteHeader(http.StatusAccepted)
}

func (s *inspector) getMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.SetProcessorStates(processorStates(s.net))
	s.metrics.Handler().ServeHTTP(w, r)
}

// writeError maps error codes to HTTP statuses.
func (s *inspector) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidConfig:
		status = http.StatusBadRequest
	case errors.ErrCodeCanceled:
		status = http.StatusServiceUnavailable
	default:
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{
		"code":  string(errors.GetCode(err)),
		"error": errors.UserMessage(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
