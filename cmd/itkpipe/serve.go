package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/caffeineduck/itkpipe/errors"
	"github.com/caffeineduck/itkpipe/iface"
	"github.com/caffeineduck/itkpipe/pipeline"
	"github.com/caffeineduck/itkpipe/runner"
	"github.com/caffeineduck/itkpipe/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for pipeline execution",
	Long: `Start an HTTP server that runs pipelines on a pool of workers.

Endpoints:
  POST   /workers        Start a worker, returns {"worker_id":"..."}
  GET    /workers        List workers and their cache statistics
  DELETE /workers/{id}   Terminate a worker
  POST   /run            Run a module on a worker of its own, or on
                         "worker_id" when given
  GET    /health         Health check`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Int("max-workers", 0, "Maximum number of live workers (0 = unbounded)")
	serveCmd.Flags().StringSlice("mount", nil, "Host directory made visible to every run (repeatable)")
	rootCmd.AddCommand(serveCmd)
}

type server struct {
	pool    *worker.Pool
	baseURL string
	mounts  []string
	logger  *zap.Logger

	// idle holds the workers /run started for requests without a
	// worker_id. Workers created through POST /workers belong to their
	// clients and are never handed out here.
	mu   sync.Mutex
	idle []*worker.Worker
}

// acquire returns an idle shared worker, starting a new one when none is
// free. The pool's worker limit applies.
func (s *server) acquire() (*worker.Worker, error) {
	s.mu.Lock()
	for i := 0; i < len(s.idle); i++ {
		w := s.idle[i]
		switch w.State() {
		case worker.Terminated:
			s.idle = slices.Delete(s.idle, i, i+1)
			i--
		case worker.Idle:
			s.idle = slices.Delete(s.idle, i, i+1)
			s.mu.Unlock()
			return w, nil
		}
	}
	s.mu.Unlock()

	w, err := s.pool.NewWorker()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("shared worker started", zap.String("worker", w.ID()))
	return w, nil
}

// release returns w to the shared set. A worker still busy with an
// abandoned request is kept and skipped by acquire until it finishes.
func (s *server) release(w *worker.Worker) {
	if w.State() == worker.Terminated {
		return
	}
	s.mu.Lock()
	s.idle = append(s.idle, w)
	s.mu.Unlock()
}

func newServer(pool *worker.Pool, c Config, l *zap.Logger) *server {
	return &server{pool: pool, baseURL: c.BaseURL, mounts: c.Mounts, logger: l}
}

type wireValue struct {
	Type string          `json:"type"`
	Path string          `json:"path,omitempty"`
	Text string          `json:"text,omitempty"`
	Data []byte          `json:"data,omitempty"`
	JSON json.RawMessage `json:"json,omitempty"`
}

type runRequest struct {
	Module   string      `json:"module"`
	Args     []string    `json:"args"`
	Inputs   []wireValue `json:"inputs"`
	Outputs  []wireValue `json:"outputs"`
	WorkerID string      `json:"worker_id,omitempty"`
}

type runResponse struct {
	WorkerID    string      `json:"worker_id,omitempty"`
	ReturnValue int         `json:"return_value"`
	Stdout      string      `json:"stdout"`
	Stderr      string      `json:"stderr"`
	Outputs     []wireValue `json:"outputs"`
	DurationMs  int64       `json:"duration_ms"`
	Error       string      `json:"error,omitempty"`
}

type createWorkerResponse struct {
	WorkerID string `json:"worker_id"`
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /workers", s.handleCreateWorker)
	mux.HandleFunc("GET /workers", s.handleListWorkers)
	mux.HandleFunc("DELETE /workers/{id}", s.handleDeleteWorker)
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *server) handleCreateWorker(w http.ResponseWriter, r *http.Request) {
	wk, err := s.pool.NewWorker()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.logger.Info("worker created", zap.String("worker", wk.ID()))
	writeJSON(w, http.StatusOK, createWorkerResponse{WorkerID: wk.ID()})
}

func (s *server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	stats := []worker.Stats{}
	for _, wk := range s.pool.Workers() {
		stats = append(stats, wk.Stats())
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleDeleteWorker(w http.ResponseWriter, r *http.Request) {
	wk, ok := s.pool.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "worker not found", http.StatusNotFound)
		return
	}
	s.pool.Terminate(wk)
	s.logger.Info("worker terminated", zap.String("worker", wk.ID()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Module == "" {
		http.Error(w, "module required", http.StatusBadRequest)
		return
	}

	var wk *worker.Worker
	if req.WorkerID != "" {
		var ok bool
		if wk, ok = s.pool.Get(req.WorkerID); !ok {
			http.Error(w, "worker not found", http.StatusNotFound)
			return
		}
	}

	inputs, err := decodeInputs(req.Inputs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	outputs, err := decodeOutputs(req.Outputs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if wk == nil {
		if wk, err = s.acquire(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, runResponse{Error: err.Error()})
			return
		}
		defer s.release(wk)
	}

	start := time.Now()
	res, err := runner.Run(r.Context(), wk, req.Module, req.Args, outputs, inputs,
		runner.WithPool(s.pool),
		runner.WithNoCopy(),
		runner.WithPipelineBaseURL(s.baseURL),
		runner.WithMountDirs(s.mounts...),
	)
	resp := runResponse{DurationMs: time.Since(start).Milliseconds()}

	// A pipeline that ran and returned nonzero is still a successful request.
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		if !errors.Is(err, errors.ErrInvocationFailure) {
			status = statusFor(err)
		}
	}
	if res != nil {
		if res.Worker != nil {
			resp.WorkerID = res.Worker.ID()
		}
		resp.ReturnValue = res.ReturnValue
		resp.Stdout = res.Stdout
		resp.Stderr = res.Stderr
		for _, out := range res.Outputs {
			resp.Outputs = append(resp.Outputs, encodeValue(out.Type, out.Value))
		}
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindInvalidArgument, errors.KindMarshalTypeMismatch:
		return http.StatusBadRequest
	case errors.KindWorkerUnavailable:
		return http.StatusConflict
	case errors.KindWorkerTerminated:
		return http.StatusGone
	case errors.KindModuleLoad:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeInputs(in []wireValue) ([]pipeline.Input, error) {
	inputs := make([]pipeline.Input, 0, len(in))
	for i, wv := range in {
		t, err := parseInterfaceType(wv.Type)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		var v iface.Value
		switch t {
		case iface.TypeTextStream:
			v = &iface.TextStream{Data: wv.Text}
		case iface.TypeBinaryStream:
			v = &iface.BinaryStream{Data: wv.Data}
		case iface.TypeTextFile:
			v = &iface.TextFile{Path: wv.Path, Data: wv.Text, HasData: wv.Text != ""}
		case iface.TypeBinaryFile:
			v = &iface.BinaryFile{Path: wv.Path, Data: wv.Data}
		case iface.TypeJSONCompatible:
			v = &iface.JSONCompatible{Data: wv.JSON}
		default:
			return nil, fmt.Errorf("input %d: %s is not supported over HTTP", i, t)
		}
		inputs = append(inputs, pipeline.Input{Type: t, Value: v})
	}
	return inputs, nil
}

func decodeOutputs(in []wireValue) ([]pipeline.Output, error) {
	outputs := make([]pipeline.Output, 0, len(in))
	for i, wv := range in {
		t, err := parseInterfaceType(wv.Type)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		out := pipeline.Output{Type: t}
		switch t {
		case iface.TypeTextFile:
			out.Value = &iface.TextFile{Path: wv.Path}
		case iface.TypeBinaryFile:
			out.Value = &iface.BinaryFile{Path: wv.Path}
		case iface.TypeTextStream, iface.TypeBinaryStream, iface.TypeJSONCompatible:
		default:
			return nil, fmt.Errorf("output %d: %s is not supported over HTTP", i, t)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func encodeValue(t iface.InterfaceType, v iface.Value) wireValue {
	wv := wireValue{Type: string(t)}
	switch v := v.(type) {
	case *iface.TextStream:
		wv.Text = v.Data
	case *iface.BinaryStream:
		wv.Data = v.Data
	case *iface.TextFile:
		wv.Path, wv.Text = v.Path, v.Data
	case *iface.BinaryFile:
		wv.Path, wv.Data = v.Path, v.Data
	case *iface.JSONCompatible:
		wv.JSON = v.Data
	}
	return wv
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")

	pool := worker.NewPool(
		worker.WithMaxWorkers(cfg.MaxWorkers),
		worker.WithWorkerOptions(
			worker.WithCacheOptions(cfg.cacheOptions()...),
			worker.WithLogger(logger),
		),
	)
	defer pool.Close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: newServer(pool, cfg, logger).routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "itkpipe server listening on %s\n", ln.Addr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
