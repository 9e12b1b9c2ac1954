// Package server exposes the boot endpoint and the kernel trigger
// endpoints over HTTP. The server is a thin shell: every request funnels
// into the loader, which owns all verification and execution semantics.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/roach88/spanos/internal/loader"
	"github.com/roach88/spanos/internal/span"
)

// WorkerIdentity is the caller identity used for timer- and
// endpoint-triggered kernel runs.
const WorkerIdentity = "system-worker"

// kernelRoutes maps trigger endpoint names to well-known kernel ids.
var kernelRoutes = map[string]string{
	"observer":      span.ObserverKernelID,
	"worker":        span.RequestWorkerKernelID,
	"policy-agent":  span.PolicyAgentKernelID,
	"provider-exec": span.ProviderExecKernelID,
}

// Server handles boot and kernel trigger requests.
type Server struct {
	loader  *loader.Loader
	baseEnv map[string]string
	log     *slog.Logger
}

// New wires a server. baseEnv is forwarded into every invocation's
// environment (e.g. a signing key for executed code); request-supplied
// env entries override it.
func New(l *loader.Loader, baseEnv map[string]string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{loader: l, baseEnv: baseEnv, log: log}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /boot", s.handleBoot)
	mux.HandleFunc("POST /kernels/{kernel}", s.handleKernel)
	return mux
}

type bootRequest struct {
	FunctionID string            `json:"function_id"`
	Env        map[string]string `json:"env"`
}

func (s *Server) handleBoot(w http.ResponseWriter, r *http.Request) {
	var req bootRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.loader.Boot(r.Context(), req.FunctionID, s.mergeEnv(req.Env))
	if err != nil {
		s.writeBootError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"function_id": result.FunctionID,
		"executed_at": result.ExecutedAt,
	})
}

func (s *Server) handleKernel(w http.ResponseWriter, r *http.Request) {
	kernelID, ok := kernelRoutes[r.PathValue("kernel")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown kernel")
		return
	}

	var req bootRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	env := s.mergeEnv(req.Env)
	if env[loader.EnvUserID] == "" {
		env[loader.EnvUserID] = WorkerIdentity
	}
	if env[loader.EnvTenantID] == "" {
		env[loader.EnvTenantID] = span.SystemTenant
	}

	result, err := s.loader.Boot(r.Context(), kernelID, env)
	if err != nil {
		s.writeBootError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"function_id": result.FunctionID,
		"executed_at": result.ExecutedAt,
	})
}

func (s *Server) mergeEnv(reqEnv map[string]string) map[string]string {
	env := make(map[string]string, len(s.baseEnv)+len(reqEnv))
	for k, v := range s.baseEnv {
		env[k] = v
	}
	for k, v := range reqEnv {
		env[k] = v
	}
	return env
}

func (s *Server) writeBootError(w http.ResponseWriter, err error) {
	status := loader.HTTPStatusOf(err)
	message := err.Error()
	var le *loader.Error
	if errors.As(err, &le) {
		message = le.Message
	}
	if status >= 500 {
		s.log.Error("boot failed", "error", err)
	}
	writeError(w, status, message)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
