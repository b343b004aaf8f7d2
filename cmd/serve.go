package cmd

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/samsaffron/claude-gateway/internal/config"
	"github.com/samsaffron/claude-gateway/internal/gateway"
	"github.com/samsaffron/claude-gateway/internal/llm"
	"github.com/samsaffron/claude-gateway/internal/logging"
	"github.com/samsaffron/claude-gateway/internal/openai"
)

const (
	maxRequestBody     = 10 << 20
	chatRequestTimeout = 15 * time.Minute
	shutdownTimeout    = 10 * time.Second
)

var (
	serveHost         string
	servePort         int
	serveAPIKey       string
	serveAllowNoAuth  bool
	serveCORSOrigins  []string
	serveBackend      string
	serveMaxTurns     int
	serveCwd          string
	serveAllowedTools []string
	serveLogLevel     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OpenAI-compatible HTTP server",
	Long: `Run an OpenAI-compatible HTTP server backed by the Claude agent.

Endpoints:
  POST /v1/chat/completions   (also /chat/completions)
  GET  /v1/models             (also /models)
  GET  /v1/models/{id}
  GET  /health

Every endpoint except /health requires "Authorization: Bearer <api key>".
Flags override the config file and environment.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.StringVar(&serveHost, "host", "0.0.0.0", "Bind host")
	f.IntVar(&servePort, "port", 8000, "Bind port")
	f.StringVar(&serveAPIKey, "api-key", "", "Shared secret clients send as a Bearer token")
	f.BoolVar(&serveAllowNoAuth, "allow-no-auth", false, "Disable auth when no api key is set (loopback hosts only)")
	f.StringArrayVar(&serveCORSOrigins, "cors-origin", nil, "Allowed CORS origin (repeatable, or '*' for all)")
	f.StringVar(&serveBackend, "backend", config.BackendClaudeCLI, "Agent backend: claude-cli or anthropic")
	f.IntVar(&serveMaxTurns, "max-turns", 10, "Maximum agent turns per request")
	f.StringVar(&serveCwd, "cwd", "", "Working directory for the claude subprocess")
	f.StringSliceVar(&serveAllowedTools, "allowed-tools", nil, "Tools the agent may use (comma separated)")
	f.StringVar(&serveLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// serveOverrides collects only the flags given on the command line so they
// layer over config file and environment values.
func serveOverrides(cmd *cobra.Command) config.Overrides {
	var o config.Overrides
	f := cmd.Flags()
	if f.Changed("host") {
		o.Host = &serveHost
	}
	if f.Changed("port") {
		o.Port = &servePort
	}
	if f.Changed("api-key") {
		o.APIKey = &serveAPIKey
	}
	if f.Changed("allow-no-auth") {
		o.AllowNoAuth = &serveAllowNoAuth
	}
	if f.Changed("cors-origin") {
		o.CORSOrigins = serveCORSOrigins
	}
	if f.Changed("backend") {
		o.Backend = &serveBackend
	}
	if f.Changed("max-turns") {
		o.MaxTurns = &serveMaxTurns
	}
	if f.Changed("cwd") {
		o.WorkingDirectory = &serveCwd
	}
	if f.Changed("allowed-tools") {
		o.AllowedTools = serveAllowedTools
	}
	if f.Changed("log-level") {
		o.LogLevel = &serveLogLevel
	}
	return o
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(serveOverrides(cmd))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	provider, err := llm.NewProvider(cfg, log)
	if err != nil {
		return err
	}
	orch := gateway.New(provider, gatewayOptions(cfg), nil, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newServeServer(cfg, orch, log)
	if err := s.Start(); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"addr":    cfg.Addr(),
		"backend": provider.Name(),
		"auth":    authSummary(cfg.Server.APIKey != ""),
		"config":  cfg.File,
	}).Info("claude-gateway listening")
	if cfg.Server.APIKey == "" {
		log.Warn("authentication is disabled")
	}

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Stop(shutdownCtx)
}

func gatewayOptions(cfg *config.Config) gateway.Options {
	return gateway.Options{
		MaxTurns:         cfg.Agent.MaxTurns,
		AllowedTools:     cfg.Agent.AllowedTools,
		AutoDenyTools:    cfg.Agent.AutoDenyTools,
		WorkingDirectory: cfg.Agent.WorkingDirectory,
		DefaultModel:     cfg.Agent.DefaultModel,
	}
}

func authSummary(required bool) string {
	if required {
		return "bearer required"
	}
	return "disabled"
}

type serveServer struct {
	cfg    *config.Config
	orch   *gateway.Orchestrator
	log    logrus.FieldLogger
	router *chi.Mux
	server *http.Server
	now    func() time.Time
}

func newServeServer(cfg *config.Config, orch *gateway.Orchestrator, log logrus.FieldLogger) *serveServer {
	s := &serveServer{cfg: cfg, orch: orch, log: log, now: time.Now}
	s.router = s.routes()
	return s
}

func (s *serveServer) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		for _, prefix := range []string{"/v1", ""} {
			r.Get(prefix+"/models", s.handleModels)
			r.Get(prefix+"/models/{id}", s.handleModel)
			r.Post(prefix+"/chat/completions", s.handleChatCompletions)
		}
	})
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *serveServer) Handler() http.Handler {
	return s.router
}

func (s *serveServer) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

func (s *serveServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// accessLog logs one line per request and tags the context with chi's
// request id so backend logs can be correlated.
func (s *serveServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		r = r.WithContext(gateway.ContextWithRequestID(r.Context(), reqID))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := s.now()
		defer func() {
			s.log.WithFields(logrus.Fields{
				"request_id": reqID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"remote":     r.RemoteAddr,
				"duration":   s.now().Sub(start).String(),
			}).Info("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *serveServer) auth(next http.Handler) http.Handler {
	if s.cfg.Server.APIKey == "" && s.cfg.Server.AllowNoAuth {
		return next
	}
	token := []byte(s.cfg.Server.APIKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if strings.TrimSpace(header) == "" {
			writeAPIError(w, openai.Unauthorized(openai.CodeMissingAuthorization,
				"Missing Authorization header. Expected 'Authorization: Bearer <api key>'"))
			return
		}
		const prefix = "Bearer "
		if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
			writeAPIError(w, openai.Unauthorized(openai.CodeInvalidAPIKey,
				"Malformed Authorization header. Expected 'Authorization: Bearer <api key>'"))
			return
		}
		got := strings.TrimSpace(header[len(prefix):])
		if len(token) == 0 || subtle.ConstantTimeCompare([]byte(got), token) != 1 {
			writeAPIError(w, openai.Unauthorized(openai.CodeInvalidAPIKey, "Incorrect API key provided"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *serveServer) cors(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(s.cfg.Server.CORSOrigins))
	allowAll := false
	for _, origin := range s.cfg.Server.CORSOrigins {
		o := strings.TrimSpace(origin)
		if o == "" {
			continue
		}
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[o] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *serveServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *serveServer) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeAPIError(w, openai.RequestError(http.StatusNotFound, "Invalid URL (%s %s)", r.Method, r.URL.Path))
}

func (s *serveServer) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	var allow []string
	for _, m := range []string{http.MethodGet, http.MethodPost} {
		if s.router.Match(chi.NewRouteContext(), m, r.URL.Path) {
			allow = append(allow, m)
		}
	}
	if len(allow) > 0 {
		w.Header().Set("Allow", strings.Join(allow, ", "))
	}
	writeAPIError(w, openai.RequestError(http.StatusMethodNotAllowed, "Method %s not allowed for %s", r.Method, r.URL.Path))
}

func (s *serveServer) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modelList())
}

func (s *serveServer) handleModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, ok := llm.LookupModel(id)
	if !ok {
		writeAPIError(w, openai.ModelNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, modelDescriptor(m))
}

func (s *serveServer) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if err := requireJSONContentType(r); err != nil {
		writeAPIError(w, openai.RequestError(http.StatusUnsupportedMediaType, "%s", err.Error()))
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIError(w, openai.RequestError(http.StatusRequestEntityTooLarge, "Request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeAPIError(w, openai.InvalidRequest("", "Failed to read request body: %v", err))
		return
	}

	call, err := s.orch.Prepare(body)
	if err != nil {
		writeAPIError(w, openai.AsAPIError(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatRequestTimeout)
	defer cancel()

	if call.Stream {
		sw := newSSEChunkWriter(w)
		if err := s.orch.Stream(ctx, call, sw); err != nil && !sw.started {
			s.writeFailure(w, r, err)
		}
		return
	}

	resp, err := s.orch.Complete(ctx, call)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeFailure renders err unless the client has already gone away.
func (s *serveServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	writeAPIError(w, openai.AsAPIError(err))
}

func modelDescriptor(m llm.ModelInfo) openai.Model {
	return openai.Model{
		ID:      m.ID,
		Object:  openai.ObjectModel,
		Created: m.Created,
		OwnedBy: m.OwnedBy,
	}
}

func modelList() openai.ModelList {
	data := make([]openai.Model, 0, len(llm.Models))
	for _, m := range llm.Models {
		data = append(data, modelDescriptor(m))
	}
	return openai.ModelList{Object: openai.ObjectList, Data: data}
}

// sseChunkWriter writes chat.completion.chunk events. Headers go out with
// the first chunk so a backend that fails to start can still get a plain
// JSON error response.
type sseChunkWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newSSEChunkWriter(w http.ResponseWriter) *sseChunkWriter {
	return &sseChunkWriter{w: w, rc: http.NewResponseController(w)}
}

func (s *sseChunkWriter) start() {
	if s.started {
		return
	}
	s.started = true
	setSSEHeaders(s.w)
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseChunkWriter) WriteChunk(chunk openai.ChatCompletionChunk) error {
	s.start()
	if err := writeChatStreamChunk(s.w, chunk); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseChunkWriter) WriteDone() error {
	s.start()
	if _, err := io.WriteString(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseChunkWriter) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func writeChatStreamChunk(w io.Writer, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeAPIError(w http.ResponseWriter, e *openai.APIError) {
	writeJSON(w, e.Status, e.Body())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
}

// requireJSONContentType rejects non-JSON media types. A missing header is
// treated as JSON.
func requireJSONContentType(r *http.Request) error {
	contentType := r.Header.Get("Content-Type")
	if strings.TrimSpace(contentType) == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("invalid Content-Type header")
	}
	if mediaType != "application/json" {
		return fmt.Errorf("Content-Type must be application/json")
	}
	return nil
}
