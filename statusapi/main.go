// Command statusapi serves the Huginn status and the rendered bot report over HTTP.
package main

//go:generate go tool oapi-codegen -config oapi-codegen.yaml openapi.yaml

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/masahide/huginn-discord/pkg/huginn"
	"github.com/masahide/huginn-discord/pkg/report"
	"github.com/masahide/huginn-discord/pkg/schedule"
)

//go:embed openapi.yaml
var docsFS embed.FS

// =====================
// config
// =====================
type Config struct {
	APIAddr string `envconfig:"ADDR" default:":8089"`
	Debug   bool   `envconfig:"DEBUG" default:"false"`

	// e.g. "https://bot.example.com,https://bot2.example.com"
	OpenAPIServers []string `envconfig:"OPENAPI_SERVERS"`
	// Used when OpenAPIServers is empty.
	PublicBaseURL     string        `envconfig:"PUBLIC_BASE_URL"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	GlobalTimeout     time.Duration `envconfig:"GLOBAL_TIMEOUT" default:"30s"`
	ScheduleTimezone  string        `envconfig:"SCHEDULE_TIMEZONE"`

	huginn.Env
}

// prefix STATUSAPI
func loadConfigFromEnv() (Config, error) {
	cfg := Config{}
	if err := envconfig.Process("STATUSAPI", &cfg); err != nil {
		return cfg, err
	}
	if strings.TrimSpace(cfg.HuginnURL) == "" {
		return cfg, errors.New("STATUSAPI_HUGINN_URL must be set")
	}
	return cfg, nil
}

func (c Config) location() (*time.Location, error) {
	if c.ScheduleTimezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.ScheduleTimezone)
}

// =====================
// middleware
// =====================
type Middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func recoverMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("[PANIC]")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func logMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &respWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func timeoutMW(d time.Duration) Middleware {
	if d <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, http.StatusText(http.StatusGatewayTimeout))
	}
}

// =====================
// DTOs
// =====================
type HealthResponse struct {
	OK bool `json:"ok"`
}

type MessageResponse struct {
	Content   string `json:"content"`
	Available bool   `json:"available"`
}

type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// =====================
// handlers
// =====================
type statusFetcher interface {
	FetchStatus(ctx context.Context) (huginn.Result, error)
}

type server struct {
	// base is cancelled on shutdown; request contexts derive from it.
	base      context.Context
	cfg       Config
	huginn    statusFetcher
	statusURL string
	formatter *report.Formatter
}

func newServer(cfg Config) (*server, error) {
	c, err := huginn.NewClient(cfg.Env)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.location()
	if err != nil {
		return nil, fmt.Errorf("SCHEDULE_TIMEZONE: %w", err)
	}
	return &server{
		base:      context.Background(),
		cfg:       cfg,
		huginn:    c,
		statusURL: c.StatusURL(),
		formatter: report.NewFormatter(schedule.NewEvaluator(loc)),
	}, nil
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{OK: true})
}

// nil slices are served as [] to match the schema.
func normalize(st huginn.Status) huginn.Status {
	if st.BepInEx.Mods == nil {
		st.BepInEx.Mods = []huginn.Mod{}
	}
	if st.Jobs == nil {
		st.Jobs = []huginn.Job{}
	}
	return st
}

// interruptLevel is error while shutting down and debug when only the client went away.
func (s *server) interruptLevel() zerolog.Level {
	if s.base.Err() != nil {
		return zerolog.ErrorLevel
	}
	return zerolog.DebugLevel
}

func (s *server) writeInterrupted(w http.ResponseWriter, err error) {
	log.WithLevel(s.interruptLevel()).Err(err).Msg("status fetch interrupted")
	writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorDetail{Code: "INTERRUPTED", Message: err.Error()}})
}

func (s *server) serverStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.huginn.FetchStatus(r.Context())
	if err != nil {
		s.writeInterrupted(w, err)
		return
	}
	st, ok := res.Status()
	if !ok {
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: ErrorDetail{
			Code:    "UPSTREAM_UNAVAILABLE",
			Message: "could not get status from huginn",
			Details: map[string]any{"url": s.statusURL},
		}})
		return
	}
	writeJSON(w, http.StatusOK, normalize(st))
}

func (s *server) statusMessage(w http.ResponseWriter, r *http.Request) {
	res, err := s.huginn.FetchStatus(r.Context())
	if err != nil {
		s.writeInterrupted(w, err)
		return
	}
	_, ok := res.Status()
	writeJSON(w, http.StatusOK, MessageResponse{
		Content:   s.formatter.Render(res).Markdown(),
		Available: ok,
	})
}

// =====================
// routes
// =====================
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health)
	mux.HandleFunc("GET /status", s.serverStatus)
	mux.HandleFunc("GET /status/message", s.statusMessage)
	mux.HandleFunc("GET /docs/openapi.yaml", openapiYAMLHandler(s.cfg))

	return chain(mux,
		recoverMW,
		logMW,
		timeoutMW(s.cfg.GlobalTimeout),
	)
}

// serves the embedded document with servers resolved from cfg or the request
func openapiYAMLHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := docsFS.ReadFile("openapi.yaml")
		if err != nil {
			http.Error(w, fmt.Sprintf("openapi not found: %v", err), http.StatusInternalServerError)
			return
		}
		var doc map[string]any
		if err := yaml.Unmarshal(b, &doc); err != nil {
			http.Error(w, fmt.Sprintf("openapi yaml parse error: %v", err), http.StatusInternalServerError)
			return
		}
		srvs := resolveOpenAPIServersFromCfg(cfg, r)
		servers := make([]map[string]any, 0, len(srvs))
		for _, u := range srvs {
			if u == "" {
				continue
			}
			servers = append(servers, map[string]any{"url": u})
		}
		if len(servers) > 0 {
			doc["servers"] = servers
		}
		out, err := yaml.Marshal(doc)
		if err != nil {
			http.Error(w, fmt.Sprintf("openapi yaml marshal error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	}
}

func resolveOpenAPIServersFromCfg(cfg Config, r *http.Request) []string {
	var out []string
	for _, s := range cfg.OpenAPIServers {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		return out
	}
	if u := strings.TrimSpace(cfg.PublicBaseURL); u != "" {
		return []string{u}
	}
	scheme := "http"
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		scheme = xf
	} else if r.TLS != nil {
		scheme = "https"
	}
	return []string{scheme + "://" + r.Host}
}

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Warn().Err(err).Msg("Failed to load .env")
		}
	}
	cfg, err := loadConfigFromEnv()
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	s, err := newServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	s.base = ctx

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("huginn", s.statusURL).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down...")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
