package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	yaml "github.com/oasdiff/yaml3"
	"github.com/rs/zerolog"

	"github.com/masahide/huginn-discord/pkg/huginn"
)

const sampleStatus = `{
  "name": "Midgard",
  "version": "0.217.46",
  "players": 2,
  "max_players": 10,
  "map": "",
  "online": true,
  "bepinex": {"enabled": true, "mods": [{"name": "ValheimPlus.dll", "location": "/plugins"}]},
  "jobs": [{"name": "AUTO_UPDATE", "enabled": true, "schedule": "*/15 * * * *"}]
}`

// fake Huginn serving body on /status with the given code
func newUpstream(t *testing.T, code int, body string) *httptest.Server {
	t.Helper()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(up.Close)
	return up
}

func testConfig(huginnURL string) Config {
	return Config{
		GlobalTimeout: 5 * time.Second,
		Env:           huginn.Env{HuginnURL: huginnURL, HTTPTimeout: 2 * time.Second},
	}
}

func newTestApp(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	s, err := newServer(cfg)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	return ts
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("STATUSAPI_HUGINN_URL", "http://huginn:3000")
	t.Setenv("STATUSAPI_GLOBAL_TIMEOUT", "7s")

	cfg, err := loadConfigFromEnv()
	if err != nil {
		t.Fatalf("loadConfigFromEnv: %v", err)
	}
	if cfg.HuginnURL != "http://huginn:3000" {
		t.Fatalf("HuginnURL = %q", cfg.HuginnURL)
	}
	if cfg.GlobalTimeout != 7*time.Second {
		t.Fatalf("GlobalTimeout = %s", cfg.GlobalTimeout)
	}
	if cfg.APIAddr != ":8089" || cfg.HTTPTimeout != 5*time.Second {
		t.Fatalf("defaults not applied: addr=%q timeout=%s", cfg.APIAddr, cfg.HTTPTimeout)
	}
}

func TestLoadConfigFromEnv_MissingHuginnURL(t *testing.T) {
	t.Setenv("STATUSAPI_HUGINN_URL", "  ")
	if _, err := loadConfigFromEnv(); err == nil {
		t.Fatal("expected error for blank STATUSAPI_HUGINN_URL")
	}
}

func TestNewServer_BadTimezone(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.ScheduleTimezone = "Not/AZone"
	if _, err := newServer(cfg); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestOpenAPIYAML_EnvOverride(t *testing.T) {
	t.Setenv("STATUSAPI_HUGINN_URL", "http://127.0.0.1:1")
	t.Setenv("STATUSAPI_OPENAPI_SERVERS", "https://bot.example.com, https://bot2.example.com")

	cfg, err := loadConfigFromEnv()
	if err != nil {
		t.Fatalf("loadConfigFromEnv: %v", err)
	}
	ts := newTestApp(t, cfg)

	resp, err := http.Get(ts.URL + "/docs/openapi.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var doc map[string]any
	if err := yaml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("yaml decode: %v", err)
	}

	servers, _ := doc["servers"].([]any)
	if len(servers) != 2 {
		t.Fatalf("want 2 servers, got %d", len(servers))
	}
	got0 := servers[0].(map[string]any)["url"].(string)
	got1 := servers[1].(map[string]any)["url"].(string)
	if got0 != "https://bot.example.com" || got1 != "https://bot2.example.com" {
		t.Fatalf("unexpected servers: %v, %v", got0, got1)
	}
}

func TestOpenAPIYAML_PublicBaseURL(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.PublicBaseURL = "https://public.example.com"

	r := httptest.NewRequest(http.MethodGet, "/docs/openapi.yaml", nil)
	got := resolveOpenAPIServersFromCfg(cfg, r)
	if len(got) != 1 || got[0] != "https://public.example.com" {
		t.Fatalf("servers = %v", got)
	}
}

func TestOpenAPIYAML_DeriveFromRequest(t *testing.T) {
	ts := newTestApp(t, testConfig("http://127.0.0.1:1"))

	req, _ := http.NewRequest("GET", ts.URL+"/docs/openapi.yaml", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var doc map[string]any
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := yaml.NewDecoder(bytes.NewBuffer(body)).Decode(&doc); err != nil {
		t.Fatalf("yaml decode: %v,body:%s", err, string(body))
	}
	servers, _ := doc["servers"].([]any)
	if len(servers) != 1 {
		t.Fatalf("want 1 server, got %d", len(servers))
	}
	got := servers[0].(map[string]any)["url"].(string)
	if !strings.HasPrefix(got, "https://") {
		t.Fatalf("expected https scheme from X-Forwarded-Proto, got %s", got)
	}
}

type interruptedFetcher struct{}

func (interruptedFetcher) FetchStatus(ctx context.Context) (huginn.Result, error) {
	return huginn.Unavailable(), fmt.Errorf("%w: %w", huginn.ErrInterrupted, context.Canceled)
}

func TestStatus_Interrupted(t *testing.T) {
	s, err := newServer(testConfig("http://127.0.0.1:1"))
	if err != nil {
		t.Fatal(err)
	}
	s.huginn = interruptedFetcher{}

	for _, path := range []string{"/status", "/status/message"} {
		rec := httptest.NewRecorder()
		s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: want 503 got %d", path, rec.Code)
		}
		var got ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("%s: json: %v", path, err)
		}
		if got.Error.Code != "INTERRUPTED" {
			t.Fatalf("%s: code = %q", path, got.Error.Code)
		}
	}
}

func TestInterruptLevel(t *testing.T) {
	s, err := newServer(testConfig("http://127.0.0.1:1"))
	if err != nil {
		t.Fatal(err)
	}
	if got := s.interruptLevel(); got != zerolog.DebugLevel {
		t.Fatalf("client gone: level = %s, want debug", got)
	}
	base, cancel := context.WithCancel(context.Background())
	cancel()
	s.base = base
	if got := s.interruptLevel(); got != zerolog.ErrorLevel {
		t.Fatalf("shutting down: level = %s, want error", got)
	}
}

func TestRecoverMW(t *testing.T) {
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), recoverMW, logMW)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500 got %d", rec.Code)
	}
}

func TestNormalize_NilSlices(t *testing.T) {
	got := normalize(huginn.Status{Name: "x"})
	if got.Jobs == nil || got.BepInEx.Mods == nil {
		t.Fatalf("nil slices left in %+v", got)
	}
}
