// Package app is the main application entry point: it reads config,
// connects to infrastructure, wires every gate/scheduler component, and
// starts the requested mode. Grounded on the teacher's internal/app/app.go
// startup sequence (tracer → database/kvs → metrics → mode switch),
// generalized from nightowl's api/worker split to NovaOS's pipeline/
// scheduler split.
package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novaos/novaos/internal/ack"
	"github.com/novaos/novaos/internal/audit"
	"github.com/novaos/novaos/internal/capability"
	"github.com/novaos/novaos/internal/config"
	"github.com/novaos/novaos/internal/constitutional"
	"github.com/novaos/novaos/internal/crypto"
	nerrors "github.com/novaos/novaos/internal/errors"
	"github.com/novaos/novaos/internal/gate"
	"github.com/novaos/novaos/internal/kvs"
	"github.com/novaos/novaos/internal/llm"
	"github.com/novaos/novaos/internal/providers"
	"github.com/novaos/novaos/internal/ratelimit"
	"github.com/novaos/novaos/internal/scheduler"
	"github.com/novaos/novaos/internal/sword"
	"github.com/novaos/novaos/internal/ssrf"
	"github.com/novaos/novaos/internal/telemetry"
	"github.com/novaos/novaos/pkg/novaosapi"
)

const serviceVersion = "0.1.0"

// Run is the main application entry point.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting novaos", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	_, shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Obs.OTLPEndpoint, "novaos", serviceVersion)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	kv, err := kvs.NewRedisStore(ctx, cfg.KVS)
	if err != nil {
		return fmt.Errorf("connecting to kvs: %w", err)
	}

	metricsReg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(metricsReg)

	switch cfg.Mode {
	case "pipeline":
		return runPipeline(ctx, cfg, logger, kv, metricsReg, metrics)
	case "scheduler":
		return runScheduler(ctx, cfg, logger, kv, metricsReg, metrics)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// buildCrypto derives the envelope-encryption key source from config
// (spec §4.11 step 3, §6 "encryption key rotation").
func buildCrypto(cfg *config.Config) (*crypto.Service, error) {
	secrets := map[uint32]string{cfg.Auth.EncryptionKeyVersion: cfg.Auth.EncryptionKeyCurrent}
	if cfg.Auth.EncryptionKeyPrevious != "" && cfg.Auth.EncryptionKeyVersion > 0 {
		secrets[cfg.Auth.EncryptionKeyVersion-1] = cfg.Auth.EncryptionKeyPrevious
	}
	keys, err := crypto.NewKeySource(secrets)
	if err != nil {
		return nil, fmt.Errorf("building key source: %w", err)
	}
	return crypto.NewService(keys, cfg.Auth.EncryptionKeyVersion), nil
}

// buildProviderRegistry wires the five category-scoped providers plus the
// web_searcher capability plugin behind the SSRF Guard (spec §2 components
// 4-6, §4.5's registry: "stock_fetcher, weather_fetcher, crypto_fetcher,
// fx_fetcher, time_fetcher, ..., web_searcher").
func buildProviderRegistry(cfg config.ProvidersConfig, guard *ssrf.Guard) *providers.Registry {
	return providers.NewRegistry(
		providers.NewStockProvider(cfg.StockBaseURL, cfg.StockAPIKey, guard),
		providers.NewFXProvider(cfg.FXBaseURL, cfg.FXAPIKey, guard),
		providers.NewCryptoProvider(cfg.CryptoBaseURL, cfg.CryptoAPIKey, guard),
		providers.NewWeatherProvider(cfg.WeatherBaseURL, cfg.WeatherAPIKey, guard),
		providers.NewTimeProvider(),
		capability.NewWebSearchProvider(cfg.StockBaseURL, cfg.StockAPIKey, guard),
	)
}

func freshnessPolicies(cfg config.ProvidersConfig) map[string]time.Duration {
	return map[string]time.Duration{
		"stock":   cfg.StockFreshness,
		"fx":      cfg.FXFreshness,
		"crypto":  cfg.CryptoFreshness,
		"weather": cfg.WeatherFreshness,
	}
}

// buildOrchestrator assembles the fixed, ordered gate sequence (spec
// §4.1) from the config-derived components shared by both modes.
func buildOrchestrator(cfg *config.Config, kv kvs.Store, ackSvc *ack.Service) *gate.Orchestrator {
	ssrfLimiter := ratelimit.NewLimiter(kv, ratelimit.Rule{
		MaxTokens:  cfg.Rate.SSRFMaxTokens,
		RefillRate: cfg.Rate.SSRFRefillPerSec,
		Window:     cfg.Rate.Window,
	})
	guard := ssrf.NewGuard(cfg.SSRF, nil, ssrfLimiter)
	registry := buildProviderRegistry(cfg.Prov, guard)
	sourceHealth := scheduler.NewSourceHealth(kv)

	classifier := llm.NewAnthropicProvider(cfg.LLM.AnthropicAPIKey, cfg.LLM.Model)
	chain := llm.NewChain(classifier, llm.NewStubProvider())

	intentGate := gate.NewIntentGate(classifier)
	shieldGate := gate.NewShieldGate(classifier, ackSvc)
	lensGate := gate.NewLensGate()
	stanceGate := gate.NewStanceGate()
	capabilityGate := gate.NewCapabilityGate(registry, freshnessPolicies(cfg.Prov), 3*time.Second, sourceHealth)

	constraints := llm.GenerationConstraints{
		Tone:                  "direct",
		AllowNumericPrecision: true,
	}
	modelParams := llm.Params{Model: cfg.LLM.Model, MaxTokens: cfg.LLM.MaxTokens, Temperature: cfg.LLM.Temperature}
	modelGate := gate.NewModelGate(chain, constraints, modelParams)

	validator := constitutional.NewValidator(classifier)
	constGate := gate.NewConstitutionalGate(validator)

	memoryGate := gate.NewMemoryGate(func(ctx context.Context, state gate.PipelineState) error {
		return kv.Set(ctx, "memory:last:"+state.UserID, state.UserMessage, 30*24*time.Hour)
	})

	return gate.NewOrchestrator(intentGate, shieldGate, lensGate, stanceGate, capabilityGate, modelGate, constGate, memoryGate)
}

func runPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, kv kvs.Store, metricsReg *prometheus.Registry, metrics *telemetry.Metrics) error {
	ackSvc := ack.NewService(kv, cfg.Auth.AckSecretCurrent, cfg.Auth.AckSecretPrevious, cfg.Auth.AckTokenTTL)
	orchestrator := buildOrchestrator(cfg, kv, ackSvc)

	cryptoSvc, err := buildCrypto(cfg)
	if err != nil {
		return err
	}
	auditLogger := audit.NewLogger(kv, cryptoSvc)

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{AllowedOrigins: cfg.CORS.AllowedOrigins}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	handler := newPipelineHandler(orchestrator, auditLogger, ackSvc, metrics, logger)
	router.Post("/v1/pipeline", handler.ServeHTTP)

	srv := &http.Server{Addr: cfg.ListenAddr(), Handler: router}
	return runHTTPServer(ctx, srv, cfg.Server.ShutdownTimeout, logger)
}

func runScheduler(ctx context.Context, cfg *config.Config, logger *slog.Logger, kv kvs.Store, metricsReg *prometheus.Registry, metrics *telemetry.Metrics) error {
	store := sword.NewStore(kv)
	notifier := scheduler.NewNotifier(kv, cfg.Obs.SlackBotToken, cfg.Obs.SlackChannel, cfg.Obs.SlackEnabled, logger)
	sourceHealth := scheduler.NewSourceHealth(kv)

	var archiver scheduler.Archiver
	if cfg.KVS.ArchiveDSN != "" {
		archiveStore, err := audit.NewArchiveStore(ctx, cfg.KVS.ArchiveDSN)
		if err != nil {
			return fmt.Errorf("connecting archive store: %w", err)
		}
		defer archiveStore.Close()
		archiver = archiveStore
		logger.Info("retention archiving enabled")
	} else {
		logger.Info("retention archiving disabled: NOVAOS_ARCHIVE_DSN not set, aged records are deleted without archival")
	}

	policies := scheduler.DefaultRetentionPolicies(
		cfg.Reten.GoalDays, cfg.Reten.QuestDays, cfg.Reten.StepDays, cfg.Reten.SparkDays,
		cfg.Reten.AuditDays, cfg.Reten.ArchiveOldAudit,
	)
	retain := scheduler.NewRetentionEnforcer(kv, archiver, policies, logger)

	handlers := scheduler.NewHandlerSet(store, notifier, sourceHealth, retain, logger)
	registry := scheduler.DefaultRegistry(handlers)
	sched := scheduler.New(registry, kv, schedulerWorkerID(), logger, metrics)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: cfg.ListenAddr(), Handler: router}
	go func() {
		if err := runHTTPServer(ctx, srv, cfg.Server.ShutdownTimeout, logger); err != nil {
			logger.Error("scheduler admin server stopped", "error", err)
		}
	}()

	return sched.Run(ctx)
}

func schedulerWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "novaos-scheduler"
	}
	return hostname
}

func runHTTPServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		logger.Info("http server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

// pipelineHandler adapts the novaosapi wire contract onto the gate
// orchestrator (spec §5 "Upstream (to callers)").
type pipelineHandler struct {
	orchestrator *gate.Orchestrator
	audit        *audit.Logger
	ack          *ack.Service
	metrics      *telemetry.Metrics
	log          *slog.Logger
}

func newPipelineHandler(o *gate.Orchestrator, a *audit.Logger, ackSvc *ack.Service, m *telemetry.Metrics, log *slog.Logger) *pipelineHandler {
	return &pipelineHandler{orchestrator: o, audit: a, ack: ackSvc, metrics: m, log: log}
}

func (h *pipelineHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req novaosapi.RequestEnvelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		wireErr := nerrors.ToSanitized(
			nerrors.Wrap(nerrors.CodeInvalidInput, "decode", err).WithSubReason("malformed_json"),
			"",
		)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(wireErr)
		return
	}

	requestID := fmt.Sprintf("req-%d", time.Now().UnixNano())
	state := gate.PipelineState{RequestID: requestID, UserID: req.UserID, UserMessage: req.UserMessage}

	if req.AckToken != "" {
		tok, err := decodeAckToken(req.AckToken)
		if err == nil {
			state.AckToken = tok
			state.AckText = req.AckText
		}
	}

	start := time.Now()
	outcome := h.orchestrator.Run(r.Context(), state)

	if err := h.audit.Write(r.Context(), audit.Record{
		RequestID:         requestID,
		UserMessage:       req.UserMessage,
		ResponseText:      outcome.ResponseText,
		Constraints:       "standard",
		GatesExecuted:     outcome.State.GatesExecuted,
		Stance:            string(outcome.State.Stance),
		Model:             modelName(outcome),
		InterventionLevel: interventionLevel(outcome),
		RegenerationCount: outcome.RegenerationCount,
		StoppedAt:         outcome.State.StoppedAt,
		StoppedReason:     outcome.StoppedReason,
	}); err != nil {
		h.log.Error("writing audit record", "error", err, "requestId", requestID)
	}

	resp := novaosapi.ResponseEnvelope{
		Status:        novaosapi.Status(outcome.Status),
		Response:      outcome.ResponseText,
		Stance:        string(outcome.State.Stance),
		Redirect:      outcome.RedirectTarget,
		StoppedReason: outcome.StoppedReason,
		Metadata: novaosapi.Metadata{
			RequestID:     requestID,
			TotalTimeMs:   time.Since(start).Milliseconds(),
			Regenerations: outcome.RegenerationCount,
		},
	}
	if outcome.PendingAck != nil {
		encoded, err := encodeAckToken(outcome.PendingAck.Token)
		if err == nil {
			resp.AckRequired = &novaosapi.AckRequired{
				Token:        encoded,
				RequiredText: outcome.PendingAck.RequiredText,
				ExpiresAt:    outcome.PendingAck.ExpiresAt,
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func modelName(o gate.Outcome) string {
	if o.State.Generation != nil {
		return o.State.Generation.Model
	}
	return ""
}

func interventionLevel(o gate.Outcome) string {
	if o.State.RiskSummary != nil {
		return o.State.RiskSummary.InterventionLevel
	}
	return ""
}

// encodeAckToken/decodeAckToken give the signed ack.Token struct an
// opaque wire form: base64-of-JSON, matching the rest of the token's
// MAC-based tamper-evidence rather than inventing a second format.
func encodeAckToken(tok *ack.Token) (string, error) {
	raw, err := json.Marshal(tok)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeAckToken(encoded string) (*ack.Token, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	var tok ack.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}
