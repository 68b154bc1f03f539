package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/carelink-ai/callbridge/api/handlers"
	"github.com/carelink-ai/callbridge/config"
	"github.com/carelink-ai/callbridge/functions"
	"github.com/carelink-ai/callbridge/internal/cache"
	"github.com/carelink-ai/callbridge/internal/metrics"
	"github.com/carelink-ai/callbridge/internal/server"
	"github.com/carelink-ai/callbridge/internal/telemetry"
	"github.com/carelink-ai/callbridge/pipeline"
	"github.com/carelink-ai/callbridge/sentiment"
	"github.com/carelink-ai/callbridge/session"
	"github.com/carelink-ai/callbridge/telephony"
	"github.com/carelink-ai/callbridge/voiceagent"
)

// Server wires the bridge together: telephony endpoint, admin API, health
// probes, metrics, and the per-call collaborators.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	collector *metrics.Collector
	telemetry *telemetry.Providers
	cache     *cache.Manager
	pipeline  *pipeline.HTTPClient
	scorer    *sentiment.HTTPScorer
	registry  *session.Registry

	httpManager       *server.Manager
	rateLimiterCancel context.CancelFunc
}

// NewServer creates an unstarted server from loaded configuration.
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: providers,
	}
}

// Start initializes all collaborators and begins serving. Non-blocking.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("callbridge", s.logger)
	s.registry = session.NewRegistry(s.logger)

	s.pipeline = pipeline.NewHTTPClient(pipeline.Config{
		BaseURL: s.cfg.Pipeline.BaseURL,
		APIKey:  s.cfg.Pipeline.APIKey,
		Timeout: s.cfg.Pipeline.Timeout,
	}, s.logger)

	if s.cfg.Sentiment.URL != "" {
		s.scorer = sentiment.NewHTTPScorer(sentiment.Config{
			URL:     s.cfg.Sentiment.URL,
			APIKey:  s.cfg.Sentiment.APIKey,
			Timeout: s.cfg.Sentiment.Timeout,
		}, s.logger)
	} else {
		s.logger.Info("sentiment URL not configured, monitoring disabled")
	}

	if s.cfg.Redis.Enabled {
		mgr, err := cache.NewManager(cache.Config{
			Addr:       s.cfg.Redis.Addr,
			Password:   s.cfg.Redis.Password,
			DB:         s.cfg.Redis.DB,
			DefaultTTL: s.cfg.Redis.DefaultTTL,
			MaxRetries: s.cfg.Redis.MaxRetries,
			PoolSize:   s.cfg.Redis.PoolSize,
		}, s.logger)
		if err != nil {
			s.logger.Warn("redis unavailable, patient context cache disabled", zap.Error(err))
		} else {
			s.cache = mgr
		}
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	s.logger.Info("callbridge started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Bool("sentiment_enabled", s.scorer != nil),
		zap.Bool("cache_enabled", s.cache != nil),
		zap.Bool("auth_enabled", s.cfg.Auth.Enabled),
	)
	return nil
}

// newSession builds the full per-call object graph for one start frame:
// agent connection, function dispatcher, and the session itself, already
// registered and running.
func (s *Server) newSession(ctx context.Context, start *telephony.StartPayload, out session.TelephonyWriter) (*session.CallSession, error) {
	patientID := start.CustomParameters["patient_id"]

	agent := voiceagent.New(voiceagent.Config{
		URL:         s.cfg.Agent.URL,
		APIKey:      s.cfg.Agent.APIKey,
		EventBuffer: s.cfg.Agent.EventBuffer,
	}, s.logger)

	// The dispatcher's save hook closes over the session variable; the
	// agent can only call functions after the session is live.
	var sess *session.CallSession
	dispatcher := functions.NewDispatcher(patientID, functions.Deps{
		Directory: s.pipeline,
		Search:    s.pipeline,
		MedLog:    s.pipeline,
		Alerts:    s.pipeline,
		Save: func(ctx context.Context) error {
			return sess.SaveConversation(ctx)
		},
		Cache: s.cache,
	}, s.collector, s.logger)

	var scorer session.Scorer
	if s.scorer != nil {
		scorer = s.scorer
	}

	sess = session.New(session.Config{
		CallSID:             start.CallSID,
		PatientID:           patientID,
		Instructions:        s.cfg.Agent.Instructions,
		Greeting:            s.cfg.Agent.Greeting,
		Functions:           functions.Definitions(),
		TopicSummaryEvery:   s.cfg.Session.TopicSummaryEvery,
		SentimentEvery:      s.cfg.Session.SentimentEvery,
		SentimentWindow:     s.cfg.Session.SentimentWindow,
		SentimentHistoryCap: s.cfg.Session.SentimentHistoryCap,
		SustainedNegative:   s.cfg.Session.SustainedNegative,
		InjectionInterval:   s.cfg.Session.InjectionInterval,
	}, agent, telephony.NewRelay(s.logger), out, dispatcher, s.pipeline, scorer, s.collector, s.logger)

	if err := s.registry.Add(sess); err != nil {
		return nil, err
	}
	if err := sess.Start(ctx); err != nil {
		return nil, err
	}
	go sess.Run(context.Background())
	return sess, nil
}

func (s *Server) startHTTPServer() error {
	healthHandler := handlers.NewHealthHandler(Version, s.registry.Len, s.logger)
	healthHandler.RegisterCheck(handlers.HealthCheckFunc{
		CheckName: "pipeline",
		Fn:        s.pipeline.Ping,
	})
	if s.cache != nil {
		healthHandler.RegisterCheck(handlers.HealthCheckFunc{
			CheckName: "redis",
			Fn:        s.cache.Ping,
		})
	}

	streamHandler := handlers.NewStreamHandler(s.newSession, s.logger)
	callsHandler := handlers.NewCallsHandler(s.registry, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", healthHandler.HandleReady)
	mux.HandleFunc("GET /version", healthHandler.HandleVersion)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/ws/telephony", streamHandler.HandleStream)
	mux.HandleFunc("GET /api/v1/calls", callsHandler.HandleList)
	mux.HandleFunc("POST /api/v1/calls/{sid}/end", callsHandler.HandleEnd)

	skipAuthPaths := []string{"/health", "/ready", "/version", "/metrics", "/ws/telephony"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		MetricsMiddleware(s.collector),
		OTelTracing("callbridge/http"),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		JWTAuth(s.cfg.Auth, skipAuthPaths, s.logger),
	)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.httpManager.Start()
}

// WaitForShutdown blocks until a signal or server error, then tears down.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForSignal()
	s.Shutdown()
}

// Shutdown ends every active call, then stops the server and collaborators.
// Calls get the shutdown budget to finish their saves.
func (s *Server) Shutdown() {
	s.logger.Info("shutting down", zap.Int("active_calls", s.registry.Len()))

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.registry.EndAll(ctx, "shutdown")

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if err := s.httpManager.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown error", zap.Error(err))
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("cache close error", zap.Error(err))
		}
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("shutdown complete")
}
