package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/analytics"
	"github.com/formwright/formwright/internal/approval"
	"github.com/formwright/formwright/internal/audit"
	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/config"
	"github.com/formwright/formwright/internal/database"
	"github.com/formwright/formwright/internal/export"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/notify"
	"github.com/formwright/formwright/internal/realtime"
	"github.com/formwright/formwright/internal/responses"
	"github.com/formwright/formwright/internal/server/requestlog"
	"github.com/formwright/formwright/internal/storage"
	"github.com/formwright/formwright/internal/validator"
	"github.com/formwright/formwright/internal/webhooks"
	"github.com/formwright/formwright/internal/workflow"
)

// Server wires together the domain services (C1-C12) behind one HTTP
// listener: identity, forms, responses, permissions, approval, workflow,
// webhook dispatch, notification, realtime push, storage and analytics.
type Server struct {
	cfg *config.Config
	db  *database.DB

	auth        *auth.Service
	blacklist   *auth.TokenBlacklist
	forms       *forms.Store
	responses   *responses.Store
	workflows   *workflow.Store
	workflowEng *workflow.Engine
	approvalEng *approval.Engine
	notifier    *notify.Notifier
	dispatcher  *webhooks.Dispatcher
	retryWorker *webhooks.RetryWorker
	analytics   *analytics.Aggregator
	exporter    *export.Exporter
	broker      *realtime.Broker
	audit       *audit.Store

	storageStore *storage.Store
	storageSvc   *storage.Service
	sweepSvc     *storage.SweepService

	requestLogs     *requestlog.Store
	httpServer      *http.Server
	router          *Router
	loginLimiter    *RateLimiter
	registerLimiter *RateLimiter

	mu sync.RWMutex
}

const defaultRequestLogCapacity = 1000

type Option func(*Server)

// New builds a Server from configuration, constructing every domain
// service and wiring their cross-dependencies (response publisher,
// notifier, dispatcher) before the router is assembled.
func New(cfg *config.Config, db *database.DB, opts ...Option) *Server {
	srv := &Server{
		cfg:         cfg,
		db:          db,
		requestLogs: requestlog.NewStore(defaultRequestLogCapacity),
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.blacklist = auth.NewTokenBlacklist(db)
	smsGateway := &auth.LogSMSGateway{Provider: cfg.SMS.Provider}
	srv.auth = auth.NewService(db, &cfg.Auth, smsGateway, srv.blacklist)

	srv.forms = forms.NewStore(db)
	srv.responses = responses.NewStore(db, validator.New())
	srv.workflows = workflow.NewStore(db)
	srv.audit = audit.NewStore(db)

	emailGateway := notify.NewSMTPGateway(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUsername, cfg.Email.SMTPPassword, cfg.Email)
	srv.notifier = notify.New(emailGateway, cfg.Email.BaseURL)

	srv.approvalEng = approval.NewEngine(srv.responses, srv.notifier)
	srv.workflowEng = workflow.NewEngine(srv.workflows, srv.responses, srv.forms, srv.notifier)

	retryCfg := webhooks.RetryConfig{
		MaxAttempts:  cfg.Webhooks.MaxAttempts,
		Schedule:     cfg.Webhooks.BackoffSteps,
		PollInterval: cfg.Webhooks.PollInterval,
	}
	srv.retryWorker = webhooks.NewRetryWorker(db, retryCfg)
	srv.dispatcher = webhooks.NewDispatcher(srv.retryWorker)

	srv.analytics = analytics.NewAggregator(db, srv.forms, srv.responses)
	srv.exporter = export.NewExporter(srv.forms, srv.responses)

	if cfg.Realtime.Enabled {
		brokerCfg := &realtime.BrokerConfig{MaxConnections: cfg.Realtime.MaxConnections}
		srv.broker = realtime.NewBroker(srv.forms, srv.responses, brokerCfg)
		srv.responses.SetPublisher(srv.broker)
	}

	if backend, err := storage.NewBackend(context.Background(), storageBackendConfig(cfg.Storage)); err != nil {
		log.Warn().Err(err).Msg("storage backend unavailable; file uploads disabled")
	} else {
		srv.storageStore = storage.NewStore(db)
		srv.storageSvc = storage.NewService(srv.storageStore, backend, srv.forms)
		srv.sweepSvc = storage.NewSweepService(srv.storageStore, backend, srv.responses, cfg.Storage.OrphanAge)
	}

	srv.loginLimiter = NewRateLimiter(cfg.Auth.RateLimit.Login)
	srv.registerLimiter = NewRateLimiter(cfg.Auth.RateLimit.Register)

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv
}

func storageBackendConfig(cfg config.StorageConfig) storage.BackendConfig {
	return storage.BackendConfig{
		Type:        cfg.Backend,
		Path:        cfg.LocalPath,
		Endpoint:    cfg.S3Endpoint,
		Bucket:      cfg.S3Bucket,
		Region:      cfg.S3Region,
		Compression: cfg.Compression,
	}
}

// Start runs background workers (webhook retry, storage sweep) and blocks
// serving HTTP until the listener stops.
func (s *Server) Start(ctx context.Context) error {
	s.retryWorker.Start(ctx)

	if s.sweepSvc != nil {
		if err := s.sweepSvc.Start(s.cfg.Storage.SweepInterval); err != nil {
			log.Warn().Err(err).Msg("failed to start orphaned upload sweep")
		}
	}

	log.Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown stops background workers and the HTTP listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.retryWorker.Stop()
	if s.sweepSvc != nil {
		s.sweepSvc.Stop()
	}
	s.loginLimiter.Stop()
	s.registerLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) DB() *database.DB                { return s.db }
func (s *Server) Config() *config.Config          { return s.cfg }
func (s *Server) Auth() *auth.Service             { return s.auth }
func (s *Server) Forms() *forms.Store             { return s.forms }
func (s *Server) Responses() *responses.Store     { return s.responses }
func (s *Server) Workflows() *workflow.Store      { return s.workflows }
func (s *Server) WorkflowEngine() *workflow.Engine { return s.workflowEng }
func (s *Server) ApprovalEngine() *approval.Engine { return s.approvalEng }
func (s *Server) Notifier() *notify.Notifier       { return s.notifier }
func (s *Server) Dispatcher() *webhooks.Dispatcher { return s.dispatcher }
func (s *Server) Analytics() *analytics.Aggregator { return s.analytics }
func (s *Server) Exporter() *export.Exporter       { return s.exporter }
func (s *Server) Broker() *realtime.Broker         { return s.broker }
func (s *Server) Audit() *audit.Store              { return s.audit }
func (s *Server) StorageService() *storage.Service { return s.storageSvc }
func (s *Server) RequestLogs() *requestlog.Store   { return s.requestLogs }
func (s *Server) LoginLimiter() *RateLimiter       { return s.loginLimiter }
func (s *Server) RegisterLimiter() *RateLimiter    { return s.registerLimiter }
