package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/certtrack/certificate-service/internal/auth"
	"github.com/certtrack/certificate-service/internal/cache"
	"github.com/certtrack/certificate-service/internal/config"
	"github.com/certtrack/certificate-service/internal/events"
	"github.com/certtrack/certificate-service/internal/limiter"
	"github.com/certtrack/certificate-service/internal/repositories"
	"github.com/certtrack/certificate-service/internal/storage"
	"github.com/certtrack/certificate-service/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	FrontendURL       string
	Tokens            config.TokenConfig
	ExpiryWindowDays  int
	WorkloadCap       int
	AnalyticsCacheTTL time.Duration

	// Now overrides the clock of every service; nil means time.Now
	Now func() time.Time
}

// ConfigFromApp derives the service configuration from the application config
func ConfigFromApp(cfg *config.Config) ServiceManagerConfig {
	return ServiceManagerConfig{
		FrontendURL:       cfg.FrontendURL,
		Tokens:            cfg.Tokens,
		ExpiryWindowDays:  cfg.Workflow.ExpiryWindowDays,
		WorkloadCap:       cfg.Workflow.WorkloadCap,
		AnalyticsCacheTTL: cfg.AnalyticsCacheTTL,
	}
}

// Dependencies are the collaborators shared by all services
type Dependencies struct {
	Repo      repositories.Repository
	Cache     *cache.CacheManager
	Publisher events.EventPublisher
	Files     storage.FileStore
	Limiter   limiter.Limiter
	Issuer    *auth.TokenIssuer
	Logger    *slog.Logger
	Validator *validator.Validator
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	deps   Dependencies
	config ServiceManagerConfig

	// Service instances
	tokenLedger        TokenLedger
	workloadBalancer   WorkloadBalancer
	certificateService CertificateService
	performanceScorer  PerformanceScorer
	analyticsService   AnalyticsService
	accountService     AccountService
	exportService      ExportService
	expiryAlertService ExpiryAlertService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(deps Dependencies, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{deps: deps, config: config}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	if err := sm.validateDependencies(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	sm.deps.Logger.Info("Initializing service manager")
	sm.initializeServices()

	sm.initialized = true
	sm.deps.Logger.Info("Service manager initialized successfully")
	return nil
}

func (sm *serviceManager) validateDependencies() error {
	var missing []error
	if sm.deps.Repo == nil {
		missing = append(missing, errors.New("repository is required"))
	}
	if sm.deps.Logger == nil {
		missing = append(missing, errors.New("logger is required"))
	}
	if sm.deps.Validator == nil {
		missing = append(missing, errors.New("validator is required"))
	}
	if sm.deps.Issuer == nil {
		missing = append(missing, errors.New("token issuer is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return err
	}

	if sm.deps.Cache == nil {
		sm.deps.Cache = cache.NewCacheManager(nil)
	}
	if sm.deps.Publisher == nil {
		sm.deps.Publisher = events.NewLogEventPublisher(sm.deps.Logger)
	}
	if sm.deps.Files == nil {
		sm.deps.Files = storage.Unconfigured{}
	}
	if sm.deps.Limiter == nil {
		sm.deps.Limiter = limiter.Noop{}
	}
	return nil
}

func (sm *serviceManager) initializeServices() {
	d, cfg := sm.deps, sm.config
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ledger := &tokenLedger{repo: d.Repo, ttls: cfg.Tokens, logger: d.Logger.With("service", "tokens"), now: now}
	sm.tokenLedger = ledger

	sm.workloadBalancer = NewWorkloadBalancer(d.Repo, cfg.WorkloadCap, d.Logger.With("service", "workload"))

	certificates := NewCertificateService(d.Repo, sm.workloadBalancer, d.Files, d.Cache, d.Publisher,
		d.Logger.With("service", "certificates"), d.Validator).(*certificateService)
	certificates.now = now
	sm.certificateService = certificates

	scorer := NewPerformanceScorer(d.Repo, d.Cache, cfg.ExpiryWindowDays, d.Logger.With("service", "performance")).(*performanceScorer)
	scorer.now = now
	sm.performanceScorer = scorer

	analytics := NewAnalyticsService(d.Repo, sm.workloadBalancer, d.Cache, cfg.AnalyticsCacheTTL, d.Logger.With("service", "analytics")).(*analyticsService)
	analytics.now = now
	sm.analyticsService = analytics

	sm.accountService = NewAccountService(d.Repo, ledger, sm.workloadBalancer, d.Issuer, d.Limiter, d.Cache, d.Publisher,
		AccountServiceConfig{FrontendURL: cfg.FrontendURL, Tokens: cfg.Tokens},
		d.Logger.With("service", "accounts"), d.Validator)

	export := NewExportService(d.Repo, sm.workloadBalancer, d.Logger.With("service", "export")).(*exportService)
	export.now = now
	sm.exportService = export

	alerts := NewExpiryAlertService(d.Repo, d.Publisher, cfg.ExpiryWindowDays, d.Logger.With("service", "expiry_alerts")).(*expiryAlertService)
	alerts.now = now
	sm.expiryAlertService = alerts
}

func (sm *serviceManager) ready() {
	if !sm.initialized {
		panic("service manager not initialized")
	}
}

// Service getters
func (sm *serviceManager) Account() AccountService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.accountService
}

func (sm *serviceManager) Certificate() CertificateService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.certificateService
}

func (sm *serviceManager) Workload() WorkloadBalancer {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.workloadBalancer
}

func (sm *serviceManager) Tokens() TokenLedger {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.tokenLedger
}

func (sm *serviceManager) Performance() PerformanceScorer {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.performanceScorer
}

func (sm *serviceManager) Analytics() AnalyticsService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.analyticsService
}

func (sm *serviceManager) Export() ExportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.exportService
}

func (sm *serviceManager) ExpiryAlerts() ExpiryAlertService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.expiryAlertService
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.deps.Repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	if sm.deps.Cache.Enabled() {
		if err := sm.deps.Cache.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}
	sm.shutdown = true

	sm.deps.Logger.Info("Shutting down service manager")
	if sm.deps.Publisher != nil {
		if err := sm.deps.Publisher.Close(); err != nil {
			return fmt.Errorf("failed to close event publisher: %w", err)
		}
	}
	return nil
}
