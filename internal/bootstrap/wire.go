package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/pharmacy-auth/internal/application/auth"
	"github.com/baechuer/pharmacy-auth/internal/audit"
	"github.com/baechuer/pharmacy-auth/internal/config"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/db/postgres"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/memory"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/redis"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/security"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/seed"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/smtp"
	"github.com/baechuer/pharmacy-auth/internal/logger"
	http_handlers "github.com/baechuer/pharmacy-auth/internal/transport/http/handlers"
	"github.com/baechuer/pharmacy-auth/internal/transport/http/middleware"
	"github.com/baechuer/pharmacy-auth/internal/transport/http/proxy"
	"github.com/baechuer/pharmacy-auth/internal/transport/http/response"
	"github.com/baechuer/pharmacy-auth/internal/transport/http/router"
)

/*
========================
 Public entry (prod)
========================
*/

func NewServer() (*http.Server, func(), error) {
	return newServer(defaultDeps())
}

// NewServerWithDeps allows injecting dependencies for testing
func NewServerWithDeps(deps Deps) (*http.Server, func(), error) {
	return newServer(deps)
}

/*
========================
 Dependency injection
========================
*/

type Deps struct {
	LoadConfig func() (*config.Config, error)

	NewDB func(addr string, debug bool) (*sql.DB, error)

	NewRedis func(addr, password string, db int) RedisClient

	NewMailer func(cfg *config.Config, log zerolog.Logger) (auth.CodeMailer, error)

	NewRouter func(router.Deps) (http.Handler, error)
}

type RedisClient interface {
	Ping(ctx context.Context) error
	Close() error
}

// userStore is what both the postgres and memory repos offer.
type userStore interface {
	auth.UserRepo
	seed.Repo
}

/*
========================
 Core bootstrap logic
========================
*/

func newServer(deps Deps) (*http.Server, func(), error) {
	// 0) config
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()
	fail := func(err error) (*http.Server, func(), error) {
		runCleanup(cleanupFns)
		return nil, nil, err
	}

	var checks []http_handlers.Check

	// 1) credential store
	var users userStore
	if cfg.DBAddr != "" {
		db, err := deps.NewDB(cfg.DBAddr, cfg.DBDebug)
		if err != nil {
			return fail(fmt.Errorf("bootstrap: db: %w", err))
		}
		cleanupFns = append(cleanupFns, func() { _ = db.Close() })
		checks = append(checks, http_handlers.Check{Name: "db", Ping: db.PingContext})

		if cfg.IsDev() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := postgres.EnsureSchema(ctx, db)
			cancel()
			if err != nil {
				return fail(err)
			}
		}
		users = postgres.NewUserRepo(db)
	} else {
		logger.Logger.Warn().Msg("DB_ADDR not set; using in-memory users (dev only)")
		users = memory.NewUserRepo()
	}

	// 2) redis (best-effort)
	var redisCli *redis.Client
	if cfg.RedisAddr != "" && deps.NewRedis != nil {
		c := deps.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := c.Ping(ctx)
		cancel()

		if err != nil {
			logger.Logger.Warn().Err(err).Msg("redis unavailable; using in-memory stores")
			_ = c.Close()
		} else {
			logger.Logger.Info().Msg("redis connected")
			cleanupFns = append(cleanupFns, func() { _ = c.Close() })
			checks = append(checks, http_handlers.Check{Name: "redis", Ping: c.Ping})
			if rc, ok := c.(*redis.Client); ok {
				redisCli = rc
			}
		}
	}

	// 3) verification + revocation stores
	var codes auth.VerificationStore
	var revoked auth.RevocationStore
	var limiter *redis.FixedWindowLimiter
	if redisCli != nil {
		codes = redis.NewVerificationStore(redisCli)
		revoked = redis.NewRevocationStore(redisCli)
		limiter = redis.NewFixedWindowLimiter(redisCli)
	} else {
		codes = memory.NewVerificationStore()
		revoked = memory.NewRevocationStore()
	}

	// 4) code delivery
	mailer, err := deps.NewMailer(cfg, logger.Logger)
	if err != nil {
		if !cfg.IsDev() {
			return fail(err)
		}
		logger.Logger.Warn().Err(err).Str("transport", cfg.MailTransport).Msg("code mailer unavailable; logging codes instead")
		mailer = memory.NewLogMailer(logger.Logger)
	}
	if c, ok := mailer.(interface{ Close() error }); ok {
		cleanupFns = append(cleanupFns, func() { _ = c.Close() })
	}
	if p, ok := mailer.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, http_handlers.Check{Name: "rabbitmq", Ping: p.Ping})
	}

	// 5) security
	logger.Logger.Info().Str("issuer", cfg.JWTIssuer).Dur("session_ttl", cfg.SessionTTL).Msg("initializing session codec")
	hasher := security.NewBcryptHasher(cfg.BcryptCost)
	codec := security.NewJWTCodec(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL)

	if cfg.MasterCodeSalt == "" {
		logger.Logger.Info().Msg("MASTER_CODE_SALT not set; master fallback code disabled")
	}

	// seed (dev only)
	if cfg.IsDev() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		seed.Users(ctx, users, hasher, seed.DevAccounts, logger.Logger)
		cancel()
	}

	// 6) service
	authSvc := auth.NewService(
		users,
		hasher,
		codec,
		codes,
		revoked,
		mailer,
		auth.Config{
			CodeTTL:            cfg.CodeTTL,
			CodeMaxAttempts:    cfg.CodeMaxAttempts,
			CodeResendInterval: cfg.CodeResendInterval,
			MasterCodeSalt:     cfg.MasterCodeSalt,
		},
	).WithAudit(audit.New(logger.Logger).Record)

	// 7) handlers + middleware
	cookieCfg := security.CookieConfig{
		Name:       cfg.SessionCookieName,
		Secure:     cfg.CookieSecure(),
		Domain:     cfg.CookieDomain,
		ClearPaths: cfg.CookieClearPaths,
	}

	authH := http_handlers.NewAuthHandler(authSvc, cookieCfg)
	healthH := http_handlers.NewHealthHandler(checks...)

	var app http.Handler = http.HandlerFunc(http_handlers.Placeholder)
	if cfg.UpstreamURL != "" {
		p, err := proxy.New(cfg.UpstreamURL)
		if err != nil {
			return fail(err)
		}
		app = p
	} else {
		logger.Logger.Warn().Msg("UPSTREAM_URL not set; serving placeholder pages")
	}

	// rate limit: shared window in redis, per-instance otherwise (fail-open)
	rl := func(scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
		return middleware.RateLimit(
			limiter,
			middleware.FixedWindowConfig{
				Scope:  scope,
				Limit:  limit,
				Window: window,
			},
			response.WriteError,
		)
	}

	realIP, err := middleware.TrustedRealIP(cfg.TrustedProxies)
	if err != nil {
		return fail(fmt.Errorf("bootstrap: %w", err))
	}

	// 8) router
	mux, err := deps.NewRouter(router.Deps{
		Health: healthH,
		Auth:   authH,
		App:    app,

		RequestIDMW: middleware.RequestID,
		RealIPMW:    realIP,
		GuardMW:     middleware.Guard(authSvc, middleware.DefaultGuardConfig(cookieCfg), response.WriteError),
		CSRFMW:      middleware.CSRFProtection(cfg.AllowedOrigins, response.WriteError),

		RLLogin:      rl("auth.login", 10, time.Minute),
		RLSendCode:   rl("auth.send_code", 5, 10*time.Minute),
		RLVerifyCode: rl("auth.verify_code", 20, time.Minute),
		RLLogout:     rl("auth.logout", 30, time.Minute),
	})
	if err != nil {
		return fail(err)
	}

	// 9) server
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	var once sync.Once
	cleanup := func() {
		once.Do(func() { runCleanup(cleanupFns) })
	}

	return srv, cleanup, nil
}

/*
========================
 Default deps (prod)
========================
*/

func defaultDeps() Deps {
	return Deps{
		LoadConfig: config.Load,
		NewDB:      config.NewDB,
		NewRedis: func(addr, password string, db int) RedisClient {
			return redis.New(addr, password, db)
		},
		NewMailer: newMailer,
		NewRouter: router.New,
	}
}

// newMailer picks the code delivery transport from MAIL_TRANSPORT.
func newMailer(cfg *config.Config, log zerolog.Logger) (auth.CodeMailer, error) {
	switch cfg.MailTransport {
	case config.MailTransportSMTP:
		m, err := smtp.NewCodeMailer(smtp.Config{
			Host:          cfg.SMTPHost,
			Port:          cfg.SMTPPort,
			TLS:           cfg.SMTPTLS,
			Username:      cfg.SMTPUsername,
			Password:      cfg.SMTPPassword,
			From:          cfg.SMTPFrom,
			RatePerSecond: cfg.MailRatePerSecond,
			Burst:         cfg.MailBurst,
		}, log)
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.MailTransportRabbitMQ:
		m, err := rabbitmq.NewCodeMailer(cfg.RabbitURL, cfg.RabbitExchange, log)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return memory.NewLogMailer(log), nil
	}
}

/*
========================
 helpers
========================
*/

func runCleanup(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
