package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	//App
	Env string // dev / staging / prod
	//HTTP
	HTTPAddr         string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	AllowedOrigins   []string
	TrustedProxies   []string

	//Session
	JWTSecret         string
	JWTIssuer         string
	SessionTTL        time.Duration
	SessionCookieName string
	CookieDomain      string
	CookieClearPaths  []string

	//Second factor
	CodeTTL            time.Duration
	CodeMaxAttempts    int
	CodeResendInterval time.Duration
	MasterCodeSalt     string
	BcryptCost         int

	// Infrastructure
	DBAddr        string
	DBDebug       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Code delivery
	MailTransport     string // log / smtp / rabbitmq
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	SMTPFrom          string
	SMTPTLS           bool
	MailRatePerSecond float64
	MailBurst         int
	RabbitURL         string
	RabbitExchange    string

	// Guarded application behind the proxy; empty serves placeholder pages.
	UpstreamURL string
}

const (
	MailTransportLog      = "log"
	MailTransportSMTP     = "smtp"
	MailTransportRabbitMQ = "rabbitmq"
)

// IsDev reports whether relaxed local defaults apply (insecure cookies,
// memory fallbacks, seeded users).
func (c *Config) IsDev() bool { return c.Env == "dev" }

// CookieSecure is true everywhere except dev.
func (c *Config) CookieSecure() bool { return !c.IsDev() }

func Load() (*Config, error) {
	// optional .env for local runs; real env wins
	_ = godotenv.Load()

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		Env:      getEnv("ENV", "dev"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		JWTIssuer:         getEnv("JWT_ISSUER", "pharmacy-auth"),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "session"),
		CookieDomain:      strings.TrimSpace(os.Getenv("COOKIE_DOMAIN")),
		CookieClearPaths:  getList("COOKIE_CLEAR_PATHS", []string{"/"}),
		AllowedOrigins:    getList("ALLOWED_ORIGINS", nil),
		TrustedProxies:    getList("TRUSTED_PROXIES", nil),

		MasterCodeSalt: os.Getenv("MASTER_CODE_SALT"),

		DBAddr:        os.Getenv("DB_ADDR"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		MailTransport:  strings.ToLower(getEnv("MAIL_TRANSPORT", MailTransportLog)),
		SMTPHost:       os.Getenv("SMTP_HOST"),
		SMTPUsername:   os.Getenv("SMTP_USERNAME"),
		SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:       os.Getenv("SMTP_FROM"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		RabbitExchange: getEnv("RABBIT_EXCHANGE", "pharmacy.events"),

		UpstreamURL: strings.TrimSpace(os.Getenv("UPSTREAM_URL")),
	}

	switch cfg.Env {
	case "dev", "staging", "prod":
	default:
		collect(fmt.Errorf("invalid ENV %q (want dev, staging or prod)", cfg.Env))
	}

	// required values
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		collect(fmt.Errorf("missing required env var: JWT_SECRET"))
	}

	var err error
	cfg.HTTPReadTimeout, err = getDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.HTTPWriteTimeout, err = getDuration("HTTP_WRITE_TIMEOUT", 15*time.Second)
	collect(err)
	cfg.HTTPIdleTimeout, err = getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second)
	collect(err)
	cfg.SessionTTL, err = getDuration("SESSION_TTL", 7*24*time.Hour)
	collect(err)
	cfg.CodeTTL, err = getDuration("CODE_TTL", 10*time.Minute)
	collect(err)
	cfg.CodeResendInterval, err = getDuration("CODE_RESEND_INTERVAL", 30*time.Second)
	collect(err)

	cfg.CodeMaxAttempts, err = getInt("CODE_MAX_ATTEMPTS", 5)
	collect(err)
	cfg.BcryptCost, err = getInt("BCRYPT_COST", 12)
	collect(err)
	cfg.RedisDB, err = getInt("REDIS_DB", 0)
	collect(err)
	cfg.SMTPPort, err = getInt("SMTP_PORT", 587)
	collect(err)
	cfg.MailBurst, err = getInt("MAIL_BURST", 10)
	collect(err)
	cfg.MailRatePerSecond, err = getFloat("MAIL_RATE_PER_SECOND", 5)
	collect(err)

	cfg.DBDebug, err = getBool("DB_DEBUG", false)
	collect(err)
	cfg.SMTPTLS, err = getBool("SMTP_TLS", true)
	collect(err)

	if cfg.SessionTTL <= 0 {
		collect(fmt.Errorf("SESSION_TTL must be positive"))
	}
	if cfg.CodeTTL <= 0 {
		collect(fmt.Errorf("CODE_TTL must be positive"))
	}
	if cfg.CodeMaxAttempts <= 0 {
		collect(fmt.Errorf("CODE_MAX_ATTEMPTS must be positive"))
	}

	switch cfg.MailTransport {
	case MailTransportLog:
	case MailTransportSMTP:
		if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
			collect(fmt.Errorf("MAIL_TRANSPORT=smtp requires SMTP_HOST and SMTP_FROM"))
		}
	case MailTransportRabbitMQ:
		if cfg.RabbitURL == "" {
			collect(fmt.Errorf("MAIL_TRANSPORT=rabbitmq requires RABBIT_URL"))
		}
	default:
		collect(fmt.Errorf("invalid MAIL_TRANSPORT %q (want log, smtp or rabbitmq)", cfg.MailTransport))
	}

	if cfg.UpstreamURL != "" {
		u, err := url.Parse(cfg.UpstreamURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			collect(fmt.Errorf("invalid UPSTREAM_URL %q", cfg.UpstreamURL))
		}
	}

	// Infrastructure dependencies.
	// Outside dev the credential store is required; dev falls back to seeded
	// in-memory users.
	if !cfg.IsDev() {
		if cfg.DBAddr == "" {
			collect(fmt.Errorf("missing required env var: DB_ADDR"))
		}
		if cfg.MailTransport == MailTransportLog {
			collect(fmt.Errorf("MAIL_TRANSPORT=log is only allowed in dev"))
		}
	}
	if cfg.Env == "prod" {
		if len(cfg.JWTSecret) < 32 {
			collect(fmt.Errorf("JWT_SECRET must be at least 32 bytes in prod"))
		}
		if cfg.MasterCodeSalt != "" && cfg.MasterCodeSalt == cfg.JWTSecret {
			collect(fmt.Errorf("MASTER_CODE_SALT must differ from JWT_SECRET"))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for %s: %q: %w", key, v, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number for %s: %q: %w", key, v, err)
	}
	return f, nil
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid bool for %s: %q: %w", key, v, err)
	}
	return b, nil
}

// getList splits a comma separated value, dropping empty items.
func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
