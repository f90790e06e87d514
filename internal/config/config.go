package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	AppBaseURL  string `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`

	JWTSecret            string `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer            string `env:"JWT_ISSUER" envDefault:"lifesuite"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"10080"`

	VerificationTTL      time.Duration `env:"VERIFICATION_TTL" envDefault:"24h"`
	PasswordResetTTL     time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"1h"`
	TwoFactorTTL         time.Duration `env:"TWO_FACTOR_TTL" envDefault:"10m"`
	TwoFactorMaxAttempts int           `env:"TWO_FACTOR_MAX_ATTEMPTS" envDefault:"5"`

	MailSendTimeout time.Duration `env:"MAIL_SEND_TIMEOUT" envDefault:"10s"`
	MailWaitTimeout time.Duration `env:"MAIL_WAIT_TIMEOUT" envDefault:"2s"`
	MailRateWindow  time.Duration `env:"MAIL_RATE_WINDOW" envDefault:"10m"`
	MailRateMax     int           `env:"MAIL_RATE_MAX" envDefault:"3"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"LifeSuite"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	CleanupSchedule string        `env:"CLEANUP_SCHEDULE" envDefault:"@daily"`
	CleanupGrace    time.Duration `env:"CLEANUP_GRACE" envDefault:"168h"`
}

var (
	ErrDatabaseURLRequired = errors.New("config: DATABASE_URL is required for the postgres store")
	ErrUnknownStoreDriver  = errors.New("config: STORE_DRIVER must be postgres or memory")
)

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, ErrDatabaseURLRequired
		}
	case "memory":
	default:
		return nil, ErrUnknownStoreDriver
	}
	return &cfg, nil
}

// ClientConfig configura el cliente y su guardia de sesión.
type ClientConfig struct {
	APIBaseURL        string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	SessionFile       string        `env:"SESSION_FILE" envDefault:".lifesuite-session.json"`
	InactivityTimeout time.Duration `env:"INACTIVITY_TIMEOUT" envDefault:"30m"`
	CheckInterval     time.Duration `env:"SESSION_CHECK_INTERVAL" envDefault:"60s"`
	ActivitySample    time.Duration `env:"ACTIVITY_SAMPLE_INTERVAL" envDefault:"1m"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
}

// LoadClientConfig carga la configuración del cliente desde variables de entorno.
func LoadClientConfig() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
