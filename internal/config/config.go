package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Configはアプリ全体の設定
type Config struct {
	Port string `envconfig:"PORT" default:"8080"` // サーバーポート

	DatabaseURL      string `envconfig:"DATABASE_URL"` // あれば最優先
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"postgres"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"storefront"`
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	JWTSecret     string        `envconfig:"JWT_SECRET" required:"true"` // JWT署名シークレット
	TokenTTL      time.Duration `envconfig:"TOKEN_TTL" default:"8760h"`  // 1年
	ResetTokenTTL time.Duration `envconfig:"RESET_TOKEN_TTL" default:"1h"`
	CookieSecure  bool          `envconfig:"COOKIE_SECURE" default:"false"`

	StripeSecretKey string        `envconfig:"STRIPE_SECRET_KEY"`
	Currency        string        `envconfig:"CURRENCY" default:"USD"`
	PaymentTimeout  time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"30s"`
	CheckoutLockTTL time.Duration `envconfig:"CHECKOUT_LOCK_TTL" default:"2m"`

	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"no-reply@storefront.local"`

	FEURL     string `envconfig:"FRONTEND_URL" default:"http://localhost:7777"` // リセットメールのリンク先
	GoEnv     string `envconfig:"GO_ENV" default:"dev"`                         // dev/prod
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`                    // text/json
}

// Loadは.env（あれば）を読んでから環境変数を読む
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}

	//必須チェック
	if cfg.GoEnv == "prod" && cfg.StripeSecretKey == "" {
		return Config{}, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if len(cfg.Currency) != 3 {
		return Config{}, fmt.Errorf("CURRENCY must be a 3-letter code")
	}
	if cfg.PaymentTimeout <= 0 {
		return Config{}, fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	return cfg, nil
}

// DSN はgorm(postgres)用の接続文字列
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

// Addr は ":8080" 形式
func (c Config) Addr() string {
	if c.Port != "" && c.Port[0] == ':' {
		return c.Port
	}
	return ":" + c.Port
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}
