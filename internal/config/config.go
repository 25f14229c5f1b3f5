package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	// DevelopmentAPIURL は開発環境でAPI_URLが未設定の場合に使うローンAPIのURL。
	DevelopmentAPIURL = "http://localhost:8100"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	AppEnv string `env:"APP_ENV, default=development" validate:"oneof=development production test"`

	// Loan API
	APIURL     string        `env:"API_URL" validate:"omitempty,url"`
	APITimeout time.Duration `env:"API_TIMEOUT, default=10s" validate:"gt=0"`

	// Server
	ServerPort string `env:"SERVER_PORT, default=8080" validate:"numeric"`
	BaseURL    string `env:"BASE_URL, default=http://localhost:8080" validate:"url"`

	// Session cookie
	SessionCookieName string `env:"SESSION_COOKIE_NAME, default=session_token" validate:"required"`
	SessionMaxAge     int    `env:"SESSION_MAX_AGE, default=604800" validate:"gt=0"`
	CookieDomain      string `env:"COOKIE_DOMAIN"`
	CookieSecure      bool

	// FlashSecret はフラッシュCookieの署名鍵。開発環境で空の場合は起動ごとのランダム鍵。
	FlashSecret string `env:"FLASH_SECRET" validate:"omitempty,min=32"`

	// TrustedProxies はX-Forwarded-For等を信頼するプロキシのIPまたはCIDR（カンマ区切り）。
	TrustedProxies []string `env:"TRUSTED_PROXIES" validate:"dive,cidr|ip"`

	// Rate Limit (requests/min)
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL, default=120" validate:"gt=0"`
	RateLimitLogin   int `env:"RATE_LIMIT_LOGIN, default=10" validate:"gt=0"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN, default=http://localhost:3000"`

	// Logging
	LogLevel string `env:"LOG_LEVEL, default=info" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`

	Cloudinary CloudinaryConfig
}

// CloudinaryConfig は顧客写真のアップロード先。どちらかが空の場合アップロードは無効。
type CloudinaryConfig struct {
	CloudName    string `env:"CLOUDINARY_CLOUD_NAME"`
	UploadPreset string `env:"CLOUDINARY_UPLOAD_PRESET"`
}

// IsProduction は本番環境かを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// Load は環境変数からConfigを読み込む。
// 不正な値や本番環境での必須項目の欠落がある場合はエラーを返す。
func Load() (*Config, error) {
	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom は指定したLookuperからConfigを読み込む。
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.APIURL == "" && cfg.AppEnv != EnvProduction {
		cfg.APIURL = DevelopmentAPIURL
	}
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.TrustedProxies = trimAll(cfg.TrustedProxies)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.APIURL == "" {
		missing = append(missing, "API_URL")
	}
	if c.IsProduction() && c.FlashSecret == "" {
		missing = append(missing, "FLASH_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if err := validator.New().Struct(c); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid configuration: API_URL must be an http(s) URL: %q", c.APIURL)
	}
	return nil
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
