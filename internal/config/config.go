package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProviderConfig holds the OAuth settings for one social platform. Endpoints
// default to the real provider URLs and are overridable for tests.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	APIBaseURL   string
}

// Configured reports whether the provider can be used for authorization.
func (p ProviderConfig) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// RateLimitPolicy names one sliding-window admission policy.
type RateLimitPolicy struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	ServiceName          string
	AppBaseURL           string
	OAuthRedirectBaseURL string
	DatabaseURL          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	JWTSecret            string
	SessionTTL           time.Duration
	StateSigningSecret   string
	TokenEncryptionKey   string
	TokenPreviousKey     string
	TokenPassphrase      string
	TokenSalt            string
	LinkedIn             ProviderConfig
	Twitter              ProviderConfig
	AuthRateLimit        RateLimitPolicy
	PublishRateLimit     RateLimitPolicy
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Production reports whether cookies must be Secure and error details hidden.
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Provider returns the platform's OAuth settings.
func (c Config) Provider(platform string) (ProviderConfig, bool) {
	switch strings.ToLower(platform) {
	case "linkedin":
		return c.LinkedIn, true
	case "twitter", "x":
		return c.Twitter, true
	default:
		return ProviderConfig{}, false
	}
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		ServiceName:          getEnv("SERVICE_NAME", "posture-publisher"),
		AppBaseURL:           strings.TrimRight(os.Getenv("APP_BASE_URL"), "/"),
		OAuthRedirectBaseURL: strings.TrimRight(os.Getenv("OAUTH_REDIRECT_BASE_URL"), "/"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		SessionTTL:           getDuration("SESSION_TTL", 24*time.Hour),
		StateSigningSecret:   os.Getenv("STATE_SIGNING_SECRET"),
		TokenEncryptionKey:   os.Getenv("TOKEN_ENCRYPTION_KEY"),
		TokenPreviousKey:     os.Getenv("TOKEN_ENCRYPTION_KEY_PREVIOUS"),
		TokenPassphrase:      os.Getenv("TOKEN_ENCRYPTION_PASSPHRASE"),
		TokenSalt:            os.Getenv("TOKEN_ENCRYPTION_SALT"),
		LinkedIn: ProviderConfig{
			ClientID:     os.Getenv("LINKEDIN_CLIENT_ID"),
			ClientSecret: os.Getenv("LINKEDIN_CLIENT_SECRET"),
			Scopes:       getList("LINKEDIN_SCOPES", []string{"openid", "profile", "w_member_social"}),
			AuthURL:      getEnv("LINKEDIN_AUTH_URL", "https://www.linkedin.com/oauth/v2/authorization"),
			TokenURL:     getEnv("LINKEDIN_TOKEN_URL", "https://www.linkedin.com/oauth/v2/accessToken"),
			UserInfoURL:  getEnv("LINKEDIN_USERINFO_URL", "https://api.linkedin.com/v2/userinfo"),
			APIBaseURL:   getEnv("LINKEDIN_API_BASE_URL", "https://api.linkedin.com"),
		},
		Twitter: ProviderConfig{
			ClientID:     os.Getenv("TWITTER_CLIENT_ID"),
			ClientSecret: os.Getenv("TWITTER_CLIENT_SECRET"),
			Scopes:       getList("TWITTER_SCOPES", []string{"tweet.read", "tweet.write", "users.read", "offline.access"}),
			AuthURL:      getEnv("TWITTER_AUTH_URL", "https://twitter.com/i/oauth2/authorize"),
			TokenURL:     getEnv("TWITTER_TOKEN_URL", "https://api.twitter.com/2/oauth2/token"),
			UserInfoURL:  getEnv("TWITTER_USERINFO_URL", "https://api.twitter.com/2/users/me"),
			APIBaseURL:   getEnv("TWITTER_API_BASE_URL", "https://api.twitter.com"),
		},
		AuthRateLimit: RateLimitPolicy{
			MaxRequests: getInt("RATE_LIMIT_AUTH_MAX", 10),
			Window:      getDuration("RATE_LIMIT_AUTH_WINDOW", time.Minute),
			KeyPrefix:   "rl:auth",
		},
		PublishRateLimit: RateLimitPolicy{
			MaxRequests: getInt("RATE_LIMIT_PUBLISH_MAX", 5),
			Window:      getDuration("RATE_LIMIT_PUBLISH_WINDOW", time.Minute),
			KeyPrefix:   "rl:publish",
		},
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.AppBaseURL == "" {
		return Config{}, fmt.Errorf("APP_BASE_URL is required")
	}
	if cfg.OAuthRedirectBaseURL == "" {
		cfg.OAuthRedirectBaseURL = cfg.AppBaseURL
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.StateSigningSecret == "" {
		return Config{}, fmt.Errorf("STATE_SIGNING_SECRET is required")
	}
	if cfg.TokenEncryptionKey == "" && cfg.TokenPassphrase == "" {
		return Config{}, fmt.Errorf("TOKEN_ENCRYPTION_KEY or TOKEN_ENCRYPTION_PASSPHRASE is required")
	}
	if cfg.TokenEncryptionKey == "" && cfg.TokenSalt == "" {
		return Config{}, fmt.Errorf("TOKEN_ENCRYPTION_SALT is required when deriving the key from a passphrase")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
