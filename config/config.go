package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	DefaultEnv                    = "development"
	DefaultPort                   = "8080"
	DefaultRealtimePort           = "8081"
	DefaultJWTIssuer              = "automobile-service"
	DefaultAccessTokenExpiryMin   = 15
	DefaultRememberMeExpiryMin    = 30 * 24 * 60
	DefaultRefreshTokenExpiryMin  = 7 * 24 * 60
	DefaultMaxActiveRefreshTokens = 5
	DefaultLoginMaxAttempts       = 5
	DefaultLockoutMinutes         = 30
	DefaultRateLimitMax           = 20
	DefaultRateLimitWindowSec     = 60
	DefaultLogLevel               = "info"
)

type Config struct {
	Env          string
	Port         string
	RealtimePort string
	DBURL        string
	RedisURL     string
	NatsURL      string

	JWTSecret           string
	JWTIssuer           string
	AccessExpiryMin     int
	RememberMeExpiryMin int
	RefreshExpiryMin    int

	MaxActiveRefreshTokens int
	LoginMaxAttempts       int
	LockoutMinutes         int

	RateLimitMax       int
	RateLimitWindowSec int

	CookieDomain string
	CookieSecure bool

	RealtimeAllowAnonymous bool
	AllowedOrigins         string

	LogLevel string
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads config/.env.dev or config/.env.prod depending on ENV. Environment
// variables take precedence over file values. Missing required keys are fatal.
func Load() *Config {
	env := getEnv("ENV", DefaultEnv)

	v := viper.New()
	v.SetConfigFile(filepath.Join("config", envFileName(env)))
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			logrus.Warnf("Could not read config file for %s: %v", env, err)
		}
	}

	return &Config{
		Env:          env,
		Port:         getString(v, "PORT", DefaultPort),
		RealtimePort: getString(v, "REALTIME_PORT", DefaultRealtimePort),
		DBURL:        mustGetString(v, "DB_URL"),
		RedisURL:     getString(v, "REDIS_URL", ""),
		NatsURL:      getString(v, "NATS_URL", ""),

		JWTSecret:           mustGetString(v, "JWT_SECRET"),
		JWTIssuer:           getString(v, "JWT_ISSUER", DefaultJWTIssuer),
		AccessExpiryMin:     getInt(v, "ACCESS_TOKEN_EXPIRY", DefaultAccessTokenExpiryMin),
		RememberMeExpiryMin: getInt(v, "REMEMBER_ME_EXPIRY", DefaultRememberMeExpiryMin),
		RefreshExpiryMin:    getInt(v, "REFRESH_TOKEN_EXPIRY", DefaultRefreshTokenExpiryMin),

		MaxActiveRefreshTokens: getInt(v, "MAX_ACTIVE_REFRESH_TOKENS", DefaultMaxActiveRefreshTokens),
		LoginMaxAttempts:       getInt(v, "LOGIN_MAX_ATTEMPTS", DefaultLoginMaxAttempts),
		LockoutMinutes:         getInt(v, "LOCKOUT_MINUTES", DefaultLockoutMinutes),

		RateLimitMax:       getInt(v, "RATE_LIMIT_MAX", DefaultRateLimitMax),
		RateLimitWindowSec: getInt(v, "RATE_LIMIT_WINDOW_SEC", DefaultRateLimitWindowSec),

		CookieDomain: getString(v, "COOKIE_DOMAIN", ""),
		CookieSecure: getBool(v, "COOKIE_SECURE", env == "production"),

		RealtimeAllowAnonymous: getBool(v, "REALTIME_ALLOW_ANONYMOUS", true),
		AllowedOrigins:         getString(v, "ALLOWED_ORIGINS", ""),

		LogLevel: getString(v, "LOG_LEVEL", DefaultLogLevel),
	}
}

func envFileName(env string) string {
	if env == "production" {
		return ".env.prod"
	}
	return ".env.dev"
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getString(v *viper.Viper, key, defaultVal string) string {
	if value := v.GetString(key); value != "" {
		return value
	}
	return defaultVal
}

func mustGetString(v *viper.Viper, key string) string {
	if value := v.GetString(key); value != "" {
		return value
	}
	logrus.Fatalf("Missing required config: %s", key)
	return ""
}

func getInt(v *viper.Viper, key string, defaultVal int) int {
	raw := v.GetString(key)
	if raw == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		logrus.Warnf("Invalid value for %s, using default %d", key, defaultVal)
		return defaultVal
	}
	return val
}

func getBool(v *viper.Viper, key string, defaultVal bool) bool {
	raw := v.GetString(key)
	if raw == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		logrus.Warnf("Invalid value for %s, using default %t", key, defaultVal)
		return defaultVal
	}
	return val
}
