package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName         = "MenuMarket"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultEnvFile         = ".env"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultTokenTTL        = 12 * time.Hour
	minTokenTTL            = time.Hour
	maxTokenTTL            = 24 * time.Hour
	defaultTokenIssuer     = "menumarket"
	defaultKeyID           = "k1"
	defaultStoreTimeout    = 3 * time.Second
	defaultLockTTL         = 10 * time.Second
	defaultSignupBonus     = 100
	defaultLoginRateLimit  = 5
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret       string
	JWTKeyID        string
	JWTPreviousKeys map[string]string
	TokenTTL        time.Duration
	TokenIssuer     string

	StoreTimeout     time.Duration
	PurchaseLockTTL  time.Duration
	SignupBonusCoins int64
	LoginRateLimit   int
}

// Load reads configuration values from the environment and populates a Config instance.
// A dotenv file named by ENV_FILE (default ".env") is applied first when present; variables
// already set in the process environment win.
func Load() (Config, error) {
	if err := loadEnvFile(getEnv("ENV_FILE", defaultEnvFile)); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		ShutdownPeriod:   defaultShutdownDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTKeyID:         getEnv("JWT_KEY_ID", defaultKeyID),
		JWTPreviousKeys:  map[string]string{},
		TokenTTL:         defaultTokenTTL,
		TokenIssuer:      getEnv("TOKEN_ISSUER", defaultTokenIssuer),
		StoreTimeout:     defaultStoreTimeout,
		PurchaseLockTTL:  defaultLockTTL,
		SignupBonusCoins: defaultSignupBonus,
		LoginRateLimit:   defaultLoginRateLimit,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = durationFromEnv("", "TOKEN_TTL", cfg.TokenTTL); err != nil {
		return Config{}, err
	}
	cfg.TokenTTL = clampDuration(cfg.TokenTTL, minTokenTTL, maxTokenTTL)
	if cfg.StoreTimeout, err = durationFromEnv("", "STORE_TIMEOUT", cfg.StoreTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PurchaseLockTTL, err = durationFromEnv("", "PURCHASE_LOCK_TTL", cfg.PurchaseLockTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("SIGNUP_BONUS_COINS"); v != "" {
		coins, err := strconv.ParseInt(v, 10, 64)
		if err != nil || coins < 0 {
			return Config{}, fmt.Errorf("invalid SIGNUP_BONUS_COINS: %q", v)
		}
		cfg.SignupBonusCoins = coins
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOGIN_RATE_LIMIT: %w", err)
		}
		cfg.LoginRateLimit = n
	}

	if cfg.JWTPreviousKeys, err = parseKeyList(os.Getenv("JWT_PREVIOUS_KEYS")); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}
	if _, clash := cfg.JWTPreviousKeys[cfg.JWTKeyID]; clash {
		return Config{}, fmt.Errorf("JWT_PREVIOUS_KEYS reuses current key id %q", cfg.JWTKeyID)
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether in-memory backends are acceptable.
func (c Config) IsDev() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

// parseKeyList reads "kid:secret,kid:secret".
func parseKeyList(raw string) (map[string]string, error) {
	keys := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kid, secret, ok := strings.Cut(part, ":")
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("invalid JWT_PREVIOUS_KEYS entry %q", part)
		}
		keys[kid] = secret
	}
	return keys, nil
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
