// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for minimal images
)

// Config holds all application configuration.
type Config struct {
	Port                string
	Environment         string
	LogLevel            string
	Debug               bool
	DBPath              string
	Timezone            string
	SessionTTL          time.Duration
	SweepInterval       time.Duration
	MessageLogRetention time.Duration
	RateLimitPerMinute  int
	CredentialKey       string
	Messenger           MessengerConfig
	Canvas              CanvasConfig
	Conversation        ConversationConfig
}

// MessengerConfig holds Graph API and webhook settings.
type MessengerConfig struct {
	PageAccessToken string
	VerifyToken     string
	AppSecret       string // empty disables webhook signature checks
	GraphAPIURL     string
	SetupToken      string // empty disables POST /setup
	Timeout         time.Duration
}

// CanvasConfig holds Canvas LMS client settings.
type CanvasConfig struct {
	BaseURL           string
	APIVersion        string
	Timeout           time.Duration
	MaxRetries        int
	CacheTTL          time.Duration
	CacheSize         int
	CourseConcurrency int
}

// ConversationConfig controls dialogue behaviour and user-facing links.
type ConversationConfig struct {
	PromptDelay          time.Duration
	UpcomingDays         int
	UpcomingLimit        int
	OverdueLookbackDays  int
	MaxFreeTasksPerMonth int
	PremiumCodes         []string
	PrivacyPolicyURL     string
	TermsURL             string
	TutorialURL          string
	UpgradeURL           string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Environment:         getEnv("APP_ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Debug:               getEnvBool("DEBUG", false),
		DBPath:              getEnv("DB_PATH", "./data/easely.db"),
		Timezone:            getEnv("TIMEZONE", getEnv("DEFAULT_TIMEZONE", "Asia/Manila")),
		SessionTTL:          getEnvDuration("SESSION_TTL", 24*time.Hour),
		SweepInterval:       getEnvDuration("SWEEP_INTERVAL", 15*time.Minute),
		MessageLogRetention: getEnvDuration("MESSAGE_LOG_RETENTION", 30*24*time.Hour),
		RateLimitPerMinute:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CredentialKey:       getEnv("CREDENTIAL_KEY", ""),
		Messenger: MessengerConfig{
			PageAccessToken: getEnv("PAGE_ACCESS_TOKEN", ""),
			VerifyToken:     getEnv("VERIFY_TOKEN", "easely_webhook_verify"),
			AppSecret:       getEnv("APP_SECRET", ""),
			GraphAPIURL:     strings.TrimRight(getEnv("GRAPH_API_URL", "https://graph.facebook.com/v17.0"), "/"),
			SetupToken:      getEnv("SETUP_TOKEN", ""),
			Timeout:         getEnvDuration("MESSENGER_TIMEOUT", 10*time.Second),
		},
		Canvas: CanvasConfig{
			BaseURL:           strings.TrimRight(getEnv("CANVAS_BASE_URL", "https://dlsu.instructure.com"), "/"),
			APIVersion:        getEnv("CANVAS_API_VERSION", "v1"),
			Timeout:           getEnvDuration("CANVAS_TIMEOUT", 15*time.Second),
			MaxRetries:        getEnvInt("CANVAS_MAX_RETRIES", 3),
			CacheTTL:          getEnvDuration("CANVAS_CACHE_TTL", 5*time.Minute),
			CacheSize:         getEnvInt("CANVAS_CACHE_SIZE", 1024),
			CourseConcurrency: getEnvInt("CANVAS_COURSE_CONCURRENCY", 4),
		},
		Conversation: ConversationConfig{
			PromptDelay:          getEnvDuration("ONBOARDING_PROMPT_DELAY", 5*time.Second),
			UpcomingDays:         getEnvInt("UPCOMING_DAYS", 30),
			UpcomingLimit:        getEnvInt("UPCOMING_LIMIT", 10),
			OverdueLookbackDays:  getEnvInt("OVERDUE_LOOKBACK_DAYS", 14),
			MaxFreeTasksPerMonth: getEnvInt("MAX_FREE_TASKS_PER_MONTH", 5),
			PremiumCodes:         getEnvList("PREMIUM_CODES"),
			PrivacyPolicyURL:     getEnv("PRIVACY_POLICY_URL", "https://easely.app/privacy"),
			TermsURL:             getEnv("TERMS_OF_USE_URL", "https://easely.app/terms"),
			TutorialURL:          getEnv("VIDEO_TUTORIAL_URL", "https://easely.app/tutorial"),
			UpgradeURL:           getEnv("UPGRADE_URL", getEnv("KOFI_SHOP_URL", "")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q is not a valid IANA zone: %w", c.Timezone, err)
	}
	if c.Messenger.VerifyToken == "" {
		return fmt.Errorf("VERIFY_TOKEN cannot be empty")
	}
	if !c.IsDevelopment() && c.Messenger.PageAccessToken == "" {
		return fmt.Errorf("PAGE_ACCESS_TOKEN is required outside development")
	}
	if c.Canvas.BaseURL == "" {
		return fmt.Errorf("CANVAS_BASE_URL cannot be empty")
	}
	if c.Canvas.CacheSize <= 0 {
		return fmt.Errorf("CANVAS_CACHE_SIZE must be > 0")
	}
	if c.Canvas.CourseConcurrency <= 0 {
		return fmt.Errorf("CANVAS_COURSE_CONCURRENCY must be > 0")
	}
	if c.Conversation.UpcomingLimit <= 0 {
		return fmt.Errorf("UPCOMING_LIMIT must be > 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "development"
}

// Location returns the configured timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go duration strings ("90s", "24h") or bare seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
