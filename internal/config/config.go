package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Host   string
	Port   string
	APIKey string

	// PlayerTokenSecret signs player tokens; empty trusts the caller's player_id.
	PlayerTokenSecret string
	PlayerTokenTTL    time.Duration

	// StoreBackend selects the session store: redis, cassandra or memory.
	StoreBackend string
	Redis        RedisConfig
	Cassandra    CassandraConfig

	// CatalogSource selects where locations come from: static or postgres.
	CatalogSource string
	DatabaseDSN   string
	CatalogCache  time.Duration

	Game      GameConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
	Invite    InviteConfig

	SessionTTL      time.Duration
	ClosedRetention time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CassandraConfig holds Cassandra-specific configuration
type CassandraConfig struct {
	Hosts       []string
	Keyspace    string
	Username    string
	Password    string
	Consistency string
	Timeout     time.Duration
}

// GameConfig holds the rules read when a round starts.
type GameConfig struct {
	MinPlayers         int
	MaxPlayers         int
	DiscussionDuration time.Duration
	VotingDuration     time.Duration
	// ResultsDuration is how long RESOLVED lasts before auto-restart (0 = wait for host).
	ResultsDuration time.Duration
	UniqueWindow    int
	ReuseRoles      bool
	AbortOnSpyLeave bool
	EarlyResolve    bool
	CommitAttempts  int
}

// SchedulerConfig controls trigger delivery and reconciliation.
type SchedulerConfig struct {
	PollInterval  time.Duration
	SweepInterval time.Duration
	SweepGrace    time.Duration
	// IdleTimeout closes sessions nobody has been connected to for this long (0 = never).
	IdleTimeout time.Duration
}

// RateLimitConfig holds per-client token bucket settings.
type RateLimitConfig struct {
	PerSecond int
	Burst     int
}

// InviteConfig holds join-link and QR storage settings.
type InviteConfig struct {
	BotURL    string
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PublicURL string
}

// S3Enabled reports whether QR codes should be uploaded.
func (c InviteConfig) S3Enabled() bool {
	return c.Bucket != ""
}

// Load loads configuration from environment variables, reading a .env file first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var (
		cfg Config
		err error
	)

	cfg.Host = getEnv("HOST", "0.0.0.0")
	cfg.Port = getEnv("PORT", "8080")
	cfg.APIKey = getEnv("API_KEY", "")
	cfg.PlayerTokenSecret = getEnv("PLAYER_TOKEN_SECRET", "")

	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", "redis"))
	switch cfg.StoreBackend {
	case "redis", "cassandra", "memory":
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND value: %q", cfg.StoreBackend)
	}

	// Redis configuration
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	// Cassandra configuration
	cfg.Cassandra.Hosts = parseHosts(getEnv("CASSANDRA_HOSTS", "localhost:9042"))
	cfg.Cassandra.Keyspace = getEnv("CASSANDRA_KEYSPACE", "spotthespy")
	cfg.Cassandra.Username = getEnv("CASSANDRA_USERNAME", "")
	cfg.Cassandra.Password = getEnv("CASSANDRA_PASSWORD", "")
	cfg.Cassandra.Consistency = getEnv("CASSANDRA_CONSISTENCY", "QUORUM")
	if cfg.Cassandra.Timeout, err = getSeconds("CASSANDRA_TIMEOUT_SECONDS", 5); err != nil {
		return nil, err
	}

	cfg.CatalogSource = strings.ToLower(getEnv("CATALOG_SOURCE", "static"))
	switch cfg.CatalogSource {
	case "static", "postgres":
	default:
		return nil, fmt.Errorf("invalid CATALOG_SOURCE value: %q", cfg.CatalogSource)
	}
	cfg.DatabaseDSN = getEnv("DATABASE_DSN", "")
	if cfg.CatalogSource == "postgres" && cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("DATABASE_DSN is required when CATALOG_SOURCE=postgres")
	}
	if cfg.CatalogCache, err = getSeconds("CATALOG_CACHE_SECONDS", 60); err != nil {
		return nil, err
	}

	// Game rules
	g := &cfg.Game
	if g.MinPlayers, err = getInt("MIN_PLAYER_AMOUNT", 3); err != nil {
		return nil, err
	}
	if g.MaxPlayers, err = getInt("MAX_PLAYER_AMOUNT", 8); err != nil {
		return nil, err
	}
	if g.MinPlayers < 2 {
		return nil, fmt.Errorf("MIN_PLAYER_AMOUNT must be at least 2, got %d", g.MinPlayers)
	}
	if g.MaxPlayers < g.MinPlayers {
		return nil, fmt.Errorf("MAX_PLAYER_AMOUNT (%d) must not be below MIN_PLAYER_AMOUNT (%d)", g.MaxPlayers, g.MinPlayers)
	}
	if g.DiscussionDuration, err = getSeconds("DISCUSSION_SECONDS", 300); err != nil {
		return nil, err
	}
	if g.VotingDuration, err = getSeconds("VOTING_SECONDS", 60); err != nil {
		return nil, err
	}
	if g.DiscussionDuration <= 0 || g.VotingDuration <= 0 {
		return nil, fmt.Errorf("DISCUSSION_SECONDS and VOTING_SECONDS must be positive")
	}
	if g.ResultsDuration, err = getSeconds("RESULTS_SECONDS", 0); err != nil {
		return nil, err
	}
	if g.UniqueWindow, err = getInt("GUARANTEED_UNIQUE_WORDS_COUNT", 30); err != nil {
		return nil, err
	}
	if g.ReuseRoles, err = getBool("ROLE_REUSE", true); err != nil {
		return nil, err
	}
	if g.AbortOnSpyLeave, err = getBool("ABORT_ON_SPY_LEAVE", true); err != nil {
		return nil, err
	}
	if g.EarlyResolve, err = getBool("EARLY_RESOLVE", true); err != nil {
		return nil, err
	}
	if g.CommitAttempts, err = getInt("COMMIT_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if g.CommitAttempts < 1 {
		return nil, fmt.Errorf("COMMIT_ATTEMPTS must be at least 1, got %d", g.CommitAttempts)
	}

	// Scheduler
	pollMs, err := getInt("SCHEDULER_POLL_MS", 500)
	if err != nil {
		return nil, err
	}
	cfg.Scheduler.PollInterval = time.Duration(pollMs) * time.Millisecond
	if cfg.Scheduler.SweepInterval, err = getSeconds("SWEEP_INTERVAL_SECONDS", 30); err != nil {
		return nil, err
	}
	if cfg.Scheduler.PollInterval <= 0 || cfg.Scheduler.SweepInterval <= 0 {
		return nil, fmt.Errorf("SCHEDULER_POLL_MS and SWEEP_INTERVAL_SECONDS must be positive")
	}
	if cfg.Scheduler.SweepGrace, err = getSeconds("SWEEP_GRACE_SECONDS", 5); err != nil {
		return nil, err
	}
	if cfg.Scheduler.IdleTimeout, err = getSeconds("SWEEP_IDLE_SECONDS", 1800); err != nil {
		return nil, err
	}

	if cfg.RateLimit.PerSecond, err = getInt("RATE_LIMIT_RPS", 20); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Burst, err = getInt("RATE_LIMIT_BURST", 40); err != nil {
		return nil, err
	}

	cfg.Invite = InviteConfig{
		BotURL:    getEnv("INVITE_BOT_URL", "https://t.me/SpotTheSpyBot"),
		Endpoint:  getEnv("S3_ENDPOINT", ""),
		Region:    getEnv("S3_REGION", "us-east-1"),
		Bucket:    getEnv("S3_BUCKET", ""),
		AccessKey: getEnv("S3_ACCESS_KEY", ""),
		SecretKey: getEnv("S3_SECRET_KEY", ""),
		PublicURL: getEnv("S3_PUBLIC_URL", ""),
	}

	if cfg.PlayerTokenTTL, err = getSeconds("PLAYER_TOKEN_TTL_SECONDS", 86400); err != nil {
		return nil, err
	}

	// Session TTL (0 = no expiration)
	if cfg.SessionTTL, err = getSeconds("SESSION_TTL_SECONDS", 86400); err != nil {
		return nil, err
	}
	if cfg.ClosedRetention, err = getSeconds("CLOSED_RETENTION_SECONDS", 600); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Address returns the full address (host:port)
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return v, nil
}

func getSeconds(key string, defaultValue int) (time.Duration, error) {
	v, err := getInt(key, defaultValue)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid %s value: must not be negative", key)
	}
	return time.Duration(v) * time.Second, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return v, nil
}

// parseHosts parses a comma-separated list of hosts
func parseHosts(hostsStr string) []string {
	parts := strings.Split(hostsStr, ",")
	hosts := make([]string, 0, len(parts))
	for _, part := range parts {
		host := strings.TrimSpace(part)
		if host != "" {
			hosts = append(hosts, host)
		}
	}
	if len(hosts) == 0 {
		return []string{"localhost:9042"}
	}
	return hosts
}
