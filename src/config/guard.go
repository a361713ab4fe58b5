package config

import (
	"time"

	"gorm.io/gorm"
)

// GuardConfig holds everything the serve command needs.
type GuardConfig struct {
	Base

	CacheBackend string
	RedisURL     string
	CacheTTL     time.Duration
	AuditStream  bool

	RestrictedRoleID   string
	RestrictedRoleName string
	GuardChannelID     string
	AdminRoleID        string
	RegisterCommands   bool

	NoticeTTL      time.Duration
	NoticeInterval time.Duration
	NoticeBurst    int
	RetryBackoff   time.Duration

	APIEnabled  bool
	APIAddr     string
	JWTSecret   string
	CORSOrigins []string

	PurgeInterval time.Duration
	PurgeGrace    time.Duration

	LogLevel string
	LogDev   bool
}

// LoadGuardConfig resolves the guard configuration. db may be nil when no database is reachable yet.
func LoadGuardConfig(db *gorm.DB) GuardConfig {
	base := LoadBase(db)

	cfg := GuardConfig{
		Base:         base,
		CacheBackend: GetSetting("cache_backend", "GROUPGUARD_CACHE", "memory"),
		RedisURL:     GetSetting("redis_url", "REDIS_URL", ""),
		CacheTTL:     getDurationSetting("cache_ttl", "GROUPGUARD_CACHE_TTL", 30*time.Second),
		AuditStream:  getBoolSetting("audit_stream", "GROUPGUARD_AUDIT_STREAM", false),

		RestrictedRoleID:   GetSetting("restricted_role_id", "GROUPGUARD_RESTRICTED_ROLE_ID", ""),
		RestrictedRoleName: GetSetting("restricted_role_name", "GROUPGUARD_RESTRICTED_ROLE", "Unverified"),
		GuardChannelID:     GetSetting("guard_channel_id", "GROUPGUARD_CHANNEL_ID", ""),
		AdminRoleID:        GetSetting("admin_role_id", "GROUPGUARD_ADMIN_ROLE_ID", ""),
		RegisterCommands:   getBoolSetting("register_commands", "GROUPGUARD_REGISTER_COMMANDS", true),

		NoticeTTL:      getDurationSetting("notice_ttl", "GROUPGUARD_NOTICE_TTL", 30*time.Second),
		NoticeInterval: getDurationSetting("notice_interval", "GROUPGUARD_NOTICE_INTERVAL", 5*time.Second),
		NoticeBurst:    getIntSetting("notice_burst", "GROUPGUARD_NOTICE_BURST", 3),
		RetryBackoff:   getDurationSetting("retry_backoff", "GROUPGUARD_RETRY_BACKOFF", 5*time.Second),

		APIEnabled:  getBoolSetting("api_enabled", "GROUPGUARD_API_ENABLED", true),
		APIAddr:     GetSetting("api_addr", "GROUPGUARD_API_ADDR", ":8080"),
		JWTSecret:   GetSetting("jwt_secret", "JWT_SECRET", ""),
		CORSOrigins: splitList(GetSetting("cors_origins", "GROUPGUARD_CORS_ORIGINS", "")),

		PurgeInterval: getDurationSetting("purge_interval", "GROUPGUARD_PURGE_INTERVAL", 10*time.Minute),
		PurgeGrace:    getDurationSetting("purge_grace", "GROUPGUARD_PURGE_GRACE", 5*time.Minute),

		LogLevel: GetSetting("log_level", "LOG_LEVEL", "info"),
		LogDev:   getBoolSetting("log_dev", "GROUPGUARD_LOG_DEV", false),
	}

	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.NoticeBurst <= 0 {
		cfg.NoticeBurst = 3
	}
	// Without a secret the admin API would accept nothing; keep it off.
	if cfg.JWTSecret == "" {
		cfg.APIEnabled = false
	}
	return cfg
}
