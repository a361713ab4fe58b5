package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/stake-plus/groupguard/src/data"
	"gorm.io/gorm"
)

// Base contains common configuration fields
type Base struct {
	Token   string
	GuildID string
	DSN     string
}

var v = newViper()

func newViper() *viper.Viper {
	nv := viper.New()
	nv.SetConfigName("groupguard")
	nv.SetConfigType("yaml")
	nv.AddConfigPath("configs")
	nv.AddConfigPath(".")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	return nv
}

// Viper exposes the process configuration so command-line flags can be bound to it.
func Viper() *viper.Viper { return v }

// ReadFile loads an optional config file. An empty path searches ./configs and the working
// directory for groupguard.yaml; a missing file there is not an error.
func ReadFile(path string) error {
	if path != "" {
		v.SetConfigFile(path)
		return v.ReadInConfig()
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// LoadBase loads common configuration (discord token, guild ID, DSN)
func LoadBase(db *gorm.DB) Base {
	if db != nil {
		if err := data.LoadSettings(db); err != nil {
			// Log but continue - env fallbacks will work
		}
	}

	dsn := GetSetting("dsn", "GROUPGUARD_DSN", "")
	if dsn == "" {
		dsn, _ = data.GetDSN()
	}

	return Base{
		Token:   GetSetting("discord_token", "DISCORD_TOKEN", ""),
		GuildID: GetSetting("guild_id", "GUILD_ID", ""),
		DSN:     dsn,
	}
}

// GetSetting retrieves a setting from the settings table, then the config file or
// environment, then the default.
func GetSetting(name, envKey, defaultValue string) string {
	val := data.GetSetting(name)
	if val == "" {
		if envKey != "" {
			_ = v.BindEnv(name, envKey)
		}
		val = strings.TrimSpace(v.GetString(name))
	}
	if val == "" {
		val = defaultValue
	}
	return val
}

func getBoolSetting(name, envKey string, defaultValue bool) bool {
	return parseBoolDefault(GetSetting(name, envKey, ""), defaultValue)
}

func getIntSetting(name, envKey string, defaultValue int) int {
	raw := GetSetting(name, envKey, "")
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return defaultValue
}

// getDurationSetting accepts Go durations ("45s") or bare seconds ("45").
func getDurationSetting(name, envKey string, defaultValue time.Duration) time.Duration {
	raw := GetSetting(name, envKey, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
