// Package config loads the Controller's configuration the way the
// teacher's internal/config and pkg/database/manager.go do: a typed struct
// with yaml tags, a DefaultConfig constructor seeded from environment
// variables, and an optional file overlay via gopkg.in/yaml.v3.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ZoneConfig describes one named resource-manager pool (spec.md's "zone"),
// including the ZoneGroup list the Submit Planner cross-joins against.
type ZoneConfig struct {
	Name       string      `yaml:"name"`
	ConfigFile string      `yaml:"config_file"`
	EnvFile    string      `yaml:"env_file"`
	Groups     []ZoneGroup `yaml:"groups"`
}

// ZoneGroup is one count/ncores/agentGroup bucket within a zone.
type ZoneGroup struct {
	Count          int    `yaml:"count"`
	NCores         int    `yaml:"ncores"`
	AgentGroupName string `yaml:"agent_group"`
}

// NMinRule declares the minimum acceptable replica count for one collection
// template, independent of any single topology file (spec.md §3's
// `nMinInfo`). The Submit Planner cross-joins against this before a
// topology has even been parsed.
type NMinRule struct {
	N      int    `yaml:"n"`
	NMin   int    `yaml:"nmin"`
	NCores int    `yaml:"ncores"`
	Zone   string `yaml:"zone"`
}

// StatusConfig controls the optional read-only operator HTTP surface.
type StatusConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Listen      string        `yaml:"listen"`
	Token       string        `yaml:"token"`
	SignKey     string        `yaml:"sign_key"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	RedisAddr   string        `yaml:"redis_addr"`
	CorsOrigins []string      `yaml:"cors_origins"`
}

// PersistenceConfig carries the restore/history backend settings.
// cmd/odc-server opens the file-backed stores under RestoreDir and
// HistoryDir whatever Backend says; Backend and PostgresDSN are not read
// by any caller.
type PersistenceConfig struct {
	Backend    string `yaml:"backend"` // "file" (default) or "postgres"
	RestoreDir string `yaml:"restore_dir"`
	HistoryDir string `yaml:"history_dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Config is the Controller's top-level configuration.
type Config struct {
	DefaultTimeout   time.Duration        `yaml:"default_timeout"`
	AgentWaitTimeout time.Duration        `yaml:"agent_wait_timeout"`
	RMS              string               `yaml:"rms"`
	Zones            map[string]ZoneConfig `yaml:"zones"`
	NMin             map[string]NMinRule  `yaml:"nmin"`
	Plugins          map[string]string    `yaml:"plugins"`
	Persistence      PersistenceConfig    `yaml:"persistence"`
	Status           StatusConfig         `yaml:"status"`
	LogLevel         string               `yaml:"log_level"`
}

// DefaultConfig returns a configuration seeded from environment variables,
// mirroring the teacher's getEnvOrDefault-based DefaultConfig.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DefaultTimeout:   getEnvDurationOrDefault("ODC_DEFAULT_TIMEOUT", 30*time.Second),
		AgentWaitTimeout: getEnvDurationOrDefault("ODC_AGENT_WAIT_TIMEOUT", 60*time.Second),
		RMS:              getEnvOrDefault("ODC_RMS", "localhost"),
		Zones:            map[string]ZoneConfig{},
		NMin:             map[string]NMinRule{},
		Plugins:          map[string]string{},
		Persistence: PersistenceConfig{
			Backend:    getEnvOrDefault("ODC_PERSISTENCE_BACKEND", "file"),
			RestoreDir: getEnvOrDefault("ODC_RESTORE_DIR", home+"/.odc/restore"),
			HistoryDir: getEnvOrDefault("ODC_HISTORY_DIR", home+"/.odc/history"),
		},
		Status: StatusConfig{
			Enabled:  getEnvBoolOrDefault("ODC_STATUS_ENABLED", false),
			Listen:   getEnvOrDefault("ODC_STATUS_LISTEN", "127.0.0.1:8090"),
			SignKey:  getEnvOrDefault("ODC_STATUS_SIGN_KEY", "odc-status-dev-key"),
			CacheTTL: getEnvDurationOrDefault("ODC_STATUS_CACHE_TTL", 2*time.Second),
		},
		LogLevel: getEnvOrDefault("ODC_LOG_LEVEL", "info"),
	}
}

// LoadFile overlays a YAML config file on top of DefaultConfig. Missing
// file is not an error; callers that require one check os.Stat first.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnvOrDefault(key, dflt string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return dflt
}

func getEnvBoolOrDefault(key string, dflt bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return dflt
}

func getEnvDurationOrDefault(key string, dflt time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return dflt
}
