// Package config loads dialtone's runtime configuration: a YAML file
// layered with the legacy "user1:pass1,user2:pass2" auth-list format
// (spec.md §6) and DT_*-prefixed environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is dialtone's full runtime configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	Window             int           `yaml:"window"`
	RetransmitInterval time.Duration `yaml:"retransmit_interval"`
	MaxRetries         int           `yaml:"max_retries"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`

	// CloseDrainTimeout bounds how long CLOSING waits for the pacer queue
	// and unacked frames to drain before forcing the socket shut (spec.md
	// §4.3: "drain unacked best-effort").
	CloseDrainTimeout time.Duration `yaml:"close_drain_timeout"`

	GuestsAllowed bool   `yaml:"guests_allowed"`
	AuthUsersFile string `yaml:"auth_users_file"`
	AuthUsersList string `yaml:"auth_users"` // "user1:pass1,user2:pass2"

	XferBlockSize int `yaml:"xfer_block_size"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns a Config with spec.md's documented defaults.
func Default() Config {
	return Config{
		ListenAddr:         ":5191",
		Window:             16,
		RetransmitInterval: 7 * time.Second,
		MaxRetries:         3,
		HeartbeatInterval:  30 * time.Second,
		IdleTimeout:        5 * time.Minute,
		CloseDrainTimeout:  5 * time.Second,
		GuestsAllowed:      false,
		XferBlockSize:      1024,
		MetricsAddr:        ":9191",
		LogLevel:           "info",
	}
}

// Load reads path (if non-empty) as YAML over the defaults, then applies
// DT_*-prefixed environment overrides, and returns the resulting Config.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// envOverrides maps a DT_* environment variable name to a setter closure.
// Kept as a table (rather than a long if/else chain) so adding a new
// override is a one-line addition.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("DT_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("DT_WINDOW"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Window = n
		}
	}
	if v, ok := os.LookupEnv("DT_RETRANSMIT_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RetransmitInterval = d
		}
	}
	if v, ok := os.LookupEnv("DT_MAX_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v, ok := os.LookupEnv("DT_HEARTBEAT_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HeartbeatInterval = d
		}
	}
	if v, ok := os.LookupEnv("DT_IDLE_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.IdleTimeout = d
		}
	}
	if v, ok := os.LookupEnv("DT_CLOSE_DRAIN_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CloseDrainTimeout = d
		}
	}
	if v, ok := os.LookupEnv("DT_GUESTS_ALLOWED"); ok {
		cfg.GuestsAllowed = v == "1" || strings.EqualFold(v, "true")
	}
	if v, ok := os.LookupEnv("DT_AUTH_USERS"); ok {
		cfg.AuthUsersList = v
	}
	if v, ok := os.LookupEnv("DT_XFER_BLOCK_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.XferBlockSize = n
		}
	}
	if v, ok := os.LookupEnv("DT_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := os.LookupEnv("DT_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
}

// ParseAuthUsers implements spec.md §6's legacy static credential-list
// format: "user1:pass1,user2:pass2" — commas delimit entries, the first
// colon in each entry splits user from pass, whitespace is trimmed around
// both, and a malformed entry (no colon, or an empty side) is skipped
// rather than aborting the whole parse.
func ParseAuthUsers(list string) map[string]string {
	users := make(map[string]string)
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		i := strings.IndexByte(entry, ':')
		if i < 0 {
			continue
		}
		user := strings.TrimSpace(entry[:i])
		pass := strings.TrimSpace(entry[i+1:])
		if user == "" || pass == "" {
			continue
		}
		users[user] = pass
	}
	return users
}

// ResolveAuthUsers combines AuthUsersFile (if set, read and parsed the
// same way as AuthUsersList) with AuthUsersList, the list taking
// precedence entry-by-entry on conflict.
func (c Config) ResolveAuthUsers() (map[string]string, error) {
	users := make(map[string]string)

	if c.AuthUsersFile != "" {
		b, err := os.ReadFile(c.AuthUsersFile)
		if err != nil {
			return nil, fmt.Errorf("config: reading auth users file %s: %w", c.AuthUsersFile, err)
		}
		for k, v := range ParseAuthUsers(string(b)) {
			users[k] = v
		}
	}
	for k, v := range ParseAuthUsers(c.AuthUsersList) {
		users[k] = v
	}
	return users, nil
}
