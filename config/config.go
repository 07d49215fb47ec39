package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mailsort/mailsort/consts"
	"github.com/mailsort/mailsort/helpers"
)

// LoggingConfig controls log output.
type LoggingConfig struct {
	Output string `toml:"output"` // "stderr", "stdout", "syslog" or a file path
	Format string `toml:"format"` // "console" or "json"
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
}

// MetricsConfig controls the optional Prometheus exposition endpoint.
// Only useful together with a poll interval, since a one-shot run exits
// before anything can scrape it.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"` // listen address, default ":9090"
}

// AccountConfig describes one IMAP account and the rules applied to it.
type AccountConfig struct {
	Name               string   `toml:"name"`
	Host               string   `toml:"host"`
	Port               int      `toml:"port"` // default 993
	Username           string   `toml:"username"`
	Password           string   `toml:"password"`
	PasswordEnv        string   `toml:"password_env"` // environment variable holding the password
	Auth               string   `toml:"auth"`         // "login" (default) or "plain"
	InsecureSkipVerify bool     `toml:"insecure_skip_verify"`
	Mailboxes          []string `toml:"mailboxes"`  // source mailboxes, default ["INBOX"]
	RulesFile          string   `toml:"rules_file"` // relative paths resolve against the config file
	ConnectTimeout     string   `toml:"connect_timeout"` // default "30s"
}

// Config is the top-level application configuration.
type Config struct {
	TrashMailbox string          `toml:"trash_mailbox"` // default "Trash"
	DryRun       bool            `toml:"dry_run"`
	Interval     string          `toml:"interval"` // empty means run once and exit
	Logging      LoggingConfig   `toml:"logging"`
	Metrics      MetricsConfig   `toml:"metrics"`
	Accounts     []AccountConfig `toml:"accounts"`
}

// Load reads and validates the TOML configuration at path. Relative rules
// file paths are resolved against the directory containing the config file.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.TrashMailbox == "" {
		cfg.TrashMailbox = consts.DefaultTrashMailbox
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}

	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("config %s: no accounts defined", path)
	}

	baseDir := filepath.Dir(path)
	for i := range cfg.Accounts {
		a := &cfg.Accounts[i]
		if a.Host == "" {
			return nil, fmt.Errorf("account %q: host is required", a.Name)
		}
		if a.Username == "" {
			return nil, fmt.Errorf("account %q: username is required", a.Name)
		}
		if a.Name == "" {
			a.Name = a.Username
		}
		if a.Port == 0 {
			a.Port = 993
		}
		if a.Auth == "" {
			a.Auth = "login"
		}
		if a.Auth != "login" && a.Auth != "plain" {
			return nil, fmt.Errorf("account %q: unknown auth mechanism %q", a.Name, a.Auth)
		}
		if a.Password == "" && a.PasswordEnv != "" {
			a.Password = os.Getenv(a.PasswordEnv)
		}
		if a.Password == "" {
			return nil, fmt.Errorf("account %q: no password or password_env set", a.Name)
		}
		if len(a.Mailboxes) == 0 {
			a.Mailboxes = []string{consts.DefaultSourceMailbox}
		}
		if a.RulesFile == "" {
			return nil, fmt.Errorf("account %q: rules_file is required", a.Name)
		}
		if !filepath.IsAbs(a.RulesFile) {
			a.RulesFile = filepath.Join(baseDir, a.RulesFile)
		}
		if _, err := a.GetConnectTimeout(); err != nil {
			return nil, fmt.Errorf("account %q: %w", a.Name, err)
		}
	}

	if _, err := cfg.GetInterval(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// GetInterval parses the poll interval. Zero means run once.
func (c *Config) GetInterval() (time.Duration, error) {
	if c.Interval == "" {
		return 0, nil
	}
	d, err := helpers.ParseDuration(c.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid interval: %w", err)
	}
	return d, nil
}

// Address returns the host:port dial address for the account.
func (a *AccountConfig) Address() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// GetConnectTimeout parses the connection timeout, defaulting to 30s.
func (a *AccountConfig) GetConnectTimeout() (time.Duration, error) {
	if a.ConnectTimeout == "" {
		return 30 * time.Second, nil
	}
	d, err := helpers.ParseDuration(a.ConnectTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid connect_timeout: %w", err)
	}
	return d, nil
}
