// Package config loads the client configuration.
//
// The configuration is a single YAML file, by default ~/.kvchat/config.yaml.
// Every field is optional: values missing from the file keep their defaults,
// and command line flags override both.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"kvchat/internal/crypto"
	"kvchat/internal/kv"
	"kvchat/internal/storage"
	"kvchat/internal/utils"
)

const (
	DefaultDataDir          = "~/.kvchat"
	DefaultFile             = "config.yaml"
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultJoinPollInterval = time.Second
	DefaultJoinTimeout      = 10 * time.Minute
)

var ErrConfig = utils.NewChatError("invalid configuration")

type Config struct {
	// Username is preselected on the login screen and used by the CLI
	// subcommands.
	Username string `yaml:"username"`
	DataDir  string `yaml:"data_dir"`
	// Passphrase seals the local key store. Empty leaves it unsealed.
	Passphrase string `yaml:"passphrase"`

	PollInterval     time.Duration `yaml:"poll_interval"`
	JoinPollInterval time.Duration `yaml:"join_poll_interval"`
	JoinTimeout      time.Duration `yaml:"join_timeout"`

	Store   kv.Config     `yaml:"store"`
	Crypto  CryptoConfig  `yaml:"crypto"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`

	// Theme is a path to a theme YAML. Empty selects the built-in theme.
	Theme string `yaml:"theme"`
}

type CryptoConfig struct {
	Scheme  string `yaml:"scheme"`
	RSABits int    `yaml:"rsa_bits"`
}

type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path defaults to <data_dir>/<username>/history.db.
	Path       string `yaml:"path"`
	QueueSize  int    `yaml:"queue_size"`
	ShowLatest int    `yaml:"show_latest"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Port > 0 streams log lines to TCP clients, since the TUI owns the
	// terminal.
	Port int    `yaml:"port"`
	File string `yaml:"file"`
}

func Default() *Config {
	return &Config{
		DataDir:          DefaultDataDir,
		PollInterval:     DefaultPollInterval,
		JoinPollInterval: DefaultJoinPollInterval,
		JoinTimeout:      DefaultJoinTimeout,
		Store:            kv.DefaultConfig(),
		Crypto: CryptoConfig{
			Scheme:  crypto.SchemeRSA,
			RSABits: crypto.DefaultRSABits,
		},
		History: HistoryConfig{
			Enabled:    true,
			QueueSize:  storage.DefaultWriteQueueSize,
			ShowLatest: 200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath is the file Load reads when no path is given.
func DefaultPath() (string, error) {
	dir, err := utils.ExpandHome(DefaultDataDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultFile), nil
}

// Load reads path over the defaults. An empty path reads DefaultPath and
// tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, ErrConfig.Wrap(err)
		}
		path = p
	} else {
		p, err := utils.ExpandHome(path)
		if err != nil {
			return nil, ErrConfig.Wrap(err)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, ErrConfig.WithDetails(fmt.Sprintf("failed to load config file %s", path)).Wrap(err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, ErrConfig.WithDetails(fmt.Sprintf("failed to load config file %s", path)).Wrap(err)
	}

	if err := cfg.Sanitize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Sanitize fills zero values with defaults and expands ~ in paths.
func (c *Config) Sanitize() error {
	c.Username = strings.TrimSpace(c.Username)
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	var err error
	if c.DataDir, err = utils.ExpandHome(c.DataDir); err != nil {
		return ErrConfig.Wrap(err)
	}
	if c.History.Path, err = utils.ExpandHome(c.History.Path); err != nil {
		return ErrConfig.Wrap(err)
	}
	if c.Log.File, err = utils.ExpandHome(c.Log.File); err != nil {
		return ErrConfig.Wrap(err)
	}
	if c.Theme, err = utils.ExpandHome(c.Theme); err != nil {
		return ErrConfig.Wrap(err)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.JoinPollInterval <= 0 {
		c.JoinPollInterval = DefaultJoinPollInterval
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = DefaultJoinTimeout
	}
	c.Crypto.Scheme = strings.ToLower(strings.TrimSpace(c.Crypto.Scheme))
	if c.Crypto.Scheme == "" {
		c.Crypto.Scheme = crypto.SchemeRSA
	}
	if c.Crypto.RSABits == 0 {
		c.Crypto.RSABits = crypto.DefaultRSABits
	}
	if c.History.QueueSize <= 0 {
		c.History.QueueSize = storage.DefaultWriteQueueSize
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Store.Sanitize()
	return nil
}

func (c *Config) Validate() error {
	if c.Username != "" {
		if err := utils.ValidateName("username", c.Username); err != nil {
			return ErrConfig.Wrap(err)
		}
	}
	if _, err := crypto.SchemeByName(c.Crypto.Scheme, c.Crypto.RSABits); err != nil {
		return ErrConfig.Wrap(err)
	}
	if err := c.Store.Validate(); err != nil {
		return ErrConfig.Wrap(err)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return ErrConfig.WithDetails("log.level").Wrap(err)
	}
	if c.Log.Port < 0 || c.Log.Port > 65535 {
		return ErrConfig.WithDetails(fmt.Sprintf("log.port %d out of range", c.Log.Port))
	}
	return nil
}

// UserDir is where the local state of username lives.
func (c *Config) UserDir(username string) string {
	return filepath.Join(c.DataDir, username)
}

// HistoryPath resolves the history database of username.
func (c *Config) HistoryPath(username string) string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.UserDir(username), storage.HistoryFile)
}

// Write stores c as YAML at path with owner-only permissions.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
